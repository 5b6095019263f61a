package database

import (
	"fmt"
	"net/url"

	"github.com/ekurt/marketfeed/internal/config"
)

// BuildConnString renders a postgres:// URL from config. The url.URL
// assembly escapes credentials with reserved characters; ssl_mode falls
// back to the config default for callers that bypass LoadAndValidate.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:     cfg.Name,
		RawQuery: "sslmode=" + sslMode,
	}
	return u.String()
}
