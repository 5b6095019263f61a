package config

import "time"

// Config is the root configuration for a feed instance.
type Config struct {
	Venue      VenueConfig      `yaml:"venue"`
	Auth       AuthConfig       `yaml:"auth"`
	Feed       FeedConfig       `yaml:"feed"`
	Connection ConnectionConfig `yaml:"connection"`
	Latency    LatencyConfig    `yaml:"latency"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Database   DBConfig         `yaml:"database"`
	Recorder   RecorderConfig   `yaml:"recorder"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// VenueConfig holds venue endpoint settings.
type VenueConfig struct {
	WSURL      string        `yaml:"ws_url"`
	RestURL    string        `yaml:"rest_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// AuthConfig holds the API key pair. PrivateKey is the base64 HMAC
// secret; both empty means public data only.
type AuthConfig struct {
	PublicKey  string `yaml:"public_key"`
	PrivateKey string `yaml:"private_key"`
}

// FeedConfig holds subscription settings.
type FeedConfig struct {
	Instruments   []string `yaml:"instruments"`
	Channels      []string `yaml:"channels"`
	SnapshotDepth int      `yaml:"snapshot_depth"`
}

// ConnectionConfig holds websocket supervisor settings.
type ConnectionConfig struct {
	BackoffBase       time.Duration `yaml:"backoff_base"`
	BackoffFactor     float64       `yaml:"backoff_factor"`
	BackoffMax        time.Duration `yaml:"backoff_max"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	FrameBufferSize   int           `yaml:"frame_buffer_size"`
}

// LatencyConfig holds EMA tracker settings.
type LatencyConfig struct {
	Alpha     float64       `yaml:"alpha"`
	MaxSample time.Duration `yaml:"max_sample"`
}

// RateLimitConfig holds the REST weight budget.
type RateLimitConfig struct {
	Capacity int64         `yaml:"capacity"`
	Window   time.Duration `yaml:"window"`
}

// DBConfig holds the Postgres connection for recorded trades and tickers.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// RecorderConfig holds batch recorder settings.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
