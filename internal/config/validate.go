package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Venue.WSURL == "" {
		return errors.New("venue.ws_url is required")
	}
	if c.Venue.RestURL == "" {
		return errors.New("venue.rest_url is required")
	}

	// Credentials are optional, but a half-configured pair is a mistake.
	if (c.Auth.PublicKey == "") != (c.Auth.PrivateKey == "") {
		return errors.New("auth.public_key and auth.private_key must be set together")
	}

	if len(c.Feed.Instruments) == 0 {
		return errors.New("feed.instruments is required")
	}
	for _, ch := range c.Feed.Channels {
		switch ch {
		case "orderbook", "trade", "ticker", "order":
		default:
			return fmt.Errorf("feed.channels contains unknown channel %q", ch)
		}
	}

	if c.Connection.BackoffFactor <= 1 {
		return errors.New("connection.backoff_factor must be > 1")
	}
	if c.Connection.HeartbeatTimeout <= c.Connection.HeartbeatInterval {
		return errors.New("connection.heartbeat_timeout must exceed heartbeat_interval")
	}

	if c.Latency.Alpha <= 0 || c.Latency.Alpha > 1 {
		return fmt.Errorf("latency.alpha must be in (0, 1], got %v", c.Latency.Alpha)
	}

	if c.RateLimit.Capacity < 1 {
		return errors.New("rate_limit.capacity must be >= 1")
	}

	if c.Recorder.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
		if c.Recorder.BatchSize < 1 {
			return errors.New("recorder.batch_size must be >= 1")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
