package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ekurt/marketfeed/internal/auth"
	"github.com/ekurt/marketfeed/internal/config"
	"github.com/ekurt/marketfeed/internal/connection"
	"github.com/ekurt/marketfeed/internal/feed"
	"github.com/ekurt/marketfeed/internal/metrics"
	"github.com/ekurt/marketfeed/internal/model"
	"github.com/ekurt/marketfeed/internal/ratelimit"
	"github.com/ekurt/marketfeed/internal/rest"
	"github.com/ekurt/marketfeed/internal/router"
	"github.com/ekurt/marketfeed/internal/version"
)

const statsInterval = 10 * time.Second

func main() {
	configPath := flag.String("config", "configs/feedwatch.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting feedwatch",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var signer *auth.Signer
	if cfg.Auth.PublicKey != "" {
		signer, err = auth.NewSigner(cfg.Auth.PublicKey, cfg.Auth.PrivateKey)
		if err != nil {
			logger.Error("invalid credentials", "error", err)
			os.Exit(1)
		}
	}

	bucket := ratelimit.NewBucket(logger.With("component", "ratelimit"),
		ratelimit.WithCapacity(cfg.RateLimit.Capacity),
		ratelimit.WithWindow(cfg.RateLimit.Window),
	)

	restOpts := []rest.Option{
		rest.WithLogger(logger.With("component", "rest")),
		rest.WithTimeout(cfg.Venue.Timeout),
		rest.WithRetries(cfg.Venue.MaxRetries, time.Second),
	}
	if signer != nil {
		restOpts = append(restOpts, rest.WithSigner(signer))
	}
	restClient := rest.NewClient(cfg.Venue.RestURL, bucket, restOpts...)

	session := feed.New(sessionConfig(cfg), logger, signer, restClient, routerHooks())

	if err := session.Start(ctx); err != nil {
		logger.Error("failed to start session", "error", err)
		os.Exit(1)
	}

	for _, instrument := range cfg.Feed.Instruments {
		for _, channel := range cfg.Feed.Channels {
			if err := session.Subscribe(channel, instrument); err != nil {
				logger.Error("subscribe failed",
					"channel", channel,
					"instrument", instrument,
					"error", err,
				)
			}
		}
	}

	if cfg.Metrics.Enabled {
		if _, err := metrics.StartServer(cfg.Metrics.Port, logger.With("component", "metrics")); err != nil {
			logger.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return statsLoop(gctx, session, bucket, cfg.Feed.Instruments, logger)
	})

	logger.Info("feedwatch running",
		"instruments", cfg.Feed.Instruments,
		"channels", cfg.Feed.Channels,
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := session.Stop(stopCtx); err != nil {
		logger.Warn("session stop", "error", err)
	}

	g.Wait()
	logger.Info("feedwatch stopped")
}

// statsLoop logs a periodic health summary and publishes Prometheus
// gauges from the session counters.
func statsLoop(ctx context.Context, session *feed.Session, bucket *ratelimit.Bucket, instruments []string, logger *slog.Logger) error {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		stats := session.Stats()
		event := session.EventLatency()
		rtt := session.PingRTT()

		if session.State() == connection.StateOpen {
			metrics.ConnectionUp.Set(1)
		} else {
			metrics.ConnectionUp.Set(0)
		}
		metrics.RecordLatencies(event.EMA, rtt.EMA)
		metrics.RecordStream(stats.Router.ParseErrors, stats.Connection.Reconnects, stats.Books.DroppedDeltas)
		metrics.RateLimitRemaining.Set(float64(bucket.Remaining()))

		for _, instrument := range instruments {
			bids, asks, ok := session.Depth(instrument)
			if !ok {
				continue
			}
			metrics.BookDepth.WithLabelValues(instrument, "bid").Set(float64(len(bids)))
			metrics.BookDepth.WithLabelValues(instrument, "ask").Set(float64(len(asks)))
			if top, ok := session.BestBidAsk(instrument); ok {
				metrics.RecordTopOfBook(instrument, top.Bid.Price, top.Ask.Price)
			}
		}

		logger.Info("feed stats",
			"state", session.State().String(),
			"frames", stats.Connection.Frames,
			"reconnects", stats.Connection.Reconnects,
			"books", stats.Books.Books,
			"dropped_deltas", stats.Books.DroppedDeltas,
			"parse_errors", stats.Router.ParseErrors,
			"event_latency", event.EMA,
			"ping_rtt", rtt.EMA,
			"auth", session.AuthStatus().String(),
		)
	}
}

// routerHooks feeds the per-message Prometheus counters.
func routerHooks() router.Hooks {
	return router.Hooks{
		OnTrade: func(model.Trade) {
			metrics.RecordFrame("trade")
		},
		OnTicker: func(model.Ticker) {
			metrics.RecordFrame("ticker")
		},
		OnOrderEvent: func(model.OrderEvent) {
			metrics.RecordFrame("order_event")
		},
		OnBookUpdate: func(instrument string) {
			metrics.RecordFrame("book")
		},
	}
}

func sessionConfig(cfg *config.Config) feed.Config {
	return feed.Config{
		WSURL:            cfg.Venue.WSURL,
		SnapshotDepth:    cfg.Feed.SnapshotDepth,
		LatencyAlpha:     cfg.Latency.Alpha,
		LatencyMaxSample: cfg.Latency.MaxSample,
		Router:           router.DefaultConfig(),
		Supervisor: connection.SupervisorConfig{
			BackoffBase:       cfg.Connection.BackoffBase,
			BackoffFactor:     cfg.Connection.BackoffFactor,
			BackoffMax:        cfg.Connection.BackoffMax,
			PingInterval:      cfg.Connection.PingInterval,
			HeartbeatInterval: cfg.Connection.HeartbeatInterval,
			HeartbeatTimeout:  cfg.Connection.HeartbeatTimeout,
			WriteTimeout:      cfg.Connection.WriteTimeout,
			FrameBufferSize:   cfg.Connection.FrameBufferSize,
		},
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
