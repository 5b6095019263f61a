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

	"github.com/ekurt/marketfeed/internal/config"
	"github.com/ekurt/marketfeed/internal/connection"
	"github.com/ekurt/marketfeed/internal/database"
	"github.com/ekurt/marketfeed/internal/feed"
	"github.com/ekurt/marketfeed/internal/metrics"
	"github.com/ekurt/marketfeed/internal/recorder"
	"github.com/ekurt/marketfeed/internal/router"
	"github.com/ekurt/marketfeed/internal/version"
)

const statsInterval = 10 * time.Second

func main() {
	configPath := flag.String("config", "configs/recorder.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting recorder",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	session := feed.New(sessionConfig(cfg), logger, nil, nil, router.Hooks{})

	if err := session.Start(ctx); err != nil {
		logger.Error("failed to start session", "error", err)
		os.Exit(1)
	}

	for _, instrument := range cfg.Feed.Instruments {
		if err := session.Subscribe(feed.ChannelTrade, instrument); err != nil {
			logger.Error("subscribe failed", "instrument", instrument, "error", err)
		}
		if err := session.Subscribe(feed.ChannelTicker, instrument); err != nil {
			logger.Error("subscribe failed", "instrument", instrument, "error", err)
		}
	}

	recCfg := recorder.Config{
		BatchSize:     cfg.Recorder.BatchSize,
		FlushInterval: cfg.Recorder.FlushInterval,
	}
	trades := recorder.NewTradeRecorder(recCfg, session.Trades(), pool, logger.With("component", "trade_recorder"))
	tickers := recorder.NewTickerRecorder(recCfg, session.Tickers(), pool, logger.With("component", "ticker_recorder"))

	if err := trades.Start(ctx); err != nil {
		logger.Error("failed to start trade recorder", "error", err)
		os.Exit(1)
	}
	if err := tickers.Start(ctx); err != nil {
		logger.Error("failed to start ticker recorder", "error", err)
		os.Exit(1)
	}

	if cfg.Metrics.Enabled {
		if _, err := metrics.StartServer(cfg.Metrics.Port, logger.With("component", "metrics")); err != nil {
			logger.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return statsLoop(gctx, session, trades, tickers, logger)
	})

	logger.Info("recorder running", "instruments", cfg.Feed.Instruments)

	<-ctx.Done()
	logger.Info("shutting down...")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop the stream first so the recorders can drain what is left.
	if err := session.Stop(stopCtx); err != nil {
		logger.Warn("session stop", "error", err)
	}
	if err := trades.Stop(stopCtx); err != nil {
		logger.Warn("trade recorder stop", "error", err)
	}
	if err := tickers.Stop(stopCtx); err != nil {
		logger.Warn("ticker recorder stop", "error", err)
	}

	g.Wait()
	logger.Info("recorder stopped")
}

func statsLoop(ctx context.Context, session *feed.Session, trades *recorder.TradeRecorder, tickers *recorder.TickerRecorder, logger *slog.Logger) error {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		stats := session.Stats()
		tradeStats := trades.Stats()
		tickerStats := tickers.Stats()

		metrics.RecordStream(stats.Router.ParseErrors, stats.Connection.Reconnects, stats.Books.DroppedDeltas)
		metrics.RecordRecorder("trades", tradeStats.Inserts, tradeStats.Conflicts, tradeStats.Errors)
		metrics.RecordRecorder("tickers", tickerStats.Inserts, tickerStats.Conflicts, tickerStats.Errors)
		metrics.SpoolLength.WithLabelValues("trades").Set(float64(session.Trades().Len()))
		metrics.SpoolLength.WithLabelValues("tickers").Set(float64(session.Tickers().Len()))

		logger.Info("recorder stats",
			"state", session.State().String(),
			"frames", stats.Connection.Frames,
			"reconnects", stats.Connection.Reconnects,
			"trade_inserts", tradeStats.Inserts,
			"trade_conflicts", tradeStats.Conflicts,
			"ticker_inserts", tickerStats.Inserts,
			"ticker_conflicts", tickerStats.Conflicts,
			"errors", tradeStats.Errors+tickerStats.Errors,
		)
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
