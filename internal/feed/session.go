package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ekurt/marketfeed/internal/auth"
	"github.com/ekurt/marketfeed/internal/book"
	"github.com/ekurt/marketfeed/internal/connection"
	"github.com/ekurt/marketfeed/internal/latency"
	"github.com/ekurt/marketfeed/internal/model"
	"github.com/ekurt/marketfeed/internal/rest"
	"github.com/ekurt/marketfeed/internal/router"
	"github.com/ekurt/marketfeed/internal/subs"
)

// ChannelOrderBook subscribes to snapshot/delta book updates.
const (
	ChannelOrderBook = "orderbook"
	ChannelTrade     = "trade"
	ChannelTicker    = "ticker"
	ChannelOrders    = "order"
)

// Config holds session tuning.
type Config struct {
	WSURL string

	// SnapshotDepth is the level count requested when bootstrapping books
	// over REST. Zero means venue default.
	SnapshotDepth int

	LatencyAlpha     float64
	LatencyMaxSample time.Duration

	Router     router.Config
	Supervisor connection.SupervisorConfig
}

// SnapshotFetcher bootstraps order books. *rest.Client satisfies it.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, instrument string, limit int) (rest.Snapshot, error)
}

// Session is one supervised feed connection with its local state.
type Session struct {
	cfg    Config
	logger *slog.Logger

	books    *book.Engine
	tracker  *latency.Tracker
	authSess *auth.Session // nil when unauthenticated
	registry *subs.Registry
	router   *router.Router
	superv   *connection.Supervisor
	snapshot SnapshotFetcher // nil disables REST bootstrap

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a session. signer may be nil for public data only; fetcher
// may be nil to rely on websocket snapshots alone.
func New(cfg Config, logger *slog.Logger, signer *auth.Signer, fetcher SnapshotFetcher, hooks router.Hooks) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	var latOpts []latency.Option
	if cfg.LatencyAlpha > 0 {
		latOpts = append(latOpts, latency.WithAlpha(cfg.LatencyAlpha))
	}
	if cfg.LatencyMaxSample > 0 {
		latOpts = append(latOpts, latency.WithMaxSample(cfg.LatencyMaxSample))
	}

	s := &Session{
		cfg:      cfg,
		logger:   logger,
		books:    book.NewEngine(logger.With("component", "book")),
		tracker:  latency.NewTracker(logger.With("component", "latency"), latOpts...),
		registry: subs.NewRegistry(logger.With("component", "subs")),
		snapshot: fetcher,
	}
	if signer != nil {
		s.authSess = auth.NewSession(logger.With("component", "auth"), signer)
	}

	s.router = router.New(cfg.Router, logger.With("component", "router"), s.books, s.tracker, s.authSess, hooks)

	supCfg := cfg.Supervisor
	supCfg.URL = cfg.WSURL
	s.superv = connection.NewSupervisor(supCfg, logger.With("component", "connection"), connection.Hooks{
		OnFrame: func(data []byte, receivedAt time.Time) { s.router.Route(data, receivedAt) },
		OnOpen:  s.onOpen,
		OnDown:  s.onDown,
		OnRTT:   s.tracker.ObserveRTT,
	})

	return s
}

// Start connects and begins streaming.
func (s *Session) Start(ctx context.Context) error {
	s.runCtx, s.cancel = context.WithCancel(ctx)

	if err := s.superv.Start(s.runCtx); err != nil {
		return fmt.Errorf("starting supervisor: %w", err)
	}
	s.logger.Info("feed session started", "url", s.cfg.WSURL)
	return nil
}

// Stop disconnects and waits for internal goroutines.
func (s *Session) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	err := s.superv.Stop(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("feed session stop timed out")
	}

	s.router.Close()
	s.logger.Info("feed session stopped")
	return err
}

// Subscribe registers a channel subscription and, when connected, sends
// the subscribe command now. Registered subscriptions survive reconnects.
func (s *Session) Subscribe(channel, instrument string) error {
	sub := subs.Subscription{Channel: channel, Instrument: instrument}
	if !s.registry.Add(sub) {
		return nil
	}

	if err := s.sendCommand("subscribe", sub); err != nil {
		// Not connected yet: the registry replays it on connect.
		s.logger.Debug("subscribe deferred until connect", "subscription", sub.String())
	}

	if channel == ChannelOrderBook {
		s.bootstrapBook(instrument)
	}
	return nil
}

// Unsubscribe removes a subscription and drops the matching book so a
// stale ladder is never served.
func (s *Session) Unsubscribe(channel, instrument string) error {
	sub := subs.Subscription{Channel: channel, Instrument: instrument}
	if !s.registry.Remove(sub) {
		return nil
	}

	if channel == ChannelOrderBook {
		s.books.Drop(instrument)
	}

	if err := s.sendCommand("unsubscribe", sub); err != nil {
		s.logger.Debug("unsubscribe not sent, connection down", "subscription", sub.String())
	}
	return nil
}

// Authenticate sends a signed login on the current connection. The result
// arrives asynchronously through the router; check AuthStatus.
func (s *Session) Authenticate() error {
	if s.authSess == nil {
		return fmt.Errorf("no credentials configured")
	}

	login := s.authSess.NextLogin()
	payload, err := json.Marshal(map[string]any{
		"type":      "login",
		"publicKey": login.PublicKey,
		"nonce":     login.Nonce,
		"signature": login.Signature,
	})
	if err != nil {
		return fmt.Errorf("encoding login: %w", err)
	}
	if err := s.superv.Send(payload); err != nil {
		s.authSess.Invalidate()
		return fmt.Errorf("sending login: %w", err)
	}
	return nil
}

// AuthStatus returns the login state, StatusUnauthenticated without
// credentials.
func (s *Session) AuthStatus() auth.Status {
	if s.authSess == nil {
		return auth.StatusUnauthenticated
	}
	return s.authSess.Status()
}

// BestBidAsk returns the top of book for an instrument.
func (s *Session) BestBidAsk(instrument string) (model.BestBidAsk, bool) {
	return s.books.BestBidAsk(instrument)
}

// Depth returns copies of both book sides.
func (s *Session) Depth(instrument string) (bids, asks []model.PriceLevel, ok bool) {
	return s.books.Depth(instrument)
}

// EventLatency returns the event latency EMA stats.
func (s *Session) EventLatency() latency.Stats {
	return s.tracker.Event()
}

// PingRTT returns the ping round trip EMA stats.
func (s *Session) PingRTT() latency.Stats {
	return s.tracker.RTT()
}

// Trades returns the trade output spool.
func (s *Session) Trades() *router.Spool[model.Trade] {
	return s.router.Trades()
}

// Tickers returns the ticker output spool.
func (s *Session) Tickers() *router.Spool[model.Ticker] {
	return s.router.Tickers()
}

// OrderEvents returns the private order event spool.
func (s *Session) OrderEvents() *router.Spool[model.OrderEvent] {
	return s.router.OrderEvents()
}

// State returns the connection lifecycle state.
func (s *Session) State() connection.State {
	return s.superv.State()
}

// Stats aggregates counters from the session's parts.
type Stats struct {
	Connection connection.Stats
	Router     router.Stats
	Books      book.Stats
	Subs       int
}

// Stats returns a point-in-time counter snapshot.
func (s *Session) Stats() Stats {
	return Stats{
		Connection: s.superv.Stats(),
		Router:     s.router.Stats(),
		Books:      s.books.Stats(),
		Subs:       s.registry.Len(),
	}
}

// onOpen runs on every (re)connect: log in if credentials are configured,
// replay the registry, then re-bootstrap subscribed books.
func (s *Session) onOpen(send func([]byte) error) error {
	if s.authSess != nil {
		login := s.authSess.NextLogin()
		payload, err := json.Marshal(map[string]any{
			"type":      "login",
			"publicKey": login.PublicKey,
			"nonce":     login.Nonce,
			"signature": login.Signature,
		})
		if err != nil {
			return fmt.Errorf("encoding login: %w", err)
		}
		if err := send(payload); err != nil {
			return fmt.Errorf("sending login: %w", err)
		}
	}

	err := s.registry.Replay(func(sub subs.Subscription) error {
		payload, err := marshalCommand("subscribe", sub)
		if err != nil {
			return err
		}
		return send(payload)
	})
	if err != nil {
		return err
	}

	for _, sub := range s.registry.List() {
		if sub.Channel == ChannelOrderBook {
			s.bootstrapBook(sub.Instrument)
		}
	}
	return nil
}

// onDown invalidates everything tied to the dead connection. Books must
// not be patched by deltas from a new session on top of old state.
func (s *Session) onDown(err error) {
	if err != nil {
		s.logger.Warn("connection down", "error", err)
	}
	s.books.Reset()
	s.tracker.Reset()
	if s.authSess != nil {
		s.authSess.Invalidate()
	}
}

// bootstrapBook fetches a REST snapshot asynchronously and applies it.
// Websocket snapshots arriving later simply replace it.
func (s *Session) bootstrapBook(instrument string) {
	if s.snapshot == nil || s.runCtx == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		snap, err := s.snapshot.FetchSnapshot(s.runCtx, instrument, s.cfg.SnapshotDepth)
		if err != nil {
			s.logger.Warn("snapshot bootstrap failed",
				"instrument", instrument,
				"error", err,
			)
			return
		}

		// A websocket snapshot may have landed while the fetch was in
		// flight. That book is newer; a slow REST response must not roll
		// it back.
		if _, _, ok := s.books.Depth(instrument); ok {
			s.logger.Debug("book already streaming, discarding snapshot bootstrap",
				"instrument", instrument,
			)
			return
		}
		s.books.ApplySnapshot(snap.Instrument, snap.Bids, snap.Asks)
		s.tracker.ObserveEvent(snap.Timestamp, time.Now())
	}()
}

func (s *Session) sendCommand(action string, sub subs.Subscription) error {
	payload, err := marshalCommand(action, sub)
	if err != nil {
		return err
	}
	return s.superv.Send(payload)
}

func marshalCommand(action string, sub subs.Subscription) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{
		"type":       action,
		"channel":    sub.Channel,
		"instrument": sub.Instrument,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding %s command: %w", action, err)
	}
	return payload, nil
}
