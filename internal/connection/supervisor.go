package connection

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Hooks are the supervisor's integration points. All hooks run on the
// supervisor goroutine.
type Hooks struct {
	// OnFrame receives every inbound frame.
	OnFrame func(data []byte, receivedAt time.Time)

	// OnOpen runs after each successful connect, before any frames are
	// delivered. Used to log in and replay subscriptions. An error here
	// tears the fresh connection down and schedules a reconnect.
	OnOpen func(send func([]byte) error) error

	// OnDown runs after the connection is lost or force-closed, before
	// the backoff wait. Used to invalidate local state.
	OnDown func(err error)

	// OnRTT receives ping round trip measurements.
	OnRTT func(rtt time.Duration)
}

// Supervisor keeps one websocket session alive: connect, login/replay,
// pump frames, detect staleness, reconnect with backoff.
type Supervisor struct {
	cfg    SupervisorConfig
	logger *slog.Logger
	hooks  Hooks

	// newClient is swapped in tests.
	newClient func(cfg ClientConfig, logger *slog.Logger) Client

	state atomic.Int32

	cancel context.CancelFunc
	wg     sync.WaitGroup

	clientMu sync.RWMutex
	client   Client

	statsMu    sync.Mutex
	connects   int64
	reconnects int64
	frames     int64
}

// NewSupervisor creates a supervisor. Zero config fields fall back to
// defaults.
func NewSupervisor(cfg SupervisorConfig, logger *slog.Logger, hooks Hooks) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultSupervisorConfig()
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = def.BackoffFactor
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.FrameBufferSize <= 0 {
		cfg.FrameBufferSize = def.FrameBufferSize
	}

	return &Supervisor{
		cfg:    cfg,
		logger: logger,
		hooks:  hooks,
		newClient: func(c ClientConfig, l *slog.Logger) Client {
			return NewClient(c, l)
		},
	}
}

// Start launches the supervisor loop.
func (s *Supervisor) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(runCtx)

	s.logger.Info("connection supervisor started", "url", s.cfg.URL)
	return nil
}

// Stop shuts the supervisor down, waiting until the loop exits or ctx is
// done.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.setState(StateClosing)
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("connection supervisor stopped")
	case <-ctx.Done():
		s.logger.Warn("connection supervisor stop timed out")
	}

	s.setState(StateIdle)
	return nil
}

// Send writes one frame on the current connection.
func (s *Supervisor) Send(data []byte) error {
	s.clientMu.RLock()
	client := s.client
	s.clientMu.RUnlock()

	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}
	return client.Send(data)
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Stats returns supervisor counters.
func (s *Supervisor) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return Stats{
		State:      s.State(),
		Connects:   s.connects,
		Reconnects: s.reconnects,
		Frames:     s.frames,
	}
}

// run is the supervisor loop: one iteration per connection lifetime.
func (s *Supervisor) run(ctx context.Context) {
	defer s.wg.Done()

	wait := s.cfg.BackoffBase
	first := true

	for {
		if ctx.Err() != nil {
			return
		}

		if !first {
			s.setState(StateFaulted)
			s.logger.Info("reconnecting", "wait", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			wait = s.nextWait(wait)
		}
		first = false

		s.setState(StateConnecting)
		client := s.newClient(ClientConfig{
			URL:             s.cfg.URL,
			WriteTimeout:    s.cfg.WriteTimeout,
			FrameBufferSize: s.cfg.FrameBufferSize,
			OnPong:          s.hooks.OnRTT,
		}, s.logger)

		if err := client.Connect(ctx); err != nil {
			s.logger.Warn("connect failed", "error", err)
			continue
		}

		s.clientMu.Lock()
		s.client = client
		s.clientMu.Unlock()

		s.statsMu.Lock()
		s.connects++
		if s.connects > 1 {
			s.reconnects++
		}
		s.statsMu.Unlock()

		if s.hooks.OnOpen != nil {
			if err := s.hooks.OnOpen(client.Send); err != nil {
				s.logger.Warn("open hook failed, recycling connection", "error", err)
				s.dropClient(client, err)
				continue
			}
		}

		// Entering Open resets the backoff. A dial whose open hook keeps
		// failing must not reset it, or the venue gets hammered at the
		// base interval.
		wait = s.cfg.BackoffBase
		s.setState(StateOpen)
		err := s.pump(ctx, client)
		s.dropClient(client, err)

		if ctx.Err() != nil {
			return
		}
	}
}

// pump delivers frames until the connection dies, goes stale, or ctx is
// done. Returns the terminal error, nil on clean shutdown.
func (s *Supervisor) pump(ctx context.Context, client Client) error {
	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()
	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-client.Errors():
			s.logger.Warn("connection error", "error", err)
			return err

		case frame, ok := <-client.Frames():
			if !ok {
				return ErrNotConnected
			}
			s.statsMu.Lock()
			s.frames++
			s.statsMu.Unlock()
			if s.hooks.OnFrame != nil {
				s.hooks.OnFrame(frame.Data, frame.ReceivedAt)
			}

		case <-pingTicker.C:
			if err := client.Ping(); err != nil {
				s.logger.Debug("ping failed", "error", err)
			}

		case <-heartbeat.C:
			idle := time.Since(client.LastActivity())
			if idle > s.cfg.HeartbeatTimeout {
				s.logger.Warn("no traffic within heartbeat timeout, force closing",
					"idle", idle,
					"timeout", s.cfg.HeartbeatTimeout,
				)
				return ErrStale
			}
		}
	}
}

// dropClient closes the connection and runs the down hook.
func (s *Supervisor) dropClient(client Client, err error) {
	client.Close()

	s.clientMu.Lock()
	s.client = nil
	s.clientMu.Unlock()

	if s.hooks.OnDown != nil {
		s.hooks.OnDown(err)
	}
}

func (s *Supervisor) nextWait(wait time.Duration) time.Duration {
	next := time.Duration(float64(wait) * s.cfg.BackoffFactor)
	if next > s.cfg.BackoffMax {
		next = s.cfg.BackoffMax
	}
	return next
}

func (s *Supervisor) setState(state State) {
	s.state.Store(int32(state))
}
