package connection

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a single websocket connection.
type Client interface {
	// Connect establishes the connection and starts the read loop.
	Connect(ctx context.Context) error

	// Close tears the connection down. Safe to call more than once.
	Close() error

	// Send writes one text frame. Writes are serialized and carry a
	// deadline.
	Send(data []byte) error

	// Ping sends a ping carrying the send time; the measured round trip
	// is reported through ClientConfig.OnPong.
	Ping() error

	// Frames returns the inbound frame channel. Closed when the read
	// loop exits.
	Frames() <-chan Frame

	// Errors returns the connection error channel.
	Errors() <-chan error

	// IsConnected reports the connection state.
	IsConnected() bool

	// LastActivity returns the time of the last inbound traffic,
	// including control frames.
	LastActivity() time.Time
}

// wsClient implements Client over gorilla/websocket.
type wsClient struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	frames chan Frame
	errors chan error
	done   chan struct{}

	writeMu sync.Mutex

	mu          sync.RWMutex
	connected   bool
	closed      bool
	lastTraffic time.Time
}

// NewClient creates a websocket client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultClientConfig().HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultClientConfig().WriteTimeout
	}
	if cfg.FrameBufferSize <= 0 {
		cfg.FrameBufferSize = DefaultClientConfig().FrameBufferSize
	}

	return &wsClient{
		cfg:    cfg,
		logger: logger,
		frames: make(chan Frame, cfg.FrameBufferSize),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// Connect dials the venue and starts the read loop.
func (c *wsClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastTraffic = time.Now()
	c.mu.Unlock()

	// Venue pings: answer with pong and count as traffic.
	conn.SetPingHandler(func(data string) error {
		c.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	// Pongs for our pings carry the send time in the payload.
	conn.SetPongHandler(func(data string) error {
		c.touch()
		if c.cfg.OnPong == nil {
			return nil
		}
		sentNanos, err := strconv.ParseInt(data, 10, 64)
		if err != nil {
			return nil
		}
		c.cfg.OnPong(time.Since(time.Unix(0, sentNanos)))
		return nil
	})

	go c.readLoop()

	c.logger.Debug("websocket connected", "url", c.cfg.URL)
	return nil
}

// Close tears down the connection.
func (c *wsClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}
	return nil
}

// Send writes one text frame.
func (c *wsClient) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a ping stamped with the current time.
func (c *wsClient) Ping() error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	payload := strconv.FormatInt(time.Now().UnixNano(), 10)
	return conn.WriteControl(
		websocket.PingMessage,
		[]byte(payload),
		time.Now().Add(c.cfg.WriteTimeout),
	)
}

// Frames returns the inbound frame channel.
func (c *wsClient) Frames() <-chan Frame {
	return c.frames
}

// Errors returns the error channel.
func (c *wsClient) Errors() <-chan error {
	return c.errors
}

// IsConnected reports whether the connection is up.
func (c *wsClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// LastActivity returns the last inbound traffic time.
func (c *wsClient) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastTraffic
}

func (c *wsClient) touch() {
	c.mu.Lock()
	c.lastTraffic = time.Now()
	c.mu.Unlock()
}

// readLoop reads frames into the frames channel until the connection dies.
func (c *wsClient) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		close(c.frames)
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Errors after Close are expected teardown noise.
			select {
			case <-c.done:
			default:
				select {
				case c.errors <- err:
				default:
				}
			}
			return
		}

		c.touch()

		select {
		case c.frames <- Frame{Data: data, ReceivedAt: receivedAt}:
		case <-c.done:
			return
		default:
			c.logger.Warn("frame buffer full, dropping frame")
		}
	}
}
