package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrStale         = errors.New("connection stale, no traffic within heartbeat timeout")
	ErrAlreadyClosed = errors.New("already closed")
)

// Frame is one raw inbound websocket message with its receive timestamp.
type Frame struct {
	Data       []byte
	ReceivedAt time.Time
}

// State is the supervisor's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// ClientConfig configures a websocket client.
type ClientConfig struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	FrameBufferSize  int

	// OnPong is called with the measured round trip when a pong for one of
	// our pings arrives. May be nil.
	OnPong func(rtt time.Duration)
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		FrameBufferSize:  4096,
	}
}

// SupervisorConfig configures the connection supervisor.
type SupervisorConfig struct {
	URL string

	// Backoff between reconnect attempts. Wait starts at base, multiplies
	// by factor per failure, caps at max, and resets after a successful
	// connect.
	BackoffBase   time.Duration
	BackoffFactor float64
	BackoffMax    time.Duration

	// PingInterval is how often the supervisor pings the venue.
	PingInterval time.Duration

	// HeartbeatInterval is how often inbound traffic is checked;
	// HeartbeatTimeout without any traffic force-closes the connection.
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	WriteTimeout    time.Duration
	FrameBufferSize int
}

// DefaultSupervisorConfig returns the venue defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		BackoffBase:       time.Second,
		BackoffFactor:     1.5,
		BackoffMax:        60 * time.Second,
		PingInterval:      5 * time.Second,
		HeartbeatInterval: 5 * time.Second,
		HeartbeatTimeout:  45 * time.Second,
		WriteTimeout:      5 * time.Second,
		FrameBufferSize:   4096,
	}
}

// Stats contains supervisor counters.
type Stats struct {
	State      State
	Connects   int64
	Reconnects int64
	Frames     int64
}
