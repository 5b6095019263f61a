package latency

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultAlpha is the EMA smoothing factor. Higher values weight recent
	// samples more heavily.
	DefaultAlpha = 0.3

	// DefaultMaxSample rejects event latency samples above this bound.
	DefaultMaxSample = 10 * time.Second

	// minExchangeTS is the smallest plausible venue timestamp in ms
	// (2001-09-09). Anything below it is a unit bug, usually seconds
	// where milliseconds were expected.
	minExchangeTS = 1_000_000_000_000
)

// Stats is a point-in-time view of one EMA channel.
type Stats struct {
	EMA      time.Duration
	Last     time.Duration
	Samples  int64
	Rejected int64
}

// ema is a single exponentially weighted average. Zero value is unused; the
// first accepted sample sets the average directly.
type ema struct {
	value    float64 // ms
	last     float64 // ms
	samples  int64
	rejected int64
}

func (e *ema) observe(ms float64, alpha float64) {
	e.last = ms
	if e.samples == 0 {
		e.value = ms
	} else {
		e.value = alpha*ms + (1-alpha)*e.value
	}
	e.samples++
}

func (e *ema) stats() Stats {
	return Stats{
		EMA:      time.Duration(e.value * float64(time.Millisecond)),
		Last:     time.Duration(e.last * float64(time.Millisecond)),
		Samples:  e.samples,
		Rejected: e.rejected,
	}
}

// Tracker maintains event latency and ping round trip averages.
type Tracker struct {
	logger    *slog.Logger
	alpha     float64
	maxSample time.Duration

	mu    sync.Mutex
	event ema
	rtt   ema
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithAlpha overrides the EMA smoothing factor. Values outside (0, 1] are
// ignored.
func WithAlpha(alpha float64) Option {
	return func(t *Tracker) {
		if alpha > 0 && alpha <= 1 {
			t.alpha = alpha
		}
	}
}

// WithMaxSample overrides the event latency rejection bound.
func WithMaxSample(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.maxSample = d
		}
	}
}

// NewTracker creates a latency tracker.
func NewTracker(logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		logger:    logger,
		alpha:     DefaultAlpha,
		maxSample: DefaultMaxSample,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ObserveEvent records one event latency sample from a venue timestamp in ms
// and the local receive time. Samples with an implausible venue timestamp,
// a negative latency (venue clock ahead of ours), or a latency above the
// bound are counted as rejected and do not move the average.
func (t *Tracker) ObserveEvent(exchangeTS int64, receivedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if exchangeTS < minExchangeTS {
		t.event.rejected++
		t.logger.Debug("rejected event latency sample, implausible timestamp",
			"exchange_ts", exchangeTS,
		)
		return
	}

	latencyMs := float64(receivedAt.UnixMilli() - exchangeTS)
	if latencyMs < 0 || latencyMs > float64(t.maxSample.Milliseconds()) {
		t.event.rejected++
		t.logger.Debug("rejected event latency sample, out of range",
			"latency_ms", latencyMs,
		)
		return
	}

	t.event.observe(latencyMs, t.alpha)
}

// ObserveRTT records one ping round trip sample. Negative samples are
// rejected.
func (t *Tracker) ObserveRTT(rtt time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rtt < 0 {
		t.rtt.rejected++
		return
	}
	t.rtt.observe(float64(rtt) / float64(time.Millisecond), t.alpha)
}

// Event returns the event latency channel stats.
func (t *Tracker) Event() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.event.stats()
}

// RTT returns the ping round trip channel stats.
func (t *Tracker) RTT() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rtt.stats()
}

// Reset clears both channels. Called when the connection is torn down so a
// reconnect starts from fresh samples.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.event = ema{}
	t.rtt = ema{}
}
