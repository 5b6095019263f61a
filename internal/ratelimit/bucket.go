package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultCapacity is the weight budget per window.
	DefaultCapacity = 1200

	// DefaultWindow is the budget reset interval.
	DefaultWindow = 60 * time.Second
)

// ErrWeightTooLarge means the requested weight exceeds the whole-window
// capacity and can never be granted.
var ErrWeightTooLarge = errors.New("ratelimit: weight exceeds window capacity")

// Bucket is a fixed-window weight budget. The zero value is not usable;
// construct with NewBucket.
type Bucket struct {
	logger   *slog.Logger
	capacity int64
	window   time.Duration
	now      func() time.Time

	mu          sync.Mutex
	windowStart time.Time
	used        int64
}

// Option configures a Bucket.
type Option func(*Bucket)

// WithCapacity overrides the per-window weight budget.
func WithCapacity(capacity int64) Option {
	return func(b *Bucket) {
		if capacity > 0 {
			b.capacity = capacity
		}
	}
}

// WithWindow overrides the reset interval.
func WithWindow(window time.Duration) Option {
	return func(b *Bucket) {
		if window > 0 {
			b.window = window
		}
	}
}

// withClock injects a clock for tests.
func withClock(now func() time.Time) Option {
	return func(b *Bucket) {
		b.now = now
	}
}

// NewBucket creates a weight bucket with the venue defaults of 1200 weight
// per 60 seconds.
func NewBucket(logger *slog.Logger, opts ...Option) *Bucket {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bucket{
		logger:   logger,
		capacity: DefaultCapacity,
		window:   DefaultWindow,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.windowStart = b.now()
	return b
}

// Acquire consumes weight from the current window, blocking until a
// window with enough remaining budget opens. Returns ErrWeightTooLarge for
// weights above the capacity and the context error if ctx is done before
// the weight is granted. Check-and-deduct is atomic, but the lock is not
// held while waiting, so Remaining and other acquirers stay responsive.
func (b *Bucket) Acquire(ctx context.Context, weight int64) error {
	if weight <= 0 {
		return fmt.Errorf("ratelimit: non-positive weight %d", weight)
	}
	if weight > b.capacity {
		return fmt.Errorf("%w: %d > %d", ErrWeightTooLarge, weight, b.capacity)
	}

	for {
		// A caller that is already cancelled never consumes budget.
		if err := ctx.Err(); err != nil {
			return err
		}

		b.mu.Lock()
		b.rollWindow()
		if b.used+weight <= b.capacity {
			b.used += weight
			b.mu.Unlock()
			return nil
		}
		used := b.used
		wait := b.windowStart.Add(b.window).Sub(b.now())
		b.mu.Unlock()

		b.logger.Debug("rate limit budget exhausted, waiting for next window",
			"used", used,
			"capacity", b.capacity,
			"wait", wait,
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Remaining reports the unspent weight in the current window.
func (b *Bucket) Remaining() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWindow()
	return b.capacity - b.used
}

// rollWindow resets the budget if the current window has elapsed. Caller
// holds b.mu.
func (b *Bucket) rollWindow() {
	now := b.now()
	if elapsed := now.Sub(b.windowStart); elapsed >= b.window {
		// Align to the boundary rather than now so windows stay fixed
		// length under slow callers.
		periods := elapsed / b.window
		b.windowStart = b.windowStart.Add(periods * b.window)
		b.used = 0
	}
}
