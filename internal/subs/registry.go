package subs

import (
	"fmt"
	"log/slog"
	"sync"
)

// Subscription identifies one venue channel stream.
type Subscription struct {
	Channel    string // e.g. "orderbook", "trade", "ticker"
	Instrument string // pair symbol; may be empty for account-wide channels
}

func (s Subscription) String() string {
	if s.Instrument == "" {
		return s.Channel
	}
	return fmt.Sprintf("%s:%s", s.Channel, s.Instrument)
}

// Registry is an ordered, deduplicated set of desired subscriptions.
type Registry struct {
	logger *slog.Logger

	mu      sync.Mutex
	order   []Subscription
	present map[Subscription]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger,
		present: make(map[Subscription]struct{}),
	}
}

// Add registers a subscription. Returns false if it was already present;
// duplicates never change replay order.
func (r *Registry) Add(sub Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.present[sub]; ok {
		return false
	}
	r.present[sub] = struct{}{}
	r.order = append(r.order, sub)
	return true
}

// Remove deregisters a subscription. Returns false if it was not present.
func (r *Registry) Remove(sub Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.present[sub]; !ok {
		return false
	}
	delete(r.present, sub)
	for i, s := range r.order {
		if s == sub {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether the subscription is registered.
func (r *Registry) Contains(sub Subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.present[sub]
	return ok
}

// List returns the registered subscriptions in registration order.
func (r *Registry) List() []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Subscription, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered subscriptions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Replay sends every registered subscription through send in registration
// order, stopping at the first error. Called after each reconnect; the
// registry itself is never modified by a failed replay, so the next
// reconnect retries the full set.
func (r *Registry) Replay(send func(Subscription) error) error {
	subs := r.List()

	for _, sub := range subs {
		if err := send(sub); err != nil {
			return fmt.Errorf("replaying subscription %s: %w", sub, err)
		}
	}
	if len(subs) > 0 {
		r.logger.Info("replayed subscriptions", "count", len(subs))
	}
	return nil
}
