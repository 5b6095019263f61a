package router

import "sync"

// Spool is a thread-safe ring buffer that doubles its capacity when full.
// Producers never block; consumers block in Receive until an item arrives
// or the spool is closed.
type Spool[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []T
	head   int
	count  int
	closed bool

	pushed int64
	popped int64
	grows  int
}

// SpoolStats contains spool counters.
type SpoolStats struct {
	Count  int
	Cap    int
	Pushed int64
	Popped int64
	Grows  int
}

// NewSpool creates a spool with the given initial capacity.
func NewSpool[T any](capacity int) *Spool[T] {
	if capacity < 1 {
		capacity = 1
	}
	s := &Spool[T]{buf: make([]T, capacity)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Push appends an item, growing the ring when full. Returns false if the
// spool is closed.
func (s *Spool[T]) Push(item T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.count == len(s.buf) {
		s.grow()
	}
	s.buf[(s.head+s.count)%len(s.buf)] = item
	s.count++
	s.pushed++
	s.cond.Signal()
	return true
}

// Receive removes the oldest item, blocking until one is available. The
// second return value is false once the spool is closed and drained.
func (s *Spool[T]) Receive() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.count == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.count == 0 {
		var zero T
		return zero, false
	}
	return s.pop(), true
}

// TryReceive removes the oldest item without blocking.
func (s *Spool[T]) TryReceive() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 {
		var zero T
		return zero, false
	}
	return s.pop(), true
}

// Drain removes up to max items (all of them when max <= 0). Used by batch
// consumers.
func (s *Spool[T]) Drain(max int) []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s.pop())
	}
	return out
}

// Close marks the spool closed and wakes all blocked receivers. Items
// already spooled remain receivable.
func (s *Spool[T]) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Len returns the number of spooled items.
func (s *Spool[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Stats returns spool counters.
func (s *Spool[T]) Stats() SpoolStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SpoolStats{
		Count:  s.count,
		Cap:    len(s.buf),
		Pushed: s.pushed,
		Popped: s.popped,
		Grows:  s.grows,
	}
}

// pop removes the head item. Caller holds s.mu and has checked count > 0.
func (s *Spool[T]) pop() T {
	item := s.buf[s.head]
	var zero T
	s.buf[s.head] = zero
	s.head = (s.head + 1) % len(s.buf)
	s.count--
	s.popped++
	return item
}

// grow doubles the ring, unwrapping items to the front. Caller holds s.mu.
func (s *Spool[T]) grow() {
	next := make([]T, len(s.buf)*2)
	for i := 0; i < s.count; i++ {
		next[i] = s.buf[(s.head+i)%len(s.buf)]
	}
	s.buf = next
	s.head = 0
	s.grows++
}
