package book

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/ekurt/marketfeed/internal/model"
)

// Engine maintains local order books for all subscribed instruments.
type Engine struct {
	logger *slog.Logger

	// mu guards the books map itself; each instrumentBook carries its own
	// lock so updates to different instruments do not serialize.
	mu    sync.RWMutex
	books map[string]*instrumentBook

	statsMu       sync.Mutex
	droppedDeltas int64
}

// instrumentBook holds the two ladders for one instrument.
type instrumentBook struct {
	mu   sync.RWMutex
	bids []model.PriceLevel // sorted descending by price
	asks []model.PriceLevel // sorted ascending by price
}

// Stats contains engine counters.
type Stats struct {
	Books         int
	DroppedDeltas int64
}

// NewEngine creates an order book engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger: logger,
		books:  make(map[string]*instrumentBook),
	}
}

// ApplySnapshot replaces the instrument's entire book. Input levels with
// non-positive price or quantity are discarded; duplicate prices keep the
// last occurrence. The previous book state is discarded, never merged.
func (e *Engine) ApplySnapshot(instrument string, bids, asks []model.PriceLevel) {
	cleanBids := normalizeSide(bids, true)
	cleanAsks := normalizeSide(asks, false)

	b := e.getOrCreate(instrument)

	b.mu.Lock()
	b.bids = cleanBids
	b.asks = cleanAsks
	b.mu.Unlock()

	e.logger.Debug("applied snapshot",
		"instrument", instrument,
		"bids", len(cleanBids),
		"asks", len(cleanAsks),
	)
}

// ApplyDelta merges incremental level changes into the instrument's book.
// Quantity 0 removes the level at that exact price (no-op if absent);
// quantity > 0 upserts by price. Changes with non-positive price are
// discarded. A delta for an instrument with no prior snapshot is dropped.
func (e *Engine) ApplyDelta(instrument string, bidChanges, askChanges []model.PriceLevel) {
	e.mu.RLock()
	b, ok := e.books[instrument]
	e.mu.RUnlock()

	if !ok {
		e.statsMu.Lock()
		e.droppedDeltas++
		e.statsMu.Unlock()
		e.logger.Warn("delta for instrument without snapshot, dropping",
			"instrument", instrument,
		)
		return
	}

	b.mu.Lock()
	for _, ch := range bidChanges {
		b.bids = applyChange(b.bids, ch, true)
	}
	for _, ch := range askChanges {
		b.asks = applyChange(b.asks, ch, false)
	}
	b.mu.Unlock()
}

// BestBidAsk returns the top level of each side. The second return value is
// false if the instrument is unknown or either side is empty - the expected
// steady state before the first snapshot, not an error.
func (e *Engine) BestBidAsk(instrument string) (model.BestBidAsk, bool) {
	e.mu.RLock()
	b, ok := e.books[instrument]
	e.mu.RUnlock()

	if !ok {
		return model.BestBidAsk{}, false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.bids) == 0 || len(b.asks) == 0 {
		return model.BestBidAsk{}, false
	}

	return model.BestBidAsk{
		Instrument: instrument,
		Bid:        b.bids[0],
		Ask:        b.asks[0],
	}, true
}

// Depth returns copies of both sides. The second return value is false if
// the instrument is unknown.
func (e *Engine) Depth(instrument string) (bids, asks []model.PriceLevel, ok bool) {
	e.mu.RLock()
	b, found := e.books[instrument]
	e.mu.RUnlock()

	if !found {
		return nil, nil, false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	bids = make([]model.PriceLevel, len(b.bids))
	copy(bids, b.bids)
	asks = make([]model.PriceLevel, len(b.asks))
	copy(asks, b.asks)
	return bids, asks, true
}

// Drop discards the instrument's book. Called on unsubscribe; the stale
// book must never be patched by later deltas.
func (e *Engine) Drop(instrument string) {
	e.mu.Lock()
	delete(e.books, instrument)
	e.mu.Unlock()
}

// Reset discards all books. Called when the connection is torn down.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.books = make(map[string]*instrumentBook)
	e.mu.Unlock()
}

// Stats returns engine counters.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	books := len(e.books)
	e.mu.RUnlock()

	e.statsMu.Lock()
	dropped := e.droppedDeltas
	e.statsMu.Unlock()

	return Stats{Books: books, DroppedDeltas: dropped}
}

func (e *Engine) getOrCreate(instrument string) *instrumentBook {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, ok := e.books[instrument]
	if !ok {
		b = &instrumentBook{}
		e.books[instrument] = b
	}
	return b
}

// normalizeSide filters invalid levels, deduplicates by price (last wins),
// and sorts. desc selects bid ordering.
func normalizeSide(levels []model.PriceLevel, desc bool) []model.PriceLevel {
	byPrice := make(map[float64]float64, len(levels))
	order := make([]float64, 0, len(levels))
	for _, lv := range levels {
		if lv.Price <= 0 || lv.Quantity <= 0 {
			continue
		}
		if _, seen := byPrice[lv.Price]; !seen {
			order = append(order, lv.Price)
		}
		byPrice[lv.Price] = lv.Quantity
	}

	out := make([]model.PriceLevel, 0, len(order))
	for _, p := range order {
		out = append(out, model.PriceLevel{Price: p, Quantity: byPrice[p]})
	}

	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}

// applyChange upserts or removes a single level, preserving sort order.
// Sort key is price only, so an in-place quantity update never moves the
// level.
func applyChange(levels []model.PriceLevel, ch model.PriceLevel, desc bool) []model.PriceLevel {
	if ch.Price <= 0 {
		return levels
	}

	// Position of the first level at or beyond ch.Price in sort order.
	idx := sort.Search(len(levels), func(i int) bool {
		if desc {
			return levels[i].Price <= ch.Price
		}
		return levels[i].Price >= ch.Price
	})

	exists := idx < len(levels) && levels[idx].Price == ch.Price

	if ch.Quantity <= 0 {
		if !exists {
			return levels
		}
		return append(levels[:idx], levels[idx+1:]...)
	}

	if exists {
		levels[idx].Quantity = ch.Quantity
		return levels
	}

	levels = append(levels, model.PriceLevel{})
	copy(levels[idx+1:], levels[idx:])
	levels[idx] = ch
	return levels
}
