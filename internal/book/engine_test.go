package book

import (
	"testing"

	"github.com/ekurt/marketfeed/internal/model"
)

func levels(pairs ...float64) []model.PriceLevel {
	out := make([]model.PriceLevel, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, model.PriceLevel{Price: pairs[i], Quantity: pairs[i+1]})
	}
	return out
}

func assertSide(t *testing.T, got, want []model.PriceLevel) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("side length = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("level %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEngine_ApplySnapshot_SortsAndFilters(t *testing.T) {
	e := NewEngine(nil)

	// Unsorted input with invalid and duplicate levels.
	e.ApplySnapshot("BTCTRY",
		levels(99, 2, 100, 1, 0, 5, 100, 3, -1, 2, 101, 0),
		levels(103, 1, 101, 1, 102, 2),
	)

	bids, asks, ok := e.Depth("BTCTRY")
	if !ok {
		t.Fatal("book not found after snapshot")
	}

	// Duplicate price 100: last occurrence (qty 3) wins.
	assertSide(t, bids, levels(100, 3, 99, 2))
	assertSide(t, asks, levels(101, 1, 102, 2, 103, 1))
}

func TestEngine_ApplySnapshot_ReplacesNotMerges(t *testing.T) {
	e := NewEngine(nil)

	e.ApplySnapshot("BTCTRY", levels(100, 1, 99, 2), levels(101, 1))
	e.ApplySnapshot("BTCTRY", levels(98, 4), levels(102, 5))

	bids, asks, _ := e.Depth("BTCTRY")
	assertSide(t, bids, levels(98, 4))
	assertSide(t, asks, levels(102, 5))
}

func TestEngine_ApplyDelta_RemoveBestBid(t *testing.T) {
	e := NewEngine(nil)

	e.ApplySnapshot("BTCTRY", levels(100, 1, 99, 2), levels(101, 1))
	e.ApplyDelta("BTCTRY", levels(100, 0), nil)

	bids, asks, _ := e.Depth("BTCTRY")
	assertSide(t, bids, levels(99, 2))
	assertSide(t, asks, levels(101, 1))
}

func TestEngine_ApplyDelta_RemoveAbsentIsNoop(t *testing.T) {
	e := NewEngine(nil)

	e.ApplySnapshot("BTCTRY", levels(100, 1), levels(101, 1))
	e.ApplyDelta("BTCTRY", levels(95, 0), levels(107, 0))

	bids, asks, _ := e.Depth("BTCTRY")
	assertSide(t, bids, levels(100, 1))
	assertSide(t, asks, levels(101, 1))
}

func TestEngine_ApplyDelta_UpdateInPlace(t *testing.T) {
	e := NewEngine(nil)

	e.ApplySnapshot("BTCTRY", levels(100, 1, 99, 2, 98, 3), nil)
	e.ApplyDelta("BTCTRY", levels(99, 7), nil)

	bids, _, _ := e.Depth("BTCTRY")
	// Only the quantity changes; position is fixed by price.
	assertSide(t, bids, levels(100, 1, 99, 7, 98, 3))
}

func TestEngine_ApplyDelta_InsertPreservesOrder(t *testing.T) {
	e := NewEngine(nil)

	e.ApplySnapshot("BTCTRY", levels(100, 1, 98, 3), levels(101, 1, 103, 2))
	e.ApplyDelta("BTCTRY", levels(99, 5, 101.5, 1), levels(102, 4, 100.5, 2))

	bids, asks, _ := e.Depth("BTCTRY")
	assertSide(t, bids, levels(101.5, 1, 100, 1, 99, 5, 98, 3))
	assertSide(t, asks, levels(100.5, 2, 101, 1, 102, 4, 103, 2))
}

func TestEngine_ApplyDelta_NegativePriceDiscarded(t *testing.T) {
	e := NewEngine(nil)

	e.ApplySnapshot("BTCTRY", levels(100, 1), levels(101, 1))
	e.ApplyDelta("BTCTRY", levels(-5, 3, 0, 2), nil)

	bids, _, _ := e.Depth("BTCTRY")
	assertSide(t, bids, levels(100, 1))
}

func TestEngine_ApplyDelta_WithoutSnapshotDropped(t *testing.T) {
	e := NewEngine(nil)

	e.ApplyDelta("ETHTRY", levels(100, 1), nil)

	if _, _, ok := e.Depth("ETHTRY"); ok {
		t.Error("delta without snapshot must not create a book")
	}
	if got := e.Stats().DroppedDeltas; got != 1 {
		t.Errorf("DroppedDeltas = %d, want 1", got)
	}
}

func TestEngine_BestBidAsk(t *testing.T) {
	e := NewEngine(nil)

	if _, ok := e.BestBidAsk("BTCTRY"); ok {
		t.Error("expected unavailable before any snapshot")
	}

	e.ApplySnapshot("BTCTRY", levels(100, 1, 99, 2), levels(101, 3))

	best, ok := e.BestBidAsk("BTCTRY")
	if !ok {
		t.Fatal("expected best bid/ask after snapshot")
	}
	if best.Bid != (model.PriceLevel{Price: 100, Quantity: 1}) {
		t.Errorf("Bid = %v, want {100 1}", best.Bid)
	}
	if best.Ask != (model.PriceLevel{Price: 101, Quantity: 3}) {
		t.Errorf("Ask = %v, want {101 3}", best.Ask)
	}
	if best.Spread() != 1 {
		t.Errorf("Spread = %v, want 1", best.Spread())
	}
}

func TestEngine_BestBidAsk_EmptySideUnavailable(t *testing.T) {
	e := NewEngine(nil)

	e.ApplySnapshot("BTCTRY", levels(100, 1), nil)

	if _, ok := e.BestBidAsk("BTCTRY"); ok {
		t.Error("expected unavailable with an empty ask side")
	}
}

func TestEngine_Drop(t *testing.T) {
	e := NewEngine(nil)

	e.ApplySnapshot("BTCTRY", levels(100, 1), levels(101, 1))
	e.Drop("BTCTRY")

	if _, ok := e.BestBidAsk("BTCTRY"); ok {
		t.Error("expected unavailable after Drop")
	}

	// A late delta for the dropped book must not resurrect it.
	e.ApplyDelta("BTCTRY", levels(100, 2), nil)
	if _, _, ok := e.Depth("BTCTRY"); ok {
		t.Error("delta after Drop must not recreate the book")
	}
}

func TestEngine_Reset(t *testing.T) {
	e := NewEngine(nil)

	e.ApplySnapshot("BTCTRY", levels(100, 1), levels(101, 1))
	e.ApplySnapshot("ETHTRY", levels(50, 1), levels(51, 1))
	e.Reset()

	if got := e.Stats().Books; got != 0 {
		t.Errorf("Books = %d, want 0 after Reset", got)
	}
}

// Sort and uniqueness invariants hold after arbitrary delta sequences.
func TestEngine_InvariantsAfterDeltaSequence(t *testing.T) {
	e := NewEngine(nil)

	e.ApplySnapshot("BTCTRY", levels(100, 1, 99, 1, 98, 1), levels(101, 1, 102, 1))

	seq := [][2][]model.PriceLevel{
		{levels(99.5, 2), levels(101, 0)},
		{levels(100, 0, 97, 5), levels(103, 1, 102, 4)},
		{levels(99.5, 1), levels(101.5, 2, 103, 0)},
		{levels(98, 0, 99, 0), levels(102, 0)},
	}
	for _, d := range seq {
		e.ApplyDelta("BTCTRY", d[0], d[1])
	}

	bids, asks, _ := e.Depth("BTCTRY")

	for i := 1; i < len(bids); i++ {
		if bids[i].Price >= bids[i-1].Price {
			t.Fatalf("bids not strictly descending: %v", bids)
		}
	}
	for i := 1; i < len(asks); i++ {
		if asks[i].Price <= asks[i-1].Price {
			t.Fatalf("asks not strictly ascending: %v", asks)
		}
	}
	for _, lv := range append(append([]model.PriceLevel{}, bids...), asks...) {
		if lv.Quantity <= 0 {
			t.Fatalf("zero-quantity level stored: %v", lv)
		}
	}
}
