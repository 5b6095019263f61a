package model

import "time"

// PriceLevel is a single (price, quantity) pair in an order book side.
// Levels with zero quantity are never stored; a zero-quantity delta means
// "remove this price".
type PriceLevel struct {
	Price    float64
	Quantity float64
}

// BestBidAsk is the top of book for one instrument.
type BestBidAsk struct {
	Instrument string
	Bid        PriceLevel
	Ask        PriceLevel
}

// Spread returns the ask/bid price difference.
func (b BestBidAsk) Spread() float64 {
	return b.Ask.Price - b.Bid.Price
}

// Trade is an executed public trade.
type Trade struct {
	TradeID    string    // Venue trade ID
	Instrument string    // Pair symbol
	Price      float64   // Execution price
	Quantity   float64   // Executed amount
	Side       string    // "buy" or "sell" (taker side)
	ExchangeTS int64     // Venue event timestamp (ms since epoch)
	ReceivedAt time.Time // Local receive timestamp
}

// Ticker is a best-price summary update.
type Ticker struct {
	Instrument string
	Last       float64
	Bid        float64
	Ask        float64
	ExchangeTS int64 // Venue event timestamp (ms since epoch)
	ReceivedAt time.Time
}

// OrderEventKind discriminates private order events.
type OrderEventKind string

const (
	OrderFill     OrderEventKind = "fill"
	OrderInserted OrderEventKind = "inserted"
	OrderDeleted  OrderEventKind = "deleted"
	OrderUpdated  OrderEventKind = "updated"
)

// OrderEvent is a private order lifecycle event. Delivered only on
// authenticated sessions; the core forwards these to the caller without
// further interpretation.
type OrderEvent struct {
	Kind          OrderEventKind
	OrderID       int64
	ClientOrderID string
	Instrument    string
	Price         float64
	Quantity      float64
	Side          string // "buy" or "sell"
	ExchangeTS    int64  // Venue event timestamp (ms since epoch)
	ReceivedAt    time.Time
}
