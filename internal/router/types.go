package router

// Kind classifies a routed frame.
type Kind int

const (
	KindUnknown Kind = iota
	KindBookSnapshot
	KindBookDelta
	KindTrade
	KindTicker
	KindOrderEvent
	KindLoginResult
	KindControl
)

func (k Kind) String() string {
	switch k {
	case KindBookSnapshot:
		return "book_snapshot"
	case KindBookDelta:
		return "book_delta"
	case KindTrade:
		return "trade"
	case KindTicker:
		return "ticker"
	case KindOrderEvent:
		return "order_event"
	case KindLoginResult:
		return "login_result"
	case KindControl:
		return "control"
	default:
		return "unknown"
	}
}

// Config holds spool sizing for the router.
type Config struct {
	TradeSpoolSize      int
	TickerSpoolSize     int
	OrderEventSpoolSize int
}

// DefaultConfig returns the default spool sizes.
func DefaultConfig() Config {
	return Config{
		TradeSpoolSize:      1000,
		TickerSpoolSize:     1000,
		OrderEventSpoolSize: 500,
	}
}

// Stats contains router counters.
type Stats struct {
	Received    int64
	Routed      int64
	ParseErrors int64
	Unknown     int64
	TradeSpool  SpoolStats
	TickerSpool SpoolStats
	OrderSpool  SpoolStats
}

// Wire formats. Prices and quantities arrive as strings and are parsed to
// float64; levels are [price, quantity] string pairs.

// envelope is used for type extraction before the full parse.
type envelope struct {
	Type string `json:"type"`
}

type bookSnapshotWire struct {
	Instrument string     `json:"instrument"`
	Bids       [][]string `json:"bids"`
	Asks       [][]string `json:"asks"`
	Ts         int64      `json:"ts"`
}

type bookDeltaWire struct {
	Instrument string     `json:"instrument"`
	Bids       [][]string `json:"bids"`
	Asks       [][]string `json:"asks"`
	Ts         int64      `json:"ts"`
}

type tradeWire struct {
	Instrument string `json:"instrument"`
	TradeID    string `json:"trade_id"`
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	Side       string `json:"side"`
	Ts         int64  `json:"ts"`
}

type tickerWire struct {
	Instrument string `json:"instrument"`
	Last       string `json:"last"`
	Bid        string `json:"bid"`
	Ask        string `json:"ask"`
	Ts         int64  `json:"ts"`
}

type orderEventWire struct {
	Event         string `json:"event"`
	OrderID       int64  `json:"order_id"`
	ClientOrderID string `json:"client_order_id"`
	Instrument    string `json:"instrument"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	Side          string `json:"side"`
	Ts            int64  `json:"ts"`
}

type loginResultWire struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

type errorWire struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
