package router

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/ekurt/marketfeed/internal/auth"
	"github.com/ekurt/marketfeed/internal/book"
	"github.com/ekurt/marketfeed/internal/latency"
	"github.com/ekurt/marketfeed/internal/model"
)

// Hooks are optional caller callbacks, invoked synchronously on the read
// goroutine. A panicking hook is recovered and logged; it never takes the
// connection down.
type Hooks struct {
	OnTrade      func(model.Trade)
	OnTicker     func(model.Ticker)
	OnOrderEvent func(model.OrderEvent)
	OnBookUpdate func(instrument string)
}

// Router parses raw frames and fans them out.
type Router struct {
	cfg     Config
	logger  *slog.Logger
	books   *book.Engine
	latency *latency.Tracker
	session *auth.Session
	hooks   Hooks

	tradeSpool  *Spool[model.Trade]
	tickerSpool *Spool[model.Ticker]
	orderSpool  *Spool[model.OrderEvent]

	mu          sync.Mutex
	received    int64
	routed      int64
	parseErrors int64
	unknown     int64
}

// New creates a router. books and tracker are required; session may be nil
// when the feed runs unauthenticated.
func New(cfg Config, logger *slog.Logger, books *book.Engine, tracker *latency.Tracker, session *auth.Session, hooks Hooks) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TradeSpoolSize <= 0 {
		cfg.TradeSpoolSize = DefaultConfig().TradeSpoolSize
	}
	if cfg.TickerSpoolSize <= 0 {
		cfg.TickerSpoolSize = DefaultConfig().TickerSpoolSize
	}
	if cfg.OrderEventSpoolSize <= 0 {
		cfg.OrderEventSpoolSize = DefaultConfig().OrderEventSpoolSize
	}

	return &Router{
		cfg:         cfg,
		logger:      logger,
		books:       books,
		latency:     tracker,
		session:     session,
		hooks:       hooks,
		tradeSpool:  NewSpool[model.Trade](cfg.TradeSpoolSize),
		tickerSpool: NewSpool[model.Ticker](cfg.TickerSpoolSize),
		orderSpool:  NewSpool[model.OrderEvent](cfg.OrderEventSpoolSize),
	}
}

// Trades returns the trade output spool.
func (r *Router) Trades() *Spool[model.Trade] { return r.tradeSpool }

// Tickers returns the ticker output spool.
func (r *Router) Tickers() *Spool[model.Ticker] { return r.tickerSpool }

// OrderEvents returns the private order event output spool.
func (r *Router) OrderEvents() *Spool[model.OrderEvent] { return r.orderSpool }

// Close closes the output spools. Called once the connection supervisor has
// stopped feeding frames.
func (r *Router) Close() {
	r.tradeSpool.Close()
	r.tickerSpool.Close()
	r.orderSpool.Close()
}

// Stats returns router counters.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Received:    r.received,
		Routed:      r.routed,
		ParseErrors: r.parseErrors,
		Unknown:     r.unknown,
		TradeSpool:  r.tradeSpool.Stats(),
		TickerSpool: r.tickerSpool.Stats(),
		OrderSpool:  r.orderSpool.Stats(),
	}
}

// Route classifies and dispatches one raw frame. Returns the frame kind;
// malformed frames count as parse errors and report KindUnknown.
func (r *Router) Route(data []byte, receivedAt time.Time) Kind {
	r.count(&r.received)

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.parseError("extracting frame type", err)
		return KindUnknown
	}

	switch env.Type {
	case "orderbook_snapshot":
		return r.routeSnapshot(data, receivedAt)
	case "orderbook_delta":
		return r.routeDelta(data, receivedAt)
	case "trade":
		return r.routeTrade(data, receivedAt)
	case "ticker":
		return r.routeTicker(data, receivedAt)
	case "order_event":
		return r.routeOrderEvent(data, receivedAt)
	case "login_result":
		return r.routeLoginResult(data)
	case "subscribed", "unsubscribed", "pong":
		r.logger.Debug("control frame", "type", env.Type)
		r.count(&r.routed)
		return KindControl
	case "error":
		var wire errorWire
		if err := json.Unmarshal(data, &wire); err == nil {
			r.logger.Warn("venue error frame", "code", wire.Code, "message", wire.Message)
		}
		r.count(&r.routed)
		return KindControl
	default:
		r.logger.Debug("unknown frame type", "type", env.Type)
		r.count(&r.unknown)
		return KindUnknown
	}
}

func (r *Router) routeSnapshot(data []byte, receivedAt time.Time) Kind {
	var wire bookSnapshotWire
	if err := json.Unmarshal(data, &wire); err != nil {
		r.parseError("parsing book snapshot", err)
		return KindUnknown
	}

	r.books.ApplySnapshot(wire.Instrument, parseLevels(wire.Bids), parseLevels(wire.Asks))
	r.observeEvent(wire.Ts, receivedAt)
	r.notifyBook(wire.Instrument)
	r.count(&r.routed)
	return KindBookSnapshot
}

func (r *Router) routeDelta(data []byte, receivedAt time.Time) Kind {
	var wire bookDeltaWire
	if err := json.Unmarshal(data, &wire); err != nil {
		r.parseError("parsing book delta", err)
		return KindUnknown
	}

	r.books.ApplyDelta(wire.Instrument, parseLevels(wire.Bids), parseLevels(wire.Asks))
	r.observeEvent(wire.Ts, receivedAt)
	r.notifyBook(wire.Instrument)
	r.count(&r.routed)
	return KindBookDelta
}

func (r *Router) routeTrade(data []byte, receivedAt time.Time) Kind {
	var wire tradeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		r.parseError("parsing trade", err)
		return KindUnknown
	}
	price, errP := strconv.ParseFloat(wire.Price, 64)
	qty, errQ := strconv.ParseFloat(wire.Quantity, 64)
	if errP != nil || errQ != nil {
		r.parseError("parsing trade fields", firstErr(errP, errQ))
		return KindUnknown
	}

	trade := model.Trade{
		TradeID:    wire.TradeID,
		Instrument: wire.Instrument,
		Price:      price,
		Quantity:   qty,
		Side:       wire.Side,
		ExchangeTS: wire.Ts,
		ReceivedAt: receivedAt,
	}

	r.observeEvent(wire.Ts, receivedAt)
	r.tradeSpool.Push(trade)
	if r.hooks.OnTrade != nil {
		r.safely("trade hook", func() { r.hooks.OnTrade(trade) })
	}
	r.count(&r.routed)
	return KindTrade
}

func (r *Router) routeTicker(data []byte, receivedAt time.Time) Kind {
	var wire tickerWire
	if err := json.Unmarshal(data, &wire); err != nil {
		r.parseError("parsing ticker", err)
		return KindUnknown
	}
	last, errL := strconv.ParseFloat(wire.Last, 64)
	bid, errB := strconv.ParseFloat(wire.Bid, 64)
	ask, errA := strconv.ParseFloat(wire.Ask, 64)
	if errL != nil || errB != nil || errA != nil {
		r.parseError("parsing ticker fields", firstErr(errL, errB, errA))
		return KindUnknown
	}

	ticker := model.Ticker{
		Instrument: wire.Instrument,
		Last:       last,
		Bid:        bid,
		Ask:        ask,
		ExchangeTS: wire.Ts,
		ReceivedAt: receivedAt,
	}

	r.observeEvent(wire.Ts, receivedAt)
	r.tickerSpool.Push(ticker)
	if r.hooks.OnTicker != nil {
		r.safely("ticker hook", func() { r.hooks.OnTicker(ticker) })
	}
	r.count(&r.routed)
	return KindTicker
}

func (r *Router) routeOrderEvent(data []byte, receivedAt time.Time) Kind {
	var wire orderEventWire
	if err := json.Unmarshal(data, &wire); err != nil {
		r.parseError("parsing order event", err)
		return KindUnknown
	}

	var kind model.OrderEventKind
	switch wire.Event {
	case "fill":
		kind = model.OrderFill
	case "inserted":
		kind = model.OrderInserted
	case "deleted":
		kind = model.OrderDeleted
	case "updated":
		kind = model.OrderUpdated
	default:
		r.logger.Debug("unknown order event", "event", wire.Event)
		r.count(&r.unknown)
		return KindUnknown
	}

	// Price and quantity are optional on some lifecycle events.
	price, _ := strconv.ParseFloat(wire.Price, 64)
	qty, _ := strconv.ParseFloat(wire.Quantity, 64)

	ev := model.OrderEvent{
		Kind:          kind,
		OrderID:       wire.OrderID,
		ClientOrderID: wire.ClientOrderID,
		Instrument:    wire.Instrument,
		Price:         price,
		Quantity:      qty,
		Side:          wire.Side,
		ExchangeTS:    wire.Ts,
		ReceivedAt:    receivedAt,
	}

	r.orderSpool.Push(ev)
	if r.hooks.OnOrderEvent != nil {
		r.safely("order event hook", func() { r.hooks.OnOrderEvent(ev) })
	}
	r.count(&r.routed)
	return KindOrderEvent
}

func (r *Router) routeLoginResult(data []byte) Kind {
	var wire loginResultWire
	if err := json.Unmarshal(data, &wire); err != nil {
		r.parseError("parsing login result", err)
		return KindUnknown
	}
	if r.session != nil {
		r.session.HandleResult(wire.OK, wire.Message)
	}
	r.count(&r.routed)
	return KindLoginResult
}

func (r *Router) observeEvent(ts int64, receivedAt time.Time) {
	if r.latency != nil {
		r.latency.ObserveEvent(ts, receivedAt)
	}
}

func (r *Router) notifyBook(instrument string) {
	if r.hooks.OnBookUpdate != nil {
		r.safely("book hook", func() { r.hooks.OnBookUpdate(instrument) })
	}
}

// safely runs a caller hook, recovering panics.
func (r *Router) safely(name string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("hook panicked", "hook", name, "panic", p)
		}
	}()
	fn()
}

func (r *Router) parseError(what string, err error) {
	r.logger.Warn("dropping malformed frame", "stage", what, "error", err)
	r.count(&r.parseErrors)
}

func (r *Router) count(field *int64) {
	r.mu.Lock()
	*field++
	r.mu.Unlock()
}

// parseLevels converts [["100.5","1.2"], ...] pairs. Short or unparseable
// entries are skipped; validity filtering beyond that is the book engine's
// job.
func parseLevels(pairs [][]string) []model.PriceLevel {
	out := make([]model.PriceLevel, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) < 2 {
			continue
		}
		price, errP := strconv.ParseFloat(pair[0], 64)
		qty, errQ := strconv.ParseFloat(pair[1], 64)
		if errP != nil || errQ != nil {
			continue
		}
		out = append(out, model.PriceLevel{Price: price, Quantity: qty})
	}
	return out
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
