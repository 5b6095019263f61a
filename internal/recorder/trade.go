package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ekurt/marketfeed/internal/model"
	"github.com/ekurt/marketfeed/internal/router"
)

// tradeRow is the trades table shape.
type tradeRow struct {
	TradeID    string
	Instrument string
	Price      float64
	Quantity   float64
	Side       string
	ExchangeTS int64
	ReceivedAt int64 // unix micros
}

// TradeRecorder drains the trade spool into the trades table.
type TradeRecorder struct {
	cfg    Config
	logger *slog.Logger

	input *router.Spool[model.Trade]
	db    DB

	batchMu     sync.Mutex
	batch       []tradeRow
	metrics     Metrics
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTradeRecorder creates a trade recorder.
func NewTradeRecorder(cfg Config, input *router.Spool[model.Trade], db DB, logger *slog.Logger) *TradeRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &TradeRecorder{
		cfg:    cfg,
		logger: logger,
		input:  input,
		db:     db,
		batch:  make([]tradeRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming and flushing.
func (r *TradeRecorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.wg.Add(2)
	go r.consumeLoop()
	go r.flushLoop()

	r.logger.Info("trade recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop drains in-flight work and performs a final flush.
func (r *TradeRecorder) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("trade recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("trade recorder stop timed out")
	}

	r.flush(context.Background())
	return nil
}

// Stats returns recorder counters.
func (r *TradeRecorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

func (r *TradeRecorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		trade, ok := r.input.TryReceive()
		if !ok {
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		r.add(transformTrade(trade))
	}
}

func (r *TradeRecorder) flushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.flushTicker.C:
			r.flush(r.ctx)
		}
	}
}

func (r *TradeRecorder) add(row tradeRow) {
	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	full := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if full {
		r.flush(r.ctx)
	}
}

func transformTrade(t model.Trade) tradeRow {
	return tradeRow{
		TradeID:    t.TradeID,
		Instrument: t.Instrument,
		Price:      t.Price,
		Quantity:   t.Quantity,
		Side:       t.Side,
		ExchangeTS: t.ExchangeTS,
		ReceivedAt: t.ReceivedAt.UnixMicro(),
	}
}

func (r *TradeRecorder) flush(ctx context.Context) {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}
	batch := r.batch
	r.batch = make([]tradeRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	conflicts, err := r.batchInsert(ctx, batch)
	if err != nil {
		r.logger.Error("trade batch insert failed", "error", err, "count", len(batch))
		r.batchMu.Lock()
		r.metrics.Errors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.metrics.Inserts += int64(len(batch) - conflicts)
	r.metrics.Conflicts += int64(conflicts)
	r.metrics.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed trades",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

func (r *TradeRecorder) batchInsert(ctx context.Context, rows []tradeRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO trades (trade_id, instrument, price, quantity, side, exchange_ts, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (trade_id) DO NOTHING
		`, row.TradeID, row.Instrument, row.Price, row.Quantity, row.Side, row.ExchangeTS, row.ReceivedAt)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
