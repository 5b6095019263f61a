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

// tickerRow is the tickers table shape. The primary key is
// (instrument, exchange_ts) so replayed frames collapse.
type tickerRow struct {
	Instrument string
	Last       float64
	Bid        float64
	Ask        float64
	ExchangeTS int64
	ReceivedAt int64 // unix micros
}

// TickerRecorder drains the ticker spool into the tickers table.
type TickerRecorder struct {
	cfg    Config
	logger *slog.Logger

	input *router.Spool[model.Ticker]
	db    DB

	batchMu     sync.Mutex
	batch       []tickerRow
	metrics     Metrics
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTickerRecorder creates a ticker recorder.
func NewTickerRecorder(cfg Config, input *router.Spool[model.Ticker], db DB, logger *slog.Logger) *TickerRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &TickerRecorder{
		cfg:    cfg,
		logger: logger,
		input:  input,
		db:     db,
		batch:  make([]tickerRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming and flushing.
func (r *TickerRecorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	r.wg.Add(2)
	go r.consumeLoop()
	go r.flushLoop()

	r.logger.Info("ticker recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop drains in-flight work and performs a final flush.
func (r *TickerRecorder) Stop(ctx context.Context) error {
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
		r.logger.Info("ticker recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("ticker recorder stop timed out")
	}

	r.flush(context.Background())
	return nil
}

// Stats returns recorder counters.
func (r *TickerRecorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

func (r *TickerRecorder) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		tick, ok := r.input.TryReceive()
		if !ok {
			select {
			case <-r.ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}

		r.add(transformTicker(tick))
	}
}

func (r *TickerRecorder) flushLoop() {
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

func (r *TickerRecorder) add(row tickerRow) {
	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	full := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if full {
		r.flush(r.ctx)
	}
}

func transformTicker(t model.Ticker) tickerRow {
	return tickerRow{
		Instrument: t.Instrument,
		Last:       t.Last,
		Bid:        t.Bid,
		Ask:        t.Ask,
		ExchangeTS: t.ExchangeTS,
		ReceivedAt: t.ReceivedAt.UnixMicro(),
	}
}

func (r *TickerRecorder) flush(ctx context.Context) {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}
	batch := r.batch
	r.batch = make([]tickerRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	conflicts, err := r.batchInsert(ctx, batch)
	if err != nil {
		r.logger.Error("ticker batch insert failed", "error", err, "count", len(batch))
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

	r.logger.Debug("flushed tickers",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

func (r *TickerRecorder) batchInsert(ctx context.Context, rows []tickerRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO tickers (instrument, last, bid, ask, exchange_ts, received_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (instrument, exchange_ts) DO NOTHING
		`, row.Instrument, row.Last, row.Bid, row.Ask, row.ExchangeTS, row.ReceivedAt)
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
