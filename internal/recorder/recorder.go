package recorder

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// Config holds batch recorder settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns the default batching parameters.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// DB is the database surface the recorders need. *pgxpool.Pool
// satisfies it.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Metrics contains recorder counters.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
}

// pollInterval is how long a drained consume loop sleeps before checking
// its spool again.
const pollInterval = 10 * time.Millisecond
