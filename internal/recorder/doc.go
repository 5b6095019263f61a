// Package recorder persists trades and tickers to Postgres.
//
// Each recorder drains a router spool, accumulates rows, and flushes them
// in batches either when the batch fills or on a timer. Inserts use ON
// CONFLICT DO NOTHING so replays after a reconnect never duplicate rows.
package recorder
