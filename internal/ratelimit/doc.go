// Package ratelimit implements a fixed-window weight budget.
//
// Venue REST endpoints charge a per-request weight against a budget that
// resets at fixed wall-clock intervals. Acquire blocks until the requested
// weight fits in the current window, sleeping across window boundaries when
// the remaining budget is short.
package ratelimit
