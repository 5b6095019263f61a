// Package book implements the order book engine.
//
// The engine:
//   - Maintains one bid/ask ladder pair per subscribed instrument
//   - Replaces the whole book atomically on snapshot
//   - Applies incremental deltas (upsert on quantity > 0, remove on 0)
//   - Keeps each side strictly sorted and price-unique after every mutation
//   - Drops deltas for instruments with no prior snapshot
//
// Locking is scoped per instrument so concurrent updates to different books
// do not contend on a global lock.
package book
