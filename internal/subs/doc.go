// Package subs tracks the desired channel subscriptions.
//
// The registry is the source of truth for what the session wants to be
// subscribed to, independent of what the venue currently has. On every
// reconnect the whole registry is replayed in registration order, which is
// what makes reconnects transparent to callers.
package subs
