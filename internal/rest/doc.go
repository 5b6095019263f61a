// Package rest implements the venue HTTP API client.
//
// The client signs private endpoints with the auth package's HMAC scheme,
// charges every request against the shared rate limit bucket, and retries
// transient failures with jittered exponential backoff. The feed layer
// uses it to bootstrap order book snapshots; order submission is exposed
// for callers that trade.
package rest
