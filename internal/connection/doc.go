// Package connection manages the websocket session to the venue.
//
// Client wraps a single gorilla/websocket connection with serialized
// writes, a read loop, and activity tracking. Supervisor owns the
// connection lifecycle: it dials, hands frames to the router, pings the
// venue to measure round trips, force-closes stale connections, and
// reconnects with exponential backoff. Callers interact with the
// Supervisor only; the Client churns underneath it across reconnects.
package connection
