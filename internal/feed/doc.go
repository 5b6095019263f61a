// Package feed is the public facade over the streaming market data core.
//
// A Session owns the connection supervisor, the router, the order book
// engine, the latency tracker, the auth session, and the subscription
// registry, and wires them together: frames flow from the supervisor
// through the router into the books and spools, reconnects replay the
// registry and re-bootstrap order books from REST snapshots, and callers
// read top of book and latency through the Session without touching the
// parts underneath.
package feed
