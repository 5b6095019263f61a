// Package router parses raw websocket frames and routes them to the
// in-process consumers.
//
// Book frames go straight into the order book engine, event timestamps
// feed the latency tracker, login results feed the auth session, and
// trades, tickers and private order events are staged in growable spools
// for downstream consumers. Malformed frames are logged and dropped; a bad
// frame never tears down the connection.
package router
