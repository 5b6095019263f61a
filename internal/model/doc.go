// Package model defines shared data types used across the marketfeed core.
//
// Conventions:
//   - Instruments: plain string pair symbols (e.g. "BTCTRY", "BTCUSDT")
//   - Prices and quantities: float64 in venue-native units
//   - Exchange timestamps: int64 milliseconds since Unix epoch
//   - Receive timestamps: time.Time captured when the frame left the socket
package model
