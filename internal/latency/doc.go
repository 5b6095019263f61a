// Package latency tracks feed delay as exponential moving averages.
//
// Two channels are tracked independently per instrument group:
//   - event latency: local receive time minus the venue's event timestamp
//   - ping round trip: measured by the connection layer's ping loop
//
// Samples outside the sanity window are rejected rather than smoothed in,
// since a clock skew spike would otherwise poison the average for many
// samples.
package latency
