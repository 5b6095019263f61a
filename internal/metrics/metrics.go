package metrics

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Stream traffic
	FramesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketfeed_frames_received_total",
			Help: "WebSocket frames received, by message kind",
		},
		[]string{"kind"},
	)

	ParseErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketfeed_parse_errors_total",
			Help: "Frames that failed to decode",
		},
	)

	// Connection health
	Reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketfeed_reconnects_total",
			Help: "Times the supervisor re-established the stream",
		},
	)

	ConnectionUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketfeed_connection_up",
			Help: "1 while the stream connection is open",
		},
	)

	PingRTT = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketfeed_ping_rtt_seconds",
			Help: "Smoothed WebSocket ping round trip time",
		},
	)

	EventLatency = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketfeed_event_latency_seconds",
			Help: "Smoothed venue-to-local event latency",
		},
	)

	// Order books
	BookDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketfeed_book_depth_levels",
			Help: "Price levels held per instrument and side",
		},
		[]string{"instrument", "side"},
	)

	BestBid = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketfeed_best_bid",
			Help: "Best bid price per instrument",
		},
		[]string{"instrument"},
	)

	BestAsk = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketfeed_best_ask",
			Help: "Best ask price per instrument",
		},
		[]string{"instrument"},
	)

	DroppedDeltas = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "marketfeed_dropped_deltas_total",
			Help: "Deltas discarded because no snapshot was loaded",
		},
	)

	// Persistence
	RecorderInserts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketfeed_recorder_inserts_total",
			Help: "Rows written by the recorders",
		},
		[]string{"table"},
	)

	RecorderConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketfeed_recorder_conflicts_total",
			Help: "Rows skipped by ON CONFLICT DO NOTHING",
		},
		[]string{"table"},
	)

	RecorderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marketfeed_recorder_errors_total",
			Help: "Failed batch flushes",
		},
		[]string{"table"},
	)

	// Spools
	SpoolLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "marketfeed_spool_length",
			Help: "Buffered messages per spool",
		},
		[]string{"spool"},
	)

	// REST budget
	RateLimitRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "marketfeed_rate_limit_remaining_weight",
			Help: "Request weight left in the current window",
		},
	)
)

func init() {
	prometheus.MustRegister(
		FramesReceived,
		ParseErrors,
		Reconnects,
		ConnectionUp,
		PingRTT,
		EventLatency,
		BookDepth,
		BestBid,
		BestAsk,
		DroppedDeltas,
		RecorderInserts,
		RecorderConflicts,
		RecorderErrors,
		SpoolLength,
		RateLimitRemaining,
	)
}

// StartServer serves /metrics on the given port and returns the port it
// actually bound. Port 0 picks a free one.
func StartServer(port int, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if port < 0 {
		port = 0
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("listen on %s: %w", addr, err)
	}

	actualPort := listener.Addr().(*net.TCPAddr).Port
	logger.Info("metrics server listening", "port", actualPort)

	go func() {
		if err := http.Serve(listener, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return actualPort, nil
}

// RecordFrame counts one received frame by kind.
func RecordFrame(kind string) {
	FramesReceived.WithLabelValues(kind).Inc()
}

// RecordTopOfBook publishes the current best bid and ask.
func RecordTopOfBook(instrument string, bid, ask float64) {
	BestBid.WithLabelValues(instrument).Set(bid)
	BestAsk.WithLabelValues(instrument).Set(ask)
}

// RecordLatencies publishes the smoothed latency gauges.
func RecordLatencies(event, rtt time.Duration) {
	EventLatency.Set(event.Seconds())
	PingRTT.Set(rtt.Seconds())
}

type streamSnapshot struct {
	parseErrors   float64
	reconnects    float64
	droppedDeltas float64
}

var (
	lastStreamMu sync.Mutex
	lastStream   streamSnapshot
)

// RecordStream updates the stream counters from absolute running totals,
// emitting only the delta since the last call so the Prometheus counters
// stay monotonic.
func RecordStream(parseErrors, reconnects, droppedDeltas int64) {
	lastStreamMu.Lock()
	defer lastStreamMu.Unlock()

	cur := streamSnapshot{float64(parseErrors), float64(reconnects), float64(droppedDeltas)}
	if d := cur.parseErrors - lastStream.parseErrors; d > 0 {
		ParseErrors.Add(d)
	}
	if d := cur.reconnects - lastStream.reconnects; d > 0 {
		Reconnects.Add(d)
	}
	if d := cur.droppedDeltas - lastStream.droppedDeltas; d > 0 {
		DroppedDeltas.Add(d)
	}
	lastStream = cur
}

type recorderSnapshot struct {
	inserts   float64
	conflicts float64
	errors    float64
}

var (
	lastRecorderMu sync.Mutex
	lastRecorder   = map[string]recorderSnapshot{}
)

// RecordRecorder updates the per-table recorder counters from absolute
// running totals, emitting only the delta since the last call so the
// Prometheus counters stay monotonic.
func RecordRecorder(table string, inserts, conflicts, errs int64) {
	lastRecorderMu.Lock()
	defer lastRecorderMu.Unlock()

	prev := lastRecorder[table]
	cur := recorderSnapshot{float64(inserts), float64(conflicts), float64(errs)}

	if d := cur.inserts - prev.inserts; d > 0 {
		RecorderInserts.WithLabelValues(table).Add(d)
	}
	if d := cur.conflicts - prev.conflicts; d > 0 {
		RecorderConflicts.WithLabelValues(table).Add(d)
	}
	if d := cur.errors - prev.errors; d > 0 {
		RecorderErrors.WithLabelValues(table).Add(d)
	}
	lastRecorder[table] = cur
}
