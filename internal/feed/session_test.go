package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ekurt/marketfeed/internal/connection"
	"github.com/ekurt/marketfeed/internal/model"
	"github.com/ekurt/marketfeed/internal/rest"
	"github.com/ekurt/marketfeed/internal/router"
)

// feedServer is a scriptable venue endpoint for session tests.
type feedServer struct {
	t *testing.T

	mu       sync.Mutex
	conns    []*websocket.Conn
	commands []map[string]string

	server *httptest.Server
}

func newFeedServer(t *testing.T) *feedServer {
	fs := &feedServer{t: t}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	fs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fs.mu.Lock()
		fs.conns = append(fs.conns, conn)
		fs.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd map[string]string
			if json.Unmarshal(data, &cmd) == nil {
				fs.mu.Lock()
				fs.commands = append(fs.commands, cmd)
				fs.mu.Unlock()
			}
		}
	}))
	return fs
}

func (fs *feedServer) url() string {
	return "ws" + strings.TrimPrefix(fs.server.URL, "http")
}

func (fs *feedServer) close() {
	fs.server.Close()
}

func (fs *feedServer) commandCount(action, channel string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n := 0
	for _, cmd := range fs.commands {
		if cmd["type"] == action && cmd["channel"] == channel {
			n++
		}
	}
	return n
}

func (fs *feedServer) push(frame string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.conns) == 0 {
		fs.t.Fatal("push with no connections")
	}
	conn := fs.conns[len(fs.conns)-1]
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		fs.t.Logf("push: %v", err)
	}
}

func (fs *feedServer) dropCurrent() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.conns) > 0 {
		fs.conns[len(fs.conns)-1].Close()
	}
}

func (fs *feedServer) connCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.conns)
}

func fastSessionConfig(url string) Config {
	return Config{
		WSURL: url,
		Supervisor: connection.SupervisorConfig{
			BackoffBase:       10 * time.Millisecond,
			BackoffFactor:     1.5,
			BackoffMax:        100 * time.Millisecond,
			PingInterval:      time.Hour,
			HeartbeatInterval: time.Hour,
			HeartbeatTimeout:  time.Hour,
		},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func TestSession_SubscribeAndStream(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.close()

	s := New(fastSessionConfig(fs.url()), nil, nil, nil, router.Hooks{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stopSession(t, s)

	waitFor(t, "connection open", func() bool { return s.State() == connection.StateOpen })

	if err := s.Subscribe(ChannelOrderBook, "BTCTRY"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitFor(t, "subscribe command", func() bool {
		return fs.commandCount("subscribe", ChannelOrderBook) == 1
	})

	fs.push(`{
		"type": "orderbook_snapshot",
		"instrument": "BTCTRY",
		"bids": [["100", "1"], ["99", "2"]],
		"asks": [["101", "1"]],
		"ts": 1700000000000
	}`)
	waitFor(t, "book built", func() bool {
		_, ok := s.BestBidAsk("BTCTRY")
		return ok
	})

	fs.push(`{
		"type": "orderbook_delta",
		"instrument": "BTCTRY",
		"bids": [["100", "0"]],
		"asks": [],
		"ts": 1700000000100
	}`)
	waitFor(t, "delta applied", func() bool {
		best, ok := s.BestBidAsk("BTCTRY")
		return ok && best.Bid.Price == 99
	})
}

func TestSession_ReconnectReplaysSubscriptions(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.close()

	s := New(fastSessionConfig(fs.url()), nil, nil, nil, router.Hooks{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stopSession(t, s)

	waitFor(t, "connection open", func() bool { return s.State() == connection.StateOpen })

	s.Subscribe(ChannelTrade, "BTCTRY")
	s.Subscribe(ChannelTicker, "BTCTRY")
	waitFor(t, "initial subscribes", func() bool {
		return fs.commandCount("subscribe", ChannelTrade) == 1 &&
			fs.commandCount("subscribe", ChannelTicker) == 1
	})

	fs.dropCurrent()

	waitFor(t, "reconnect", func() bool { return fs.connCount() == 2 })
	waitFor(t, "replayed subscribes", func() bool {
		return fs.commandCount("subscribe", ChannelTrade) == 2 &&
			fs.commandCount("subscribe", ChannelTicker) == 2
	})
	waitFor(t, "open after reconnect", func() bool { return s.State() == connection.StateOpen })
}

func TestSession_BooksResetOnDisconnect(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.close()

	s := New(fastSessionConfig(fs.url()), nil, nil, nil, router.Hooks{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stopSession(t, s)

	waitFor(t, "connection open", func() bool { return s.State() == connection.StateOpen })
	s.Subscribe(ChannelOrderBook, "BTCTRY")

	fs.push(`{
		"type": "orderbook_snapshot",
		"instrument": "BTCTRY",
		"bids": [["100", "1"]],
		"asks": [["101", "1"]],
		"ts": 1700000000000
	}`)
	waitFor(t, "book built", func() bool {
		_, ok := s.BestBidAsk("BTCTRY")
		return ok
	})

	fs.dropCurrent()

	// Stale top of book must become unavailable until a fresh snapshot.
	waitFor(t, "book reset", func() bool {
		_, ok := s.BestBidAsk("BTCTRY")
		return !ok
	})
}

func TestSession_UnsubscribeDropsBook(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.close()

	s := New(fastSessionConfig(fs.url()), nil, nil, nil, router.Hooks{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stopSession(t, s)

	waitFor(t, "connection open", func() bool { return s.State() == connection.StateOpen })
	s.Subscribe(ChannelOrderBook, "BTCTRY")

	fs.push(`{
		"type": "orderbook_snapshot",
		"instrument": "BTCTRY",
		"bids": [["100", "1"]],
		"asks": [["101", "1"]],
		"ts": 1700000000000
	}`)
	waitFor(t, "book built", func() bool {
		_, ok := s.BestBidAsk("BTCTRY")
		return ok
	})

	if err := s.Unsubscribe(ChannelOrderBook, "BTCTRY"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if _, ok := s.BestBidAsk("BTCTRY"); ok {
		t.Error("book still served after Unsubscribe")
	}
	waitFor(t, "unsubscribe command", func() bool {
		return fs.commandCount("unsubscribe", ChannelOrderBook) == 1
	})
}

// snapshotStub serves canned REST snapshots.
type snapshotStub struct {
	mu    sync.Mutex
	calls int
	snap  rest.Snapshot
}

func (s *snapshotStub) FetchSnapshot(ctx context.Context, instrument string, limit int) (rest.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	snap := s.snap
	snap.Instrument = instrument
	return snap, nil
}

func (s *snapshotStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestSession_SnapshotBootstrapOnSubscribe(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.close()

	stub := &snapshotStub{snap: rest.Snapshot{
		Bids:      levels(100, 1),
		Asks:      levels(101, 1),
		Timestamp: 1_700_000_000_000,
	}}

	s := New(fastSessionConfig(fs.url()), nil, nil, stub, router.Hooks{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stopSession(t, s)

	waitFor(t, "connection open", func() bool { return s.State() == connection.StateOpen })
	s.Subscribe(ChannelOrderBook, "BTCTRY")

	// The book fills from REST without any websocket snapshot.
	waitFor(t, "bootstrap applied", func() bool {
		best, ok := s.BestBidAsk("BTCTRY")
		return ok && best.Bid.Price == 100
	})
	if stub.callCount() != 1 {
		t.Errorf("snapshot calls = %d, want 1", stub.callCount())
	}

	// Reconnect re-bootstraps.
	fs.dropCurrent()
	waitFor(t, "re-bootstrap", func() bool { return stub.callCount() >= 2 })
}

// gatedSnapshotStub blocks FetchSnapshot until released.
type gatedSnapshotStub struct {
	release chan struct{}
	snap    rest.Snapshot
}

func (s *gatedSnapshotStub) FetchSnapshot(ctx context.Context, instrument string, limit int) (rest.Snapshot, error) {
	select {
	case <-s.release:
	case <-ctx.Done():
		return rest.Snapshot{}, ctx.Err()
	}
	snap := s.snap
	snap.Instrument = instrument
	return snap, nil
}

func TestSession_SlowBootstrapDoesNotClobberStreamedBook(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.close()

	// The REST snapshot is stale by the time it arrives.
	stub := &gatedSnapshotStub{
		release: make(chan struct{}),
		snap: rest.Snapshot{
			Bids:      levels(90, 1),
			Asks:      levels(91, 1),
			Timestamp: 1_700_000_000_000,
		},
	}

	s := New(fastSessionConfig(fs.url()), nil, nil, stub, router.Hooks{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stopSession(t, s)

	waitFor(t, "connection open", func() bool { return s.State() == connection.StateOpen })
	s.Subscribe(ChannelOrderBook, "BTCTRY")

	// The stream delivers a fresh snapshot while the REST fetch hangs.
	fs.push(`{
		"type": "orderbook_snapshot",
		"instrument": "BTCTRY",
		"bids": [["100", "1"]],
		"asks": [["101", "1"]],
		"ts": 1700000000500
	}`)
	waitFor(t, "streamed book", func() bool {
		best, ok := s.BestBidAsk("BTCTRY")
		return ok && best.Bid.Price == 100
	})

	close(stub.release)
	time.Sleep(150 * time.Millisecond)

	best, ok := s.BestBidAsk("BTCTRY")
	if !ok || best.Bid.Price != 100 || best.Ask.Price != 101 {
		t.Errorf("top of book = %+v ok=%v, stale rest snapshot overwrote the streamed book", best, ok)
	}
}

func TestSession_TradeHookAndSpool(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.close()

	var mu sync.Mutex
	var hookTrades []model.Trade
	s := New(fastSessionConfig(fs.url()), nil, nil, nil, router.Hooks{
		OnTrade: func(tr model.Trade) {
			mu.Lock()
			hookTrades = append(hookTrades, tr)
			mu.Unlock()
		},
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stopSession(t, s)

	waitFor(t, "connection open", func() bool { return s.State() == connection.StateOpen })
	s.Subscribe(ChannelTrade, "BTCTRY")

	fs.push(`{
		"type": "trade",
		"instrument": "BTCTRY",
		"trade_id": "t-9",
		"price": "100.5",
		"quantity": "0.5",
		"side": "sell",
		"ts": 1700000000000
	}`)

	waitFor(t, "trade hook", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(hookTrades) == 1
	})
	mu.Lock()
	got := hookTrades[0]
	mu.Unlock()
	if got.TradeID != "t-9" || got.Side != "sell" {
		t.Errorf("hook trade = %+v", got)
	}

	spooled, ok := s.Trades().TryReceive()
	if !ok || spooled.TradeID != "t-9" {
		t.Errorf("spooled trade = %+v ok=%v", spooled, ok)
	}
}

func levels(pairs ...float64) []model.PriceLevel {
	out := make([]model.PriceLevel, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, model.PriceLevel{Price: pairs[i], Quantity: pairs[i+1]})
	}
	return out
}

func stopSession(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
