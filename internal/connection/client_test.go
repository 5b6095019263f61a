package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test websocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClient_ConnectAndClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(ClientConfig{URL: wsURL(server)}, nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected = false after Connect")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected = true after Close")
	}

	// Second close is a no-op.
	if err := client.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestClient_Send(t *testing.T) {
	var mu sync.Mutex
	var received []byte

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = msg
			mu.Unlock()
		}
	})
	defer server.Close()

	client := NewClient(ClientConfig{URL: wsURL(server)}, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	payload := []byte(`{"type": "subscribe", "channel": "trade"}`)
	if err := client.Send(payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if string(received) != string(payload) {
		t.Errorf("server received %q, want %q", received, payload)
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	client := NewClient(ClientConfig{URL: "ws://localhost:1"}, nil)

	if err := client.Send([]byte("x")); err != ErrNotConnected {
		t.Errorf("Send = %v, want ErrNotConnected", err)
	}
}

func TestClient_Frames(t *testing.T) {
	frames := []string{
		`{"type": "ticker", "instrument": "BTCTRY"}`,
		`{"type": "trade", "instrument": "BTCTRY"}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(ClientConfig{URL: wsURL(server)}, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	timeout := time.After(2 * time.Second)
	for i, want := range frames {
		select {
		case frame := <-client.Frames():
			if string(frame.Data) != want {
				t.Errorf("frame %d = %q, want %q", i, frame.Data, want)
			}
			if frame.ReceivedAt.IsZero() {
				t.Error("ReceivedAt is zero")
			}
		case <-timeout:
			t.Fatalf("timeout after %d frames", i)
		}
	}
}

func TestClient_PingMeasuresRTT(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// gorilla's default ping handler answers with a matching pong.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	rttCh := make(chan time.Duration, 1)
	client := NewClient(ClientConfig{
		URL: wsURL(server),
		OnPong: func(rtt time.Duration) {
			select {
			case rttCh <- rtt:
			default:
			}
		},
	}, nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	if err := client.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	select {
	case rtt := <-rttCh:
		if rtt <= 0 || rtt > 5*time.Second {
			t.Errorf("rtt = %v, implausible", rtt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no pong received")
	}
}

func TestClient_LastActivityAdvances(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(100 * time.Millisecond)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "pong"}`))
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(ClientConfig{URL: wsURL(server)}, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	initial := client.LastActivity()
	<-client.Frames()

	if !client.LastActivity().After(initial) {
		t.Error("LastActivity did not advance on inbound frame")
	}
}

func TestClient_ServerDisconnectSurfacesError(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.Close()
	})
	defer server.Close()

	client := NewClient(ClientConfig{URL: wsURL(server)}, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	select {
	case <-client.Errors():
	case <-time.After(2 * time.Second):
		t.Fatal("no error surfaced after server disconnect")
	}
}
