package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/safearb/internal/domain"
)

// chanBus is a SignalBus stub whose subscription is fed by the test.
type chanBus struct {
	ch chan []byte
}

func (b *chanBus) Publish(context.Context, string, []byte) error { return nil }

func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.ch, nil
}

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

var _ domain.SignalBus = (*chanBus)(nil)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame %q: %v", data, err)
	}
	return frame
}

func TestHubHelloAndRelay(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte, 4)}
	hub := NewHub(bus, quiet(), Config{Mode: "agent", AgentAddr: "0xabc"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialHub(t, hub)

	hello := readFrame(t, conn)
	if hello["type"] != "hello" || hello["mode"] != "agent" || hello["agent"] != "0xabc" {
		t.Fatalf("hello frame = %v", hello)
	}

	bus.ch <- []byte(`{"type":"quote_committed","cycle":1,"round":1}`)

	event := readFrame(t, conn)
	if event["type"] != "quote_committed" {
		t.Fatalf("relayed frame = %v", event)
	}
}

func TestHubReplaysLastFrameOnConnect(t *testing.T) {
	bus := &chanBus{ch: make(chan []byte, 4)}
	hub := NewHub(bus, quiet(), Config{Mode: "agent"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	first := dialHub(t, hub)
	readFrame(t, first) // hello

	bus.ch <- []byte(`{"type":"cycle_completed","cycle":3}`)
	if frame := readFrame(t, first); frame["type"] != "cycle_completed" {
		t.Fatalf("first client frame = %v", frame)
	}

	// A second client connecting later gets the cached frame after its hello.
	second := dialHub(t, hub)
	if frame := readFrame(t, second); frame["type"] != "hello" {
		t.Fatalf("second client first frame = %v", frame)
	}
	if frame := readFrame(t, second); frame["type"] != "cycle_completed" {
		t.Fatalf("second client replay frame = %v", frame)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", []string{"http://localhost:3000"}, "", true},
		{"empty allowlist", nil, "http://anywhere.example", true},
		{"listed origin", []string{"http://localhost:3000"}, "http://localhost:3000", true},
		{"case folded", []string{"http://Localhost:3000"}, "http://localhost:3000", true},
		{"wildcard", []string{"*"}, "http://anywhere.example", true},
		{"unlisted origin", []string{"http://localhost:3000"}, "http://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := originChecker(tt.allowed)
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := check(req); got != tt.want {
				t.Fatalf("originChecker(%v)(%q) = %v, want %v", tt.allowed, tt.origin, got, tt.want)
			}
		})
	}
}
