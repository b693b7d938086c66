// Package ws streams agent cycle events to WebSocket clients. The agent
// publishes one JSON frame on the signal bus after each notable transition
// (quote committed, decision committed, hash proposed, cycle completed); the
// hub relays those frames verbatim to every connected client.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/safearb/internal/agent"
	"github.com/alanyoungcy/safearb/internal/domain"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// pongWait is how long a client may stay silent before the read side
	// gives up. pingPeriod must stay below it.
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// readLimit caps inbound frames. Clients have nothing to say; anything
	// past control-frame size is a misbehaving peer.
	readLimit = 512

	// sendBuffer is the per-client outgoing queue. A client that falls this
	// far behind starts losing frames.
	sendBuffer = 64

	// resubscribeDelay paces reconnect attempts after the bus subscription
	// drops.
	resubscribeDelay = 5 * time.Second
)

// Config carries the metadata reported in the hello frame and the allowed
// browser origins for the upgrade. An empty Origins list allows every origin.
type Config struct {
	Mode      string
	AgentAddr string
	StartedAt time.Time
	Origins   []string
}

// Hub fans agent cycle events out to connected WebSocket clients. It keeps
// the most recent frame and replays it on connect, so a dashboard joining
// mid-cycle starts from current state instead of a blank screen.
type Hub struct {
	bus       domain.SignalBus
	logger    *slog.Logger
	mode      string
	agent     string
	startedAt time.Time
	upgrader  websocket.Upgrader

	register   chan *client
	unregister chan *client
	frames     chan []byte
	done       chan struct{} // closed when Run exits

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
}

// NewHub creates a Hub reading cycle events from the given signal bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	return &Hub{
		bus:       bus,
		logger:    logger.With(slog.String("component", "ws")),
		mode:      mode,
		agent:     strings.TrimSpace(cfg.AgentAddr),
		startedAt: startedAt,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.Origins),
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		frames:     make(chan []byte, 256),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
}

// originChecker builds the upgrade origin policy. Non-browser clients send no
// Origin header and always pass.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, o := range allowed {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// Run relays bus frames to connected clients until the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	go h.consume(ctx)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = make(map[*client]struct{})
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			last := h.last
			h.mu.Unlock()

			c.enqueue(h.helloFrame())
			if last != nil {
				c.enqueue(last)
			}
			h.logger.Info("ws client connected", slog.Int("clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client disconnected", slog.Int("clients", n))

		case frame := <-h.frames:
			h.mu.Lock()
			h.last = frame
			for c := range h.clients {
				if !c.enqueue(frame) {
					h.logger.Warn("ws dropping frame for slow client")
				}
			}
			h.mu.Unlock()
		}
	}
}

// consume holds the bus subscription open, resubscribing after failures so a
// Redis restart does not silence the stream for good.
func (h *Hub) consume(ctx context.Context) {
	for {
		msgCh, err := h.bus.Subscribe(ctx, agent.EventsChannel)
		if err != nil {
			h.logger.Error("ws subscribe failed",
				slog.String("channel", agent.EventsChannel),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(resubscribeDelay):
				continue
			}
		}

		h.logger.Info("ws subscribed", slog.String("channel", agent.EventsChannel))
		for frame := range msgCh {
			select {
			case h.frames <- frame:
			case <-ctx.Done():
				return
			}
		}

		// Subscription channel closed; back off before retrying.
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

// helloFrame is the first frame every client receives. It shares the flat
// "type" envelope with agent.CycleEvent so clients switch on one field.
func (h *Hub) helloFrame() []byte {
	uptime := int64(time.Since(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}
	frame, err := json.Marshal(map[string]any{
		"type":           "hello",
		"mode":           h.mode,
		"agent":          h.agent,
		"uptime_seconds": uptime,
		"at":             time.Now().UTC(),
	})
	if err != nil {
		return nil
	}
	return frame
}

// HandleWS upgrades the request and hands the connection to the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// client is one WebSocket connection. The hub owns the send channel; the
// pumps own the conn.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// enqueue offers a frame to the client without blocking the hub. It reports
// false when the client's queue is full and the frame was dropped.
func (c *client) enqueue(frame []byte) bool {
	if frame == nil {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// readPump drains the connection so control frames are processed, and tears
// the client down when the peer goes away. Inbound data frames are ignored;
// the stream is one-way.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws unexpected close", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// writePump writes queued frames and periodic pings. It exits when the hub
// closes the send channel or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
