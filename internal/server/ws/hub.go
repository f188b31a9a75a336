// Package ws relays signal bus traffic to dashboard clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// relayedChannels are the bus channels a client may subscribe to. New
// connections start subscribed to all of them.
var relayedChannels = []string{
	domain.ChannelEvents,
	domain.ChannelInvalidate,
	domain.ChannelSettings,
	domain.ChannelWhale,
}

// Config captures runtime metadata for the status frame and the origins the
// upgrade accepts.
type Config struct {
	Mode      string
	StartedAt time.Time
	// Origins lists allowed Origin headers; empty or "*" allows any.
	Origins []string
}

// envelope is the frame format sent to clients. Payload is the raw JSON
// published on the bus channel.
type envelope struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// frame is one relayed bus message, encoded once for every recipient.
type frame struct {
	channel string
	token   string // upper-cased token of an event payload, "" otherwise
	data    []byte
}

// Hub owns the connected clients. A single goroutine (Run) mutates the
// client set; relay goroutines feed it frames from the bus.
type Hub struct {
	bus       domain.SignalBus
	upgrader  websocket.Upgrader
	mode      string
	startedAt time.Time
	logger    *slog.Logger

	frames     chan frame
	register   chan *client
	unregister chan *client
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a Hub reading from bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	h := &Hub{
		bus:        bus,
		mode:       mode,
		startedAt:  startedAt,
		logger:     logger.With(slog.String("component", "ws_hub")),
		frames:     make(chan frame, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.Origins),
	}
	return h
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Run relays bus traffic until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	var relays sync.WaitGroup
	for _, ch := range relayedChannels {
		relays.Add(1)
		go func() {
			defer relays.Done()
			h.relay(ctx, ch)
		}()
	}
	defer relays.Wait()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", slog.String("remote", c.remote), slog.Int("clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", slog.String("remote", c.remote), slog.Int("clients", n))

		case f := <-h.frames:
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(f) {
					continue
				}
				select {
				case c.send <- f.data:
				default:
					h.logger.Warn("dropping frame for slow client",
						slog.String("remote", c.remote),
						slog.String("channel", f.channel),
					)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// relay forwards one bus channel into the frame loop.
func (h *Hub) relay(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("bus subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	for data := range msgs {
		encoded, err := json.Marshal(envelope{Type: "message", Channel: channel, Payload: rawJSON(data)})
		if err != nil {
			continue
		}
		f := frame{channel: channel, data: encoded}
		if channel == domain.ChannelEvents || channel == domain.ChannelWhale {
			f.token = payloadToken(data)
		}
		select {
		case h.frames <- f:
		case <-ctx.Done():
			return
		}
	}
}

// HandleWS upgrades the request and registers the connection.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn, r.RemoteAddr)
	c.enqueue(h.statusFrame())
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) statusFrame() envelope {
	payload, _ := json.Marshal(map[string]any{
		"mode":           h.mode,
		"ws_connected":   true,
		"uptime_seconds": max(int64(time.Since(h.startedAt).Seconds()), 0),
		"channels":       relayedChannels,
	})
	return envelope{Type: "status", Payload: payload}
}

func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 || slices.Contains(origins, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.ContainsFunc(origins, func(o string) bool { return strings.EqualFold(o, origin) })
	}
}

// rawJSON passes valid JSON through and quotes anything else.
func rawJSON(data []byte) json.RawMessage {
	if json.Valid(data) {
		return data
	}
	quoted, _ := json.Marshal(string(data))
	return quoted
}

// payloadToken extracts the token of an annotated event payload.
func payloadToken(data []byte) string {
	var p struct {
		Token string `json:"token"`
	}
	if json.Unmarshal(data, &p) != nil {
		return ""
	}
	return strings.ToUpper(p.Token)
}
