package ws

import (
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// command is a client request. The {"subscribe":[...]} and
// {"unsubscribe":[...]} shorthands are accepted alongside the action form.
type command struct {
	Action      string   `json:"action"` // subscribe, unsubscribe, filter, ping
	Channels    []string `json:"channels"`
	Subscribe   []string `json:"subscribe"`
	Unsubscribe []string `json:"unsubscribe"`
	Tokens      []string `json:"tokens"`
}

// client is one WebSocket connection and its subscription state.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	remote string
	send   chan []byte

	mu     sync.RWMutex
	subs   map[string]bool
	tokens map[string]bool // empty means every token
}

func newClient(h *Hub, conn *websocket.Conn, remote string) *client {
	c := &client{
		hub:    h,
		conn:   conn,
		remote: remote,
		send:   make(chan []byte, sendBufferSize),
		subs:   make(map[string]bool, len(relayedChannels)),
		tokens: map[string]bool{},
	}
	for _, ch := range relayedChannels {
		c.subs[ch] = true
	}
	return c
}

// wants reports whether f passes the client's channel and token filters.
func (c *client) wants(f frame) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.subscribed(f.channel) {
		return false
	}
	if f.token == "" || len(c.tokens) == 0 {
		return true
	}
	return c.tokens[f.token]
}

// subscribed matches exact names and "ch:*" style prefixes. Callers hold mu.
func (c *client) subscribed(channel string) bool {
	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

// apply updates the subscription state and returns the reply frame.
func (c *client) apply(cmd command) envelope {
	c.mu.Lock()
	defer c.mu.Unlock()

	add := cmd.Subscribe
	remove := cmd.Unsubscribe
	switch cmd.Action {
	case "subscribe":
		add = append(add, cmd.Channels...)
	case "unsubscribe":
		remove = append(remove, cmd.Channels...)
	case "filter":
		clear(c.tokens)
		for _, t := range cmd.Tokens {
			if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
				c.tokens[t] = true
			}
		}
	case "ping":
		return envelope{Type: "pong"}
	}

	for _, ch := range add {
		if validChannel(ch) {
			c.subs[ch] = true
		}
	}
	for _, ch := range remove {
		delete(c.subs, ch)
	}

	payload, _ := json.Marshal(map[string]any{
		"channels": sortedKeys(c.subs),
		"tokens":   sortedKeys(c.tokens),
	})
	return envelope{Type: "subscribed", Payload: payload}
}

// validChannel accepts relayed channels and prefix patterns over them.
func validChannel(ch string) bool {
	if slices.Contains(relayedChannels, ch) {
		return true
	}
	prefix, ok := strings.CutSuffix(ch, "*")
	return ok && slices.ContainsFunc(relayedChannels, func(r string) bool { return strings.HasPrefix(r, prefix) })
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// enqueue queues a frame without blocking.
func (c *client) enqueue(env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// readPump handles client commands until the connection fails.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("remote", c.remote), slog.String("error", err.Error()))
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.enqueue(envelope{Type: "error", Payload: rawJSON([]byte("malformed command"))})
			continue
		}
		c.enqueue(c.apply(cmd))
	}
}

// writePump writes queued frames and keepalive pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
