// Package chatbot is the operator's command/notification bridge: a
// WebSocket-fed transport the operator's chat client connects to, plus
// a command router that dispatches the operator commands into the core
// pipeline. It is deliberately thin: no message formatting beyond JSON
// envelopes, no UI. The hub serves exactly one upgrade endpoint, so it
// sits on a bare net/http mux rather than a routing framework.
package chatbot

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"btcfutures-agent/internal/logging"
	"btcfutures-agent/internal/notifier"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// envelope is the wire shape for both directions: an inbound command
// from the operator, or an outbound notification/acknowledgement.
type envelope struct {
	Command string `json:"command,omitempty"`
	Args    string `json:"args,omitempty"`
	Title   string `json:"title,omitempty"`
	Body    string `json:"body,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
	Time    string `json:"time,omitempty"`
}

// client is one connected operator session.
type client struct {
	conn *websocket.Conn
	send chan envelope
	mu   sync.Mutex
}

// Hub manages connected operator WebSocket clients and fans outbound
// notifications out to all of them. It also implements
// notifier.Transport so it can be registered directly as a notifier
// Channel's transport, serving as the admin channel.
type Hub struct {
	router *Router
	log    *logging.Logger

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewHub builds a Hub that dispatches inbound commands to router.
func NewHub(router *Router, log *logging.Logger) *Hub {
	if log == nil {
		log = logging.Default()
	}
	return &Hub{
		router:  router,
		log:     log.WithComponent("chatbot"),
		clients: make(map[*client]bool),
	}
}

// Name implements notifier.Transport.
func (h *Hub) Name() string { return "chatbot" }

// IsEnabled implements notifier.Transport; the hub is always enabled —
// it simply has zero recipients until an operator connects.
func (h *Hub) IsEnabled() bool { return true }

// Send implements notifier.Transport: broadcast msg to every connected
// operator session. A client whose send buffer is full misses this
// message (it stays connected) rather than blocking the broadcast.
func (h *Hub) Send(msg notifier.Message) error {
	env := envelope{
		Title:   msg.Title,
		Body:    msg.Body,
		IsError: msg.IsError,
		Time:    msg.Timestamp.Format(time.RFC3339),
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- env:
		default:
			h.log.Warn("skipping message for slow chatbot client")
		}
	}
	return nil
}

// ServeHTTP upgrades the connection and runs the client's read/write
// pumps until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err.Error())
		return
	}
	c := &client{conn: conn, send: make(chan envelope, 32)}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer h.disconnect(c)
	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Command == "" {
			continue
		}
		reply, isErr := h.router.Dispatch(env.Command, env.Args)
		c.send <- envelope{Title: env.Command, Body: reply, IsError: isErr, Time: time.Now().Format(time.RFC3339)}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case env, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) disconnect(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}
