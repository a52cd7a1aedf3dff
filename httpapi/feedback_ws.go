package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/codemusic/roverseer-gateway/workflow"
	"github.com/gorilla/websocket"
)

// FeedbackHub is a workflow.Sink that fans out StepFeedback events to any
// number of connected WebSocket clients, grounded on
// itsneelabh-gomind's ui/transports/websocket client registry and
// writePump/readPump split, narrowed from a bidirectional chat transport
// to a one-way feedback broadcast (pause/resume/modify/skip travel over
// the plain /workflow/{id}/{action} endpoints instead).
type FeedbackHub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsFeedbackClient]struct{}
}

type wsFeedbackClient struct {
	conn      *websocket.Conn
	send      chan workflow.Feedback
	execution string
}

// NewFeedbackHub builds an empty hub; register it with workflow.WithSink
// and wire its HandleWebSocket onto a mux path to stream Feedback events.
func NewFeedbackHub() *FeedbackHub {
	return &FeedbackHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsFeedbackClient]struct{}),
	}
}

// Publish implements workflow.Sink. It is called synchronously by the
// engine on every state change, so it must never block on a slow client.
func (h *FeedbackHub) Publish(f workflow.Feedback) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.execution != "" && c.execution != f.StepID {
			continue
		}
		select {
		case c.send <- f:
		default:
			// slow consumer, drop the event rather than block the engine
		}
	}
}

// HandleWebSocket upgrades /workflow/feed?execution={id} to a WebSocket
// stream of Feedback events, optionally scoped to one execution id.
func (h *FeedbackHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "websocket upgrade failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	client := &wsFeedbackClient{
		conn:      conn,
		send:      make(chan workflow.Feedback, 64),
		execution: r.URL.Query().Get("execution"),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writePump(client)
	h.readPump(client)
}

func (h *FeedbackHub) writePump(c *wsFeedbackClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains and discards client messages; the feedback stream is
// one-way, but the read loop is what notices the client went away.
func (h *FeedbackHub) readPump(c *wsFeedbackClient) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.send)
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
