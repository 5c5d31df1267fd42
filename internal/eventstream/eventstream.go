// Package eventstream implements the supplementary Event Stream
// (SPEC_FULL.md §D2): a read-only gorilla/websocket broadcast of
// health.Snapshot transitions and edit.Outcome summaries. It is
// additive to the Protocol Codec (C4) — no client ever writes to it,
// and it changes no C1-C10 semantics.
package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventKind discriminates the two broadcastable event shapes.
type EventKind string

const (
	HealthTransition   EventKind = "health_transition"
	TransactionSummary EventKind = "transaction_summary"
)

// Event is one broadcast message, tagged with the correlation ID
// (SPEC_FULL.md §D5) of the request that produced it, when applicable.
type Event struct {
	Kind      EventKind `json:"kind"`
	CorrID    string    `json:"corr_id,omitempty"`
	Status    string    `json:"status,omitempty"`    // health.Status for HealthTransition
	PID       int       `json:"pid,omitempty"`       // health.Snapshot.PID for HealthTransition
	Timestamp int64     `json:"timestamp,omitempty"` // health.Snapshot.Timestamp for HealthTransition

	Outcome       string `json:"outcome,omitempty"` // edit.Outcome.Kind name for TransactionSummary
	FilesModified int    `json:"files_modified,omitempty"`
}

// Hub broadcasts Events to every connected WebSocket client. It never
// reads from a client connection beyond the initial upgrade.
type Hub struct {
	addr     string
	upgrader websocket.Upgrader
	server   *http.Server

	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

// NewHub constructs a Hub that will listen on addr ("host:port") once
// Start is called.
func NewHub(addr string) *Hub {
	return &Hub{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[chan []byte]struct{}),
	}
}

// Start begins accepting WebSocket upgrades in the background.
func (h *Hub) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleUpgrade)
	h.server = &http.Server{Addr: h.addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("eventstream: listen on %s: %w", h.addr, err)
	}
	go func() {
		if err := h.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "eventstream: serve: %v\n", err)
		}
	}()
	return nil
}

// Stop shuts the Hub down, closing every client connection.
func (h *Hub) Stop() error {
	h.mu.Lock()
	for ch := range h.clients {
		close(ch)
		delete(h.clients, ch)
	}
	h.mu.Unlock()

	if h.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.server.Shutdown(ctx)
}

// Broadcast publishes e to every connected client, dropping it for any
// client whose buffer is full rather than blocking the caller.
func (h *Hub) Broadcast(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- data:
		default:
		}
	}
}

func (h *Hub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(conn, ch)
}

func (h *Hub) writeLoop(conn *websocket.Conn, ch chan []byte) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, ch)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
