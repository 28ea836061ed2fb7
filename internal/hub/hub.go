// Package hub fans events out to connected browser clients over
// Server-Sent Events and WebSocket.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	keepAliveInterval = 30 * time.Second
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	clientBuffer      = 64
)

// Transport names how a client is connected
type Transport string

const (
	TransportSSE       Transport = "sse"
	TransportWebSocket Transport = "ws"
)

// Client represents a connected client
type Client struct {
	id        string
	transport Transport
	events    chan []byte
}

// Hub manages SSE and WebSocket client connections
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan interface{}
	done       chan struct{}
	greeting   func() interface{}
	upgrader   websocket.Upgrader
}

// New creates a new Hub
func New() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan interface{}, 256),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// SetGreeting sets the event sent to every client right after it connects,
// typically the latest snapshot. Must be called before Run.
func (h *Hub) SetGreeting(fn func() interface{}) {
	h.greeting = fn
}

// Run starts the hub's event loop and returns when ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.events)
			}
			h.mu.Unlock()
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("%s client connected: %s (total: %d)", client.transport, client.id, total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.events)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("%s client disconnected: %s (total: %d)", client.transport, client.id, total)

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("Failed to marshal event: %v", err)
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.events <- data:
				default:
					// Client is slow, skip this message
					log.Printf("%s client %s is slow, skipping message", client.transport, client.id)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends an event to all connected clients
func (h *Hub) Broadcast(event interface{}) {
	select {
	case h.broadcast <- event:
	default:
		log.Println("Broadcast channel full, dropping event")
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) newClient(transport Transport) *Client {
	client := &Client{
		id:        uuid.NewString(),
		transport: transport,
		events:    make(chan []byte, clientBuffer),
	}
	if h.greeting != nil {
		if data, err := json.Marshal(h.greeting()); err == nil {
			client.events <- data
		} else {
			log.Printf("Failed to marshal greeting: %v", err)
		}
	}
	return client
}

// join registers a client unless ctx ends or the hub stops first
func (h *Hub) join(ctx context.Context, client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-ctx.Done():
		return false
	case <-h.done:
		return false
	}
}

// leave unregisters a client unless the hub has stopped
func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ServeHTTP handles SSE connections
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Check if client supports SSE
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	client := h.newClient(TransportSSE)
	if !h.join(r.Context(), client) {
		return
	}
	defer h.leave(client)

	// Send initial connection message
	fmt.Fprintf(w, ": connected %s\n\n", client.id)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.events:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
				return
			}
			flusher.Flush()

		case <-ticker.C:
			// Send keep-alive comment
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// ServeWS upgrades the request to a WebSocket and streams events as JSON
// text frames. Incoming frames are read only to detect disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	client := h.newClient(TransportWebSocket)
	if !h.join(r.Context(), client) {
		return
	}
	defer h.leave(client)

	// Reader: handles pongs and close frames
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-closed:
			return

		case <-r.Context().Done():
			return
		}
	}
}
