package services

import (
	"encoding/json"
	"sync"
)

const (
	EventSubmitted = "generation.submitted"
	EventDone      = "generation.done"
	EventFailed    = "generation.failed"
	EventStatus    = "status"
)

type WSEvent struct {
	Type       string `json:"type"`
	JobID      string `json:"jobId,omitempty"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	Generation uint64 `json:"generation,omitempty"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*WSClient
}

func safeCloseBytes(ch chan []byte) {
	defer func() {
		_ = recover()
	}()
	close(ch)
}

func NewHub() *Hub {
	return &Hub{
		clients: map[string]*WSClient{},
	}
}

func (h *Hub) Add(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[c.id]; ok {
		safeCloseBytes(old.send)
		old.close()
	}

	h.clients[c.id] = c
}

// Remove drops the client registered under id, but only if it is still c. A
// reconnect under the same id replaces the old client in Add.
func (h *Hub) Remove(id string, c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.clients[id]; ok && (c == nil || cur == c) {
		delete(h.clients, id)
		safeCloseBytes(cur.send)
		cur.close()
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := h.clients
	h.clients = map[string]*WSClient{}
	h.mu.Unlock()

	for _, c := range clients {
		safeCloseBytes(c.send)
		c.close()
	}
}

func (h *Hub) SendTo(clientId string, event WSEvent) {
	h.mu.RLock()
	c := h.clients[clientId]
	h.mu.RUnlock()

	if c == nil {
		return
	}

	b, _ := json.Marshal(event)
	h.deliver(c, b)
}

// Broadcast sends event to every connected client. Clients whose queue is full are
// dropped.
func (h *Hub) Broadcast(event WSEvent) {
	b, _ := json.Marshal(event)

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.deliver(c, b)
	}
}

func (h *Hub) deliver(c *WSClient, b []byte) {
	defer func() {
		// send raced with a close
		_ = recover()
	}()
	select {
	case c.send <- b:
	default:
		h.Remove(c.id, c)
	}
}
