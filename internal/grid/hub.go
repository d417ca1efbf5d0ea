package grid

import (
	"sync"

	"github.com/yanun0323/logs"

	"main/internal/conflate"
	"main/internal/model"
	"main/internal/schema"
)

// Hub fans conflated batches out to connected grid clients. It is the
// reference consumer of the conflation subject: wire it with
// subject.Subscribe(hub.Broadcast).
//
// Delivery to clients is non-blocking; a client whose send queue is full is
// dropped so one stalled browser tab cannot back up the flush path.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	reg     *schema.Registry
}

// NewHub creates a hub rendering rows with the given registry's scales.
func NewHub(reg *schema.Registry) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		reg:     reg,
	}
}

// Broadcast encodes a batch once and enqueues it to every connected client.
// Matches the conflate subscriber callback shape.
func (h *Hub) Broadcast(batch conflate.Batch[string, model.Tick]) {
	if len(batch) == 0 {
		return
	}
	payload, err := EncodeBatch(h.reg, batch)
	if err != nil {
		logs.Errorf("grid: encode batch, err: %+v", err)
		return
	}

	h.mu.Lock()
	for client := range h.clients {
		if !client.enqueue(payload) {
			delete(h.clients, client)
			client.close()
			logs.Warnf("grid: dropped slow client %s", client.RemoteAddr())
		}
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.close()
	}
	h.mu.Unlock()
}

// CloseAll disconnects every client, for shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	for client := range h.clients {
		delete(h.clients, client)
		client.close()
	}
	h.mu.Unlock()
}
