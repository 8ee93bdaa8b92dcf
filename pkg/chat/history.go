package chat

import (
	"sync"

	"github.com/homelead/askdb/pkg/llm"
)

const historyCapacity = 10

// History keeps the recent conversation per tenant: the message ring fed back
// into the planner, and a per-tenant lock so concurrent requests for one
// tenant run in order.
type History struct {
	mu    sync.Mutex
	rings map[string][]llm.Message
	locks map[string]*sync.Mutex
}

// NewHistory creates an empty store.
func NewHistory() *History {
	return &History{
		rings: map[string][]llm.Message{},
		locks: map[string]*sync.Mutex{},
	}
}

// TenantLock returns the mutex serializing one tenant's turns.
func (h *History) TenantLock(tenantID string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	lock, ok := h.locks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		h.locks[tenantID] = lock
	}
	return lock
}

// Turns returns a copy of the tenant's message ring.
func (h *History) Turns(tenantID string) []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	ring := h.rings[tenantID]
	out := make([]llm.Message, len(ring))
	copy(out, ring)
	return out
}

// Append records one completed turn, evicting the oldest messages past
// capacity.
func (h *History) Append(tenantID, query, reply string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ring := append(h.rings[tenantID],
		llm.Message{Role: llm.RoleUser, Content: query},
		llm.Message{Role: llm.RoleAssistant, Content: reply})
	if len(ring) > historyCapacity {
		ring = ring[len(ring)-historyCapacity:]
	}
	h.rings[tenantID] = ring
}
