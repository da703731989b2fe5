package events

import "sync"

type Kind string

const (
	KindInserted  Kind = "inserted"
	KindDelivered Kind = "delivered"
	KindCycleDone Kind = "cycle_done"
)

type Event struct {
	Kind  Kind
	Title string
	URL   string
	Sent  int // cycle_done: deliveries this cycle
}

// Hub fans controller progress out to whoever is watching (the CLI's
// verbose reporter, mainly). Slow subscribers lose events rather than
// stall the loop.
type Hub struct {
	mu      sync.Mutex
	clients map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan Event]struct{})}
}

func (h *Hub) Subscribe() chan Event {
	ch := make(chan Event, 10)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Publish(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- evt:
		default:
			// drop if slow
		}
	}
}
