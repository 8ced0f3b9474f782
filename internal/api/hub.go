package api

import (
	"sync"

	"github.com/SoarinFerret/AttokWarden/internal/render"
)

// Hub fans render frames out to stream subscribers. A slow subscriber never
// blocks the others; its backlog collapses into one frame that keeps the
// strongest mode.
type Hub struct {
	mu   sync.Mutex
	subs map[chan render.Request]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan render.Request]struct{})}
}

func (h *Hub) Subscribe() (<-chan render.Request, func()) {
	ch := make(chan render.Request, 4)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

func (h *Hub) Broadcast(r render.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- r:
			continue
		default:
		}
		merged := r
	drain:
		for {
			select {
			case old := <-ch:
				if old.Mode > merged.Mode {
					merged.Mode = old.Mode
				}
			default:
				break drain
			}
		}
		ch <- merged
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
