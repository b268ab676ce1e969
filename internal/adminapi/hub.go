package adminapi

import (
	"sync"

	"github.com/signalair/mesh/internal/meshnet"
)

// subscriberHub fans out SecurityEvents to any number of /events SSE
// clients, dropping on a full subscriber channel rather than blocking
// the pump goroutine.
type subscriberHub struct {
	mu   sync.Mutex
	subs map[chan meshnet.SecurityEvent]struct{}
}

func newSubscriberHub() *subscriberHub {
	return &subscriberHub{subs: make(map[chan meshnet.SecurityEvent]struct{})}
}

func (h *subscriberHub) subscribe() chan meshnet.SecurityEvent {
	ch := make(chan meshnet.SecurityEvent, 32)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *subscriberHub) unsubscribe(ch chan meshnet.SecurityEvent) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *subscriberHub) broadcast(ev meshnet.SecurityEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
