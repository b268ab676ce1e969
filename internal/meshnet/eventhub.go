package meshnet

import "sync"

// eventHub fans a SecurityEvent out to every subscriber, dropping on a
// full subscriber channel rather than blocking the emitting goroutine.
// It lets the router serve more than one independent consumer (e.g. a
// structured-logging sink and the admin API's flight recorder) off a
// single emit call instead of racing them over one channel.
type eventHub struct {
	mu   sync.Mutex
	subs map[chan SecurityEvent]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[chan SecurityEvent]struct{})}
}

func (h *eventHub) subscribe(capacity int) chan SecurityEvent {
	ch := make(chan SecurityEvent, capacity)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *eventHub) unsubscribe(ch chan SecurityEvent) {
	h.mu.Lock()
	_, ok := h.subs[ch]
	delete(h.subs, ch)
	h.mu.Unlock()
	if ok {
		close(ch)
	}
}

// broadcast delivers ev to every subscriber, returning true if at least
// one subscriber's buffer was full and the event was dropped for it.
func (h *eventHub) broadcast(ev SecurityEvent) (dropped bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			dropped = true
		}
	}
	return dropped
}
