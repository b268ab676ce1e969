package adminapi

import (
	"sync"

	"github.com/signalair/mesh/internal/meshnet"
)

// eventRing is a fixed-capacity flight recorder of recent SecurityEvents,
// so /events can replay recent history to a client before switching it
// to live streaming.
type eventRing struct {
	mu   sync.Mutex
	buf  []meshnet.SecurityEvent
	cap  int
	next int
	full bool
}

func newEventRing(capacity int) *eventRing {
	return &eventRing{buf: make([]meshnet.SecurityEvent, capacity), cap: capacity}
}

func (r *eventRing) push(ev meshnet.SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.next] = ev
	r.next = (r.next + 1) % r.cap
	if r.next == 0 {
		r.full = true
	}
}

// snapshot returns recent events oldest-first.
func (r *eventRing) snapshot() []meshnet.SecurityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		out := make([]meshnet.SecurityEvent, r.next)
		copy(out, r.buf[:r.next])
		return out
	}

	out := make([]meshnet.SecurityEvent, r.cap)
	copy(out, r.buf[r.next:])
	copy(out[r.cap-r.next:], r.buf[:r.next])
	return out
}
