// Package looptransport is an in-memory transport implementation used by
// tests and by the single-process demo wiring in cmd/signalaircore. Peers
// sharing a Hub observe each other's PeerConnected/PeerDisconnected/
// BytesReceived events exactly as a real radio transport would, without
// any actual I/O.
package looptransport

import (
	"context"
	"errors"
	"sync"

	"github.com/signalair/mesh/internal/transport"
	"github.com/signalair/mesh/internal/wire"
)

// ErrClosed is returned by Send once the transport has been closed.
var ErrClosed = errors.New("looptransport: closed")

// ErrUnknownPeer is returned by Send when no peer is registered under
// that id on the hub.
var ErrUnknownPeer = errors.New("looptransport: unknown peer")

// Hub is the shared medium joining a set of in-memory Transport
// instances. Production deployments have no analog to Hub; it exists so
// tests and the single-process demos can construct a small mesh topology
// without a real radio.
type Hub struct {
	mu      sync.Mutex
	members map[wire.PeerID]*Transport
}

// NewHub builds an empty Hub.
func NewHub() *Hub {
	return &Hub{members: make(map[wire.PeerID]*Transport)}
}

// Join registers a new Transport under id, announcing it (PeerConnected)
// to every already-joined member and announcing every already-joined
// member to the new one.
func (h *Hub) Join(id wire.PeerID) *Transport {
	h.mu.Lock()
	defer h.mu.Unlock()

	t := &Transport{
		id:     id,
		hub:    h,
		events: make(chan transport.Event, 256),
	}
	for peer, other := range h.members {
		t.deliver(transport.Event{Kind: transport.PeerConnected, Peer: peer})
		other.deliver(transport.Event{Kind: transport.PeerConnected, Peer: id})
	}
	h.members[id] = t
	return t
}

func (h *Hub) leave(id wire.PeerID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.members[id]; !ok {
		return
	}
	delete(h.members, id)
	for _, other := range h.members {
		other.deliver(transport.Event{Kind: transport.PeerDisconnected, Peer: id})
	}
}

func (h *Hub) send(from, to wire.PeerID, frame []byte) error {
	h.mu.Lock()
	dst, ok := h.members[to]
	h.mu.Unlock()
	if !ok {
		return ErrUnknownPeer
	}
	dst.deliver(transport.Event{Kind: transport.BytesReceived, Peer: from, Data: frame})
	return nil
}

// Transport is one hub member's Transport handle.
type Transport struct {
	id     wire.PeerID
	hub    *Hub
	events chan transport.Event

	mu     sync.Mutex
	closed bool
}

// deliver sends ev on t.events, or drops it if t is closed or its buffer
// is full. The closed check and the send happen under the same lock as
// Close's close(t.events), so a deliver can never observe closed==false
// and then send after the channel has been closed out from under it.
func (t *Transport) deliver(ev transport.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.events <- ev:
	default:
		// Unreliable by contract: a full buffer drops the event rather
		// than blocking the hub.
	}
}

// Send implements transport.Transport.
func (t *Transport) Send(_ context.Context, peer wire.PeerID, frame []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return t.hub.send(t.id, peer, frame)
}

// Events implements transport.Transport.
func (t *Transport) Events() <-chan transport.Event {
	return t.events
}

// Close implements transport.Transport. Idempotent.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.events)
	t.mu.Unlock()

	t.hub.leave(t.id)
	return nil
}
