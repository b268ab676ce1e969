// Package transport defines the contract the Mesh Router consumes from
// the underlying radio/link layer: byte-oriented, message-framed,
// unreliable delivery tagged by opaque peer identity. Concrete
// transports (BLE, Wi-Fi Direct, or the in-memory loopback used by
// tests) live in their own packages and are injected into the router
// at construction.
package transport

import (
	"context"

	"github.com/signalair/mesh/internal/wire"
)

// EventKind identifies the kind of transport event.
type EventKind uint8

const (
	// PeerConnected reports a newly observed peer.
	PeerConnected EventKind = iota
	// PeerDisconnected reports a peer that is no longer reachable.
	PeerDisconnected
	// BytesReceived carries one inbound frame from a peer.
	BytesReceived
)

// String renders the event kind for logging.
func (k EventKind) String() string {
	switch k {
	case PeerConnected:
		return "peer-connected"
	case PeerDisconnected:
		return "peer-disconnected"
	case BytesReceived:
		return "bytes-received"
	default:
		return "unknown"
	}
}

// Event is one notification from the transport's event stream. Peer is
// always set; Data is set only for BytesReceived.
type Event struct {
	Kind EventKind
	Peer wire.PeerID
	Data []byte
}

// Transport is the contract the Mesh Router consumes. Connect/disconnect
// events MUST be delivered at least once each; the transport is
// authoritative for peer identity within a session.
type Transport interface {
	// Send transmits one frame to peer. Implementations are unreliable:
	// a returned error indicates only that this attempt failed, not that
	// the peer is gone.
	Send(ctx context.Context, peer wire.PeerID, frame []byte) error

	// Events returns the transport's event stream. The channel is closed
	// once the transport is done (after Close, or on fatal internal
	// error). The router trampolines every event onto its own execution
	// context before touching shared state.
	Events() <-chan Event

	// Close releases transport resources. Idempotent.
	Close() error
}
