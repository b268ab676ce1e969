// Package wire implements the binary framing of SignalAir mesh messages:
// the in-memory Message representation, the fixed on-the-wire layout, and
// the codec that converts between the two.
package wire

import (
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
)

// MaxDataPacketSize is the default upper bound on Message.Payload, in
// bytes (1 MiB). A disaster-mode configuration lowers this to 512 KiB;
// see internal/config.
const MaxDataPacketSize = 1 << 20

// DisasterMaxDataPacketSize is the disaster-profile payload ceiling.
const DisasterMaxDataPacketSize = 512 << 10

// Type identifies the kind of message carried on the wire. Each type has
// a fixed relay Priority.
type Type uint8

const (
	// TypeEmergencyMedical is a life-safety medical emergency signal.
	TypeEmergencyMedical Type = iota + 1
	// TypeEmergencyDanger is a life-safety physical danger signal.
	TypeEmergencyDanger
	// TypeSignal is a non-emergency broadcast signal (e.g. "I'm OK").
	TypeSignal
	// TypeChat is a free-text chat message.
	TypeChat
	// TypeGame is opaque game-state payload (e.g. bingo).
	TypeGame
	// TypeSystem is an internal protocol frame (heartbeat, presence).
	TypeSystem
	// TypeKeyExchange carries key-agreement material for the crypto layer.
	TypeKeyExchange
)

// typeNames gives the human-readable name for each Type.
var typeNames = map[Type]string{
	TypeEmergencyMedical: "emergency-medical",
	TypeEmergencyDanger:  "emergency-danger",
	TypeSignal:           "signal",
	TypeChat:             "chat",
	TypeGame:             "game",
	TypeSystem:           "system",
	TypeKeyExchange:      "key-exchange",
}

// String returns the human-readable name for the message type.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(t))
}

// Valid reports whether t is one of the enumerated message types.
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// Priority returns the fixed relay priority for the message type:
// emergency/key-exchange = 3, signal/system = 2, chat/game = 1. Higher
// values are dispatched first by the outbound queue.
func (t Type) Priority() int {
	switch t {
	case TypeEmergencyMedical, TypeEmergencyDanger, TypeKeyExchange:
		return 3
	case TypeSignal, TypeSystem:
		return 2
	case TypeChat, TypeGame:
		return 1
	default:
		return 0
	}
}

// ID is a 128-bit message identifier, globally unique per origin.
type ID [16]byte

// String renders the ID in canonical UUID form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}

// NewID generates a fresh random message id. An origin must never reuse
// an id it has already sent.
func NewID() ID {
	return ID(uuid.New())
}

// PeerID is an ephemeral, transport-assigned peer identity, stable for
// the lifetime of a radio session.
type PeerID string

// ContentHash is a cryptographic digest of a Message's payload, produced
// by the pluggable crypto provider.
type ContentHash [32]byte

// Sum256 is the default, dependency-free content hash used by tests and
// by routers built without a crypto provider. Production deployments are expected to route
// payload hashing through the crypto provider so the hash algorithm can
// be swapped without touching the wire format.
func Sum256(payload []byte) ContentHash {
	return ContentHash(sha256.Sum256(payload))
}

// Message is the atomic unit exchanged on the mesh. Once framed, a
// Message is immutable; relaying produces a new Message
// value with a decremented TTL rather than mutating the original.
type Message struct {
	// ID is globally unique per origin; never reused.
	ID ID
	// Type fixes the message's relay Priority.
	Type Type
	// SourceID is the ephemeral sender identity.
	SourceID PeerID
	// TargetID is the intended recipient; the zero value means
	// broadcast/flood to the whole mesh.
	TargetID PeerID
	// OriginTimestamp is the sender's clock at send time, millisecond
	// resolution.
	OriginTimestamp int64
	// TTL is the hop budget; it strictly decreases along any relay path
	// and the message is dropped once it reaches zero.
	TTL uint8
	// Payload is opaque to the codec; only the application layer
	// interprets it, keyed by Type.
	Payload []byte
	// ContentHash authenticates Payload for dedup/suspicion tracking.
	ContentHash ContentHash
}

// Priority is a convenience accessor for Type.Priority().
func (m Message) Priority() int {
	return m.Type.Priority()
}

// Broadcast reports whether the message has no specific target.
func (m Message) Broadcast() bool {
	return m.TargetID == ""
}

// ReplayKey is the (content_hash, origin_timestamp) pair used by the
// dedup cache's replay-protection table.
type ReplayKey struct {
	Hash ContentHash
	TS   int64
}

// Replay returns the replay-protection key for this message.
func (m Message) Replay() ReplayKey {
	return ReplayKey{Hash: m.ContentHash, TS: m.OriginTimestamp}
}
