package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// -------------------------------------------------------------------------
// Frame layout
// -------------------------------------------------------------------------
//
//	magic(2) | version(1) | type(1) | ttl(1) | flags(1)
//	         | id(16) | source_id(16) | target_id(16, present if flags.bit0)
//	         | origin_ts(8) | payload_len(4) | payload(<=MaxDataPacketSize)
//	         | content_hash(32)
//
// All multi-byte fields are big-endian. flags.bit0 = has-target; all other
// flag bits are reserved and MUST be zero.

// Magic identifies a SignalAir frame on the wire.
const Magic uint16 = 0x5A41 // "ZA"

// Version is the current wire format version. MUST be 1.
const Version uint8 = 1

// flagHasTarget is bit0 of the flags byte.
const flagHasTarget = 1 << 0

// peerIDSize is the fixed on-wire width of SourceID/TargetID. Ephemeral
// peer ids longer than this are truncated at encode time and shorter ones
// are zero-padded; the transport layer is expected to hand out ids that
// fit.
const peerIDSize = 16

// headerFixedSize is the size of the frame up to and including flags:
// magic(2) + version(1) + type(1) + ttl(1) + flags(1).
const headerFixedSize = 6

// contentHashSize is the width of the trailing content hash field.
const contentHashSize = 32

// minFrameSize is the smallest possible valid frame: fixed header + id(16)
// + source_id(16) + origin_ts(8) + payload_len(4) + content_hash(32), with
// no target id and an empty payload.
const minFrameSize = headerFixedSize + 16 + peerIDSize + 8 + 4 + contentHashSize

// Sentinel errors returned by Decode.
var (
	// ErrMalformedFrame covers bad magic, unknown version, truncated
	// input, or bit-inconsistent flags.
	ErrMalformedFrame = errors.New("wire: malformed frame")
	// ErrPayloadTooLarge is returned when payload_len exceeds the codec's
	// configured maximum.
	ErrPayloadTooLarge = errors.New("wire: payload too large")
	// ErrHashMismatch is returned when content_hash does not match the
	// hash of the decoded payload.
	ErrHashMismatch = errors.New("wire: content hash mismatch")
	// ErrUnknownType is returned when the type byte is outside the
	// enumerated Type set.
	ErrUnknownType = errors.New("wire: unknown message type")
)

// Hasher computes the content hash used to validate a decoded payload.
// Production callers plug in the crypto provider's Hash; tests and
// routers built without a crypto provider use Sum256.
type Hasher func(payload []byte) ContentHash

// Codec encodes and decodes Message values to/from the wire frame format.
// A Codec is safe for concurrent use; it holds no mutable state beyond its
// construction-time configuration.
type Codec struct {
	maxPayload int
	hash       Hasher
}

// Option configures a Codec.
type Option func(*Codec)

// WithMaxPayload overrides the default MaxDataPacketSize, e.g. to apply
// the disaster-mode ceiling.
func WithMaxPayload(n int) Option {
	return func(c *Codec) { c.maxPayload = n }
}

// WithHasher overrides the default SHA-256 hasher with the configured
// crypto provider's Hash function.
func WithHasher(h Hasher) Option {
	return func(c *Codec) { c.hash = h }
}

// NewCodec builds a Codec with the given options applied over sane
// defaults (MaxDataPacketSize, Sum256).
func NewCodec(opts ...Option) *Codec {
	c := &Codec{maxPayload: MaxDataPacketSize, hash: Sum256}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode renders m to its wire representation. Encode always succeeds for
// a well-formed Message; the caller is responsible for populating
// ContentHash before calling Encode (the codec does not recompute it).
func (c *Codec) Encode(m Message) []byte {
	size := headerFixedSize + 16 + peerIDSize
	hasTarget := m.TargetID != ""
	if hasTarget {
		size += peerIDSize
	}
	size += 8 + 4 + len(m.Payload) + contentHashSize

	buf := make([]byte, size)
	offset := 0

	binary.BigEndian.PutUint16(buf[offset:], Magic)
	offset += 2
	buf[offset] = Version
	offset++
	buf[offset] = byte(m.Type)
	offset++
	buf[offset] = m.TTL
	offset++

	var flags byte
	if hasTarget {
		flags |= flagHasTarget
	}
	buf[offset] = flags
	offset++

	copy(buf[offset:], m.ID[:])
	offset += 16

	copy(buf[offset:], padPeerID(m.SourceID))
	offset += peerIDSize

	if hasTarget {
		copy(buf[offset:], padPeerID(m.TargetID))
		offset += peerIDSize
	}

	binary.BigEndian.PutUint64(buf[offset:], uint64(m.OriginTimestamp))
	offset += 8

	binary.BigEndian.PutUint32(buf[offset:], uint32(len(m.Payload)))
	offset += 4

	copy(buf[offset:], m.Payload)
	offset += len(m.Payload)

	copy(buf[offset:], m.ContentHash[:])

	return buf
}

// Decode parses a wire frame into a Message, validating magic, version,
// flag consistency, declared length, payload size, content hash, and
// message type. Decode never allocates
// for the payload beyond slicing the input once; the returned Message's
// Payload shares backing storage with data and must be copied by the
// caller before data is reused or released to a pool.
func (c *Codec) Decode(data []byte) (Message, error) {
	if len(data) < minFrameSize {
		return Message{}, fmt.Errorf("%w: frame shorter than minimum %d bytes", ErrMalformedFrame, minFrameSize)
	}

	offset := 0
	magic := binary.BigEndian.Uint16(data[offset:])
	offset += 2
	if magic != Magic {
		return Message{}, fmt.Errorf("%w: bad magic", ErrMalformedFrame)
	}

	version := data[offset]
	offset++
	if version != Version {
		return Message{}, fmt.Errorf("%w: unknown version %d", ErrMalformedFrame, version)
	}

	typ := Type(data[offset])
	offset++

	ttl := data[offset]
	offset++

	flags := data[offset]
	offset++
	if flags&^flagHasTarget != 0 {
		return Message{}, fmt.Errorf("%w: reserved flag bits set", ErrMalformedFrame)
	}
	hasTarget := flags&flagHasTarget != 0

	var m Message
	m.Type = typ
	m.TTL = ttl

	if len(data) < offset+16 {
		return Message{}, fmt.Errorf("%w: truncated id", ErrMalformedFrame)
	}
	copy(m.ID[:], data[offset:offset+16])
	offset += 16

	if len(data) < offset+peerIDSize {
		return Message{}, fmt.Errorf("%w: truncated source id", ErrMalformedFrame)
	}
	m.SourceID = unpadPeerID(data[offset : offset+peerIDSize])
	offset += peerIDSize

	if hasTarget {
		if len(data) < offset+peerIDSize {
			return Message{}, fmt.Errorf("%w: truncated target id", ErrMalformedFrame)
		}
		m.TargetID = unpadPeerID(data[offset : offset+peerIDSize])
		offset += peerIDSize
	}

	if len(data) < offset+8 {
		return Message{}, fmt.Errorf("%w: truncated origin timestamp", ErrMalformedFrame)
	}
	m.OriginTimestamp = int64(binary.BigEndian.Uint64(data[offset:]))
	offset += 8

	if len(data) < offset+4 {
		return Message{}, fmt.Errorf("%w: truncated payload length", ErrMalformedFrame)
	}
	payloadLen := binary.BigEndian.Uint32(data[offset:])
	offset += 4

	if int(payloadLen) > c.maxPayload {
		return Message{}, fmt.Errorf("%w: declared %d bytes, limit %d", ErrPayloadTooLarge, payloadLen, c.maxPayload)
	}

	want := offset + int(payloadLen) + contentHashSize
	if len(data) != want {
		return Message{}, fmt.Errorf("%w: frame length %d, expected %d", ErrMalformedFrame, len(data), want)
	}

	m.Payload = data[offset : offset+int(payloadLen)]
	offset += int(payloadLen)

	copy(m.ContentHash[:], data[offset:offset+contentHashSize])

	if !typ.Valid() {
		return Message{}, fmt.Errorf("%w: type %d", ErrUnknownType, uint8(typ))
	}

	if c.hash != nil && c.hash(m.Payload) != m.ContentHash {
		return Message{}, ErrHashMismatch
	}

	return m, nil
}

// padPeerID renders a PeerID to its fixed-width wire form: truncated if
// too long, zero-padded if too short.
func padPeerID(id PeerID) []byte {
	buf := make([]byte, peerIDSize)
	copy(buf, id)
	return buf
}

// unpadPeerID recovers a PeerID from its fixed-width wire form, trimming
// trailing zero bytes added by padPeerID.
func unpadPeerID(b []byte) PeerID {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return PeerID(b[:end])
}
