package meshnet

import (
	"time"

	"github.com/signalair/mesh/internal/wire"
)

// SecurityEventKind identifies the category of a SecurityEvent.
type SecurityEventKind uint8

const (
	MalformedFrame SecurityEventKind = iota
	Duplicate
	RateExceeded
	Suspicious
	Banned
	PeerJoined
	PeerLeft
	MessageExpired
	TransportError
)

// String renders the event kind for logging and SSE payloads.
func (k SecurityEventKind) String() string {
	switch k {
	case MalformedFrame:
		return "MalformedFrame"
	case Duplicate:
		return "Duplicate"
	case RateExceeded:
		return "RateExceeded"
	case Suspicious:
		return "Suspicious"
	case Banned:
		return "Banned"
	case PeerJoined:
		return "PeerJoined"
	case PeerLeft:
		return "PeerLeft"
	case MessageExpired:
		return "MessageExpired"
	case TransportError:
		return "TransportError"
	default:
		return "Unknown"
	}
}

// Severity classifies how urgently an operator should look at an event.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

// String renders the severity for logging and SSE payloads.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// SecurityEvent is one entry in the router's non-blocking observability
// stream.
type SecurityEvent struct {
	At       time.Time
	Kind     SecurityEventKind
	Peer     wire.PeerID
	Severity Severity
	Detail   string
}

func severityFor(kind SecurityEventKind) Severity {
	switch kind {
	case PeerJoined, PeerLeft, MessageExpired:
		return SeverityInfo
	case Duplicate, RateExceeded:
		return SeverityWarning
	case MalformedFrame, Suspicious, Banned, TransportError:
		return SeverityCritical
	default:
		return SeverityInfo
	}
}
