// Package trust implements the trust ledger: a per-peer reputation score
// updated by discrete events, projected into a read-only tier used by
// the Mesh Router.
package trust

import (
	"sync"

	"github.com/signalair/mesh/internal/wire"
)

// InitialScore is the score assigned to a peer on first observation.
const InitialScore = 50

// MinScore and MaxScore bound the clamped score range.
const (
	MinScore = 0
	MaxScore = 100
)

// Event identifies a discrete, scoreable behavior.
type Event uint8

const (
	// EventSuccessfulCommunication rewards a well-formed, first-seen,
	// admitted message that is a broadcast or addressed to this node.
	EventSuccessfulCommunication Event = iota
	// EventDuplicateMessage penalizes a peer for resending an already-seen
	// message.
	EventDuplicateMessage
	// EventExcessiveRetransmission penalizes repeated retransmission of
	// identical content beyond a normal retry cadence.
	EventExcessiveRetransmission
	// EventMaliciousContent penalizes payload content flagged as
	// malicious by an upper layer.
	EventMaliciousContent
	// EventInvalidSignature penalizes a message whose crypto-provider
	// signature check failed.
	EventInvalidSignature
	// EventExcessiveBroadcast penalizes a peer broadcasting more than 50
	// messages in a 60 second window.
	EventExcessiveBroadcast
)

// deltas maps each event to its score delta.
var deltas = map[Event]int{
	EventSuccessfulCommunication: 1,
	EventDuplicateMessage:        -3,
	EventExcessiveRetransmission: -5,
	EventMaliciousContent:        -25,
	EventInvalidSignature:        -20,
	EventExcessiveBroadcast:      -10,
}

// String renders the event for logging.
func (e Event) String() string {
	switch e {
	case EventSuccessfulCommunication:
		return "successful-communication"
	case EventDuplicateMessage:
		return "duplicate-message"
	case EventExcessiveRetransmission:
		return "excessive-retransmission"
	case EventMaliciousContent:
		return "malicious-content"
	case EventInvalidSignature:
		return "invalid-signature"
	case EventExcessiveBroadcast:
		return "excessive-broadcast"
	default:
		return "unknown"
	}
}

// Tier is a read-only projection of a peer's score, used by the Mesh
// Router to weight its relay fan-out.
type Tier uint8

const (
	// TierBlacklisted is score == 0: excluded from outbound relay fan-out.
	TierBlacklisted Tier = iota
	// TierUntrusted is score in [1, 19].
	TierUntrusted
	// TierSuspicious is score in [20, 49]: relays receive a floored TTL.
	TierSuspicious
	// TierNormal is score in [50, 79].
	TierNormal
	// TierTrusted is score in [80, 100].
	TierTrusted
)

// String renders the tier for logging and metrics labels.
func (t Tier) String() string {
	switch t {
	case TierBlacklisted:
		return "blacklisted"
	case TierUntrusted:
		return "untrusted"
	case TierSuspicious:
		return "suspicious"
	case TierNormal:
		return "normal"
	case TierTrusted:
		return "trusted"
	default:
		return "unknown"
	}
}

// tierOf projects a clamped score into its tier.
func tierOf(score int) Tier {
	switch {
	case score == 0:
		return TierBlacklisted
	case score <= 19:
		return TierUntrusted
	case score <= 49:
		return TierSuspicious
	case score <= 79:
		return TierNormal
	default:
		return TierTrusted
	}
}

// Statistics is an aggregate snapshot across every tracked peer.
type Statistics struct {
	Total      int
	Trusted    int
	Normal     int
	Suspicious int
	Untrusted  int
	Blacklisted int
	Average    float64
}

// Ledger is the trust ledger. Its methods are primarily called from the
// mesh execution context; the mutex exists so ScoreOf/TierOf/Statistics
// can be read from foreign contexts (e.g. the admin API) without racing.
type Ledger struct {
	mu     sync.Mutex
	scores map[wire.PeerID]int
}

// New builds an empty Ledger.
func New() *Ledger {
	return &Ledger{scores: make(map[wire.PeerID]int)}
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Record applies event's delta to peer's score, creating the peer at
// InitialScore if this is its first appearance, and returns the resulting
// clamped score.
func (l *Ledger) Record(peer wire.PeerID, event Event) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	score, ok := l.scores[peer]
	if !ok {
		score = InitialScore
	}
	score = clamp(score + deltas[event])
	l.scores[peer] = score
	return score
}

// ScoreOf returns peer's current score, creating it at InitialScore if
// unseen.
func (l *Ledger) ScoreOf(peer wire.PeerID) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	score, ok := l.scores[peer]
	if !ok {
		score = InitialScore
		l.scores[peer] = score
	}
	return score
}

// TierOf returns peer's current tier, creating it at InitialScore if
// unseen.
func (l *Ledger) TierOf(peer wire.PeerID) Tier {
	return tierOf(l.ScoreOf(peer))
}

// Forget removes peer from the ledger entirely. The admin API's reset
// operation calls this after resetting the peer in the Rate/Flood Guard.
func (l *Ledger) Forget(peer wire.PeerID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.scores, peer)
}

// Statistics aggregates across every tracked peer.
func (l *Ledger) Statistics() Statistics {
	l.mu.Lock()
	defer l.mu.Unlock()

	var stats Statistics
	stats.Total = len(l.scores)
	if stats.Total == 0 {
		return stats
	}

	sum := 0
	for _, score := range l.scores {
		sum += score
		switch tierOf(score) {
		case TierTrusted:
			stats.Trusted++
		case TierNormal:
			stats.Normal++
		case TierSuspicious:
			stats.Suspicious++
		case TierUntrusted:
			stats.Untrusted++
		case TierBlacklisted:
			stats.Blacklisted++
		}
	}
	stats.Average = float64(sum) / float64(stats.Total)
	return stats
}
