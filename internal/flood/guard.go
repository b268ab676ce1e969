// Package flood implements the rate/flood guard: per-peer token-bucket
// admission control, a suspicious-content tracker, and a staged ban
// ledger.
package flood

import (
	"container/list"
	"sync"
	"time"

	"github.com/signalair/mesh/internal/wire"
)

// Verdict is the outcome of Admit.
type Verdict uint8

const (
	// Admitted means the message passed every check.
	Admitted Verdict = iota
	// RateExceeded means one of the peer's token buckets was exhausted.
	RateExceeded
	// Suspicious means the peer is resending identical content beyond
	// the suspicion threshold. A Suspicious verdict always escalates to
	// Banned: the peer is banned with the next stage's duration before
	// Admit returns.
	Suspicious
	// Banned means the peer has an active ban, or was just banned as a
	// result of this call.
	Banned
)

// String renders the verdict for logging/metrics labels.
func (v Verdict) String() string {
	switch v {
	case Admitted:
		return "admitted"
	case RateExceeded:
		return "rate-exceeded"
	case Suspicious:
		return "suspicious"
	case Banned:
		return "banned"
	default:
		return "unknown"
	}
}

// Config holds the rate-limiting and ban-escalation tunables.
type Config struct {
	MaxPerSecond       int
	MaxPerMinute       int
	MaxBurst           int
	Window             time.Duration
	SuspicionThreshold int

	FirstBanDuration time.Duration
	FinalBanDuration time.Duration
	FinalStrike      int

	EmergencyBypassEnabled bool
	EmergencyTypes         map[wire.Type]bool

	// MaxPeerRecords bounds the number of tracked peers; the
	// least-recently-active peer is evicted on overflow.
	MaxPeerRecords int
}

// DefaultConfig returns the default-profile values.
func DefaultConfig() Config {
	return Config{
		MaxPerSecond:           10,
		MaxPerMinute:           100,
		MaxBurst:               20,
		Window:                 60 * time.Second,
		SuspicionThreshold:     5,
		FirstBanDuration:       2 * time.Hour,
		FinalBanDuration:       5 * 24 * time.Hour,
		FinalStrike:            3,
		EmergencyBypassEnabled: true,
		EmergencyTypes: map[wire.Type]bool{
			wire.TypeEmergencyMedical: true,
			wire.TypeEmergencyDanger:  true,
			wire.TypeKeyExchange:      true,
			wire.TypeSystem:           true,
		},
		MaxPeerRecords: 1024,
	}
}

// DisasterConfig returns the disaster-profile values: tighter rate
// limits since degraded links have less spare capacity to absorb abuse.
func DisasterConfig() Config {
	c := DefaultConfig()
	c.MaxPerSecond = 5
	c.MaxPerMinute = 50
	c.MaxBurst = 10
	return c
}

// peerState holds one peer's token buckets, the timestamps at which each
// content hash was seen within the suspicion window, its strike count,
// its ban expiry and its last activity time.
type peerState struct {
	perSecond *tokenBucket
	perMinute *tokenBucket

	mu           sync.Mutex
	sightings    map[wire.ContentHash][]time.Time
	strikeCount  int
	bannedUntil  time.Time
	lastActivity time.Time
}

// Stats is a point-in-time snapshot of ledger occupancy.
type Stats struct {
	CurrentlyBanned int
	Strike1         int
	Strike2         int
	StrikeFinal     int
	TotalHistory    int
}

// Guard is the rate/flood guard. Confined to the mesh execution
// context; the mutex exists so Stats can be read from foreign contexts
// without racing.
type Guard struct {
	mu      sync.Mutex
	cfg     Config
	peers   map[wire.PeerID]*list.Element
	order   *list.List // front = most recently active
	nowFunc func() time.Time

	totalHistory int
}

type peerEntry struct {
	id    wire.PeerID
	state *peerState
}

// New builds a Guard from cfg.
func New(cfg Config) *Guard {
	return &Guard{
		cfg:     cfg,
		peers:   make(map[wire.PeerID]*list.Element),
		order:   list.New(),
		nowFunc: time.Now,
	}
}

// WithClock overrides the guard's time source; used by tests.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.nowFunc = now
	return g
}

func (g *Guard) getOrCreate(peer wire.PeerID, now time.Time) *peerState {
	if el, ok := g.peers[peer]; ok {
		g.order.MoveToFront(el)
		return el.Value.(*peerEntry).state
	}

	st := &peerState{
		// Capacity is the burst ceiling; the per-second rate governs only
		// refill.
		perSecond: newTokenBucket(float64(g.cfg.MaxBurst), float64(g.cfg.MaxPerSecond), now),
		perMinute: newTokenBucket(float64(g.cfg.MaxPerMinute), float64(g.cfg.MaxPerMinute)/60, now),
		sightings: make(map[wire.ContentHash][]time.Time),
	}
	el := g.order.PushFront(&peerEntry{id: peer, state: st})
	g.peers[peer] = el
	g.totalHistory++

	if g.cfg.MaxPeerRecords > 0 && g.order.Len() > g.cfg.MaxPeerRecords {
		oldest := g.order.Back()
		if oldest != nil {
			g.order.Remove(oldest)
			delete(g.peers, oldest.Value.(*peerEntry).id)
		}
	}
	return st
}

// Admit performs the atomic banned -> rate -> suspicious admission
// sequence. Emergency-typed messages bypass every check (and do not
// consume tokens or accrue suspicion) when EmergencyBypassEnabled is set.
func (g *Guard) Admit(peer wire.PeerID, m wire.Message) Verdict {
	now := g.nowFunc()

	g.mu.Lock()
	st := g.getOrCreate(peer, now)
	g.mu.Unlock()

	if g.cfg.EmergencyBypassEnabled && g.cfg.EmergencyTypes[m.Type] {
		st.mu.Lock()
		st.lastActivity = now
		st.mu.Unlock()
		return Admitted
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	st.lastActivity = now

	if now.Before(st.bannedUntil) {
		return Banned
	}

	if !st.perSecond.allow(now) || !st.perMinute.allow(now) {
		return RateExceeded
	}

	if g.recordSighting(st, m.ContentHash, now) >= g.cfg.SuspicionThreshold {
		g.banLocked(st, now)
		return Banned
	}

	return Admitted
}

// recordSighting appends now to the content hash's sliding window,
// pruning entries older than cfg.Window, and returns the resulting count.
// Caller must hold st.mu.
func (g *Guard) recordSighting(st *peerState, hash wire.ContentHash, now time.Time) int {
	cutoff := now.Add(-g.cfg.Window)
	times := st.sightings[hash]

	pruned := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}
	pruned = append(pruned, now)
	st.sightings[hash] = pruned
	return len(pruned)
}

// banLocked applies the next ban stage to st. Caller must hold st.mu.
// A new strike at or beyond FinalStrike refreshes (rather than ignores)
// the final ban's expiry.
func (g *Guard) banLocked(st *peerState, now time.Time) {
	st.strikeCount++

	duration := g.cfg.FirstBanDuration
	if st.strikeCount >= g.cfg.FinalStrike {
		duration = g.cfg.FinalBanDuration
	}
	st.bannedUntil = now.Add(duration)
}

// Unban clears peer's active ban without decrementing its strike count.
func (g *Guard) Unban(peer wire.PeerID) {
	now := g.nowFunc()
	g.mu.Lock()
	st := g.getOrCreate(peer, now)
	g.mu.Unlock()

	st.mu.Lock()
	st.bannedUntil = time.Time{}
	st.mu.Unlock()
}

// Reset clears peer's strikes, active ban, and suspicion table. This is
// the only operation that reduces strike count; it is never reset as a
// side effect of ordinary traffic, only by an explicit administrative
// reset call.
func (g *Guard) Reset(peer wire.PeerID) {
	now := g.nowFunc()
	g.mu.Lock()
	st := g.getOrCreate(peer, now)
	g.mu.Unlock()

	st.mu.Lock()
	st.strikeCount = 0
	st.bannedUntil = time.Time{}
	st.sightings = make(map[wire.ContentHash][]time.Time)
	st.mu.Unlock()
}

// Stats returns a point-in-time snapshot across all tracked peers.
func (g *Guard) Stats() Stats {
	now := g.nowFunc()

	g.mu.Lock()
	defer g.mu.Unlock()

	stats := Stats{TotalHistory: g.totalHistory}
	for el := g.order.Front(); el != nil; el = el.Next() {
		st := el.Value.(*peerEntry).state
		st.mu.Lock()
		if now.Before(st.bannedUntil) {
			stats.CurrentlyBanned++
		}
		switch {
		case st.strikeCount == 0:
		case st.strikeCount == 1:
			stats.Strike1++
		case st.strikeCount == 2:
			stats.Strike2++
		default:
			stats.StrikeFinal++
		}
		st.mu.Unlock()
	}
	return stats
}
