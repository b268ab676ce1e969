// Package meshnet implements the Mesh Router: the pipeline that owns
// the neighbor set, runs inbound and outbound forwarding, and exposes
// the application-facing send/receive API. It ties together the Codec,
// Dedup Cache, Rate/Flood Guard, Trust Ledger, and Self-Destruct
// Tracker behind a single select-loop execution context, generalized
// from one peer to an arbitrary neighbor set.
package meshnet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalair/mesh/internal/cryptoprovider"
	"github.com/signalair/mesh/internal/dedup"
	"github.com/signalair/mesh/internal/destruct"
	"github.com/signalair/mesh/internal/flood"
	"github.com/signalair/mesh/internal/obsmetrics"
	"github.com/signalair/mesh/internal/transport"
	"github.com/signalair/mesh/internal/trust"
	"github.com/signalair/mesh/internal/wire"
)

// ErrStopped is returned by Broadcast/SendTo once the router has been
// stopped.
var ErrStopped = errors.New("meshnet: router stopped")

// ErrPayloadTooLarge is returned by Broadcast/SendTo when payload exceeds
// the configured max data packet size.
var ErrPayloadTooLarge = errors.New("meshnet: payload too large")

const drainBatch = 64

// eventChannelCapacity is the per-subscriber buffer depth for the
// SecurityEvent stream.
const eventChannelCapacity = 256

// excessiveBroadcastThreshold and excessiveBroadcastWindow bound how
// many broadcast-typed messages a single peer may originate before it
// trips EventExcessiveBroadcast: more than 50 in a 60 second window.
const (
	excessiveBroadcastThreshold = 50
	excessiveBroadcastWindow    = 60 * time.Second
)

type connState uint8

const (
	stateConnecting connState = iota
	stateConnected
)

type peerRecord struct {
	id       wire.PeerID
	state    connState
	lastSeen time.Time

	broadcastWindowStart time.Time
	broadcastCount       int
}

type fanoutTarget struct {
	id   wire.PeerID
	tier trust.Tier
}

// Option configures a Router at construction.
type Option func(*Router)

// WithLogger attaches a structured logger; defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) { r.logger = logger }
}

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.nowFunc = now }
}

// WithMetrics attaches a Prometheus collector; nil (the default) disables
// metrics collection entirely.
func WithMetrics(m *obsmetrics.Collector) Option {
	return func(r *Router) { r.metrics = m }
}

// WithCryptoProvider routes the router's content-hash computation
// (Codec decode validation and originated-message hashing) through
// provider's Hash instead of the dependency-free default. Payload
// encryption stays the application's concern; this only swaps the hash
// algorithm underneath the wire format.
func WithCryptoProvider(provider cryptoprovider.Provider) Option {
	return func(r *Router) { r.hasher = provider.Hash }
}

// Router is the Mesh Router.
type Router struct {
	cfg       Config
	codec     *wire.Codec
	dedup     *dedup.Cache
	guard     *flood.Guard
	trust     *trust.Ledger
	tracker   *destruct.Tracker
	transport transport.Transport
	selfID    wire.PeerID
	logger    *slog.Logger
	nowFunc   func() time.Time
	metrics   *obsmetrics.Collector
	hasher    wire.Hasher

	mu        sync.Mutex
	neighbors map[wire.PeerID]*peerRecord

	outbound *outboundQueue

	cbMu               sync.Mutex
	onReceive          func(wire.Message)
	onPeerConnected    func(wire.PeerID)
	onPeerDisconnected func(wire.PeerID)

	eventHub *eventHub
	events   chan SecurityEvent

	sendWG   sync.WaitGroup
	stopOnce sync.Once
	stopped  atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// New builds a Router. cfg is validated; an invalid configuration returns
// ErrInvalidConfig and no partial Router exists.
func New(cfg Config, selfID wire.PeerID, tport transport.Transport, opts ...Option) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Router{
		cfg:       cfg,
		dedup:     dedup.NewCache(),
		guard:     flood.New(cfg.Rate),
		trust:     trust.New(),
		tracker:   destruct.New(cfg.Destruct),
		transport: tport,
		selfID:    selfID,
		logger:    slog.Default(),
		nowFunc:   time.Now,
		hasher:    wire.Sum256,
		neighbors: make(map[wire.PeerID]*peerRecord),
		outbound:  newOutboundQueue(cfg.OutboundQueueCap),
		eventHub:  newEventHub(),
	}
	r.events = r.eventHub.subscribe(eventChannelCapacity)
	for _, opt := range opts {
		opt(r)
	}
	// codec is built last so a WithCryptoProvider option applied above
	// takes effect in the codec's hasher too.
	r.codec = wire.NewCodec(wire.WithMaxPayload(cfg.MaxDataPacketSize), wire.WithHasher(r.hasher))
	return r, nil
}

// Start connects to the transport event stream and begins heartbeats.
func (r *Router) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	r.tracker.Start(runCtx)
	go r.run(runCtx)
}

// Stop refuses further sends, drains the outbound queue within
// cfg.StopDrainDeadline, cancels heartbeats and the self-destruct sweep,
// then releases the transport. Stop is idempotent and safe to call from
// the shutdown path.
func (r *Router) Stop() {
	r.stopOnce.Do(func() {
		r.stopped.Store(true)

		deadline := r.nowFunc().Add(r.cfg.StopDrainDeadline)
		for r.outbound.len() > 0 && r.nowFunc().Before(deadline) {
			r.drainOutbound(context.Background())
		}

		waitCh := make(chan struct{})
		go func() {
			r.sendWG.Wait()
			close(waitCh)
		}()
		select {
		case <-waitCh:
		case <-time.After(time.Until(deadline)):
		}

		if r.cancel != nil {
			r.cancel()
			<-r.done
		}
		r.tracker.Stop()
		if err := r.transport.Close(); err != nil {
			r.logger.Warn("transport close failed", slog.String("error", err.Error()))
		}
	})
}

// Events returns the router's default non-blocking SecurityEvent stream.
// It is one subscription among possibly several: every subscriber
// (Events' own channel and any additional Subscribe calls) receives its
// own copy of each event, so consumers never compete for the same
// delivery.
func (r *Router) Events() <-chan SecurityEvent { return r.events }

// Subscribe registers an additional, independent SecurityEvent consumer
// alongside Events(), e.g. for the admin API's flight-recorder ring and
// SSE fan-out. The returned func releases the subscription and closes
// the channel; callers must invoke it once done consuming.
func (r *Router) Subscribe() (<-chan SecurityEvent, func()) {
	ch := r.eventHub.subscribe(eventChannelCapacity)
	return ch, func() { r.eventHub.unsubscribe(ch) }
}

// OnReceive registers the callback invoked once per first-seen message
// destined to the local node (or broadcast).
func (r *Router) OnReceive(cb func(wire.Message)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.onReceive = cb
}

// OnPeerConnected registers the callback invoked when a new peer joins
// the neighbor set.
func (r *Router) OnPeerConnected(cb func(wire.PeerID)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.onPeerConnected = cb
}

// OnPeerDisconnected registers the callback invoked when a peer leaves
// the neighbor set.
func (r *Router) OnPeerDisconnected(cb func(wire.PeerID)) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	r.onPeerDisconnected = cb
}

// ConnectedPeers returns the current neighbor set.
func (r *Router) ConnectedPeers() []wire.PeerID {
	r.mu.Lock()
	defer r.mu.Unlock()

	peers := make([]wire.PeerID, 0, len(r.neighbors))
	for id := range r.neighbors {
		peers = append(peers, id)
	}
	return peers
}

// TrustLedger exposes the trust ledger for introspection (e.g. the admin
// API); callers must not mutate ledger state directly.
func (r *Router) TrustLedger() *trust.Ledger { return r.trust }

// FloodGuard exposes the rate/flood guard for introspection and
// administrative unban/reset calls.
func (r *Router) FloodGuard() *flood.Guard { return r.guard }

// DedupCache exposes the dedup cache for introspection.
func (r *Router) DedupCache() *dedup.Cache { return r.dedup }

// Tracker exposes the self-destruct tracker for introspection.
func (r *Router) Tracker() *destruct.Tracker { return r.tracker }

// QueueDepth returns the current outbound priority queue length.
func (r *Router) QueueDepth() int { return r.outbound.len() }

// Broadcast frames a message with ttl = DefaultTTL and an absent target,
// records it in Dedup and Self-Destruct, and enqueues it for outbound
// flood. It returns immediately; no public core operation blocks on I/O.
func (r *Router) Broadcast(payload []byte, typ wire.Type) (wire.ID, error) {
	return r.originate(payload, typ, "")
}

// SendTo is as Broadcast but with target_id = peer.
func (r *Router) SendTo(peer wire.PeerID, payload []byte, typ wire.Type) (wire.ID, error) {
	return r.originate(payload, typ, peer)
}

func (r *Router) originate(payload []byte, typ wire.Type, target wire.PeerID) (wire.ID, error) {
	if r.stopped.Load() {
		return wire.ID{}, ErrStopped
	}
	if len(payload) > r.cfg.MaxDataPacketSize {
		return wire.ID{}, fmt.Errorf("payload %d bytes exceeds %d: %w", len(payload), r.cfg.MaxDataPacketSize, ErrPayloadTooLarge)
	}

	msg := wire.Message{
		ID:              wire.NewID(),
		Type:            typ,
		SourceID:        r.selfID,
		TargetID:        target,
		OriginTimestamp: r.nowFunc().UnixMilli(),
		TTL:             r.cfg.DefaultTTL,
		Payload:         payload,
		ContentHash:     r.hasher(payload),
	}

	r.dedup.Observe(msg)
	r.tracker.Track(msg.ID, msg.Type, msg.Priority())

	if r.metrics != nil {
		r.metrics.MessagesOriginated.Inc()
	}
	if dropped := r.outbound.push(msg, ""); dropped != nil {
		r.logger.Warn("outbound queue overflow, dropped lowest-priority message",
			slog.String("dropped_id", dropped.msg.ID.String()))
		if r.metrics != nil {
			r.metrics.IncDropped("queue_overflow")
		}
	}
	return msg.ID, nil
}

func (r *Router) run(ctx context.Context) {
	defer close(r.done)

	heartbeat := time.NewTicker(r.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	drain := time.NewTicker(10 * time.Millisecond)
	defer drain.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-r.transport.Events():
			if !ok {
				return
			}
			r.handleTransportEvent(ctx, ev)

		case <-heartbeat.C:
			r.sendHeartbeats(ctx)
			r.checkPeerTimeouts()

		case <-drain.C:
			r.drainOutbound(ctx)
			r.sampleMetrics()

		case ev := <-r.tracker.Events():
			r.emit(SecurityEvent{Kind: MessageExpired, Detail: ev.ID.String()})
		}
	}
}

func (r *Router) handleTransportEvent(ctx context.Context, ev transport.Event) {
	switch ev.Kind {
	case transport.PeerConnected:
		r.connectPeer(ev.Peer)
	case transport.PeerDisconnected:
		r.disconnectPeer(ev.Peer)
	case transport.BytesReceived:
		r.handleInbound(ctx, ev.Peer, ev.Data)
	}
}

func (r *Router) connectPeer(peer wire.PeerID) {
	r.mu.Lock()
	if _, ok := r.neighbors[peer]; ok {
		r.mu.Unlock()
		return
	}
	if len(r.neighbors) >= r.cfg.MaxConnections {
		r.mu.Unlock()
		r.logger.Warn("max_connections reached, rejecting peer", slog.String("peer", string(peer)))
		return
	}
	r.neighbors[peer] = &peerRecord{id: peer, state: stateConnected, lastSeen: r.nowFunc()}
	r.mu.Unlock()

	r.emit(SecurityEvent{Kind: PeerJoined, Peer: peer})
	r.cbMu.Lock()
	cb := r.onPeerConnected
	r.cbMu.Unlock()
	if cb != nil {
		cb(peer)
	}
}

func (r *Router) disconnectPeer(peer wire.PeerID) {
	r.mu.Lock()
	_, existed := r.neighbors[peer]
	delete(r.neighbors, peer)
	r.mu.Unlock()
	if !existed {
		return
	}

	r.emit(SecurityEvent{Kind: PeerLeft, Peer: peer})
	r.cbMu.Lock()
	cb := r.onPeerDisconnected
	r.cbMu.Unlock()
	if cb != nil {
		cb(peer)
	}
}

func (r *Router) touchPeer(peer wire.PeerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pr, ok := r.neighbors[peer]; ok {
		pr.lastSeen = r.nowFunc()
	}
}

// recordBroadcast tallies a broadcast-typed message from peer within a
// tumbling excessiveBroadcastWindow, returning true the first time the
// window's count exceeds excessiveBroadcastThreshold. The count resets
// once the window elapses, so it only fires once per offending window.
func (r *Router) recordBroadcast(peer wire.PeerID) bool {
	now := r.nowFunc()

	r.mu.Lock()
	defer r.mu.Unlock()
	pr, ok := r.neighbors[peer]
	if !ok {
		return false
	}
	if now.Sub(pr.broadcastWindowStart) > excessiveBroadcastWindow {
		pr.broadcastWindowStart = now
		pr.broadcastCount = 0
	}
	pr.broadcastCount++
	return pr.broadcastCount == excessiveBroadcastThreshold+1
}

func (r *Router) checkPeerTimeouts() {
	now := r.nowFunc()

	r.mu.Lock()
	var timedOut []wire.PeerID
	for id, pr := range r.neighbors {
		if now.Sub(pr.lastSeen) > r.cfg.PeerTimeout {
			timedOut = append(timedOut, id)
		}
	}
	r.mu.Unlock()

	for _, id := range timedOut {
		r.disconnectPeer(id)
	}
}

func (r *Router) sendHeartbeats(ctx context.Context) {
	peers := r.ConnectedPeers()
	if len(peers) == 0 {
		return
	}

	hb := wire.Message{
		ID:              wire.NewID(),
		Type:            wire.TypeSystem,
		SourceID:        r.selfID,
		OriginTimestamp: r.nowFunc().UnixMilli(),
		TTL:             1,
		ContentHash:     r.hasher(nil),
	}
	for _, peer := range peers {
		r.sendWG.Add(1)
		go r.sendWithRetry(ctx, peer, hb)
	}
}

// handleInbound runs a received frame through decode, dedup, rate/flood
// guard, and trust scoring before delivering or relaying it.
func (r *Router) handleInbound(ctx context.Context, peer wire.PeerID, frame []byte) {
	r.touchPeer(peer)

	msg, err := r.codec.Decode(frame)
	if err != nil {
		r.emit(SecurityEvent{Kind: MalformedFrame, Peer: peer, Detail: err.Error()})
		r.trust.Record(peer, trust.EventMaliciousContent)
		if r.metrics != nil {
			r.metrics.IncDropped("malformed")
		}
		return
	}

	if r.dedup.Observe(msg) == dedup.Duplicate {
		r.emit(SecurityEvent{Kind: Duplicate, Peer: peer})
		r.trust.Record(peer, trust.EventDuplicateMessage)
		if r.metrics != nil {
			r.metrics.IncDropped("duplicate")
		}
		return
	}

	switch r.guard.Admit(peer, msg) {
	case flood.RateExceeded:
		r.emit(SecurityEvent{Kind: RateExceeded, Peer: peer})
		if r.metrics != nil {
			r.metrics.IncDropped("rate_exceeded")
		}
		return
	case flood.Suspicious:
		r.emit(SecurityEvent{Kind: Suspicious, Peer: peer})
		if r.metrics != nil {
			r.metrics.IncDropped("suspicious")
		}
		return
	case flood.Banned:
		r.emit(SecurityEvent{Kind: Banned, Peer: peer})
		if r.metrics != nil {
			r.metrics.IncDropped("banned")
			// The guard does not surface which stage (first/final) it
			// just applied versus an already-active ban, so this is
			// recorded under a generic stage rather than left unwired.
			r.metrics.IncBan("unknown")
		}
		return
	}

	if msg.Broadcast() && r.recordBroadcast(peer) {
		r.emit(SecurityEvent{Kind: Suspicious, Peer: peer, Detail: "excessive broadcast rate"})
		r.trust.Record(peer, trust.EventExcessiveBroadcast)
	}

	if msg.Broadcast() || msg.TargetID == r.selfID {
		r.trust.Record(peer, trust.EventSuccessfulCommunication)
		r.tracker.Track(msg.ID, msg.Type, msg.Priority())

		// System frames (heartbeat, presence) are internal protocol
		// traffic, not application payload; they are never delivered.
		if msg.Type != wire.TypeSystem {
			r.cbMu.Lock()
			cb := r.onReceive
			r.cbMu.Unlock()
			if cb != nil {
				cb(msg)
			}
			if r.metrics != nil {
				r.metrics.MessagesDelivered.Inc()
			}
		}
	}

	if msg.TTL > 1 {
		relayed := msg
		relayed.TTL = msg.TTL - 1
		if dropped := r.outbound.push(relayed, peer); dropped != nil {
			r.logger.Warn("outbound queue overflow, dropped lowest-priority message",
				slog.String("dropped_id", dropped.msg.ID.String()))
			if r.metrics != nil {
				r.metrics.IncDropped("queue_overflow")
			}
		}
	}
}

func (r *Router) drainOutbound(ctx context.Context) {
	for i := 0; i < drainBatch; i++ {
		item := r.outbound.pop()
		if item == nil {
			return
		}
		r.dispatchOutbound(ctx, item)
	}
}

func (r *Router) dispatchOutbound(ctx context.Context, item *outboundItem) {
	targets := r.computeFanout(item.msg.SourceID, item.relayExcludeSender)
	if len(targets) > 0 && r.metrics != nil {
		r.metrics.MessagesRelayed.Inc()
	}
	for _, target := range targets {
		out := item.msg
		if target.tier == trust.TierSuspicious && out.TTL > r.cfg.SuspiciousTTLCap {
			out.TTL = r.cfg.SuspiciousTTLCap
		}
		r.sendWG.Add(1)
		go r.sendWithRetry(ctx, target.id, out)
	}
}

// computeFanout is the relay fan-out: connected peers minus {origin,
// immediate sender}, excluding blacklisted tiers.
func (r *Router) computeFanout(origin, excludeSender wire.PeerID) []fanoutTarget {
	r.mu.Lock()
	ids := make([]wire.PeerID, 0, len(r.neighbors))
	for id := range r.neighbors {
		if id == origin || (excludeSender != "" && id == excludeSender) {
			continue
		}
		ids = append(ids, id)
	}
	r.mu.Unlock()

	targets := make([]fanoutTarget, 0, len(ids))
	for _, id := range ids {
		tier := r.trust.TierOf(id)
		if tier == trust.TierBlacklisted {
			continue
		}
		targets = append(targets, fanoutTarget{id: id, tier: tier})
	}
	return targets
}

// sendWithRetry sends msg to peer, retrying with exponential backoff
// starting at cfg.RetryBaseDelay up to cfg.RetryAttempts times. Persistent
// failure marks the peer disconnected and emits a TransportError.
func (r *Router) sendWithRetry(ctx context.Context, peer wire.PeerID, msg wire.Message) {
	defer r.sendWG.Done()

	frame := r.codec.Encode(msg)
	delay := r.cfg.RetryBaseDelay

	var lastErr error
	for attempt := 0; attempt < r.cfg.RetryAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, r.cfg.ConnectionTimeout)
		err := r.transport.Send(sendCtx, peer, frame)
		cancel()
		if err == nil {
			return
		}
		lastErr = err

		if attempt < r.cfg.RetryAttempts-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			delay *= 2
		}
	}

	r.emit(SecurityEvent{Kind: TransportError, Peer: peer, Detail: lastErr.Error()})
	r.disconnectPeer(peer)
}

// sampleMetrics updates the gauge-style metrics (those with no natural
// increment event) from current router state. Called once per drain tick.
func (r *Router) sampleMetrics() {
	if r.metrics == nil {
		return
	}

	r.mu.Lock()
	peerCount := len(r.neighbors)
	r.mu.Unlock()
	r.metrics.PeersConnected.Set(float64(peerCount))
	r.metrics.OutboundQueueDepth.Set(float64(r.outbound.len()))
	r.metrics.DedupCacheOccupancy.Set(float64(r.dedup.Stats().Count))

	stats := r.trust.Statistics()
	r.metrics.SetTierCount("blacklisted", stats.Blacklisted)
	r.metrics.SetTierCount("untrusted", stats.Untrusted)
	r.metrics.SetTierCount("suspicious", stats.Suspicious)
	r.metrics.SetTierCount("normal", stats.Normal)
	r.metrics.SetTierCount("trusted", stats.Trusted)
}

func (r *Router) emit(ev SecurityEvent) {
	ev.At = r.nowFunc()
	ev.Severity = severityFor(ev.Kind)
	if r.eventHub.broadcast(ev) {
		r.logger.Warn("security event stream full, dropping event for a subscriber", slog.String("kind", ev.Kind.String()))
	}
}
