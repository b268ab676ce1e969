// Package destruct implements the self-destruct tracker: expiry
// tracking for locally-held messages, with a periodic sweep that
// notifies observers and bounds retained metadata.
package destruct

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/signalair/mesh/internal/wire"
)

// Config holds the tracker's expiry and sweep tunables.
type Config struct {
	// MessageLifetime is how long a tracked message is considered live.
	MessageLifetime time.Duration
	// CleanupInterval is the period between automatic sweeps.
	CleanupInterval time.Duration
	// MetadataRetentionCap bounds the number of post-expiry entries kept
	// for statistics; the oldest (by creation time) are evicted first.
	MetadataRetentionCap int
}

// DefaultConfig returns the default-profile values.
func DefaultConfig() Config {
	return Config{
		MessageLifetime:      24 * time.Hour,
		CleanupInterval:      time.Hour,
		MetadataRetentionCap: 100,
	}
}

// ExpiredEvent is emitted once per message on the sweep that expires it.
type ExpiredEvent struct {
	ID   wire.ID
	At   time.Time
	Type wire.Type
}

// trackedMessage is one locally-held message under expiry tracking.
type trackedMessage struct {
	id        wire.ID
	arrivedAt time.Time
	typ       wire.Type
	priority  int
	expired   bool
}

// Tracker is the self-destruct tracker. Confined to the mesh execution
// context; the mutex lets Sweep and the read operations be called
// safely from the scheduling goroutine and foreign contexts alike.
type Tracker struct {
	mu      sync.Mutex
	cfg     Config
	nowFunc func() time.Time
	logger  *slog.Logger

	entries map[wire.ID]*list.Element
	order   *list.List // front = most recently created

	events chan ExpiredEvent

	runMu    sync.Mutex
	cancel   context.CancelFunc
	paused   bool
	resumeCh chan struct{}
	done     chan struct{}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.nowFunc = now }
}

// WithLogger attaches a structured logger; defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithEventBuffer overrides the expiry event channel's buffer size.
func WithEventBuffer(n int) Option {
	return func(t *Tracker) { t.events = make(chan ExpiredEvent, n) }
}

// New builds a Tracker from cfg.
func New(cfg Config, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:     cfg,
		nowFunc: time.Now,
		logger:  slog.Default(),
		entries: make(map[wire.ID]*list.Element),
		order:   list.New(),
		events:  make(chan ExpiredEvent, 256),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Events returns the channel of expiry notifications. Sends are
// non-blocking; a slow or absent consumer drops events rather than
// stalling the sweep.
func (t *Tracker) Events() <-chan ExpiredEvent {
	return t.events
}

// Track inserts a new tracked message, as of now.
func (t *Tracker) Track(id wire.ID, typ wire.Type, priority int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[id]; ok {
		return
	}

	now := t.nowFunc()
	el := t.order.PushFront(&trackedMessage{
		id:        id,
		arrivedAt: now,
		typ:       typ,
		priority:  priority,
	})
	t.entries[id] = el
}

// Untrack removes id immediately, regardless of expiry state.
func (t *Tracker) Untrack(id wire.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.entries[id]
	if !ok {
		return
	}
	t.order.Remove(el)
	delete(t.entries, id)
}

// IsExpired reports whether id has been marked expired by a sweep. An id
// that was never tracked, or has since been evicted, reports false.
func (t *Tracker) IsExpired(id wire.ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.entries[id]
	if !ok {
		return false
	}
	return el.Value.(*trackedMessage).expired
}

// TimeRemaining returns how long until id expires, clamped at zero once
// expired. An untracked or evicted id returns zero.
func (t *Tracker) TimeRemaining(id wire.ID) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.entries[id]
	if !ok {
		return 0
	}
	tm := el.Value.(*trackedMessage)
	if tm.expired {
		return 0
	}

	remaining := t.cfg.MessageLifetime - t.nowFunc().Sub(tm.arrivedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Sweep scans tracked entries for anything older than MessageLifetime,
// marks it expired, and emits ExpiredEvent. After marking, entries beyond
// MetadataRetentionCap (oldest by creation time) are evicted entirely.
// Sweep is idempotent: calling it repeatedly without new arrivals emits
// no further events.
func (t *Tracker) Sweep() []ExpiredEvent {
	t.mu.Lock()
	now := t.nowFunc()

	var expired []ExpiredEvent
	for el := t.order.Front(); el != nil; el = el.Next() {
		tm := el.Value.(*trackedMessage)
		if tm.expired {
			continue
		}
		if now.Sub(tm.arrivedAt) >= t.cfg.MessageLifetime {
			tm.expired = true
			expired = append(expired, ExpiredEvent{ID: tm.id, At: now, Type: tm.typ})
		}
	}

	for t.cfg.MetadataRetentionCap > 0 && t.order.Len() > t.cfg.MetadataRetentionCap {
		oldest := t.order.Back()
		if oldest == nil {
			break
		}
		t.order.Remove(oldest)
		delete(t.entries, oldest.Value.(*trackedMessage).id)
	}
	t.mu.Unlock()

	for _, ev := range expired {
		select {
		case t.events <- ev:
		default:
			t.logger.Warn("self-destruct event channel full, dropping",
				slog.String("id", ev.ID.String()))
		}
	}
	return expired
}

// Start launches the periodic sweep goroutine. It returns immediately;
// the goroutine runs until ctx is cancelled or Stop is called.
func (t *Tracker) Start(ctx context.Context) {
	t.runMu.Lock()
	defer t.runMu.Unlock()

	if t.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.resumeCh = make(chan struct{}, 1)
	t.done = make(chan struct{})

	go t.run(runCtx)
}

func (t *Tracker) run(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.runMu.Lock()
			paused := t.paused
			t.runMu.Unlock()
			if !paused {
				t.Sweep()
			}
		case <-t.resumeCh:
			t.Sweep()
			ticker.Reset(t.cfg.CleanupInterval)
		}
	}
}

// Pause suspends the periodic sweep. Sweep may still be invoked manually.
func (t *Tracker) Pause() {
	t.runMu.Lock()
	t.paused = true
	t.runMu.Unlock()
}

// Resume un-pauses the scheduler, performing a single immediate sweep.
func (t *Tracker) Resume() {
	t.runMu.Lock()
	t.paused = false
	resumeCh := t.resumeCh
	t.runMu.Unlock()

	if resumeCh == nil {
		return
	}
	select {
	case resumeCh <- struct{}{}:
	default:
	}
}

// Stop cancels the periodic sweep goroutine and waits for it to exit.
// Stop is idempotent.
func (t *Tracker) Stop() {
	t.runMu.Lock()
	cancel := t.cancel
	done := t.done
	t.cancel = nil
	t.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
