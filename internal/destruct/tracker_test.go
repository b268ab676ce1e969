package destruct_test

import (
	"context"
	"testing"
	"time"

	"github.com/signalair/mesh/internal/destruct"
	"github.com/signalair/mesh/internal/wire"
)

func clockFrom(start time.Time) (*time.Time, func() time.Time) {
	t := start
	return &t, func() time.Time { return t }
}

// TestSweepExpiresAfterLifetime tracks id x at t=0 with lifetime=1000ms;
// at t=1100ms IsExpired must be true and exactly one ExpiredEvent for x
// must have been emitted.
func TestSweepExpiresAfterLifetime(t *testing.T) {
	t.Parallel()

	start := time.Unix(0, 0)
	clock, nowFn := clockFrom(start)

	cfg := destruct.Config{
		MessageLifetime:      1000 * time.Millisecond,
		CleanupInterval:      100 * time.Millisecond,
		MetadataRetentionCap: 100,
	}
	tr := destruct.New(cfg, destruct.WithClock(nowFn))

	id := wire.NewID()
	tr.Track(id, wire.TypeChat, 1)

	if tr.IsExpired(id) {
		t.Fatalf("IsExpired before lifetime elapsed: got true")
	}

	*clock = clock.Add(1100 * time.Millisecond)
	events := tr.Sweep()

	if !tr.IsExpired(id) {
		t.Fatalf("IsExpired after sweep past lifetime: got false")
	}
	if len(events) != 1 || events[0].ID != id {
		t.Fatalf("Sweep events: got %+v, want exactly one event for %v", events, id)
	}

	// A second sweep must not re-emit for the same id (idempotent).
	if events := tr.Sweep(); len(events) != 0 {
		t.Fatalf("second Sweep: got %d events, want 0", len(events))
	}
}

func TestTimeRemainingMonotonicallyNonIncreasing(t *testing.T) {
	t.Parallel()

	start := time.Unix(0, 0)
	clock, nowFn := clockFrom(start)

	cfg := destruct.Config{MessageLifetime: time.Second, CleanupInterval: time.Minute, MetadataRetentionCap: 10}
	tr := destruct.New(cfg, destruct.WithClock(nowFn))

	id := wire.NewID()
	tr.Track(id, wire.TypeSignal, 2)

	prev := tr.TimeRemaining(id)
	for i := 0; i < 5; i++ {
		*clock = clock.Add(100 * time.Millisecond)
		got := tr.TimeRemaining(id)
		if got > prev {
			t.Fatalf("TimeRemaining increased: prev=%v got=%v", prev, got)
		}
		prev = got
	}

	*clock = clock.Add(time.Second)
	if got := tr.TimeRemaining(id); got != 0 {
		t.Fatalf("TimeRemaining after expiry: got %v, want 0", got)
	}
}

func TestUntrackRemovesEntryImmediately(t *testing.T) {
	t.Parallel()

	tr := destruct.New(destruct.DefaultConfig())
	id := wire.NewID()
	tr.Track(id, wire.TypeGame, 1)
	tr.Untrack(id)

	if got := tr.TimeRemaining(id); got != 0 {
		t.Fatalf("TimeRemaining after Untrack: got %v, want 0", got)
	}
}

func TestSweepEvictsBeyondRetentionCap(t *testing.T) {
	t.Parallel()

	start := time.Unix(0, 0)
	clock, nowFn := clockFrom(start)

	cfg := destruct.Config{
		MessageLifetime:      time.Second,
		CleanupInterval:      time.Minute,
		MetadataRetentionCap: 2,
	}
	tr := destruct.New(cfg, destruct.WithClock(nowFn))

	ids := []wire.ID{wire.NewID(), wire.NewID(), wire.NewID()}
	for _, id := range ids {
		tr.Track(id, wire.TypeChat, 1)
	}

	*clock = clock.Add(2 * time.Second)
	tr.Sweep()

	// Retention cap is 2: the oldest tracked id (ids[0]) must have been
	// evicted entirely, so IsExpired reports false (unknown) for it.
	if tr.IsExpired(ids[0]) {
		t.Fatalf("IsExpired for evicted oldest id: got true, want false (evicted)")
	}
	if !tr.IsExpired(ids[2]) {
		t.Fatalf("IsExpired for most recently tracked id: got false, want true")
	}
}

func TestPauseSuspendsAutomaticSweepResumeSweepsOnce(t *testing.T) {
	t.Parallel()

	start := time.Unix(0, 0)
	clock, nowFn := clockFrom(start)

	cfg := destruct.Config{
		MessageLifetime:      10 * time.Millisecond,
		CleanupInterval:      5 * time.Millisecond,
		MetadataRetentionCap: 10,
	}
	tr := destruct.New(cfg, destruct.WithClock(nowFn))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.Start(ctx)
	defer tr.Stop()

	tr.Pause()

	id := wire.NewID()
	tr.Track(id, wire.TypeChat, 1)
	*clock = clock.Add(20 * time.Millisecond)

	// Give the paused scheduler a chance to (incorrectly) tick; it must not.
	time.Sleep(20 * time.Millisecond)
	if tr.IsExpired(id) {
		t.Fatalf("message expired while scheduler paused")
	}

	tr.Resume()
	// Resume triggers one immediate sweep synchronously-ish; poll briefly.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if tr.IsExpired(id) {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("message not expired after Resume's immediate sweep")
}
