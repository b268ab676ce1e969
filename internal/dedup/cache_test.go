package dedup_test

import (
	"testing"

	"github.com/signalair/mesh/internal/dedup"
	"github.com/signalair/mesh/internal/wire"
)

func msg(id wire.ID, hash byte, ts int64) wire.Message {
	m := wire.Message{ID: id, Type: wire.TypeChat, OriginTimestamp: ts}
	m.ContentHash[0] = hash
	return m
}

func TestObserveFirstSeenThenDuplicate(t *testing.T) {
	t.Parallel()

	c := dedup.NewCache()
	m := msg(wire.NewID(), 0x01, 1000)

	if v := c.Observe(m); v != dedup.FirstSeen {
		t.Fatalf("first Observe: got %v, want FirstSeen", v)
	}
	if v := c.Observe(m); v != dedup.Duplicate {
		t.Fatalf("second Observe: got %v, want Duplicate", v)
	}
}

func TestObserveReplayWithDifferentIDIsDuplicate(t *testing.T) {
	t.Parallel()

	c := dedup.NewCache()
	first := msg(wire.NewID(), 0x42, 5000)
	if v := c.Observe(first); v != dedup.FirstSeen {
		t.Fatalf("Observe first: got %v", v)
	}

	// Same content hash + origin timestamp, but a rewritten id: this is
	// the id-rewriting replay hole the replay table closes.
	replay := first
	replay.ID = wire.NewID()
	if v := c.Observe(replay); v != dedup.Duplicate {
		t.Fatalf("Observe replay with rewritten id: got %v, want Duplicate", v)
	}
}

func TestObserveLRUEviction(t *testing.T) {
	t.Parallel()

	c := dedup.NewCache(dedup.WithCapacities(2, 2))

	a := msg(wire.NewID(), 0x01, 1)
	b := msg(wire.NewID(), 0x02, 2)
	cc := msg(wire.NewID(), 0x03, 3)

	if v := c.Observe(a); v != dedup.FirstSeen {
		t.Fatalf("observe a: %v", v)
	}
	if v := c.Observe(b); v != dedup.FirstSeen {
		t.Fatalf("observe b: %v", v)
	}
	// Inserting c evicts a (oldest).
	if v := c.Observe(cc); v != dedup.FirstSeen {
		t.Fatalf("observe c: %v", v)
	}

	// a was evicted: re-observing it is FirstSeen again.
	if v := c.Observe(a); v != dedup.FirstSeen {
		t.Fatalf("re-observe evicted a: got %v, want FirstSeen", v)
	}
}

func TestClearEmptiesBothTables(t *testing.T) {
	t.Parallel()

	c := dedup.NewCache()
	c.Observe(msg(wire.NewID(), 0x01, 1))
	c.Observe(msg(wire.NewID(), 0x02, 2))

	c.Clear()

	stats := c.Stats()
	if stats.Count != 0 {
		t.Fatalf("Stats.Count after Clear: got %d, want 0", stats.Count)
	}
}

func TestStatsUtilization(t *testing.T) {
	t.Parallel()

	c := dedup.NewCache(dedup.WithCapacities(4, 4))
	for i := 0; i < 2; i++ {
		c.Observe(msg(wire.NewID(), byte(i), int64(i)))
	}

	stats := c.Stats()
	if stats.Count != 2 || stats.Capacity != 4 {
		t.Fatalf("Stats: got %+v", stats)
	}
	if stats.UtilizationRate != 0.5 {
		t.Fatalf("UtilizationRate: got %f, want 0.5", stats.UtilizationRate)
	}
}
