package meshnet

import (
	"testing"

	"github.com/signalair/mesh/internal/wire"
)

func queueMsg(typ wire.Type) wire.Message {
	return wire.Message{ID: wire.NewID(), Type: typ, SourceID: "peer-a"}
}

func TestOutboundQueuePriorityOrdering(t *testing.T) {
	t.Parallel()

	q := newOutboundQueue(10)
	q.push(queueMsg(wire.TypeChat), "")            // priority 1
	q.push(queueMsg(wire.TypeEmergencyMedical), "") // priority 3
	q.push(queueMsg(wire.TypeSignal), "")           // priority 2

	first := q.pop()
	if first.msg.Priority() != 3 {
		t.Fatalf("first pop priority = %d, want 3", first.msg.Priority())
	}
	second := q.pop()
	if second.msg.Priority() != 2 {
		t.Fatalf("second pop priority = %d, want 2", second.msg.Priority())
	}
	third := q.pop()
	if third.msg.Priority() != 1 {
		t.Fatalf("third pop priority = %d, want 1", third.msg.Priority())
	}
}

func TestOutboundQueueFIFOWithinPriority(t *testing.T) {
	t.Parallel()

	q := newOutboundQueue(10)
	first := q.push(queueMsg(wire.TypeChat), "")
	second := q.push(queueMsg(wire.TypeChat), "")
	if first != nil || second != nil {
		t.Fatalf("unexpected eviction under capacity")
	}

	got := q.pop()
	if got.seq != 0 {
		t.Fatalf("pop order broke FIFO: got seq %d, want 0", got.seq)
	}
}

func TestOutboundQueueEvictsLowestPriorityOnOverflow(t *testing.T) {
	t.Parallel()

	q := newOutboundQueue(2)
	q.push(queueMsg(wire.TypeChat), "")           // priority 1, evicted
	q.push(queueMsg(wire.TypeEmergencyMedical), "") // priority 3, kept
	dropped := q.push(queueMsg(wire.TypeSignal), "") // priority 2; over cap, evicts worst

	if dropped == nil {
		t.Fatalf("expected an eviction when pushing past capacity")
	}
	if dropped.msg.Priority() != 1 {
		t.Fatalf("evicted priority = %d, want 1 (the lowest)", dropped.msg.Priority())
	}
	if q.len() != 2 {
		t.Fatalf("queue len = %d, want 2", q.len())
	}
}

func TestOutboundQueuePopEmptyReturnsNil(t *testing.T) {
	t.Parallel()

	q := newOutboundQueue(4)
	if got := q.pop(); got != nil {
		t.Fatalf("pop on empty queue = %v, want nil", got)
	}
}
