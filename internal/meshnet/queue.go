package meshnet

import (
	"container/heap"
	"sync"

	"github.com/signalair/mesh/internal/wire"
)

// outboundItem is one entry awaiting transmission. relayExcludeSender is
// the peer that handed this message to us on a relay path (empty for
// locally originated messages); it is excluded from fan-out alongside the
// message's own SourceID.
type outboundItem struct {
	msg                wire.Message
	relayExcludeSender wire.PeerID
	seq                uint64
}

// priorityHeap implements container/heap.Interface: highest Priority
// first, FIFO (lowest seq) among equal priorities.
type priorityHeap []*outboundItem

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].msg.Priority() != h[j].msg.Priority() {
		return h[i].msg.Priority() > h[j].msg.Priority()
	}
	return h[i].seq < h[j].seq
}

func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap) Push(x any) {
	*h = append(*h, x.(*outboundItem))
}

func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// outboundQueue is the priority-ordered outbound queue: strict
// priority, FIFO within a priority, hard capacity with
// lowest-priority-first (ties oldest-first) eviction on overflow.
type outboundQueue struct {
	mu      sync.Mutex
	heap    priorityHeap
	cap     int
	nextSeq uint64
}

func newOutboundQueue(capacity int) *outboundQueue {
	q := &outboundQueue{cap: capacity}
	heap.Init(&q.heap)
	return q
}

// push enqueues item, evicting the lowest-priority (oldest on tie) entry
// if the queue is over capacity afterward. It returns the dropped item,
// if any, so the caller can log/emit a SecurityEvent.
func (q *outboundQueue) push(msg wire.Message, relayExcludeSender wire.PeerID) *outboundItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	item := &outboundItem{msg: msg, relayExcludeSender: relayExcludeSender, seq: q.nextSeq}
	q.nextSeq++
	heap.Push(&q.heap, item)

	if q.cap <= 0 || q.heap.Len() <= q.cap {
		return nil
	}

	// Evict the single worst entry: lowest priority, then oldest seq.
	worst := 0
	for i := 1; i < q.heap.Len(); i++ {
		if q.heap[i].msg.Priority() < q.heap[worst].msg.Priority() ||
			(q.heap[i].msg.Priority() == q.heap[worst].msg.Priority() && q.heap[i].seq < q.heap[worst].seq) {
			worst = i
		}
	}
	dropped := heap.Remove(&q.heap, worst).(*outboundItem)
	return dropped
}

// pop removes and returns the highest-priority, earliest-enqueued item,
// or nil if the queue is empty.
func (q *outboundQueue) pop() *outboundItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.heap).(*outboundItem)
}

func (q *outboundQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}
