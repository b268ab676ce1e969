package trust_test

import (
	"testing"

	"github.com/signalair/mesh/internal/trust"
	"github.com/signalair/mesh/internal/wire"
)

func TestScoreOfUnseenPeerIsInitial(t *testing.T) {
	t.Parallel()

	l := trust.New()
	if got := l.ScoreOf("peer-1"); got != trust.InitialScore {
		t.Fatalf("ScoreOf unseen peer: got %d, want %d", got, trust.InitialScore)
	}
	if got := l.TierOf("peer-1"); got != trust.TierNormal {
		t.Fatalf("TierOf unseen peer: got %v, want %v", got, trust.TierNormal)
	}
}

func TestRecordClampsAtBounds(t *testing.T) {
	t.Parallel()

	l := trust.New()
	peer := wire.PeerID("peer-2")

	for i := 0; i < 100; i++ {
		l.Record(peer, trust.EventSuccessfulCommunication)
	}
	if got := l.ScoreOf(peer); got != trust.MaxScore {
		t.Fatalf("score after saturating +1 events: got %d, want %d", got, trust.MaxScore)
	}

	for i := 0; i < 10; i++ {
		l.Record(peer, trust.EventMaliciousContent)
	}
	if got := l.ScoreOf(peer); got != trust.MinScore {
		t.Fatalf("score after saturating -25 events: got %d, want %d", got, trust.MinScore)
	}
}

func TestRecordAppliesDeltaAndTierBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event trust.Event
		times int
		want  trust.Tier
	}{
		{"one invalid signature drops to suspicious boundary", trust.EventInvalidSignature, 1, trust.TierSuspicious},
		{"two invalid signatures reach untrusted", trust.EventInvalidSignature, 2, trust.TierUntrusted},
		{"one duplicate message drops below normal", trust.EventDuplicateMessage, 1, trust.TierSuspicious},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := trust.New()
			peer := wire.PeerID("peer")
			var score int
			for i := 0; i < tt.times; i++ {
				score = l.Record(peer, tt.event)
			}
			if got := l.TierOf(peer); got != tt.want {
				t.Fatalf("after %d x %v, score=%d: tier got %v, want %v", tt.times, tt.event, score, got, tt.want)
			}
		})
	}
}

func TestForgetRemovesPeer(t *testing.T) {
	t.Parallel()

	l := trust.New()
	peer := wire.PeerID("peer-3")
	l.Record(peer, trust.EventMaliciousContent)

	l.Forget(peer)

	if got := l.ScoreOf(peer); got != trust.InitialScore {
		t.Fatalf("ScoreOf after Forget: got %d, want fresh InitialScore %d", got, trust.InitialScore)
	}
}

func TestStatisticsAggregation(t *testing.T) {
	t.Parallel()

	l := trust.New()
	l.ScoreOf("trusted-peer")
	for i := 0; i < 30; i++ {
		l.Record("trusted-peer", trust.EventSuccessfulCommunication)
	}

	l.ScoreOf("blacklisted-peer")
	for i := 0; i < 10; i++ {
		l.Record("blacklisted-peer", trust.EventMaliciousContent)
	}

	l.ScoreOf("normal-peer")

	stats := l.Statistics()
	if stats.Total != 3 {
		t.Fatalf("Total: got %d, want 3", stats.Total)
	}
	if stats.Trusted != 1 || stats.Blacklisted != 1 || stats.Normal != 1 {
		t.Fatalf("tier buckets: got %+v", stats)
	}
}

func TestStatisticsEmptyLedger(t *testing.T) {
	t.Parallel()

	l := trust.New()
	stats := l.Statistics()
	if stats.Total != 0 || stats.Average != 0 {
		t.Fatalf("empty ledger stats: got %+v", stats)
	}
}
