package flood_test

import (
	"testing"
	"time"

	"github.com/signalair/mesh/internal/flood"
	"github.com/signalair/mesh/internal/wire"
)

func clockFrom(start time.Time) (*time.Time, func() time.Time) {
	t := start
	return &t, func() time.Time { return t }
}

func chatMsg(hash byte) wire.Message {
	var m wire.Message
	m.Type = wire.TypeChat
	m.ContentHash[0] = hash
	return m
}

// TestAdmitEmergencyBypass checks that a banned peer's emergency-typed
// message still admits.
func TestAdmitEmergencyBypass(t *testing.T) {
	t.Parallel()

	cfg := flood.DefaultConfig()
	g := flood.New(cfg)

	peer := wire.PeerID("peer-1")
	// Repeat identical content up to the suspicion threshold to force a ban.
	for i := 0; i < cfg.SuspicionThreshold; i++ {
		g.Admit(peer, chatMsg(0xAA))
	}
	if v := g.Admit(peer, chatMsg(0xAA)); v != flood.Banned {
		t.Fatalf("expected ban after repeated identical content, got %v", v)
	}

	emergency := wire.Message{Type: wire.TypeEmergencyMedical}
	if v := g.Admit(peer, emergency); v != flood.Admitted {
		t.Fatalf("emergency message while banned: got %v, want Admitted", v)
	}
}

// TestBanStaging checks that successive suspicious-strike bans escalate
// first, first, final in duration.
func TestBanStaging(t *testing.T) {
	t.Parallel()

	start := time.Unix(0, 0)
	clock, nowFn := clockFrom(start)

	cfg := flood.DefaultConfig()
	g := flood.New(cfg).WithClock(nowFn)
	peer := wire.PeerID("peer-2")

	trigger := func() {
		for i := 0; i < cfg.SuspicionThreshold-1; i++ {
			if v := g.Admit(peer, chatMsg(0x01)); v != flood.Admitted {
				t.Fatalf("admit %d before ban: got %v, want Admitted once the previous ban has lapsed", i, v)
			}
		}
		v := g.Admit(peer, chatMsg(0x01))
		if v != flood.Banned {
			t.Fatalf("expected Banned, got %v", v)
		}
	}

	advancePastBan := func(d time.Duration) {
		*clock = clock.Add(d + time.Second)
	}

	// Strike 1: first duration.
	trigger()
	advancePastBan(cfg.FirstBanDuration)

	// Strike 2: still first duration.
	trigger()
	advancePastBan(cfg.FirstBanDuration)

	// Strike 3: final duration.
	trigger()

	stats := g.Stats()
	if stats.StrikeFinal != 1 {
		t.Fatalf("Stats after third strike: got %+v, want StrikeFinal=1", stats)
	}

	// The final ban outlasts a first-stage duration.
	advancePastBan(cfg.FirstBanDuration)
	if v := g.Admit(peer, chatMsg(0x02)); v != flood.Banned {
		t.Fatalf("after first-stage duration into final ban: got %v, want Banned", v)
	}
}

// TestAdmitRateExceeded checks that with a rate of 10/s and a burst of 20,
// 25 frames arriving within 100ms admit the first 20 and reject the
// remaining 5 as RateExceeded.
func TestAdmitRateExceeded(t *testing.T) {
	t.Parallel()

	start := time.Unix(0, 0)
	clock, nowFn := clockFrom(start)

	cfg := flood.DefaultConfig() // MaxPerSecond=10, MaxBurst=20
	g := flood.New(cfg).WithClock(nowFn)
	peer := wire.PeerID("peer-3")

	admitted := 0
	rejected := 0
	for i := 0; i < 25; i++ {
		*clock = clock.Add(4 * time.Millisecond) // 25 frames spread over 100ms
		v := g.Admit(peer, chatMsg(byte(i)))      // distinct content hashes: no suspicion triggered
		switch v {
		case flood.Admitted:
			admitted++
		case flood.RateExceeded:
			rejected++
		default:
			t.Fatalf("unexpected verdict %v at iteration %d", v, i)
		}
	}

	if admitted != cfg.MaxBurst {
		t.Fatalf("admitted: got %d, want %d", admitted, cfg.MaxBurst)
	}
	if rejected != 25-cfg.MaxBurst {
		t.Fatalf("rejected: got %d, want %d", rejected, 25-cfg.MaxBurst)
	}
}

func TestUnbanClearsActiveBanNotStrikes(t *testing.T) {
	t.Parallel()

	cfg := flood.DefaultConfig()
	g := flood.New(cfg)
	peer := wire.PeerID("peer-4")

	for i := 0; i < cfg.SuspicionThreshold; i++ {
		g.Admit(peer, chatMsg(0x09))
	}

	g.Unban(peer)
	if v := g.Admit(peer, chatMsg(0x10)); v == flood.Banned {
		t.Fatalf("Admit after Unban: got Banned")
	}

	stats := g.Stats()
	if stats.Strike1 != 1 {
		t.Fatalf("Unban must not clear strike count: got %+v", stats)
	}
}

func TestResetClearsStrikesAndSuspicion(t *testing.T) {
	t.Parallel()

	cfg := flood.DefaultConfig()
	g := flood.New(cfg)
	peer := wire.PeerID("peer-5")

	for i := 0; i < cfg.SuspicionThreshold; i++ {
		g.Admit(peer, chatMsg(0x09))
	}

	g.Reset(peer)

	stats := g.Stats()
	if stats.Strike1 != 0 || stats.CurrentlyBanned != 0 {
		t.Fatalf("Reset did not clear ledger: got %+v", stats)
	}
}
