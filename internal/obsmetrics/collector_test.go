package obsmetrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/signalair/mesh/internal/obsmetrics"
)

func TestNewCollectorRegistersEveryMetric(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := obsmetrics.NewCollector(reg)

	if c.PeersConnected == nil {
		t.Error("PeersConnected is nil")
	}
	if c.MessagesDropped == nil {
		t.Error("MessagesDropped is nil")
	}
	if c.BansIssued == nil {
		t.Error("BansIssued is nil")
	}
	if c.TrustScoreDistribution == nil {
		t.Error("TrustScoreDistribution is nil")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("no metric families registered")
	}
}

func TestIncDroppedLabelsByReason(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := obsmetrics.NewCollector(reg)

	c.IncDropped("duplicate")
	c.IncDropped("duplicate")
	c.IncDropped("rate_exceeded")

	got := counterValue(t, c.MessagesDropped.WithLabelValues("duplicate"))
	if got != 2 {
		t.Errorf("duplicate count = %v, want 2", got)
	}
	got = counterValue(t, c.MessagesDropped.WithLabelValues("rate_exceeded"))
	if got != 1 {
		t.Errorf("rate_exceeded count = %v, want 1", got)
	}
}

func TestSetTierCountOverwrites(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := obsmetrics.NewCollector(reg)

	c.SetTierCount("trusted", 3)
	c.SetTierCount("trusted", 5)

	m := &dto.Metric{}
	if err := c.TrustScoreDistribution.WithLabelValues("trusted").Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if m.GetGauge().GetValue() != 5 {
		t.Errorf("trusted tier gauge = %v, want 5", m.GetGauge().GetValue())
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}
