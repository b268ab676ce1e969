// Package obsmetrics exposes the SignalAir mesh's Prometheus metrics
// (SPEC_FULL.md Section 2, "Metrics"): messages relayed, drops by reason,
// peers connected, bans issued, trust score distribution, dedup cache
// occupancy, and outbound queue depth.
package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "signalair"
	subsystem = "mesh"
)

// Label names.
const (
	labelReason = "reason"
	labelTier   = "tier"
)

// Collector holds every SignalAir mesh Prometheus metric.
type Collector struct {
	// PeersConnected tracks the current neighbor-set size.
	PeersConnected prometheus.Gauge

	// MessagesOriginated counts locally originated Broadcast/SendTo calls.
	MessagesOriginated prometheus.Counter

	// MessagesRelayed counts frames forwarded to at least one neighbor.
	MessagesRelayed prometheus.Counter

	// MessagesDelivered counts frames delivered to the local application
	// via OnReceive.
	MessagesDelivered prometheus.Counter

	// MessagesDropped counts frames dropped, labeled by reason
	// (malformed, duplicate, rate_exceeded, suspicious, banned,
	// queue_overflow).
	MessagesDropped *prometheus.CounterVec

	// BansIssued counts Rate/Flood Guard ban events, labeled by stage
	// (first, final, or unknown). The Mesh Router records every Banned
	// verdict under "unknown".
	BansIssued *prometheus.CounterVec

	// TrustScoreDistribution gauges the current count of peers per trust
	// tier (blacklisted, untrusted, suspicious, normal, trusted).
	TrustScoreDistribution *prometheus.GaugeVec

	// DedupCacheOccupancy gauges the current entry count in the dedup
	// cache's id table.
	DedupCacheOccupancy prometheus.Gauge

	// OutboundQueueDepth gauges the current outbound priority queue length.
	OutboundQueueDepth prometheus.Gauge
}

// NewCollector creates a Collector with every metric registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.PeersConnected,
		c.MessagesOriginated,
		c.MessagesRelayed,
		c.MessagesDelivered,
		c.MessagesDropped,
		c.BansIssued,
		c.TrustScoreDistribution,
		c.DedupCacheOccupancy,
		c.OutboundQueueDepth,
	)

	return c
}

func newMetrics() *Collector {
	return &Collector{
		PeersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "peers_connected",
			Help:      "Number of peers currently in the neighbor set.",
		}),
		MessagesOriginated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_originated_total",
			Help:      "Total messages originated locally via Broadcast/SendTo.",
		}),
		MessagesRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_relayed_total",
			Help:      "Total messages forwarded to at least one neighbor.",
		}),
		MessagesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_delivered_total",
			Help:      "Total messages delivered to the local application.",
		}),
		MessagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "messages_dropped_total",
			Help:      "Total messages dropped, labeled by reason.",
		}, []string{labelReason}),
		BansIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bans_issued_total",
			Help:      "Total Rate/Flood Guard bans issued, labeled by stage.",
		}, []string{"stage"}),
		TrustScoreDistribution: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "trust_tier_peers",
			Help:      "Number of peers currently in each trust tier.",
		}, []string{labelTier}),
		DedupCacheOccupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dedup_cache_occupancy",
			Help:      "Current entry count in the dedup cache id table.",
		}),
		OutboundQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "outbound_queue_depth",
			Help:      "Current length of the outbound priority queue.",
		}),
	}
}

// IncDropped increments the dropped-messages counter for reason.
func (c *Collector) IncDropped(reason string) {
	c.MessagesDropped.WithLabelValues(reason).Inc()
}

// IncBan increments the bans-issued counter for stage ("first",
// "final", or "unknown").
func (c *Collector) IncBan(stage string) {
	c.BansIssued.WithLabelValues(stage).Inc()
}

// SetTierCount sets the current peer count for a trust tier.
func (c *Collector) SetTierCount(tier string, count int) {
	c.TrustScoreDistribution.WithLabelValues(tier).Set(float64(count))
}
