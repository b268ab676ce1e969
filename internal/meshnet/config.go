package meshnet

import (
	"errors"
	"fmt"
	"time"

	"github.com/signalair/mesh/internal/destruct"
	"github.com/signalair/mesh/internal/flood"
	"github.com/signalair/mesh/internal/wire"
)

// ErrInvalidConfig is returned by Validate (and therefore by New) when any
// non-positive numeric value is supplied: configuration is validated
// once at construction, not lazily at each use site.
var ErrInvalidConfig = errors.New("meshnet: invalid configuration")

// Config is the router's single immutable configuration object.
type Config struct {
	MaxDataPacketSize int
	ConnectionTimeout time.Duration
	MaxConnections    int
	RetryAttempts     int
	RetryBaseDelay    time.Duration

	DefaultTTL        uint8
	HeartbeatInterval time.Duration
	PeerTimeout       time.Duration
	StopDrainDeadline time.Duration
	OutboundQueueCap  int
	SuspiciousTTLCap  uint8

	Rate     flood.Config
	Destruct destruct.Config
}

// DefaultConfig returns the default-profile values.
func DefaultConfig() Config {
	return Config{
		MaxDataPacketSize: wire.MaxDataPacketSize,
		ConnectionTimeout: 30 * time.Second,
		MaxConnections:    15,
		RetryAttempts:     3,
		RetryBaseDelay:    100 * time.Millisecond,
		DefaultTTL:        7,
		HeartbeatInterval: 10 * time.Second,
		PeerTimeout:       30 * time.Second,
		StopDrainDeadline: time.Second,
		OutboundQueueCap:  4096,
		SuspiciousTTLCap:  2,
		Rate:              flood.DefaultConfig(),
		Destruct:          destruct.DefaultConfig(),
	}
}

// DisasterConfig returns the disaster-profile values: a smaller packet
// ceiling and tighter connection/retry budget for degraded links.
func DisasterConfig() Config {
	c := DefaultConfig()
	c.MaxDataPacketSize = wire.DisasterMaxDataPacketSize
	c.ConnectionTimeout = 20 * time.Second
	c.MaxConnections = 10
	c.RetryAttempts = 2
	c.Rate = flood.DisasterConfig()
	return c
}

// Validate checks cfg for logical errors. Every numeric tunable must be
// strictly positive.
func (c Config) Validate() error {
	type check struct {
		name string
		ok   bool
	}
	checks := []check{
		{"max_data_packet_size", c.MaxDataPacketSize > 0},
		{"connection_timeout", c.ConnectionTimeout > 0},
		{"max_connections", c.MaxConnections > 0},
		{"retry_attempts", c.RetryAttempts > 0},
		{"retry_base_delay", c.RetryBaseDelay > 0},
		{"default_ttl", c.DefaultTTL > 0},
		{"heartbeat_interval", c.HeartbeatInterval > 0},
		{"peer_timeout", c.PeerTimeout > 0},
		{"stop_drain_deadline", c.StopDrainDeadline > 0},
		{"outbound_queue_cap", c.OutboundQueueCap > 0},
		{"suspicious_ttl_cap", c.SuspiciousTTLCap > 0},
		{"rate.max_per_second", c.Rate.MaxPerSecond > 0},
		{"rate.max_per_minute", c.Rate.MaxPerMinute > 0},
		{"rate.max_burst", c.Rate.MaxBurst > 0},
		{"rate.window", c.Rate.Window > 0},
		{"rate.suspicion_threshold", c.Rate.SuspicionThreshold > 0},
		{"ban.first_duration", c.Rate.FirstBanDuration > 0},
		{"ban.final_duration", c.Rate.FinalBanDuration > 0},
		{"ban.final_strike", c.Rate.FinalStrike > 0},
		{"rate.max_peer_records", c.Rate.MaxPeerRecords > 0},
		{"message_lifetime", c.Destruct.MessageLifetime > 0},
		{"cleanup_interval", c.Destruct.CleanupInterval > 0},
		{"metadata_retention_cap", c.Destruct.MetadataRetentionCap > 0},
	}
	for _, chk := range checks {
		if !chk.ok {
			return fmt.Errorf("%s must be positive: %w", chk.name, ErrInvalidConfig)
		}
	}
	return nil
}
