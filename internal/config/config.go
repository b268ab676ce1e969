// Package config manages the SignalAir daemon configuration using
// koanf/v2.
//
// Supports YAML files, environment variables, and a Profile switch
// (default | disaster) that swaps in the disaster-mode tunables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	goyaml "gopkg.in/yaml.v3"

	"github.com/signalair/mesh/internal/destruct"
	"github.com/signalair/mesh/internal/flood"
	"github.com/signalair/mesh/internal/meshnet"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete SignalAir daemon configuration.
type Config struct {
	Profile string        `koanf:"profile"`
	Admin   AdminConfig   `koanf:"admin"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Mesh    MeshConfig    `koanf:"mesh"`
}

// AdminConfig holds the introspection HTTP API configuration.
type AdminConfig struct {
	// Addr is the admin API listen address (e.g., ":8181").
	Addr string `koanf:"addr"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint.
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// MeshConfig mirrors meshnet.Config with koanf tags. ToMeshConfig
// converts it to the type the Router actually consumes.
type MeshConfig struct {
	MaxDataPacketSize int           `koanf:"max_data_packet_size"`
	ConnectionTimeout time.Duration `koanf:"connection_timeout"`
	MaxConnections    int           `koanf:"max_connections"`
	RetryAttempts     int           `koanf:"retry_attempts"`
	RetryBaseDelay    time.Duration `koanf:"retry_base_delay"`

	DefaultTTL        uint8         `koanf:"default_ttl"`
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	PeerTimeout       time.Duration `koanf:"peer_timeout"`
	StopDrainDeadline time.Duration `koanf:"stop_drain_deadline"`
	OutboundQueueCap  int           `koanf:"outbound_queue_cap"`
	SuspiciousTTLCap  uint8         `koanf:"suspicious_ttl_cap"`

	Rate     RateConfig     `koanf:"rate"`
	Destruct DestructConfig `koanf:"destruct"`
}

// RateConfig mirrors the numeric tunables of flood.Config with koanf
// tags. The emergency-bypass settings and MaxPeerRecords are not
// configurable here; ToMeshConfig takes them from flood.DefaultConfig.
type RateConfig struct {
	MaxPerSecond       int           `koanf:"max_per_second"`
	MaxPerMinute       int           `koanf:"max_per_minute"`
	MaxBurst           int           `koanf:"max_burst"`
	Window             time.Duration `koanf:"window"`
	SuspicionThreshold int           `koanf:"suspicion_threshold"`
	FirstBanDuration   time.Duration `koanf:"first_ban_duration"`
	FinalBanDuration   time.Duration `koanf:"final_ban_duration"`
	FinalStrike        int           `koanf:"final_strike"`
}

// DestructConfig mirrors destruct.Config with koanf tags.
type DestructConfig struct {
	MessageLifetime      time.Duration `koanf:"message_lifetime"`
	CleanupInterval      time.Duration `koanf:"cleanup_interval"`
	MetadataRetentionCap int           `koanf:"metadata_retention_cap"`
}

// ToMeshConfig converts the koanf-tagged MeshConfig into the meshnet.Config
// the Router constructor consumes.
func (m MeshConfig) ToMeshConfig() meshnet.Config {
	rateDefaults := flood.DefaultConfig()
	return meshnet.Config{
		MaxDataPacketSize: m.MaxDataPacketSize,
		ConnectionTimeout: m.ConnectionTimeout,
		MaxConnections:    m.MaxConnections,
		RetryAttempts:     m.RetryAttempts,
		RetryBaseDelay:    m.RetryBaseDelay,
		DefaultTTL:        m.DefaultTTL,
		HeartbeatInterval: m.HeartbeatInterval,
		PeerTimeout:       m.PeerTimeout,
		StopDrainDeadline: m.StopDrainDeadline,
		OutboundQueueCap:  m.OutboundQueueCap,
		SuspiciousTTLCap:  m.SuspiciousTTLCap,
		Rate: flood.Config{
			MaxPerSecond:       m.Rate.MaxPerSecond,
			MaxPerMinute:       m.Rate.MaxPerMinute,
			MaxBurst:           m.Rate.MaxBurst,
			Window:             m.Rate.Window,
			SuspicionThreshold: m.Rate.SuspicionThreshold,
			FirstBanDuration:   m.Rate.FirstBanDuration,
			FinalBanDuration:   m.Rate.FinalBanDuration,
			FinalStrike:        m.Rate.FinalStrike,

			EmergencyBypassEnabled: rateDefaults.EmergencyBypassEnabled,
			EmergencyTypes:         rateDefaults.EmergencyTypes,
			MaxPeerRecords:         rateDefaults.MaxPeerRecords,
		},
		Destruct: destruct.Config{
			MessageLifetime:      m.Destruct.MessageLifetime,
			CleanupInterval:      m.Destruct.CleanupInterval,
			MetadataRetentionCap: m.Destruct.MetadataRetentionCap,
		},
	}
}

func meshConfigFrom(c meshnet.Config) MeshConfig {
	return MeshConfig{
		MaxDataPacketSize: c.MaxDataPacketSize,
		ConnectionTimeout: c.ConnectionTimeout,
		MaxConnections:    c.MaxConnections,
		RetryAttempts:     c.RetryAttempts,
		RetryBaseDelay:    c.RetryBaseDelay,
		DefaultTTL:        c.DefaultTTL,
		HeartbeatInterval: c.HeartbeatInterval,
		PeerTimeout:       c.PeerTimeout,
		StopDrainDeadline: c.StopDrainDeadline,
		OutboundQueueCap:  c.OutboundQueueCap,
		SuspiciousTTLCap:  c.SuspiciousTTLCap,
		Rate: RateConfig{
			MaxPerSecond:       c.Rate.MaxPerSecond,
			MaxPerMinute:       c.Rate.MaxPerMinute,
			MaxBurst:           c.Rate.MaxBurst,
			Window:             c.Rate.Window,
			SuspicionThreshold: c.Rate.SuspicionThreshold,
			FirstBanDuration:   c.Rate.FirstBanDuration,
			FinalBanDuration:   c.Rate.FinalBanDuration,
			FinalStrike:        c.Rate.FinalStrike,
		},
		Destruct: DestructConfig{
			MessageLifetime:      c.Destruct.MessageLifetime,
			CleanupInterval:      c.Destruct.CleanupInterval,
			MetadataRetentionCap: c.Destruct.MetadataRetentionCap,
		},
	}
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with the default-profile
// values.
func DefaultConfig() *Config {
	return &Config{
		Profile: "default",
		Admin:   AdminConfig{Addr: ":8181"},
		Metrics: MetricsConfig{Addr: ":9100", Path: "/metrics"},
		Log:     LogConfig{Level: "info", Format: "json"},
		Mesh:    meshConfigFrom(meshnet.DefaultConfig()),
	}
}

// applyProfile overlays the disaster-profile mesh tunables when
// cfg.Profile == "disaster", after file/env layers have been merged.
func applyProfile(cfg *Config) error {
	switch cfg.Profile {
	case "", "default":
		return nil
	case "disaster":
		cfg.Mesh = meshConfigFrom(meshnet.DisasterConfig())
		return nil
	default:
		return fmt.Errorf("profile %q: %w", cfg.Profile, ErrInvalidProfile)
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for SignalAir configuration.
// Variables are named SIGNALAIR_<section>_<key>, e.g. SIGNALAIR_ADMIN_ADDR.
const envPrefix = "SIGNALAIR_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (SIGNALAIR_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults. If the merged
// Profile is "disaster", the disaster-mode mesh tunables are applied
// after the file/env layers and replace the whole mesh section,
// including any mesh fields the file or environment set.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := applyProfile(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// loadDefaults marshals the default config into koanf as the base layer,
// so file and env layers only need to override what they actually set.
func loadDefaults(k *koanf.Koanf, d *Config) error {
	defaultMap := map[string]any{
		"profile":                               d.Profile,
		"admin.addr":                            d.Admin.Addr,
		"metrics.addr":                          d.Metrics.Addr,
		"metrics.path":                          d.Metrics.Path,
		"log.level":                             d.Log.Level,
		"log.format":                            d.Log.Format,
		"mesh.max_data_packet_size":             d.Mesh.MaxDataPacketSize,
		"mesh.connection_timeout":               d.Mesh.ConnectionTimeout.String(),
		"mesh.max_connections":                  d.Mesh.MaxConnections,
		"mesh.retry_attempts":                   d.Mesh.RetryAttempts,
		"mesh.retry_base_delay":                 d.Mesh.RetryBaseDelay.String(),
		"mesh.default_ttl":                      d.Mesh.DefaultTTL,
		"mesh.heartbeat_interval":               d.Mesh.HeartbeatInterval.String(),
		"mesh.peer_timeout":                     d.Mesh.PeerTimeout.String(),
		"mesh.stop_drain_deadline":              d.Mesh.StopDrainDeadline.String(),
		"mesh.outbound_queue_cap":               d.Mesh.OutboundQueueCap,
		"mesh.suspicious_ttl_cap":               d.Mesh.SuspiciousTTLCap,
		"mesh.rate.max_per_second":              d.Mesh.Rate.MaxPerSecond,
		"mesh.rate.max_per_minute":              d.Mesh.Rate.MaxPerMinute,
		"mesh.rate.max_burst":                   d.Mesh.Rate.MaxBurst,
		"mesh.rate.window":                      d.Mesh.Rate.Window.String(),
		"mesh.rate.suspicion_threshold":         d.Mesh.Rate.SuspicionThreshold,
		"mesh.rate.first_ban_duration":          d.Mesh.Rate.FirstBanDuration.String(),
		"mesh.rate.final_ban_duration":          d.Mesh.Rate.FinalBanDuration.String(),
		"mesh.rate.final_strike":                d.Mesh.Rate.FinalStrike,
		"mesh.destruct.message_lifetime":        d.Mesh.Destruct.MessageLifetime.String(),
		"mesh.destruct.cleanup_interval":        d.Mesh.Destruct.CleanupInterval.String(),
		"mesh.destruct.metadata_retention_cap":  d.Mesh.Destruct.MetadataRetentionCap,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}
	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors: any non-positive numeric tunable or empty required
// address rejects the whole config rather than silently defaulting.
var (
	ErrEmptyAdminAddr   = errors.New("admin.addr must not be empty")
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")
	ErrInvalidProfile   = errors.New("profile must be \"default\" or \"disaster\"")
)

// Validate checks the configuration for logical errors, delegating the
// numeric mesh tunables to meshnet.Config.Validate.
func Validate(cfg *Config) error {
	if cfg.Admin.Addr == "" {
		return ErrEmptyAdminAddr
	}
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}
	if cfg.Profile != "" && cfg.Profile != "default" && cfg.Profile != "disaster" {
		return fmt.Errorf("profile %q: %w", cfg.Profile, ErrInvalidProfile)
	}
	if err := cfg.Mesh.ToMeshConfig().Validate(); err != nil {
		return err
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DumpYAML renders cfg back to YAML, e.g. for `signalairctl` to print the
// effective configuration a running core loaded.
func DumpYAML(cfg *Config) ([]byte, error) {
	out, err := goyaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}

// envKeyMapper transforms SIGNALAIR_ADMIN_ADDR -> admin.addr.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}
