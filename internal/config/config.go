// Package config loads process configuration from CHAOS_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/gateway"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/hazard"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/ws"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/room"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/session"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/threat"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/trigger"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/logging"
)

type Config struct {
	Log    Log
	Server Server
	Peer   Peer
	Tuning Tuning
}

type Log struct {
	Level       string   `env:"CHAOS_LOG_LEVEL"       envDefault:"info"`
	Development bool     `env:"CHAOS_LOG_DEVELOPMENT"`
	Sinks       []string `env:"CHAOS_LOG_SINKS"       envDefault:"console" envSeparator:","`
	MinSeverity string   `env:"CHAOS_EVENT_SEVERITY"  envDefault:"info"`
	BufferSize  int      `env:"CHAOS_EVENT_BUFFER"    envDefault:"512"`

	EventFile       string        `env:"CHAOS_EVENT_FILE"          envDefault:"logs/events.ndjson"`
	EventMaxSizeMB  int           `env:"CHAOS_EVENT_MAX_SIZE_MB"   envDefault:"50"`
	EventMaxBackups int           `env:"CHAOS_EVENT_MAX_BACKUPS"   envDefault:"5"`
	EventMaxAgeDays int           `env:"CHAOS_EVENT_MAX_AGE_DAYS"  envDefault:"7"`
	EventCompress   bool          `env:"CHAOS_EVENT_COMPRESS"`
	EventFlush      time.Duration `env:"CHAOS_EVENT_FLUSH"         envDefault:"2s"`
}

type Server struct {
	Addr            string        `env:"CHAOS_ADDR"              envDefault:":8080"`
	MaxMembers      int           `env:"CHAOS_MAX_MEMBERS"       envDefault:"16"`
	OutboxCapacity  int           `env:"CHAOS_OUTBOX_CAPACITY"   envDefault:"256"`
	FramesPerSecond float64       `env:"CHAOS_FRAMES_PER_SECOND" envDefault:"30"`
	FrameBurst      int           `env:"CHAOS_FRAME_BURST"       envDefault:"60"`
	WriteWait       time.Duration `env:"CHAOS_WRITE_WAIT"        envDefault:"5s"`
	Metrics         bool          `env:"CHAOS_METRICS"           envDefault:"true"`
	DiagnosticsSize int           `env:"CHAOS_DIAGNOSTICS_EVENTS" envDefault:"256"`
}

type Peer struct {
	RoomURL string `env:"CHAOS_ROOM_URL"  envDefault:"ws://localhost:8080/ws"`
	Name    string `env:"CHAOS_PEER_NAME"`
	// Seed makes every roll of the peer reproducible.
	Seed string `env:"CHAOS_SEED"`
}

// Tuning holds the gameplay knobs. Defaults match the shipped mod.
type Tuning struct {
	GlobalWindow         time.Duration `env:"CHAOS_GLOBAL_COOLDOWN"      envDefault:"30s"`
	KeyCooldownSeconds   float64       `env:"CHAOS_KEY_COOLDOWN_SECONDS" envDefault:"100"`
	MaxUses              int           `env:"CHAOS_MAX_USES"             envDefault:"99"`
	PreviewTTL           time.Duration `env:"CHAOS_PREVIEW_TTL"          envDefault:"60s"`
	ForceDifferentPlayer bool          `env:"CHAOS_FORCE_DIFFERENT_PLAYER"`
	RequireTwoAlive      bool          `env:"CHAOS_REQUIRE_TWO_ALIVE"`
	AllowSelfBoost       bool          `env:"CHAOS_ALLOW_SELF_BOOST"`
	AllowThreatKey       bool          `env:"CHAOS_ALLOW_THREAT_KEY"     envDefault:"true"`

	HazardTickRate int `env:"CHAOS_HAZARD_TICK_RATE" envDefault:"60"`

	ThreatDuration    time.Duration `env:"CHAOS_THREAT_DURATION"     envDefault:"60s"`
	ThreatMinInterval time.Duration `env:"CHAOS_THREAT_MIN_INTERVAL" envDefault:"200s"`
	ThreatMaxInterval time.Duration `env:"CHAOS_THREAT_MAX_INTERVAL" envDefault:"800s"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	for _, sink := range c.Log.Sinks {
		switch sink {
		case logging.SinkConsole, logging.SinkJSON, logging.SinkMemory:
		default:
			errs = append(errs, fmt.Errorf("CHAOS_LOG_SINKS: unknown sink %q", sink))
		}
	}
	if c.Server.MaxMembers <= 0 {
		errs = append(errs, errors.New("CHAOS_MAX_MEMBERS must be positive"))
	}
	if c.Server.FramesPerSecond <= 0 || c.Server.FrameBurst <= 0 {
		errs = append(errs, errors.New("CHAOS_FRAMES_PER_SECOND and CHAOS_FRAME_BURST must be positive"))
	}
	if u, err := url.Parse(c.Peer.RoomURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Errorf("CHAOS_ROOM_URL %q must be a ws:// or wss:// URL", c.Peer.RoomURL))
	}
	if c.Tuning.KeyCooldownSeconds < 0 {
		errs = append(errs, errors.New("CHAOS_KEY_COOLDOWN_SECONDS must not be negative"))
	}
	if c.Tuning.HazardTickRate <= 0 {
		errs = append(errs, errors.New("CHAOS_HAZARD_TICK_RATE must be positive"))
	}
	if c.Tuning.ThreatMinInterval <= 0 || c.Tuning.ThreatMaxInterval < c.Tuning.ThreatMinInterval {
		errs = append(errs, errors.New("threat interval must satisfy 0 < min <= max"))
	}
	return errors.Join(errs...)
}

func (l Log) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = append([]string(nil), l.Sinks...)
	cfg.BufferSize = l.BufferSize
	cfg.MinimumSeverity = logging.ParseSeverity(l.MinSeverity)
	cfg.Console.Development = l.Development
	cfg.JSON = logging.JSONConfig{
		FilePath:      l.EventFile,
		MaxSizeMB:     l.EventMaxSizeMB,
		MaxBackups:    l.EventMaxBackups,
		MaxAgeDays:    l.EventMaxAgeDays,
		Compress:      l.EventCompress,
		FlushInterval: l.EventFlush,
	}
	return cfg
}

func (s Server) Room() room.Config {
	return room.Config{MaxMembers: s.MaxMembers, OutboxCapacity: s.OutboxCapacity}
}

func (s Server) Socket() ws.HandlerConfig {
	return ws.HandlerConfig{
		WriteWait:       s.WriteWait,
		FramesPerSecond: s.FramesPerSecond,
		Burst:           s.FrameBurst,
	}
}

// Session maps the tuning onto the node's component configs.
func (c Config) Session() session.Config {
	t := c.Tuning
	gw := gateway.DefaultConfig()
	gw.GlobalWindow = t.GlobalWindow
	gw.PreviewTTL = t.PreviewTTL
	gw.ForceDifferentPlayer = t.ForceDifferentPlayer
	gw.RequireTwoAlive = t.RequireTwoAlive
	gw.AllowSelfBoost = t.AllowSelfBoost
	gw.AllowThreatKey = t.AllowThreatKey
	gw.KeyCooldowns = make(map[trigger.Key]float64)
	gw.MaxUses = make(map[trigger.Key]int)
	for _, key := range gw.GlobalKeys {
		gw.KeyCooldowns[key] = t.KeyCooldownSeconds
		gw.MaxUses[key] = t.MaxUses
	}

	hz := hazard.DefaultConfig()
	hz.TickRate = t.HazardTickRate

	th := threat.DefaultConfig()
	th.Duration = t.ThreatDuration
	th.MinInterval = t.ThreatMinInterval
	th.MaxInterval = t.ThreatMaxInterval

	return session.Config{Gateway: gw, Hazard: hz, Threat: th, Seed: c.Peer.Seed}
}
