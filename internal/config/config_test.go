package config

import (
	"strings"
	"testing"
	"time"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/trigger"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/logging"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected defaults to load, got %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("expected addr :8080, got %q", cfg.Server.Addr)
	}
	if cfg.Tuning.GlobalWindow != 30*time.Second {
		t.Fatalf("expected 30s global window, got %s", cfg.Tuning.GlobalWindow)
	}
	if len(cfg.Log.Sinks) != 1 || cfg.Log.Sinks[0] != logging.SinkConsole {
		t.Fatalf("expected console sink only, got %v", cfg.Log.Sinks)
	}
	if !cfg.Tuning.AllowThreatKey {
		t.Fatalf("expected threat key allowed by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHAOS_LOG_SINKS", "console,json")
	t.Setenv("CHAOS_GLOBAL_COOLDOWN", "5s")
	t.Setenv("CHAOS_KEY_COOLDOWN_SECONDS", "12.5")
	t.Setenv("CHAOS_SEED", "fixed")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected overrides to load, got %v", err)
	}
	if !cfg.Log.Logging().HasSink(logging.SinkJSON) {
		t.Fatalf("expected json sink enabled, got %v", cfg.Log.Sinks)
	}

	sess := cfg.Session()
	if sess.Gateway.GlobalWindow != 5*time.Second {
		t.Fatalf("expected 5s global window, got %s", sess.Gateway.GlobalWindow)
	}
	if got := sess.Gateway.KeyCooldowns[trigger.Hunger]; got != 12.5 {
		t.Fatalf("expected hunger cooldown 12.5, got %.1f", got)
	}
	if sess.Seed != "fixed" {
		t.Fatalf("expected seed to carry over, got %q", sess.Seed)
	}
}

func TestLoadRejectsMalformedValue(t *testing.T) {
	t.Setenv("CHAOS_MAX_MEMBERS", "many")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base, err := Load()
	if err != nil {
		t.Fatalf("expected defaults to load, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown sink", func(c *Config) { c.Log.Sinks = []string{"syslog"} }, "unknown sink"},
		{"no members", func(c *Config) { c.Server.MaxMembers = 0 }, "CHAOS_MAX_MEMBERS"},
		{"http room url", func(c *Config) { c.Peer.RoomURL = "http://localhost/ws" }, "CHAOS_ROOM_URL"},
		{"inverted threat interval", func(c *Config) { c.Tuning.ThreatMaxInterval = time.Second }, "threat interval"},
		{"zero tick rate", func(c *Config) { c.Tuning.HazardTickRate = 0 }, "CHAOS_HAZARD_TICK_RATE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			cfg.Log.Sinks = append([]string(nil), base.Log.Sinks...)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}
