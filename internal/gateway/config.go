package gateway

import (
	"time"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/trigger"
)

// Config holds the gating policy. Zero values disable the matching check.
type Config struct {
	// GlobalWindow blocks the keys in GlobalKeys after any scheduled trigger.
	GlobalWindow time.Duration
	GlobalKeys   []trigger.Key
	// KeyCooldowns are per-key durations in seconds, carried on the broadcast
	// so every peer applies the same value.
	KeyCooldowns map[trigger.Key]float64
	MaxUses      map[trigger.Key]int
	PreviewTTL   time.Duration

	ForceDifferentPlayer bool
	RequireTwoAlive      bool
	AllowSelfBoost       bool
	AllowThreatKey       bool

	NoticeWindow   time.Duration
	NoticeZeroHold time.Duration
}

// DefaultConfig mirrors the tuning the mod shipped with.
func DefaultConfig() Config {
	return Config{
		GlobalWindow: 30 * time.Second,
		GlobalKeys:   []trigger.Key{trigger.Cleanse, trigger.Boost, trigger.Hunger},
		KeyCooldowns: map[trigger.Key]float64{
			trigger.Cleanse: 100,
			trigger.Boost:   100,
			trigger.Hunger:  100,
		},
		MaxUses: map[trigger.Key]int{
			trigger.Cleanse: 99,
			trigger.Boost:   99,
			trigger.Hunger:  99,
		},
		PreviewTTL:     60 * time.Second,
		AllowThreatKey: true,
		NoticeWindow:   2 * time.Second,
		NoticeZeroHold: 500 * time.Millisecond,
	}
}

func (c Config) globalGated(key trigger.Key) bool {
	for _, k := range c.GlobalKeys {
		if k == key {
			return true
		}
	}
	return false
}

func (c Config) keyCooldown(key trigger.Key) float64 {
	seconds := c.KeyCooldowns[key]
	if seconds < 0 {
		return 0
	}
	return seconds
}
