package effects

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
)

const (
	boostModifierMin  = -0.7
	boostModifierMax  = 1.5
	boostSeconds      = 10
	boostDrowsyFactor = 0.5

	sensitivityMinPercent = 0.05
	sensitivityMaxPercent = 0.50
	ragdollMinPercent     = 1.00
	ragdollMaxPercent     = 0.40
)

// Boost lets a dead peer speed up, or intoxicate, the peer they spectate.
type Boost struct {
	env *Env
}

func (b *Boost) Kind() Kind              { return KindBoost }
func (b *Boost) CountdownSeconds() int32 { return 3 }
func (b *Boost) IntroMessage() string    { return b.env.latestText(KindBoost) }

func boostText(modifier float64) string {
	switch {
	case nearZero(modifier):
		return "Nothing happened..."
	case modifier > 0:
		return "You getting boosted now??"
	default:
		return "I think you had too many drinks..."
	}
}

func (b *Boost) Preview(ctx context.Context, initiator string, ttl time.Duration) (string, error) {
	if !b.env.localIs(initiator) {
		return b.IntroMessage(), nil
	}
	modifier := b.env.Rand.Range(boostModifierMin, boostModifierMax)
	text := boostText(modifier)
	b.env.publishPreview(ctx, KindBoost, initiator, text, modifier, ttl)
	return text, nil
}

// Apply runs on the initiator only and sends the rolled modifier to the victim.
func (b *Boost) Apply(ctx context.Context, act Activation) error {
	if !b.env.localIs(act.Initiator) {
		return nil
	}
	prepared, ok := b.env.Cache.Consume(uint8(KindBoost), act.Initiator)
	if !ok {
		return ErrNotPrepared
	}
	victim, ok := b.env.Roster.Peer(act.VictimID)
	if !ok {
		return fmt.Errorf("boost victim %d: %w", act.VictimID, ErrVictimMissing)
	}
	modifier := prepared.Numeric
	if nearZero(modifier) {
		return nil
	}

	affliction := proto.TimedAffliction{
		MoveSpeedMod:  float32(modifier),
		ClimbSpeedMod: float32(modifier),
		TotalSeconds:  boostSeconds,
		DrowsyOnEnd:   float32(modifier * boostDrowsyFactor),
	}
	if err := b.env.call(ctx, victim.ActorID, proto.CallTimedAffliction, affliction); err != nil {
		return fmt.Errorf("boost affliction: %w", err)
	}
	if modifier >= 0 {
		return nil
	}
	sensitivity, ragdoll := drunkScales(modifier)
	drunk := proto.DrunkUI{Seconds: boostSeconds, Sensitivity: float32(sensitivity), Ragdoll: float32(ragdoll)}
	if err := b.env.call(ctx, victim.ActorID, proto.CallDrunkUI, drunk); err != nil {
		return fmt.Errorf("boost drunk ui: %w", err)
	}
	return nil
}

// drunkScales maps a negative modifier onto the sensitivity and ragdoll
// percentages. The strongest debuff gives the lowest sensitivity and the
// floppiest ragdoll.
func drunkScales(modifier float64) (sensitivity, ragdoll float64) {
	clamped := math.Max(boostModifierMin, math.Min(0, modifier))
	t := (clamped - boostModifierMin) / (0 - boostModifierMin)
	sensitivity = lerp(sensitivityMinPercent, sensitivityMaxPercent, t)
	ragdoll = lerp(ragdollMinPercent, ragdollMaxPercent, t)
	return sensitivity, ragdoll
}

func lerp(a, b, t float64) float64 {
	return a*(1-t) + b*t
}

func nearZero(v float64) bool {
	return math.Abs(v) < 1e-6
}
