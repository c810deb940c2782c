package effects

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
)

const (
	cleanseFailChance   = 0.05
	cleanseFailInjury   = 0.7
	cleanseSelfDrowsy   = 2.0
	cleanseVictimDrowsy = 1.25
	cleanseVictimCap    = 1.5
)

// Cleanse clears the initiator's afflictions at the price of drowsiness for
// the initiator and a random victim. A small chance backfires into injury.
type Cleanse struct {
	env *Env
}

func (c *Cleanse) Kind() Kind              { return KindCleanse }
func (c *Cleanse) CountdownSeconds() int32 { return 5 }
func (c *Cleanse) IntroMessage() string    { return c.env.latestText(KindCleanse) }

func (c *Cleanse) Preview(ctx context.Context, initiator string, ttl time.Duration) (string, error) {
	if !c.env.localIs(initiator) {
		return c.IntroMessage(), nil
	}
	luck := c.env.Rand.Float64()
	text := "An occult ritual just occured..."
	if luck < cleanseFailChance {
		text = "@triggerer@ just failed a ritual... miserably"
	}
	c.env.publishPreview(ctx, KindCleanse, initiator, text, luck, ttl)
	return text, nil
}

func (c *Cleanse) Apply(ctx context.Context, act Activation) error {
	if !c.env.localIs(act.Initiator) {
		return nil
	}
	affs := c.env.Afflictions
	if affs == nil {
		c.env.logf("[effects] cleanse: local afflictions unavailable")
		return nil
	}
	prepared, ok := c.env.Cache.Consume(uint8(KindCleanse), act.Initiator)
	if !ok {
		return ErrNotPrepared
	}
	if prepared.Numeric < cleanseFailChance {
		affs.AddStatus(StatusInjury, cleanseFailInjury)
		return nil
	}

	removed := 0.0
	for _, status := range AllStatuses() {
		if !status.cleansable() {
			continue
		}
		before := affs.Status(status)
		if before <= 0 {
			continue
		}
		affs.SetStatus(status, 0)
		removed += before
	}
	if removed <= 0 {
		return nil
	}

	affs.AddStatus(StatusDrowsy, removed*cleanseSelfDrowsy)

	if act.VictimID == roster.NoActor {
		return nil
	}
	victim, ok := c.env.Roster.Peer(act.VictimID)
	if !ok {
		return fmt.Errorf("cleanse victim %d: %w", act.VictimID, ErrVictimMissing)
	}
	drowsy := math.Min(math.Max(removed*cleanseVictimDrowsy, 0), cleanseVictimCap)
	delta := proto.StatusDelta{Status: int32(StatusDrowsy), Amount: float32(drowsy)}
	if err := c.env.call(ctx, victim.ActorID, proto.CallStatusDelta, delta); err != nil {
		return fmt.Errorf("cleanse victim drowsy: %w", err)
	}
	return nil
}
