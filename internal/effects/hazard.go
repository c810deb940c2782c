package effects

import (
	"context"
)

// HazardFuseSeconds is the fuse handed to every hazard spawned by CatchHazard.
const HazardFuseSeconds = 10.0

// CatchHazard gives lit hazards to up to half of the active peers. Runs on the
// coordinator only.
type CatchHazard struct {
	env *Env
}

func (c *CatchHazard) Kind() Kind              { return KindCatchHazard }
func (c *CatchHazard) CountdownSeconds() int32 { return 3 }
func (c *CatchHazard) IntroMessage() string    { return "Is that a dynamite?!" }

func (c *CatchHazard) Apply(ctx context.Context, _ Activation) error {
	if !c.env.isCoordinator() {
		return nil
	}
	candidates := c.env.activePeers(nil)
	if len(candidates) == 0 {
		return ErrNoCandidates
	}
	maxVictims := max(1, len(candidates)/2)
	count := c.env.Rand.Intn(maxVictims) + 1

	for i := 0; i < count && len(candidates) > 0; i++ {
		idx := c.env.Rand.Intn(len(candidates))
		victim := candidates[idx]
		candidates = append(candidates[:idx], candidates[idx+1:]...)
		if c.env.Hazards == nil {
			continue
		}
		if err := c.env.Hazards.Spawn(ctx, victim.ActorID, HazardFuseSeconds); err != nil {
			c.env.logf("[effects] catch hazard: spawn for %s failed: %v", victim.Name, err)
		}
	}
	return nil
}
