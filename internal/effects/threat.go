package effects

import (
	"context"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
)

// Threat sends the roaming threat after a random active peer. Coordinator only.
type Threat struct {
	env *Env
}

func (t *Threat) Kind() Kind              { return KindThreat }
func (t *Threat) CountdownSeconds() int32 { return 0 }
func (t *Threat) IntroMessage() string    { return "It's coming!!!" }

func (t *Threat) Apply(ctx context.Context, _ Activation) error {
	if !t.env.isCoordinator() || t.env.Threat == nil {
		return nil
	}
	return t.env.Threat.Summon(ctx)
}

// ClearThreatHUD wipes the threat indicator on every peer. It never goes
// through a countdown.
type ClearThreatHUD struct {
	env *Env
}

func (c *ClearThreatHUD) Kind() Kind              { return KindClearThreatHUD }
func (c *ClearThreatHUD) CountdownSeconds() int32 { return 0 }
func (c *ClearThreatHUD) IntroMessage() string    { return "" }

func (c *ClearThreatHUD) Apply(ctx context.Context, _ Activation) error {
	return c.env.callAll(ctx, proto.CallClearThreatHUD, nil)
}
