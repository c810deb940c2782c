package effects

import (
	"context"
	"math"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
)

// Hunger moves the initiator's hunger onto the other active peers in random
// shares.
type Hunger struct {
	env *Env
}

func (h *Hunger) Kind() Kind              { return KindHunger }
func (h *Hunger) CountdownSeconds() int32 { return 3 }
func (h *Hunger) IntroMessage() string    { return "@triggerer@ shared his hunger... how nice?!" }

func (h *Hunger) Apply(ctx context.Context, act Activation) error {
	if !h.env.localIs(act.Initiator) {
		return nil
	}
	affs := h.env.Afflictions
	if affs == nil {
		h.env.logf("[effects] hunger: local afflictions unavailable")
		return nil
	}
	total := affs.Status(StatusHunger)
	if total <= 0 {
		return nil
	}
	affs.SetStatus(StatusHunger, 0)

	local, _ := h.env.Roster.Local()
	recipients := h.env.activePeers(func(p roster.Peer) bool { return p.ActorID == local.ActorID })
	if len(recipients) == 0 {
		h.env.logf("[effects] hunger: no other peers to receive %.2f", total)
		return nil
	}

	remaining := total
	for i, peer := range recipients {
		give := remaining
		if i < len(recipients)-1 {
			give = h.env.Rand.Range(0, remaining)
		}
		delta := proto.StatusDelta{Status: int32(StatusHunger), Amount: float32(give)}
		if err := h.env.call(ctx, peer.ActorID, proto.CallStatusDelta, delta); err != nil {
			h.env.logf("[effects] hunger: failed to send %.2f to %s: %v", give, peer.Name, err)
		}
		remaining = math.Max(0, remaining-give)
		if remaining <= 0 {
			break
		}
	}
	return nil
}
