package hazard

import (
	"context"

	"github.com/google/uuid"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/world"
	hazardlog "github.com/AbriCroco/Peak-Collections-of-Chaos/logging/hazards"
)

// resolve is the single terminal exit for a hazard. It reports false when the
// hazard was already gone.
func (e *Engine) resolve(ctx context.Context, id uuid.UUID) bool {
	if _, ok := e.deps.Registry.Get(id); !ok {
		return false
	}
	owner, _ := e.deps.Registry.Owner(id)
	w := e.deps.World

	e.releaseHeld(ctx, owner.Holder, id)
	w.DestroyWorldItem(id)
	if w.SlotHolds(owner.Holder, owner.Slot, id) {
		w.EmptySlot(owner.Holder, owner.Slot)
	}

	pos := e.explosionPoint(owner.Holder)
	w.RecordExplosion(world.Explosion{ID: id, Holder: owner.Holder, Position: pos, Tick: e.tick})
	e.callAll(ctx, proto.CallExplode, proto.Explode{ID: id.String(), X: pos.X, Y: pos.Y, Z: pos.Z})

	e.deps.Registry.ClearOwner(id)
	e.setProperty(ctx, proto.FuseKey(id.String()), nil)
	e.deps.Registry.Deregister(id)
	e.cancelSupervisor(id)
	e.dropEquips(id)
	e.syncInventory(ctx, owner.Holder, true)

	if e.deps.Metrics != nil {
		e.deps.Metrics.Add(telemetry.MetricHazardExploded, 1)
	}
	hazardlog.Exploded(ctx, e.deps.Publisher, e.tick, id.String(), hazardlog.ExplodedPayload{
		Holder: owner.Holder,
		Slot:   owner.Slot,
		X:      pos.X,
		Y:      pos.Y,
		Z:      pos.Z,
	})
	return true
}

// explosionPoint starts at the holder and leans toward the nearest unlit
// campfire on the horizontal plane, at most ExplosionOffset away. Without one
// it lands ExplosionOffset in front of the holder.
func (e *Engine) explosionPoint(holder int32) roster.Vec3 {
	peer, ok := e.peer(holder)
	if !ok {
		return roster.Vec3{}
	}
	origin := peer.Position
	if campfire, ok := e.deps.World.NearestUnlitCampfire(origin); ok {
		toward := campfire.Position.Sub(origin)
		toward.Y = 0
		dist := toward.Len()
		if dist == 0 {
			return origin
		}
		return origin.Add(toward.Normalized().Scale(min(dist, e.cfg.ExplosionOffset)))
	}
	forward := peer.Forward
	if forward.LenSq() == 0 {
		forward = roster.Vec3{Z: 1}
	}
	return origin.Add(forward.Normalized().Scale(e.cfg.ExplosionOffset))
}
