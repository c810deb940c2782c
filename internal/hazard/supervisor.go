package hazard

import (
	"bytes"
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/world"
	hazardlog "github.com/AbriCroco/Peak-Collections-of-Chaos/logging/hazards"
)

// supervisor watches a dropped hazard until it is picked up by a touching
// peer, forced back to its holder, or its referents disappear. It is polled
// by the engine once per step.
type supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	origin Owner
	timer  float64
}

func (e *Engine) startSupervisor(ctx context.Context, id uuid.UUID, owner Owner) {
	sctx, cancel := context.WithCancel(ctx)
	e.supervisors[id] = &supervisor{
		ctx:    sctx,
		cancel: cancel,
		origin: owner,
		timer:  e.cfg.WaitSeconds,
	}
}

func (e *Engine) cancelSupervisor(id uuid.UUID) {
	if sup, ok := e.supervisors[id]; ok {
		sup.cancel()
		delete(e.supervisors, id)
	}
}

func (e *Engine) sortedSupervisors() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(e.supervisors))
	for id := range e.supervisors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}

func (e *Engine) pollSupervisor(ctx context.Context, id uuid.UUID, dt float64) {
	sup, ok := e.supervisors[id]
	if !ok {
		return
	}
	if e.supervise(ctx, id, sup, dt) {
		e.cancelSupervisor(id)
	}
}

// supervise returns true once the task is finished.
func (e *Engine) supervise(ctx context.Context, id uuid.UUID, sup *supervisor, dt float64) bool {
	if sup.ctx.Err() != nil {
		return true
	}
	inst, ok := e.deps.Registry.Get(id)
	if !ok {
		return true
	}
	owner, ok := e.deps.Registry.Owner(id)
	if !ok || owner.Holder != sup.origin.Holder {
		return true
	}
	itemPos, inWorld := e.deps.World.WorldItem(id)
	if !inWorld {
		return true
	}

	if !inst.OwnerChanged {
		if peer, ok := e.touchingPeer(sup.origin.Holder, itemPos); ok {
			e.transfer(ctx, inst, sup.origin, peer.ActorID)
			return true
		}
	}

	holder, ok := e.peer(sup.origin.Holder)
	if ok && holder.Position.Dist(itemPos) <= e.cfg.CloseRadius {
		sup.timer = e.cfg.WaitSeconds
	} else {
		sup.timer -= dt
	}

	if sup.timer <= 0 || inst.FuseRemaining <= e.cfg.Epsilon+e.cfg.ReturnMargin {
		if e.deps.World.SlotHolds(sup.origin.Holder, sup.origin.Slot, id) {
			return true
		}
		e.returnToSlot(ctx, inst, sup.origin)
		return true
	}
	return false
}

func (e *Engine) peer(actor int32) (roster.Peer, bool) {
	if e.deps.Roster == nil {
		return roster.Peer{}, false
	}
	return e.deps.Roster.Peer(actor)
}

// touchingPeer picks the closest peer allowed to catch a dropped hazard.
func (e *Engine) touchingPeer(holder int32, itemPos roster.Vec3) (roster.Peer, bool) {
	if e.deps.Roster == nil {
		return roster.Peer{}, false
	}
	var (
		best     roster.Peer
		bestDist float64
		found    bool
	)
	for _, p := range e.deps.Roster.Peers() {
		if p.ActorID == holder || p.Bot || !p.Alive || !p.Conscious || p.PassedOut {
			continue
		}
		dist := p.Position.Dist(itemPos)
		if dist > e.cfg.TouchRadius || !e.deps.World.HasFreeSlot(p.ActorID) {
			continue
		}
		if !found || dist < bestDist {
			best, bestDist, found = p, dist, true
		}
	}
	return best, found
}

func (e *Engine) releaseHeld(ctx context.Context, actor int32, id uuid.UUID) {
	held, ok := e.deps.World.HeldItem(actor)
	if !ok || held.Instance != id {
		return
	}
	e.deps.World.SetHeld(actor, world.NoSlot)
	e.call(ctx, actor, proto.CallDestroyHeld, nil)
	e.call(ctx, actor, proto.CallEquipSlot, proto.EquipSlot{Slot: proto.UnequipSlot})
}

func (e *Engine) transfer(ctx context.Context, inst *Instance, from Owner, to int32) {
	w := e.deps.World
	e.releaseHeld(ctx, from.Holder, inst.ID)
	if w.SlotHolds(from.Holder, from.Slot, inst.ID) {
		w.EmptySlot(from.Holder, from.Slot)
	}
	w.DestroyWorldItem(inst.ID)

	slot, ok := w.AddItem(to, world.HazardSlot(inst.ID))
	if !ok {
		e.deps.Logger.Printf("[hazard] transfer of %s to %d failed: no free slot", inst.ID, to)
		e.returnToSlot(ctx, inst, from)
		return
	}
	_ = e.deps.Registry.SetOwner(inst.ID, Owner{Holder: to, Slot: slot})
	e.schedule(pendingEquip{
		hazard:        inst.ID,
		actor:         to,
		slot:          slot,
		due:           e.clock + e.cfg.TransferEquip,
		requireActive: true,
	})
	inst.OwnerChanged = true

	e.syncInventory(ctx, from.Holder, true)
	e.syncInventory(ctx, to, true)

	if e.deps.Metrics != nil {
		e.deps.Metrics.Add(telemetry.MetricHazardTransferred, 1)
	}
	hazardlog.Transferred(ctx, e.deps.Publisher, e.tick, inst.ID.String(), hazardlog.TransferredPayload{
		From:     from.Holder,
		To:       to,
		Slot:     slot,
		FuseLeft: inst.FuseRemaining,
	})
}

func (e *Engine) returnToSlot(ctx context.Context, inst *Instance, origin Owner) {
	w := e.deps.World
	w.DestroyWorldItem(inst.ID)
	if displaced, _ := w.PutItem(origin.Holder, origin.Slot, world.HazardSlot(inst.ID)); !displaced.Empty() && displaced.Instance != inst.ID {
		e.deps.Logger.Printf("[hazard] return of %s displaced %q from %d slot %d", inst.ID, displaced.Item, origin.Holder, origin.Slot)
	}
	_ = e.deps.Registry.SetOwner(inst.ID, origin)
	e.schedule(pendingEquip{
		hazard: inst.ID,
		actor:  origin.Holder,
		slot:   origin.Slot,
		due:    e.clock + e.cfg.ReturnEquip,
	})
	e.syncInventory(ctx, origin.Holder, true)

	if e.deps.Metrics != nil {
		e.deps.Metrics.Add(telemetry.MetricHazardReturned, 1)
	}
	hazardlog.Returned(ctx, e.deps.Publisher, e.tick, inst.ID.String(), hazardlog.ReturnedPayload{
		Holder:   origin.Holder,
		Slot:     origin.Slot,
		FuseLeft: inst.FuseRemaining,
	})
}
