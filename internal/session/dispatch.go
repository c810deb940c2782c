package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/effects"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/hazard"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/world"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/logging/lifecycle"
)

func (n *Node) dispatch(ctx context.Context, frame proto.Frame) {
	var err error
	switch frame.Type {
	case proto.FrameWelcome:
		err = n.handleWelcome(ctx, frame)
	case proto.FrameMemberJoined:
		var member proto.Member
		if err = frame.Decode(&member); err == nil {
			n.roster.Upsert(roster.Peer{ActorID: member.Actor, Name: member.Name, Alive: true, Conscious: true})
			lifecycle.PeerJoined(ctx, n.deps.Publisher, lifecycle.PeerPayload{Actor: member.Actor, Name: member.Name})
		}
	case proto.FrameMemberLeft:
		var member proto.Member
		if err = frame.Decode(&member); err == nil {
			n.roster.Remove(member.Actor)
			if n.IsCoordinator() {
				n.pushHazard(hazard.Command{Type: hazard.CommandPeerLeft, Actor: member.Actor})
			}
			lifecycle.PeerLeft(ctx, n.deps.Publisher, lifecycle.PeerPayload{Actor: member.Actor, Name: member.Name})
		}
	case proto.FrameCoordinator:
		var change proto.CoordinatorChange
		if err = frame.Decode(&change); err == nil {
			n.setCoordinator(ctx, change.Current)
		}
	case proto.FrameCountdown:
		var msg proto.StartCountdown
		if err = frame.Decode(&msg); err == nil {
			n.receiver.Handle(msg)
		}
	case proto.FrameCall:
		var call proto.Call
		if err = frame.Decode(&call); err == nil {
			err = n.handleCall(frame.From, call)
		}
	case proto.FrameProperty:
		var prop proto.Property
		if err = frame.Decode(&prop); err == nil {
			n.storeProperty(prop.Key, prop.Value)
		}
	case proto.FramePeerState:
		var state roster.Peer
		if err = frame.Decode(&state); err == nil {
			state.ActorID = frame.From
			n.roster.Upsert(state)
		}
	case proto.FrameWorldItem:
		var item proto.WorldItem
		if err = frame.Decode(&item); err == nil {
			err = n.handleWorldItem(item)
		}
	case proto.FrameInventory:
		var inv proto.InventorySync
		if err = frame.Decode(&inv); err == nil {
			n.handleInventory(frame.From, inv)
		}
	default:
		n.deps.Logger.Printf("[session] ignoring %s frame from %d", frame.Type, frame.From)
		n.addMetric(telemetry.MetricFramesIgnored)
		return
	}
	if err != nil {
		n.deps.Logger.Printf("[session] %s frame from %d: %v", frame.Type, frame.From, err)
		n.addMetric(telemetry.MetricFramesIgnored)
	}
}

func (n *Node) handleWelcome(ctx context.Context, frame proto.Frame) error {
	var welcome proto.Welcome
	if err := frame.Decode(&welcome); err != nil {
		return err
	}
	n.roster.Reset()
	n.roster.SetLocal(welcome.Actor)
	for _, member := range welcome.Members {
		n.roster.Upsert(roster.Peer{ActorID: member.Actor, Name: member.Name, Alive: true, Conscious: true})
	}
	for _, state := range welcome.States {
		if existing, ok := n.roster.Peer(state.ActorID); ok && state.Name == "" {
			state.Name = existing.Name
		}
		n.roster.Upsert(state)
	}

	n.mu.Lock()
	clear(n.properties)
	for key, value := range welcome.Properties {
		n.properties[key] = value
	}
	n.mu.Unlock()

	n.deps.Logger.Printf("[session] joined as %d with %d members", welcome.Actor, len(welcome.Members))
	n.setCoordinator(ctx, welcome.Coordinator)
	return nil
}

func (n *Node) handleCall(from int32, call proto.Call) error {
	ch := n.deps.Character
	switch call.Kind {
	case proto.CallStatusDelta:
		var msg proto.StatusDelta
		if err := call.Decode(&msg); err != nil {
			return err
		}
		ch.AddStatus(effects.Status(msg.Status), float64(msg.Amount))
	case proto.CallTimedAffliction:
		var msg proto.TimedAffliction
		if err := call.Decode(&msg); err != nil {
			return err
		}
		ch.TimedAffliction(msg)
	case proto.CallDrunkUI:
		var msg proto.DrunkUI
		if err := call.Decode(&msg); err != nil {
			return err
		}
		ch.DrunkUI(msg)
	case proto.CallIntroPreview:
		var msg proto.IntroPreview
		if err := call.Decode(&msg); err != nil {
			return err
		}
		if from == n.roster.LocalActor() {
			break
		}
		ttl := time.Duration(float64(msg.TTLSeconds) * float64(time.Second))
		n.cache.Set(msg.EffectKind, msg.Initiator, msg.Text, float64(msg.Numeric), ttl)
	case proto.CallClearThreatHUD:
		ch.ClearThreatHUD()
	case proto.CallSyncInventory:
		var msg proto.InventorySync
		if err := call.Decode(&msg); err != nil {
			return err
		}
		ch.SyncInventory(msg)
	case proto.CallEquipSlot:
		var msg proto.EquipSlot
		if err := call.Decode(&msg); err != nil {
			return err
		}
		ch.EquipSlot(msg.Slot)
	case proto.CallDestroyHeld:
		ch.DestroyHeld()
	case proto.CallPassOut:
		var msg proto.PassOut
		if err := call.Decode(&msg); err != nil {
			return err
		}
		n.passOut(from, msg.Seconds)
	case proto.CallThreatTarget:
		var msg proto.ThreatTarget
		if err := call.Decode(&msg); err != nil {
			return err
		}
		ch.ThreatTarget(msg)
	case proto.CallExplode:
		var msg proto.Explode
		if err := call.Decode(&msg); err != nil {
			return err
		}
		ch.Explode(msg)
	default:
		n.deps.Logger.Printf("[session] unknown %s from %d", call.Kind, from)
		n.addMetric(telemetry.MetricFramesIgnored)
		return nil
	}
	n.addMetric(telemetry.MetricCallsHandled)
	return nil
}

// passOut marks actor as passed out on every peer so effect rolls skip it,
// and knocks out the local character when the call came from here.
func (n *Node) passOut(actor int32, seconds float32) {
	if !n.roster.Update(actor, func(p *roster.Peer) { p.PassedOut = true }) {
		return
	}
	if actor == n.roster.LocalActor() {
		n.deps.Character.PassOut(seconds)
	}
	d := time.Duration(float64(seconds) * float64(time.Second))
	time.AfterFunc(d, func() {
		n.roster.Update(actor, func(p *roster.Peer) { p.PassedOut = false })
	})
}

func (n *Node) handleWorldItem(item proto.WorldItem) error {
	if !n.IsCoordinator() {
		return nil
	}
	id, err := uuid.Parse(item.ID)
	if err != nil {
		return err
	}
	n.pushHazard(hazard.Command{
		Type:       hazard.CommandWorldItem,
		Hazard:     id,
		Actor:      item.Reporter,
		Present:    item.Present,
		Position:   item.Position,
		PickedUpBy: item.PickedUpBy,
	})
	return nil
}

func (n *Node) handleInventory(from int32, inv proto.InventorySync) {
	if !n.IsCoordinator() {
		return
	}
	slots := make([]world.Slot, world.SlotCount)
	for _, state := range inv.Slots {
		if int(state.Slot) >= world.SlotCount {
			continue
		}
		slot := world.Slot{Item: state.Item}
		if state.Instance != "" {
			if id, err := uuid.Parse(state.Instance); err == nil {
				slot.Instance = id
			}
		}
		slots[state.Slot] = slot
	}
	n.pushHazard(hazard.Command{
		Type:  hazard.CommandInventory,
		Actor: from,
		Slots: slots,
		Held:  int(inv.Held),
	})
}

func (n *Node) pushHazard(cmd hazard.Command) {
	if err := n.engine.Push(cmd); err != nil {
		n.deps.Logger.Printf("[session] hazard command %d dropped: %v", cmd.Type, err)
	}
}
