// Package hazard runs the coordinator's fuse simulation: lit hazards burn
// down in their holder's inventory, freeze while dropped, jump to peers that
// touch them and explode exactly once.
package hazard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/rng"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/world"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/logging"
	hazardlog "github.com/AbriCroco/Peak-Collections-of-Chaos/logging/hazards"
)

var ErrQueueFull = errors.New("hazard: command buffer full")

// Remote is the room surface the engine talks through.
type Remote interface {
	Call(ctx context.Context, actor int32, call proto.Call) error
	CallAll(ctx context.Context, call proto.Call) error
	SetProperty(ctx context.Context, key string, value []byte) error
	Property(key string) ([]byte, bool)
}

type Deps struct {
	Registry  *Registry
	World     *world.State
	Roster    roster.Roster
	Remote    Remote
	Rand      *rng.Source
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Now       func() time.Time
}

type pendingEquip struct {
	hazard        uuid.UUID
	actor         int32
	slot          uint8
	due           float64
	requireActive bool
}

// Engine owns every mutation of hazard state. Step is called from a single
// goroutine; Push and Spawn may be called from anywhere.
type Engine struct {
	cfg      Config
	deps     Deps
	commands *CommandBuffer

	mu          sync.Mutex
	tick        uint64
	clock       float64
	supervisors map[uuid.UUID]*supervisor
	equips      []pendingEquip
}

func NewEngine(cfg Config, deps Deps) *Engine {
	cfg = cfg.withDefaults()
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.World == nil {
		deps.World = world.NewState()
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.NopLogger()
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{
		cfg:         cfg,
		deps:        deps,
		commands:    NewCommandBuffer(cfg.CommandCapacity, deps.Metrics),
		supervisors: make(map[uuid.UUID]*supervisor),
	}
}

func (e *Engine) Registry() *Registry { return e.deps.Registry }

func (e *Engine) World() *world.State { return e.deps.World }

// Push stages a command for the next step.
func (e *Engine) Push(cmd Command) error {
	if e == nil {
		return ErrQueueFull
	}
	if !e.commands.Push(cmd) {
		return ErrQueueFull
	}
	return nil
}

// Spawn hands a lit hazard to holder on the next step.
func (e *Engine) Spawn(_ context.Context, holder int32, fuseSeconds float64) error {
	if fuseSeconds <= 0 {
		return fmt.Errorf("hazard: spawn fuse %.2f: must be positive", fuseSeconds)
	}
	return e.Push(Command{Type: CommandSpawn, Hazard: uuid.New(), Actor: holder, Fuse: fuseSeconds})
}

// Run drives Step at the configured tick rate until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	if e == nil {
		return
	}
	tickRate := e.cfg.TickRate
	budget := time.Second / time.Duration(tickRate)
	ticker := time.NewTicker(budget)
	defer ticker.Stop()

	budgetSeconds := budget.Seconds()
	maxDt := budgetSeconds * float64(e.cfg.CatchupMaxTicks)
	last := e.deps.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := e.deps.Now()
			dt := now.Sub(last).Seconds()
			if dt <= 0 {
				dt = budgetSeconds
			} else if dt > maxDt {
				dt = maxDt
			}
			last = now
			e.Step(ctx, dt)
		}
	}
}

// Step advances the simulation by dt seconds.
func (e *Engine) Step(ctx context.Context, dt float64) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.tick++
	e.clock += dt

	for _, cmd := range e.commands.Drain() {
		e.apply(ctx, cmd)
	}
	e.runEquips(ctx)

	for _, id := range e.deps.Registry.IDs() {
		e.guard(id, func() { e.stepInstance(ctx, id, dt) })
	}
	for _, id := range e.sortedSupervisors() {
		e.guard(id, func() { e.pollSupervisor(ctx, id, dt) })
	}

	if e.deps.Metrics != nil {
		e.deps.Metrics.Store(telemetry.MetricHazardActive, uint64(e.deps.Registry.Len()))
	}
}

func (e *Engine) guard(id uuid.UUID, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.deps.Logger.Printf("[hazard] step %s panicked: %v", id, r)
			if e.deps.Metrics != nil {
				e.deps.Metrics.Add(telemetry.MetricHazardFaults, 1)
			}
		}
	}()
	fn()
}

func (e *Engine) apply(ctx context.Context, cmd Command) {
	w := e.deps.World
	switch cmd.Type {
	case CommandSpawn:
		e.spawn(ctx, cmd.Hazard, cmd.Actor, cmd.Fuse)
	case CommandWorldItem:
		if cmd.Present {
			if owner, ok := e.deps.Registry.Owner(cmd.Hazard); ok && w.SlotHolds(owner.Holder, owner.Slot, cmd.Hazard) {
				w.EmptySlot(owner.Holder, owner.Slot)
			}
			w.SetWorldItem(cmd.Hazard, cmd.Position)
			return
		}
		w.DestroyWorldItem(cmd.Hazard)
		if cmd.PickedUpBy != roster.NoActor {
			w.AddItem(cmd.PickedUpBy, world.HazardSlot(cmd.Hazard))
		}
	case CommandInventory:
		merged := e.mergeReported(cmd.Actor, cmd.Slots)
		w.SetSlots(cmd.Actor, merged)
		w.SetHeld(cmd.Actor, cmd.Held)
		for _, slot := range merged {
			if slot.Item == world.HazardItem {
				w.Evict(slot.Instance, cmd.Actor)
			}
		}
	case CommandPeerLeft:
		w.RemoveActor(cmd.Actor)
	default:
		e.deps.Logger.Printf("[hazard] unknown command type %d", cmd.Type)
	}
}

// mergeReported keeps registered hazards in the slots the engine put them in
// unless the report places the same instance somewhere else. Reports can lag
// behind a spawn or a transfer by a frame or two, so a reported hazard that
// still sits in another holder's recorded slot is dropped from the report.
func (e *Engine) mergeReported(actor int32, reported []world.Slot) []world.Slot {
	merged := make([]world.Slot, world.SlotCount)
	copy(merged, reported)
	seen := make(map[uuid.UUID]bool, len(merged))
	for i, slot := range merged {
		if slot.Item != world.HazardItem {
			continue
		}
		if owner, ok := e.deps.Registry.Owner(slot.Instance); ok && owner.Holder != actor &&
			e.deps.World.SlotHolds(owner.Holder, owner.Slot, slot.Instance) {
			merged[i] = world.Slot{}
			continue
		}
		seen[slot.Instance] = true
	}
	current, _ := e.deps.World.Slots(actor)
	for i, slot := range current {
		if slot.Item != world.HazardItem || seen[slot.Instance] {
			continue
		}
		if _, ok := e.deps.Registry.Get(slot.Instance); ok {
			merged[i] = slot
		}
	}
	return merged
}

func (e *Engine) spawn(ctx context.Context, id uuid.UUID, holder int32, fuse float64) {
	w := e.deps.World
	slot, ok := w.AddItem(holder, world.HazardSlot(id))
	if !ok {
		slot = uint8(e.deps.Rand.Intn(world.SlotCount))
		dropped := w.EmptySlot(holder, slot)
		w.PutItem(holder, slot, world.HazardSlot(id))
		e.deps.Logger.Printf("[hazard] inventory of %d full, dropped %q from slot %d", holder, dropped.Item, slot)
	}

	inst := &Instance{
		ID:                id,
		FuseRemaining:     fuse,
		FuseTotal:         fuse,
		UsePercent:        1,
		DebounceRemaining: e.cfg.DebounceTicks,
	}
	if err := e.deps.Registry.Register(inst, Owner{Holder: holder, Slot: slot}); err != nil {
		e.deps.Logger.Printf("[hazard] register %s: %v", id, err)
		return
	}
	e.setProperty(ctx, proto.FuseKey(id.String()), proto.EncodeFuse(fuse))
	e.syncInventory(ctx, holder, true)

	if e.deps.Metrics != nil {
		e.deps.Metrics.Add(telemetry.MetricHazardRegistered, 1)
	}
	hazardlog.Registered(ctx, e.deps.Publisher, e.tick, id.String(), hazardlog.RegisteredPayload{
		Holder: holder,
		Slot:   slot,
		Fuse:   fuse,
	})
}

func (e *Engine) stepInstance(ctx context.Context, id uuid.UUID, dt float64) {
	inst, ok := e.deps.Registry.Get(id)
	if !ok {
		return
	}
	owner, ok := e.deps.Registry.Owner(id)
	if !ok || owner.Holder == roster.NoActor {
		return
	}
	w := e.deps.World
	_, inWorld := w.WorldItem(id)

	if !inWorld {
		if !w.SlotHolds(owner.Holder, owner.Slot, id) {
			var adopted bool
			owner, adopted = e.adopt(ctx, inst, owner)
			if !adopted {
				return
			}
		}
		inst.FuseRemaining = max(0, inst.FuseRemaining-dt)
		if total := e.fuseTotal(inst); total > 0 {
			inst.UsePercent = clamp01(inst.FuseRemaining / total)
		}
		if e.tick%e.cfg.SyncEvery == 0 {
			e.syncInventory(ctx, owner.Holder, false)
		}
	}

	expired := inst.FuseRemaining <= e.cfg.Epsilon
	if !inWorld && !expired {
		return
	}
	if inst.OwnerChanged {
		if inst.DebounceRemaining > 0 {
			inst.DebounceRemaining--
			return
		}
		inst.OwnerChanged = false
		inst.DebounceRemaining = e.cfg.DebounceTicks
	}
	if inWorld {
		if _, pending := e.supervisors[id]; !pending {
			e.startSupervisor(ctx, id, owner)
		}
	}
	if expired && w.SlotHolds(owner.Holder, owner.Slot, id) {
		e.resolve(ctx, id)
	}
}

// adopt re-homes a hazard that left its recorded slot without a handoff.
func (e *Engine) adopt(ctx context.Context, inst *Instance, previous Owner) (Owner, bool) {
	holder, slot, found := e.deps.World.Locate(inst.ID)
	if found {
		owner := Owner{Holder: holder, Slot: slot}
		_ = e.deps.Registry.SetOwner(inst.ID, owner)
		e.deps.Logger.Printf("[hazard] %s found with %d slot %d", inst.ID, holder, slot)
		return owner, true
	}

	e.cancelSupervisor(inst.ID)
	e.dropEquips(inst.ID)
	e.deps.Registry.Deregister(inst.ID)
	e.setProperty(ctx, proto.FuseKey(inst.ID.String()), nil)
	if e.deps.Metrics != nil {
		e.deps.Metrics.Add(telemetry.MetricHazardOrphaned, 1)
	}
	hazardlog.Orphaned(ctx, e.deps.Publisher, e.tick, inst.ID.String(), hazardlog.OrphanedPayload{Holder: previous.Holder})
	return Owner{Holder: roster.NoActor}, false
}

func (e *Engine) fuseTotal(inst *Instance) float64 {
	if e.deps.Remote != nil {
		if raw, ok := e.deps.Remote.Property(proto.FuseKey(inst.ID.String())); ok {
			if total, err := proto.DecodeFuse(raw); err == nil && total > 0 {
				return total
			}
		}
	}
	return inst.FuseTotal
}

func (e *Engine) schedule(equip pendingEquip) {
	e.equips = append(e.equips, equip)
}

func (e *Engine) runEquips(ctx context.Context) {
	if len(e.equips) == 0 {
		return
	}
	remaining := e.equips[:0]
	var due []pendingEquip
	for _, equip := range e.equips {
		if equip.due <= e.clock {
			due = append(due, equip)
			continue
		}
		remaining = append(remaining, equip)
	}
	e.equips = remaining
	for _, equip := range due {
		if equip.requireActive {
			if _, ok := e.deps.Registry.Get(equip.hazard); !ok {
				continue
			}
		}
		e.deps.World.SetHeld(equip.actor, int(equip.slot))
		e.call(ctx, equip.actor, proto.CallEquipSlot, proto.EquipSlot{Slot: equip.slot})
	}
}

func (e *Engine) dropEquips(id uuid.UUID) {
	remaining := e.equips[:0]
	for _, equip := range e.equips {
		if equip.hazard != id {
			remaining = append(remaining, equip)
		}
	}
	e.equips = remaining
}

func (e *Engine) syncInventory(ctx context.Context, actor int32, full bool) {
	slots, held := e.deps.World.Slots(actor)
	states := make([]proto.SlotState, 0, len(slots))
	for i, slot := range slots {
		state := proto.SlotState{Slot: uint8(i), Item: slot.Item}
		if inst, ok := e.deps.Registry.Get(slot.Instance); ok && !slot.Empty() {
			state.UsePercent = float32(inst.UsePercent)
			state.Instance = slot.Instance.String()
		}
		states = append(states, state)
	}
	e.callAll(ctx, proto.CallSyncInventory, proto.InventorySync{Owner: actor, Slots: states, Full: full, Held: int32(held)})
}

func (e *Engine) call(ctx context.Context, actor int32, kind proto.CallKind, body any) {
	if e.deps.Remote == nil {
		return
	}
	call, err := proto.NewCall(kind, body)
	if err == nil {
		err = e.deps.Remote.Call(ctx, actor, call)
	}
	if err != nil {
		e.remoteFailed(kind, err)
	}
}

func (e *Engine) callAll(ctx context.Context, kind proto.CallKind, body any) {
	if e.deps.Remote == nil {
		return
	}
	call, err := proto.NewCall(kind, body)
	if err == nil {
		err = e.deps.Remote.CallAll(ctx, call)
	}
	if err != nil {
		e.remoteFailed(kind, err)
	}
}

func (e *Engine) setProperty(ctx context.Context, key string, value []byte) {
	if e.deps.Remote == nil {
		return
	}
	if err := e.deps.Remote.SetProperty(ctx, key, value); err != nil {
		e.deps.Logger.Printf("[hazard] set property %s: %v", key, err)
	}
}

func (e *Engine) remoteFailed(kind proto.CallKind, err error) {
	e.deps.Logger.Printf("[hazard] %s call failed: %v", kind, err)
	if e.deps.Metrics != nil {
		e.deps.Metrics.Add(telemetry.MetricRemoteCallFailed, 1)
	}
}

// View is a read-only copy of one instance for diagnostics.
type View struct {
	ID            string  `json:"id"`
	Holder        int32   `json:"holder"`
	Slot          uint8   `json:"slot"`
	FuseRemaining float64 `json:"fuseRemaining"`
	FuseTotal     float64 `json:"fuseTotal"`
	UsePercent    float64 `json:"usePercent"`
	InWorld       bool    `json:"inWorld"`
	OwnerChanged  bool    `json:"ownerChanged"`
	Supervised    bool    `json:"supervised"`
}

func (e *Engine) Snapshot() []View {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := e.deps.Registry.IDs()
	views := make([]View, 0, len(ids))
	for _, id := range ids {
		inst, ok := e.deps.Registry.Get(id)
		if !ok {
			continue
		}
		owner, _ := e.deps.Registry.Owner(id)
		_, inWorld := e.deps.World.WorldItem(id)
		_, supervised := e.supervisors[id]
		views = append(views, View{
			ID:            id.String(),
			Holder:        owner.Holder,
			Slot:          owner.Slot,
			FuseRemaining: inst.FuseRemaining,
			FuseTotal:     inst.FuseTotal,
			UsePercent:    inst.UsePercent,
			InWorld:       inWorld,
			OwnerChanged:  inst.OwnerChanged,
			Supervised:    supervised,
		})
	}
	return views
}

// Reset drops every hazard without notifying peers. Used on scene change and
// role loss.
func (e *Engine) Reset() {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for id := range e.supervisors {
		e.cancelSupervisor(id)
	}
	e.equips = nil
	e.commands.Drain()
	e.deps.Registry.Reset()
	e.deps.World.Reset()
	if e.deps.Metrics != nil {
		e.deps.Metrics.Store(telemetry.MetricHazardActive, 0)
	}
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
