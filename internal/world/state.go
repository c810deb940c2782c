// Package world is the coordinator's model of the things hazards interact
// with: inventories, free-standing world items, campfires and explosions.
package world

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
)

// SlotCount is the number of item slots each character carries.
const SlotCount = 3

// NoSlot marks "nothing held".
const NoSlot = -1

// HazardItem is the item name stored in slots that hold a hazard.
const HazardItem = "hazard"

// Slot is the content of one inventory slot. Instance is set for hazards.
type Slot struct {
	Item     string    `json:"item,omitempty" msgpack:"item"`
	Instance uuid.UUID `json:"instance,omitempty" msgpack:"instance"`
}

func (s Slot) Empty() bool { return s.Item == "" }

// HazardSlot builds the slot content for hazard id.
func HazardSlot(id uuid.UUID) Slot {
	return Slot{Item: HazardItem, Instance: id}
}

type inventory struct {
	slots [SlotCount]Slot
	held  int
}

func newInventory() *inventory {
	return &inventory{held: NoSlot}
}

// Campfire is a fixed landmark. Unlit campfires attract explosions.
type Campfire struct {
	ID       string      `json:"id"`
	Position roster.Vec3 `json:"position"`
	Lit      bool        `json:"lit"`
}

// Explosion records one resolved hazard.
type Explosion struct {
	ID       uuid.UUID   `json:"id"`
	Holder   int32       `json:"holder"`
	Position roster.Vec3 `json:"position"`
	Tick     uint64      `json:"tick"`
}

// State is safe for concurrent use. The hazard engine mutates it from its
// loop while transport handlers feed it peer reports.
type State struct {
	mu          sync.RWMutex
	inventories map[int32]*inventory
	items       map[uuid.UUID]roster.Vec3
	campfires   []Campfire
	explosions  []Explosion
	threat      roster.Vec3
	threatKnown bool
}

func NewState() *State {
	return &State{
		inventories: make(map[int32]*inventory),
		items:       make(map[uuid.UUID]roster.Vec3),
	}
}

func (s *State) inventoryLocked(actor int32) *inventory {
	inv, ok := s.inventories[actor]
	if !ok {
		inv = newInventory()
		s.inventories[actor] = inv
	}
	return inv
}

func validSlot(slot uint8) bool {
	return int(slot) < SlotCount
}

// Slots returns a copy of actor's slots and the held slot index.
func (s *State) Slots(actor int32) ([]Slot, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.inventories[actor]
	if !ok {
		return make([]Slot, SlotCount), NoSlot
	}
	out := make([]Slot, SlotCount)
	copy(out, inv.slots[:])
	return out, inv.held
}

// SetSlots replaces actor's inventory with a reported snapshot. Extra entries
// are ignored.
func (s *State) SetSlots(actor int32, slots []Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv := s.inventoryLocked(actor)
	for i := range inv.slots {
		if i < len(slots) {
			inv.slots[i] = slots[i]
		} else {
			inv.slots[i] = Slot{}
		}
	}
}

// SlotHolds reports whether actor's slot contains hazard id.
func (s *State) SlotHolds(actor int32, slot uint8, id uuid.UUID) bool {
	if !validSlot(slot) {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.inventories[actor]
	if !ok {
		return false
	}
	content := inv.slots[slot]
	return !content.Empty() && content.Instance == id
}

// EmptySlot clears a slot and returns what it held.
func (s *State) EmptySlot(actor int32, slot uint8) Slot {
	if !validSlot(slot) {
		return Slot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.inventories[actor]
	if !ok {
		return Slot{}
	}
	previous := inv.slots[slot]
	inv.slots[slot] = Slot{}
	if inv.held == int(slot) {
		inv.held = NoSlot
	}
	return previous
}

// PutItem stores content in slot, returning whatever it displaced.
func (s *State) PutItem(actor int32, slot uint8, content Slot) (Slot, bool) {
	if !validSlot(slot) {
		return Slot{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	inv := s.inventoryLocked(actor)
	displaced := inv.slots[slot]
	inv.slots[slot] = content
	return displaced, true
}

// AddItem stores content in the first free slot.
func (s *State) AddItem(actor int32, content Slot) (uint8, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv := s.inventoryLocked(actor)
	for i := range inv.slots {
		if inv.slots[i].Empty() {
			inv.slots[i] = content
			return uint8(i), true
		}
	}
	return 0, false
}

func (s *State) HasFreeSlot(actor int32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.inventories[actor]
	if !ok {
		return true
	}
	for _, slot := range inv.slots {
		if slot.Empty() {
			return true
		}
	}
	return false
}

// SetHeld records which slot actor wields. NoSlot or an out of range value
// unequips.
func (s *State) SetHeld(actor int32, slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv := s.inventoryLocked(actor)
	if slot < 0 || slot >= SlotCount {
		inv.held = NoSlot
		return
	}
	inv.held = slot
}

// HeldItem returns the content of the slot actor wields.
func (s *State) HeldItem(actor int32) (Slot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.inventories[actor]
	if !ok || inv.held == NoSlot {
		return Slot{}, false
	}
	content := inv.slots[inv.held]
	return content, !content.Empty()
}

// Locate finds the inventory slot holding hazard id.
func (s *State) Locate(id uuid.UUID) (int32, uint8, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	actors := make([]int32, 0, len(s.inventories))
	for actor := range s.inventories {
		actors = append(actors, actor)
	}
	sort.Slice(actors, func(i, j int) bool { return actors[i] < actors[j] })
	for _, actor := range actors {
		for i, slot := range s.inventories[actor].slots {
			if !slot.Empty() && slot.Instance == id {
				return actor, uint8(i), true
			}
		}
	}
	return roster.NoActor, 0, false
}

// Evict empties every slot holding id outside keep's inventory and returns
// how many were cleared.
func (s *State) Evict(id uuid.UUID, keep int32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cleared := 0
	for actor, inv := range s.inventories {
		if actor == keep {
			continue
		}
		for i, slot := range inv.slots {
			if !slot.Empty() && slot.Instance == id {
				inv.slots[i] = Slot{}
				if inv.held == i {
					inv.held = NoSlot
				}
				cleared++
			}
		}
	}
	return cleared
}

// RemoveActor forgets a departed peer's inventory.
func (s *State) RemoveActor(actor int32) {
	s.mu.Lock()
	delete(s.inventories, actor)
	s.mu.Unlock()
}

// WorldItem returns the position of hazard id's world representation.
func (s *State) WorldItem(id uuid.UUID) (roster.Vec3, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.items[id]
	return pos, ok
}

func (s *State) SetWorldItem(id uuid.UUID, pos roster.Vec3) {
	s.mu.Lock()
	s.items[id] = pos
	s.mu.Unlock()
}

// DestroyWorldItem removes the world representation and reports whether one
// existed.
func (s *State) DestroyWorldItem(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	return true
}

func (s *State) SetCampfires(campfires []Campfire) {
	s.mu.Lock()
	s.campfires = append([]Campfire(nil), campfires...)
	s.mu.Unlock()
}

// NearestUnlitCampfire returns the closest campfire that is not burning.
func (s *State) NearestUnlitCampfire(from roster.Vec3) (Campfire, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best     Campfire
		bestDist float64
		found    bool
	)
	for _, campfire := range s.campfires {
		if campfire.Lit {
			continue
		}
		dist := from.Dist(campfire.Position)
		if !found || dist < bestDist {
			best, bestDist, found = campfire, dist, true
		}
	}
	return best, found
}

func (s *State) RecordExplosion(explosion Explosion) {
	s.mu.Lock()
	s.explosions = append(s.explosions, explosion)
	s.mu.Unlock()
}

func (s *State) Explosions() []Explosion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Explosion(nil), s.explosions...)
}

func (s *State) SetThreatPosition(pos roster.Vec3) {
	s.mu.Lock()
	s.threat = pos
	s.threatKnown = true
	s.mu.Unlock()
}

func (s *State) ThreatPosition() (roster.Vec3, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threat, s.threatKnown
}

// Reset drops everything except campfires, which belong to the scene.
func (s *State) Reset() {
	s.mu.Lock()
	s.inventories = make(map[int32]*inventory)
	s.items = make(map[uuid.UUID]roster.Vec3)
	s.explosions = nil
	s.threatKnown = false
	s.mu.Unlock()
}
