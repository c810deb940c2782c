package hazard

import (
	"bytes"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
)

var (
	ErrDuplicate = errors.New("hazard: instance already registered")
	ErrUnknown   = errors.New("hazard: unknown instance")
)

// Instance is one lit hazard. Its fields are owned by the engine goroutine.
type Instance struct {
	ID                uuid.UUID
	FuseRemaining     float64
	FuseTotal         float64
	UsePercent        float64
	DebounceRemaining int
	OwnerChanged      bool
}

// Owner locates a hazard inside an inventory.
type Owner struct {
	Holder int32
	Slot   uint8
}

// Registry indexes live hazards and their owners.
type Registry struct {
	mu        sync.RWMutex
	instances map[uuid.UUID]*Instance
	owners    map[uuid.UUID]Owner
}

func NewRegistry() *Registry {
	return &Registry{
		instances: make(map[uuid.UUID]*Instance),
		owners:    make(map[uuid.UUID]Owner),
	}
}

// Register tracks inst under owner.
func (r *Registry) Register(inst *Instance, owner Owner) error {
	if r == nil || inst == nil {
		return ErrUnknown
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instances[inst.ID]; exists {
		return ErrDuplicate
	}
	r.instances[inst.ID] = inst
	r.owners[inst.ID] = owner
	return nil
}

func (r *Registry) Get(id uuid.UUID) (*Instance, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[id]
	return inst, ok
}

func (r *Registry) Owner(id uuid.UUID) (Owner, bool) {
	if r == nil {
		return Owner{Holder: roster.NoActor}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[id]
	if !ok {
		return Owner{Holder: roster.NoActor}, false
	}
	return owner, true
}

// SetOwner moves a tracked hazard to a new holder.
func (r *Registry) SetOwner(id uuid.UUID, owner Owner) error {
	if r == nil {
		return ErrUnknown
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[id]; !ok {
		return ErrUnknown
	}
	r.owners[id] = owner
	return nil
}

func (r *Registry) ClearOwner(id uuid.UUID) {
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.owners, id)
	r.mu.Unlock()
}

// Deregister forgets id and reports whether it was tracked.
func (r *Registry) Deregister(id uuid.UUID) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[id]; !ok {
		return false
	}
	delete(r.instances, id)
	delete(r.owners, id)
	return true
}

// IDs returns a sorted snapshot of the tracked ids.
func (r *Registry) IDs() []uuid.UUID {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.instances))
	for id := range r.instances {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
	return ids
}

// HeldBy lists the hazards owned by actor.
func (r *Registry) HeldBy(actor int32) []uuid.UUID {
	if r == nil {
		return nil
	}
	var ids []uuid.UUID
	for _, id := range r.IDs() {
		if owner, ok := r.Owner(id); ok && owner.Holder == actor {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}

func (r *Registry) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.instances = make(map[uuid.UUID]*Instance)
	r.owners = make(map[uuid.UUID]Owner)
	r.mu.Unlock()
}
