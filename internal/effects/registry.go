package effects

import (
	"sort"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/trigger"
)

// Registry resolves trigger keys and wire kinds to effects.
type Registry struct {
	byKind map[Kind]Effect
	byKey  map[trigger.Key]Kind
}

// NewRegistry registers the built-in effects against env.
func NewRegistry(env *Env) *Registry {
	r := &Registry{
		byKind: make(map[Kind]Effect),
		byKey:  make(map[trigger.Key]Kind),
	}
	r.Register(trigger.Cleanse, &Cleanse{env: env})
	r.Register(trigger.Boost, &Boost{env: env})
	r.Register(trigger.Hunger, &Hunger{env: env})
	r.Register(trigger.CatchHazard, &CatchHazard{env: env})
	r.Register(trigger.Threat, &Threat{env: env})
	r.Register(trigger.ClearThreatHUD, &ClearThreatHUD{env: env})
	return r
}

// Register binds effect to key, replacing any previous binding.
func (r *Registry) Register(key trigger.Key, effect Effect) {
	if r == nil || effect == nil {
		return
	}
	r.byKind[effect.Kind()] = effect
	if key != trigger.None {
		r.byKey[key] = effect.Kind()
	}
}

func (r *Registry) Lookup(kind Kind) (Effect, bool) {
	if r == nil {
		return nil, false
	}
	effect, ok := r.byKind[kind]
	return effect, ok
}

func (r *Registry) ForKey(key trigger.Key) (Effect, bool) {
	if r == nil {
		return nil, false
	}
	kind, ok := r.byKey[key]
	if !ok {
		return nil, false
	}
	return r.Lookup(kind)
}

// Kinds returns the registered kinds in ascending order.
func (r *Registry) Kinds() []Kind {
	if r == nil {
		return nil
	}
	kinds := make([]Kind, 0, len(r.byKind))
	for kind := range r.byKind {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
