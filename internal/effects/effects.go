// Package effects implements the chaos events that a countdown resolves into.
// Each effect decides locally whether this peer is the one that performs the
// apply step; the other peers only see the countdown.
package effects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/intro"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/rng"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
)

// Kind identifies an effect on the wire.
type Kind uint8

const (
	KindCleanse Kind = iota + 1
	KindBoost
	KindHunger
	KindCatchHazard
	KindThreat
	KindClearThreatHUD
)

var kindNames = map[Kind]string{
	KindCleanse:        "cleanse",
	KindBoost:          "boost",
	KindHunger:         "hunger",
	KindCatchHazard:    "catch_hazard",
	KindThreat:         "threat",
	KindClearThreatHUD: "clear_threat_hud",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("effect(%d)", uint8(k))
}

var (
	// ErrNotPrepared is returned when the prepared value is gone at apply time.
	// Recomputing it would desync the peers, so the apply is abandoned.
	ErrNotPrepared = errors.New("effects: prepared value missing")
	// ErrVictimMissing is returned when the designated victim left the roster.
	ErrVictimMissing = errors.New("effects: victim not found")
	// ErrNoCandidates is returned when no peer qualifies as a victim.
	ErrNoCandidates = errors.New("effects: no eligible peers")
)

// Activation carries the broadcast values an effect needs at apply time.
type Activation struct {
	Initiator string
	VictimID  int32
	Targets   []int32
}

// Effect is one entry of the registry.
type Effect interface {
	Kind() Kind
	IntroMessage() string
	CountdownSeconds() int32
	Apply(ctx context.Context, act Activation) error
}

// Previewer is implemented by effects whose outcome is rolled once by the
// initiator before the countdown is broadcast.
type Previewer interface {
	Preview(ctx context.Context, initiator string, ttl time.Duration) (string, error)
}

// Caller sends directed remote calls.
type Caller interface {
	Call(ctx context.Context, actor int32, call proto.Call) error
	CallAll(ctx context.Context, call proto.Call) error
}

// Afflictions is the local character's status bars.
type Afflictions interface {
	Status(kind Status) float64
	SetStatus(kind Status, value float64)
	AddStatus(kind Status, amount float64)
}

// HazardSpawner hands a lit hazard to a holder. Implemented by the hazard engine.
type HazardSpawner interface {
	Spawn(ctx context.Context, holder int32, fuseSeconds float64) error
}

// ThreatDirector starts a threat chase. Implemented by the threat controller.
type ThreatDirector interface {
	Summon(ctx context.Context) error
}

// Env is the set of collaborators shared by every effect.
type Env struct {
	Roster      roster.Roster
	Cache       *intro.Cache
	Remote      Caller
	Afflictions Afflictions
	Rand        *rng.Source
	Hazards     HazardSpawner
	Threat      ThreatDirector
	// Coordinator reports whether the local peer currently runs the
	// authoritative simulation.
	Coordinator func() bool
	Logger      telemetry.Logger
}

func (e *Env) logf(format string, args ...any) {
	if e == nil || e.Logger == nil {
		return
	}
	e.Logger.Printf(format, args...)
}

func (e *Env) isCoordinator() bool {
	return e != nil && e.Coordinator != nil && e.Coordinator()
}

// localIs reports whether the local peer's display name is name.
func (e *Env) localIs(name string) bool {
	if e == nil || e.Roster == nil || name == "" {
		return false
	}
	local, ok := e.Roster.Local()
	return ok && local.Name == name
}

func (e *Env) call(ctx context.Context, actor int32, kind proto.CallKind, body any) error {
	if e.Remote == nil {
		return nil
	}
	call, err := proto.NewCall(kind, body)
	if err != nil {
		return err
	}
	return e.Remote.Call(ctx, actor, call)
}

func (e *Env) callAll(ctx context.Context, kind proto.CallKind, body any) error {
	if e.Remote == nil {
		return nil
	}
	call, err := proto.NewCall(kind, body)
	if err != nil {
		return err
	}
	return e.Remote.CallAll(ctx, call)
}

// publishPreview stores the rolled value locally and replicates it so every
// peer resolves the same intro text.
func (e *Env) publishPreview(ctx context.Context, kind Kind, initiator, text string, numeric float64, ttl time.Duration) {
	e.Cache.Set(uint8(kind), initiator, text, numeric, ttl)
	err := e.callAll(ctx, proto.CallIntroPreview, proto.IntroPreview{
		EffectKind: uint8(kind),
		Initiator:  initiator,
		Text:       text,
		Numeric:    float32(numeric),
		TTLSeconds: float32(ttl.Seconds()),
	})
	if err != nil {
		e.logf("[effects] %s: failed to broadcast preview: %v", kind, err)
	}
}

// latestText returns the freshest prepared text for kind, or "".
func (e *Env) latestText(kind Kind) string {
	if e == nil || e.Cache == nil {
		return ""
	}
	if prepared, ok := e.Cache.TryGetLatest(uint8(kind)); ok {
		return prepared.Text
	}
	return ""
}

func (e *Env) activePeers(exclude func(roster.Peer) bool) []roster.Peer {
	if e == nil || e.Roster == nil {
		return nil
	}
	return roster.Filter(e.Roster.Peers(), func(p roster.Peer) bool {
		if !p.Active() {
			return false
		}
		return exclude == nil || !exclude(p)
	})
}
