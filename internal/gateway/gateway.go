// Package gateway decides whether a local key press becomes a chaos event and,
// when it does, broadcasts the countdown that every peer will run.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/cooldown"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/effects"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/rng"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/trigger"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/logging"
	loggingtriggers "github.com/AbriCroco/Peak-Collections-of-Chaos/logging/triggers"
)

// Broadcaster delivers a countdown reliably to every peer, the sender included.
type Broadcaster interface {
	Broadcast(ctx context.Context, msg proto.StartCountdown) error
}

// Deps bundles the collaborators of a Gateway. Ledger, Roster, Effects and
// Broadcast are required.
type Deps struct {
	Ledger      *cooldown.Ledger
	Roster      roster.Roster
	Effects     *effects.Registry
	Broadcast   Broadcaster
	Notifier    Notifier
	Rand        *rng.Source
	Coordinator func() bool
	Metrics     telemetry.Metrics
	Publisher   logging.Publisher
	Logger      telemetry.Logger
	Now         func() time.Time
	// Sleep is used by live notices. Defaults to a timer honouring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Gateway struct {
	cfg         Config
	ledger      *cooldown.Ledger
	roster      roster.Roster
	effects     *effects.Registry
	broadcast   Broadcaster
	notifier    Notifier
	rand        *rng.Source
	coordinator func() bool
	metrics     telemetry.Metrics
	publisher   logging.Publisher
	logger      telemetry.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error

	ctx    context.Context
	cancel context.CancelFunc

	noticeMu     sync.Mutex
	noticeCancel context.CancelFunc
	wg           sync.WaitGroup
}

func New(cfg Config, deps Deps) *Gateway {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepContext
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.NopLogger()
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Coordinator == nil {
		deps.Coordinator = func() bool { return false }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		cfg:         cfg,
		ledger:      deps.Ledger,
		roster:      deps.Roster,
		effects:     deps.Effects,
		broadcast:   deps.Broadcast,
		notifier:    deps.Notifier,
		rand:        deps.Rand,
		coordinator: deps.Coordinator,
		metrics:     deps.Metrics,
		publisher:   deps.Publisher,
		logger:      deps.Logger,
		now:         deps.Now,
		sleep:       deps.Sleep,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Close stops any live notice and waits for it to exit.
func (g *Gateway) Close() {
	if g == nil {
		return
	}
	g.cancel()
	g.wg.Wait()
}

// Wait blocks until running notices finish. Used by tests.
func (g *Gateway) Wait() {
	if g == nil {
		return
	}
	g.wg.Wait()
}

// ClearNotices stops the live notice without closing the gateway.
func (g *Gateway) ClearNotices() {
	if g == nil {
		return
	}
	g.stopNotice()
}

// TryTrigger runs the full gating pipeline for a local key press.
func (g *Gateway) TryTrigger(ctx context.Context, key trigger.Key) Outcome {
	if g == nil {
		return precondition(ReasonUnknownKey)
	}
	if key == trigger.ClearThreatHUD {
		return g.utility(ctx, key)
	}
	if g.cfg.globalGated(key) {
		if gated, whole := g.ledger.IsWithinGlobalCooldown(g.cfg.GlobalWindow); gated {
			g.liveNotice(func() time.Duration { return g.ledger.GlobalRemaining(g.cfg.GlobalWindow) },
				globalNotice(g.ledger.LastGlobalInitiator()))
			return g.gated(ctx, key, Outcome{Kind: GatedByPrecondition, Remaining: whole, Reason: ReasonGlobalWindow})
		}
	}
	return g.schedule(ctx, key)
}

// TriggerExternal schedules key on behalf of an automatic source such as the
// threat timer. The global window is not consulted.
func (g *Gateway) TriggerExternal(ctx context.Context, key trigger.Key) Outcome {
	if g == nil {
		return precondition(ReasonUnknownKey)
	}
	return g.schedule(ctx, key)
}

func (g *Gateway) schedule(ctx context.Context, key trigger.Key) Outcome {
	effect, ok := g.effects.ForKey(key)
	if !ok {
		return g.gated(ctx, key, precondition(ReasonUnknownKey))
	}
	local, ok := g.roster.Local()
	if !ok || local.Name == "" {
		return g.gated(ctx, key, precondition(ReasonNoLocalPeer))
	}

	if gated, whole := g.ledger.IsKeyGated(key); gated {
		g.liveNotice(func() time.Duration { return g.ledger.KeyRemaining(key) }, keyNotice)
		return g.gated(ctx, key, Outcome{Kind: GatedByKey, Remaining: whole})
	}

	if g.cfg.ForceDifferentPlayer && !key.Utility() {
		if last, ok := g.ledger.LastKeyInitiator(key); ok && last == local.Name {
			g.show(samePlayerNotice(key))
			return g.gated(ctx, key, precondition(ReasonSamePlayer))
		}
	}

	if limit, ok := g.cfg.MaxUses[key]; ok && limit > 0 && g.ledger.UseCount(local.Name, key) >= limit {
		g.show(maxUsesNotice(key))
		return g.gated(ctx, key, Outcome{Kind: GatedByUsageLimit})
	}

	if reason := g.checkPreconditions(key, local); reason != "" {
		return g.gated(ctx, key, precondition(reason))
	}

	targets, victim, reason := g.resolveTargets(key, local)
	if reason != "" {
		return g.gated(ctx, key, precondition(reason))
	}

	text := g.preview(ctx, effect, local.Name)
	perKey := g.cfg.keyCooldown(key)
	msg := proto.StartCountdown{
		CountdownSeconds:      effect.CountdownSeconds(),
		Message:               text,
		EffectKind:            uint8(effect.Kind()),
		Initiator:             local.Name,
		ExplicitTargetIDs:     targets,
		VictimID:              victim,
		TriggerKeyCode:        int32(key),
		PerKeyCooldownSeconds: float32(perKey),
	}

	if g.broadcast == nil {
		return g.gated(ctx, key, precondition(ReasonBroadcastFailed))
	}
	if err := g.broadcast.Broadcast(ctx, msg); err != nil {
		g.logger.Printf("[gateway] broadcast for %s failed: %v", key, err)
		g.addMetric(telemetry.MetricTriggerBroadcastFailed)
		return g.gated(ctx, key, precondition(ReasonBroadcastFailed))
	}

	if perKey > 0 {
		g.ledger.SetKeyCooldown(key, perKey)
	}
	g.ledger.RecordGlobalTrigger(local.Name)
	g.ledger.IncrementUse(local.Name, key)

	g.addMetric(telemetry.MetricTriggerScheduled)
	loggingtriggers.Scheduled(ctx, g.publisher, logging.PeerRef(local.Name), targetRefs(g.roster, targets),
		loggingtriggers.ScheduledPayload{
			Key:              key.String(),
			Effect:           msg.EffectKind,
			CountdownSeconds: msg.CountdownSeconds,
			Victim:           victim,
			CooldownSeconds:  msg.PerKeyCooldownSeconds,
		})
	return scheduled()
}

func (g *Gateway) utility(ctx context.Context, key trigger.Key) Outcome {
	effect, ok := g.effects.ForKey(key)
	if !ok {
		return g.gated(ctx, key, precondition(ReasonUnknownKey))
	}
	local, ok := g.roster.Local()
	if !ok || local.Name == "" {
		return g.gated(ctx, key, precondition(ReasonNoLocalPeer))
	}
	if err := effect.Apply(ctx, effects.Activation{Initiator: local.Name, VictimID: roster.NoActor}); err != nil {
		g.logger.Printf("[gateway] %s failed: %v", key, err)
		return g.gated(ctx, key, precondition(ReasonBroadcastFailed))
	}
	return scheduled()
}

func (g *Gateway) checkPreconditions(key trigger.Key, local roster.Peer) string {
	switch key {
	case trigger.Cleanse, trigger.Hunger, trigger.CatchHazard:
		if !local.Alive {
			g.show(noticeDead)
			return ReasonDead
		}
	case trigger.Boost:
		if local.Alive && !g.cfg.AllowSelfBoost {
			g.show(noticeSelfBoost)
			return ReasonAlive
		}
	case trigger.Threat:
		if !g.cfg.AllowThreatKey {
			return ReasonKeyDisabled
		}
		if !g.coordinator() {
			return ReasonNotCoordinator
		}
	}

	switch key {
	case trigger.Cleanse, trigger.Hunger:
		if !g.twoAlive() {
			g.show(noticeLastStanding)
			return ReasonLastStanding
		}
	case trigger.Threat:
		if !g.twoAlive() {
			return ReasonLastStanding
		}
	}
	return ""
}

func (g *Gateway) twoAlive() bool {
	if !g.cfg.RequireTwoAlive {
		return true
	}
	return roster.AliveCount(g.roster) > 1
}

// resolveTargets picks the explicit target set and victim for key. Keys
// without a victim broadcast to everyone.
func (g *Gateway) resolveTargets(key trigger.Key, local roster.Peer) ([]int32, int32, string) {
	switch key {
	case trigger.Cleanse:
		candidates := roster.Filter(g.roster.Peers(), func(p roster.Peer) bool {
			return p.Name != local.Name && p.Alive
		})
		if len(candidates) == 0 {
			return []int32{local.ActorID}, roster.NoActor, ""
		}
		victim := candidates[g.rand.Intn(len(candidates))]
		return []int32{local.ActorID, victim.ActorID}, victim.ActorID, ""
	case trigger.Boost:
		spectated := local.Spectating
		if spectated == roster.NoActor && g.cfg.AllowSelfBoost {
			spectated = local.ActorID
		}
		peer, ok := g.roster.Peer(spectated)
		if !ok {
			return nil, roster.NoActor, ReasonNoSpectated
		}
		return []int32{local.ActorID, peer.ActorID}, peer.ActorID, ""
	}
	return nil, roster.NoActor, ""
}

func (g *Gateway) preview(ctx context.Context, effect effects.Effect, initiator string) string {
	text := ""
	if previewer, ok := effect.(effects.Previewer); ok {
		var err error
		text, err = previewer.Preview(ctx, initiator, g.cfg.PreviewTTL)
		if err != nil {
			g.logger.Printf("[gateway] preview for %s failed: %v", effect.Kind(), err)
			text = ""
		}
	}
	if text == "" {
		text = effect.IntroMessage()
	}
	return text
}

func (g *Gateway) gated(ctx context.Context, key trigger.Key, outcome Outcome) Outcome {
	g.addMetric(telemetry.MetricTriggerGated)
	actor := logging.EntityRef{}
	if local, ok := g.roster.Local(); ok {
		actor = logging.PeerRef(local.Name)
	}
	loggingtriggers.Gated(ctx, g.publisher, actor, loggingtriggers.GatedPayload{
		Key:       key.String(),
		Outcome:   outcome.Kind.String(),
		Remaining: outcome.Remaining,
		Reason:    outcome.Reason,
	})
	return outcome
}

func (g *Gateway) addMetric(key string) {
	if g.metrics == nil {
		return
	}
	g.metrics.Add(key, 1)
}

func targetRefs(r roster.Roster, ids []int32) []logging.EntityRef {
	if len(ids) == 0 {
		return nil
	}
	refs := make([]logging.EntityRef, 0, len(ids))
	for _, id := range ids {
		if peer, ok := r.Peer(id); ok {
			refs = append(refs, logging.PeerRef(peer.Name))
		}
	}
	return refs
}
