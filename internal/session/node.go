// Package session binds one peer to a room: it keeps the roster current,
// feeds countdowns to the receiver, answers directed calls and, while the peer
// is coordinator, runs the hazard engine and the threat timer.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/cooldown"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/effects"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/gateway"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/hazard"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/intro"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/receiver"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/rng"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/threat"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/trigger"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/world"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/logging"
)

var ErrNotConnected = errors.New("session: not connected to a room")

// Link is a connection to a room, either a websocket or an in-process
// endpoint.
type Link interface {
	Send(ctx context.Context, frame proto.Frame) error
	Receive(ctx context.Context) (proto.Frame, error)
	Close() error
}

type Config struct {
	Gateway gateway.Config
	Hazard  hazard.Config
	Threat  threat.Config
	// Seed makes every random roll reproducible when set.
	Seed string
}

func DefaultConfig() Config {
	return Config{
		Gateway: gateway.DefaultConfig(),
		Hazard:  hazard.DefaultConfig(),
		Threat:  threat.DefaultConfig(),
	}
}

type Deps struct {
	Character Character
	Display   receiver.Display
	Notifier  gateway.Notifier
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Now       func() time.Time
	// After backs the threat timer. Defaults to time.After.
	After func(time.Duration) <-chan time.Time
	// Sleep paces countdowns and notices. Defaults to a timer honouring ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Node is one peer's view of the session.
type Node struct {
	cfg  Config
	deps Deps

	roster   *roster.Table
	cache    *intro.Cache
	ledger   *cooldown.Ledger
	effects  *effects.Registry
	gateway  *gateway.Gateway
	receiver *receiver.Receiver
	world    *world.State
	engine   *hazard.Engine
	threat   *threat.Controller

	mu          sync.Mutex
	link        Link
	coordinator int32
	properties  map[string][]byte
	roleCancel  context.CancelFunc
	roleWG      sync.WaitGroup
}

func New(cfg Config, deps Deps) *Node {
	if deps.Logger == nil {
		deps.Logger = telemetry.NopLogger()
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.After == nil {
		deps.After = time.After
	}
	if deps.Character == nil {
		deps.Character = NewHeadless(deps.Logger)
	}

	n := &Node{
		cfg:         cfg,
		deps:        deps,
		roster:      roster.NewTable(),
		cache:       intro.NewCache(deps.Now),
		ledger:      cooldown.NewLedger(deps.Now),
		world:       world.NewState(),
		coordinator: roster.NoActor,
		properties:  make(map[string][]byte),
	}

	n.engine = hazard.NewEngine(cfg.Hazard, hazard.Deps{
		World:     n.world,
		Roster:    n.roster,
		Remote:    n,
		Rand:      n.source("hazard"),
		Metrics:   deps.Metrics,
		Publisher: deps.Publisher,
		Logger:    deps.Logger,
		Now:       deps.Now,
	})
	n.threat = threat.New(cfg.Threat, threat.Deps{
		Roster:  n.roster,
		Remote:  n,
		Locator: n.world,
		Rand:    n.source("threat"),
		Metrics: deps.Metrics,
		Logger:  deps.Logger,
		Now:     deps.Now,
		After:   deps.After,
	})
	n.effects = effects.NewRegistry(&effects.Env{
		Roster:      n.roster,
		Cache:       n.cache,
		Remote:      n,
		Afflictions: deps.Character,
		Rand:        n.source("effects"),
		Hazards:     n.engine,
		Threat:      n.threat,
		Coordinator: n.IsCoordinator,
		Logger:      deps.Logger,
	})
	n.gateway = gateway.New(cfg.Gateway, gateway.Deps{
		Ledger:      n.ledger,
		Roster:      n.roster,
		Effects:     n.effects,
		Broadcast:   n,
		Notifier:    deps.Notifier,
		Rand:        n.source("gateway"),
		Coordinator: n.IsCoordinator,
		Metrics:     deps.Metrics,
		Publisher:   deps.Publisher,
		Logger:      deps.Logger,
		Now:         deps.Now,
		Sleep:       deps.Sleep,
	})
	n.receiver = receiver.New(receiver.Deps{
		Ledger:    n.ledger,
		Roster:    n.roster,
		Effects:   n.effects,
		Remote:    n,
		Display:   deps.Display,
		Metrics:   deps.Metrics,
		Publisher: deps.Publisher,
		Logger:    deps.Logger,
		Sleep:     deps.Sleep,
	})
	return n
}

func (n *Node) source(label string) *rng.Source {
	if n.cfg.Seed != "" {
		return rng.NewDeterministic(n.cfg.Seed, label)
	}
	return rng.New()
}

func (n *Node) Roster() *roster.Table { return n.roster }

func (n *Node) Ledger() *cooldown.Ledger { return n.ledger }

func (n *Node) Cache() *intro.Cache { return n.cache }

func (n *Node) World() *world.State { return n.world }

func (n *Node) Hazards() *hazard.Engine { return n.engine }

func (n *Node) Threat() *threat.Controller { return n.threat }

// LocalActor returns the actor id assigned by the room, or roster.NoActor.
func (n *Node) LocalActor() int32 { return n.roster.LocalActor() }

// IsCoordinator reports whether this peer runs the authoritative simulation.
func (n *Node) IsCoordinator() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.link != nil && n.coordinator != roster.NoActor && n.coordinator == n.roster.LocalActor()
}

// Press runs a local key press through the gateway.
func (n *Node) Press(ctx context.Context, key trigger.Key) gateway.Outcome {
	return n.gateway.TryTrigger(ctx, key)
}

// Run attaches link and processes inbound frames until ctx is done or the
// link fails. The node is reset when Run returns.
func (n *Node) Run(ctx context.Context, link Link) error {
	n.mu.Lock()
	if n.link != nil {
		n.mu.Unlock()
		return errors.New("session: already connected")
	}
	n.link = link
	n.mu.Unlock()
	defer n.OnLeftRoom()

	for {
		frame, err := link.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		n.dispatch(ctx, frame)
	}
}

// OnRoleChanged starts or stops the coordinator-only machinery.
func (n *Node) OnRoleChanged(ctx context.Context, coordinator bool) {
	n.mu.Lock()
	running := n.roleCancel != nil
	if coordinator == running {
		n.mu.Unlock()
		return
	}
	if !coordinator {
		cancel := n.roleCancel
		n.roleCancel = nil
		n.mu.Unlock()
		cancel()
		n.roleWG.Wait()
		n.threat.Stop()
		n.engine.Reset()
		n.deps.Logger.Printf("[session] no longer coordinator")
		return
	}

	roleCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	n.roleCancel = cancel
	n.roleWG.Add(2)
	n.mu.Unlock()

	go func() {
		defer n.roleWG.Done()
		n.engine.Run(roleCtx)
	}()
	go func() {
		defer n.roleWG.Done()
		n.threat.RunTimer(roleCtx, func(ctx context.Context) {
			outcome := n.gateway.TriggerExternal(ctx, trigger.Threat)
			n.deps.Logger.Printf("[session] threat timer fired: %s", outcome.Kind)
		})
	}()
	n.deps.Logger.Printf("[session] now coordinator")
}

// OnSceneLoaded starts a new round. Per-key cooldowns, usage counts and
// hazards are cleared; only the global window carries over.
func (n *Node) OnSceneLoaded() {
	n.ledger.ResetForNewRound()
	n.engine.Reset()
	n.threat.Stop()
	n.receiver.Cancel()
	n.gateway.ClearNotices()
}

// OnLeftRoom drops every piece of room state.
func (n *Node) OnLeftRoom() {
	n.OnRoleChanged(context.Background(), false)
	n.receiver.Cancel()
	n.gateway.ClearNotices()
	n.ledger.Reset()
	n.cache.Reset()
	n.roster.Reset()
	n.world.Reset()

	n.mu.Lock()
	n.link = nil
	n.coordinator = roster.NoActor
	clear(n.properties)
	n.mu.Unlock()
}

// Close stops every background goroutine. The node cannot be reused.
func (n *Node) Close() {
	n.OnLeftRoom()
	n.gateway.Close()
	n.receiver.Stop()
}

// ReportState publishes the local character's state to the room.
func (n *Node) ReportState(ctx context.Context, state roster.Peer) error {
	local := n.roster.LocalActor()
	if local == roster.NoActor {
		return ErrNotConnected
	}
	state.ActorID = local
	if existing, ok := n.roster.Peer(local); ok && state.Name == "" {
		state.Name = existing.Name
	}
	n.roster.Upsert(state)
	frame, err := proto.NewFrame(proto.FramePeerState, state)
	if err != nil {
		return err
	}
	return n.send(ctx, frame)
}

// ReportInventory tells the coordinator what the local character carries.
func (n *Node) ReportInventory(ctx context.Context, inv proto.InventorySync) error {
	local := n.roster.LocalActor()
	if local == roster.NoActor {
		return ErrNotConnected
	}
	inv.Owner = local
	frame, err := proto.NewFrame(proto.FrameInventory, inv)
	if err != nil {
		return err
	}
	return n.send(ctx, frame)
}

// ReportWorldItem tells the coordinator a hazard was dropped or picked up.
func (n *Node) ReportWorldItem(ctx context.Context, item proto.WorldItem) error {
	local := n.roster.LocalActor()
	if local == roster.NoActor {
		return ErrNotConnected
	}
	item.Reporter = local
	frame, err := proto.NewFrame(proto.FrameWorldItem, item)
	if err != nil {
		return err
	}
	return n.send(ctx, frame)
}

// SetCampfires replaces the campfires of the loaded scene. Only the
// coordinator's copy matters.
func (n *Node) SetCampfires(fires []world.Campfire) {
	n.world.SetCampfires(fires)
}

// ReportThreatPosition records where the coordinator's pursuer is.
func (n *Node) ReportThreatPosition(pos roster.Vec3) {
	n.world.SetThreatPosition(pos)
}

func (n *Node) setCoordinator(ctx context.Context, actor int32) {
	n.mu.Lock()
	n.coordinator = actor
	n.mu.Unlock()
	n.OnRoleChanged(ctx, actor != roster.NoActor && actor == n.roster.LocalActor())
}

func (n *Node) addMetric(key string) {
	if n.deps.Metrics != nil {
		n.deps.Metrics.Add(key, 1)
	}
}
