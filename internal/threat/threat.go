// Package threat runs the coordinator's pursuer: a chase that locks onto one
// peer, hops to whoever wanders too close, and ends after a fixed time.
package threat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/rng"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
)

var ErrNoTarget = errors.New("threat: no active peer to chase")

// Caller sends directed remote calls.
type Caller interface {
	CallAll(ctx context.Context, call proto.Call) error
}

// Locator reports where the pursuer currently is.
type Locator interface {
	ThreatPosition() (roster.Vec3, bool)
}

type Config struct {
	Duration         time.Duration
	Poll             time.Duration
	RetargetRadius   float64
	RetargetCooldown time.Duration
	MinInterval      time.Duration
	MaxInterval      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Duration:         60 * time.Second,
		Poll:             time.Second,
		RetargetRadius:   5,
		RetargetCooldown: 10 * time.Second,
		MinInterval:      200 * time.Second,
		MaxInterval:      800 * time.Second,
	}
}

type Deps struct {
	Roster  roster.Roster
	Remote  Caller
	Locator Locator
	Rand    *rng.Source
	Metrics telemetry.Metrics
	Logger  telemetry.Logger
	Now     func() time.Time
	After   func(time.Duration) <-chan time.Time
}

type chase struct {
	cancel       context.CancelFunc
	target       int32
	started      time.Time
	lastRetarget time.Time
}

// Controller owns at most one chase at a time.
type Controller struct {
	cfg  Config
	deps Deps

	mu      sync.Mutex
	current *chase
	wg      sync.WaitGroup
}

func New(cfg Config, deps Deps) *Controller {
	if deps.Logger == nil {
		deps.Logger = telemetry.NopLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.After == nil {
		deps.After = time.After
	}
	if cfg.Poll <= 0 {
		cfg.Poll = time.Second
	}
	return &Controller{cfg: cfg, deps: deps}
}

// Summon starts a chase against a random active peer, replacing any chase
// already running.
func (c *Controller) Summon(ctx context.Context) error {
	if c == nil {
		return ErrNoTarget
	}
	candidates := c.activePeers(roster.NoActor)
	if len(candidates) == 0 {
		return ErrNoTarget
	}
	victim := candidates[c.deps.Rand.Intn(len(candidates))]

	chaseCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	now := c.deps.Now()
	c.mu.Lock()
	if c.current != nil {
		c.current.cancel()
	}
	c.current = &chase{cancel: cancel, target: victim.ActorID, started: now, lastRetarget: now}
	c.mu.Unlock()

	c.announce(ctx, victim.ActorID, c.cfg.Duration)
	c.add(telemetry.MetricThreatSummoned)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.follow(chaseCtx)
	}()
	return nil
}

// Target returns the peer currently being chased.
func (c *Controller) Target() (int32, bool) {
	if c == nil {
		return roster.NoActor, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return roster.NoActor, false
	}
	return c.current.target, true
}

// Stop ends the running chase without announcing it and waits for its
// goroutine.
func (c *Controller) Stop() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.current != nil {
		c.current.cancel()
		c.current = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Controller) follow(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.monitor(ctx) {
				return
			}
		}
	}
}

// monitor runs one observation of the chase and reports whether it is over.
func (c *Controller) monitor(ctx context.Context) bool {
	now := c.deps.Now()
	c.mu.Lock()
	current := c.current
	if current == nil || ctx.Err() != nil {
		c.mu.Unlock()
		return true
	}
	elapsed := now.Sub(current.started)
	if elapsed >= c.cfg.Duration {
		current.cancel()
		c.current = nil
		c.mu.Unlock()
		c.announce(context.WithoutCancel(ctx), proto.NoVictim, 0)
		return true
	}
	target := current.target
	lastRetarget := current.lastRetarget
	c.mu.Unlock()

	remaining := c.cfg.Duration - elapsed
	if !c.stillActive(target) {
		candidates := c.activePeers(target)
		if len(candidates) == 0 {
			c.end(ctx, current)
			return true
		}
		c.retarget(ctx, current, candidates[c.deps.Rand.Intn(len(candidates))].ActorID, now, remaining)
		return false
	}
	if now.Sub(lastRetarget) < c.cfg.RetargetCooldown {
		return false
	}
	if next, ok := c.closestTo(target); ok {
		c.retarget(ctx, current, next, now, remaining)
	}
	return false
}

func (c *Controller) end(ctx context.Context, current *chase) {
	c.mu.Lock()
	if c.current == current {
		current.cancel()
		c.current = nil
	}
	c.mu.Unlock()
	c.announce(context.WithoutCancel(ctx), proto.NoVictim, 0)
}

func (c *Controller) retarget(ctx context.Context, current *chase, actor int32, now time.Time, remaining time.Duration) {
	c.mu.Lock()
	if c.current != current {
		c.mu.Unlock()
		return
	}
	current.target = actor
	current.lastRetarget = now
	c.mu.Unlock()
	c.announce(ctx, actor, remaining)
	c.add(telemetry.MetricThreatRetargeted)
}

// closestTo finds the nearest other active peer inside the retarget radius of
// the pursuer.
func (c *Controller) closestTo(target int32) (int32, bool) {
	if c.deps.Locator == nil {
		return roster.NoActor, false
	}
	pos, ok := c.deps.Locator.ThreatPosition()
	if !ok {
		return roster.NoActor, false
	}
	var (
		best     int32 = roster.NoActor
		bestDist float64
	)
	for _, p := range c.activePeers(target) {
		dist := p.Position.Dist(pos)
		if dist > c.cfg.RetargetRadius {
			continue
		}
		if best == roster.NoActor || dist < bestDist {
			best, bestDist = p.ActorID, dist
		}
	}
	return best, best != roster.NoActor
}

func (c *Controller) stillActive(actor int32) bool {
	if c.deps.Roster == nil {
		return false
	}
	p, ok := c.deps.Roster.Peer(actor)
	return ok && p.Active()
}

func (c *Controller) activePeers(exclude int32) []roster.Peer {
	if c.deps.Roster == nil {
		return nil
	}
	return roster.Filter(c.deps.Roster.Peers(), func(p roster.Peer) bool {
		return p.ActorID != exclude && p.Active()
	})
}

func (c *Controller) announce(ctx context.Context, actor int32, remaining time.Duration) {
	if c.deps.Remote == nil {
		return
	}
	call := proto.MustCall(proto.CallThreatTarget, proto.ThreatTarget{Actor: actor, Seconds: float32(remaining.Seconds())})
	if err := c.deps.Remote.CallAll(ctx, call); err != nil {
		c.deps.Logger.Printf("[threat] announce target %d: %v", actor, err)
		c.add(telemetry.MetricRemoteCallFailed)
	}
}

func (c *Controller) add(key string) {
	if c.deps.Metrics != nil {
		c.deps.Metrics.Add(key, 1)
	}
}
