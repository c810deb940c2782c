package threat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/rng"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingCaller struct {
	mu      sync.Mutex
	targets []proto.ThreatTarget
}

func (r *recordingCaller) CallAll(_ context.Context, call proto.Call) error {
	var target proto.ThreatTarget
	if err := call.Decode(&target); err != nil {
		return err
	}
	r.mu.Lock()
	r.targets = append(r.targets, target)
	r.mu.Unlock()
	return nil
}

func (r *recordingCaller) all() []proto.ThreatTarget {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]proto.ThreatTarget(nil), r.targets...)
}

type fixedLocator struct {
	pos   roster.Vec3
	known bool
}

func (l *fixedLocator) ThreatPosition() (roster.Vec3, bool) { return l.pos, l.known }

type harness struct {
	ctrl    *Controller
	clock   *manualClock
	caller  *recordingCaller
	roster  *roster.Table
	locator *fixedLocator
	metrics *telemetry.Counters
}

func newHarness(t *testing.T, peers ...roster.Peer) *harness {
	t.Helper()
	table := roster.NewTable()
	for _, p := range peers {
		table.Upsert(p)
	}
	h := &harness{
		clock:   &manualClock{now: time.Unix(1000, 0)},
		caller:  &recordingCaller{},
		roster:  table,
		locator: &fixedLocator{},
		metrics: telemetry.NewCounters(),
	}
	cfg := DefaultConfig()
	cfg.Poll = time.Hour
	h.ctrl = New(cfg, Deps{
		Roster:  table,
		Remote:  h.caller,
		Locator: h.locator,
		Rand:    rng.NewDeterministic("threat-test", "chase"),
		Metrics: h.metrics,
		Now:     h.clock.Now,
	})
	t.Cleanup(h.ctrl.Stop)
	return h
}

func alive(actor int32, name string, pos roster.Vec3) roster.Peer {
	return roster.Peer{ActorID: actor, Name: name, Alive: true, Conscious: true, Position: pos}
}

func TestSummonRequiresActivePeer(t *testing.T) {
	h := newHarness(t, roster.Peer{ActorID: 1, Name: "ghost"})
	if err := h.ctrl.Summon(context.Background()); err != ErrNoTarget {
		t.Fatalf("expected ErrNoTarget, got %v", err)
	}
	if len(h.caller.all()) != 0 {
		t.Fatalf("expected no announcements")
	}
}

func TestSummonAnnouncesVictim(t *testing.T) {
	h := newHarness(t, alive(1, "alice", roster.Vec3{}))
	if err := h.ctrl.Summon(context.Background()); err != nil {
		t.Fatalf("expected summon to succeed, got %v", err)
	}
	targets := h.caller.all()
	if len(targets) != 1 || targets[0].Actor != 1 || targets[0].Seconds != 60 {
		t.Fatalf("expected alice targeted for 60s, got %+v", targets)
	}
	if got := h.metrics.Get(telemetry.MetricThreatSummoned); got != 1 {
		t.Fatalf("expected summoned metric 1, got %d", got)
	}
}

func TestChaseRetargetsNearbyPeerAfterCooldown(t *testing.T) {
	h := newHarness(t, alive(1, "alice", roster.Vec3{}))
	ctx := context.Background()
	if err := h.ctrl.Summon(ctx); err != nil {
		t.Fatalf("expected summon to succeed, got %v", err)
	}

	h.roster.Upsert(alive(2, "bob", roster.Vec3{X: 3}))
	h.locator.pos, h.locator.known = roster.Vec3{X: 1}, true

	h.clock.Advance(5 * time.Second)
	if h.ctrl.monitor(ctx) {
		t.Fatalf("expected chase to continue")
	}
	if target, _ := h.ctrl.Target(); target != 1 {
		t.Fatalf("expected cooldown to keep alice, got %d", target)
	}

	h.clock.Advance(5 * time.Second)
	h.ctrl.monitor(ctx)
	if target, _ := h.ctrl.Target(); target != 2 {
		t.Fatalf("expected bob after cooldown, got %d", target)
	}
	targets := h.caller.all()
	last := targets[len(targets)-1]
	if last.Actor != 2 || last.Seconds != 50 {
		t.Fatalf("expected bob announced with 50s left, got %+v", last)
	}

	h.clock.Advance(time.Second)
	h.ctrl.monitor(ctx)
	if target, _ := h.ctrl.Target(); target != 2 {
		t.Fatalf("expected retarget cooldown to hold bob, got %d", target)
	}
}

func TestFarPeersAreIgnored(t *testing.T) {
	h := newHarness(t, alive(1, "alice", roster.Vec3{}))
	ctx := context.Background()
	_ = h.ctrl.Summon(ctx)
	h.roster.Upsert(alive(2, "bob", roster.Vec3{X: 40}))
	h.locator.pos, h.locator.known = roster.Vec3{}, true

	h.clock.Advance(20 * time.Second)
	h.ctrl.monitor(ctx)
	if target, _ := h.ctrl.Target(); target != 1 {
		t.Fatalf("expected alice to stay targeted, got %d", target)
	}
}

func TestChaseEndsAfterDuration(t *testing.T) {
	h := newHarness(t, alive(1, "alice", roster.Vec3{}))
	ctx := context.Background()
	_ = h.ctrl.Summon(ctx)

	h.clock.Advance(60 * time.Second)
	if !h.ctrl.monitor(ctx) {
		t.Fatalf("expected chase to end")
	}
	if _, ok := h.ctrl.Target(); ok {
		t.Fatalf("expected no target after the chase")
	}
	targets := h.caller.all()
	if last := targets[len(targets)-1]; last.Actor != proto.NoVictim {
		t.Fatalf("expected clearing announcement, got %+v", last)
	}
}

func TestDeadVictimHandsChaseOn(t *testing.T) {
	h := newHarness(t, alive(1, "alice", roster.Vec3{}))
	ctx := context.Background()
	_ = h.ctrl.Summon(ctx)

	h.roster.Upsert(alive(2, "bob", roster.Vec3{X: 100}))
	h.roster.Update(1, func(p *roster.Peer) { p.Alive = false })
	h.clock.Advance(time.Second)
	h.ctrl.monitor(ctx)
	if target, _ := h.ctrl.Target(); target != 2 {
		t.Fatalf("expected bob to inherit the chase, got %d", target)
	}

	h.roster.Update(2, func(p *roster.Peer) { p.PassedOut = true })
	h.clock.Advance(time.Second)
	if !h.ctrl.monitor(ctx) {
		t.Fatalf("expected chase to end without active peers")
	}
}

func TestRunTimerFiresUntilCancelled(t *testing.T) {
	table := roster.NewTable()
	var waits []time.Duration
	ready := make(chan time.Time)
	close(ready)
	ctrl := New(DefaultConfig(), Deps{
		Roster: table,
		Rand:   rng.NewDeterministic("threat-test", "timer"),
		After: func(d time.Duration) <-chan time.Time {
			waits = append(waits, d)
			return ready
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	fired := 0
	ctrl.RunTimer(ctx, func(context.Context) {
		fired++
		if fired == 3 {
			cancel()
		}
	})
	if fired != 3 {
		t.Fatalf("expected 3 fires, got %d", fired)
	}
	for _, wait := range waits {
		if wait < 200*time.Second || wait >= 800*time.Second {
			t.Fatalf("expected wait within [200s, 800s), got %v", wait)
		}
	}
}
