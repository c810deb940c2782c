package receiver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/cooldown"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/effects"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/trigger"
)

type stubEffect struct {
	kind    effects.Kind
	mu      sync.Mutex
	applied []effects.Activation
	panics  bool
}

func (p *stubEffect) Kind() effects.Kind      { return p.kind }
func (p *stubEffect) IntroMessage() string    { return "" }
func (p *stubEffect) CountdownSeconds() int32 { return 3 }

func (p *stubEffect) Apply(_ context.Context, act effects.Activation) error {
	if p.panics {
		panic("boom")
	}
	p.mu.Lock()
	p.applied = append(p.applied, act)
	p.mu.Unlock()
	return nil
}

func (p *stubEffect) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.applied)
}

type recordingDisplay struct {
	mu     sync.Mutex
	counts []int
	final  []string
	hides  int
}

func (d *recordingDisplay) ShowCount(seconds int) {
	d.mu.Lock()
	d.counts = append(d.counts, seconds)
	d.mu.Unlock()
}

func (d *recordingDisplay) ShowFinal(text string) {
	d.mu.Lock()
	d.final = append(d.final, text)
	d.mu.Unlock()
}

func (d *recordingDisplay) Hide() {
	d.mu.Lock()
	d.hides++
	d.mu.Unlock()
}

type recordingCaller struct {
	mu    sync.Mutex
	calls []proto.Call
}

func (c *recordingCaller) Call(_ context.Context, _ int32, call proto.Call) error {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
	return nil
}

func (c *recordingCaller) CallAll(ctx context.Context, call proto.Call) error {
	return c.Call(ctx, proto.ToAll, call)
}

type setup struct {
	recv    *Receiver
	ledger  *cooldown.Ledger
	table   *roster.Table
	display *recordingDisplay
	remote  *recordingCaller
	metrics *telemetry.Counters
	stub    *stubEffect
	cleanse *stubEffect
}

func newSetup(t *testing.T, sleep func(context.Context, time.Duration) error) *setup {
	t.Helper()
	s := &setup{
		ledger:  cooldown.NewLedger(nil),
		table:   roster.NewTable(),
		display: &recordingDisplay{},
		remote:  &recordingCaller{},
		metrics: telemetry.NewCounters(),
		stub:    &stubEffect{kind: 42},
		cleanse: &stubEffect{kind: effects.KindCleanse},
	}
	s.table.Upsert(roster.Peer{ActorID: 1, Name: "alice", Alive: true})
	s.table.Upsert(roster.Peer{ActorID: 2, Name: "bob", Alive: true})
	s.table.SetLocal(1)

	reg := effects.NewRegistry(&effects.Env{})
	reg.Register(trigger.None, s.stub)
	reg.Register(trigger.Cleanse, s.cleanse)

	if sleep == nil {
		sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	}
	s.recv = New(Deps{
		Ledger:  s.ledger,
		Roster:  s.table,
		Effects: reg,
		Remote:  s.remote,
		Display: s.display,
		Metrics: s.metrics,
		Sleep:   sleep,
	})
	t.Cleanup(s.recv.Stop)
	return s
}

func TestCountdownRunsAndApplies(t *testing.T) {
	s := newSetup(t, nil)
	s.recv.Handle(proto.StartCountdown{
		CountdownSeconds: 3,
		Message:          "@triggerer@ did it",
		EffectKind:       42,
		Initiator:        "bob",
		VictimID:         1,
		TriggerKeyCode:   proto.NoKey,
	})
	s.recv.Wait()

	if len(s.display.counts) != 3 || s.display.counts[0] != 3 || s.display.counts[2] != 1 {
		t.Fatalf("expected 3,2,1 countdown, got %v", s.display.counts)
	}
	if len(s.display.final) != 1 || s.display.final[0] != "bob did it" {
		t.Fatalf("expected substituted final text, got %v", s.display.final)
	}
	if s.stub.count() != 1 || s.stub.applied[0].VictimID != 1 {
		t.Fatalf("expected one apply with victim, got %+v", s.stub.applied)
	}
	if s.metrics.Get(telemetry.MetricEffectApplied) != 1 {
		t.Fatalf("expected applied metric")
	}
}

func TestZeroCountdownAppliesImmediately(t *testing.T) {
	s := newSetup(t, nil)
	s.recv.Handle(proto.StartCountdown{EffectKind: 42, Initiator: "bob", TriggerKeyCode: proto.NoKey})
	s.recv.Wait()
	if len(s.display.counts) != 0 || s.stub.count() != 1 {
		t.Fatalf("expected immediate apply, got counts %v applies %d", s.display.counts, s.stub.count())
	}
	if s.display.hides != 1 {
		t.Fatalf("expected empty text to hide the display")
	}
}

func TestNonTargetAbsorbsCooldownsWithoutCountdown(t *testing.T) {
	s := newSetup(t, nil)
	s.recv.Handle(proto.StartCountdown{
		CountdownSeconds:      3,
		EffectKind:            42,
		Initiator:             "bob",
		ExplicitTargetIDs:     []int32{2},
		VictimID:              roster.NoActor,
		TriggerKeyCode:        int32(trigger.Hunger),
		PerKeyCooldownSeconds: 100,
	})
	s.recv.Wait()

	if s.stub.count() != 0 || len(s.display.counts) != 0 {
		t.Fatalf("expected no countdown for non-target")
	}
	if gated, whole := s.ledger.IsKeyGated(trigger.Hunger); !gated || whole < 99 {
		t.Fatalf("expected key cooldown from payload, got %v %d", gated, whole)
	}
	if s.ledger.LastGlobalInitiator() != "bob" {
		t.Fatalf("expected global initiator bob")
	}
	if last, _ := s.ledger.LastKeyInitiator(trigger.Hunger); last != "bob" {
		t.Fatalf("expected key initiator bob, got %q", last)
	}
}

func TestMissingPerKeyCooldownFallsBackToCountdown(t *testing.T) {
	s := newSetup(t, nil)
	s.recv.Handle(proto.StartCountdown{
		CountdownSeconds: 5,
		EffectKind:       42,
		Initiator:        "bob",
		TriggerKeyCode:   int32(trigger.CatchHazard),
	})
	s.recv.Wait()
	if gated, whole := s.ledger.IsKeyGated(trigger.CatchHazard); !gated || whole != 4 && whole != 5 {
		t.Fatalf("expected countdown-length cooldown, got %v %d", gated, whole)
	}
}

func TestUnknownKeyCodeLeavesLedgerAlone(t *testing.T) {
	s := newSetup(t, nil)
	s.recv.Handle(proto.StartCountdown{
		CountdownSeconds:      3,
		EffectKind:            42,
		Initiator:             "bob",
		ExplicitTargetIDs:     []int32{2},
		VictimID:              roster.NoActor,
		TriggerKeyCode:        999,
		PerKeyCooldownSeconds: 100,
	})
	s.recv.Wait()

	if gated, _ := s.ledger.IsKeyGated(trigger.None); gated {
		t.Fatalf("expected no cooldown recorded for an unknown key")
	}
	if within, _ := s.ledger.IsWithinGlobalCooldown(30 * time.Second); within {
		t.Fatalf("expected the global window untouched")
	}
	if got := s.ledger.LastGlobalInitiator(); got != "" {
		t.Fatalf("expected no global initiator, got %q", got)
	}
}

func TestUnknownEffectIsDropped(t *testing.T) {
	s := newSetup(t, nil)
	s.recv.Handle(proto.StartCountdown{EffectKind: 200, Initiator: "bob", TriggerKeyCode: proto.NoKey})
	s.recv.Wait()
	if s.metrics.Get(telemetry.MetricEffectAborted) != 1 || len(s.display.counts) != 0 {
		t.Fatalf("expected unknown effect to abort without display")
	}
}

func TestApplyPanicIsRecovered(t *testing.T) {
	s := newSetup(t, nil)
	s.stub.panics = true
	s.recv.Handle(proto.StartCountdown{EffectKind: 42, Initiator: "bob", TriggerKeyCode: proto.NoKey})
	s.recv.Wait()
	if s.metrics.Get(telemetry.MetricEffectAborted) != 1 {
		t.Fatalf("expected panic reported as abort")
	}
}

func TestCleanseInitiatorRequestsPassOut(t *testing.T) {
	s := newSetup(t, nil)
	s.recv.Handle(proto.StartCountdown{
		CountdownSeconds: 5,
		EffectKind:       uint8(effects.KindCleanse),
		Initiator:        "alice",
		TriggerKeyCode:   proto.NoKey,
	})
	s.recv.Wait()
	if len(s.remote.calls) != 1 || s.remote.calls[0].Kind != proto.CallPassOut {
		t.Fatalf("expected one pass-out call, got %+v", s.remote.calls)
	}
	var body proto.PassOut
	if err := s.remote.calls[0].Decode(&body); err != nil || body.Seconds != 5 {
		t.Fatalf("expected 5s pass-out, got %+v (%v)", body, err)
	}
}

func TestNewerCountdownReplacesRunningOne(t *testing.T) {
	release := make(chan struct{})
	blocking := func(ctx context.Context, _ time.Duration) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-release:
			return nil
		}
	}
	s := newSetup(t, blocking)
	s.recv.Handle(proto.StartCountdown{CountdownSeconds: 5, EffectKind: 42, Initiator: "bob", TriggerKeyCode: proto.NoKey})
	s.recv.Handle(proto.StartCountdown{CountdownSeconds: 0, EffectKind: 42, Initiator: "carol", TriggerKeyCode: proto.NoKey})
	s.recv.Wait()
	close(release)

	if s.stub.count() != 1 || s.stub.applied[0].Initiator != "carol" {
		t.Fatalf("expected only the newer countdown to apply, got %+v", s.stub.applied)
	}
}
