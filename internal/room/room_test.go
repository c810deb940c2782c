package room

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
)

func next(t *testing.T, m *Member) proto.Frame {
	t.Helper()
	select {
	case frame, ok := <-m.Outbox():
		if !ok {
			t.Fatalf("expected frame for %d, outbox closed", m.Actor)
		}
		return frame
	case <-time.After(time.Second):
		t.Fatalf("expected frame for %d, got none", m.Actor)
	}
	return proto.Frame{}
}

func drain(m *Member) {
	for {
		select {
		case _, ok := <-m.Outbox():
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func join(t *testing.T, r *Room, name string) *Member {
	t.Helper()
	m, err := r.Join(context.Background(), name)
	if err != nil {
		t.Fatalf("expected %s to join, got %v", name, err)
	}
	return m
}

func TestJoinAssignsIDsAndElectsLowest(t *testing.T) {
	metrics := telemetry.NewCounters()
	r := New(DefaultConfig(), Deps{Metrics: metrics})
	alice := join(t, r, "alice")
	bob := join(t, r, "bob")

	if alice.Actor != 1 || bob.Actor != 2 {
		t.Fatalf("expected actors 1 and 2, got %d and %d", alice.Actor, bob.Actor)
	}
	if got := r.Coordinator(); got != 1 {
		t.Fatalf("expected coordinator 1, got %d", got)
	}

	welcome := next(t, bob)
	if welcome.Type != proto.FrameWelcome {
		t.Fatalf("expected welcome, got %s", welcome.Type)
	}
	var body proto.Welcome
	if err := welcome.Decode(&body); err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	if body.Actor != 2 || body.Coordinator != 1 || len(body.Members) != 2 {
		t.Fatalf("unexpected welcome %+v", body)
	}

	next(t, alice) // welcome
	joined := next(t, alice)
	if joined.Type != proto.FrameMemberJoined {
		t.Fatalf("expected member joined for alice, got %s", joined.Type)
	}
	if got := metrics.Get(telemetry.MetricRoomMembers); got != 2 {
		t.Fatalf("expected members gauge 2, got %d", got)
	}
}

func TestLeaveReelectsCoordinator(t *testing.T) {
	r := New(DefaultConfig(), Deps{})
	alice := join(t, r, "alice")
	bob := join(t, r, "bob")
	carol := join(t, r, "carol")
	drain(bob)
	drain(carol)

	r.Leave(context.Background(), alice.Actor)
	for range alice.Outbox() {
	}
	if got := r.Coordinator(); got != bob.Actor {
		t.Fatalf("expected bob to coordinate, got %d", got)
	}

	left := next(t, carol)
	if left.Type != proto.FrameMemberLeft {
		t.Fatalf("expected member left, got %s", left.Type)
	}
	change := next(t, carol)
	var body proto.CoordinatorChange
	if err := change.Decode(&body); err != nil || body.Previous != 1 || body.Current != 2 {
		t.Fatalf("expected coordinator change 1->2, got %+v (%v)", body, err)
	}
	r.Leave(context.Background(), alice.Actor)
}

func TestBroadcastPreservesOrderAndEchoes(t *testing.T) {
	r := New(DefaultConfig(), Deps{})
	alice := join(t, r, "alice")
	bob := join(t, r, "bob")
	drain(alice)
	drain(bob)

	for i := int32(1); i <= 3; i++ {
		frame, _ := proto.NewFrame(proto.FrameCountdown, proto.StartCountdown{CountdownSeconds: i})
		if err := r.Route(bob.Actor, frame); err != nil {
			t.Fatalf("route: %v", err)
		}
	}
	for _, m := range []*Member{alice, bob} {
		for i := int32(1); i <= 3; i++ {
			frame := next(t, m)
			var body proto.StartCountdown
			if err := frame.Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.CountdownSeconds != i || frame.From != bob.Actor {
				t.Fatalf("expected countdown %d from bob, got %d from %d", i, body.CountdownSeconds, frame.From)
			}
		}
	}
}

func TestDirectedCallReachesOnlyTarget(t *testing.T) {
	r := New(DefaultConfig(), Deps{})
	alice := join(t, r, "alice")
	bob := join(t, r, "bob")
	drain(alice)
	drain(bob)

	frame, _ := proto.NewFrame(proto.FrameCall, proto.MustCall(proto.CallPassOut, proto.PassOut{Seconds: 5}))
	frame.To = bob.Actor
	if err := r.Route(alice.Actor, frame); err != nil {
		t.Fatalf("route: %v", err)
	}
	if got := next(t, bob); got.Type != proto.FrameCall {
		t.Fatalf("expected call for bob, got %s", got.Type)
	}
	if len(alice.Outbox()) != 0 {
		t.Fatalf("expected nothing for alice")
	}

	frame.To = 99
	if err := r.Route(alice.Actor, frame); !errors.Is(err, ErrUnknownMember) {
		t.Fatalf("expected ErrUnknownMember, got %v", err)
	}
}

func TestPropertiesAreStoredAndBroadcast(t *testing.T) {
	r := New(DefaultConfig(), Deps{})
	alice := join(t, r, "alice")
	drain(alice)

	set, _ := proto.NewFrame(proto.FramePropertySet, proto.Property{Key: "hazard.fuse.x", Value: proto.EncodeFuse(10)})
	if err := r.Route(alice.Actor, set); err != nil {
		t.Fatalf("route: %v", err)
	}
	if _, ok := r.Property("hazard.fuse.x"); !ok {
		t.Fatalf("expected property stored")
	}
	if got := next(t, alice); got.Type != proto.FrameProperty {
		t.Fatalf("expected property broadcast, got %s", got.Type)
	}

	bob := join(t, r, "bob")
	welcome := next(t, bob)
	var body proto.Welcome
	if err := welcome.Decode(&body); err != nil {
		t.Fatalf("decode welcome: %v", err)
	}
	if _, ok := body.Properties["hazard.fuse.x"]; !ok {
		t.Fatalf("expected late joiner to receive the property")
	}

	clear, _ := proto.NewFrame(proto.FramePropertySet, proto.Property{Key: "hazard.fuse.x"})
	if err := r.Route(alice.Actor, clear); err != nil {
		t.Fatalf("route: %v", err)
	}
	if _, ok := r.Property("hazard.fuse.x"); ok {
		t.Fatalf("expected nil value to delete the property")
	}
}

func TestWorldItemsGoToCoordinator(t *testing.T) {
	r := New(DefaultConfig(), Deps{})
	alice := join(t, r, "alice")
	bob := join(t, r, "bob")
	drain(alice)
	drain(bob)

	frame, _ := proto.NewFrame(proto.FrameWorldItem, proto.WorldItem{ID: "x", Present: true, Reporter: bob.Actor, PickedUpBy: roster.NoActor})
	if err := r.Route(bob.Actor, frame); err != nil {
		t.Fatalf("route: %v", err)
	}
	if got := next(t, alice); got.Type != proto.FrameWorldItem {
		t.Fatalf("expected world item at coordinator, got %s", got.Type)
	}
	if len(bob.Outbox()) != 0 {
		t.Fatalf("expected reporter not to receive its own world item")
	}
}

func TestPeerStateIsStampedWithSender(t *testing.T) {
	r := New(DefaultConfig(), Deps{})
	alice := join(t, r, "alice")
	bob := join(t, r, "bob")
	drain(alice)
	drain(bob)

	frame, _ := proto.NewFrame(proto.FramePeerState, roster.Peer{ActorID: 42, Alive: true})
	if err := r.Route(bob.Actor, frame); err != nil {
		t.Fatalf("route: %v", err)
	}
	info := r.Info()
	if len(info.States) != 1 || info.States[0].ActorID != bob.Actor || info.States[0].Name != "bob" {
		t.Fatalf("expected bob's state, got %+v", info.States)
	}
	if got := next(t, alice); got.Type != proto.FramePeerState {
		t.Fatalf("expected alice to receive bob's state, got %s", got.Type)
	}
}

func TestRelayOnlyFramesAreRejected(t *testing.T) {
	metrics := telemetry.NewCounters()
	r := New(DefaultConfig(), Deps{Metrics: metrics})
	alice := join(t, r, "alice")

	frame, _ := proto.NewFrame(proto.FrameCoordinator, proto.CoordinatorChange{Previous: 1, Current: 1})
	if err := r.Route(alice.Actor, frame); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if got := metrics.Get(telemetry.MetricFramesRejected); got != 1 {
		t.Fatalf("expected rejected metric 1, got %d", got)
	}
	if err := r.Route(77, frame); !errors.Is(err, ErrUnknownMember) {
		t.Fatalf("expected ErrUnknownMember, got %v", err)
	}
}

func TestSlowMemberIsDisconnected(t *testing.T) {
	metrics := telemetry.NewCounters()
	r := New(Config{MaxMembers: 2, OutboxCapacity: 4}, Deps{Metrics: metrics})
	alice := join(t, r, "alice")
	bob := join(t, r, "bob")
	drain(alice)

	// bob holds his welcome and never drains
	for i := int32(1); i <= 4; i++ {
		frame, _ := proto.NewFrame(proto.FrameCountdown, proto.StartCountdown{CountdownSeconds: i, VictimID: proto.NoVictim, TriggerKeyCode: proto.NoKey})
		if err := r.Route(alice.Actor, frame); err != nil {
			t.Fatalf("route countdown %d: %v", i, err)
		}
		if got := next(t, alice); got.Type != proto.FrameCountdown {
			t.Fatalf("expected alice to see countdown %d, got %s", i, got.Type)
		}
	}
	if got := next(t, alice); got.Type != proto.FrameMemberLeft {
		t.Fatalf("expected alice to see bob leave, got %s", got.Type)
	}
	if got := metrics.Get(telemetry.MetricMembersEvicted); got != 1 {
		t.Fatalf("expected one eviction, got %d", got)
	}

	if got := next(t, bob); got.Type != proto.FrameWelcome {
		t.Fatalf("expected bob's welcome first, got %s", got.Type)
	}
	for i := int32(1); i <= 3; i++ {
		var countdown proto.StartCountdown
		if err := next(t, bob).Decode(&countdown); err != nil || countdown.CountdownSeconds != i {
			t.Fatalf("expected countdown %d in order, got %+v (%v)", i, countdown, err)
		}
	}
	if _, ok := <-bob.Outbox(); ok {
		t.Fatalf("expected bob's outbox closed instead of skipping a frame")
	}

	r.Leave(context.Background(), bob.Actor)
	if info := r.Info(); len(info.Members) != 1 || info.Members[0].Actor != alice.Actor {
		t.Fatalf("expected only alice left, got %+v", info.Members)
	}
	join(t, r, "carol")
	if _, err := r.Join(context.Background(), "dave"); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestLoopbackEndpoint(t *testing.T) {
	r := New(DefaultConfig(), Deps{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	alice, err := r.Connect(ctx, "alice")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	welcome, err := alice.Receive(ctx)
	if err != nil || welcome.Type != proto.FrameWelcome {
		t.Fatalf("expected welcome, got %v (%v)", welcome.Type, err)
	}

	frame, _ := proto.NewFrame(proto.FrameCall, proto.MustCall(proto.CallClearThreatHUD, nil))
	if err := alice.Send(ctx, frame); err != nil {
		t.Fatalf("send: %v", err)
	}
	echo, err := alice.Receive(ctx)
	if err != nil || echo.Type != proto.FrameCall || echo.From != alice.Actor() {
		t.Fatalf("expected echoed call, got %+v (%v)", echo, err)
	}

	_ = alice.Close()
	if _, err := alice.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
	r.Close()
	if _, err := r.Connect(ctx, "bob"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected closed room to refuse joins, got %v", err)
	}
}
