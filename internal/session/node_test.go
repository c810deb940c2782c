package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/effects"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/room"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/trigger"
)

type recordingCharacter struct {
	*Headless

	mu        sync.Mutex
	passedOut []float32
	synced    []proto.InventorySync
}

func newRecordingCharacter() *recordingCharacter {
	return &recordingCharacter{Headless: NewHeadless(nil)}
}

func (c *recordingCharacter) PassOut(seconds float32) {
	c.mu.Lock()
	c.passedOut = append(c.passedOut, seconds)
	c.mu.Unlock()
}

func (c *recordingCharacter) SyncInventory(msg proto.InventorySync) {
	c.mu.Lock()
	c.synced = append(c.synced, msg)
	c.mu.Unlock()
}

func (c *recordingCharacter) passOuts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.passedOut)
}

func (c *recordingCharacter) syncedHazard() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, msg := range c.synced {
		for _, slot := range msg.Slots {
			if slot.Instance != "" {
				return true
			}
		}
	}
	return false
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %s before the deadline", what)
}

type harness struct {
	room   *room.Room
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{room: room.New(room.DefaultConfig(), room.Deps{}), ctx: ctx, cancel: cancel}
	t.Cleanup(func() {
		h.cancel()
		h.wg.Wait()
	})
	return h
}

func (h *harness) join(t *testing.T, name string, ch Character) (*Node, *room.Endpoint) {
	t.Helper()
	node := New(DefaultConfig(), Deps{Character: ch, Sleep: noSleep})
	endpoint, err := h.room.Connect(h.ctx, name)
	if err != nil {
		t.Fatalf("expected %s to connect, got %v", name, err)
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		_ = node.Run(h.ctx, endpoint)
	}()
	t.Cleanup(node.Close)
	return node, endpoint
}

func knows(n *Node, count int) func() bool {
	return func() bool { return len(n.Roster().Peers()) == count }
}

func TestFirstMemberCoordinates(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.join(t, "alice", nil)
	waitFor(t, "alice to coordinate", alice.IsCoordinator)

	bob, _ := h.join(t, "bob", nil)
	waitFor(t, "bob to see both peers", knows(bob, 2))
	waitFor(t, "alice to see both peers", knows(alice, 2))

	if bob.IsCoordinator() {
		t.Fatalf("expected bob not to coordinate")
	}
	local, ok := bob.Roster().Local()
	if !ok || local.Name != "bob" {
		t.Fatalf("expected bob as local peer, got %+v (ok=%v)", local, ok)
	}
}

func TestCoordinatorHandoverOnLeave(t *testing.T) {
	h := newHarness(t)
	alice, aliceLink := h.join(t, "alice", nil)
	bob, _ := h.join(t, "bob", nil)
	waitFor(t, "bob to see both peers", knows(bob, 2))
	waitFor(t, "alice to coordinate", alice.IsCoordinator)

	if err := aliceLink.Close(); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}
	waitFor(t, "bob to take over", bob.IsCoordinator)
	waitFor(t, "bob to forget alice", knows(bob, 1))
	waitFor(t, "alice to reset", func() bool { return alice.LocalActor() == roster.NoActor })
}

func TestHungerMovesToOtherPeer(t *testing.T) {
	h := newHarness(t)
	aliceChar := newRecordingCharacter()
	bobChar := newRecordingCharacter()
	alice, _ := h.join(t, "alice", aliceChar)
	bob, _ := h.join(t, "bob", bobChar)
	waitFor(t, "alice to see both peers", knows(alice, 2))
	waitFor(t, "bob to see both peers", knows(bob, 2))

	aliceChar.SetStatus(effects.StatusHunger, 0.5)
	outcome := alice.Press(h.ctx, trigger.Hunger)
	if !outcome.Scheduled() {
		t.Fatalf("expected hunger to be scheduled, got %+v", outcome)
	}

	waitFor(t, "bob to receive the hunger", func() bool { return bobChar.Status(effects.StatusHunger) == 0.5 })
	if got := aliceChar.Status(effects.StatusHunger); got != 0 {
		t.Fatalf("expected alice hunger 0, got %.2f", got)
	}
	waitFor(t, "bob's ledger to carry the key cooldown", func() bool {
		gated, _ := bob.Ledger().IsKeyGated(trigger.Hunger)
		return gated
	})
}

func TestCatchHazardRunsOnCoordinator(t *testing.T) {
	h := newHarness(t)
	aliceChar := newRecordingCharacter()
	bobChar := newRecordingCharacter()
	alice, _ := h.join(t, "alice", aliceChar)
	bob, _ := h.join(t, "bob", bobChar)
	waitFor(t, "alice to see both peers", knows(alice, 2))
	waitFor(t, "bob to see both peers", knows(bob, 2))
	waitFor(t, "alice to coordinate", alice.IsCoordinator)

	if outcome := bob.Press(h.ctx, trigger.CatchHazard); !outcome.Scheduled() {
		t.Fatalf("expected catch hazard to be scheduled, got %+v", outcome)
	}

	waitFor(t, "a hazard to be registered", func() bool { return alice.Hazards().Registry().Len() == 1 })
	if bob.Hazards().Registry().Len() != 0 {
		t.Fatalf("expected bob's engine to stay idle")
	}
	waitFor(t, "bob to see the inventory sync", bobChar.syncedHazard)
	waitFor(t, "bob to learn the fuse", func() bool {
		for _, view := range alice.Hazards().Snapshot() {
			if _, ok := bob.Property(proto.FuseKey(view.ID)); ok {
				return true
			}
		}
		return false
	})
}

func TestCoordinatorTracksReportedInventory(t *testing.T) {
	h := newHarness(t)
	alice, _ := h.join(t, "alice", nil)
	bob, _ := h.join(t, "bob", nil)
	waitFor(t, "bob to see both peers", knows(bob, 2))
	waitFor(t, "alice to coordinate", alice.IsCoordinator)

	err := bob.ReportInventory(h.ctx, proto.InventorySync{
		Slots: []proto.SlotState{{Slot: 0, Item: "rope"}, {Slot: 1, Item: "food"}, {Slot: 2, Item: "axe"}},
		Held:  -1,
	})
	if err != nil {
		t.Fatalf("expected report to send, got %v", err)
	}
	waitFor(t, "alice to see bob's full inventory", func() bool {
		return !alice.World().HasFreeSlot(bob.LocalActor())
	})
}

func welcomeFrame(t *testing.T, local int32) proto.Frame {
	t.Helper()
	frame, err := proto.NewFrame(proto.FrameWelcome, proto.Welcome{
		Actor:       local,
		Coordinator: 9,
		Members:     []proto.Member{{Actor: 1, Name: "alice"}, {Actor: 2, Name: "bob"}},
		Properties:  map[string][]byte{"k": []byte("v")},
	})
	if err != nil {
		t.Fatalf("expected welcome to encode, got %v", err)
	}
	return frame
}

func callFrame(t *testing.T, from int32, kind proto.CallKind, body any) proto.Frame {
	t.Helper()
	frame, err := proto.NewFrame(proto.FrameCall, proto.MustCall(kind, body))
	if err != nil {
		t.Fatalf("expected call to encode, got %v", err)
	}
	frame.From = from
	return frame
}

func TestWelcomeSeedsRosterAndProperties(t *testing.T) {
	n := New(DefaultConfig(), Deps{Sleep: noSleep})
	defer n.Close()
	n.dispatch(context.Background(), welcomeFrame(t, 1))

	if got := n.LocalActor(); got != 1 {
		t.Fatalf("expected local actor 1, got %d", got)
	}
	if peer, ok := n.Roster().PeerByName("bob"); !ok || !peer.Alive {
		t.Fatalf("expected bob alive in roster, got %+v (ok=%v)", peer, ok)
	}
	if value, ok := n.Property("k"); !ok || string(value) != "v" {
		t.Fatalf("expected property k=v, got %q (ok=%v)", value, ok)
	}
}

func TestPassOutMarksSender(t *testing.T) {
	ch := newRecordingCharacter()
	n := New(DefaultConfig(), Deps{Character: ch, Sleep: noSleep})
	defer n.Close()
	ctx := context.Background()
	n.dispatch(ctx, welcomeFrame(t, 1))

	n.dispatch(ctx, callFrame(t, 2, proto.CallPassOut, proto.PassOut{Seconds: 60}))
	bob, _ := n.Roster().Peer(2)
	if !bob.PassedOut || bob.Active() {
		t.Fatalf("expected bob passed out, got %+v", bob)
	}
	if ch.passOuts() != 0 {
		t.Fatalf("expected local character untouched, got %d pass-outs", ch.passOuts())
	}

	n.dispatch(ctx, callFrame(t, 1, proto.CallPassOut, proto.PassOut{Seconds: 60}))
	if ch.passOuts() != 1 {
		t.Fatalf("expected local character to pass out, got %d", ch.passOuts())
	}
}

func TestIntroPreviewFillsCache(t *testing.T) {
	n := New(DefaultConfig(), Deps{Sleep: noSleep})
	defer n.Close()
	ctx := context.Background()
	n.dispatch(ctx, welcomeFrame(t, 1))

	n.dispatch(ctx, callFrame(t, 2, proto.CallIntroPreview, proto.IntroPreview{
		EffectKind: uint8(effects.KindBoost),
		Initiator:  "bob",
		Text:       "bob is feeling lucky",
		Numeric:    1.5,
		TTLSeconds: 60,
	}))
	prepared, ok := n.Cache().TryGetLatest(uint8(effects.KindBoost))
	if !ok || prepared.Text != "bob is feeling lucky" {
		t.Fatalf("expected cached preview, got %+v (ok=%v)", prepared, ok)
	}
}

func TestStatusDeltaReachesCharacter(t *testing.T) {
	ch := newRecordingCharacter()
	n := New(DefaultConfig(), Deps{Character: ch, Sleep: noSleep})
	defer n.Close()
	ctx := context.Background()
	n.dispatch(ctx, welcomeFrame(t, 1))

	n.dispatch(ctx, callFrame(t, 2, proto.CallStatusDelta, proto.StatusDelta{Status: int32(effects.StatusCold), Amount: 0.25}))
	if got := ch.Status(effects.StatusCold); got != 0.25 {
		t.Fatalf("expected cold 0.25, got %.2f", got)
	}
}

func TestReportsNeedAConnection(t *testing.T) {
	n := New(DefaultConfig(), Deps{Sleep: noSleep})
	defer n.Close()
	err := n.ReportState(context.Background(), roster.Peer{Alive: true})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if outcome := n.Press(context.Background(), trigger.Cleanse); outcome.Scheduled() {
		t.Fatalf("expected press without a room to be gated, got %+v", outcome)
	}
}
