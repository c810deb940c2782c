// Package receiver runs the countdown carried by every StartCountdown
// broadcast and applies the effect when it reaches zero.
package receiver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/cooldown"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/effects"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/trigger"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/logging"
	loggingtriggers "github.com/AbriCroco/Peak-Collections-of-Chaos/logging/triggers"
)

// Placeholder is replaced by the initiator's name in countdown texts.
const Placeholder = "@triggerer@"

// Display renders the countdown digits and the final text.
type Display interface {
	ShowCount(seconds int)
	ShowFinal(text string)
	Hide()
}

type Deps struct {
	Ledger    *cooldown.Ledger
	Roster    roster.Roster
	Effects   *effects.Registry
	Remote    effects.Caller
	Display   Display
	Metrics   telemetry.Metrics
	Publisher logging.Publisher
	Logger    telemetry.Logger
	Sleep     func(ctx context.Context, d time.Duration) error
}

// Receiver keeps at most one visible countdown. A newer broadcast replaces a
// running one.
type Receiver struct {
	ledger    *cooldown.Ledger
	roster    roster.Roster
	effects   *effects.Registry
	remote    effects.Caller
	display   Display
	metrics   telemetry.Metrics
	publisher logging.Publisher
	logger    telemetry.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running context.CancelFunc
	wg      sync.WaitGroup
}

func New(deps Deps) *Receiver {
	if deps.Sleep == nil {
		deps.Sleep = sleepContext
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.NopLogger()
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Receiver{
		ledger:    deps.Ledger,
		roster:    deps.Roster,
		effects:   deps.Effects,
		remote:    deps.Remote,
		display:   deps.Display,
		metrics:   deps.Metrics,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		sleep:     deps.Sleep,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Handle absorbs the cooldown side effects of msg and, when the local peer is
// a target, starts its countdown.
func (r *Receiver) Handle(msg proto.StartCountdown) {
	if r == nil {
		return
	}
	key := trigger.FromCode(msg.TriggerKeyCode)
	if msg.Initiator != "" && key != trigger.None {
		r.ledger.RecordKeyInitiator(key, msg.Initiator)
	}
	if msg.TriggerKeyCode != proto.NoKey && key != trigger.None {
		seconds := float64(msg.PerKeyCooldownSeconds)
		if seconds <= 0 {
			seconds = float64(msg.CountdownSeconds)
		}
		r.ledger.SetKeyCooldown(key, seconds)
		r.ledger.RecordGlobalTrigger(msg.Initiator)
	}

	effect, ok := r.effects.Lookup(effects.Kind(msg.EffectKind))
	if !ok {
		r.logger.Printf("[receiver] unknown effect kind %d from %s dropped", msg.EffectKind, msg.Initiator)
		r.abort(context.Background(), msg, "unknown effect")
		return
	}

	local, ok := r.roster.Local()
	if !ok || !msg.Targets(local.ActorID) {
		return
	}

	text := msg.Message
	if msg.Initiator != "" {
		text = strings.ReplaceAll(text, Placeholder, msg.Initiator)
	}

	ctx := r.replace()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx, effect, msg, text, local)
	}()
}

// replace cancels the running countdown, if any, and returns the context of
// the new one.
func (r *Receiver) replace() context.Context {
	ctx, cancel := context.WithCancel(r.ctx)
	r.mu.Lock()
	previous := r.running
	r.running = cancel
	r.mu.Unlock()
	if previous != nil {
		previous()
	}
	return ctx
}

func (r *Receiver) run(ctx context.Context, effect effects.Effect, msg proto.StartCountdown, text string, local roster.Peer) {
	if effect.Kind() == effects.KindCleanse && local.Name == msg.Initiator {
		r.passOut(ctx, float32(msg.CountdownSeconds))
	}

	for i := int(msg.CountdownSeconds); i > 0; i-- {
		if r.display != nil {
			r.display.ShowCount(i)
		}
		if err := r.sleep(ctx, time.Second); err != nil {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	if r.display != nil {
		if text != "" {
			r.display.ShowFinal(text)
		} else {
			r.display.Hide()
		}
	}
	r.apply(ctx, effect, msg)
}

func (r *Receiver) passOut(ctx context.Context, seconds float32) {
	if r.remote == nil {
		return
	}
	call, err := proto.NewCall(proto.CallPassOut, proto.PassOut{Seconds: seconds})
	if err == nil {
		err = r.remote.CallAll(ctx, call)
	}
	if err != nil {
		r.logger.Printf("[receiver] pass-out request failed: %v", err)
		r.addMetric(telemetry.MetricRemoteCallFailed)
	}
}

func (r *Receiver) apply(ctx context.Context, effect effects.Effect, msg proto.StartCountdown) {
	act := effects.Activation{
		Initiator: msg.Initiator,
		VictimID:  msg.VictimID,
		Targets:   msg.ExplicitTargetIDs,
	}
	err := func() (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("apply panicked: %v", recovered)
			}
		}()
		return effect.Apply(ctx, act)
	}()
	if err != nil {
		r.logger.Printf("[receiver] %s from %s aborted: %v", effect.Kind(), msg.Initiator, err)
		r.abort(ctx, msg, err.Error())
		return
	}
	r.addMetric(telemetry.MetricEffectApplied)
	loggingtriggers.Applied(ctx, r.publisher, logging.PeerRef(msg.Initiator), loggingtriggers.AppliedPayload{
		Effect: msg.EffectKind,
		Victim: msg.VictimID,
	})
}

func (r *Receiver) abort(ctx context.Context, msg proto.StartCountdown, reason string) {
	r.addMetric(telemetry.MetricEffectAborted)
	loggingtriggers.Aborted(ctx, r.publisher, logging.PeerRef(msg.Initiator), loggingtriggers.AbortedPayload{
		Effect: msg.EffectKind,
		Reason: reason,
	})
}

func (r *Receiver) addMetric(key string) {
	if r.metrics != nil {
		r.metrics.Add(key, 1)
	}
}

// Cancel stops the running countdown without applying it.
func (r *Receiver) Cancel() {
	if r == nil {
		return
	}
	r.mu.Lock()
	cancel := r.running
	r.running = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	if r.display != nil {
		r.display.Hide()
	}
}

// Wait blocks until every started countdown goroutine has exited.
func (r *Receiver) Wait() {
	if r == nil {
		return
	}
	r.wg.Wait()
}

// Stop cancels everything and waits. The receiver cannot be reused.
func (r *Receiver) Stop() {
	if r == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
