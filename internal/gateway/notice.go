package gateway

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/trigger"
)

// Notifier shows short local toasts. Implementations must be safe for use
// from the notice goroutine.
type Notifier interface {
	Show(text string, duration time.Duration)
	Update(text string)
	EarlyFade(hold time.Duration)
}

const (
	noticeDead         = "Stop trying to act cool...\nYou're dead already!"
	noticeSelfBoost    = "You think you can boost yourself?\nOkay dude..."
	noticeLastStanding = "You thought it would be that easy?\nYou're the last one standing!"
)

func globalNotice(initiator string) func(int) string {
	if initiator == "" {
		initiator = "Someone"
	}
	return func(whole int) string {
		return fmt.Sprintf("Chill, %s just used an effect!\nRelax, climb and wait %ds!! Okay?", initiator, whole)
	}
}

func keyNotice(whole int) string {
	return fmt.Sprintf("Maybe let other people enjoy the game??\nBe a good boy and wait for %ds!", whole)
}

func samePlayerNotice(key trigger.Key) string {
	return fmt.Sprintf("Let other players have fun...\nYou already pressed %s.", key)
}

func maxUsesNotice(key trigger.Key) string {
	return fmt.Sprintf("You reached the max uses for %s.\nYou really overdid it...", key)
}

func floorSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Floor(d.Seconds()))
}

func (g *Gateway) show(text string) {
	if g.notifier == nil {
		return
	}
	g.stopNotice()
	g.notifier.Show(text, g.cfg.NoticeWindow)
}

// liveNotice shows a toast for the notice window and rewrites it each time the
// whole-second remainder drops. Reaching zero fades it early. Only one live
// notice runs at a time.
func (g *Gateway) liveNotice(remaining func() time.Duration, format func(int) string) {
	if g.notifier == nil {
		return
	}
	whole := floorSeconds(remaining())
	if whole <= 0 {
		g.notifier.EarlyFade(g.cfg.NoticeZeroHold)
		return
	}

	g.stopNotice()
	ctx, cancel := context.WithCancel(g.ctx)
	g.noticeMu.Lock()
	g.noticeCancel = cancel
	g.noticeMu.Unlock()

	g.notifier.Show(format(whole), g.cfg.NoticeWindow)
	end := g.now().Add(g.cfg.NoticeWindow)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer cancel()
		last := whole
		for {
			now := g.now()
			if !now.Before(end) {
				return
			}
			left := remaining()
			current := floorSeconds(left)
			if current != last {
				last = current
				g.notifier.Update(format(current))
				if current == 0 {
					g.notifier.EarlyFade(g.cfg.NoticeZeroHold)
					return
				}
			}
			wait := left - time.Duration(current)*time.Second
			if wait <= 0 {
				wait = 10 * time.Millisecond
			}
			if untilEnd := end.Sub(now); wait > untilEnd {
				wait = untilEnd
			}
			if err := g.sleep(ctx, wait); err != nil {
				return
			}
		}
	}()
}

func (g *Gateway) stopNotice() {
	g.noticeMu.Lock()
	cancel := g.noticeCancel
	g.noticeCancel = nil
	g.noticeMu.Unlock()
	if cancel != nil {
		cancel()
	}
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
