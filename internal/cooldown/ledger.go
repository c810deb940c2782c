// Package cooldown keeps the per-key, global and per-peer gating state shared
// by the trigger gateway and the countdown receiver.
package cooldown

import (
	"math"
	"sync"
	"time"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/trigger"
)

// Ledger is written by the local gateway when a trigger is scheduled and by
// the receiver when a broadcast carries cooldown values.
type Ledger struct {
	mu  sync.Mutex
	now func() time.Time

	unblockAt     map[trigger.Key]time.Time
	lastTriggerAt time.Time
	lastGlobal    string
	lastByKey     map[trigger.Key]string
	uses          map[string]map[trigger.Key]int
}

// Snapshot is a copy of the ledger used for diagnostics.
type Snapshot struct {
	UnblockAt           map[trigger.Key]time.Time
	LastTriggerAt       time.Time
	LastGlobalInitiator string
	Uses                map[string]map[trigger.Key]int
}

func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	l := &Ledger{now: now}
	l.resetLocked()
	return l
}

func (l *Ledger) resetLocked() {
	l.unblockAt = make(map[trigger.Key]time.Time)
	l.lastByKey = make(map[trigger.Key]string)
	l.uses = make(map[string]map[trigger.Key]int)
}

func wholeSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Floor(d.Seconds()))
}

// KeyRemaining reports how long key stays blocked.
func (l *Ledger) KeyRemaining(key trigger.Key) time.Duration {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	until, ok := l.unblockAt[key]
	if !ok {
		return 0
	}
	remaining := until.Sub(l.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsKeyGated reports whether key is blocked. Less than one whole second left
// counts as not gated so callers never surface a "0s" notice.
func (l *Ledger) IsKeyGated(key trigger.Key) (bool, int) {
	whole := wholeSeconds(l.KeyRemaining(key))
	return whole > 0, whole
}

// SetKeyCooldown extends the block on key to now+seconds. It never shortens an
// existing block.
func (l *Ledger) SetKeyCooldown(key trigger.Key, seconds float64) {
	if l == nil {
		return
	}
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	until := l.now().Add(time.Duration(seconds * float64(time.Second)))
	if current, ok := l.unblockAt[key]; ok && current.After(until) {
		return
	}
	l.unblockAt[key] = until
}

// RecordGlobalTrigger starts the cross-key window and remembers who opened it.
func (l *Ledger) RecordGlobalTrigger(initiator string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastTriggerAt = l.now()
	if initiator != "" {
		l.lastGlobal = initiator
	}
}

// GlobalRemaining reports how much of window is left since the last trigger.
func (l *Ledger) GlobalRemaining(window time.Duration) time.Duration {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastTriggerAt.IsZero() {
		return 0
	}
	remaining := window - l.now().Sub(l.lastTriggerAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsWithinGlobalCooldown reports whether window has not elapsed since the last
// trigger of any key, with the whole seconds left.
func (l *Ledger) IsWithinGlobalCooldown(window time.Duration) (bool, int) {
	remaining := l.GlobalRemaining(window)
	return remaining > 0, wholeSeconds(remaining)
}

func (l *Ledger) LastGlobalInitiator() string {
	if l == nil {
		return ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastGlobal
}

func (l *Ledger) RecordKeyInitiator(key trigger.Key, initiator string) {
	if l == nil || initiator == "" {
		return
	}
	l.mu.Lock()
	l.lastByKey[key] = initiator
	l.mu.Unlock()
}

func (l *Ledger) LastKeyInitiator(key trigger.Key) (string, bool) {
	if l == nil {
		return "", false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	name, ok := l.lastByKey[key]
	return name, ok && name != ""
}

func (l *Ledger) IncrementUse(peer string, key trigger.Key) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	perKey, ok := l.uses[peer]
	if !ok {
		perKey = make(map[trigger.Key]int)
		l.uses[peer] = perKey
	}
	perKey[key]++
}

func (l *Ledger) UseCount(peer string, key trigger.Key) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.uses[peer][key]
}

// ResetForNewRound clears per-key blocks, last initiators and use counts. The
// global window is left alone.
func (l *Ledger) ResetForNewRound() {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.resetLocked()
	l.mu.Unlock()
}

// Reset clears everything, including the global window.
func (l *Ledger) Reset() {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.resetLocked()
	l.lastTriggerAt = time.Time{}
	l.lastGlobal = ""
	l.mu.Unlock()
}

func (l *Ledger) Snapshot() Snapshot {
	if l == nil {
		return Snapshot{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := Snapshot{
		UnblockAt:           make(map[trigger.Key]time.Time, len(l.unblockAt)),
		LastTriggerAt:       l.lastTriggerAt,
		LastGlobalInitiator: l.lastGlobal,
		Uses:                make(map[string]map[trigger.Key]int, len(l.uses)),
	}
	for k, v := range l.unblockAt {
		snap.UnblockAt[k] = v
	}
	for peer, perKey := range l.uses {
		copied := make(map[trigger.Key]int, len(perKey))
		for k, v := range perKey {
			copied[k] = v
		}
		snap.Uses[peer] = copied
	}
	return snap
}
