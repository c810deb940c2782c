package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/effects"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/net/proto"
	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/telemetry"
)

// Character is the local player the node acts on. The game client implements
// it; Headless stands in when there is none.
type Character interface {
	effects.Afflictions
	PassOut(seconds float32)
	TimedAffliction(msg proto.TimedAffliction)
	DrunkUI(msg proto.DrunkUI)
	SyncInventory(msg proto.InventorySync)
	EquipSlot(slot uint8)
	DestroyHeld()
	ThreatTarget(msg proto.ThreatTarget)
	ClearThreatHUD()
	Explode(msg proto.Explode)
}

// Headless is a Character without a game behind it. It keeps status bars in
// memory and logs everything else.
type Headless struct {
	logger telemetry.Logger

	mu       sync.Mutex
	statuses map[effects.Status]float64
	held     uint8
	threat   int32
}

func NewHeadless(logger telemetry.Logger) *Headless {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Headless{
		logger:   logger,
		statuses: make(map[effects.Status]float64),
		held:     proto.UnequipSlot,
		threat:   proto.NoVictim,
	}
}

func (h *Headless) Status(kind effects.Status) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statuses[kind]
}

func (h *Headless) SetStatus(kind effects.Status, value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses[kind] = clampStatus(value)
}

func (h *Headless) AddStatus(kind effects.Status, amount float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses[kind] = clampStatus(h.statuses[kind] + amount)
}

func clampStatus(v float64) float64 {
	return min(max(v, 0), 1)
}

func (h *Headless) PassOut(seconds float32) {
	h.logger.Printf("[character] passed out for %.1fs", seconds)
}

func (h *Headless) TimedAffliction(msg proto.TimedAffliction) {
	h.logger.Printf("[character] move x%.2f climb x%.2f for %.1fs", msg.MoveSpeedMod, msg.ClimbSpeedMod, msg.TotalSeconds)
	h.AddStatus(effects.StatusDrowsy, float64(msg.DrowsyOnEnd))
}

func (h *Headless) DrunkUI(msg proto.DrunkUI) {
	h.logger.Printf("[character] drunk for %.1fs (sensitivity %.2f, ragdoll %.2f)", msg.Seconds, msg.Sensitivity, msg.Ragdoll)
}

func (h *Headless) SyncInventory(msg proto.InventorySync) {
	h.logger.Printf("[character] inventory of %d: %s", msg.Owner, describeSlots(msg.Slots))
}

func (h *Headless) EquipSlot(slot uint8) {
	h.mu.Lock()
	h.held = slot
	h.mu.Unlock()
	if slot == proto.UnequipSlot {
		h.logger.Printf("[character] unequipped")
		return
	}
	h.logger.Printf("[character] equipped slot %d", slot)
}

// Held returns the equipped slot, or proto.UnequipSlot.
func (h *Headless) Held() uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.held
}

func (h *Headless) DestroyHeld() {
	h.logger.Printf("[character] held item destroyed")
}

func (h *Headless) ThreatTarget(msg proto.ThreatTarget) {
	h.mu.Lock()
	h.threat = msg.Actor
	h.mu.Unlock()
	if msg.Actor == proto.NoVictim {
		h.logger.Printf("[character] threat gone")
		return
	}
	h.logger.Printf("[character] threat chasing %d for %.0fs", msg.Actor, msg.Seconds)
}

// Threat returns the actor the threat indicator points at, or proto.NoVictim.
func (h *Headless) Threat() int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.threat
}

func (h *Headless) ClearThreatHUD() {
	h.mu.Lock()
	h.threat = proto.NoVictim
	h.mu.Unlock()
}

func (h *Headless) Explode(msg proto.Explode) {
	h.logger.Printf("[character] hazard %s exploded at (%.1f, %.1f, %.1f)", msg.ID, msg.X, msg.Y, msg.Z)
}

func describeSlots(slots []proto.SlotState) string {
	out := ""
	for i, slot := range slots {
		if i > 0 {
			out += ", "
		}
		item := slot.Item
		if item == "" {
			item = "-"
		}
		out += fmt.Sprintf("%d:%s", slot.Slot, item)
		if slot.Instance != "" {
			out += fmt.Sprintf("(%.0f%%)", slot.UsePercent*100)
		}
	}
	return "[" + out + "]"
}

// LogDisplay renders countdowns to a logger.
type LogDisplay struct {
	Logger telemetry.Logger
}

func (d LogDisplay) ShowCount(seconds int) { d.printf("[countdown] %d", seconds) }
func (d LogDisplay) ShowFinal(text string) { d.printf("[countdown] %s", text) }
func (d LogDisplay) Hide()                 {}

func (d LogDisplay) printf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}

// LogNotifier renders gate notices to a logger.
type LogNotifier struct {
	Logger telemetry.Logger
}

func (n LogNotifier) Show(text string, d time.Duration) {
	n.printf("[notice] %s (%s)", text, d)
}

func (n LogNotifier) Update(string) {}

func (n LogNotifier) EarlyFade(time.Duration) {}

func (n LogNotifier) printf(format string, args ...any) {
	if n.Logger != nil {
		n.Logger.Printf(format, args...)
	}
}
