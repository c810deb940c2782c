package proto

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// CallKind names a directed remote call.
type CallKind uint8

const (
	CallStatusDelta CallKind = iota + 1
	CallTimedAffliction
	CallDrunkUI
	CallIntroPreview
	CallClearThreatHUD
	CallSyncInventory
	CallEquipSlot
	CallDestroyHeld
	CallPassOut
	CallThreatTarget
	CallExplode
)

var callNames = map[CallKind]string{
	CallStatusDelta:     "apply-status-delta",
	CallTimedAffliction: "add-timed-affliction",
	CallDrunkUI:         "start-drunk-ui",
	CallIntroPreview:    "set-intro-preview",
	CallClearThreatHUD:  "clear-threat-hud",
	CallSyncInventory:   "sync-inventory",
	CallEquipSlot:       "equip-slot",
	CallDestroyHeld:     "destroy-held-item",
	CallPassOut:         "pass-out",
	CallThreatTarget:    "threat-target",
	CallExplode:         "explode",
}

func (k CallKind) String() string {
	if name, ok := callNames[k]; ok {
		return name
	}
	return fmt.Sprintf("call(%d)", uint8(k))
}

// UnequipSlot is the reserved slot id meaning "hold nothing".
const UnequipSlot uint8 = 179

// Call is a directed remote invocation carried inside a FrameCall.
type Call struct {
	Kind CallKind           `msgpack:"k"`
	Body msgpack.RawMessage `msgpack:"b,omitempty"`
}

// NewCall encodes body for kind. A nil body produces an argument-less call.
func NewCall(kind CallKind, body any) (Call, error) {
	call := Call{Kind: kind}
	if body == nil {
		return call, nil
	}
	data, err := msgpack.Marshal(body)
	if err != nil {
		return Call{}, fmt.Errorf("encode call %s: %w", kind, err)
	}
	call.Body = data
	return call, nil
}

// MustCall is NewCall for payloads that cannot fail to encode.
func MustCall(kind CallKind, body any) Call {
	call, err := NewCall(kind, body)
	if err != nil {
		panic(err)
	}
	return call
}

func (c Call) Decode(v any) error {
	if len(c.Body) == 0 {
		return fmt.Errorf("decode call %s: %w", c.Kind, ErrEmpty)
	}
	if err := msgpack.Unmarshal(c.Body, v); err != nil {
		return fmt.Errorf("decode call %s: %w", c.Kind, err)
	}
	return nil
}

// StatusDelta adds amount to one status bar.
type StatusDelta struct {
	Status int32   `msgpack:"status" json:"status"`
	Amount float32 `msgpack:"amount" json:"amount"`
}

// TimedAffliction changes movement for a while and leaves drowsiness behind.
type TimedAffliction struct {
	MoveSpeedMod  float32 `msgpack:"move" json:"moveSpeedMod"`
	ClimbSpeedMod float32 `msgpack:"climb" json:"climbSpeedMod"`
	TotalSeconds  float32 `msgpack:"seconds" json:"totalTimeSeconds"`
	DrowsyOnEnd   float32 `msgpack:"drowsy" json:"drowsyOnEnd"`
}

// DrunkUI starts the wobbly camera and input debuff.
type DrunkUI struct {
	Seconds     float32 `msgpack:"seconds" json:"seconds"`
	Sensitivity float32 `msgpack:"sensitivity" json:"sensitivity"`
	Ragdoll     float32 `msgpack:"ragdoll" json:"ragdoll"`
}

// IntroPreview replicates a prepared value into every peer's cache.
type IntroPreview struct {
	EffectKind uint8   `msgpack:"effect" json:"effectKind"`
	Initiator  string  `msgpack:"initiator" json:"initiator"`
	Text       string  `msgpack:"text" json:"text"`
	Numeric    float32 `msgpack:"numeric" json:"numericValue"`
	TTLSeconds float32 `msgpack:"ttl" json:"ttlSeconds"`
}

// SlotState is one inventory slot as seen by peers.
type SlotState struct {
	Slot       uint8   `msgpack:"slot" json:"slot"`
	Item       string  `msgpack:"item" json:"item"`
	UsePercent float32 `msgpack:"use" json:"usePercent"`
	Instance   string  `msgpack:"instance,omitempty" json:"instance,omitempty"`
}

// InventorySync pushes a holder's slots to the peers. Peers send the same
// body in an inventory frame to report their own slots to the coordinator.
// Held is the wielded slot index, or -1.
type InventorySync struct {
	Owner int32       `msgpack:"owner" json:"owner"`
	Slots []SlotState `msgpack:"slots" json:"slots"`
	Full  bool        `msgpack:"full" json:"isFullSync"`
	Held  int32       `msgpack:"held" json:"held"`
}

type EquipSlot struct {
	Slot uint8 `msgpack:"slot" json:"slot"`
}

type PassOut struct {
	Seconds float32 `msgpack:"seconds" json:"seconds"`
}

// ThreatTarget points the roaming threat at an actor. NoVictim clears it.
type ThreatTarget struct {
	Actor   int32   `msgpack:"actor" json:"actor"`
	Seconds float32 `msgpack:"seconds" json:"seconds"`
}

// Explode tells every peer to render the terminal effect of a hazard.
type Explode struct {
	ID string  `msgpack:"id" json:"id"`
	X  float64 `msgpack:"x" json:"x"`
	Y  float64 `msgpack:"y" json:"y"`
	Z  float64 `msgpack:"z" json:"z"`
}

// FuseKey is the room property holding a hazard's total fuse.
func FuseKey(id string) string {
	return "hazard.fuse." + id
}

func EncodeFuse(total float64) []byte {
	data, _ := msgpack.Marshal(total)
	return data
}

func DecodeFuse(data []byte) (float64, error) {
	var total float64
	if err := msgpack.Unmarshal(data, &total); err != nil {
		return 0, fmt.Errorf("decode fuse: %w", err)
	}
	return total, nil
}
