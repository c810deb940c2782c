// Package proto defines the frames exchanged between peers and the relay room.
// Frames and their bodies are msgpack encoded.
package proto

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/internal/roster"
)

// Version is bumped whenever a frame layout changes incompatibly.
const Version = 1

const (
	// ToAll addresses every room member, the sender included.
	ToAll int32 = 0
	// NoVictim marks a countdown without a designated victim.
	NoVictim int32 = -1
	// NoKey marks a countdown that must not propagate a per-key cooldown.
	NoKey int32 = -1
)

var (
	ErrVersion = errors.New("proto: unsupported frame version")
	ErrEmpty   = errors.New("proto: empty frame")
)

type FrameType uint8

const (
	FrameWelcome FrameType = iota + 1
	FrameMemberJoined
	FrameMemberLeft
	FrameCoordinator
	FrameCountdown
	FrameCall
	FramePropertySet
	FrameProperty
	FramePeerState
	FrameWorldItem
	FrameInventory
)

var frameNames = map[FrameType]string{
	FrameWelcome:      "welcome",
	FrameMemberJoined: "member_joined",
	FrameMemberLeft:   "member_left",
	FrameCoordinator:  "coordinator",
	FrameCountdown:    "countdown",
	FrameCall:         "call",
	FramePropertySet:  "property_set",
	FrameProperty:     "property",
	FramePeerState:    "peer_state",
	FrameWorldItem:    "world_item",
	FrameInventory:    "inventory",
}

func (t FrameType) String() string {
	if name, ok := frameNames[t]; ok {
		return name
	}
	return fmt.Sprintf("frame(%d)", uint8(t))
}

// Frame is the envelope for everything on the wire.
type Frame struct {
	Version int                `msgpack:"v"`
	Type    FrameType          `msgpack:"t"`
	From    int32              `msgpack:"f"`
	To      int32              `msgpack:"to"`
	Body    msgpack.RawMessage `msgpack:"b,omitempty"`
}

// NewFrame encodes body into a frame of type t.
func NewFrame(t FrameType, body any) (Frame, error) {
	frame := Frame{Version: Version, Type: t}
	if body == nil {
		return frame, nil
	}
	data, err := msgpack.Marshal(body)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s body: %w", t, err)
	}
	frame.Body = data
	return frame, nil
}

// Decode unpacks the frame body into v.
func (f Frame) Decode(v any) error {
	if len(f.Body) == 0 {
		return fmt.Errorf("decode %s body: %w", f.Type, ErrEmpty)
	}
	if err := msgpack.Unmarshal(f.Body, v); err != nil {
		return fmt.Errorf("decode %s body: %w", f.Type, err)
	}
	return nil
}

// Encode serializes a frame for the transport.
func Encode(f Frame) ([]byte, error) {
	if f.Version == 0 {
		f.Version = Version
	}
	return msgpack.Marshal(&f)
}

// Decode parses a frame received from the transport.
func Decode(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, ErrEmpty
	}
	var f Frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Version != Version {
		return Frame{}, fmt.Errorf("%w: %d", ErrVersion, f.Version)
	}
	return f, nil
}

// StartCountdown is the single reliable broadcast produced by a scheduled
// trigger. Fields are encoded as an array in declaration order.
type StartCountdown struct {
	_msgpack struct{} `msgpack:",as_array"`

	CountdownSeconds      int32   `json:"countdownSeconds" jsonschema:"minimum=0"`
	Message               string  `json:"message"`
	EffectKind            uint8   `json:"effectKind"`
	Initiator             string  `json:"initiator"`
	ExplicitTargetIDs     []int32 `json:"explicitTargetIds"`
	VictimID              int32   `json:"victimId"`
	TriggerKeyCode        int32   `json:"triggerKeyCode"`
	PerKeyCooldownSeconds float32 `json:"perKeyCooldownSeconds"`
}

// Targets reports whether actor should see the countdown. An empty target set
// means everyone.
func (m StartCountdown) Targets(actor int32) bool {
	if len(m.ExplicitTargetIDs) == 0 {
		return true
	}
	for _, id := range m.ExplicitTargetIDs {
		if id == actor {
			return true
		}
	}
	return false
}

// Member identifies one room participant.
type Member struct {
	Actor int32  `msgpack:"actor" json:"actor"`
	Name  string `msgpack:"name" json:"name"`
}

// Welcome is the first frame a new member receives.
type Welcome struct {
	Actor       int32             `msgpack:"actor" json:"actor"`
	Coordinator int32             `msgpack:"coordinator" json:"coordinator"`
	Members     []Member          `msgpack:"members" json:"members"`
	Properties  map[string][]byte `msgpack:"properties" json:"properties"`
	States      []roster.Peer     `msgpack:"states" json:"states"`
}

// CoordinatorChange announces an election result.
type CoordinatorChange struct {
	Previous int32 `msgpack:"previous" json:"previous"`
	Current  int32 `msgpack:"current" json:"current"`
}

// Property sets or, with a nil value, deletes a room-scoped key.
type Property struct {
	Key   string `msgpack:"key" json:"key"`
	Value []byte `msgpack:"value" json:"value"`
}

// WorldItem reports a hazard's free-standing world representation to the
// coordinator. PickedUpBy names the peer that grabbed it, if any.
type WorldItem struct {
	ID         string      `msgpack:"id" json:"id"`
	Present    bool        `msgpack:"present" json:"present"`
	Position   roster.Vec3 `msgpack:"position" json:"position"`
	Reporter   int32       `msgpack:"reporter" json:"reporter"`
	PickedUpBy int32       `msgpack:"pickedUpBy" json:"pickedUpBy"`
}
