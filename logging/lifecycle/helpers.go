package lifecycle

import (
	"context"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/logging"
)

const (
	// EventPeerJoined is emitted when a peer joins the room.
	EventPeerJoined logging.EventType = "lifecycle.peer_joined"
	// EventPeerLeft is emitted when a peer leaves the room.
	EventPeerLeft logging.EventType = "lifecycle.peer_left"
	// EventCoordinatorChanged is emitted when the room elects a new coordinator.
	EventCoordinatorChanged logging.EventType = "lifecycle.coordinator_changed"
)

// PeerPayload identifies a room member.
type PeerPayload struct {
	Actor int32  `json:"actor"`
	Name  string `json:"name"`
}

// CoordinatorPayload captures an election result.
type CoordinatorPayload struct {
	Previous int32 `json:"previous"`
	Current  int32 `json:"current"`
}

// PeerJoined publishes a join event.
func PeerJoined(ctx context.Context, pub logging.Publisher, payload PeerPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPeerJoined,
		Actor:    logging.PeerRef(payload.Name),
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// PeerLeft publishes a leave event.
func PeerLeft(ctx context.Context, pub logging.Publisher, payload PeerPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventPeerLeft,
		Actor:    logging.PeerRef(payload.Name),
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}

// CoordinatorChanged publishes an election event.
func CoordinatorChanged(ctx context.Context, pub logging.Publisher, payload CoordinatorPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventCoordinatorChanged,
		Actor:    logging.EntityRef{ID: "room", Kind: logging.EntityKindRoom},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
	})
}
