package hazards

import (
	"context"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/logging"
)

const (
	// EventRegistered is emitted when a lit hazard lands in a holder's slot.
	EventRegistered logging.EventType = "hazard.registered"
	// EventTransferred is emitted when a dropped hazard jumps to a touching peer.
	EventTransferred logging.EventType = "hazard.transferred"
	// EventReturned is emitted when a dropped hazard is forced back to its holder.
	EventReturned logging.EventType = "hazard.returned"
	// EventExploded is emitted once per hazard at terminal resolution.
	EventExploded logging.EventType = "hazard.exploded"
	// EventOrphaned is emitted when a hazard can no longer be located.
	EventOrphaned logging.EventType = "hazard.orphaned"
)

type RegisteredPayload struct {
	Holder int32   `json:"holder"`
	Slot   uint8   `json:"slot"`
	Fuse   float64 `json:"fuse"`
}

type TransferredPayload struct {
	From     int32   `json:"from"`
	To       int32   `json:"to"`
	Slot     uint8   `json:"slot"`
	FuseLeft float64 `json:"fuseLeft"`
}

type ReturnedPayload struct {
	Holder   int32   `json:"holder"`
	Slot     uint8   `json:"slot"`
	FuseLeft float64 `json:"fuseLeft"`
}

type ExplodedPayload struct {
	Holder int32   `json:"holder"`
	Slot   uint8   `json:"slot"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Z      float64 `json:"z"`
}

type OrphanedPayload struct {
	Holder int32 `json:"holder"`
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, tick uint64, hazardID string, severity logging.Severity, payload any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    logging.HazardRef(hazardID),
		Severity: severity,
		Category: logging.CategoryHazard,
		Payload:  payload,
	})
}

func Registered(ctx context.Context, pub logging.Publisher, tick uint64, hazardID string, payload RegisteredPayload) {
	publish(ctx, pub, EventRegistered, tick, hazardID, logging.SeverityInfo, payload)
}

func Transferred(ctx context.Context, pub logging.Publisher, tick uint64, hazardID string, payload TransferredPayload) {
	publish(ctx, pub, EventTransferred, tick, hazardID, logging.SeverityInfo, payload)
}

func Returned(ctx context.Context, pub logging.Publisher, tick uint64, hazardID string, payload ReturnedPayload) {
	publish(ctx, pub, EventReturned, tick, hazardID, logging.SeverityInfo, payload)
}

func Exploded(ctx context.Context, pub logging.Publisher, tick uint64, hazardID string, payload ExplodedPayload) {
	publish(ctx, pub, EventExploded, tick, hazardID, logging.SeverityWarn, payload)
}

func Orphaned(ctx context.Context, pub logging.Publisher, tick uint64, hazardID string, payload OrphanedPayload) {
	publish(ctx, pub, EventOrphaned, tick, hazardID, logging.SeverityWarn, payload)
}
