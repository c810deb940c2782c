package triggers

import (
	"context"

	"github.com/AbriCroco/Peak-Collections-of-Chaos/logging"
)

const (
	// EventScheduled is emitted when a trigger passes every gate and is broadcast.
	EventScheduled logging.EventType = "trigger.scheduled"
	// EventGated is emitted when a trigger attempt is rejected locally.
	EventGated logging.EventType = "trigger.gated"
	// EventApplied is emitted when a countdown finishes and the effect ran.
	EventApplied logging.EventType = "trigger.applied"
	// EventAborted is emitted when an apply step bails out, usually because the
	// prepared value was missing.
	EventAborted logging.EventType = "trigger.aborted"
)

// ScheduledPayload describes a broadcast countdown.
type ScheduledPayload struct {
	Key              string  `json:"key"`
	Effect           uint8   `json:"effect"`
	CountdownSeconds int32   `json:"countdownSeconds"`
	Victim           int32   `json:"victim"`
	CooldownSeconds  float32 `json:"cooldownSeconds"`
}

// GatedPayload captures why an attempt was rejected.
type GatedPayload struct {
	Key       string `json:"key"`
	Outcome   string `json:"outcome"`
	Remaining int    `json:"remaining,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// AppliedPayload identifies the effect that ran.
type AppliedPayload struct {
	Effect uint8 `json:"effect"`
	Victim int32 `json:"victim"`
}

// AbortedPayload records the reason an apply did nothing.
type AbortedPayload struct {
	Effect uint8  `json:"effect"`
	Reason string `json:"reason"`
}

func Scheduled(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, targets []logging.EntityRef, payload ScheduledPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventScheduled,
		Actor:    actor,
		Targets:  targets,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryTrigger,
		Payload:  payload,
	})
}

func Gated(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload GatedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventGated,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryTrigger,
		Payload:  payload,
	})
}

func Applied(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload AppliedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventApplied,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryTrigger,
		Payload:  payload,
	})
}

func Aborted(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload AbortedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventAborted,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryTrigger,
		Payload:  payload,
	})
}
