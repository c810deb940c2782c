package gateway

import "fmt"

// OutcomeKind classifies the result of a trigger attempt.
type OutcomeKind uint8

const (
	Scheduled OutcomeKind = iota
	GatedByKey
	GatedByUsageLimit
	GatedByPrecondition
)

func (k OutcomeKind) String() string {
	switch k {
	case Scheduled:
		return "scheduled"
	case GatedByKey:
		return "gated_by_key"
	case GatedByUsageLimit:
		return "gated_by_usage_limit"
	case GatedByPrecondition:
		return "gated_by_precondition"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(k))
	}
}

// Outcome is returned by every trigger attempt. Remaining is in whole seconds.
type Outcome struct {
	Kind      OutcomeKind
	Remaining int
	Reason    string
}

func (o Outcome) Scheduled() bool { return o.Kind == Scheduled }

const (
	ReasonGlobalWindow    = "global cooldown"
	ReasonSamePlayer      = "same player twice"
	ReasonUnknownKey      = "unknown key"
	ReasonNoLocalPeer     = "local peer unknown"
	ReasonDead            = "local peer is dead"
	ReasonAlive           = "local peer is alive"
	ReasonNotCoordinator  = "not coordinator"
	ReasonKeyDisabled     = "key disabled"
	ReasonLastStanding    = "fewer than two peers alive"
	ReasonNoSpectated     = "no spectated peer"
	ReasonBroadcastFailed = "broadcast failed"
)

func scheduled() Outcome { return Outcome{Kind: Scheduled} }

func precondition(reason string) Outcome {
	return Outcome{Kind: GatedByPrecondition, Reason: reason}
}
