package engine

import (
	"errors"

	"github.com/soraiyu/KyuubiMask/internal/identity"
)

// ErrCancelFailed is returned when the original notification could not be
// hidden. It is never swallowed: the caller must treat the event as failed.
var ErrCancelFailed = errors.New("cancel original notification failed")

// Outcome is the terminal state of a posted event.
type Outcome string

const (
	// PassedThrough means no action was taken; the original notification stands.
	PassedThrough Outcome = "passed_through"
	// Masked means the original was cancelled. Decision.Posted tells whether
	// the replacement was shown as well.
	Masked Outcome = "masked"
)

// Reason explains why an event ended where it did.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonSelf             Reason = "self"
	ReasonAlreadyMasked    Reason = "already_masked"
	ReasonInFlight         Reason = "in_flight"
	ReasonMaskingDisabled  Reason = "masking_disabled"
	ReasonSourceDisabled   Reason = "source_disabled"
	ReasonNoStrategy       Reason = "no_strategy"
	ReasonSuppressed       Reason = "suppressed"
	ReasonCancelFailed     Reason = "cancel_failed"
	ReasonPermissionDenied Reason = "permission_denied"
	ReasonPostFailed       Reason = "post_failed"
)

// Decision is what the engine did with one posted event.
type Decision struct {
	Outcome  Outcome
	Reason   Reason
	Identity identity.Identity
	// Posted is true only when the replacement reached the sink.
	Posted bool
}

func passed(id identity.Identity, reason Reason) Decision {
	return Decision{Outcome: PassedThrough, Reason: reason, Identity: id}
}
