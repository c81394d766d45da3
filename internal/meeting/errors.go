package meeting

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfirmed means the appointment is not in a provisionable state.
	ErrNotConfirmed = errors.New("appointment is not confirmed")
	// ErrProvisioningFailed wraps transport failures from the meeting
	// provider. Safe to retry: no partial state is persisted on failure.
	ErrProvisioningFailed = errors.New("meeting provisioning failed")
	// ErrNotJoinable means the join window or status check failed.
	ErrNotJoinable = errors.New("appointment is not joinable right now")
	// ErrDuplicateCompletion marks a second completion signal for an
	// authorization attempt inside the cooldown window. Callers treat it as
	// a benign no-op rather than retrying the exchange.
	ErrDuplicateCompletion = errors.New("authorization attempt already completed")
	// ErrUnknownAttempt means the resume token does not match any pending
	// authorization attempt.
	ErrUnknownAttempt = errors.New("unknown or expired authorization attempt")
)

// NeedsAuthorization is a control-flow signal, not a failure: the doctor must
// complete the provider's authorization flow out-of-band, after which the
// provisioning attempt identified by ResumeToken can be resumed exactly once.
type NeedsAuthorization struct {
	AuthorizationURL string
	ResumeToken      string
}

func (e *NeedsAuthorization) Error() string {
	return fmt.Sprintf("doctor must authorize the meeting provider (resume token %s)", e.ResumeToken)
}
