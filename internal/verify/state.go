package verify

import (
	"fmt"
	"time"

	"registration-verifier/internal/models"
)

// Transition kinds reported by Apply.
const (
	TransitionApproved       = "approved"
	TransitionRetryScheduled = "retry_scheduled"
	TransitionRejected       = "rejected"
)

// InvalidTransitionError is returned when an outcome is applied to a
// registration in a terminal state. Active and Rejected must never reopen.
type InvalidTransitionError struct {
	Status string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("registration status %q does not accept this transition", e.Status)
}

// Policy is the retry budget applied by the state machine. Transient
// failures consume a retry slot just like rule rejections, so total attempts
// stay bounded even against a persistently failing remote.
type Policy struct {
	MaxRetryAttempts int
	RetryDelay       time.Duration
}

// Apply consumes a validator outcome and advances the registration. It
// mutates reg in place and returns the transition kind taken.
func (p Policy) Apply(reg *models.Registration, out Outcome, now time.Time) (string, error) {
	switch reg.Status {
	case models.StatusActive, models.StatusRejected:
		return "", &InvalidTransitionError{Status: reg.Status}
	case models.StatusPending:
	default:
		// Approved registrations wait on the external email-verification
		// flow; the validator must not touch them again.
		return "", &InvalidTransitionError{Status: reg.Status}
	}

	switch out.Kind {
	case OutcomeAccepted:
		reg.Status = models.StatusApproved
		reg.LastValidationError = nil
		reg.UpdatedAt = now
		return TransitionApproved, nil

	case OutcomeRejected, OutcomeTransient:
		reason := out.Reason
		reg.RetryCount++
		reg.LastValidationError = &reason
		reg.UpdatedAt = now
		if reg.RetryCount >= p.MaxRetryAttempts {
			reg.Status = models.StatusRejected
			reg.NextAttemptAt = time.Time{} // no further attempt scheduled
			return TransitionRejected, nil
		}
		reg.NextAttemptAt = now.Add(p.RetryDelay)
		return TransitionRetryScheduled, nil

	default:
		return "", fmt.Errorf("unknown outcome kind %q", out.Kind)
	}
}

// Activate performs the external Approved -> Active transition, driven by
// the email-verification flow rather than the batch runner.
func Activate(reg *models.Registration, now time.Time) error {
	if reg.Status != models.StatusApproved {
		return &InvalidTransitionError{Status: reg.Status}
	}
	reg.Status = models.StatusActive
	reg.UpdatedAt = now
	return nil
}
