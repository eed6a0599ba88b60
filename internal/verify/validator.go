package verify

import (
	"context"
	"fmt"
	"time"

	"registration-verifier/internal/erp"
	"registration-verifier/internal/models"
)

// Outcome kinds. A validation attempt is a single idempotent check; retry
// orchestration lives in the state machine.
const (
	OutcomeAccepted  = "accepted"
	OutcomeRejected  = "rejected"
	OutcomeTransient = "transient"
)

// Outcome is the result of validating one registration.
type Outcome struct {
	Kind   string
	Record *models.EmployeeRecord // set on Accepted
	Reason string                 // set on Rejected and Transient
}

// Resolver resolves a staff number to an employee record, or (nil, nil) when
// no record exists.
type Resolver interface {
	Resolve(ctx context.Context, staffNumber string) (*models.EmployeeRecord, error)
}

// Validator checks a registration against the employee directory.
type Validator struct {
	resolver Resolver
}

func NewValidator(resolver Resolver) *Validator {
	return &Validator{resolver: resolver}
}

// Validate resolves the registrant's employee record and applies the
// acceptance rules. Remote failures classify as transient; a missing or
// non-compliant record classifies as rejected.
func (v *Validator) Validate(ctx context.Context, reg models.Registration) Outcome {
	record, err := v.resolver.Resolve(ctx, reg.StaffNumber)
	if err != nil {
		if erp.IsTransient(err) {
			return Outcome{Kind: OutcomeTransient, Reason: err.Error()}
		}
		// Permanent remote responses (malformed staff number, contract
		// drift) cannot succeed on a later attempt with the same input.
		return Outcome{Kind: OutcomeRejected, Reason: err.Error()}
	}
	if record == nil {
		return Outcome{Kind: OutcomeRejected,
			Reason: fmt.Sprintf("no employee record for staff number %s", reg.StaffNumber)}
	}
	if reason := checkEmployment(*record, time.Now()); reason != "" {
		return Outcome{Kind: OutcomeRejected, Reason: reason}
	}
	return Outcome{Kind: OutcomeAccepted, Record: record}
}

// checkEmployment returns an empty string when the record passes the
// acceptance rules, otherwise the rejection reason.
func checkEmployment(record models.EmployeeRecord, now time.Time) string {
	if record.EmploymentStatus != models.EmploymentActive {
		return fmt.Sprintf("employment status is %q, not active", record.EmploymentStatus)
	}
	if record.HiredAt.After(now) {
		return fmt.Sprintf("hire date %s is in the future", record.HiredAt.Format(time.DateOnly))
	}
	if record.LeftAt != nil && !record.LeftAt.After(now) {
		return fmt.Sprintf("employment ended on %s", record.LeftAt.Format(time.DateOnly))
	}
	return ""
}
