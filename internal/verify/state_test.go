package verify

import (
	"errors"
	"testing"
	"time"

	"registration-verifier/internal/models"
)

func pendingRegistration() models.Registration {
	return models.Registration{
		ID:          "r1",
		StaffNumber: "S100",
		Email:       "s100@example.com",
		Status:      models.StatusPending,
	}
}

func TestApplyAcceptedApproves(t *testing.T) {
	p := Policy{MaxRetryAttempts: 3, RetryDelay: 10 * time.Minute}
	reg := pendingRegistration()
	reg.RetryCount = 1
	stale := "previous failure"
	reg.LastValidationError = &stale

	kind, err := p.Apply(&reg, Outcome{Kind: OutcomeAccepted}, time.Now())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if kind != TransitionApproved {
		t.Fatalf("kind = %s, want approved", kind)
	}
	if reg.Status != models.StatusApproved {
		t.Fatalf("status = %s, want approved", reg.Status)
	}
	if reg.RetryCount != 1 {
		t.Fatalf("accepted outcome must not touch retry count, got %d", reg.RetryCount)
	}
	if reg.LastValidationError != nil {
		t.Fatalf("last validation error should clear on success")
	}
}

// Transient at t0, rule rejection at t0+10m, rule rejection again: the third
// failure exhausts the budget and the registration goes terminal.
func TestApplyRetryBudgetExhaustion(t *testing.T) {
	p := Policy{MaxRetryAttempts: 3, RetryDelay: 10 * time.Minute}
	reg := pendingRegistration()
	t0 := time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC)

	kind, err := p.Apply(&reg, Outcome{Kind: OutcomeTransient, Reason: "erp timeout"}, t0)
	if err != nil || kind != TransitionRetryScheduled {
		t.Fatalf("run 1: kind=%s err=%v", kind, err)
	}
	if reg.Status != models.StatusPending || reg.RetryCount != 1 {
		t.Fatalf("run 1: status=%s retries=%d", reg.Status, reg.RetryCount)
	}
	if !reg.NextAttemptAt.Equal(t0.Add(10 * time.Minute)) {
		t.Fatalf("run 1: next attempt = %s, want t0+10m", reg.NextAttemptAt)
	}
	if reg.LastValidationError == nil || *reg.LastValidationError != "erp timeout" {
		t.Fatalf("run 1: last error not recorded")
	}

	t1 := t0.Add(10 * time.Minute)
	kind, err = p.Apply(&reg, Outcome{Kind: OutcomeRejected, Reason: "not employed"}, t1)
	if err != nil || kind != TransitionRetryScheduled {
		t.Fatalf("run 2: kind=%s err=%v", kind, err)
	}
	if reg.Status != models.StatusPending || reg.RetryCount != 2 {
		t.Fatalf("run 2: status=%s retries=%d", reg.Status, reg.RetryCount)
	}

	t2 := t1.Add(10 * time.Minute)
	kind, err = p.Apply(&reg, Outcome{Kind: OutcomeRejected, Reason: "not employed"}, t2)
	if err != nil || kind != TransitionRejected {
		t.Fatalf("run 3: kind=%s err=%v", kind, err)
	}
	if reg.Status != models.StatusRejected || reg.RetryCount != 3 {
		t.Fatalf("run 3: status=%s retries=%d", reg.Status, reg.RetryCount)
	}
	if !reg.NextAttemptAt.IsZero() {
		t.Fatalf("terminal rejection must not schedule another attempt")
	}
	if reg.LastValidationError == nil || *reg.LastValidationError != "not employed" {
		t.Fatalf("final error must be preserved for audit")
	}
}

func TestApplyOneShortOfBudgetStaysPending(t *testing.T) {
	p := Policy{MaxRetryAttempts: 3, RetryDelay: time.Minute}
	reg := pendingRegistration()
	now := time.Now()

	for i := 0; i < 2; i++ {
		if _, err := p.Apply(&reg, Outcome{Kind: OutcomeRejected, Reason: "nope"}, now); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	if reg.Status != models.StatusPending {
		t.Fatalf("status = %s, want pending", reg.Status)
	}
	if reg.RetryCount != 2 {
		t.Fatalf("retries = %d, want maxRetryAttempts-1", reg.RetryCount)
	}
}

func TestApplyTerminalStatesAreClosed(t *testing.T) {
	p := Policy{MaxRetryAttempts: 3, RetryDelay: time.Minute}
	for _, status := range []string{models.StatusActive, models.StatusRejected} {
		reg := pendingRegistration()
		reg.Status = status
		_, err := p.Apply(&reg, Outcome{Kind: OutcomeAccepted}, time.Now())
		var ite *InvalidTransitionError
		if !errors.As(err, &ite) {
			t.Fatalf("status %s: expected invalid transition error, got %v", status, err)
		}
		if reg.Status != status {
			t.Fatalf("status %s mutated to %s", status, reg.Status)
		}
	}
}

func TestActivate(t *testing.T) {
	reg := pendingRegistration()
	reg.Status = models.StatusApproved
	if err := Activate(&reg, time.Now()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if reg.Status != models.StatusActive {
		t.Fatalf("status = %s, want active", reg.Status)
	}

	pending := pendingRegistration()
	if err := Activate(&pending, time.Now()); err == nil {
		t.Fatalf("activating a pending registration should fail")
	}
}
