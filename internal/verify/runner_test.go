package verify

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"registration-verifier/internal/models"
)

// memStorage is an in-memory Storage with injectable save failures.
type memStorage struct {
	mu       sync.Mutex
	regs     map[string]models.Registration
	failSave map[string]bool
	loaded   []string
}

func newMemStorage(regs ...models.Registration) *memStorage {
	m := &memStorage{regs: map[string]models.Registration{}, failSave: map[string]bool{}}
	for _, r := range regs {
		m.regs[r.ID] = r
	}
	return m
}

func (m *memStorage) LoadEligiblePending(_ context.Context, limit int, now time.Time) ([]models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Registration
	for _, r := range m.regs {
		if r.Status == models.StatusPending && !r.NextAttemptAt.IsZero() && !r.NextAttemptAt.After(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(out[j].NextAttemptAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	for _, r := range out {
		m.loaded = append(m.loaded, r.ID)
	}
	return out, nil
}

func (m *memStorage) Save(_ context.Context, reg models.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave[reg.ID] {
		return errors.New("write failed")
	}
	m.regs[reg.ID] = reg
	return nil
}

func (m *memStorage) CountEligible(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.regs {
		if r.Status == models.StatusPending && !r.NextAttemptAt.IsZero() && !r.NextAttemptAt.After(now) {
			n++
		}
	}
	return n, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (n *recordingNotifier) SendVerificationEmail(_ context.Context, reg models.Registration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, reg.ID)
	return n.err
}

// routingResolver maps staff numbers to canned results.
type routingResolver struct {
	records map[string]*models.EmployeeRecord
	errs    map[string]error
}

func (r routingResolver) Resolve(_ context.Context, staffNumber string) (*models.EmployeeRecord, error) {
	if err, ok := r.errs[staffNumber]; ok {
		return nil, err
	}
	return r.records[staffNumber], nil
}

func due(id, staff string, offset time.Duration) models.Registration {
	return models.Registration{
		ID:            id,
		StaffNumber:   staff,
		Email:         id + "@example.com",
		Status:        models.StatusPending,
		NextAttemptAt: time.Now().UTC().Add(offset),
	}
}

func TestRunOnceCountsAndPersists(t *testing.T) {
	storage := newMemStorage(
		due("r1", "S100", -3*time.Minute),
		due("r2", "S150", -2*time.Minute),
		due("r3", "S100", -time.Minute),
		due("r4", "S200", time.Hour), // not yet due
	)
	resolver := routingResolver{records: map[string]*models.EmployeeRecord{
		"S100": activeRecord(),
		"S150": {StaffNumber: "S150", EmploymentStatus: "terminated", HiredAt: time.Now().Add(-time.Hour)},
	}}
	notifier := &recordingNotifier{}
	policy := Policy{MaxRetryAttempts: 3, RetryDelay: 10 * time.Minute}
	runner := NewRunner(storage, NewValidator(resolver), notifier, policy, 10, 2)

	result, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if result.Processed != 3 {
		t.Fatalf("processed = %d, want 3", result.Processed)
	}
	if result.Approved != 2 || result.Retried != 1 || result.Rejected != 0 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if got := storage.regs["r1"].Status; got != models.StatusApproved {
		t.Fatalf("r1 status = %s, want approved", got)
	}
	r2 := storage.regs["r2"]
	if r2.Status != models.StatusPending || r2.RetryCount != 1 {
		t.Fatalf("r2 = %+v, want pending with one retry", r2)
	}
	if got := storage.regs["r4"].Status; got != models.StatusPending {
		t.Fatalf("r4 must be untouched, got %s", got)
	}
	if len(notifier.sent) != 2 {
		t.Fatalf("verification emails sent = %d, want 2", len(notifier.sent))
	}
}

func TestRunOnceSelectsOldestDueFirst(t *testing.T) {
	storage := newMemStorage(
		due("newer", "S100", -time.Minute),
		due("older", "S100", -time.Hour),
		due("oldest", "S100", -2*time.Hour),
	)
	resolver := routingResolver{records: map[string]*models.EmployeeRecord{"S100": activeRecord()}}
	policy := Policy{MaxRetryAttempts: 3, RetryDelay: time.Minute}
	runner := NewRunner(storage, NewValidator(resolver), &recordingNotifier{}, policy, 2, 1)

	if _, err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	want := []string{"oldest", "older"}
	if len(storage.loaded) != 2 || storage.loaded[0] != want[0] || storage.loaded[1] != want[1] {
		t.Fatalf("loaded %v, want %v", storage.loaded, want)
	}
}

func TestRunOnceIsolatesSaveFailures(t *testing.T) {
	storage := newMemStorage(
		due("r1", "S100", -2*time.Minute),
		due("r2", "S100", -time.Minute),
	)
	storage.failSave["r1"] = true
	resolver := routingResolver{records: map[string]*models.EmployeeRecord{"S100": activeRecord()}}
	notifier := &recordingNotifier{}
	policy := Policy{MaxRetryAttempts: 3, RetryDelay: time.Minute}
	runner := NewRunner(storage, NewValidator(resolver), notifier, policy, 10, 1)

	result, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if result.Failed != 1 || result.Approved != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	// The failed row stays pending in storage for the next run.
	if got := storage.regs["r1"].Status; got != models.StatusPending {
		t.Fatalf("r1 status = %s, want pending", got)
	}
	// No email for the registration whose persistence failed.
	if len(notifier.sent) != 1 || notifier.sent[0] != "r2" {
		t.Fatalf("sent = %v, want [r2]", notifier.sent)
	}
}

func TestRunObservesCancellation(t *testing.T) {
	storage := newMemStorage()
	resolver := routingResolver{}
	policy := Policy{MaxRetryAttempts: 3, RetryDelay: time.Minute}
	runner := NewRunner(storage, NewValidator(resolver), &recordingNotifier{}, policy, 10, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runner.Run(ctx, fixedDelay(time.Hour))
	}()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop while waiting on the timer")
	}
}

type fixedDelay time.Duration

func (d fixedDelay) NextRunDelay(_ time.Time) time.Duration {
	return time.Duration(d)
}
