package verify

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"registration-verifier/internal/models"
	"registration-verifier/internal/telemetry"
)

// Storage is the persistence collaborator for registrations.
type Storage interface {
	LoadEligiblePending(ctx context.Context, limit int, now time.Time) ([]models.Registration, error)
	Save(ctx context.Context, reg models.Registration) error
	CountEligible(ctx context.Context, now time.Time) (int64, error)
}

// Notifier sends the verification email when a registration is approved.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, reg models.Registration) error
}

// Runner drives one validation batch: select eligible pending registrations
// oldest-due first, validate each, apply the state machine, persist.
type Runner struct {
	store       Storage
	validator   *Validator
	notifier    Notifier
	policy      Policy
	batchSize   int
	concurrency int
}

func NewRunner(store Storage, validator *Validator, notifier Notifier, policy Policy, batchSize, concurrency int) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{
		store:       store,
		validator:   validator,
		notifier:    notifier,
		policy:      policy,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// RunOnce processes a single batch. Per-registration failures are counted
// and never abort the batch; every eligible registration gets one attempt.
// Items are independent, so they run under a bounded worker group; ids
// within one batch are distinct, so writes never race on the same row.
func (r *Runner) RunOnce(ctx context.Context) (models.BatchResult, error) {
	now := time.Now().UTC()
	regs, err := r.store.LoadEligiblePending(ctx, r.batchSize, now)
	if err != nil {
		return models.BatchResult{}, err
	}

	var (
		mu     sync.Mutex
		result models.BatchResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, reg := range regs {
		reg := reg
		g.Go(func() error {
			kind := r.processOne(gctx, &reg, now)
			mu.Lock()
			defer mu.Unlock()
			result.Processed++
			switch kind {
			case TransitionApproved:
				result.Approved++
			case TransitionRejected:
				result.Rejected++
			case TransitionRetryScheduled:
				result.Retried++
			default:
				result.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	if backlog, err := r.store.CountEligible(ctx, time.Now().UTC()); err == nil {
		telemetry.EligibleBacklogGauge.Set(float64(backlog))
	}

	telemetry.BatchProcessed.Add(float64(result.Processed))
	telemetry.BatchApproved.Add(float64(result.Approved))
	telemetry.BatchRejected.Add(float64(result.Rejected))
	telemetry.BatchRetried.Add(float64(result.Retried))
	telemetry.BatchFailed.Add(float64(result.Failed))
	return result, nil
}

// processOne validates and persists a single registration, returning the
// transition kind or "" when the item failed inside the run.
func (r *Runner) processOne(ctx context.Context, reg *models.Registration, now time.Time) string {
	outcome := r.validator.Validate(ctx, *reg)

	kind, err := r.policy.Apply(reg, outcome, now)
	if err != nil {
		log.Printf("batch: registration %s: %v", reg.ID, err)
		return ""
	}

	if err := r.store.Save(ctx, *reg); err != nil {
		// The row is left unchanged in storage and stays eligible for the
		// next run.
		log.Printf("batch: persist registration %s: %v", reg.ID, err)
		return ""
	}

	if kind == TransitionApproved {
		if err := r.notifier.SendVerificationEmail(ctx, *reg); err != nil {
			log.Printf("batch: verification email for %s: %v", reg.ID, err)
		}
	}
	return kind
}

// CadencePolicy yields the wait before the next batch run.
type CadencePolicy interface {
	NextRunDelay(now time.Time) time.Duration
}

// Run is the batch scheduling loop: wait out the current cadence, run one
// batch, repeat. Run errors are logged and the loop proceeds to the next
// scheduled tick.
func (r *Runner) Run(ctx context.Context, delays CadencePolicy) error {
	for {
		delay := delays.NextRunDelay(time.Now())
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		result, err := r.RunOnce(ctx)
		if err != nil {
			log.Printf("batch: run failed: %v", err)
			continue
		}
		if result.Processed > 0 {
			log.Printf("batch: processed=%d approved=%d rejected=%d retried=%d failed=%d",
				result.Processed, result.Approved, result.Rejected, result.Retried, result.Failed)
		}
	}
}
