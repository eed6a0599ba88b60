package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"registration-verifier/internal/models"
)

// ErrNotFound is returned when a registration id does not exist.
var ErrNotFound = errors.New("registration not found")

// Store wraps pgxpool for Postgres persistence of registrations.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// CreateParams collects inputs for the registration-intake flow.
type CreateParams struct {
	StaffNumber string
	Email       string
}

// Create inserts a new registration in pending status, due immediately.
func (s *Store) Create(ctx context.Context, p CreateParams) (models.Registration, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO registrations (id, staff_number, email, status, retry_count, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5, $5)
	`, id, p.StaffNumber, p.Email, models.StatusPending, now)
	if err != nil {
		return models.Registration{}, fmt.Errorf("insert registration: %w", err)
	}

	return models.Registration{
		ID:            id,
		StaffNumber:   p.StaffNumber,
		Email:         p.Email,
		Status:        models.StatusPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

const registrationColumns = `id, staff_number, email, status, retry_count, next_attempt_at, last_validation_error, created_at, updated_at`

// Get fetches a registration by id.
func (s *Store) Get(ctx context.Context, id string) (models.Registration, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+registrationColumns+` FROM registrations WHERE id = $1
	`, id)
	reg, err := scanRegistration(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Registration{}, ErrNotFound
	}
	return reg, err
}

// LoadEligiblePending returns up to limit pending registrations whose next
// attempt is due, oldest-due first so no registration starves.
func (s *Store) LoadEligiblePending(ctx context.Context, limit int, now time.Time) ([]models.Registration, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+registrationColumns+`
		FROM registrations
		WHERE status = $1 AND next_attempt_at IS NOT NULL AND next_attempt_at <= $2
		ORDER BY next_attempt_at ASC
		LIMIT $3
	`, models.StatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query eligible registrations: %w", err)
	}
	defer rows.Close()

	var regs []models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// Save persists the mutable validation fields of a registration.
func (s *Store) Save(ctx context.Context, reg models.Registration) error {
	var nextAttempt any
	if !reg.NextAttemptAt.IsZero() {
		nextAttempt = reg.NextAttemptAt
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE registrations
		SET status = $2, retry_count = $3, next_attempt_at = $4, last_validation_error = $5, updated_at = NOW()
		WHERE id = $1
	`, reg.ID, reg.Status, reg.RetryCount, nextAttempt, reg.LastValidationError)
	if err != nil {
		return fmt.Errorf("save registration %s: %w", reg.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkActive performs the Approved -> Active transition on behalf of the
// external email-verification flow.
func (s *Store) MarkActive(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE registrations SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, models.StatusActive, models.StatusApproved)
	if err != nil {
		return fmt.Errorf("activate registration %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("registration %s is not awaiting activation", id)
	}
	return nil
}

// CountEligible returns how many pending registrations are currently due.
func (s *Store) CountEligible(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM registrations
		WHERE status = $1 AND next_attempt_at IS NOT NULL AND next_attempt_at <= $2
	`, models.StatusPending, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("count eligible registrations: %w", err)
	}
	return n, nil
}

func scanRegistration(row pgx.Row) (models.Registration, error) {
	var reg models.Registration
	var nextAttempt pgtype.Timestamptz
	var lastErr pgtype.Text

	if err := row.Scan(&reg.ID, &reg.StaffNumber, &reg.Email, &reg.Status, &reg.RetryCount,
		&nextAttempt, &lastErr, &reg.CreatedAt, &reg.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Registration{}, err
		}
		return models.Registration{}, fmt.Errorf("scan registration: %w", err)
	}
	if nextAttempt.Valid {
		reg.NextAttemptAt = nextAttempt.Time
	}
	reg.LastValidationError = textPtr(lastErr)
	return reg, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
