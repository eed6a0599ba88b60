package models

import (
	"time"
)

// Registration lifecycle states persisted in Postgres.
// Active and Rejected are terminal.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusActive   = "active"
	StatusRejected = "rejected"
)

// Registration is a pending sign-up awaiting employment verification.
type Registration struct {
	ID                  string    `json:"id"`
	StaffNumber         string    `json:"staff_number"`
	Email               string    `json:"email"`
	Status              string    `json:"status"`
	RetryCount          int       `json:"retry_count"`
	NextAttemptAt       time.Time `json:"next_attempt_at"`
	LastValidationError *string   `json:"last_validation_error,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// EmployeeRecord is one entry of the ERP directory snapshot, keyed by
// staff number. The cache treats it as an opaque payload; only the
// validator interprets the employment fields.
type EmployeeRecord struct {
	StaffNumber      string     `json:"staff_number"`
	Name             string     `json:"name"`
	Department       string     `json:"department"`
	EmploymentStatus string     `json:"employment_status"`
	HiredAt          time.Time  `json:"hired_at"`
	LeftAt           *time.Time `json:"left_at,omitempty"`
}

// EmploymentActive is the only employment status the acceptance rule admits.
const EmploymentActive = "active"

// CacheStats is a point-in-time view of the ERP cache snapshot.
type CacheStats struct {
	CachedRecordCount    int       `json:"cached_record_count"`
	LastRefreshedAt      time.Time `json:"last_refreshed_at"`
	LastRefreshSucceeded bool      `json:"last_refresh_succeeded"`
}

// BatchResult summarizes one batch runner invocation.
type BatchResult struct {
	Processed int `json:"processed"`
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
}
