package erp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"registration-verifier/internal/models"
)

// Client queries the employee directory of record. FetchOne returns
// (nil, nil) when no record exists for the staff number.
type Client interface {
	FetchAll(ctx context.Context) ([]models.EmployeeRecord, error)
	FetchOne(ctx context.Context, staffNumber string) (*models.EmployeeRecord, error)
}

// RemoteError wraps ERP failures with a retryability flag so callers can
// separate transient outages from permanent responses.
type RemoteError struct {
	Op         string
	StatusCode int
	Transient  bool
	Underlying error
}

func (e *RemoteError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("erp %s: %v", e.Op, e.Underlying)
	}
	return fmt.Sprintf("erp %s: unexpected status %d", e.Op, e.StatusCode)
}

func (e *RemoteError) Unwrap() error {
	return e.Underlying
}

// IsTransient reports whether err is an ERP failure worth retrying.
func IsTransient(err error) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Transient
	}
	return false
}

// HTTPClient talks to the remote ERP over its JSON API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a client with a bounded per-request timeout; the slow
// remote must never stall a refresh or a batch item past it.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// FetchAll downloads the complete employee directory.
func (c *HTTPClient) FetchAll(ctx context.Context) ([]models.EmployeeRecord, error) {
	var records []models.EmployeeRecord
	if err := c.getJSON(ctx, c.baseURL+"/api/employees", "fetch-all", &records); err != nil {
		return nil, err
	}
	return records, nil
}

// FetchOne looks up a single employee by staff number.
func (c *HTTPClient) FetchOne(ctx context.Context, staffNumber string) (*models.EmployeeRecord, error) {
	var record models.EmployeeRecord
	err := c.getJSON(ctx, c.baseURL+"/api/employees/"+staffNumber, "fetch-one", &record)
	if err != nil {
		var re *RemoteError
		if errors.As(err, &re) && re.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, url, op string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &RemoteError{Op: op, Transient: false, Underlying: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Network and timeout failures are always retryable.
		return &RemoteError{Op: op, Transient: true, Underlying: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &RemoteError{Op: op, StatusCode: resp.StatusCode, Transient: false,
				Underlying: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Transient: true}
	default:
		return &RemoteError{Op: op, StatusCode: resp.StatusCode, Transient: false}
	}
}

// MockClient serves a deterministic directory for dev and tests, with a
// configurable latency to mimic the real system's sluggishness.
type MockClient struct {
	Latency time.Duration
	Records []models.EmployeeRecord
}

func (m *MockClient) FetchAll(_ context.Context) ([]models.EmployeeRecord, error) {
	time.Sleep(m.Latency)
	out := make([]models.EmployeeRecord, len(m.Records))
	copy(out, m.Records)
	return out, nil
}

func (m *MockClient) FetchOne(_ context.Context, staffNumber string) (*models.EmployeeRecord, error) {
	time.Sleep(m.Latency)
	for _, r := range m.Records {
		if r.StaffNumber == staffNumber {
			rec := r
			return &rec, nil
		}
	}
	return nil, nil
}
