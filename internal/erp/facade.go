package erp

import (
	"context"
	"errors"

	"registration-verifier/internal/models"
	"registration-verifier/internal/telemetry"
)

// LookupLimiter throttles live lookups against the remote system.
type LookupLimiter interface {
	AllowLookup(ctx context.Context) (bool, error)
}

// Facade resolves employee records cache-first. In cache-only mode a miss is
// final; otherwise misses fall through to a rate-limited live fetch so a
// burst of unknown staff numbers cannot hammer the slow remote.
type Facade struct {
	cache     *Cache
	client    Client
	cacheOnly bool
	limiter   LookupLimiter // nil disables throttling
}

func NewFacade(cache *Cache, client Client, cacheOnly bool, limiter LookupLimiter) *Facade {
	return &Facade{
		cache:     cache,
		client:    client,
		cacheOnly: cacheOnly,
		limiter:   limiter,
	}
}

// Resolve returns the employee record for a staff number, or (nil, nil) when
// no record exists anywhere.
func (f *Facade) Resolve(ctx context.Context, staffNumber string) (*models.EmployeeRecord, error) {
	if rec, ok := f.cache.Lookup(staffNumber); ok {
		return &rec, nil
	}
	if f.cacheOnly {
		return nil, nil
	}

	if f.limiter != nil {
		allowed, err := f.limiter.AllowLookup(ctx)
		if err != nil {
			return nil, &RemoteError{Op: "lookup-throttle", Transient: true, Underlying: err}
		}
		if !allowed {
			telemetry.LookupThrottled.Inc()
			return nil, &RemoteError{Op: "fetch-one", Transient: true,
				Underlying: errors.New("live erp lookups throttled")}
		}
	}
	return f.client.FetchOne(ctx, staffNumber)
}
