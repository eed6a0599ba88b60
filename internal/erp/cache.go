package erp

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"registration-verifier/internal/models"
	"registration-verifier/internal/telemetry"
)

// snapshot is one immutable generation of the directory. Refresh builds a
// complete replacement and swaps the pointer, so readers never observe a
// half-populated map.
type snapshot struct {
	records     map[string]models.EmployeeRecord
	refreshedAt time.Time
	refreshOK   bool
}

// Cache holds the in-memory view of the ERP directory.
type Cache struct {
	client Client
	snap   atomic.Pointer[snapshot]
	group  singleflight.Group
}

// NewCache starts empty; the refresh loop performs the first load.
func NewCache(client Client) *Cache {
	c := &Cache{client: client}
	c.snap.Store(&snapshot{records: map[string]models.EmployeeRecord{}})
	return c
}

// Refresh reloads the full directory and replaces the snapshot wholesale.
// Concurrent callers coalesce onto a single in-flight reload and all observe
// its result. On fetch failure the previous records are retained and the
// failure is reported through both the stats and the returned error; the
// error is recoverable, never fatal.
func (c *Cache) Refresh(ctx context.Context) (models.CacheStats, error) {
	type result struct {
		stats models.CacheStats
	}
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		records, fetchErr := c.client.FetchAll(ctx)
		if fetchErr != nil {
			prev := c.snap.Load()
			c.snap.Store(&snapshot{
				records:     prev.records,
				refreshedAt: prev.refreshedAt,
				refreshOK:   false,
			})
			telemetry.CacheRefreshFailures.Inc()
			return result{stats: c.Stats()}, fetchErr
		}

		byStaff := make(map[string]models.EmployeeRecord, len(records))
		for _, r := range records {
			byStaff[r.StaffNumber] = r
		}
		c.snap.Store(&snapshot{
			records:     byStaff,
			refreshedAt: time.Now().UTC(),
			refreshOK:   true,
		})
		telemetry.CacheRefreshSuccess.Inc()
		telemetry.CacheRecordsGauge.Set(float64(len(byStaff)))
		return result{stats: c.Stats()}, nil
	})
	return v.(result).stats, err
}

// Lookup reads the current snapshot without touching the network.
func (c *Cache) Lookup(staffNumber string) (models.EmployeeRecord, bool) {
	rec, ok := c.snap.Load().records[staffNumber]
	return rec, ok
}

// Stats returns a point-in-time view of the current snapshot.
func (c *Cache) Stats() models.CacheStats {
	s := c.snap.Load()
	return models.CacheStats{
		CachedRecordCount:    len(s.records),
		LastRefreshedAt:      s.refreshedAt,
		LastRefreshSucceeded: s.refreshOK,
	}
}

// Run keeps the cache warm: one immediate refresh at startup, then one per
// interval until the context is cancelled. Refresh failures are logged and
// the loop continues; stale data is served in the meantime.
func (c *Cache) Run(ctx context.Context, interval time.Duration) error {
	if stats, err := c.Refresh(ctx); err != nil {
		log.Printf("erp cache: initial refresh failed, serving empty cache: %v", err)
	} else {
		log.Printf("erp cache: loaded %d records", stats.CachedRecordCount)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if stats, err := c.Refresh(ctx); err != nil {
				log.Printf("erp cache: refresh failed, keeping %d stale records: %v", stats.CachedRecordCount, err)
			}
		}
	}
}
