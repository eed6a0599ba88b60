package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	BatchProcessed = prometheus.NewCounter(prometheus.CounterOpts{Name: "registrations_processed_total", Help: "Registrations examined by the batch runner"})
	BatchApproved  = prometheus.NewCounter(prometheus.CounterOpts{Name: "registrations_approved_total", Help: "Registrations approved for email verification"})
	BatchRejected  = prometheus.NewCounter(prometheus.CounterOpts{Name: "registrations_rejected_total", Help: "Registrations terminally rejected"})
	BatchRetried   = prometheus.NewCounter(prometheus.CounterOpts{Name: "registrations_retried_total", Help: "Registrations rescheduled for another attempt"})
	BatchFailed    = prometheus.NewCounter(prometheus.CounterOpts{Name: "registrations_failed_total", Help: "Registrations whose processing failed inside a run"})

	CacheRefreshSuccess  = prometheus.NewCounter(prometheus.CounterOpts{Name: "erp_cache_refresh_success_total", Help: "Successful ERP cache refreshes"})
	CacheRefreshFailures = prometheus.NewCounter(prometheus.CounterOpts{Name: "erp_cache_refresh_failures_total", Help: "Failed ERP cache refreshes (stale data retained)"})
	CacheRecordsGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "erp_cache_records", Help: "Employee records in the current cache snapshot"})
	LookupThrottled      = prometheus.NewCounter(prometheus.CounterOpts{Name: "erp_lookups_throttled_total", Help: "Live ERP lookups rejected by the rate limiter"})

	EligibleBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "registrations_eligible_backlog", Help: "Pending registrations due for validation"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			BatchProcessed,
			BatchApproved,
			BatchRejected,
			BatchRetried,
			BatchFailed,
			CacheRefreshSuccess,
			CacheRefreshFailures,
			CacheRecordsGauge,
			LookupThrottled,
			EligibleBacklogGauge,
		)
	})
	return promhttp.Handler()
}
