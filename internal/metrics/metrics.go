package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks allocation, assignment and certification outcomes.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Allocations        *prometheus.CounterVec
	Shortfalls         *prometheus.CounterVec
	CertificatesIssued *prometheus.CounterVec
	Assignments        *prometheus.CounterVec
	UnitsRegistered    *prometheus.CounterVec
	AllocateDuration   prometheus.Histogram
}

// New registers the CDV metrics on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Allocations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdv_allocations_total",
			Help: "Quota allocation attempts by result (allocated, already_allocated, insufficient, error)",
		}, []string{"result"}),
		Shortfalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdv_inventory_shortfalls_total",
			Help: "Allocation attempts rejected for lack of units, by category",
		}, []string{"category"}),
		CertificatesIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdv_certificates_issued_total",
			Help: "Certificates issued, by kind (single, consolidated)",
		}, []string{"kind"}),
		Assignments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdv_quota_assignments_total",
			Help: "Quotas assigned to investors, by mode (single, range)",
		}, []string{"mode"}),
		UnitsRegistered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdv_units_registered_total",
			Help: "Impact units added to the pool, by category",
		}, []string{"category"}),
		AllocateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cdv_allocate_duration_seconds",
			Help:    "Duration of AllocateToQuota including retries",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) Allocation(result string) {
	if m == nil {
		return
	}
	m.Allocations.WithLabelValues(result).Inc()
}

func (m *Metrics) Shortfall(category string) {
	if m == nil {
		return
	}
	m.Shortfalls.WithLabelValues(category).Inc()
}

func (m *Metrics) CertificateIssued(kind string) {
	if m == nil {
		return
	}
	m.CertificatesIssued.WithLabelValues(kind).Inc()
}

func (m *Metrics) Assigned(mode string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Assignments.WithLabelValues(mode).Add(float64(n))
}

func (m *Metrics) Registered(category string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.UnitsRegistered.WithLabelValues(category).Add(float64(n))
}

// ObserveAllocate records the duration since start.
func (m *Metrics) ObserveAllocate(start time.Time) {
	if m == nil {
		return
	}
	m.AllocateDuration.Observe(time.Since(start).Seconds())
}
