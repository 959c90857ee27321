package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Allocation("allocated")
		m.Shortfall("waste")
		m.CertificateIssued("single")
		m.Assigned("range", 3)
	})
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.Allocation("allocated")
	m.Allocation("allocated")
	m.Shortfall("education")
	m.Assigned("range", 11)
	m.Assigned("single", 0)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Allocations.WithLabelValues("allocated")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Shortfalls.WithLabelValues("education")))
	assert.Equal(t, float64(11), testutil.ToFloat64(m.Assignments.WithLabelValues("range")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Assignments.WithLabelValues("single")))
}
