package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricName(t *testing.T) {
	assert.Equal(t, "database_compact_time", metricName("database/compact/time"))
	assert.Equal(t, "pool_rejected_total", metricName("pool/rejected-total"))
}

func TestGetOrRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	g1 := r.GetOrRegisterGauge("pool/size", "Pool size")
	g2 := r.GetOrRegisterGauge("pool/size", "Pool size")
	assert.Same(t, g1, g2)

	c1 := r.GetOrRegisterCounter("pool/added", "Added")
	c2 := r.GetOrRegisterCounter("pool/added", "Added")
	assert.Same(t, c1, c2)

	h1 := r.GetOrRegisterHistogram("pool/bytes", "Bytes", []float64{1, 10})
	h2 := r.GetOrRegisterHistogram("pool/bytes", "Bytes", []float64{1, 10})
	assert.Same(t, h1, h2)
}

func TestRegistryGather(t *testing.T) {
	r := NewRegistry()
	r.GetOrRegisterGauge("pool/size", "Pool size").Set(3)
	r.GetOrRegisterCounter("pool/rejected", "Rejected", "code").With("code", "ERR_LOW_FEE").Add(2)

	families, err := r.Gatherer().Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				values[mf.GetName()] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				values[mf.GetName()] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 3.0, values["txpool_pool_size"])
	assert.Equal(t, 2.0, values["txpool_pool_rejected"])
}

func TestNopMetrics(t *testing.T) {
	NopGauge().Set(1)
	NopCounter().Add(1)
	NopHistogram().Observe(1)
}
