package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/Laisky/api-aggregator/library/source"
)

func TestCollectorExportsSnapshot(t *testing.T) {
	store := NewStore()
	store.Record(source.GitHub, 50)
	store.Record(source.GitHub, 250)

	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(NewCollector(store)))

	families, err := registry.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			key := family.GetName()
			for _, label := range metric.GetLabel() {
				key += "," + label.GetName() + "=" + label.GetValue()
			}
			values[key] = metric.GetCounter().GetValue()
		}
	}

	require.Equal(t, 2.0, values["aggregator_source_requests_total,source=GitHub"])
	require.Equal(t, 300.0, values["aggregator_source_latency_ms_sum,source=GitHub"])
	require.Equal(t, 1.0, values["aggregator_source_latency_bucket_total,bucket=fast,source=GitHub"])
	require.Equal(t, 0.0, values["aggregator_source_latency_bucket_total,bucket=average,source=GitHub"])
	require.Equal(t, 1.0, values["aggregator_source_latency_bucket_total,bucket=slow,source=GitHub"])
}
