package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aggregator"

// Collector exposes a Store to Prometheus. Values are read from
// Snapshot at scrape time, so the Store stays the single source of truth.
type Collector struct {
	store *Store

	requests *prometheus.Desc
	latency  *prometheus.Desc
	buckets  *prometheus.Desc
}

// NewCollector returns a prometheus.Collector over store.
func NewCollector(store *Store) *Collector {
	return &Collector{
		store: store,
		requests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "source", "requests_total"),
			"Total number of calls made to each source.",
			[]string{"source"}, nil,
		),
		latency: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "source", "latency_ms_sum"),
			"Cumulative elapsed milliseconds spent calling each source.",
			[]string{"source"}, nil,
		),
		buckets: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "source", "latency_bucket_total"),
			"Calls per source by latency class (fast <100ms, average 100-200ms, slow >200ms).",
			[]string{"source", "bucket"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requests
	ch <- c.latency
	ch <- c.buckets
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, stat := range c.store.Snapshot() {
		name := stat.Source.String()
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(stat.TotalRequests), name)
		ch <- prometheus.MustNewConstMetric(c.latency, prometheus.CounterValue, float64(stat.TotalMs), name)
		ch <- prometheus.MustNewConstMetric(c.buckets, prometheus.CounterValue, float64(stat.FastCount), name, string(BucketFast))
		ch <- prometheus.MustNewConstMetric(c.buckets, prometheus.CounterValue, float64(stat.AverageCount), name, string(BucketAverage))
		ch <- prometheus.MustNewConstMetric(c.buckets, prometheus.CounterValue, float64(stat.SlowCount), name, string(BucketSlow))
	}
}
