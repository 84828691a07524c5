package cache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var _ prometheus.Collector = (*Collector)(nil)

type storeMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
}

func newStoreMetrics() *storeMetrics {
	return &storeMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridstream_cache_hits_total",
			Help: "Count of cache gets served from the store.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridstream_cache_misses_total",
			Help: "Count of cache gets that found nothing usable.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridstream_cache_evictions_total",
			Help: "Count of entries removed by age or size pressure.",
		}),
	}
}

// Collector is a prometheus.Collector reporting store statistics alongside
// the hit/miss/eviction counters.
type Collector struct {
	s *Store

	entriesDesc *prometheus.Desc
	chunksDesc  *prometheus.Desc
	bytesDesc   *prometheus.Desc
}

// NewCollector returns a Collector reading from s.
func NewCollector(s *Store) *Collector {
	return &Collector{
		s: s,
		entriesDesc: prometheus.NewDesc(
			"gridstream_cache_entries",
			"Current count of cache entries of all kinds.",
			nil, nil),
		chunksDesc: prometheus.NewDesc(
			"gridstream_cache_chunk_entries",
			"Current count of chunk entries.",
			nil, nil),
		bytesDesc: prometheus.NewDesc(
			"gridstream_cache_resident_bytes",
			"Total size of all cache entries.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entriesDesc
	ch <- c.chunksDesc
	ch <- c.bytesDesc
	c.s.metrics.hits.Describe(ch)
	c.s.metrics.misses.Describe(ch)
	c.s.metrics.evictions.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if st, err := c.s.Stats(ctx); err == nil {
		ch <- prometheus.MustNewConstMetric(c.entriesDesc, prometheus.GaugeValue, float64(st.Entries))
		ch <- prometheus.MustNewConstMetric(c.chunksDesc, prometheus.GaugeValue, float64(st.Chunks))
		ch <- prometheus.MustNewConstMetric(c.bytesDesc, prometheus.GaugeValue, float64(st.TotalBytes))
	}
	c.s.metrics.hits.Collect(ch)
	c.s.metrics.misses.Collect(ch)
	c.s.metrics.evictions.Collect(ch)
}
