// Package metrics holds the Prometheus collectors for ingestion and question answering.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docqa"

// Cache lookup results.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Metrics groups the domain collectors. The zero value is not usable; use New.
type Metrics struct {
	DocumentsIngested *prometheus.CounterVec
	ChunksIndexed     prometheus.Counter
	IngestDuration    prometheus.Histogram
	QueryDuration     prometheus.Histogram
	QueryCache        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests use to get a working no-op.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		DocumentsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_ingested_total",
			Help:      "Uploaded files processed by the ingest pipeline, by outcome.",
		}, []string{"status"}),
		ChunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_indexed_total",
			Help:      "Chunks embedded and written to the vector index.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Wall time of one ingest run.",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Wall time of answering one question.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		QueryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_cache_total",
			Help:      "Answer cache lookups, by result.",
		}, []string{"result"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.DocumentsIngested, m.ChunksIndexed, m.IngestDuration,
		m.QueryDuration, m.QueryCache,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Nop returns unregistered collectors.
func Nop() *Metrics {
	m, _ := New(nil)
	return m
}

// RegisterIndexSize exposes docqa_index_chunks, read from count at every
// scrape so uploads, deletes and resets are all reflected.
func RegisterIndexSize(reg prometheus.Registerer, count func() int) (prometheus.GaugeFunc, error) {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "index_chunks",
		Help:      "Chunks currently held by the vector index.",
	}, func() float64 { return float64(count()) })
	if err := reg.Register(g); err != nil {
		return nil, err
	}
	return g, nil
}

// ObserveIngest records the outcome of one ingest run.
func (m *Metrics) ObserveIngest(indexed, failed, chunks int, took time.Duration) {
	m.DocumentsIngested.WithLabelValues("indexed").Add(float64(indexed))
	m.DocumentsIngested.WithLabelValues("failed").Add(float64(failed))
	m.ChunksIndexed.Add(float64(chunks))
	m.IngestDuration.Observe(took.Seconds())
}

// ObserveQuery records one answered question.
func (m *Metrics) ObserveQuery(took time.Duration) {
	m.QueryDuration.Observe(took.Seconds())
}

// ObserveCache records one cache lookup.
func (m *Metrics) ObserveCache(hit bool) {
	if hit {
		m.QueryCache.WithLabelValues(CacheHit).Inc()
		return
	}
	m.QueryCache.WithLabelValues(CacheMiss).Inc()
}
