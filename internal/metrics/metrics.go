// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics groups the application's collectors.
//
//   - pdfqa_index_cache_hits_total / pdfqa_index_cache_misses_total
//   - pdfqa_index_cache_size
//   - pdfqa_index_build_duration_seconds
//   - pdfqa_chunks_indexed_total
//   - pdfqa_http_requests_total{route,method,status}
//   - pdfqa_http_request_duration_seconds{route,method}
type Metrics struct {
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	CacheSize          prometheus.Gauge
	IndexBuildDuration prometheus.Histogram
	ChunksIndexedTotal prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// Default returns the process-wide metrics, registering them on first use.
func Default() *Metrics {
	once.Do(func() {
		global = &Metrics{
			CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "pdfqa_index_cache_hits_total",
				Help: "Requests served from an already built document index",
			}),
			CacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "pdfqa_index_cache_misses_total",
				Help: "Requests that had to load, split and embed a document",
			}),
			CacheSize: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "pdfqa_index_cache_size",
				Help: "Number of document indexes held in memory",
			}),
			IndexBuildDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "pdfqa_index_build_duration_seconds",
				Help:    "Time spent building a document index",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			}),
			ChunksIndexedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "pdfqa_chunks_indexed_total",
				Help: "Chunks embedded and stored across all indexes",
			}),
			HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "pdfqa_http_requests_total",
				Help: "HTTP requests by route, method and status code",
			}, []string{"route", "method", "status"}),
			HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "pdfqa_http_request_duration_seconds",
				Help:    "HTTP request latency by route and method",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			}, []string{"route", "method"}),
		}
	})
	return global
}
