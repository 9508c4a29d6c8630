// Package metrics holds the Prometheus collectors of the worker.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status label values
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Skip reasons
const (
	ReasonExisting = "existing"
	ReasonStale    = "stale"
	ReasonNoToday  = "not_today"
	ReasonNoURL    = "no_url"
)

var (
	once sync.Once

	cyclesTotal         *prometheus.CounterVec
	sourcesTotal        *prometheus.CounterVec
	itemsFoundTotal     *prometheus.CounterVec
	itemsSkippedTotal   *prometheus.CounterVec
	itemsPersistedTotal *prometheus.CounterVec
	detailFetchTotal    *prometheus.CounterVec
)

// Init registers every collector with the default registry. It is safe to
// call more than once.
func Init() {
	once.Do(func() {
		cyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "topn_cycles_total",
				Help: "Total number of monitoring cycles by status.",
			},
			[]string{"status"},
		)
		sourcesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "topn_sources_total",
				Help: "Total number of source URLs processed by status.",
			},
			[]string{"status"},
		)
		itemsFoundTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "topn_items_found_total",
				Help: "Total number of fresh items extracted from listing pages.",
			},
			[]string{"source"},
		)
		itemsSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "topn_items_skipped_total",
				Help: "Total number of listing cards skipped by reason.",
			},
			[]string{"source", "reason"},
		)
		itemsPersistedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "topn_items_persisted_total",
				Help: "Total number of item persistence attempts by status.",
			},
			[]string{"source", "status"},
		)
		detailFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "topn_detail_fetch_total",
				Help: "Total number of detail page fetches by status.",
			},
			[]string{"source", "status"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveCycle counts a finished monitoring cycle.
func ObserveCycle(status string) {
	Init()
	cyclesTotal.WithLabelValues(status).Inc()
}

// ObserveSource counts a processed source URL.
func ObserveSource(status string) {
	Init()
	sourcesTotal.WithLabelValues(status).Inc()
}

// ObserveItemsFound adds n fresh items for source.
func ObserveItemsFound(source string, n int) {
	Init()
	if n > 0 {
		itemsFoundTotal.WithLabelValues(source).Add(float64(n))
	}
}

// ObserveItemSkipped counts one skipped listing card.
func ObserveItemSkipped(source, reason string) {
	Init()
	itemsSkippedTotal.WithLabelValues(source, reason).Inc()
}

// ObserveItemPersisted counts one persistence attempt.
func ObserveItemPersisted(source, status string) {
	Init()
	itemsPersistedTotal.WithLabelValues(source, status).Inc()
}

// ObserveDetailFetch counts one detail page fetch.
func ObserveDetailFetch(source, status string) {
	Init()
	detailFetchTotal.WithLabelValues(source, status).Inc()
}

// ItemsSkipped exposes the skip counter, mainly for assertions in tests.
func ItemsSkipped() *prometheus.CounterVec {
	Init()
	return itemsSkippedTotal
}

// ItemsPersisted exposes the persistence counter.
func ItemsPersisted() *prometheus.CounterVec {
	Init()
	return itemsPersistedTotal
}

// Cycles exposes the cycle counter.
func Cycles() *prometheus.CounterVec {
	Init()
	return cyclesTotal
}
