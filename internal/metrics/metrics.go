// Package metrics provides Prometheus metrics for the inventory store.
// There is no scrape endpoint; `inventory metrics` dumps the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Store Metrics
	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_transactions_total",
			Help: "Total number of multi-collection operations by outcome",
		},
		[]string{"operation", "result"},
	)

	TransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inventory_transaction_duration_seconds",
			Help:    "Time spent in multi-collection operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	SchemaVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inventory_schema_version",
			Help: "Schema version of the open store",
		},
	)

	// Import/Export Metrics
	ImportRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_import_rows_total",
			Help: "Total number of imported CSV rows by entity type and outcome",
		},
		[]string{"type", "result"},
	)

	ArchiveMembersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_archive_members_total",
			Help: "Total number of backup archive members processed by outcome",
		},
		[]string{"result"},
	)

	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_exports_total",
			Help: "Total number of export files produced",
		},
		[]string{"type"},
	)

	// Catalog Metrics
	CatalogRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_catalog_requests_total",
			Help: "Total number of catalog API requests",
		},
		[]string{"kind", "result"},
	)

	CatalogRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inventory_catalog_request_duration_seconds",
			Help:    "Catalog API request latency in seconds, including throttle wait",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	CatalogCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_catalog_cache_hits_total",
			Help: "Catalog lookups served from the local cache",
		},
		[]string{"kind"},
	)

	CatalogCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_catalog_cache_misses_total",
			Help: "Catalog lookups that went to the API",
		},
		[]string{"kind"},
	)

	// Price Metrics
	PriceUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_price_updates_total",
			Help: "Cards processed by the price worker by outcome",
		},
		[]string{"result"},
	)

	PriceQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inventory_price_queue_size",
			Help: "Cards waiting in the price refresh queue",
		},
	)

	PriceBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "inventory_price_batch_duration_seconds",
			Help:    "Time to refresh one batch of card prices",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
	)

	// Collection Metrics
	CollectionCards = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inventory_collection_cards",
			Help: "Number of distinct card records in the collection",
		},
	)

	CollectionValue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inventory_collection_value_dollars",
			Help: "Total market value of the collection",
		},
	)

	OverdueLendings = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inventory_overdue_lendings",
			Help: "Number of active lendings past their expected return date",
		},
	)
)

// Result maps an error to the result label used by the counters
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
