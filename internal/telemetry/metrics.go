// Package telemetry exposes Prometheus metrics for the write path.
// Metrics are global with no unbounded label cardinality; registration is
// eager and harmless if no /metrics endpoint is ever exposed.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	batchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventvault_batches_total",
		Help: "Total ingest batches processed",
	})
	insertedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventvault_records_inserted_total",
		Help: "Total records committed as inserts",
	})
	replacedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventvault_records_replaced_total",
		Help: "Total records committed as replaces",
	})
	itemErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventvault_item_errors_total",
		Help: "Total per-record failures by stage (prepare or write)",
	}, []string{"stage"})
	batchFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eventvault_batch_failures_total",
		Help: "Total wholesale bulk write failures",
	})
	intentsPerBatch = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "eventvault_intents_per_batch",
		Help:    "Distribution of write intents per batch",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
	})
)

func init() {
	prometheus.MustRegister(batchesTotal, insertedTotal, replacedTotal,
		itemErrorsTotal, batchFailuresTotal, intentsPerBatch)
}

// ObserveBatch records one processed batch and its intent count.
func ObserveBatch(intents int) {
	batchesTotal.Inc()
	if intents > 0 {
		intentsPerBatch.Observe(float64(intents))
	}
}

// ObserveCommits records committed insert and replace counts.
func ObserveCommits(inserted, replaced int) {
	insertedTotal.Add(float64(inserted))
	replacedTotal.Add(float64(replaced))
}

// ObservePrepareErrors records per-record preparation failures.
func ObservePrepareErrors(n int) {
	if n > 0 {
		itemErrorsTotal.WithLabelValues("prepare").Add(float64(n))
	}
}

// ObserveWriteErrors records per-index bulk write failures.
func ObserveWriteErrors(n int) {
	if n > 0 {
		itemErrorsTotal.WithLabelValues("write").Add(float64(n))
	}
}

// ObserveBatchFailure records one wholesale bulk write failure.
func ObserveBatchFailure() {
	batchFailuresTotal.Inc()
}
