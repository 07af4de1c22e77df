// Package metrics holds the process wide Prometheus collectors. Every helper
// is a no-op until Init has run, so libraries and tests can call them freely.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricPrefix = "settleflow_"

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once

	ingestFiles      *prometheus.CounterVec
	ingestLatency    *prometheus.HistogramVec
	ingestedRows     *prometheus.CounterVec
	publishFailures  prometheus.Counter
	archiveFailures  prometheus.Counter
	aggregateTotal   *prometheus.CounterVec
	aggregateLatency *prometheus.HistogramVec
	exportTotal      *prometheus.CounterVec
	settlementGaps   prometheus.Gauge
)

// Init registers the collectors with the default registry.
func Init() {
	InitWith(prometheus.DefaultRegisterer)
}

// InitWith registers the collectors with reg. Only the first call has effect.
func InitWith(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		ingestFiles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_files_total",
				Help: "Settlement files processed by outcome",
			},
			[]string{"status"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_file_duration_seconds",
				Help:    "Per file ingestion latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		)
		ingestedRows = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingested_rows_total",
				Help: "Rows committed or skipped during ingestion",
			},
			[]string{"kind"},
		)
		publishFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "event_publish_failures_total",
			Help: "Settlement events that could not be published",
		})
		archiveFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "archive_failures_total",
			Help: "Committed files that could not be archived",
		})
		aggregateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cashflow_aggregations_total",
				Help: "Cashflow aggregations by result",
			},
			[]string{"result"},
		)
		aggregateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "cashflow_aggregation_duration_seconds",
				Help:    "Cashflow aggregation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_exports_total",
				Help: "Report exports by sink and result",
			},
			[]string{"sink", "result"},
		)
		settlementGaps = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "settlement_gaps",
			Help: "Gaps between consecutive settlement periods at the last audit",
		})

		reg.MustRegister(
			ingestFiles,
			ingestLatency,
			ingestedRows,
			publishFailures,
			archiveFailures,
			aggregateTotal,
			aggregateLatency,
			exportTotal,
			settlementGaps,
		)
	})
}

// ObserveIngest records one file outcome ("inserted", "duplicate", "failed").
func ObserveIngest(status string, duration time.Duration) {
	if status == "" {
		status = "unknown"
	}
	if ingestFiles != nil {
		ingestFiles.WithLabelValues(status).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(status).Observe(duration.Seconds())
	}
}

// AddIngestedRows counts committed transactions and skipped payable lines.
func AddIngestedRows(transactions, skipped int) {
	if ingestedRows == nil {
		return
	}
	if transactions > 0 {
		ingestedRows.WithLabelValues("transaction").Add(float64(transactions))
	}
	if skipped > 0 {
		ingestedRows.WithLabelValues("payable_skipped").Add(float64(skipped))
	}
}

func IncPublishFailure() {
	if publishFailures != nil {
		publishFailures.Inc()
	}
}

func IncArchiveFailure() {
	if archiveFailures != nil {
		archiveFailures.Inc()
	}
}

// ObserveAggregate records an aggregation latency and result.
func ObserveAggregate(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if aggregateTotal != nil {
		aggregateTotal.WithLabelValues(result).Inc()
	}
	if aggregateLatency != nil {
		aggregateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncExport counts a report export to sink ("xlsx", "sheets").
func IncExport(sink, result string) {
	if exportTotal != nil {
		exportTotal.WithLabelValues(sink, result).Inc()
	}
}

func SetSettlementGaps(n int) {
	if settlementGaps != nil {
		settlementGaps.Set(float64(n))
	}
}
