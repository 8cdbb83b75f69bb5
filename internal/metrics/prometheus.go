package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rawblock/ring-engine/pkg/models"
)

// Runtime metrics for the detection engine

var (
	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringengine",
			Subsystem: "pipeline",
			Name:      "analyses_total",
			Help:      "Total number of analysis runs by outcome",
		},
		[]string{"outcome"},
	)

	analysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ringengine",
			Subsystem: "pipeline",
			Name:      "analysis_duration_seconds",
			Help:      "Wall-clock duration of detection runs",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16), // 1ms to ~32s
		},
	)

	transactionsAnalyzed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ringengine",
			Subsystem: "pipeline",
			Name:      "transactions_analyzed_total",
			Help:      "Total number of transactions fed into the engine",
		},
	)

	ringsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringengine",
			Subsystem: "detection",
			Name:      "rings_detected_total",
			Help:      "Total number of fraud rings detected by pattern type",
		},
		[]string{"pattern"},
	)

	accountsFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ringengine",
			Subsystem: "detection",
			Name:      "accounts_flagged_total",
			Help:      "Total number of suspicious accounts reported",
		},
	)

	ingestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringengine",
			Subsystem: "ingest",
			Name:      "errors_total",
			Help:      "Rejected input batches by reason",
		},
		[]string{"reason"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringengine",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Report cache lookups by result",
		},
		[]string{"result"},
	)

	alertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ringengine",
			Subsystem: "alerts",
			Name:      "raised_total",
			Help:      "Ring alerts raised by severity",
		},
		[]string{"severity"},
	)
)

// RecordReport counts one successful run and what it found.
func RecordReport(txCount int, report *models.DetectionReport) {
	analysesTotal.WithLabelValues("success").Inc()
	transactionsAnalyzed.Add(float64(txCount))
	analysisDuration.Observe(report.Summary.ProcessingTimeSeconds)
	accountsFlagged.Add(float64(len(report.SuspiciousAccounts)))
	for _, ring := range report.FraudRings {
		ringsDetected.WithLabelValues(string(ring.PatternType)).Inc()
	}
}

// RecordFailure counts a run that did not produce a report.
func RecordFailure() {
	analysesTotal.WithLabelValues("failure").Inc()
}

// RecordIngestError counts a rejected batch; reason is a short stable tag.
func RecordIngestError(reason string) {
	ingestErrors.WithLabelValues(reason).Inc()
}

// RecordCacheLookup counts a report cache hit or miss.
func RecordCacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

// RecordAlert counts a raised ring alert.
func RecordAlert(severity string) {
	alertsRaised.WithLabelValues(severity).Inc()
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
