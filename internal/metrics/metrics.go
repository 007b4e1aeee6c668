// Package metrics registers the Prometheus collectors of the ingestion
// pipeline.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LinesDecodedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bgeigie_lines_decoded_total",
		Help: "Log lines decoded into measurements",
	})
	LinesSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bgeigie_lines_skipped_total",
		Help: "Log lines skipped during decoding, by reason",
	}, []string{"reason"})
	MeasurementsAcceptedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bgeigie_measurements_accepted_total",
		Help: "Decoded measurements that passed the plausibility filter",
	})
	JobsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bgeigie_jobs_processed_total",
		Help: "Ingestion jobs run to a terminal state, by kind and outcome",
	}, []string{"kind", "outcome"})
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bgeigie_queue_depth",
		Help: "Jobs waiting in the ingestion queue",
	})

	registerOnce sync.Once
)

// Register registers all collectors with the default registry. Safe to
// call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			LinesDecodedTotal,
			LinesSkippedTotal,
			MeasurementsAcceptedTotal,
			JobsProcessedTotal,
			QueueDepth,
		)
	})
}

// Handler serves the default registry, mounted at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
