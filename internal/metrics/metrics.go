package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeProcessed labels records that entered the window buffer.
	OutcomeProcessed = "processed"
	// OutcomeMalformed labels records dropped during parsing.
	OutcomeMalformed = "malformed"
)

var (
	recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cosecha",
			Name:      "records_total",
			Help:      "Total raw sensor records handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	windowsClosedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cosecha",
			Name:      "windows_closed_total",
			Help:      "Total aggregation windows closed and flushed.",
		},
	)

	flushDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cosecha",
			Name:      "window_flush_seconds",
			Help:      "Window aggregation and feature assembly latency in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cosecha",
			Name:      "predictions_total",
			Help:      "Total harvest estimates published, partitioned by status bucket.",
		},
		[]string{"status"},
	)

	predictionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "cosecha",
			Name:      "prediction_seconds",
			Help:      "Estimator latency in seconds, including lag reconstruction.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	anomaliesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cosecha",
			Name:      "anomalies_total",
			Help:      "Total observations flagged by the isolation forest detector.",
		},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cosecha",
			Name:      "alerts_total",
			Help:      "Total emergency alerts published, partitioned by severity.",
		},
		[]string{"severity"},
	)

	recommendationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cosecha",
			Name:      "recommendations_total",
			Help:      "Total strategic advisories published.",
		},
	)

	publishErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cosecha",
			Name:      "publish_errors_total",
			Help:      "Total failed broker publishes, partitioned by topic.",
		},
		[]string{"topic"},
	)
)

// Register attaches the pipeline collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		recordsTotal,
		windowsClosedTotal,
		flushDurationSeconds,
		predictionsTotal,
		predictionDurationSeconds,
		anomaliesTotal,
		alertsTotal,
		recommendationsTotal,
		publishErrorsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRecord counts one raw record by parse outcome.
func ObserveRecord(outcome string) {
	if outcome != OutcomeMalformed {
		outcome = OutcomeProcessed
	}
	recordsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFlush records a window-close cycle.
func ObserveFlush(duration time.Duration, windows int) {
	if duration < 0 {
		duration = 0
	}
	flushDurationSeconds.Observe(duration.Seconds())
	windowsClosedTotal.Add(float64(windows))
}

// ObservePrediction records an estimate duration and its status bucket.
func ObservePrediction(duration time.Duration, status string) {
	predictionsTotal.WithLabelValues(status).Inc()
	if duration < 0 {
		duration = 0
	}
	predictionDurationSeconds.Observe(duration.Seconds())
}

// ObserveAnomaly counts one flagged observation.
func ObserveAnomaly() {
	anomaliesTotal.Inc()
}

// ObserveAlert counts one emergency alert by severity.
func ObserveAlert(severity string) {
	alertsTotal.WithLabelValues(severity).Inc()
}

// ObserveRecommendation counts one published advisory.
func ObserveRecommendation() {
	recommendationsTotal.Inc()
}

// ObservePublishError counts a failed broker publish.
func ObservePublishError(topic string) {
	publishErrorsTotal.WithLabelValues(topic).Inc()
}
