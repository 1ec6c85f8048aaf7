package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful report generations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed report generations.
	OutcomeError = "error"
)

var (
	reportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retro_engine",
			Name:      "reports_total",
			Help:      "Total number of retrospective reports generated, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	reportDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "retro_engine",
			Name:      "report_seconds",
			Help:      "Report generation latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	snapshotSyncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retro_engine",
			Name:      "snapshot_syncs_total",
			Help:      "Total number of snapshot sync runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	tasksInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "retro_engine",
			Name:      "tasks_in_flight",
			Help:      "Background tasks currently queued or running.",
		},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retro_engine",
			Name:      "http_requests_total",
			Help:      "HTTP requests served, partitioned by method, route and status code.",
		},
		[]string{"method", "route", "status"},
	)
)

// Register attaches retro-engine collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		reportsTotal,
		reportDurationSeconds,
		snapshotSyncsTotal,
		tasksInFlight,
		httpRequestsTotal,
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

// ObserveReport records a report generation duration and outcome label.
func ObserveReport(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	reportsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	reportDurationSeconds.Observe(duration.Seconds())
}

// ObserveSync records one snapshot sync run.
func ObserveSync(outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	snapshotSyncsTotal.WithLabelValues(label).Inc()
}

// TaskStarted bumps the in-flight task gauge.
func TaskStarted() { tasksInFlight.Inc() }

// TaskFinished decrements the in-flight task gauge.
func TaskFinished() { tasksInFlight.Dec() }

// ObserveHTTPRequest counts one served HTTP request.
func ObserveHTTPRequest(method, route string, status int) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
