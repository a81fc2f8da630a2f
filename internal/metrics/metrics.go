package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"remitlend/internal/txflow"
)

// Metrics owns the process registry. It implements txflow.Recorder so
// the pipeline reports outcomes without importing prometheus.
type Metrics struct {
	registry            *prometheus.Registry
	submissionsTotal    *prometheus.CounterVec
	simulationsTotal    *prometheus.CounterVec
	allowanceRejections prometheus.Counter
	pollAttempts        prometheus.Counter
	activityFeedDepth   prometheus.Gauge
}

func New() *Metrics {
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remitlend_submissions_total",
		Help: "Transaction submissions by terminal status",
	}, []string{"status"})

	simulations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remitlend_simulations_total",
		Help: "Contract call simulations by result",
	}, []string{"result"})

	allowance := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "remitlend_allowance_rejections_total",
		Help: "Deposits rejected locally for insufficient allowance",
	})

	polls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "remitlend_poll_attempts_total",
		Help: "Receipt fetches performed while waiting for terminal states",
	})

	feedDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "remitlend_activity_feed_depth",
		Help: "Events currently held in the activity feed",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(submissions, simulations, allowance, polls, feedDepth)

	return &Metrics{
		registry:            r,
		submissionsTotal:    submissions,
		simulationsTotal:    simulations,
		allowanceRejections: allowance,
		pollAttempts:        polls,
		activityFeedDepth:   feedDepth,
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordSubmission(status txflow.Status) {
	m.submissionsTotal.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) RecordSimulation(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.simulationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordPollAttempts(n int) {
	if n > 0 {
		m.pollAttempts.Add(float64(n))
	}
}

func (m *Metrics) IncAllowanceRejection() {
	m.allowanceRejections.Inc()
}

func (m *Metrics) SetActivityFeedDepth(depth int) {
	m.activityFeedDepth.Set(float64(depth))
}
