package metrics

import (
	"net/http"
	"time"

	"github.com/dooshek/murmur/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for monitoring sessions. It
// implements session.Observer. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	PollsTotal   *prometheus.CounterVec
	PollDuration prometheus.Histogram
	TicksDropped prometheus.Counter

	Risk          prometheus.Gauge
	AlertsTotal   prometheus.Counter
	AlertFailures prometheus.Counter
}

var _ session.Observer = (*Metrics)(nil)

// New creates a Metrics instance with all collectors registered on a
// private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "murmur"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of listening sessions",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished sessions by outcome",
		},
		[]string{"outcome"},
	)

	sessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Listening session duration in seconds",
			Buckets:   []float64{10, 30, 60, 300, 900, 1800, 3600, 7200},
		},
	)

	pollsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_polls_total",
			Help:      "Analysis polls by result",
		},
		[]string{"result"},
	)

	pollDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_poll_duration_seconds",
			Help:      "Analysis request latency in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	ticksDropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_ticks_dropped_total",
			Help:      "Poll results discarded as out of order or after stop",
		},
	)

	risk := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "risk_score",
			Help:      "Most recent risk score",
		},
	)

	alertsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Risk alerts fired",
		},
	)

	alertFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_delivery_failures_total",
			Help:      "Risk alerts the OS failed to show",
		},
	)

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		pollsTotal,
		pollDuration,
		ticksDropped,
		risk,
		alertsTotal,
		alertFailures,
	)

	return &Metrics{
		registry:        registry,
		SessionsActive:  sessionsActive,
		SessionsTotal:   sessionsTotal,
		SessionDuration: sessionDuration,
		PollsTotal:      pollsTotal,
		PollDuration:    pollDuration,
		TicksDropped:    ticksDropped,
		Risk:            risk,
		AlertsTotal:     alertsTotal,
		AlertFailures:   alertFailures,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionStarted(string) {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.Risk.Set(0)
}

func (m *Metrics) SessionEnded(s session.Summary) {
	if m == nil {
		return
	}
	outcome := "ok"
	if s.Err != nil {
		outcome = session.Classify(s.Err).String()
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(outcome).Inc()
	m.SessionDuration.Observe(s.Duration().Seconds())
	m.Risk.Set(0)
}

func (m *Metrics) PollCompleted(kind session.FailureKind, latency time.Duration) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(kind.String()).Inc()
	m.PollDuration.Observe(latency.Seconds())
}

func (m *Metrics) TickDropped() {
	if m == nil {
		return
	}
	m.TicksDropped.Inc()
}

func (m *Metrics) RiskObserved(risk float64) {
	if m == nil {
		return
	}
	m.Risk.Set(risk)
}

func (m *Metrics) AlertFired(float64, string) {
	if m == nil {
		return
	}
	m.AlertsTotal.Inc()
}

func (m *Metrics) AlertFailed(error) {
	if m == nil {
		return
	}
	m.AlertFailures.Inc()
}
