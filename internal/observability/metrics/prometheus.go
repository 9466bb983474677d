// Package metrics provides Prometheus metrics for the intake service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drfirst/go-intake/internal/domain/intake"
	"github.com/drfirst/go-intake/internal/domain/money"
)

// Metrics holds all application metrics
type Metrics struct {
	SessionsStarted       prometheus.Counter
	SessionsCompleted     *prometheus.CounterVec
	SessionsDisqualified  *prometheus.CounterVec
	SessionsAbandoned     *prometheus.CounterVec
	StepTransitions       *prometheus.CounterVec
	SubmissionDuration    *prometheus.HistogramVec
	OrderTotal            prometheus.Histogram
	ActiveSessions        prometheus.Gauge
	KafkaMessagesProduced *prometheus.CounterVec
	KafkaMessagesConsumed *prometheus.CounterVec
	OutboxPending         prometheus.Gauge
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates all metrics and registers them with reg.
// A nil reg registers with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_sessions_started_total",
			Help: "Total intake sessions started",
		}),
		SessionsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_sessions_completed_total",
			Help: "Total intake sessions that submitted an order",
		}, []string{"questionnaire"}),
		SessionsDisqualified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_sessions_disqualified_total",
			Help: "Total intake sessions ended by the exclusion screening",
		}, []string{"step"}),
		SessionsAbandoned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_sessions_abandoned_total",
			Help: "Total intake sessions dropped before a terminal outcome",
		}, []string{"step"}),
		StepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_step_transitions_total",
			Help: "Step changes by source and target step",
		}, []string{"from", "to"}),
		SubmissionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_submission_duration_seconds",
			Help:    "Order submission duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 2.5, 5, 10},
		}, []string{"result"}),
		OrderTotal: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "intake_order_total_euros",
			Help:    "Grand total of submitted orders",
			Buckets: []float64{25, 50, 75, 100, 150, 250, 500, 1000},
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "intake_sessions_active",
			Help: "Currently held intake sessions",
		}),
		KafkaMessagesProduced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}, []string{"topic"}),
		KafkaMessagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}, []string{"topic"}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	reg.MustRegister(
		m.SessionsStarted,
		m.SessionsCompleted,
		m.SessionsDisqualified,
		m.SessionsAbandoned,
		m.StepTransitions,
		m.SubmissionDuration,
		m.OrderTotal,
		m.ActiveSessions,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

var _ intake.Recorder = (*Metrics)(nil)

func (m *Metrics) SessionStarted() { m.SessionsStarted.Inc() }

func (m *Metrics) SessionAbandoned(at intake.StepID) {
	m.SessionsAbandoned.WithLabelValues(string(at)).Inc()
}

func (m *Metrics) SessionsActive(n int) { m.ActiveSessions.Set(float64(n)) }

func (m *Metrics) StepChanged(from, to intake.StepID) {
	m.StepTransitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) SessionRejected(at intake.StepID) {
	m.SessionsDisqualified.WithLabelValues(string(at)).Inc()
}

func (m *Metrics) SessionCompleted(total money.Amount, skippedQuestionnaire bool) {
	label := "full"
	if skippedQuestionnaire {
		label = "skipped"
	}
	m.SessionsCompleted.WithLabelValues(label).Inc()
	m.OrderTotal.Observe(total.Float())
}

func (m *Metrics) SubmissionFinished(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SubmissionDuration.WithLabelValues(result).Observe(d.Seconds())
}

// BreakerState records a breaker transition; state uses the gauge encoding above.
func (m *Metrics) BreakerState(name string, state float64) {
	m.CircuitBreakerState.WithLabelValues(name).Set(state)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves the metrics of a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
