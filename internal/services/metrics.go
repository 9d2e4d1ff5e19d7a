package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Agent task metrics
	TasksTotal   *prometheus.CounterVec
	TaskDuration prometheus.Histogram

	// Reset policy metrics
	ResetsTotal  *prometheus.CounterVec
	AnxietyScore prometheus.Histogram

	// Distillation metrics
	DistillationsTotal *prometheus.CounterVec

	// Ingestion metrics
	EventsIngested prometheus.Counter
}

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	return &Metrics{
		TasksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aos_agent_tasks_total",
			Help: "Total number of agent tasks by final state",
		}, []string{"state"}),

		TaskDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "aos_agent_task_duration_seconds",
			Help:    "Agent task latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}, // up to 2 minutes for LLM-backed tasks
		}),

		ResetsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aos_resets_total",
			Help: "Total number of reset decisions by trigger",
		}, []string{"trigger"}), // trigger: "token_overflow" or "panic"

		AnxietyScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "aos_anxiety_score",
			Help:    "Distribution of anxiety scores at evaluation time",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}),

		DistillationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "aos_distillations_total",
			Help: "Total number of distillation attempts by outcome",
		}, []string{"outcome"}), // outcome: "created", "existing", "not_found", "error"

		EventsIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "aos_log_events_ingested_total",
			Help: "Total number of log events ingested",
		}),
	}
}

// ObserveTask records one finished agent task.
func (m *Metrics) ObserveTask(state string, seconds float64) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(state).Inc()
	m.TaskDuration.Observe(seconds)
}

// ObserveDecision records one reset-policy evaluation.
func (m *Metrics) ObserveDecision(decision ResetDecision) {
	if m == nil {
		return
	}
	m.AnxietyScore.Observe(decision.Anxiety)
	if !decision.ShouldReset {
		return
	}
	if decision.Tokens > int(0.9*float64(decision.MaxTokens)) {
		m.ResetsTotal.WithLabelValues("token_overflow").Inc()
	} else {
		m.ResetsTotal.WithLabelValues("panic").Inc()
	}
}

// ObserveDistillation records one distillation attempt outcome.
func (m *Metrics) ObserveDistillation(outcome string) {
	if m == nil {
		return
	}
	m.DistillationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveIngest records a batch of ingested events.
func (m *Metrics) ObserveIngest(count int) {
	if m == nil {
		return
	}
	m.EventsIngested.Add(float64(count))
}
