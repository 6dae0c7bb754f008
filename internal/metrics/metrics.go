// Package metrics exposes Prometheus collectors for the ingestion pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nexa"

// Metrics groups the collectors shared by all nexa processes.
type Metrics struct {
	ingested    *prometheus.CounterVec
	attempts    *prometheus.CounterVec
	suggestions *prometheus.CounterVec
	dispatches  *prometheus.CounterVec
	replies     *prometheus.CounterVec
	forwards    *prometheus.CounterVec
	taskRuns    *prometheus.CounterVec
}

// MustNewMetrics constructs and registers the collectors with reg.
// A registration error panics, mirroring the promauto helpers.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	m := &Metrics{
		ingested:    counter("ingested_updates_total", "Inbound updates by platform and outcome.", "platform", "outcome"),
		attempts:    counter("outbound_attempts_total", "Outbound call attempts by call and result.", "call", "result"),
		suggestions: counter("suggestion_runs_total", "Suggestion calls by result.", "result"),
		dispatches:  counter("dispatches_total", "Dispatch queue pushes by result.", "result"),
		replies:     counter("replies_total", "Outbound replies by platform and result.", "platform", "result"),
		forwards:    counter("listener_forwards_total", "Listener events forwarded to the backend by result.", "result"),
		taskRuns:    counter("scheduled_task_runs_total", "Scheduled task runs by task and result.", "task", "result"),
	}

	reg.MustRegister(m.ingested, m.attempts, m.suggestions, m.dispatches, m.replies, m.forwards, m.taskRuns)
	return m
}

// ObserveIngest counts one webhook update (skipped, linked, stored, duplicate, error).
func (m *Metrics) ObserveIngest(platform, outcome string) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(platform, outcome).Inc()
}

// ObserveAttempt counts one outbound attempt; result is "ok" or the verdict.
func (m *Metrics) ObserveAttempt(call string, err error, verdict string) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = verdict
	}
	m.attempts.WithLabelValues(call, result).Inc()
}

func (m *Metrics) ObserveSuggestion(result string) {
	if m == nil {
		return
	}
	m.suggestions.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDispatch(err error) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(resultLabel(err)).Inc()
}

func (m *Metrics) ObserveReply(platform string, err error) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(platform, resultLabel(err)).Inc()
}

func (m *Metrics) ObserveForward(result string) {
	if m == nil {
		return
	}
	m.forwards.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveTask(task string, err error) {
	if m == nil {
		return
	}
	m.taskRuns.WithLabelValues(task, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
