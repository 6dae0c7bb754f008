package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.ObserveIngest("telegram", "stored")
	m.ObserveAttempt("ai_suggest", errors.New("x"), "retry")
	m.ObserveSuggestion("ok")
	m.ObserveDispatch(nil)
	m.ObserveReply("telegram", nil)
	m.ObserveForward("ok")
	m.ObserveTask("sql_maintenance", nil)
}

func TestMetricsRegisterAndCount(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)

	m.ObserveIngest("telegram", "stored")
	m.ObserveIngest("telegram", "stored")
	m.ObserveDispatch(errors.New("redis down"))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	counts := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			counts[mf.GetName()] += metric.GetCounter().GetValue()
		}
	}
	if counts["nexa_ingested_updates_total"] != 2 {
		t.Errorf("ingested = %v, want 2", counts["nexa_ingested_updates_total"])
	}
	if counts["nexa_dispatches_total"] != 1 {
		t.Errorf("dispatches = %v, want 1", counts["nexa_dispatches_total"])
	}
}
