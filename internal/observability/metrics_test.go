package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetricsAttemptsTotalIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	oldReg := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = reg
	defer func() { prometheus.DefaultRegisterer = oldReg }()

	m := NewMetrics()
	m.AttemptsTotal.WithLabelValues("anthropic", "claude-3-opus", "success").Inc()
	m.AttemptsTotal.WithLabelValues("anthropic", "claude-3-opus", "success").Inc()

	got := counterValue(t, m.AttemptsTotal.WithLabelValues("anthropic", "claude-3-opus", "success"))
	if got != 2 {
		t.Errorf("expected counter value 2, got %v", got)
	}
}

func TestMetricsProviderHealthScoreIsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	oldReg := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = reg
	defer func() { prometheus.DefaultRegisterer = oldReg }()

	m := NewMetrics()
	m.ProviderHealthScore.WithLabelValues("openai", "gpt-4o").Set(0.87)

	var dtoMetric dto.Metric
	if err := m.ProviderHealthScore.WithLabelValues("openai", "gpt-4o").Write(&dtoMetric); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if got := dtoMetric.GetGauge().GetValue(); got != 0.87 {
		t.Errorf("expected gauge value 0.87, got %v", got)
	}
}
