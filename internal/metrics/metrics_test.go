package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestGetRegistersOnce(t *testing.T) {
	reg := ResetForTesting()

	m := Get()
	assert.Same(t, m, Get())

	m.FetchTotal.WithLabelValues("accuweather", "stored").Inc()
	m.FetchTotal.WithLabelValues("accuweather", "stored").Inc()
	m.EvaluationSlots.WithLabelValues("appended").Add(3)

	assert.Equal(t, 2.0, counterValue(t, m.FetchTotal.WithLabelValues("accuweather", "stored")))
	assert.Equal(t, 3.0, counterValue(t, m.EvaluationSlots.WithLabelValues("appended")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "forecast_fetch_total")
	assert.Contains(t, names, "evaluation_slots_total")
}

func TestResetForTestingIsolates(t *testing.T) {
	ResetForTesting()
	Get().EvaluationRuns.Inc()

	ResetForTesting()
	assert.Zero(t, counterValue(t, Get().EvaluationRuns))
}
