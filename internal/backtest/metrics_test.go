package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/fueltracker/internal/model"
)

func TestComputeMetrics(t *testing.T) {
	t.Parallel()

	actual := []float64{100, 200, 300}
	forecast := []float64{110, 190, 330}

	m := computeMetrics(actual, forecast)
	assert.InDelta(t, (10.0+10+30)/3, m.MAE, 1e-9)
	assert.InDelta(t, math.Sqrt((100.0+100+900)/3), m.RMSE, 1e-9)
	assert.InDelta(t, 100*(10.0/100+10.0/200+30.0/300)/3, m.MAPE, 1e-9)
	assert.Greater(t, m.SMAPE, 0.0)
}

func TestComputeMetrics_PerfectForecast(t *testing.T) {
	t.Parallel()

	m := computeMetrics([]float64{5, 5, 5}, []float64{5, 5, 5})
	assert.Zero(t, m.MAE)
	assert.Zero(t, m.RMSE)
	assert.Zero(t, m.SMAPE)
	assert.Zero(t, m.MAPE)
}

func TestComputeMetrics_ZeroDenominatorsSkipped(t *testing.T) {
	t.Parallel()

	// actual 0 with forecast 0 contributes to neither sMAPE nor MAPE; actual
	// 0 with nonzero forecast is skipped for MAPE only.
	m := computeMetrics([]float64{0, 0, 100}, []float64{0, 10, 100})
	assert.False(t, math.IsInf(m.MAPE, 0))
	assert.False(t, math.IsNaN(m.MAPE))
	assert.False(t, math.IsInf(m.SMAPE, 0))
	assert.Zero(t, m.MAPE, "only the zero-actual terms had errors")
}

func TestComputeMetrics_Empty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, model.MetricSet{}, computeMetrics(nil, nil))
}

func TestMedian(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []float64
		want float64
	}{
		{"odd", []float64{3, 1, 2}, 2},
		{"even", []float64{4, 1, 3, 2}, 2.5},
		{"single", []float64{7}, 7},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, median(tt.in), 1e-9)
		})
	}
}

func TestMedian_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := []float64{3, 1, 2}
	median(in)
	assert.Equal(t, []float64{3, 1, 2}, in)
}

func TestAggregate_MedianPerMetric(t *testing.T) {
	t.Parallel()

	runs := []model.BacktestRun{
		{Metrics: model.MetricSet{MAE: 1, SMAPE: 10, RMSE: 2, MAPE: 5}},
		{Metrics: model.MetricSet{MAE: 3, SMAPE: 30, RMSE: 6, MAPE: 15}},
		{Metrics: model.MetricSet{MAE: 2, SMAPE: 20, RMSE: 4, MAPE: 10}},
	}
	m := aggregate(runs)
	assert.Equal(t, 2.0, m.MAE)
	assert.Equal(t, 20.0, m.SMAPE)
	assert.Equal(t, 4.0, m.RMSE)
	assert.Equal(t, 10.0, m.MAPE)
}
