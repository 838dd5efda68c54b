package backtest

import (
	"math"
	"sort"

	"github.com/sells-group/fueltracker/internal/model"
)

// computeMetrics evaluates one forecast vector against realized actuals.
// MAPE and sMAPE terms with a zero denominator are skipped rather than
// propagated as infinities.
func computeMetrics(actual, forecast []float64) model.MetricSet {
	n := len(actual)
	if len(forecast) < n {
		n = len(forecast)
	}
	if n == 0 {
		return model.MetricSet{}
	}

	var absSum, sqSum float64
	var smapeSum, mapeSum float64
	smapeN, mapeN := 0, 0

	for i := 0; i < n; i++ {
		diff := actual[i] - forecast[i]
		ad := math.Abs(diff)
		absSum += ad
		sqSum += diff * diff

		if denom := (math.Abs(actual[i]) + math.Abs(forecast[i])) / 2; denom != 0 {
			smapeSum += ad / denom
			smapeN++
		}
		if actual[i] != 0 {
			mapeSum += math.Abs(diff / actual[i])
			mapeN++
		}
	}

	m := model.MetricSet{
		MAE:  absSum / float64(n),
		RMSE: math.Sqrt(sqSum / float64(n)),
	}
	if smapeN > 0 {
		m.SMAPE = 100 * smapeSum / float64(smapeN)
	}
	if mapeN > 0 {
		m.MAPE = 100 * mapeSum / float64(mapeN)
	}
	return m
}

// median returns the median of xs; the input is not modified.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// aggregate reduces a model's per-origin metric sets to their medians.
// The reduction is order-independent: runs are collected first, sorted
// internally by median, so worker completion order never affects it.
func aggregate(runs []model.BacktestRun) model.MetricSet {
	maes := make([]float64, 0, len(runs))
	smapes := make([]float64, 0, len(runs))
	rmses := make([]float64, 0, len(runs))
	mapes := make([]float64, 0, len(runs))
	for _, r := range runs {
		maes = append(maes, r.Metrics.MAE)
		smapes = append(smapes, r.Metrics.SMAPE)
		rmses = append(rmses, r.Metrics.RMSE)
		mapes = append(mapes, r.Metrics.MAPE)
	}
	return model.MetricSet{
		MAE:   median(maes),
		SMAPE: median(smapes),
		RMSE:  median(rmses),
		MAPE:  median(mapes),
	}
}
