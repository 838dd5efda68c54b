package model

import "time"

// Model identifiers in fixed structural-simplicity order: the baseline is
// simplest, the exogenous regression most complex. Tie-breaks prefer the
// earlier entry.
const (
	ModelSeasonalNaive = "seasonal_naive"
	ModelSTLETS        = "stl_ets"
	ModelSARIMAX       = "sarimax"
)

// SimplicityOrder lists model IDs from structurally simplest to most complex.
var SimplicityOrder = []string{ModelSeasonalNaive, ModelSTLETS, ModelSARIMAX}

// SimplicityRank returns the position of modelID in SimplicityOrder, or a
// rank past the end for unknown models.
func SimplicityRank(modelID string) int {
	for i, id := range SimplicityOrder {
		if id == modelID {
			return i
		}
	}
	return len(SimplicityOrder)
}

// MetricSet holds the per-step error metrics for one forecast evaluation.
type MetricSet struct {
	MAE   float64 `json:"mae"`
	SMAPE float64 `json:"smape"`
	RMSE  float64 `json:"rmse"`
	MAPE  float64 `json:"mape"`
}

// BacktestRun is the evaluation of one model at one rolling origin.
type BacktestRun struct {
	Origin   time.Time `json:"origin"`
	ModelID  string    `json:"model_id"`
	Horizon  int       `json:"horizon"`
	Forecast []float64 `json:"forecast"`
	Actual   []float64 `json:"actual"`
	Metrics  MetricSet `json:"metrics"`
}

// ModelAggregate is the median of a model's per-origin metrics.
type ModelAggregate struct {
	ModelID  string    `json:"model_id"`
	Origins  int       `json:"origins"`
	Failures int       `json:"failures"`
	Median   MetricSet `json:"median"`
	Excluded bool      `json:"excluded"` // failed a majority of origins
}

// ModelSelection is the deterministic winner choice for one batch.
type ModelSelection struct {
	BatchID              string  `json:"batch_id"`
	WinningModel         string  `json:"winning_model"`
	Score                float64 `json:"score"`
	ComparisonVsBaseline float64 `json:"comparison_vs_baseline"` // percent improvement
}

// StabilityRecord is one entry in the ordered revision log of winners.
type StabilityRecord struct {
	Revision     int    `json:"revision"`
	BatchID      string `json:"batch_id"`
	WinningModel string `json:"winning_model"`
	FlipCount    int    `json:"flip_count"`
	Alert        bool   `json:"alert"`
}

// ForecastRow is one horizon step of the published forecast.
type ForecastRow struct {
	Period  time.Time `json:"period"`
	Point   float64   `json:"point"`
	PILower float64   `json:"pi_lower"`
	PIUpper float64   `json:"pi_upper"`
	ModelID string    `json:"model_id"`
	BatchID string    `json:"batch_id"`
}
