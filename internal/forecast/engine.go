package forecast

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fueltracker/internal/model"
	"github.com/sells-group/fueltracker/internal/panel"
)

// DefaultZScore is the prediction-interval half-width multiplier. 1.96
// standard errors bound a 95% band; the constant is fixed because it is part
// of the reproducibility contract.
const DefaultZScore = 1.96

// Engine produces the horizon forecast from the selected model.
type Engine struct {
	Store  *panel.Store
	ZScore float64
}

// NewEngine returns an Engine over the store; zScore <= 0 falls back to the
// default.
func NewEngine(store *panel.Store, zScore float64) *Engine {
	if zScore <= 0 {
		zScore = DefaultZScore
	}
	return &Engine{Store: store, ZScore: zScore}
}

// Generate refits the selected model on the panel frozen as of cutoff and
// emits one row per horizon step with point forecast and prediction
// interval point +/- z*MAE, where MAE is the model's backtest aggregate.
// It never substitutes a different model: an unknown modelID or a failed
// fit is returned to the caller as-is.
//
// Given identical frozen inputs and configuration, output is byte-identical
// across runs.
func (e *Engine) Generate(batchID, modelID string, horizon int, cutoff time.Time, backtestMAE float64) ([]model.ForecastRow, error) {
	m, ok := ByName(modelID)
	if !ok {
		return nil, eris.Errorf("forecast: unknown model %q", modelID)
	}

	view := e.Store.Snapshot(cutoff)
	if view.Len() == 0 {
		return nil, &model.InsufficientHistoryError{ModelID: modelID, Need: 1, Have: 0}
	}

	fitted, err := m.Fit(Window{Values: view.Values(), Exog: view.Exog()})
	if err != nil {
		return nil, err
	}

	points := fitted.Forecast(horizon)
	half := e.ZScore * backtestMAE
	last := view.LastPeriod()

	rows := make([]model.ForecastRow, horizon)
	for i, p := range points {
		lower := p - half
		if lower < 0 {
			lower = 0 // series is non-negative
		}
		rows[i] = model.ForecastRow{
			Period:  model.AddMonths(last, i+1),
			Point:   p,
			PILower: lower,
			PIUpper: p + half,
			ModelID: modelID,
			BatchID: batchID,
		}
	}

	zap.L().Info("forecast generated",
		zap.String("batch_id", batchID),
		zap.String("model_id", modelID),
		zap.Int("horizon", horizon),
		zap.Time("cutoff", cutoff),
		zap.Float64("pi_half_width", half),
	)

	return rows, nil
}
