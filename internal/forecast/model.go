// Package forecast defines the forecasting model abstraction, the model
// adapters, and the horizon forecast engine.
//
// Every adapter is deterministic: identical training windows produce
// byte-identical forecasts. Failures are isolated per call so one model's
// state can never corrupt another's.
package forecast

import "github.com/sells-group/fueltracker/internal/model"

// Window is one frozen training window: the value series in period order
// plus any exogenous series complete across the window.
type Window struct {
	Values []float64
	Exog   map[string][]float64
}

// Fitted is a model fitted on one window.
type Fitted interface {
	// Forecast returns point forecasts for the next horizon months.
	Forecast(horizon int) []float64
}

// Model fits on a training window and names itself.
type Model interface {
	Name() string
	Fit(w Window) (Fitted, error)
}

// Registry returns the candidate models in fixed structural-simplicity
// order: baseline first, exogenous regression last.
func Registry() []Model {
	return []Model{
		NewSeasonalNaive(),
		NewSTLETS(),
		NewSARIMAX(),
	}
}

// ByName returns the registered model with the given ID.
func ByName(id string) (Model, bool) {
	for _, m := range Registry() {
		if m.Name() == id {
			return m, true
		}
	}
	return nil, false
}

func insufficient(id string, need, have int) error {
	return &model.InsufficientHistoryError{ModelID: id, Need: need, Have: have}
}
