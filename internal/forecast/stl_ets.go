package forecast

import "github.com/sells-group/fueltracker/internal/model"

// STLETS combines a centered seasonal decomposition with a linear trend and
// a recursive level update, an STL-plus-exponential-smoothing style model.
type STLETS struct {
	Period      int
	TrendWindow int
}

// NewSTLETS returns the seasonal-decomposition model with monthly season and
// a 21-observation trend window.
func NewSTLETS() *STLETS {
	return &STLETS{Period: model.SeasonPeriod, TrendWindow: 21}
}

func (m *STLETS) Name() string { return model.ModelSTLETS }

// Fit requires two full seasonal cycles.
func (m *STLETS) Fit(w Window) (Fitted, error) {
	if len(w.Values) < m.Period*2 {
		return nil, insufficient(m.Name(), m.Period*2, len(w.Values))
	}
	return &fittedSTLETS{
		period:   m.Period,
		seasonal: seasonalPattern(w.Values, m.Period),
		trend:    slope(tail(w.Values, m.TrendWindow)),
		level:    w.Values[len(w.Values)-1],
	}, nil
}

type fittedSTLETS struct {
	period   int
	seasonal []float64
	trend    float64
	level    float64
}

func (f *fittedSTLETS) Forecast(horizon int) []float64 {
	out := make([]float64, horizon)
	level := f.level
	for i := 0; i < horizon; i++ {
		v := level + f.seasonal[i%f.period] + f.trend*float64(i+1)
		if v < 0 {
			v = 0 // fuel consumption cannot be negative
		}
		out[i] = v
		level = v
	}
	return out
}
