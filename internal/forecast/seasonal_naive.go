package forecast

import "github.com/sells-group/fueltracker/internal/model"

// SeasonalNaive is the baseline: it repeats the last observed seasonal
// cycle. Any candidate must beat it to be selected.
type SeasonalNaive struct {
	Period int
}

// NewSeasonalNaive returns the baseline model with the monthly season.
func NewSeasonalNaive() *SeasonalNaive {
	return &SeasonalNaive{Period: model.SeasonPeriod}
}

func (m *SeasonalNaive) Name() string { return model.ModelSeasonalNaive }

// Fit stores the last full cycle of the window.
func (m *SeasonalNaive) Fit(w Window) (Fitted, error) {
	if len(w.Values) < m.Period {
		return nil, insufficient(m.Name(), m.Period, len(w.Values))
	}
	last := make([]float64, m.Period)
	copy(last, w.Values[len(w.Values)-m.Period:])
	return &fittedSeasonalNaive{period: m.Period, last: last}, nil
}

type fittedSeasonalNaive struct {
	period int
	last   []float64
}

func (f *fittedSeasonalNaive) Forecast(horizon int) []float64 {
	out := make([]float64, horizon)
	for i := 0; i < horizon; i++ {
		out[i] = f.last[i%f.period]
	}
	return out
}
