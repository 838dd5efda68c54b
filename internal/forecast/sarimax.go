package forecast

import (
	"sort"

	"github.com/sells-group/fueltracker/internal/model"
)

// SARIMAX layers an exogenous regression (HDD, CDD, price) on top of the
// seasonal-plus-trend structure. Exogenous coefficients are correlation
// coefficients scaled by the target/regressor standard deviation ratio.
//
// Future exogenous values are not observable inside the core, so the
// forecast proxies each regressor with its value one seasonal cycle earlier.
type SARIMAX struct {
	Period      int
	TrendWindow int
}

// NewSARIMAX returns the exogenous-regression model with monthly season and
// a 24-observation trend window.
func NewSARIMAX() *SARIMAX {
	return &SARIMAX{Period: model.SeasonPeriod, TrendWindow: 24}
}

func (m *SARIMAX) Name() string { return model.ModelSARIMAX }

// Fit requires two full seasonal cycles.
func (m *SARIMAX) Fit(w Window) (Fitted, error) {
	if len(w.Values) < m.Period*2 {
		return nil, insufficient(m.Name(), m.Period*2, len(w.Values))
	}

	f := &fittedSARIMAX{
		period:   m.Period,
		seasonal: seasonalPattern(w.Values, m.Period),
		trend:    slope(tail(w.Values, m.TrendWindow)),
		buffer:   make([]float64, m.Period),
	}
	copy(f.buffer, w.Values[len(w.Values)-m.Period:])

	if len(w.Exog) > 0 {
		// Regressors are summed in sorted column order: float addition is not
		// associative, and forecasts must be byte-identical across runs.
		f.exogNames = make([]string, 0, len(w.Exog))
		for name := range w.Exog {
			f.exogNames = append(f.exogNames, name)
		}
		sort.Strings(f.exogNames)

		f.exogCoefs = make(map[string]float64, len(w.Exog))
		f.exogCycle = make(map[string][]float64, len(w.Exog))
		for _, name := range f.exogNames {
			series := w.Exog[name]
			n := len(w.Values)
			if len(series) < n {
				n = len(series)
			}
			y := w.Values[len(w.Values)-n:]
			x := series[len(series)-n:]
			coef := 0.0
			if sd := stddev(x); sd != 0 {
				coef = correlation(y, x) * stddev(y) / sd
			}
			f.exogCoefs[name] = coef
			// The level term already embeds the average exogenous effect, so
			// the regression contributes deviations from the cycle mean only.
			cycle := make([]float64, m.Period)
			copy(cycle, tail(series, m.Period))
			cm := mean(cycle)
			for i := range cycle {
				cycle[i] -= cm
			}
			f.exogCycle[name] = cycle
		}
	}

	return f, nil
}

type fittedSARIMAX struct {
	period    int
	seasonal  []float64
	trend     float64
	buffer    []float64 // rolling last-cycle values, updated recursively
	exogNames []string  // sorted; fixes the float summation order
	exogCoefs map[string]float64
	exogCycle map[string][]float64 // last observed cycle, reused for the future
}

func (f *fittedSARIMAX) Forecast(horizon int) []float64 {
	out := make([]float64, horizon)
	buf := make([]float64, len(f.buffer))
	copy(buf, f.buffer)

	for i := 0; i < horizon; i++ {
		v := buf[len(buf)-1] + f.seasonal[i%f.period] + f.trend*float64(i+1)
		for _, name := range f.exogNames {
			cycle := f.exogCycle[name]
			v += f.exogCoefs[name] * cycle[i%f.period]
		}
		if v < 0 {
			v = 0
		}
		out[i] = v

		copy(buf, buf[1:])
		buf[len(buf)-1] = v
	}
	return out
}
