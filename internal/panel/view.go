package panel

import (
	"time"

	"github.com/sells-group/fueltracker/internal/model"
)

// View is a frozen, reproducible snapshot of the panel as of a cutoff
// (a point-in-time archive). Backtest and forecast runs fit on Views, never
// on live store state.
type View struct {
	Cutoff time.Time
	Rows   []model.PanelRow // one per period, ordered by period
}

// Snapshot freezes the panel as of cutoff.
func (s *Store) Snapshot(cutoff time.Time) *View {
	return &View{Cutoff: cutoff.UTC(), Rows: s.AsOf(cutoff)}
}

// Len returns the number of months in the view.
func (v *View) Len() int { return len(v.Rows) }

// LastPeriod returns the latest period in the view, or the zero time for an
// empty view.
func (v *View) LastPeriod() time.Time {
	if len(v.Rows) == 0 {
		return time.Time{}
	}
	return v.Rows[len(v.Rows)-1].Period
}

// Values returns the value series in period order.
func (v *View) Values() []float64 {
	out := make([]float64, len(v.Rows))
	for i, r := range v.Rows {
		out[i] = r.Value
	}
	return out
}

// Exog returns the exogenous series present across all rows of the view,
// keyed by column name. A column missing from any row is dropped entirely so
// model fits never see ragged regressors.
func (v *View) Exog() map[string][]float64 {
	if len(v.Rows) == 0 {
		return nil
	}
	cols := map[string]func(model.PanelRow) *float64{
		"hdd":   func(r model.PanelRow) *float64 { return r.HDD },
		"cdd":   func(r model.PanelRow) *float64 { return r.CDD },
		"price": func(r model.PanelRow) *float64 { return r.Price },
	}
	out := make(map[string][]float64)
	for name, get := range cols {
		series := make([]float64, 0, len(v.Rows))
		complete := true
		for _, r := range v.Rows {
			p := get(r)
			if p == nil {
				complete = false
				break
			}
			series = append(series, *p)
		}
		if complete {
			out[name] = series
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Window returns a sub-view of the months up to and including end, at most
// length months long. It returns nil when end is not present in the view.
func (v *View) Window(end time.Time, length int) *View {
	idx := -1
	for i, r := range v.Rows {
		if r.Period.Equal(end) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	start := idx + 1 - length
	if start < 0 {
		start = 0
	}
	return &View{Cutoff: v.Cutoff, Rows: v.Rows[start : idx+1]}
}
