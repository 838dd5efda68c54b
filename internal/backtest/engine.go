// Package backtest runs the rolling-origin evaluation of candidate models
// against frozen historical windows.
package backtest

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/fueltracker/internal/forecast"
	"github.com/sells-group/fueltracker/internal/model"
	"github.com/sells-group/fueltracker/internal/panel"
)

// Config holds the rolling-origin parameters.
type Config struct {
	LookbackMonths int
	HorizonMonths  int
	Workers        int
}

// Result is the complete outcome of one backtest run.
type Result struct {
	Origins    []time.Time
	Runs       []model.BacktestRun    // successful origin x model evaluations
	Aggregates []model.ModelAggregate // one per candidate, registry order
}

// Aggregate returns the aggregate for modelID, if present.
func (r *Result) Aggregate(modelID string) (model.ModelAggregate, bool) {
	for _, a := range r.Aggregates {
		if a.ModelID == modelID {
			return a, true
		}
	}
	return model.ModelAggregate{}, false
}

// Run evaluates every candidate model at every rolling origin of the frozen
// view. Origins step back one month at a time from T-H to T-L, where T is
// the view's last period, and additionally require a full lookback window of
// history, so a 72-month series with L=60/H=12 yields exactly one origin and
// an 84-month series yields 13.
//
// A model unable to fit at an origin is excluded from that origin only and
// never aborts other models or origins. Per-origin, per-model fits execute
// on a bounded worker pool; aggregation collects everything first and
// reduces by median, so completion order never affects the result.
// Cancellation between origin iterations discards all partial results.
func Run(ctx context.Context, view *panel.View, models []forecast.Model, cfg Config) (*Result, error) {
	if cfg.LookbackMonths <= 0 || cfg.HorizonMonths <= 0 {
		return nil, eris.New("backtest: lookback and horizon must be positive")
	}
	if cfg.HorizonMonths > cfg.LookbackMonths {
		return nil, eris.New("backtest: horizon cannot exceed lookback")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	origins := originsFor(view, cfg.LookbackMonths, cfg.HorizonMonths)
	if len(origins) == 0 {
		return nil, eris.Errorf("backtest: no viable origins in a %d-month panel (lookback %d, horizon %d)",
			view.Len(), cfg.LookbackMonths, cfg.HorizonMonths)
	}

	zap.L().Info("backtest starting",
		zap.Int("panel_months", view.Len()),
		zap.Int("origins", len(origins)),
		zap.Int("models", len(models)),
		zap.Int("workers", workers),
	)

	values := view.Values()
	type slot struct {
		run *model.BacktestRun
		err error
	}
	// slots[originIdx][modelIdx]: fixed layout keeps the reduction
	// independent of completion order.
	slots := make([][]slot, len(origins))
	for i := range slots {
		slots[i] = make([]slot, len(models))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for oi, origin := range origins {
		// Cooperative checkpoint between origin iterations.
		if gctx.Err() != nil {
			break
		}
		window := view.Window(origin, cfg.LookbackMonths)
		originIdx := indexOf(view, origin)
		actual := values[originIdx+1 : originIdx+1+cfg.HorizonMonths]

		for mi, m := range models {
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				run, err := evaluate(m, window, actual, origins[oi], cfg.HorizonMonths)
				slots[oi][mi] = slot{run: run, err: err}
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "backtest: cancelled")
	}
	if err := ctx.Err(); err != nil {
		// Publication is all-or-nothing: partial results are discarded.
		return nil, eris.Wrap(err, "backtest: cancelled")
	}

	res := &Result{Origins: origins}
	for mi, m := range models {
		var runs []model.BacktestRun
		failures := 0
		for oi := range origins {
			s := slots[oi][mi]
			switch {
			case s.err != nil:
				failures++
				logFitFailure(m.Name(), origins[oi], s.err)
			case s.run != nil:
				runs = append(runs, *s.run)
			}
		}
		res.Runs = append(res.Runs, runs...)

		agg := model.ModelAggregate{
			ModelID:  m.Name(),
			Origins:  len(runs),
			Failures: failures,
			Median:   aggregate(runs),
			Excluded: failures > len(origins)/2,
		}
		if agg.Excluded {
			zap.L().Warn("model excluded from selection: failed a majority of origins",
				zap.String("model_id", m.Name()),
				zap.Int("failures", failures),
				zap.Int("origins", len(origins)),
			)
		}
		res.Aggregates = append(res.Aggregates, agg)
	}

	return res, nil
}

// originsFor returns viable origins in chronological order: month-ends from
// T-L to T-H that carry a full lookback of history and a full horizon of
// realized actuals.
func originsFor(view *panel.View, lookback, horizon int) []time.Time {
	n := view.Len()
	var origins []time.Time
	for k := lookback; k >= horizon; k-- {
		idx := n - 1 - k
		if idx < lookback-1 {
			continue
		}
		origins = append(origins, view.Rows[idx].Period)
	}
	return origins
}

func indexOf(view *panel.View, period time.Time) int {
	for i, r := range view.Rows {
		if r.Period.Equal(period) {
			return i
		}
	}
	return -1
}

func evaluate(m forecast.Model, window *panel.View, actual []float64, origin time.Time, horizon int) (*model.BacktestRun, error) {
	if window == nil {
		return nil, &model.InsufficientHistoryError{ModelID: m.Name(), Need: 1, Have: 0}
	}
	fitted, err := m.Fit(forecast.Window{Values: window.Values(), Exog: window.Exog()})
	if err != nil {
		return nil, err
	}
	fc := fitted.Forecast(horizon)
	return &model.BacktestRun{
		Origin:   origin,
		ModelID:  m.Name(),
		Horizon:  horizon,
		Forecast: fc,
		Actual:   actual,
		Metrics:  computeMetrics(actual, fc),
	}, nil
}

func logFitFailure(modelID string, origin time.Time, err error) {
	var ih *model.InsufficientHistoryError
	var mf *model.ModelFitError
	switch {
	case errors.As(err, &ih):
		zap.L().Info("model skipped at origin: insufficient history",
			zap.String("model_id", modelID),
			zap.Time("origin", origin),
			zap.Int("need", ih.Need),
			zap.Int("have", ih.Have),
		)
	case errors.As(err, &mf):
		zap.L().Warn("model fit failed at origin",
			zap.String("model_id", modelID),
			zap.Time("origin", origin),
			zap.Error(err),
		)
	default:
		zap.L().Warn("model evaluation failed at origin",
			zap.String("model_id", modelID),
			zap.Time("origin", origin),
			zap.Error(err),
		)
	}
}
