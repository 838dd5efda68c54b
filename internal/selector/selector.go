// Package selector chooses the winning model from backtest aggregates.
// Selection is a pure function: no hidden state, called once per batch, and
// the result is persisted alongside the batch it was computed for.
package selector

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/fueltracker/internal/model"
)

// Config holds the selection policy.
type Config struct {
	// Metric is "mae" or "smape"; the aggregate median on this metric
	// drives the baseline comparison.
	Metric string
	// ImprovementPct is the minimum relative improvement over the baseline
	// for a candidate to win, in percent.
	ImprovementPct float64
}

// Select picks the winner among the aggregates. A candidate beats the
// baseline when its aggregate median on the configured metric improves by at
// least ImprovementPct relative to the baseline. Ties between qualifying
// candidates break first on lower RMSE, then on structural simplicity.
// Candidates excluded by the majority-failure rule never win.
func Select(batchID string, aggregates []model.ModelAggregate, cfg Config) (model.ModelSelection, error) {
	baseline, ok := findAggregate(aggregates, model.ModelSeasonalNaive)
	if !ok || baseline.Origins == 0 {
		return model.ModelSelection{}, eris.New("selector: baseline has no successful backtest origins")
	}
	if baseline.Excluded {
		// The exclusion rule applies to the baseline too: a comparison
		// anchored on a majority-failed baseline is meaningless.
		return model.ModelSelection{}, eris.Errorf(
			"selector: baseline failed %d of %d evaluated origins and is excluded",
			baseline.Failures, baseline.Origins+baseline.Failures)
	}
	baseScore := metricOf(baseline.Median, cfg.Metric)
	if baseScore == 0 {
		// A perfect baseline cannot be improved on by a relative margin.
		return model.ModelSelection{
			BatchID:      batchID,
			WinningModel: baseline.ModelID,
			Score:        0,
		}, nil
	}

	winner := baseline
	winnerImprovement := 0.0

	for _, agg := range aggregates {
		if agg.ModelID == baseline.ModelID || agg.Excluded || agg.Origins == 0 {
			continue
		}
		score := metricOf(agg.Median, cfg.Metric)
		improvement := (baseScore - score) / baseScore * 100
		if improvement < cfg.ImprovementPct {
			continue
		}
		if !beats(agg, improvement, winner, winnerImprovement) {
			continue
		}
		winner = agg
		winnerImprovement = improvement
	}

	return model.ModelSelection{
		BatchID:              batchID,
		WinningModel:         winner.ModelID,
		Score:                metricOf(winner.Median, cfg.Metric),
		ComparisonVsBaseline: winnerImprovement,
	}, nil
}

// beats reports whether challenger replaces the incumbent: better
// improvement wins; equal improvement breaks on lower RMSE, then on
// structural simplicity order.
func beats(challenger model.ModelAggregate, challengerImp float64, incumbent model.ModelAggregate, incumbentImp float64) bool {
	if challengerImp != incumbentImp {
		return challengerImp > incumbentImp
	}
	if challenger.Median.RMSE != incumbent.Median.RMSE {
		return challenger.Median.RMSE < incumbent.Median.RMSE
	}
	return model.SimplicityRank(challenger.ModelID) < model.SimplicityRank(incumbent.ModelID)
}

func findAggregate(aggregates []model.ModelAggregate, id string) (model.ModelAggregate, bool) {
	for _, a := range aggregates {
		if a.ModelID == id {
			return a, true
		}
	}
	return model.ModelAggregate{}, false
}

func metricOf(m model.MetricSet, metric string) float64 {
	if metric == "smape" {
		return m.SMAPE
	}
	return m.MAE
}
