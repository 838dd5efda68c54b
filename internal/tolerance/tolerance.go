// Package tolerance compares a new vintage against the last published
// vintage within a percentage band.
package tolerance

import (
	"math"

	"github.com/sells-group/fueltracker/internal/model"
)

// DefaultBandPct is the default permitted percent deviation.
const DefaultBandPct = 2.0

// Compare evaluates every period present in both the new panel and the
// published snapshot. percent_delta = |new - ref| / ref * 100. The band
// boundary is inclusive: delta <= bandPct passes. A zero reference is
// flagged UNDEFINED rather than divided by.
//
// The snapshot must always be the last published vintage, never a
// provisional one; enforcing that is the caller's contract.
func Compare(newPanel, published []model.PanelRow, bandPct float64) []model.ToleranceResult {
	ref := make(map[int64]float64, len(published))
	for _, r := range published {
		ref[r.Period.Unix()] = r.Value
	}

	var results []model.ToleranceResult
	for _, r := range newPanel {
		refVal, ok := ref[r.Period.Unix()]
		if !ok {
			continue
		}
		res := model.ToleranceResult{
			Period:    r.Period,
			Actual:    r.Value,
			Reference: refVal,
		}
		if refVal == 0 {
			res.Status = model.ToleranceUndefined
		} else {
			res.PercentDelta = math.Abs(r.Value-refVal) / refVal * 100
			if res.PercentDelta <= bandPct {
				res.Status = model.TolerancePass
			} else {
				res.Status = model.ToleranceFail
			}
		}
		results = append(results, res)
	}
	return results
}
