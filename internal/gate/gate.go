// Package gate combines staleness and tolerance results into a terminal
// publish decision. It is the single point through which every downstream
// consumer must pass before treating a vintage as authoritative.
package gate

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/fueltracker/internal/model"
)

// DefaultTTLBusinessDays is how long a vintage stays fresh after its last
// period's month-end, weekends excluded.
const DefaultTTLBusinessDays = 3

// Gate holds the publish-gating policy.
type Gate struct {
	TTLBusinessDays int
}

// New returns a Gate with the given TTL; zero or negative falls back to the
// default.
func New(ttlBusinessDays int) *Gate {
	if ttlBusinessDays <= 0 {
		ttlBusinessDays = DefaultTTLBusinessDays
	}
	return &Gate{TTLBusinessDays: ttlBusinessDays}
}

// Decide computes the publish decision for one batch. It never fails: the
// outcome is an explicit value carrying every contributing reason.
//
//   - BLOCKED when stalenessDays exceeds the TTL and no override is set.
//   - PROVISIONAL when any tolerance result is FAIL or UNDEFINED and no
//     override is set.
//   - PUBLISHED otherwise.
func (g *Gate) Decide(batchID string, stalenessDays int, results []model.ToleranceResult, override bool) model.PublishDecision {
	d := model.PublishDecision{BatchID: batchID, Status: model.StatusPublished}

	if stalenessDays > g.TTLBusinessDays {
		d.Reasons = append(d.Reasons, fmt.Sprintf(
			"staleness: %d business days past month-end (TTL %d)", stalenessDays, g.TTLBusinessDays))
		if !override {
			d.Status = model.StatusBlocked
		}
	}

	for _, r := range results {
		switch r.Status {
		case model.ToleranceFail:
			d.Reasons = append(d.Reasons, fmt.Sprintf(
				"tolerance: %s deviates %.2f%% from published %.4g",
				r.Period.Format("2006-01"), r.PercentDelta, r.Reference))
		case model.ToleranceUndefined:
			d.Reasons = append(d.Reasons, fmt.Sprintf(
				"tolerance: %s UNDEFINED (published reference is zero)",
				r.Period.Format("2006-01")))
		}
	}

	if d.Status != model.StatusBlocked && !override {
		for _, r := range results {
			if !r.Pass() {
				d.Status = model.StatusProvisional
				break
			}
		}
	}

	if override && len(d.Reasons) > 0 {
		d.Reasons = append(d.Reasons, "override: operator override set, publishing despite reasons above")
	}

	zap.L().Info("publish decision",
		zap.String("batch_id", batchID),
		zap.String("status", string(d.Status)),
		zap.Int("staleness_days", stalenessDays),
		zap.Strings("reasons", d.Reasons),
	)

	return d
}

// BusinessDaysSince counts the business days (Mon-Fri) elapsed from the
// month-end of the panel's last period until now. A period still inside its
// publication month counts as zero.
func BusinessDaysSince(lastPeriod, now time.Time) int {
	start := model.MonthEnd(lastPeriod)
	end := now.UTC().Truncate(24 * time.Hour)
	if !end.After(start) {
		return 0
	}
	days := 0
	for d := start.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}
