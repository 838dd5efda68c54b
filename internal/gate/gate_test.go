package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/fueltracker/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func failResult(period time.Time, delta float64) model.ToleranceResult {
	return model.ToleranceResult{Period: period, PercentDelta: delta, Status: model.ToleranceFail}
}

func passResult(period time.Time) model.ToleranceResult {
	return model.ToleranceResult{Period: period, Status: model.TolerancePass}
}

func TestDecide_PublishedWhenFreshAndWithinBand(t *testing.T) {
	t.Parallel()
	g := New(3)

	d := g.Decide("b1", 2, []model.ToleranceResult{passResult(time.Now())}, false)
	assert.Equal(t, model.StatusPublished, d.Status)
	assert.Empty(t, d.Reasons)
	assert.True(t, d.Authoritative())
}

func TestDecide_ProvisionalOnToleranceFailure(t *testing.T) {
	t.Parallel()
	g := New(3)
	jan := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)

	d := g.Decide("b1", 1, []model.ToleranceResult{passResult(jan), failResult(jan, 3.0)}, false)
	assert.Equal(t, model.StatusProvisional, d.Status)
	require.Len(t, d.Reasons, 1)
	assert.Contains(t, d.Reasons[0], "2024-01")
	assert.False(t, d.Authoritative())
}

func TestDecide_ProvisionalOnUndefined(t *testing.T) {
	t.Parallel()
	g := New(3)
	jan := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)

	d := g.Decide("b1", 0, []model.ToleranceResult{
		{Period: jan, Status: model.ToleranceUndefined},
	}, false)
	assert.Equal(t, model.StatusProvisional, d.Status)
	require.Len(t, d.Reasons, 1)
	assert.Contains(t, d.Reasons[0], "UNDEFINED")
}

func TestDecide_BlockedBeatsProvisional(t *testing.T) {
	t.Parallel()
	g := New(3)
	jan := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)

	// Staleness 4 business days exceeds a TTL of 3. The tolerance failure is
	// still enumerated so the operator sees every contributing cause.
	d := g.Decide("b1", 4, []model.ToleranceResult{failResult(jan, 5.0)}, false)
	assert.Equal(t, model.StatusBlocked, d.Status)
	require.Len(t, d.Reasons, 2)
	assert.Contains(t, d.Reasons[0], "staleness")
	assert.Contains(t, d.Reasons[1], "tolerance")
}

func TestDecide_OverridePublishesWithReasons(t *testing.T) {
	t.Parallel()
	g := New(3)
	jan := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)

	d := g.Decide("b1", 10, []model.ToleranceResult{failResult(jan, 5.0)}, true)
	assert.Equal(t, model.StatusPublished, d.Status)
	// Staleness, tolerance, and the override note itself.
	assert.Len(t, d.Reasons, 3)
}

func TestDecide_StalenessAtTTLStillFresh(t *testing.T) {
	t.Parallel()
	g := New(3)

	d := g.Decide("b1", 3, nil, false)
	assert.Equal(t, model.StatusPublished, d.Status)
}

func TestBusinessDaysSince(t *testing.T) {
	t.Parallel()

	// 2024-05-31 is a Friday.
	may := time.Date(2024, time.May, 31, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"same day", may, 0},
		{"saturday after", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC), 0},
		{"sunday after", time.Date(2024, time.June, 2, 0, 0, 0, 0, time.UTC), 0},
		{"monday after", time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC), 1},
		{"thursday after", time.Date(2024, time.June, 6, 0, 0, 0, 0, time.UTC), 4},
		{"a week after", time.Date(2024, time.June, 7, 0, 0, 0, 0, time.UTC), 5},
		{"before the period", time.Date(2024, time.May, 15, 0, 0, 0, 0, time.UTC), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BusinessDaysSince(may, tt.now))
		})
	}
}

func TestNew_DefaultsTTL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultTTLBusinessDays, New(0).TTLBusinessDays)
	assert.Equal(t, 5, New(5).TTLBusinessDays)
}
