package stability

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/fueltracker/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func record(t *Tracker, winners ...string) model.StabilityRecord {
	var last model.StabilityRecord
	for i, w := range winners {
		last = t.Record(fmt.Sprintf("b%d", i), w)
	}
	return last
}

func TestRecord_CountsAdjacentFlips(t *testing.T) {
	t.Parallel()
	tr := New(5, 3)

	rec := record(tr,
		model.ModelSeasonalNaive,
		model.ModelSTLETS,
		model.ModelSTLETS,
		model.ModelSARIMAX,
		model.ModelSTLETS,
	)
	assert.Equal(t, 3, rec.FlipCount)
	assert.True(t, rec.Alert)
}

func TestRecord_StableWinnerNeverAlerts(t *testing.T) {
	t.Parallel()
	tr := New(5, 3)

	rec := record(tr,
		model.ModelSTLETS, model.ModelSTLETS, model.ModelSTLETS,
		model.ModelSTLETS, model.ModelSTLETS, model.ModelSTLETS,
	)
	assert.Zero(t, rec.FlipCount)
	assert.False(t, rec.Alert)
}

func TestRecord_WindowTrimsOldFlips(t *testing.T) {
	t.Parallel()
	tr := New(3, 3)

	// Early churn followed by a stable run: only the trailing window counts.
	rec := record(tr,
		model.ModelSeasonalNaive,
		model.ModelSTLETS,
		model.ModelSARIMAX,
		model.ModelSTLETS,
		model.ModelSTLETS,
		model.ModelSTLETS,
	)
	assert.Zero(t, rec.FlipCount)
	assert.False(t, rec.Alert)
}

func TestRecord_BelowThresholdNoAlert(t *testing.T) {
	t.Parallel()
	tr := New(5, 3)

	rec := record(tr,
		model.ModelSeasonalNaive,
		model.ModelSTLETS,
		model.ModelSTLETS,
		model.ModelSTLETS,
		model.ModelSeasonalNaive,
	)
	assert.Equal(t, 2, rec.FlipCount)
	assert.False(t, rec.Alert)
}

func TestRecord_AssignsSequentialRevisions(t *testing.T) {
	t.Parallel()
	tr := New(5, 3)

	r0 := tr.Record("b0", model.ModelSTLETS)
	r1 := tr.Record("b1", model.ModelSTLETS)
	assert.Equal(t, 0, r0.Revision)
	assert.Equal(t, 1, r1.Revision)
}

func TestLoad_SeedsFromPersistedLog(t *testing.T) {
	t.Parallel()
	tr := New(5, 3)
	record(tr,
		model.ModelSeasonalNaive,
		model.ModelSTLETS,
		model.ModelSTLETS,
		model.ModelSARIMAX,
	)

	replayed := New(5, 3)
	replayed.Load(tr.Records())
	require.Len(t, replayed.Records(), 4)

	// The next recording continues the revision sequence and sees the
	// replayed history in its window.
	rec := replayed.Record("b4", model.ModelSTLETS)
	assert.Equal(t, 4, rec.Revision)
	assert.Equal(t, 3, rec.FlipCount)
	assert.True(t, rec.Alert)
}

func TestRecords_ReturnsCopy(t *testing.T) {
	t.Parallel()
	tr := New(5, 3)
	tr.Record("b0", model.ModelSTLETS)

	recs := tr.Records()
	recs[0].WinningModel = "mutated"
	assert.Equal(t, model.ModelSTLETS, tr.Records()[0].WinningModel)
}
