package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fueltracker/internal/model"
	"github.com/sells-group/fueltracker/internal/panel"
)

func seedPanel(t *testing.T, months int) (*panel.Store, time.Time) {
	t.Helper()
	s := panel.New()
	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	values := seasonalSeries(months, 100, 0.2)

	obs := make([]model.Observation, months)
	for i := 0; i < months; i++ {
		obs[i] = model.Observation{
			Period: model.AddMonths(model.MonthEnd(start), i),
			Metric: model.MetricFuel,
			Value:  values[i],
		}
	}
	asof := model.AddMonths(model.MonthEnd(start), months-1).AddDate(0, 0, 5)
	_, err := s.Append(obs, model.BatchMeta{AsOfTS: asof})
	require.NoError(t, err)
	return s, asof
}

// seedPanelExog seeds a panel whose rows all carry the three exogenous
// columns.
func seedPanelExog(t *testing.T, months int) (*panel.Store, time.Time) {
	t.Helper()
	s := panel.New()
	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	values := seasonalSeries(months, 100, 0.2)
	exog := threeExogColumns(months)

	obs := make([]model.Observation, months)
	for i := 0; i < months; i++ {
		hdd, cdd, price := exog["hdd"][i], exog["cdd"][i], exog["price"][i]
		obs[i] = model.Observation{
			Period: model.AddMonths(model.MonthEnd(start), i),
			Metric: model.MetricFuel,
			Value:  values[i],
			HDD:    &hdd,
			CDD:    &cdd,
			Price:  &price,
		}
	}
	asof := model.AddMonths(model.MonthEnd(start), months-1).AddDate(0, 0, 5)
	_, err := s.Append(obs, model.BatchMeta{AsOfTS: asof})
	require.NoError(t, err)
	return s, asof
}

func TestEngine_GenerateRepeatable(t *testing.T) {
	t.Parallel()
	s, asof := seedPanelExog(t, 48)

	engine := NewEngine(s, DefaultZScore)
	first, err := engine.Generate("b1", model.ModelSARIMAX, 12, asof, 4.2)
	require.NoError(t, err)
	require.Len(t, first, 12)

	for i := 0; i < 20; i++ {
		again, err := engine.Generate("b1", model.ModelSARIMAX, 12, asof, 4.2)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEngine_Generate(t *testing.T) {
	t.Parallel()
	s, asof := seedPanel(t, 36)

	engine := NewEngine(s, DefaultZScore)
	rows, err := engine.Generate("b1", model.ModelSeasonalNaive, 12, asof, 5.0)
	require.NoError(t, err)
	require.Len(t, rows, 12)

	last := s.Snapshot(asof).LastPeriod()
	half := DefaultZScore * 5.0
	for i, r := range rows {
		assert.True(t, r.Period.Equal(model.AddMonths(last, i+1)), "periods advance one month-end per step")
		assert.InDelta(t, r.Point-half, r.PILower, 1e-9)
		assert.InDelta(t, r.Point+half, r.PIUpper, 1e-9)
		assert.Equal(t, model.ModelSeasonalNaive, r.ModelID)
		assert.Equal(t, "b1", r.BatchID)
	}
}

func TestEngine_LowerBoundClampedAtZero(t *testing.T) {
	t.Parallel()
	s, asof := seedPanel(t, 36)

	// A huge backtest MAE pushes point - z*MAE well below zero.
	engine := NewEngine(s, DefaultZScore)
	rows, err := engine.Generate("b1", model.ModelSeasonalNaive, 6, asof, 1e6)
	require.NoError(t, err)
	for _, r := range rows {
		assert.Equal(t, 0.0, r.PILower)
		assert.Greater(t, r.PIUpper, r.Point)
	}
}

func TestEngine_UnknownModelRejected(t *testing.T) {
	t.Parallel()
	s, asof := seedPanel(t, 36)

	_, err := NewEngine(s, 0).Generate("b1", "prophet", 12, asof, 1.0)
	require.Error(t, err)
}

func TestEngine_FitFailurePropagates(t *testing.T) {
	t.Parallel()
	s, asof := seedPanel(t, 10)

	// 10 months cannot fit the baseline; the engine never substitutes a
	// different model.
	_, err := NewEngine(s, 0).Generate("b1", model.ModelSeasonalNaive, 12, asof, 1.0)
	var ih *model.InsufficientHistoryError
	require.ErrorAs(t, err, &ih)
}

func TestEngine_EmptyPanel(t *testing.T) {
	t.Parallel()
	s := panel.New()

	_, err := NewEngine(s, 0).Generate("b1", model.ModelSeasonalNaive, 12, time.Now().UTC(), 1.0)
	var ih *model.InsufficientHistoryError
	require.ErrorAs(t, err, &ih)
}

func TestNewEngine_DefaultZScore(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultZScore, NewEngine(panel.New(), 0).ZScore)
	assert.Equal(t, 2.58, NewEngine(panel.New(), 2.58).ZScore)
}
