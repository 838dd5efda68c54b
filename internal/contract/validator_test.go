package contract

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

func f(v float64) *float64 { return &v }

func TestValidate(t *testing.T) {
	t.Parallel()
	v := &Validator{}

	tests := []struct {
		name   string
		raw    RawRecord
		reason RejectReason
	}{
		{"valid month-end", RawRecord{Period: "2024-01-31", Value: f(100)}, ""},
		{"valid YYYY-MM", RawRecord{Period: "2024-02", Value: f(100)}, ""},
		{"zero value accepted", RawRecord{Period: "2024-01-31", Value: f(0)}, ""},
		{"missing period", RawRecord{Value: f(100)}, RejectMissingField},
		{"missing value", RawRecord{Period: "2024-01-31"}, RejectMissingField},
		{"garbled period", RawRecord{Period: "Jan 2024", Value: f(100)}, RejectTypeMismatch},
		{"mid-month period", RawRecord{Period: "2024-01-15", Value: f(100)}, RejectDateAlignment},
		{"negative value", RawRecord{Period: "2024-01-31", Value: f(-1)}, RejectRangeViolation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs, rej := v.Validate(tt.raw)
			if tt.reason == "" {
				require.Nil(t, rej)
				assert.True(t, model.IsMonthEnd(obs.Period))
				return
			}
			require.NotNil(t, rej)
			assert.Equal(t, tt.reason, rej.Reason)
		})
	}
}

func TestValidate_NormalizesYearMonth(t *testing.T) {
	t.Parallel()
	v := &Validator{}

	obs, rej := v.Validate(RawRecord{Period: "2024-02", Value: f(42)})
	require.Nil(t, rej)
	assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), obs.Period)
}

func TestValidate_DefaultsMetric(t *testing.T) {
	t.Parallel()
	v := &Validator{}

	obs, rej := v.Validate(RawRecord{Period: "2024-01-31", Value: f(1)})
	require.Nil(t, rej)
	assert.Equal(t, model.MetricFuel, obs.Metric)

	obs, rej = v.Validate(RawRecord{Period: "2024-01-31", Value: f(1), Metric: "custom"})
	require.Nil(t, rej)
	assert.Equal(t, "custom", obs.Metric)
}

func TestValidateBatch_DefaultPolicyKeepsGoodRows(t *testing.T) {
	t.Parallel()
	v := &Validator{}

	obs, report, err := v.ValidateBatch([]RawRecord{
		{Period: "2024-01-31", Value: f(100)},
		{Period: "2024-02-15", Value: f(100)}, // rejected
		{Period: "2024-03-31", Value: f(100)},
	})
	require.NoError(t, err)
	assert.Len(t, obs, 2)
	assert.Equal(t, 2, report.Accepted)
	require.Len(t, report.Rejects, 1)
	assert.Equal(t, 1, report.Rejects[0].Index)
	assert.Equal(t, RejectDateAlignment, report.Rejects[0].Reason)
	assert.InDelta(t, 1.0/3.0, report.RejectRate(), 1e-9)
}

func TestValidateBatch_StrictModeFailsBatch(t *testing.T) {
	t.Parallel()
	v := &Validator{Strict: true, MaxRejectRate: 0.2}

	_, report, err := v.ValidateBatch([]RawRecord{
		{Period: "2024-01-31", Value: f(100)},
		{Period: "bogus", Value: f(100)},
	})
	require.Error(t, err)
	var ce *model.ContractError
	require.ErrorAs(t, err, &ce)
	assert.Len(t, report.Rejects, 1)
}

func TestValidateBatch_StrictModeUnderRatePasses(t *testing.T) {
	t.Parallel()
	v := &Validator{Strict: true, MaxRejectRate: 0.5}

	obs, _, err := v.ValidateBatch([]RawRecord{
		{Period: "2024-01-31", Value: f(100)},
		{Period: "2024-02-29", Value: f(100)},
		{Period: "bogus", Value: f(100)},
	})
	require.NoError(t, err)
	assert.Len(t, obs, 2)
}
