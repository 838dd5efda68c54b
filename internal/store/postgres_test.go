package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fueltracker/internal/model"
)

func newMockLedger(t *testing.T) (*PostgresLedger, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresWithPool(mock), mock
}

func TestPostgres_Migrate(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS lineage_batches").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, ledger.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveBatch(t *testing.T) {
	ledger, mock := newMockLedger(t)

	asof := time.Date(2024, time.February, 5, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO lineage_batches").
		WithArgs("b1", asof, string(model.SourceIngest), 24, "monthly load").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := ledger.SaveBatch(context.Background(), model.BatchRecord{
		BatchID: "b1", AsOfTS: asof, Source: model.SourceIngest, RowCount: 24, Note: "monthly load",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SavePanelRowsTransactional(t *testing.T) {
	ledger, mock := newMockLedger(t)

	asof := time.Date(2024, time.February, 5, 0, 0, 0, 0, time.UTC)
	jan := model.MonthEnd(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC))
	rows := []model.PanelRow{{
		Observation: model.Observation{Period: jan, Metric: model.MetricFuel, Value: 100},
		Freq:        model.FreqMonthly, BatchID: "b1", AsOfTS: asof, Seq: 0,
	}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO panel_rows").
		WithArgs(int64(0), jan, 100.0, model.MetricFuel, model.FreqMonthly, "b1", asof,
			(*float64)(nil), (*float64)(nil), (*float64)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, ledger.SavePanelRows(context.Background(), rows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveDecisionTerminal(t *testing.T) {
	ledger, mock := newMockLedger(t)
	ctx := context.Background()

	// First save: no existing decision, insert proceeds.
	mock.ExpectQuery("SELECT batch_id, status, reasons FROM publish_decisions").
		WithArgs("b1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO publish_decisions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, ledger.SaveDecision(ctx, model.PublishDecision{
		BatchID: "b1", Status: model.StatusPublished,
	}))

	// Second save: the existing row makes the write fail closed.
	mock.ExpectQuery("SELECT batch_id, status, reasons FROM publish_decisions").
		WithArgs("b1").
		WillReturnRows(pgxmock.NewRows([]string{"batch_id", "status", "reasons"}).
			AddRow("b1", string(model.StatusPublished), []byte("[]")))

	err := ledger.SaveDecision(ctx, model.PublishDecision{BatchID: "b1", Status: model.StatusBlocked})
	var le *model.LineageError
	require.ErrorAs(t, err, &le)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetDecisionMissing(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.ExpectQuery("SELECT batch_id, status, reasons FROM publish_decisions").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	got, err := ledger.GetDecision(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LastPublished(t *testing.T) {
	ledger, mock := newMockLedger(t)

	asof := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM lineage_batches lb").
		WithArgs(string(model.StatusPublished)).
		WillReturnRows(pgxmock.NewRows([]string{"batch_id", "asof_ts", "source", "row_count", "note"}).
			AddRow("b7", asof, string(model.SourceIngest), 24, ""))

	got, err := ledger.LastPublished(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "b7", got.BatchID)
	assert.True(t, got.AsOfTS.Equal(asof))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_StabilityRoundTrip(t *testing.T) {
	ledger, mock := newMockLedger(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO stability_records").
		WithArgs(2, "b3", model.ModelSTLETS, 3, true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, ledger.SaveStability(ctx, model.StabilityRecord{
		Revision: 2, BatchID: "b3", WinningModel: model.ModelSTLETS, FlipCount: 3, Alert: true,
	}))

	mock.ExpectQuery("SELECT revision, batch_id, winning_model, flip_count, alert FROM stability_records").
		WillReturnRows(pgxmock.NewRows([]string{"revision", "batch_id", "winning_model", "flip_count", "alert"}).
			AddRow(2, "b3", model.ModelSTLETS, 3, true))

	recs, err := ledger.Stability(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Alert)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveForecastTransactional(t *testing.T) {
	ledger, mock := newMockLedger(t)

	jan := model.MonthEnd(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO forecast_rows").
		WithArgs("b1", jan, 110.5, 98.2, 122.8, model.ModelSTLETS).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := ledger.SaveForecast(context.Background(), []model.ForecastRow{{
		Period: jan, Point: 110.5, PILower: 98.2, PIUpper: 122.8,
		ModelID: model.ModelSTLETS, BatchID: "b1",
	}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
