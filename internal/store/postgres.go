package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/fueltracker/internal/model"
)

// Pool is the subset of pgxpool.Pool the ledger uses; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresLedger implements Ledger using pgx.
type PostgresLedger struct {
	pool Pool
}

// NewPostgres creates a PostgresLedger with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresLedger, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresLedger{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool; used by tests.
func NewPostgresWithPool(pool Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS lineage_batches (
	position  BIGSERIAL PRIMARY KEY,
	batch_id  TEXT NOT NULL UNIQUE,
	asof_ts   TIMESTAMPTZ NOT NULL,
	source    TEXT NOT NULL,
	row_count INTEGER NOT NULL,
	note      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS panel_rows (
	seq      BIGINT PRIMARY KEY,
	period   DATE NOT NULL,
	value    DOUBLE PRECISION NOT NULL,
	metric   TEXT NOT NULL,
	freq     TEXT NOT NULL,
	batch_id TEXT NOT NULL REFERENCES lineage_batches(batch_id),
	asof_ts  TIMESTAMPTZ NOT NULL,
	hdd      DOUBLE PRECISION,
	cdd      DOUBLE PRECISION,
	price    DOUBLE PRECISION
);

CREATE TABLE IF NOT EXISTS publish_decisions (
	batch_id   TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	reasons    JSONB NOT NULL DEFAULT '[]',
	decided_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_runs (
	batch_id TEXT NOT NULL,
	origin   DATE NOT NULL,
	model    TEXT NOT NULL,
	horizon  INTEGER NOT NULL,
	mae      DOUBLE PRECISION NOT NULL,
	smape    DOUBLE PRECISION NOT NULL,
	rmse     DOUBLE PRECISION NOT NULL,
	mape     DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (batch_id, origin, model)
);

CREATE TABLE IF NOT EXISTS backtest_aggregates (
	batch_id TEXT NOT NULL,
	model    TEXT NOT NULL,
	origins  INTEGER NOT NULL,
	failures INTEGER NOT NULL,
	excluded BOOLEAN NOT NULL,
	mae      DOUBLE PRECISION NOT NULL,
	smape    DOUBLE PRECISION NOT NULL,
	rmse     DOUBLE PRECISION NOT NULL,
	mape     DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (batch_id, model)
);

CREATE TABLE IF NOT EXISTS model_selections (
	batch_id               TEXT PRIMARY KEY,
	winning_model          TEXT NOT NULL,
	score                  DOUBLE PRECISION NOT NULL,
	comparison_vs_baseline DOUBLE PRECISION NOT NULL,
	flip_alert             BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS stability_records (
	revision      INTEGER PRIMARY KEY,
	batch_id      TEXT NOT NULL,
	winning_model TEXT NOT NULL,
	flip_count    INTEGER NOT NULL,
	alert         BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS forecast_rows (
	batch_id TEXT NOT NULL,
	period   DATE NOT NULL,
	point    DOUBLE PRECISION NOT NULL,
	pi_lower DOUBLE PRECISION NOT NULL,
	pi_upper DOUBLE PRECISION NOT NULL,
	model_id TEXT NOT NULL,
	PRIMARY KEY (batch_id, period)
);

CREATE INDEX IF NOT EXISTS idx_panel_rows_period ON panel_rows(period);
CREATE INDEX IF NOT EXISTS idx_panel_rows_batch ON panel_rows(batch_id);
CREATE INDEX IF NOT EXISTS idx_decisions_status ON publish_decisions(status);
`

func (s *PostgresLedger) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresLedger) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresLedger) SaveBatch(ctx context.Context, batch model.BatchRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO lineage_batches (batch_id, asof_ts, source, row_count, note) VALUES ($1, $2, $3, $4, $5)`,
		batch.BatchID, batch.AsOfTS.UTC(), string(batch.Source), batch.RowCount, batch.Note,
	)
	return eris.Wrapf(err, "postgres: insert batch %s", batch.BatchID)
}

func (s *PostgresLedger) SavePanelRows(ctx context.Context, rows []model.PanelRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin panel tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range rows {
		_, err := tx.Exec(ctx,
			`INSERT INTO panel_rows (seq, period, value, metric, freq, batch_id, asof_ts, hdd, cdd, price)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			r.Seq, r.Period.UTC(), r.Value, r.Metric, r.Freq, r.BatchID, r.AsOfTS.UTC(), r.HDD, r.CDD, r.Price,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert panel row seq %d", r.Seq)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit panel rows")
}

func (s *PostgresLedger) Batches(ctx context.Context) ([]model.BatchRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT batch_id, asof_ts, source, row_count, note FROM lineage_batches ORDER BY position`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query batches")
	}
	defer rows.Close()

	var out []model.BatchRecord
	for rows.Next() {
		var b model.BatchRecord
		var source string
		if err := rows.Scan(&b.BatchID, &b.AsOfTS, &source, &b.RowCount, &b.Note); err != nil {
			return nil, eris.Wrap(err, "postgres: scan batch")
		}
		b.AsOfTS = b.AsOfTS.UTC()
		b.Source = model.BatchSource(source)
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate batches")
}

func (s *PostgresLedger) PanelRows(ctx context.Context) ([]model.PanelRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT seq, period, value, metric, freq, batch_id, asof_ts, hdd, cdd, price
		 FROM panel_rows ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query panel rows")
	}
	defer rows.Close()

	var out []model.PanelRow
	for rows.Next() {
		var r model.PanelRow
		if err := rows.Scan(&r.Seq, &r.Period, &r.Value, &r.Metric, &r.Freq, &r.BatchID, &r.AsOfTS, &r.HDD, &r.CDD, &r.Price); err != nil {
			return nil, eris.Wrap(err, "postgres: scan panel row")
		}
		r.Period = r.Period.UTC()
		r.AsOfTS = r.AsOfTS.UTC()
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate panel rows")
}

func (s *PostgresLedger) SaveDecision(ctx context.Context, d model.PublishDecision) error {
	existing, err := s.GetDecision(ctx, d.BatchID)
	if err != nil {
		return err
	}
	if existing != nil {
		return &model.LineageError{
			Op:     "save decision",
			Reason: "decision for batch " + d.BatchID + " already recorded; decisions are terminal",
		}
	}

	reasons, err := json.Marshal(d.Reasons)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal decision reasons")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO publish_decisions (batch_id, status, reasons, decided_at) VALUES ($1, $2, $3, $4)`,
		d.BatchID, string(d.Status), reasons, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: insert decision %s", d.BatchID)
}

func (s *PostgresLedger) GetDecision(ctx context.Context, batchID string) (*model.PublishDecision, error) {
	var d model.PublishDecision
	var status string
	var reasons []byte
	err := s.pool.QueryRow(ctx,
		`SELECT batch_id, status, reasons FROM publish_decisions WHERE batch_id = $1`, batchID,
	).Scan(&d.BatchID, &status, &reasons)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get decision %s", batchID)
	}
	d.Status = model.PublishStatus(status)
	if err := json.Unmarshal(reasons, &d.Reasons); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal decision reasons")
	}
	return &d, nil
}

func (s *PostgresLedger) LastPublished(ctx context.Context) (*model.BatchRecord, error) {
	var b model.BatchRecord
	var source string
	err := s.pool.QueryRow(ctx,
		`SELECT lb.batch_id, lb.asof_ts, lb.source, lb.row_count, lb.note
		 FROM lineage_batches lb
		 JOIN publish_decisions pd ON pd.batch_id = lb.batch_id
		 WHERE pd.status = $1
		 ORDER BY lb.position DESC LIMIT 1`, string(model.StatusPublished),
	).Scan(&b.BatchID, &b.AsOfTS, &source, &b.RowCount, &b.Note)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: last published")
	}
	b.AsOfTS = b.AsOfTS.UTC()
	b.Source = model.BatchSource(source)
	return &b, nil
}

func (s *PostgresLedger) SaveBacktestRuns(ctx context.Context, batchID string, runs []model.BacktestRun) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin backtest tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range runs {
		_, err := tx.Exec(ctx,
			`INSERT INTO backtest_runs (batch_id, origin, model, horizon, mae, smape, rmse, mape)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			batchID, r.Origin.UTC(), r.ModelID, r.Horizon,
			r.Metrics.MAE, r.Metrics.SMAPE, r.Metrics.RMSE, r.Metrics.MAPE,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert backtest run %s", r.ModelID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit backtest runs")
}

func (s *PostgresLedger) SaveAggregates(ctx context.Context, batchID string, aggs []model.ModelAggregate) error {
	for _, a := range aggs {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO backtest_aggregates (batch_id, model, origins, failures, excluded, mae, smape, rmse, mape)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			batchID, a.ModelID, a.Origins, a.Failures, a.Excluded,
			a.Median.MAE, a.Median.SMAPE, a.Median.RMSE, a.Median.MAPE,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert aggregate %s", a.ModelID)
		}
	}
	return nil
}

func (s *PostgresLedger) SaveSelection(ctx context.Context, sel model.ModelSelection, flipAlert bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO model_selections (batch_id, winning_model, score, comparison_vs_baseline, flip_alert)
		 VALUES ($1, $2, $3, $4, $5)`,
		sel.BatchID, sel.WinningModel, sel.Score, sel.ComparisonVsBaseline, flipAlert,
	)
	return eris.Wrapf(err, "postgres: insert selection %s", sel.BatchID)
}

func (s *PostgresLedger) SaveStability(ctx context.Context, rec model.StabilityRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stability_records (revision, batch_id, winning_model, flip_count, alert)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.Revision, rec.BatchID, rec.WinningModel, rec.FlipCount, rec.Alert,
	)
	return eris.Wrapf(err, "postgres: insert stability revision %d", rec.Revision)
}

func (s *PostgresLedger) Stability(ctx context.Context) ([]model.StabilityRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT revision, batch_id, winning_model, flip_count, alert FROM stability_records ORDER BY revision`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query stability")
	}
	defer rows.Close()

	var out []model.StabilityRecord
	for rows.Next() {
		var r model.StabilityRecord
		if err := rows.Scan(&r.Revision, &r.BatchID, &r.WinningModel, &r.FlipCount, &r.Alert); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stability record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate stability records")
}

func (s *PostgresLedger) SaveForecast(ctx context.Context, rows []model.ForecastRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin forecast tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range rows {
		_, err := tx.Exec(ctx,
			`INSERT INTO forecast_rows (batch_id, period, point, pi_lower, pi_upper, model_id)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			r.BatchID, r.Period.UTC(), r.Point, r.PILower, r.PIUpper, r.ModelID,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert forecast row %s", r.Period.Format("2006-01-02"))
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit forecast rows")
}

func (s *PostgresLedger) Forecast(ctx context.Context, batchID string) ([]model.ForecastRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT batch_id, period, point, pi_lower, pi_upper, model_id
		 FROM forecast_rows WHERE batch_id = $1 ORDER BY period`, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query forecast")
	}
	defer rows.Close()

	var out []model.ForecastRow
	for rows.Next() {
		var r model.ForecastRow
		if err := rows.Scan(&r.BatchID, &r.Period, &r.Point, &r.PILower, &r.PIUpper, &r.ModelID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan forecast row")
		}
		r.Period = r.Period.UTC()
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate forecast rows")
}
