package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/fueltracker/internal/model"
)

// SQLiteLedger implements Ledger using modernc.org/sqlite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteLedger{db: db}, nil
}

// Dates are stored as text so that round-trips are exact regardless of
// driver time handling: periods as YYYY-MM-DD, timestamps as RFC 3339.
const (
	dayLayout = "2006-01-02"
	tsLayout  = time.RFC3339Nano
)

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS lineage_batches (
	position  INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id  TEXT NOT NULL UNIQUE,
	asof_ts   TEXT NOT NULL,
	source    TEXT NOT NULL,
	row_count INTEGER NOT NULL,
	note      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS panel_rows (
	seq      INTEGER PRIMARY KEY,
	period   TEXT NOT NULL,
	value    REAL NOT NULL,
	metric   TEXT NOT NULL,
	freq     TEXT NOT NULL,
	batch_id TEXT NOT NULL REFERENCES lineage_batches(batch_id),
	asof_ts  TEXT NOT NULL,
	hdd      REAL,
	cdd      REAL,
	price    REAL
);

CREATE TABLE IF NOT EXISTS publish_decisions (
	batch_id   TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	reasons    TEXT NOT NULL DEFAULT '[]',
	decided_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_runs (
	batch_id     TEXT NOT NULL,
	origin       TEXT NOT NULL,
	model        TEXT NOT NULL,
	horizon      INTEGER NOT NULL,
	mae          REAL NOT NULL,
	smape        REAL NOT NULL,
	rmse         REAL NOT NULL,
	mape         REAL NOT NULL,
	PRIMARY KEY (batch_id, origin, model)
);

CREATE TABLE IF NOT EXISTS backtest_aggregates (
	batch_id TEXT NOT NULL,
	model    TEXT NOT NULL,
	origins  INTEGER NOT NULL,
	failures INTEGER NOT NULL,
	excluded INTEGER NOT NULL,
	mae      REAL NOT NULL,
	smape    REAL NOT NULL,
	rmse     REAL NOT NULL,
	mape     REAL NOT NULL,
	PRIMARY KEY (batch_id, model)
);

CREATE TABLE IF NOT EXISTS model_selections (
	batch_id               TEXT PRIMARY KEY,
	winning_model          TEXT NOT NULL,
	score                  REAL NOT NULL,
	comparison_vs_baseline REAL NOT NULL,
	flip_alert             INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS stability_records (
	revision      INTEGER PRIMARY KEY,
	batch_id      TEXT NOT NULL,
	winning_model TEXT NOT NULL,
	flip_count    INTEGER NOT NULL,
	alert         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS forecast_rows (
	batch_id TEXT NOT NULL,
	period   TEXT NOT NULL,
	point    REAL NOT NULL,
	pi_lower REAL NOT NULL,
	pi_upper REAL NOT NULL,
	model_id TEXT NOT NULL,
	PRIMARY KEY (batch_id, period)
);

CREATE INDEX IF NOT EXISTS idx_panel_rows_period ON panel_rows(period);
CREATE INDEX IF NOT EXISTS idx_panel_rows_batch ON panel_rows(batch_id);
CREATE INDEX IF NOT EXISTS idx_decisions_status ON publish_decisions(status);
`

func (s *SQLiteLedger) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

func (s *SQLiteLedger) SaveBatch(ctx context.Context, batch model.BatchRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lineage_batches (batch_id, asof_ts, source, row_count, note) VALUES (?, ?, ?, ?, ?)`,
		batch.BatchID, batch.AsOfTS.UTC().Format(tsLayout), string(batch.Source), batch.RowCount, batch.Note,
	)
	return eris.Wrapf(err, "sqlite: insert batch %s", batch.BatchID)
}

func (s *SQLiteLedger) SavePanelRows(ctx context.Context, rows []model.PanelRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin panel tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO panel_rows (seq, period, value, metric, freq, batch_id, asof_ts, hdd, cdd, price)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare panel insert")
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			r.Seq, r.Period.UTC().Format(dayLayout), r.Value, r.Metric, r.Freq,
			r.BatchID, r.AsOfTS.UTC().Format(tsLayout),
			nullable(r.HDD), nullable(r.CDD), nullable(r.Price),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert panel row seq %d", r.Seq)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit panel rows")
}

func (s *SQLiteLedger) Batches(ctx context.Context) ([]model.BatchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT batch_id, asof_ts, source, row_count, note FROM lineage_batches ORDER BY position`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query batches")
	}
	defer rows.Close()

	var out []model.BatchRecord
	for rows.Next() {
		var b model.BatchRecord
		var asof, source string
		if err := rows.Scan(&b.BatchID, &asof, &source, &b.RowCount, &b.Note); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch")
		}
		if b.AsOfTS, err = time.Parse(tsLayout, asof); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse batch asof_ts")
		}
		b.Source = model.BatchSource(source)
		out = append(out, b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate batches")
}

func (s *SQLiteLedger) PanelRows(ctx context.Context) ([]model.PanelRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, period, value, metric, freq, batch_id, asof_ts, hdd, cdd, price
		 FROM panel_rows ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query panel rows")
	}
	defer rows.Close()

	var out []model.PanelRow
	for rows.Next() {
		var r model.PanelRow
		var period, asof string
		var hdd, cdd, price sql.NullFloat64
		if err := rows.Scan(&r.Seq, &period, &r.Value, &r.Metric, &r.Freq, &r.BatchID, &asof, &hdd, &cdd, &price); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan panel row")
		}
		if r.Period, err = time.Parse(dayLayout, period); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse period")
		}
		if r.AsOfTS, err = time.Parse(tsLayout, asof); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse asof_ts")
		}
		r.HDD = fromNull(hdd)
		r.CDD = fromNull(cdd)
		r.Price = fromNull(price)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate panel rows")
}

func (s *SQLiteLedger) SaveDecision(ctx context.Context, d model.PublishDecision) error {
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
		return eris.Wrap(err, "sqlite: marshal decision reasons")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO publish_decisions (batch_id, status, reasons, decided_at) VALUES (?, ?, ?, ?)`,
		d.BatchID, string(d.Status), string(reasons), time.Now().UTC().Format(tsLayout),
	)
	return eris.Wrapf(err, "sqlite: insert decision %s", d.BatchID)
}

func (s *SQLiteLedger) GetDecision(ctx context.Context, batchID string) (*model.PublishDecision, error) {
	var d model.PublishDecision
	var status, reasons string
	err := s.db.QueryRowContext(ctx,
		`SELECT batch_id, status, reasons FROM publish_decisions WHERE batch_id = ?`, batchID,
	).Scan(&d.BatchID, &status, &reasons)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get decision %s", batchID)
	}
	d.Status = model.PublishStatus(status)
	if err := json.Unmarshal([]byte(reasons), &d.Reasons); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal decision reasons")
	}
	return &d, nil
}

func (s *SQLiteLedger) LastPublished(ctx context.Context) (*model.BatchRecord, error) {
	var b model.BatchRecord
	var asof, source string
	err := s.db.QueryRowContext(ctx,
		`SELECT lb.batch_id, lb.asof_ts, lb.source, lb.row_count, lb.note
		 FROM lineage_batches lb
		 JOIN publish_decisions pd ON pd.batch_id = lb.batch_id
		 WHERE pd.status = ?
		 ORDER BY lb.position DESC LIMIT 1`, string(model.StatusPublished),
	).Scan(&b.BatchID, &asof, &source, &b.RowCount, &b.Note)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: last published")
	}
	if b.AsOfTS, err = time.Parse(tsLayout, asof); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse last published asof_ts")
	}
	b.Source = model.BatchSource(source)
	return &b, nil
}

func (s *SQLiteLedger) SaveBacktestRuns(ctx context.Context, batchID string, runs []model.BacktestRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin backtest tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range runs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO backtest_runs (batch_id, origin, model, horizon, mae, smape, rmse, mape)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			batchID, r.Origin.UTC().Format(dayLayout), r.ModelID, r.Horizon,
			r.Metrics.MAE, r.Metrics.SMAPE, r.Metrics.RMSE, r.Metrics.MAPE,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert backtest run %s@%s", r.ModelID, r.Origin.Format(dayLayout))
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit backtest runs")
}

func (s *SQLiteLedger) SaveAggregates(ctx context.Context, batchID string, aggs []model.ModelAggregate) error {
	for _, a := range aggs {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO backtest_aggregates (batch_id, model, origins, failures, excluded, mae, smape, rmse, mape)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			batchID, a.ModelID, a.Origins, a.Failures, boolInt(a.Excluded),
			a.Median.MAE, a.Median.SMAPE, a.Median.RMSE, a.Median.MAPE,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert aggregate %s", a.ModelID)
		}
	}
	return nil
}

func (s *SQLiteLedger) SaveSelection(ctx context.Context, sel model.ModelSelection, flipAlert bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO model_selections (batch_id, winning_model, score, comparison_vs_baseline, flip_alert)
		 VALUES (?, ?, ?, ?, ?)`,
		sel.BatchID, sel.WinningModel, sel.Score, sel.ComparisonVsBaseline, boolInt(flipAlert),
	)
	return eris.Wrapf(err, "sqlite: insert selection %s", sel.BatchID)
}

func (s *SQLiteLedger) SaveStability(ctx context.Context, rec model.StabilityRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stability_records (revision, batch_id, winning_model, flip_count, alert)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.Revision, rec.BatchID, rec.WinningModel, rec.FlipCount, boolInt(rec.Alert),
	)
	return eris.Wrapf(err, "sqlite: insert stability revision %d", rec.Revision)
}

func (s *SQLiteLedger) Stability(ctx context.Context) ([]model.StabilityRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT revision, batch_id, winning_model, flip_count, alert FROM stability_records ORDER BY revision`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query stability")
	}
	defer rows.Close()

	var out []model.StabilityRecord
	for rows.Next() {
		var r model.StabilityRecord
		var alert int
		if err := rows.Scan(&r.Revision, &r.BatchID, &r.WinningModel, &r.FlipCount, &alert); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stability record")
		}
		r.Alert = alert != 0
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate stability records")
}

func (s *SQLiteLedger) SaveForecast(ctx context.Context, rows []model.ForecastRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin forecast tx")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range rows {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO forecast_rows (batch_id, period, point, pi_lower, pi_upper, model_id)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.BatchID, r.Period.UTC().Format(dayLayout), r.Point, r.PILower, r.PIUpper, r.ModelID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert forecast row %s", r.Period.Format(dayLayout))
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit forecast rows")
}

func (s *SQLiteLedger) Forecast(ctx context.Context, batchID string) ([]model.ForecastRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT batch_id, period, point, pi_lower, pi_upper, model_id
		 FROM forecast_rows WHERE batch_id = ? ORDER BY period`, batchID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query forecast")
	}
	defer rows.Close()

	var out []model.ForecastRow
	for rows.Next() {
		var r model.ForecastRow
		var period string
		if err := rows.Scan(&r.BatchID, &period, &r.Point, &r.PILower, &r.PIUpper, &r.ModelID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan forecast row")
		}
		if r.Period, err = time.Parse(dayLayout, period); err != nil {
			return nil, eris.Wrap(err, "sqlite: parse forecast period")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate forecast rows")
}

func nullable(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
