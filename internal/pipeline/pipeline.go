// Package pipeline wires the full batch run: contract validation, lineage
// append, tolerance comparison, publish gating, rolling-origin backtest,
// model selection, stability tracking and the horizon forecast.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fueltracker/internal/backtest"
	"github.com/sells-group/fueltracker/internal/config"
	"github.com/sells-group/fueltracker/internal/contract"
	"github.com/sells-group/fueltracker/internal/forecast"
	"github.com/sells-group/fueltracker/internal/gate"
	"github.com/sells-group/fueltracker/internal/model"
	"github.com/sells-group/fueltracker/internal/panel"
	"github.com/sells-group/fueltracker/internal/selector"
	"github.com/sells-group/fueltracker/internal/stability"
	"github.com/sells-group/fueltracker/internal/store"
	"github.com/sells-group/fueltracker/internal/tolerance"
)

// Pipeline runs one logical batch job per invocation. The panel store is the
// sole source of truth; every artifact lands in the ledger.
type Pipeline struct {
	cfg     *config.Config
	panel   *panel.Store
	ledger  store.Ledger
	gate    *gate.Gate
	tracker *stability.Tracker

	// Now is the wall clock, injectable for tests.
	Now func() time.Time
}

// Result collects everything one batch run produced.
type Result struct {
	BatchID   string
	Report    contract.Report
	Decision  model.PublishDecision
	Backtest  *backtest.Result
	Selection *model.ModelSelection
	Stability *model.StabilityRecord
	Forecast  []model.ForecastRow
}

// New builds a Pipeline over the ledger, replaying the persisted panel and
// stability log into memory.
func New(ctx context.Context, cfg *config.Config, ledger store.Ledger) (*Pipeline, error) {
	st, err := store.Replay(ctx, ledger)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: replay panel")
	}

	tracker := stability.New(cfg.Stability.Window, cfg.Stability.FlipThreshold)
	records, err := ledger.Stability(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load stability log")
	}
	tracker.Load(records)

	return &Pipeline{
		cfg:     cfg,
		panel:   st,
		ledger:  ledger,
		gate:    gate.New(cfg.Tolerance.TTLBusinessDays),
		tracker: tracker,
		Now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Panel exposes the in-memory panel store for read-only callers (status,
// lineage printing).
func (p *Pipeline) Panel() *panel.Store { return p.panel }

// Run ingests one raw batch stamped with asOfTS and drives it through the
// whole pipeline. Forecast rows are exported only for PUBLISHED batches; a
// BLOCKED batch still gets a backtest against the last published vintage.
func (p *Pipeline) Run(ctx context.Context, raws []contract.RawRecord, asOfTS time.Time, override bool) (*Result, error) {
	validator := &contract.Validator{
		Strict:        p.cfg.Contract.StrictMode,
		MaxRejectRate: p.cfg.Contract.MaxRejectRate,
	}
	obs, report, err := validator.ValidateBatch(raws)
	if err != nil {
		return nil, err
	}

	// Snapshot the last published vintage before anything else; tolerance
	// always references published truth, never a provisional vintage.
	published, err := p.ledger.LastPublished(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: last published batch")
	}
	var publishedRows []model.PanelRow
	if published != nil {
		publishedRows = p.panel.AsOf(published.AsOfTS)
	}

	batchID, err := p.panel.Append(obs, model.BatchMeta{
		AsOfTS:   asOfTS,
		Source:   model.SourceIngest,
		Override: override,
	})
	if err != nil {
		return nil, err
	}
	if err := p.persistBatch(ctx, batchID); err != nil {
		return nil, err
	}

	res := &Result{BatchID: batchID, Report: report}

	newRows := p.panel.AsOf(asOfTS)
	tolResults := tolerance.Compare(newRows, publishedRows, p.cfg.Tolerance.BandPct)

	staleness := 0
	if n := len(newRows); n > 0 {
		staleness = gate.BusinessDaysSince(newRows[n-1].Period, p.Now())
	}

	res.Decision = p.gate.Decide(batchID, staleness, tolResults, override)
	if err := p.ledger.SaveDecision(ctx, res.Decision); err != nil {
		return nil, eris.Wrap(err, "pipeline: save decision")
	}

	// Backtest the authoritative vintage: the new one unless publication is
	// blocked, in which case evaluation still runs against published truth.
	btCutoff := asOfTS
	if res.Decision.Status == model.StatusBlocked {
		if published == nil {
			zap.L().Warn("batch blocked with no published vintage; skipping backtest",
				zap.String("batch_id", batchID))
			return res, nil
		}
		btCutoff = published.AsOfTS
	}

	view := p.panel.Snapshot(btCutoff)
	bt, err := backtest.Run(ctx, view, forecast.Registry(), backtest.Config{
		LookbackMonths: p.cfg.Backtest.LookbackMonths,
		HorizonMonths:  p.cfg.Backtest.HorizonMonths,
		Workers:        p.cfg.Backtest.Workers,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		// A panel too short to backtest is not a publication failure.
		zap.L().Warn("backtest skipped", zap.String("batch_id", batchID), zap.Error(err))
		return res, nil
	}
	res.Backtest = bt
	if err := p.ledger.SaveBacktestRuns(ctx, batchID, bt.Runs); err != nil {
		return nil, eris.Wrap(err, "pipeline: save backtest runs")
	}
	if err := p.ledger.SaveAggregates(ctx, batchID, bt.Aggregates); err != nil {
		return nil, eris.Wrap(err, "pipeline: save aggregates")
	}

	sel, err := selector.Select(batchID, bt.Aggregates, selector.Config{
		Metric:         p.cfg.Backtest.SelectionMetric,
		ImprovementPct: p.cfg.Backtest.BaselineImprovementPct,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: select model")
	}
	res.Selection = &sel

	rec := p.tracker.Record(batchID, sel.WinningModel)
	res.Stability = &rec
	if err := p.ledger.SaveStability(ctx, rec); err != nil {
		return nil, eris.Wrap(err, "pipeline: save stability record")
	}
	if err := p.ledger.SaveSelection(ctx, sel, rec.Alert); err != nil {
		return nil, eris.Wrap(err, "pipeline: save selection")
	}

	if !res.Decision.Authoritative() {
		zap.L().Info("vintage not published; no forecast exported",
			zap.String("batch_id", batchID),
			zap.String("status", string(res.Decision.Status)),
		)
		return res, nil
	}

	winnerAgg, _ := bt.Aggregate(sel.WinningModel)
	engine := forecast.NewEngine(p.panel, p.cfg.Forecast.PIZScore)
	rows, err := engine.Generate(batchID, sel.WinningModel, p.cfg.Backtest.HorizonMonths, asOfTS, winnerAgg.Median.MAE)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: generate forecast")
	}
	res.Forecast = rows
	if err := p.ledger.SaveForecast(ctx, rows); err != nil {
		return nil, eris.Wrap(err, "pipeline: save forecast")
	}

	return res, nil
}

// persistBatch writes the just-appended batch record and its panel rows to
// the ledger.
func (p *Pipeline) persistBatch(ctx context.Context, batchID string) error {
	for _, b := range p.panel.Batches() {
		if b.BatchID != batchID {
			continue
		}
		if err := p.ledger.SaveBatch(ctx, b); err != nil {
			return eris.Wrap(err, "pipeline: save batch record")
		}
		var rows []model.PanelRow
		for _, r := range p.panel.Rows() {
			if r.BatchID == batchID {
				rows = append(rows, r)
			}
		}
		return eris.Wrap(p.ledger.SavePanelRows(ctx, rows), "pipeline: save panel rows")
	}
	return eris.Errorf("pipeline: batch %s missing from panel ledger", batchID)
}
