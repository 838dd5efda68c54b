// Package store persists pipeline artifacts: the panel table, the lineage
// ledger, publish decisions, backtest metrics, selections, stability records
// and forecasts. It is the external persistence layer the core hands result
// rows to; the core itself never touches a database.
package store

import (
	"context"

	"github.com/sells-group/fueltracker/internal/model"
)

// Ledger is the persistence interface for the forecasting pipeline.
type Ledger interface {
	// Lineage
	SaveBatch(ctx context.Context, batch model.BatchRecord) error
	SavePanelRows(ctx context.Context, rows []model.PanelRow) error
	Batches(ctx context.Context) ([]model.BatchRecord, error)
	// PanelRows returns the full panel table in insertion-sequence order,
	// sufficient to replay and reconstruct any historical as-of view.
	PanelRows(ctx context.Context) ([]model.PanelRow, error)

	// Decisions. A decision is terminal: saving a second decision for the
	// same batch fails with a LineageError.
	SaveDecision(ctx context.Context, d model.PublishDecision) error
	GetDecision(ctx context.Context, batchID string) (*model.PublishDecision, error)
	// LastPublished returns the most recent batch whose decision was
	// PUBLISHED, or nil when none exists.
	LastPublished(ctx context.Context) (*model.BatchRecord, error)

	// Backtest artifacts
	SaveBacktestRuns(ctx context.Context, batchID string, runs []model.BacktestRun) error
	SaveAggregates(ctx context.Context, batchID string, aggs []model.ModelAggregate) error
	SaveSelection(ctx context.Context, sel model.ModelSelection, flipAlert bool) error

	// Stability
	SaveStability(ctx context.Context, rec model.StabilityRecord) error
	Stability(ctx context.Context) ([]model.StabilityRecord, error)

	// Forecast
	SaveForecast(ctx context.Context, rows []model.ForecastRow) error
	Forecast(ctx context.Context, batchID string) ([]model.ForecastRow, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
