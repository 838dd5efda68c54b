package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fueltracker/internal/model"
	"github.com/sells-group/fueltracker/internal/panel"
)

// Replay reconstructs an in-memory panel store from the persisted ledger by
// re-appending every batch in its original insertion order. Because the
// lineage is append-only and insertion-ordered, the reconstructed store
// answers every historical as-of query exactly as the original did.
func Replay(ctx context.Context, ledger Ledger) (*panel.Store, error) {
	batches, err := ledger.Batches(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "replay: load batches")
	}
	rows, err := ledger.PanelRows(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "replay: load panel rows")
	}

	byBatch := make(map[string][]model.Observation, len(batches))
	for _, r := range rows {
		byBatch[r.BatchID] = append(byBatch[r.BatchID], r.Observation)
	}

	st := panel.New()
	for _, b := range batches {
		// Override is set because replay re-appends historical batches whose
		// asof_ts ordering was already validated on the original write path.
		_, err := st.Append(byBatch[b.BatchID], model.BatchMeta{
			BatchID:  b.BatchID,
			AsOfTS:   b.AsOfTS,
			Source:   b.Source,
			Note:     b.Note,
			Override: true,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "replay: re-append batch %s", b.BatchID)
		}
	}
	return st, nil
}
