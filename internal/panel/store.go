// Package panel implements the append-only, multi-versioned lineage store.
//
// Rows live in an arena-style log indexed by insertion sequence, with a
// per-period secondary index kept sorted by (asof_ts, seq). As-of
// reconstruction binary-searches each period index, so a query never scans
// or mutates store state and is a pure function of contents and cutoff.
package panel

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/fueltracker/internal/model"
)

// Store is the sole source of truth for observations. Exactly one writer
// appends at a time; readers reconstruct immutable views.
type Store struct {
	mu       sync.Mutex
	rows     []model.PanelRow           // arena log, insertion order
	byPeriod map[time.Time][]int        // period -> row indices sorted by (asof_ts, seq)
	periods  []time.Time                // sorted distinct periods
	batches  []model.BatchRecord        // lineage ledger, insertion order
	lastAsOf time.Time                  // greatest asof_ts recorded so far
	nextSeq  int64
}

// New returns an empty store.
func New() *Store {
	return &Store{byPeriod: make(map[time.Time][]int)}
}

// Append writes one batch of observations tagged with meta. It fails with a
// LineageError when meta.AsOfTS regresses against the store's last recorded
// asof_ts and no override flag is set. The write is all-or-nothing.
func (s *Store) Append(observations []model.Observation, meta model.BatchMeta) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if meta.AsOfTS.IsZero() {
		return "", &model.LineageError{Op: "append", Reason: "asof_ts is required"}
	}
	asof := meta.AsOfTS.UTC()
	if !s.lastAsOf.IsZero() && asof.Before(s.lastAsOf) && !meta.Override {
		return "", &model.LineageError{
			Op: "append",
			Reason: "asof_ts " + asof.Format(time.RFC3339) +
				" regresses against last recorded " + s.lastAsOf.Format(time.RFC3339),
		}
	}
	for _, o := range observations {
		if !model.IsMonthEnd(o.Period) {
			return "", &model.LineageError{
				Op:     "append",
				Reason: "observation period " + o.Period.Format("2006-01-02") + " is not month-end",
			}
		}
	}

	batchID := meta.BatchID
	if batchID == "" {
		batchID = uuid.New().String()
	}
	source := meta.Source
	if source == "" {
		source = model.SourceIngest
	}

	for _, o := range observations {
		row := model.PanelRow{
			Observation: o,
			Freq:        model.FreqMonthly,
			BatchID:     batchID,
			AsOfTS:      asof,
			Seq:         s.nextSeq,
		}
		s.nextSeq++
		idx := len(s.rows)
		s.rows = append(s.rows, row)
		s.indexRow(o.Period, idx)
	}

	if asof.After(s.lastAsOf) {
		s.lastAsOf = asof
	}
	s.batches = append(s.batches, model.BatchRecord{
		BatchID:  batchID,
		AsOfTS:   asof,
		Source:   source,
		RowCount: len(observations),
		Note:     meta.Note,
	})

	zap.L().Info("batch appended",
		zap.String("batch_id", batchID),
		zap.Time("asof_ts", asof),
		zap.Int("rows", len(observations)),
		zap.String("source", string(source)),
	)

	return batchID, nil
}

// indexRow inserts a row index into the period's sorted index. Appends are
// the common case because asof_ts is monotone; overridden backfills insert
// at the (asof_ts, seq) sort position.
func (s *Store) indexRow(period time.Time, idx int) {
	bucket, ok := s.byPeriod[period]
	if !ok {
		pos := sort.Search(len(s.periods), func(i int) bool { return !s.periods[i].Before(period) })
		s.periods = append(s.periods, time.Time{})
		copy(s.periods[pos+1:], s.periods[pos:])
		s.periods[pos] = period
	}

	row := s.rows[idx]
	pos := sort.Search(len(bucket), func(i int) bool {
		other := s.rows[bucket[i]]
		if !other.AsOfTS.Equal(row.AsOfTS) {
			return other.AsOfTS.After(row.AsOfTS)
		}
		return other.Seq > row.Seq
	})
	bucket = append(bucket, 0)
	copy(bucket[pos+1:], bucket[pos:])
	bucket[pos] = idx
	s.byPeriod[period] = bucket
}

// AsOf reconstructs the panel as of cutoff: one row per period, the row with
// the greatest asof_ts <= cutoff, ties broken by insertion sequence (latest
// insertion wins). The result is ordered by period and is reproducible for
// unchanged store contents.
func (s *Store) AsOf(cutoff time.Time) []model.PanelRow {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff = cutoff.UTC()
	out := make([]model.PanelRow, 0, len(s.periods))
	for _, p := range s.periods {
		bucket := s.byPeriod[p]
		// First index whose asof_ts is strictly after the cutoff; the row
		// before it is the winner, if any.
		pos := sort.Search(len(bucket), func(i int) bool {
			return s.rows[bucket[i]].AsOfTS.After(cutoff)
		})
		if pos == 0 {
			continue
		}
		out = append(out, s.rows[bucket[pos-1]])
	}
	return out
}

// Latest returns the panel as of now.
func (s *Store) Latest() []model.PanelRow {
	return s.AsOf(time.Now().UTC())
}

// Batches returns the lineage ledger in insertion order.
func (s *Store) Batches() []model.BatchRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.BatchRecord, len(s.batches))
	copy(out, s.batches)
	return out
}

// LastAsOf returns the greatest asof_ts recorded so far.
func (s *Store) LastAsOf() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAsOf
}

// Rows returns the full arena log in insertion order, for ledger export.
func (s *Store) Rows() []model.PanelRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.PanelRow, len(s.rows))
	copy(out, s.rows)
	return out
}
