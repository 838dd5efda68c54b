// Package stability observes winner changes across successive revisions.
// It is purely observational: an alert raises visibility for operator
// escalation and never blocks publication.
package stability

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/fueltracker/internal/model"
)

// Tracker keeps the ordered revision log of winning models.
type Tracker struct {
	mu            sync.Mutex
	records       []model.StabilityRecord
	window        int
	flipThreshold int
}

// New returns a Tracker with the given trailing window and flip threshold.
func New(window, flipThreshold int) *Tracker {
	if window <= 0 {
		window = 5
	}
	if flipThreshold <= 0 {
		flipThreshold = 3
	}
	return &Tracker{window: window, flipThreshold: flipThreshold}
}

// Record appends a revision and returns the record with its flip count over
// the trailing window and the alert flag.
func (t *Tracker) Record(batchID, winningModel string) model.StabilityRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := model.StabilityRecord{
		Revision:     len(t.records),
		BatchID:      batchID,
		WinningModel: winningModel,
	}
	t.records = append(t.records, rec)

	rec.FlipCount = t.flipCountLocked(t.window)
	rec.Alert = rec.FlipCount >= t.flipThreshold
	t.records[len(t.records)-1] = rec

	if rec.Alert {
		zap.L().Warn("winner instability alert",
			zap.String("batch_id", batchID),
			zap.String("winning_model", winningModel),
			zap.Int("flip_count", rec.FlipCount),
			zap.Int("window", t.window),
		)
	}

	return rec
}

// FlipCount returns the number of adjacent winner changes among the last
// window revisions.
func (t *Tracker) FlipCount(window int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flipCountLocked(window)
}

func (t *Tracker) flipCountLocked(window int) int {
	recs := t.records
	if window > 0 && len(recs) > window {
		recs = recs[len(recs)-window:]
	}
	flips := 0
	for i := 1; i < len(recs); i++ {
		if recs[i].WinningModel != recs[i-1].WinningModel {
			flips++
		}
	}
	return flips
}

// Records returns a copy of the revision log in order.
func (t *Tracker) Records() []model.StabilityRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.StabilityRecord, len(t.records))
	copy(out, t.records)
	return out
}

// Load seeds the tracker from persisted records, preserving order.
func (t *Tracker) Load(records []model.StabilityRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records[:0], records...)
}
