package model

import "time"

// Metric and frequency are fixed for the tracked series.
const (
	MetricFuel   = "pipeline_compressor_fuel"
	FreqMonthly  = "monthly"
	SeasonPeriod = 12
)

// BatchSource identifies what produced a batch.
type BatchSource string

const (
	SourceIngest   BatchSource = "INGEST"
	SourceBacktest BatchSource = "BACKTEST"
	SourceForecast BatchSource = "FORECAST"
)

// Observation is one immutable monthly data point. Period is always a
// month-end date at UTC midnight. Exogenous fields are optional.
type Observation struct {
	Period time.Time `json:"period"`
	Metric string    `json:"metric"`
	Value  float64   `json:"value"`
	HDD    *float64  `json:"hdd,omitempty"`
	CDD    *float64  `json:"cdd,omitempty"`
	Price  *float64  `json:"price,omitempty"`
}

// BatchMeta tags one atomic write to the lineage store.
type BatchMeta struct {
	BatchID  string      `json:"batch_id"`
	AsOfTS   time.Time   `json:"asof_ts"`
	Source   BatchSource `json:"source"`
	Note     string      `json:"note,omitempty"`
	Override bool        `json:"override,omitempty"`
}

// PanelRow is an Observation plus the batch that produced it and its
// insertion sequence number. Rows are never mutated or deleted.
type PanelRow struct {
	Observation
	Freq    string    `json:"freq"`
	BatchID string    `json:"batch_id"`
	AsOfTS  time.Time `json:"asof_ts"`
	Seq     int64     `json:"seq"`
}

// BatchRecord is one entry in the lineage ledger.
type BatchRecord struct {
	BatchID  string      `json:"batch_id"`
	AsOfTS   time.Time   `json:"asof_ts"`
	Source   BatchSource `json:"source"`
	RowCount int         `json:"row_count"`
	Note     string      `json:"note,omitempty"`
}

// MonthEnd returns the last day of t's month at UTC midnight.
func MonthEnd(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// IsMonthEnd reports whether t is a month-end date at UTC midnight.
func IsMonthEnd(t time.Time) bool {
	return t.Equal(MonthEnd(t))
}

// AddMonths returns the month-end date n months after the month of t.
// Month arithmetic on month-end dates must not drift (for example
// Jan 31 + 1 month is Feb 28/29, not Mar 2), so the month is advanced
// first and the end-of-month is recomputed.
func AddMonths(t time.Time, n int) time.Time {
	y, m, _ := t.UTC().Date()
	return MonthEnd(time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC))
}

// MonthsBetween returns the number of whole months from a to b
// (both month-end dates); negative when b precedes a.
func MonthsBetween(a, b time.Time) int {
	ay, am, _ := a.UTC().Date()
	by, bm, _ := b.UTC().Date()
	return (by-ay)*12 + int(bm-am)
}
