// Package contract turns raw ingestion records into typed Observations.
// Validation is pure: the only side effect is the reject report returned
// alongside the accepted rows.
package contract

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/fueltracker/internal/model"
)

// RejectReason classifies why a raw record was rejected.
type RejectReason string

const (
	RejectMissingField   RejectReason = "MissingField"
	RejectTypeMismatch   RejectReason = "TypeMismatch"
	RejectRangeViolation RejectReason = "RangeViolation"
	RejectDateAlignment  RejectReason = "DateAlignment"
)

// RawRecord is one untyped observation as handed over by the ingestion
// adapter. Period and Value arrive as strings so that type errors surface
// here instead of in the adapter.
type RawRecord struct {
	Period    string   `yaml:"period" json:"period"`
	Value     *float64 `yaml:"value" json:"value"`
	Metric    string   `yaml:"metric" json:"metric"`
	SourceTag string   `yaml:"source_tag" json:"source_tag"`
	HDD       *float64 `yaml:"hdd" json:"hdd,omitempty"`
	CDD       *float64 `yaml:"cdd" json:"cdd,omitempty"`
	Price     *float64 `yaml:"price" json:"price,omitempty"`
}

// Reject records one rejected raw record.
type Reject struct {
	Index  int          `json:"index"`
	Reason RejectReason `json:"reason"`
	Detail string       `json:"detail"`
}

// Report summarizes a batch validation.
type Report struct {
	Accepted int      `json:"accepted"`
	Rejects  []Reject `json:"rejects,omitempty"`
}

// RejectRate returns the fraction of records rejected, in [0, 1].
func (r Report) RejectRate() float64 {
	total := r.Accepted + len(r.Rejects)
	if total == 0 {
		return 0
	}
	return float64(len(r.Rejects)) / float64(total)
}

// Validator applies the observation contract to raw records.
type Validator struct {
	// Strict aborts the whole batch when the reject rate exceeds
	// MaxRejectRate. The default policy accepts the batch with a reject
	// report attached.
	Strict        bool
	MaxRejectRate float64
}

// periodLayouts accepted for raw period strings. YYYY-MM is normalized to
// its month-end.
var periodLayouts = []string{"2006-01-02", "2006-01"}

// Validate converts one raw record into an Observation or returns the
// reject reason.
func (v *Validator) Validate(raw RawRecord) (model.Observation, *Reject) {
	if raw.Period == "" {
		return model.Observation{}, &Reject{Reason: RejectMissingField, Detail: "period is required"}
	}
	if raw.Value == nil {
		return model.Observation{}, &Reject{Reason: RejectMissingField, Detail: "value is required"}
	}

	period, err := parsePeriod(raw.Period)
	if err != nil {
		return model.Observation{}, &Reject{Reason: RejectTypeMismatch, Detail: err.Error()}
	}
	if !model.IsMonthEnd(period) {
		return model.Observation{}, &Reject{
			Reason: RejectDateAlignment,
			Detail: fmt.Sprintf("period %s is not a month-end date", period.Format("2006-01-02")),
		}
	}
	if *raw.Value < 0 {
		return model.Observation{}, &Reject{
			Reason: RejectRangeViolation,
			Detail: fmt.Sprintf("value %g is negative", *raw.Value),
		}
	}

	metric := raw.Metric
	if metric == "" {
		metric = model.MetricFuel
	}

	return model.Observation{
		Period: period,
		Metric: metric,
		Value:  *raw.Value,
		HDD:    raw.HDD,
		CDD:    raw.CDD,
		Price:  raw.Price,
	}, nil
}

// ValidateBatch validates an ordered sequence of raw records. Under the
// default policy the accepted rows are returned together with the reject
// report; under strict mode a reject rate above MaxRejectRate fails the
// whole batch with a ContractError.
func (v *Validator) ValidateBatch(raws []RawRecord) ([]model.Observation, Report, error) {
	obs := make([]model.Observation, 0, len(raws))
	report := Report{}

	for i, raw := range raws {
		o, rej := v.Validate(raw)
		if rej != nil {
			rej.Index = i
			report.Rejects = append(report.Rejects, *rej)
			continue
		}
		obs = append(obs, o)
	}
	report.Accepted = len(obs)

	if len(report.Rejects) > 0 {
		zap.L().Warn("batch validation rejected records",
			zap.Int("accepted", report.Accepted),
			zap.Int("rejected", len(report.Rejects)),
			zap.Float64("reject_rate", report.RejectRate()),
		)
	}

	if v.Strict && report.RejectRate() > v.MaxRejectRate {
		return nil, report, &model.ContractError{
			Reason: fmt.Sprintf("reject rate %.2f exceeds maximum %.2f (%d of %d records)",
				report.RejectRate(), v.MaxRejectRate, len(report.Rejects), len(raws)),
		}
	}

	return obs, report, nil
}

func parsePeriod(s string) (time.Time, error) {
	for _, layout := range periodLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if layout == "2006-01" {
			return model.MonthEnd(t), nil
		}
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("period %q is not a YYYY-MM or YYYY-MM-DD date", s)
}
