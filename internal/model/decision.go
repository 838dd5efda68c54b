package model

import "time"

// ToleranceStatus is the outcome of one period's tolerance comparison.
type ToleranceStatus string

const (
	TolerancePass      ToleranceStatus = "PASS"
	ToleranceFail      ToleranceStatus = "FAIL"
	ToleranceUndefined ToleranceStatus = "UNDEFINED" // reference value was zero
)

// ToleranceResult compares one overlapping period of a new vintage against
// the last published vintage.
type ToleranceResult struct {
	Period       time.Time       `json:"period"`
	Actual       float64         `json:"actual"`
	Reference    float64         `json:"reference"`
	PercentDelta float64         `json:"percent_delta"`
	Status       ToleranceStatus `json:"status"`
}

// Pass reports whether the result is within the band. UNDEFINED is not a
// pass: a zero reference gives no evidence the vintages are consistent.
func (r ToleranceResult) Pass() bool {
	return r.Status == TolerancePass
}

// PublishStatus is the terminal state of a batch's publish decision.
type PublishStatus string

const (
	StatusPublished   PublishStatus = "PUBLISHED"
	StatusProvisional PublishStatus = "PROVISIONAL"
	StatusBlocked     PublishStatus = "BLOCKED"
)

// PublishDecision is computed once per batch and never revised. Reasons
// enumerate every contributing cause so an operator can triage without
// rerunning the pipeline.
type PublishDecision struct {
	BatchID string        `json:"batch_id"`
	Status  PublishStatus `json:"status"`
	Reasons []string      `json:"reasons,omitempty"`
}

// Authoritative reports whether downstream consumers may treat the batch's
// vintage as published truth.
func (d PublishDecision) Authoritative() bool {
	return d.Status == StatusPublished
}
