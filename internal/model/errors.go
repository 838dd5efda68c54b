package model

import "fmt"

// LineageError is an ordering or consistency violation in the append-only
// lineage. It always fails closed: the offending write is rejected and the
// store is left untouched.
type LineageError struct {
	Op     string
	Reason string
}

func (e *LineageError) Error() string {
	return fmt.Sprintf("lineage: %s: %s", e.Op, e.Reason)
}

// ContractError is a schema or validation failure that fails the affected
// batch under strict mode.
type ContractError struct {
	Reason string
}

func (e *ContractError) Error() string {
	return "contract: " + e.Reason
}

// ModelFitError is a model failure isolated to a single model and origin.
// It never aborts other models or origins.
type ModelFitError struct {
	ModelID string
	Reason  string
}

func (e *ModelFitError) Error() string {
	return fmt.Sprintf("model %s: fit: %s", e.ModelID, e.Reason)
}

// InsufficientHistoryError reports a training window shorter than a model's
// minimum requirement.
type InsufficientHistoryError struct {
	ModelID string
	Need    int
	Have    int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("model %s: insufficient history: need %d months, have %d", e.ModelID, e.Need, e.Have)
}
