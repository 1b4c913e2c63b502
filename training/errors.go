package training

import "fmt"

// InvalidConfigurationError reports bad hyperparameters. It is raised before
// any training pass executes.
type InvalidConfigurationError struct {
	Field   string
	Message string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

// EmptyDatasetError reports that a required data split yields zero batches,
// so no aggregate score is defined over it.
type EmptyDatasetError struct {
	Split string
}

func (e *EmptyDatasetError) Error() string {
	return fmt.Sprintf("empty dataset: %s split has no batches", e.Split)
}

// NumericInstabilityWarning records a NaN or Inf validation score. It is
// non-fatal: training continues, the score is logged and never treated as an
// improvement.
type NumericInstabilityWarning struct {
	Pass  int
	Score float64
}

func (e *NumericInstabilityWarning) Error() string {
	return fmt.Sprintf("numeric instability at pass %d: validation score %v", e.Pass, e.Score)
}
