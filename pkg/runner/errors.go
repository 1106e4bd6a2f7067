package runner

import "fmt"

// StepBudgetExceededError marks a run that hit its step ceiling while the
// model still wanted tools. Soft: the controller forces a truncated final
// answer instead of failing the run.
type StepBudgetExceededError struct {
	Limit int
}

func (e *StepBudgetExceededError) Error() string {
	return fmt.Sprintf("step budget of %d exhausted", e.Limit)
}

// CancellationError marks a run stopped by its cancellation handle.
type CancellationError struct {
	Stage string
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("run cancelled during %s", e.Stage)
}
