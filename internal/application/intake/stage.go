// Package intake runs uploaded medical documents through text extraction,
// summarization and medication extraction, and persists the outcome. The
// Orchestrator is the single entry point used by the worker and the CLI.
package intake

// StageStatus is the outcome of one stage execution.
type StageStatus string

const (
	StatusCompleted StageStatus = "completed"
	StatusFailed    StageStatus = "failed"
)

// ReasonCode classifies failures for callers.
type ReasonCode string

const (
	ReasonNone            ReasonCode = "none"
	ReasonInvalidInput    ReasonCode = "invalid_input"
	ReasonProcessingError ReasonCode = "processing_error"
)

// StageResult is either a completed result carrying Output or a failed one
// carrying Reason and Err.
type StageResult[T any] struct {
	Status StageStatus
	Output T
	Reason ReasonCode
	Err    error
}

// OK reports whether the stage completed.
func (r StageResult[T]) OK() bool { return r.Status == StatusCompleted }

func completed[T any](out T) StageResult[T] {
	return StageResult[T]{Status: StatusCompleted, Output: out, Reason: ReasonNone}
}

func failed[T any](reason ReasonCode, err error) StageResult[T] {
	return StageResult[T]{Status: StatusFailed, Reason: reason, Err: err}
}
