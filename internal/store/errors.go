package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no row matches the requested ID.
	ErrNotFound = errors.New("not found")
	// ErrEmptyText is returned when a text field is empty after normalization.
	ErrEmptyText = errors.New("text is empty")
	// ErrInvalidWindow is returned when an evaluation ends before it starts.
	ErrInvalidWindow = errors.New("evaluation ends before it starts")
	// ErrQuestionNotInEvaluation is returned by a reorder naming a question
	// that does not exist or belongs to another evaluation.
	ErrQuestionNotInEvaluation = errors.New("question does not belong to evaluation")
	// ErrDuplicateQuestion is returned by a reorder listing a question twice.
	ErrDuplicateQuestion = errors.New("question listed more than once")
	// ErrEvaluationHasQuestions is returned when deleting an evaluation that
	// still owns questions.
	ErrEvaluationHasQuestions = errors.New("evaluation still has questions")
)

// ConnectionError reports a failure to reach the database.
type ConnectionError struct {
	Driver string
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s %s: %v", e.Driver, e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// BatchError reports a failed multi-row transactional operation. Nothing
// written by the operation is kept when a BatchError is returned.
type BatchError struct {
	Op string
	// Index is the position of the failing item in the input, or -1 when the
	// failure is not tied to one item (begin, commit, prepare).
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: item %d: %v", e.Op, e.Index, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

func itemError(index int, err error) error {
	return &BatchError{Index: index, Err: err}
}
