package quiz

import (
	"errors"
	"strings"
)

var (
	ErrQuizNotFound     = errors.New("quiz not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrQuizUnavailable  = errors.New("quiz is not available")
	ErrNoQuestions      = errors.New("quiz has no questions")
	ErrAttemptCompleted = errors.New("attempt already completed")
	ErrAttemptOpen      = errors.New("attempt is still in progress")
	ErrTimeExpired      = errors.New("time limit exceeded")
	ErrUnknownQuestion  = errors.New("question does not belong to this quiz")
	ErrInvalidOption    = errors.New("selected option must be one of A, B, C, D")
	ErrNotOwner         = errors.New("attempt belongs to another student")
)

// ValidationError lists every problem found in an authoring request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func (e *ValidationError) add(msg string) { e.Problems = append(e.Problems, msg) }

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}
