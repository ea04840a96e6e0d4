package quiz

import (
	"context"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

// Store is the row-level persistence the service orchestrates.
type Store interface {
	CreateQuiz(ctx context.Context, q Quiz, questions []Question) (Quiz, error)
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	ListQuizzes(ctx context.Context, opts ListOpts) ([]Quiz, error)
	UpdateQuiz(ctx context.Context, q Quiz) (Quiz, error)
	DeleteQuiz(ctx context.Context, id string) error

	CreateQuestions(ctx context.Context, quizID string, qs []Question) ([]Question, error)
	ListQuestions(ctx context.Context, quizID string) ([]Question, error)
	GetQuestion(ctx context.Context, id string) (Question, error)
	UpdateQuestion(ctx context.Context, q Question) (Question, error)
	DeleteQuestion(ctx context.Context, id string) error

	StartAttempt(ctx context.Context, studentID, quizID string, at time.Time) (Attempt, error)
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	FindOpenAttempt(ctx context.Context, studentID, quizID string) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
	// SummarizeCompleted aggregates completed attempts; empty filters match all.
	SummarizeCompleted(ctx context.Context, quizID, studentID string) (grading.Summary, error)
	// CompleteAttempt reports false when another caller already completed it.
	CompleteAttempt(ctx context.Context, a Attempt, graded []GradedAnswer) (bool, error)
	// OpenAttemptsStartedBefore lists in_progress attempts with their quiz time limit.
	OpenAttemptsStartedBefore(ctx context.Context, before time.Time) ([]OpenAttempt, error)

	SaveAnswers(ctx context.Context, attemptID string, in []AnswerInput, at time.Time) error
	ListAnswers(ctx context.Context, attemptID string) ([]Answer, error)
}

// OpenAttempt pairs an in-progress attempt with its quiz limit for expiry checks.
type OpenAttempt struct {
	Attempt   Attempt
	TimeLimit int // minutes
}

// EventSink records domain events; the event log implements it.
type EventSink interface {
	Append(ctx context.Context, typ, key string, data any) error
}

type nopSink struct{}

func (nopSink) Append(context.Context, string, string, any) error { return nil }
