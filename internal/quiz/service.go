package quiz

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

// Viewer identifies the caller for visibility and ownership checks.
type Viewer struct {
	ID    string
	Admin bool // may see unpublished quizzes and every attempt
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithSubmitGrace delays auto-submission past the deadline so in-flight
// client submits win the race.
func WithSubmitGrace(d time.Duration) Option { return func(s *Service) { s.grace = d } }

type Service struct {
	store  Store
	events EventSink
	now    func() time.Time
	grace  time.Duration
}

func NewService(store Store, events EventSink, opts ...Option) *Service {
	if events == nil {
		events = nopSink{}
	}
	s := &Service{store: store, events: events, now: time.Now, grace: 15 * time.Second}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ---- quizzes ----

// CreateQuiz stores a new unpublished quiz and, optionally, its questions.
func (s *Service) CreateQuiz(ctx context.Context, authorID string, q Quiz, questions []Question) (Quiz, error) {
	verr := &ValidationError{}
	if err := normalizeQuiz(&q); err != nil {
		verr.Problems = append(verr.Problems, err.(*ValidationError).Problems...)
	}
	if err := normalizeQuestions(questions); err != nil {
		verr.Problems = append(verr.Problems, err.(*ValidationError).Problems...)
	}
	if err := verr.orNil(); err != nil {
		return Quiz{}, err
	}
	q.ID = ""
	q.CreatedBy = authorID
	q.IsPublished = false
	q.IsActive = true

	created, err := s.store.CreateQuiz(ctx, q, questions)
	if err != nil {
		return Quiz{}, fmt.Errorf("create quiz: %w", err)
	}
	s.emit(ctx, "QuizCreated", created.ID, map[string]any{"title": created.Title, "questions": len(questions), "by": authorID})
	return created, nil
}

func (s *Service) GetQuiz(ctx context.Context, v Viewer, id string) (Quiz, error) {
	q, err := s.store.GetQuiz(ctx, id)
	if err != nil {
		return Quiz{}, err
	}
	if !v.Admin && !(q.IsPublished && q.IsActive) {
		return Quiz{}, ErrQuizNotFound
	}
	return q, nil
}

// ListQuizzes returns every quiz to admins and only published, active quizzes to students.
func (s *Service) ListQuizzes(ctx context.Context, v Viewer, opts ListOpts) ([]Quiz, error) {
	if !v.Admin {
		opts.PublishedOnly = true
		opts.CreatedBy = ""
	}
	return s.store.ListQuizzes(ctx, opts)
}

func (s *Service) UpdateQuiz(ctx context.Context, id string, patch QuizPatch) (Quiz, error) {
	q, err := s.store.GetQuiz(ctx, id)
	if err != nil {
		return Quiz{}, err
	}
	wasPublished := q.IsPublished
	patch.apply(&q)
	if err := normalizeQuiz(&q); err != nil {
		return Quiz{}, err
	}
	updated, err := s.store.UpdateQuiz(ctx, q)
	if err != nil {
		return Quiz{}, err
	}
	if updated.IsPublished != wasPublished {
		s.emitPublish(ctx, updated)
	}
	return updated, nil
}

func (s *Service) SetPublished(ctx context.Context, id string, published bool) (Quiz, error) {
	return s.UpdateQuiz(ctx, id, QuizPatch{IsPublished: &published})
}

func (s *Service) DeleteQuiz(ctx context.Context, id string) error {
	if err := s.store.DeleteQuiz(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, "QuizDeleted", id, nil)
	return nil
}

func (s *Service) emitPublish(ctx context.Context, q Quiz) {
	typ := "QuizUnpublished"
	if q.IsPublished {
		typ = "QuizPublished"
	}
	s.emit(ctx, typ, q.ID, map[string]any{"title": q.Title})
}

// ---- questions ----

func (s *Service) AddQuestions(ctx context.Context, quizID string, qs []Question) ([]Question, error) {
	if len(qs) == 0 {
		return nil, &ValidationError{Problems: []string{"at least one question is required"}}
	}
	if err := normalizeQuestions(qs); err != nil {
		return nil, err
	}
	return s.store.CreateQuestions(ctx, quizID, qs)
}

// Questions lists a quiz's questions in order; students get them without answer keys.
func (s *Service) Questions(ctx context.Context, v Viewer, quizID string) ([]Question, error) {
	if _, err := s.GetQuiz(ctx, v, quizID); err != nil {
		return nil, err
	}
	qs, err := s.store.ListQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if !v.Admin {
		for i := range qs {
			qs[i] = qs[i].Public()
		}
	}
	return qs, nil
}

func (s *Service) GetQuestion(ctx context.Context, id string) (Question, error) {
	return s.store.GetQuestion(ctx, id)
}

func (s *Service) UpdateQuestion(ctx context.Context, id string, patch QuestionPatch) (Question, error) {
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return Question{}, err
	}
	patch.apply(&q)
	if err := normalizeQuestion(&q); err != nil {
		return Question{}, err
	}
	return s.store.UpdateQuestion(ctx, q)
}

func (s *Service) DeleteQuestion(ctx context.Context, id string) error {
	return s.store.DeleteQuestion(ctx, id)
}

// ---- attempts ----

// AttemptView is an attempt plus its live timer while in progress.
type AttemptView struct {
	Attempt
	TimeLimit int        `json:"time_limit"`
	Timer     *TimerView `json:"timer,omitempty"`
	Resumed   bool       `json:"resumed,omitempty"`
}

func (s *Service) view(a Attempt, limit int) AttemptView {
	v := AttemptView{Attempt: a, TimeLimit: limit}
	if !a.Completed() {
		tv := NewCountdown(a.StartedAt, limit).View(s.now())
		v.Timer = &tv
	}
	return v
}

// StartAttempt opens an attempt for a published quiz, or resumes the
// student's unexpired open attempt on the same quiz.
func (s *Service) StartAttempt(ctx context.Context, studentID, quizID string) (AttemptView, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return AttemptView{}, err
	}
	if !q.IsPublished || !q.IsActive {
		return AttemptView{}, ErrQuizUnavailable
	}
	if q.QuestionCount == 0 {
		return AttemptView{}, ErrNoQuestions
	}

	open, err := s.store.FindOpenAttempt(ctx, studentID, quizID)
	switch {
	case err == nil:
		if !NewCountdown(open.StartedAt, q.TimeLimit).Expired(s.now()) {
			v := s.view(open, q.TimeLimit)
			v.Resumed = true
			return v, nil
		}
		// the stale one is closed before a fresh start
		if _, _, err := s.complete(ctx, open, q); err != nil {
			return AttemptView{}, err
		}
	case !errors.Is(err, ErrAttemptNotFound):
		return AttemptView{}, err
	}

	a, err := s.store.StartAttempt(ctx, studentID, quizID, s.now())
	if err != nil {
		return AttemptView{}, fmt.Errorf("start attempt: %w", err)
	}
	s.emit(ctx, "AttemptStarted", a.ID, map[string]any{"quiz_id": quizID, "student_id": studentID})
	return s.view(a, q.TimeLimit), nil
}

func (s *Service) GetAttempt(ctx context.Context, v Viewer, id string) (AttemptView, error) {
	a, q, err := s.loadOwned(ctx, v, id)
	if err != nil {
		return AttemptView{}, err
	}
	return s.view(a, q.TimeLimit), nil
}

// Answers lists the answers recorded so far for an attempt.
func (s *Service) Answers(ctx context.Context, v Viewer, id string) ([]Answer, error) {
	if _, _, err := s.loadOwned(ctx, v, id); err != nil {
		return nil, err
	}
	return s.store.ListAnswers(ctx, id)
}

// SaveAnswers records draft selections; a later selection for the same
// question replaces the earlier one.
func (s *Service) SaveAnswers(ctx context.Context, studentID, attemptID string, in []AnswerInput) (AttemptView, error) {
	a, q, err := s.loadOwned(ctx, Viewer{ID: studentID}, attemptID)
	if err != nil {
		return AttemptView{}, err
	}
	if a.Completed() {
		return AttemptView{}, ErrAttemptCompleted
	}
	if NewCountdown(a.StartedAt, q.TimeLimit).Expired(s.now()) {
		return AttemptView{}, ErrTimeExpired
	}
	clean, err := s.checkAnswers(ctx, a.QuizID, in)
	if err != nil {
		return AttemptView{}, err
	}
	if len(clean) > 0 {
		if err := s.store.SaveAnswers(ctx, a.ID, clean, s.now()); err != nil {
			return AttemptView{}, fmt.Errorf("save answers: %w", err)
		}
	}
	return s.view(a, q.TimeLimit), nil
}

// Submit grades and completes the attempt. Final answers are accepted past
// the deadline since expiry itself triggers submission. Submitting a
// completed attempt returns it unchanged.
func (s *Service) Submit(ctx context.Context, studentID, attemptID string, final []AnswerInput) (AttemptView, error) {
	a, q, err := s.loadOwned(ctx, Viewer{ID: studentID}, attemptID)
	if err != nil {
		return AttemptView{}, err
	}
	if a.Completed() {
		return s.view(a, q.TimeLimit), nil
	}
	clean, err := s.checkAnswers(ctx, a.QuizID, final)
	if err != nil {
		return AttemptView{}, err
	}
	if len(clean) > 0 {
		if err := s.store.SaveAnswers(ctx, a.ID, clean, s.now()); err != nil {
			return AttemptView{}, fmt.Errorf("save answers: %w", err)
		}
	}
	done, _, err := s.complete(ctx, a, q)
	if err != nil {
		return AttemptView{}, err
	}
	return s.view(done, q.TimeLimit), nil
}

// complete grades every stored answer and flips the attempt to completed.
// won is false when a concurrent caller completed it first; their result is
// returned.
func (s *Service) complete(ctx context.Context, a Attempt, q Quiz) (done Attempt, won bool, err error) {
	questions, err := s.store.ListQuestions(ctx, q.ID)
	if err != nil {
		return Attempt{}, false, err
	}
	answers, err := s.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return Attempt{}, false, err
	}

	keys := make([]grading.Q, 0, len(questions))
	for _, qu := range questions {
		keys = append(keys, grading.Q{ID: qu.ID, CorrectOption: qu.CorrectOption, Marks: qu.Marks})
	}
	responses := make(map[string]string, len(answers))
	for _, ans := range answers {
		responses[ans.QuestionID] = ans.SelectedOption
	}
	sheet := grading.GradeSheet(keys, responses)

	total := q.TotalMarks
	if total <= 0 {
		total = sheet.MaxMarks
	}
	now := s.now().UTC()
	taken := now.Sub(a.StartedAt)
	if limit := time.Duration(q.TimeLimit) * time.Minute; taken > limit {
		taken = limit
	}
	if taken < 0 {
		taken = 0
	}

	a.Score = sheet.Score
	a.Percentage = grading.Percentage(sheet.Score, total)
	a.TimeTaken = int(taken / time.Second)
	a.CompletedAt = &now

	graded := make([]GradedAnswer, 0, len(sheet.Results))
	for _, r := range sheet.Results {
		graded = append(graded, GradedAnswer{
			QuestionID:     r.QuestionID,
			SelectedOption: r.SelectedOption,
			IsCorrect:      r.IsCorrect,
			MarksObtained:  r.MarksObtained,
		})
	}
	won, err = s.store.CompleteAttempt(ctx, a, graded)
	if err != nil {
		return Attempt{}, false, fmt.Errorf("complete attempt: %w", err)
	}
	if won {
		s.emit(ctx, "AttemptCompleted", a.ID, map[string]any{
			"quiz_id": a.QuizID, "student_id": a.StudentID, "score": a.Score, "percentage": a.Percentage,
		})
	}
	done, err = s.store.GetAttempt(ctx, a.ID)
	return done, won, err
}

func (s *Service) checkAnswers(ctx context.Context, quizID string, in []AnswerInput) ([]AnswerInput, error) {
	if len(in) == 0 {
		return nil, nil
	}
	questions, err := s.store.ListQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		known[q.ID] = struct{}{}
	}
	// last selection per question wins
	idx := make(map[string]int, len(in))
	out := make([]AnswerInput, 0, len(in))
	for _, ans := range in {
		if _, ok := known[ans.QuestionID]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownQuestion, ans.QuestionID)
		}
		opt, ok := grading.NormalizeOption(ans.SelectedOption)
		if !ok {
			return nil, ErrInvalidOption
		}
		clean := AnswerInput{QuestionID: ans.QuestionID, SelectedOption: opt}
		if i, seen := idx[ans.QuestionID]; seen {
			out[i] = clean
			continue
		}
		idx[ans.QuestionID] = len(out)
		out = append(out, clean)
	}
	return out, nil
}

func (s *Service) loadOwned(ctx context.Context, v Viewer, attemptID string) (Attempt, Quiz, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, Quiz{}, err
	}
	if !v.Admin && a.StudentID != v.ID {
		return Attempt{}, Quiz{}, ErrNotOwner
	}
	q, err := s.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, Quiz{}, err
	}
	return a, q, nil
}

// ---- expiry ----

// AutoSubmitExpired completes open attempts whose deadline plus grace has passed.
func (s *Service) AutoSubmitExpired(ctx context.Context) (int, error) {
	now := s.now()
	// no attempt can be expired unless it started at least grace ago
	open, err := s.store.OpenAttemptsStartedBefore(ctx, now.Add(-s.grace))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, oa := range open {
		deadline := NewCountdown(oa.Attempt.StartedAt, oa.TimeLimit).Deadline
		if now.Before(deadline.Add(s.grace)) {
			continue
		}
		q, err := s.store.GetQuiz(ctx, oa.Attempt.QuizID)
		if err != nil {
			return n, err
		}
		done, won, err := s.complete(ctx, oa.Attempt, q)
		if err != nil {
			return n, err
		}
		if !won {
			continue
		}
		s.emit(ctx, "AttemptAutoSubmitted", done.ID, map[string]any{"quiz_id": done.QuizID, "student_id": done.StudentID})
		n++
	}
	return n, nil
}

// RunSweeper calls AutoSubmitExpired every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.AutoSubmitExpired(ctx)
			if err != nil && ctx.Err() == nil {
				log.Printf("sweeper: %v", err)
			}
			if n > 0 {
				log.Printf("sweeper: auto-submitted %d expired attempt(s)", n)
			}
		}
	}
}

func (s *Service) emit(ctx context.Context, typ, key string, data any) {
	if err := s.events.Append(ctx, typ, key, data); err != nil {
		log.Printf("event %s %s: %v", typ, key, err)
	}
}
