package quiz

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/db"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordedEvent struct{ typ, key string }

type fakeSink struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeSink) Append(_ context.Context, typ, key string, _ any) error {
	f.mu.Lock()
	f.events = append(f.events, recordedEvent{typ, key})
	f.mu.Unlock()
	return nil
}

func (f *fakeSink) count(typ string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.typ == typ {
			n++
		}
	}
	return n
}

var admin = Viewer{ID: "admin-1", Admin: true}

func newTestService(t *testing.T) (*Service, *fakeClock, *fakeSink) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "quiz.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })

	clock := &fakeClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	sink := &fakeSink{}
	svc := NewService(NewSQLStore(dbh, "sqlite"), sink, WithClock(clock.Now), WithSubmitGrace(10*time.Second))
	return svc, clock, sink
}

func sampleQuestions() []Question {
	return []Question{
		{Text: "2+2?", OptionA: "3", OptionB: "4", OptionC: "5", OptionD: "22", CorrectOption: "b", Marks: 2},
		{Text: "Capital of France?", OptionA: "Paris", OptionB: "Rome", OptionC: "Oslo", OptionD: "Bern", CorrectOption: "A", Marks: 3},
		{Text: "Largest planet?", OptionA: "Mars", OptionB: "Venus", OptionC: "Jupiter", OptionD: "Earth", CorrectOption: "C", Marks: 5, Explanation: "By mass and radius."},
	}
}

func publishedQuiz(t *testing.T, svc *Service, totalMarks int) (Quiz, []Question) {
	t.Helper()
	ctx := context.Background()
	q, err := svc.CreateQuiz(ctx, admin.ID, Quiz{Title: "General knowledge", TimeLimit: 10, TotalMarks: totalMarks}, sampleQuestions())
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if q.IsPublished || !q.IsActive || q.Subject != "General" {
		t.Fatalf("new quiz defaults wrong: %+v", q)
	}
	if _, err := svc.SetPublished(ctx, q.ID, true); err != nil {
		t.Fatalf("publish: %v", err)
	}
	qs, err := svc.Questions(ctx, admin, q.ID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	return q, qs
}

func TestCreateQuizValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CreateQuiz(context.Background(), admin.ID, Quiz{Title: "  ", TimeLimit: 0}, []Question{
		{Text: "x", OptionA: "a", OptionB: "b", OptionC: "", OptionD: "d", CorrectOption: "Z"},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Problems) != 4 {
		t.Fatalf("problems = %v", verr.Problems)
	}
}

func TestStudentsOnlySeePublishedQuizzes(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	student := Viewer{ID: "stu-1"}

	draft, err := svc.CreateQuiz(ctx, admin.ID, Quiz{Title: "Draft", TimeLimit: 5}, sampleQuestions())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	pub, _ := publishedQuiz(t, svc, 10)

	list, err := svc.ListQuizzes(ctx, student, ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != pub.ID || list[0].QuestionCount != 3 {
		t.Fatalf("student list = %+v", list)
	}
	all, _ := svc.ListQuizzes(ctx, admin, ListOpts{})
	if len(all) != 2 {
		t.Fatalf("admin list = %d quizzes", len(all))
	}
	if _, err := svc.GetQuiz(ctx, student, draft.ID); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("draft visible to student: %v", err)
	}
	qs, err := svc.Questions(ctx, student, pub.ID)
	if err != nil {
		t.Fatalf("student questions: %v", err)
	}
	for _, q := range qs {
		if q.CorrectOption != "" || q.Explanation != "" {
			t.Fatalf("answer key leaked: %+v", q)
		}
	}
	if qs[0].Order != 1 || qs[2].Order != 3 {
		t.Fatalf("questions out of order: %+v", qs)
	}
}

func TestAttemptLifecycle(t *testing.T) {
	svc, clock, sink := newTestService(t)
	ctx := context.Background()
	q, qs := publishedQuiz(t, svc, 10)

	start, err := svc.StartAttempt(ctx, "stu-1", q.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if start.Status != StatusInProgress || start.Timer == nil || start.Timer.RemainingSeconds != 600 {
		t.Fatalf("start view = %+v", start)
	}

	clock.Advance(time.Minute)
	// change of mind on q1; q2 wrong; q3 right
	if _, err := svc.SaveAnswers(ctx, "stu-1", start.ID, []AnswerInput{
		{QuestionID: qs[0].ID, SelectedOption: "a"},
		{QuestionID: qs[1].ID, SelectedOption: "B"},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := svc.SaveAnswers(ctx, "stu-1", start.ID, []AnswerInput{{QuestionID: qs[0].ID, SelectedOption: "B"}}); err != nil {
		t.Fatalf("save again: %v", err)
	}

	if _, err := svc.SaveAnswers(ctx, "stu-2", start.ID, nil); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("foreign save err = %v", err)
	}

	clock.Advance(2 * time.Minute)
	done, err := svc.Submit(ctx, "stu-1", start.ID, []AnswerInput{{QuestionID: qs[2].ID, SelectedOption: "c"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if done.Status != StatusCompleted || done.Score != 7 || done.Percentage != 70 {
		t.Fatalf("completed attempt = %+v", done.Attempt)
	}
	if done.TimeTaken != 180 || done.Timer != nil || done.CompletedAt == nil {
		t.Fatalf("timing = %+v", done)
	}

	again, err := svc.Submit(ctx, "stu-1", start.ID, []AnswerInput{{QuestionID: qs[1].ID, SelectedOption: "A"}})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if again.Score != 7 {
		t.Fatalf("resubmit changed score: %d", again.Score)
	}
	if _, err := svc.SaveAnswers(ctx, "stu-1", start.ID, nil); !errors.Is(err, ErrAttemptCompleted) {
		t.Fatalf("save after completion err = %v", err)
	}

	review, err := svc.Review(ctx, Viewer{ID: "stu-1"}, start.ID)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if review.CorrectCount != 2 || review.TotalQuestions != 3 || review.Grade != "B" {
		t.Fatalf("review = %+v", review)
	}
	if it := review.Items[1]; it.IsCorrect || it.SelectedOption != "B" || it.Question.CorrectOption != "A" {
		t.Fatalf("review item = %+v", it)
	}
	if sink.count("AttemptCompleted") != 1 || sink.count("AttemptStarted") != 1 {
		t.Fatalf("events = %+v", sink.events)
	}
}

func TestPercentageUsesQuizTotalMarks(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	q, qs := publishedQuiz(t, svc, 20)
	if _, err := svc.UpdateQuiz(ctx, q.ID, QuizPatch{TotalMarks: intPtr(-1)}); err == nil {
		t.Fatalf("negative total marks should be rejected")
	}

	a, _ := svc.StartAttempt(ctx, "stu-1", q.ID)
	done, err := svc.Submit(ctx, "stu-1", a.ID, []AnswerInput{{QuestionID: qs[2].ID, SelectedOption: "C"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if done.Score != 5 || done.Percentage != 25 {
		t.Fatalf("score/percentage = %d/%v, want 5/25", done.Score, done.Percentage)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	q, qs := publishedQuiz(t, svc, 10)
	a, _ := svc.StartAttempt(ctx, "stu-1", q.ID)

	if _, err := svc.Submit(ctx, "stu-1", a.ID, []AnswerInput{{QuestionID: "nope", SelectedOption: "A"}}); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("unknown question err = %v", err)
	}
	if _, err := svc.SaveAnswers(ctx, "stu-1", a.ID, []AnswerInput{{QuestionID: qs[0].ID, SelectedOption: "E"}}); !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("invalid option err = %v", err)
	}
	if _, err := svc.Review(ctx, Viewer{ID: "stu-1"}, a.ID); !errors.Is(err, ErrAttemptOpen) {
		t.Fatalf("review of open attempt err = %v", err)
	}
}

func TestStartAttemptRules(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()

	draft, _ := svc.CreateQuiz(ctx, admin.ID, Quiz{Title: "Draft", TimeLimit: 5}, sampleQuestions())
	if _, err := svc.StartAttempt(ctx, "stu-1", draft.ID); !errors.Is(err, ErrQuizUnavailable) {
		t.Fatalf("unpublished start err = %v", err)
	}
	empty, _ := svc.CreateQuiz(ctx, admin.ID, Quiz{Title: "Empty", TimeLimit: 5}, nil)
	svc.SetPublished(ctx, empty.ID, true)
	if _, err := svc.StartAttempt(ctx, "stu-1", empty.ID); !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("empty quiz start err = %v", err)
	}

	q, _ := publishedQuiz(t, svc, 10)
	first, _ := svc.StartAttempt(ctx, "stu-1", q.ID)
	clock.Advance(2 * time.Minute)
	resumed, err := svc.StartAttempt(ctx, "stu-1", q.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !resumed.Resumed || resumed.ID != first.ID || resumed.Timer.RemainingSeconds != 480 {
		t.Fatalf("resume view = %+v", resumed)
	}

	clock.Advance(20 * time.Minute)
	fresh, err := svc.StartAttempt(ctx, "stu-1", q.ID)
	if err != nil {
		t.Fatalf("fresh start: %v", err)
	}
	if fresh.ID == first.ID || fresh.Resumed {
		t.Fatalf("expired attempt was resumed")
	}
	old, _ := svc.GetAttempt(ctx, admin, first.ID)
	if old.Status != StatusCompleted || old.TimeTaken != 600 {
		t.Fatalf("stale attempt not closed: %+v", old.Attempt)
	}
}

func TestTimeExpiryAndSweeper(t *testing.T) {
	svc, clock, sink := newTestService(t)
	ctx := context.Background()
	q, qs := publishedQuiz(t, svc, 10)

	a, _ := svc.StartAttempt(ctx, "stu-1", q.ID)
	if _, err := svc.SaveAnswers(ctx, "stu-1", a.ID, []AnswerInput{{QuestionID: qs[1].ID, SelectedOption: "A"}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	clock.Advance(10*time.Minute + time.Second)
	if _, err := svc.SaveAnswers(ctx, "stu-1", a.ID, []AnswerInput{{QuestionID: qs[0].ID, SelectedOption: "B"}}); !errors.Is(err, ErrTimeExpired) {
		t.Fatalf("late save err = %v", err)
	}
	// still inside grace: nothing to sweep
	if n, err := svc.AutoSubmitExpired(ctx); err != nil || n != 0 {
		t.Fatalf("sweep in grace = (%d,%v)", n, err)
	}

	clock.Advance(time.Minute)
	n, err := svc.AutoSubmitExpired(ctx)
	if err != nil || n != 1 {
		t.Fatalf("sweep = (%d,%v)", n, err)
	}
	got, _ := svc.GetAttempt(ctx, Viewer{ID: "stu-1"}, a.ID)
	if got.Status != StatusCompleted || got.Score != 3 || got.TimeTaken != 600 {
		t.Fatalf("auto-submitted attempt = %+v", got.Attempt)
	}
	if sink.count("AttemptAutoSubmitted") != 1 {
		t.Fatalf("missing auto-submit event")
	}
	if n, _ := svc.AutoSubmitExpired(ctx); n != 0 {
		t.Fatalf("second sweep submitted %d", n)
	}
}

func TestSaveAllowedUntilDeadline(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	q, qs := publishedQuiz(t, svc, 10)
	a, _ := svc.StartAttempt(ctx, "stu-1", q.ID)

	clock.Advance(10*time.Minute - 500*time.Millisecond)
	v, err := svc.SaveAnswers(ctx, "stu-1", a.ID, []AnswerInput{{QuestionID: qs[0].ID, SelectedOption: "B"}})
	if err != nil {
		t.Fatalf("save in final second: %v", err)
	}
	if v.Timer.RemainingSeconds != 0 || v.Timer.Expired {
		t.Fatalf("timer = %+v", v.Timer)
	}
	clock.Advance(500 * time.Millisecond)
	if _, err := svc.SaveAnswers(ctx, "stu-1", a.ID, nil); !errors.Is(err, ErrTimeExpired) {
		t.Fatalf("save at deadline err = %v", err)
	}
}

// staleOpenStore replays a snapshot of open attempts taken before a
// student's own submit landed.
type staleOpenStore struct {
	*SQLStore
	stale []OpenAttempt
}

func (s *staleOpenStore) OpenAttemptsStartedBefore(context.Context, time.Time) ([]OpenAttempt, error) {
	return s.stale, nil
}

func TestSweeperSkipsAttemptSubmittedConcurrently(t *testing.T) {
	svc, clock, sink := newTestService(t)
	ctx := context.Background()
	q, qs := publishedQuiz(t, svc, 10)
	a, _ := svc.StartAttempt(ctx, "stu-1", q.ID)

	clock.Advance(11 * time.Minute)
	sqlStore := svc.store.(*SQLStore)
	open, err := sqlStore.OpenAttemptsStartedBefore(ctx, clock.Now())
	if err != nil || len(open) != 1 {
		t.Fatalf("open attempts = (%v,%v)", open, err)
	}
	done, err := svc.Submit(ctx, "stu-1", a.ID, []AnswerInput{{QuestionID: qs[0].ID, SelectedOption: "B"}})
	if err != nil || done.Score != 2 {
		t.Fatalf("submit = (%+v,%v)", done.Attempt, err)
	}

	svc.store = &staleOpenStore{SQLStore: sqlStore, stale: open}
	n, err := svc.AutoSubmitExpired(ctx)
	if err != nil || n != 0 {
		t.Fatalf("sweep = (%d,%v)", n, err)
	}
	if sink.count("AttemptAutoSubmitted") != 0 || sink.count("AttemptCompleted") != 1 {
		t.Fatalf("events = %+v", sink.events)
	}
	got, _ := svc.GetAttempt(ctx, admin, a.ID)
	if got.Score != 2 {
		t.Fatalf("student result overwritten: %+v", got.Attempt)
	}
}

func TestHistoryAndQuizResults(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	q, qs := publishedQuiz(t, svc, 10)

	take := func(student string, picks ...string) {
		a, err := svc.StartAttempt(ctx, student, q.ID)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		var in []AnswerInput
		for i, p := range picks {
			in = append(in, AnswerInput{QuestionID: qs[i].ID, SelectedOption: p})
		}
		clock.Advance(time.Minute)
		if _, err := svc.Submit(ctx, student, a.ID, in); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	take("stu-1", "B", "A", "C") // 10 -> 100%
	take("stu-1", "A", "A")      // 3 -> 30%
	take("stu-2", "B", "B", "C") // 7 -> 70%

	h, err := svc.History(ctx, "stu-1", 0, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(h.Attempts) != 2 || h.Attempts[0].Percentage != 30 || h.Attempts[0].QuizTitle != "General knowledge" {
		t.Fatalf("history = %+v", h.Attempts)
	}
	if h.Summary.Average != 65 || h.Summary.Highest != 100 {
		t.Fatalf("history summary = %+v", h.Summary)
	}
	// the summary covers every completed attempt, not just the page
	page, err := svc.History(ctx, "stu-1", 1, 1)
	if err != nil {
		t.Fatalf("history page: %v", err)
	}
	if len(page.Attempts) != 1 || page.Attempts[0].Percentage != 100 {
		t.Fatalf("history page = %+v", page.Attempts)
	}
	if page.Summary.Attempts != 2 || page.Summary.Average != 65 || page.Summary.Lowest != 30 {
		t.Fatalf("paged history summary = %+v", page.Summary)
	}

	res, err := svc.QuizResults(ctx, q.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if res.Summary.Attempts != 3 || res.Summary.Lowest != 30 {
		t.Fatalf("results summary = %+v", res.Summary)
	}
	grades := map[float64]string{}
	for _, r := range res.Results {
		grades[r.Percentage] = r.Grade
	}
	if grades[100] != "A" || grades[70] != "B" || grades[30] != "F" {
		t.Fatalf("grades = %v", grades)
	}
}

func TestDeleteQuizCascades(t *testing.T) {
	svc, _, sink := newTestService(t)
	ctx := context.Background()
	q, qs := publishedQuiz(t, svc, 10)
	a, _ := svc.StartAttempt(ctx, "stu-1", q.ID)
	svc.Submit(ctx, "stu-1", a.ID, []AnswerInput{{QuestionID: qs[0].ID, SelectedOption: "B"}})

	if err := svc.DeleteQuiz(ctx, q.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetQuiz(ctx, admin, q.ID); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("quiz still there: %v", err)
	}
	if _, err := svc.GetAttempt(ctx, admin, a.ID); !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("attempt still there: %v", err)
	}
	if err := svc.DeleteQuiz(ctx, q.ID); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
	if sink.count("QuizDeleted") != 1 || sink.count("QuizPublished") != 1 {
		t.Fatalf("events = %+v", sink.events)
	}
}

func TestQuestionEditing(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	q, qs := publishedQuiz(t, svc, 10)

	added, err := svc.AddQuestions(ctx, q.ID, []Question{
		{Text: "Boiling point of water (C)?", OptionA: "90", OptionB: "100", OptionC: "110", OptionD: "120", CorrectOption: "B"},
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if added[0].Order != 4 || added[0].Marks != 1 {
		t.Fatalf("added = %+v", added[0])
	}

	upd, err := svc.UpdateQuestion(ctx, qs[0].ID, QuestionPatch{CorrectOption: strPtr("d"), Marks: intPtr(4)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.CorrectOption != "D" || upd.Marks != 4 || upd.Text != "2+2?" {
		t.Fatalf("updated = %+v", upd)
	}
	if _, err := svc.UpdateQuestion(ctx, qs[0].ID, QuestionPatch{OptionA: strPtr(" ")}); err == nil {
		t.Fatalf("blank option should fail validation")
	}
	a, err := svc.StartAttempt(ctx, "stu-1", q.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.SaveAnswers(ctx, "stu-1", a.ID, []AnswerInput{
		{QuestionID: qs[0].ID, SelectedOption: "D"},
		{QuestionID: qs[1].ID, SelectedOption: "A"},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := svc.DeleteQuestion(ctx, qs[1].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetQuestion(ctx, qs[1].ID); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("deleted question err = %v", err)
	}
	answers, err := svc.Answers(ctx, Viewer{ID: "stu-1"}, a.ID)
	if err != nil {
		t.Fatalf("answers: %v", err)
	}
	if len(answers) != 1 || answers[0].QuestionID != qs[0].ID {
		t.Fatalf("answers after delete = %+v", answers)
	}
	if err := svc.DeleteQuestion(ctx, qs[1].ID); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("second delete err = %v", err)
	}
	if _, err := svc.AddQuestions(ctx, "missing", sampleQuestions()); !errors.Is(err, ErrQuizNotFound) {
		t.Fatalf("add to missing quiz err = %v", err)
	}
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
