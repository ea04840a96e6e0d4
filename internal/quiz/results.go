package quiz

import (
	"context"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

type ReviewItem struct {
	Question       Question `json:"question"`
	Answered       bool     `json:"answered"`
	SelectedOption string   `json:"selected_option,omitempty"`
	IsCorrect      bool     `json:"is_correct"`
	MarksObtained  int      `json:"marks_obtained"`
}

// Review is the post-submission breakdown shown on the results page.
type Review struct {
	Attempt        Attempt      `json:"attempt"`
	Quiz           Quiz         `json:"quiz"`
	Items          []ReviewItem `json:"items"`
	CorrectCount   int          `json:"correct_count"`
	TotalQuestions int          `json:"total_questions"`
	Grade          string       `json:"grade"`
}

func (s *Service) Review(ctx context.Context, v Viewer, attemptID string) (Review, error) {
	a, q, err := s.loadOwned(ctx, v, attemptID)
	if err != nil {
		return Review{}, err
	}
	if !a.Completed() {
		return Review{}, ErrAttemptOpen
	}
	questions, err := s.store.ListQuestions(ctx, q.ID)
	if err != nil {
		return Review{}, err
	}
	answers, err := s.store.ListAnswers(ctx, a.ID)
	if err != nil {
		return Review{}, err
	}
	byQuestion := make(map[string]Answer, len(answers))
	for _, ans := range answers {
		byQuestion[ans.QuestionID] = ans
	}

	r := Review{
		Attempt:        a,
		Quiz:           q,
		Items:          make([]ReviewItem, 0, len(questions)),
		TotalQuestions: len(questions),
		Grade:          grading.Letter(a.Percentage),
	}
	for _, qu := range questions {
		item := ReviewItem{Question: qu}
		if ans, ok := byQuestion[qu.ID]; ok {
			item.Answered = true
			item.SelectedOption = ans.SelectedOption
			item.IsCorrect = ans.IsCorrect
			item.MarksObtained = ans.MarksObtained
			if ans.IsCorrect {
				r.CorrectCount++
			}
		}
		r.Items = append(r.Items, item)
	}
	return r, nil
}

type History struct {
	Attempts []Attempt       `json:"attempts"`
	Summary  grading.Summary `json:"summary"`
}

// History lists a student's completed attempts, newest first.
func (s *Service) History(ctx context.Context, studentID string, limit, offset int) (History, error) {
	list, err := s.store.ListAttempts(ctx, AttemptListOpts{
		StudentID: studentID,
		Status:    StatusCompleted,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return History{}, err
	}
	sum, err := s.store.SummarizeCompleted(ctx, "", studentID)
	if err != nil {
		return History{}, err
	}
	return History{Attempts: list, Summary: sum}, nil
}

type ResultRow struct {
	Attempt
	Grade string `json:"grade"`
}

type QuizResults struct {
	Quiz    Quiz            `json:"quiz"`
	Results []ResultRow     `json:"results"`
	Summary grading.Summary `json:"summary"`
}

// QuizResults aggregates every completed attempt on a quiz for admins.
func (s *Service) QuizResults(ctx context.Context, quizID string) (QuizResults, error) {
	q, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return QuizResults{}, err
	}
	rows := []ResultRow{}
	for offset := 0; ; offset += resultsPage {
		list, err := s.store.ListAttempts(ctx, AttemptListOpts{
			QuizID: quizID, Status: StatusCompleted, Limit: resultsPage, Offset: offset,
		})
		if err != nil {
			return QuizResults{}, err
		}
		for _, a := range list {
			rows = append(rows, ResultRow{Attempt: a, Grade: grading.Letter(a.Percentage)})
		}
		if len(list) < resultsPage {
			break
		}
	}
	sum, err := s.store.SummarizeCompleted(ctx, quizID, "")
	if err != nil {
		return QuizResults{}, err
	}
	return QuizResults{Quiz: q, Results: rows, Summary: sum}, nil
}

// resultsPage matches the store's largest page.
const resultsPage = 500

// ListAttempts is the admin view over every attempt, filtered.
func (s *Service) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	return s.store.ListAttempts(ctx, opts)
}
