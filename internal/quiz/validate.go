package quiz

import (
	"fmt"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

const (
	defaultSubject    = "General"
	defaultTotalMarks = 100
)

// normalizeQuiz trims fields and fills authoring defaults before validation.
func normalizeQuiz(q *Quiz) error {
	q.Title = strings.TrimSpace(q.Title)
	q.Description = strings.TrimSpace(q.Description)
	q.Subject = strings.TrimSpace(q.Subject)
	if q.Subject == "" {
		q.Subject = defaultSubject
	}
	if q.TotalMarks == 0 {
		q.TotalMarks = defaultTotalMarks
	}

	verr := &ValidationError{}
	if q.Title == "" {
		verr.add("quiz title is required")
	}
	if q.TimeLimit <= 0 {
		verr.add("time limit must be a positive number of minutes")
	}
	if q.TotalMarks < 0 {
		verr.add("total marks cannot be negative")
	}
	return verr.orNil()
}

func normalizeQuestion(q *Question) error {
	q.Text = strings.TrimSpace(q.Text)
	q.OptionA = strings.TrimSpace(q.OptionA)
	q.OptionB = strings.TrimSpace(q.OptionB)
	q.OptionC = strings.TrimSpace(q.OptionC)
	q.OptionD = strings.TrimSpace(q.OptionD)
	q.Explanation = strings.TrimSpace(q.Explanation)
	if q.Marks == 0 {
		q.Marks = 1
	}

	verr := &ValidationError{}
	if q.Text == "" {
		verr.add("question text is required")
	}
	if q.OptionA == "" || q.OptionB == "" || q.OptionC == "" || q.OptionD == "" {
		verr.add("all options must be filled")
	}
	if opt, ok := grading.NormalizeOption(q.CorrectOption); ok {
		q.CorrectOption = opt
	} else {
		verr.add("correct option must be one of A, B, C, D")
	}
	if q.Marks < 0 {
		verr.add("marks cannot be negative")
	}
	return verr.orNil()
}

// normalizeQuestions validates a batch, prefixing problems with the
// 1-based position so authoring forms can point at the bad row.
func normalizeQuestions(qs []Question) error {
	verr := &ValidationError{}
	for i := range qs {
		if err := normalizeQuestion(&qs[i]); err != nil {
			for _, p := range err.(*ValidationError).Problems {
				verr.add(fmt.Sprintf("question %d: %s", i+1, p))
			}
		}
	}
	return verr.orNil()
}

func (p QuizPatch) apply(q *Quiz) {
	if p.Title != nil {
		q.Title = *p.Title
	}
	if p.Description != nil {
		q.Description = *p.Description
	}
	if p.Subject != nil {
		q.Subject = *p.Subject
	}
	if p.TimeLimit != nil {
		q.TimeLimit = *p.TimeLimit
	}
	if p.TotalMarks != nil {
		q.TotalMarks = *p.TotalMarks
	}
	if p.IsPublished != nil {
		q.IsPublished = *p.IsPublished
	}
	if p.IsActive != nil {
		q.IsActive = *p.IsActive
	}
}

func (p QuestionPatch) apply(q *Question) {
	if p.Text != nil {
		q.Text = *p.Text
	}
	if p.OptionA != nil {
		q.OptionA = *p.OptionA
	}
	if p.OptionB != nil {
		q.OptionB = *p.OptionB
	}
	if p.OptionC != nil {
		q.OptionC = *p.OptionC
	}
	if p.OptionD != nil {
		q.OptionD = *p.OptionD
	}
	if p.CorrectOption != nil {
		q.CorrectOption = *p.CorrectOption
	}
	if p.Marks != nil {
		q.Marks = *p.Marks
	}
	if p.Explanation != nil {
		q.Explanation = *p.Explanation
	}
	if p.Order != nil {
		q.Order = *p.Order
	}
}
