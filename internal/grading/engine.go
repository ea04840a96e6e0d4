package grading

import (
	"math"
	"strings"
)

// Options are the four choice letters every question carries.
var Options = []string{"A", "B", "C", "D"}

// Q is a minimal view of a question needed for grading.
type Q struct {
	ID            string
	CorrectOption string
	Marks         int
}

// Result is the outcome of grading a single answered question.
type Result struct {
	QuestionID     string
	SelectedOption string
	IsCorrect      bool
	MarksObtained  int
	MaxMarks       int
}

// Sheet is the outcome of grading a whole attempt.
type Sheet struct {
	Results  []Result // one per answered question, in question order
	Score    int
	MaxMarks int // sum of marks over all questions, answered or not
	Correct  int
	Answered int
}

// NormalizeOption upper-cases a choice letter and reports whether it is one of A-D.
func NormalizeOption(s string) (string, bool) {
	opt := strings.ToUpper(strings.TrimSpace(s))
	for _, o := range Options {
		if opt == o {
			return opt, true
		}
	}
	return "", false
}

// GradeSheet scores responses (question id -> selected letter) against the
// questions. Responses for questions not in the list are ignored.
func GradeSheet(questions []Q, responses map[string]string) Sheet {
	var sheet Sheet
	for _, q := range questions {
		sheet.MaxMarks += q.Marks
		sel, ok := responses[q.ID]
		if !ok {
			continue
		}
		sheet.Answered++
		res := gradeSingle(q, sel)
		if res.IsCorrect {
			sheet.Correct++
		}
		sheet.Score += res.MarksObtained
		sheet.Results = append(sheet.Results, res)
	}
	return sheet
}

func gradeSingle(q Q, selected string) Result {
	res := Result{QuestionID: q.ID, SelectedOption: selected, MaxMarks: q.Marks}
	sel, ok := NormalizeOption(selected)
	if !ok {
		return res
	}
	res.SelectedOption = sel
	if key, ok := NormalizeOption(q.CorrectOption); ok && key == sel {
		res.IsCorrect = true
		res.MarksObtained = q.Marks
	}
	return res
}

// Percentage is score/totalMarks*100 rounded to two decimals. A non-positive
// total yields 0.
func Percentage(score, totalMarks int) float64 {
	if totalMarks <= 0 {
		return 0
	}
	p := float64(score) / float64(totalMarks) * 100
	return math.Round(p*100) / 100
}

// Letter maps a percentage onto the results badge.
func Letter(pct float64) string {
	switch {
	case pct >= 80:
		return "A"
	case pct >= 60:
		return "B"
	case pct >= 40:
		return "C"
	default:
		return "F"
	}
}

// Summary aggregates completed attempts.
type Summary struct {
	Attempts int     `json:"attempts"`
	Average  float64 `json:"average_percentage"` // whole percent
	Highest  float64 `json:"highest_percentage"`
	Lowest   float64 `json:"lowest_percentage"`
}
