package grading

import "testing"

func TestGradeSheet(t *testing.T) {
	qs := []Q{
		{ID: "q1", CorrectOption: "A", Marks: 2},
		{ID: "q2", CorrectOption: "c", Marks: 3},
		{ID: "q3", CorrectOption: "D", Marks: 5},
	}
	sheet := GradeSheet(qs, map[string]string{
		"q1":    "a",
		"q2":    "B",
		"ghost": "A",
	})

	if sheet.MaxMarks != 10 {
		t.Fatalf("max marks = %d, want 10", sheet.MaxMarks)
	}
	if sheet.Score != 2 || sheet.Correct != 1 || sheet.Answered != 2 {
		t.Fatalf("score=%d correct=%d answered=%d", sheet.Score, sheet.Correct, sheet.Answered)
	}
	if len(sheet.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(sheet.Results))
	}
	if r := sheet.Results[0]; !r.IsCorrect || r.SelectedOption != "A" || r.MarksObtained != 2 {
		t.Fatalf("q1 result = %+v", r)
	}
	if r := sheet.Results[1]; r.IsCorrect || r.MarksObtained != 0 || r.MaxMarks != 3 {
		t.Fatalf("q2 result = %+v", r)
	}
}

func TestGradeSheetInvalidSelectionScoresZero(t *testing.T) {
	sheet := GradeSheet([]Q{{ID: "q1", CorrectOption: "A", Marks: 1}}, map[string]string{"q1": "E"})
	if sheet.Score != 0 || sheet.Results[0].IsCorrect {
		t.Fatalf("invalid letter must not score: %+v", sheet)
	}
}

func TestNormalizeOption(t *testing.T) {
	cases := map[string]struct {
		want string
		ok   bool
	}{
		"a":   {"A", true},
		" D ": {"D", true},
		"E":   {"", false},
		"AB":  {"", false},
		"":    {"", false},
	}
	for in, tc := range cases {
		got, ok := NormalizeOption(in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("NormalizeOption(%q) = (%q,%v), want (%q,%v)", in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestPercentage(t *testing.T) {
	cases := []struct {
		score, total int
		want         float64
	}{
		{7, 10, 70},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{5, 0, 0},
		{0, 100, 0},
	}
	for _, tc := range cases {
		if got := Percentage(tc.score, tc.total); got != tc.want {
			t.Errorf("Percentage(%d,%d) = %v, want %v", tc.score, tc.total, got, tc.want)
		}
	}
}

func TestLetter(t *testing.T) {
	cases := map[float64]string{100: "A", 80: "A", 79.99: "B", 60: "B", 40: "C", 39.5: "F", 0: "F"}
	for pct, want := range cases {
		if got := Letter(pct); got != want {
			t.Errorf("Letter(%v) = %q, want %q", pct, got, want)
		}
	}
}
