package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// POST /attempts  { "quiz_id": "..." }
// Returns 201 for a new attempt and 200 when an open one is resumed.
func CreateAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			QuizID string `json:"quiz_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.QuizID) == "" {
			http.Error(w, "quiz_id required", http.StatusBadRequest)
			return
		}
		a, err := svc.StartAttempt(r.Context(), authmw.SubjectFromContext(r.Context()), req.QuizID)
		if err != nil {
			writeError(w, err)
			return
		}
		code := http.StatusCreated
		if a.Resumed {
			code = http.StatusOK
		}
		respondJSON(w, code, a)
	}
}

func GetAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := svc.GetAttempt(r.Context(), viewerFrom(r), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, a)
	}
}

func ListAnswersHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.Answers(r.Context(), viewerFrom(r), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

type answersReq struct {
	Answers []quiz.AnswerInput `json:"answers"`
}

// PUT /attempts/{attemptID}/answers  { "answers": [{ "question_id", "selected_option" }] }
func SaveAnswersHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req answersReq
		if !decodeJSON(w, r, &req) {
			return
		}
		a, err := svc.SaveAnswers(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "attemptID"), req.Answers)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, a)
	}
}

// POST /attempts/{attemptID}/submit  (body optional: final answers)
func SubmitAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req answersReq
		if r.ContentLength != 0 {
			if !decodeJSON(w, r, &req) {
				return
			}
		}
		a, err := svc.Submit(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "attemptID"), req.Answers)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, a)
	}
}

func ReviewAttemptHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rev, err := svc.Review(r.Context(), viewerFrom(r), chi.URLParam(r, "attemptID"))
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, rev)
	}
}
