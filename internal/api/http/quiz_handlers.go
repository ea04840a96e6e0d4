package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// GET /quizzes?subject=...&mine=1&limit=50&offset=0
// Students only ever see published, active quizzes.
func ListQuizzesHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := viewerFrom(r)
		opts := quiz.ListOpts{
			Subject: strings.TrimSpace(r.URL.Query().Get("subject")),
			Limit:   parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset:  parseIntDefault(r.URL.Query().Get("offset"), 0),
		}
		if r.URL.Query().Get("mine") == "1" {
			opts.CreatedBy = v.ID
		}
		if r.URL.Query().Get("published") == "1" {
			opts.PublishedOnly = true
		}
		list, err := svc.ListQuizzes(r.Context(), v, opts)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

type createQuizReq struct {
	quiz.Quiz
	Questions []quiz.Question `json:"questions,omitempty"`
}

// POST /quizzes  { "title": ..., "time_limit": 10, "questions": [...] }
func CreateQuizHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createQuizReq
		if !decodeJSON(w, r, &req) {
			return
		}
		author := authmw.SubjectFromContext(r.Context())
		q, err := svc.CreateQuiz(r.Context(), author, req.Quiz, req.Questions)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, q)
	}
}

func GetQuizHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := svc.GetQuiz(r.Context(), viewerFrom(r), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, q)
	}
}

func UpdateQuizHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch quiz.QuizPatch
		if !decodeJSON(w, r, &patch) {
			return
		}
		q, err := svc.UpdateQuiz(r.Context(), chi.URLParam(r, "quizID"), patch)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, q)
	}
}

func DeleteQuizHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteQuiz(r.Context(), chi.URLParam(r, "quizID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /quizzes/{quizID}/publish  { "is_published": true }
func PublishQuizHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IsPublished *bool `json:"is_published"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.IsPublished == nil {
			http.Error(w, "is_published required", http.StatusBadRequest)
			return
		}
		q, err := svc.SetPublished(r.Context(), chi.URLParam(r, "quizID"), *req.IsPublished)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, q)
	}
}

func ListQuestionsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qs, err := svc.Questions(r.Context(), viewerFrom(r), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, qs)
	}
}

// POST /quizzes/{quizID}/questions accepts one question object or an array.
func AddQuestionsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		var qs []quiz.Question
		if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
			var one quiz.Question
			err = json.Unmarshal(trimmed, &one)
			qs = []quiz.Question{one}
		} else {
			err = json.Unmarshal(body, &qs)
		}
		if err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		added, err := svc.AddQuestions(r.Context(), chi.URLParam(r, "quizID"), qs)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, added)
	}
}

func GetQuestionHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := svc.GetQuestion(r.Context(), chi.URLParam(r, "questionID"))
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, q)
	}
}

func UpdateQuestionHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch quiz.QuestionPatch
		if !decodeJSON(w, r, &patch) {
			return
		}
		q, err := svc.UpdateQuestion(r.Context(), chi.URLParam(r, "questionID"), patch)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, q)
	}
}

func DeleteQuestionHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteQuestion(r.Context(), chi.URLParam(r, "questionID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /quizzes/{quizID}/results
func QuizResultsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.QuizResults(r.Context(), chi.URLParam(r, "quizID"))
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}
