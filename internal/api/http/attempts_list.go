package http

import (
	"net/http"
	"strings"

	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

// GET /me/attempts?limit=50&offset=0
// The caller's completed attempts, newest first, with summary figures.
func MyAttemptsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := authmw.SubjectFromContext(r.Context())
		if sub == "" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
		offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

		h, err := svc.History(r.Context(), sub, limit, offset)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, h)
	}
}

// GET /attempts?quiz_id=...&student_id=...&status=...&limit=50&offset=0
// Requires attempt:view-all; the router enforces it.
func ListAttemptsHandler(svc *quiz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		status := strings.TrimSpace(q.Get("status"))
		if status != "" && status != quiz.StatusInProgress && status != quiz.StatusCompleted {
			http.Error(w, "status must be in_progress or completed", http.StatusBadRequest)
			return
		}
		list, err := svc.ListAttempts(r.Context(), quiz.AttemptListOpts{
			QuizID:    strings.TrimSpace(q.Get("quiz_id")),
			StudentID: strings.TrimSpace(q.Get("student_id")),
			Status:    status,
			Limit:     parseIntDefault(q.Get("limit"), 50),
			Offset:    parseIntDefault(q.Get("offset"), 0),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}
