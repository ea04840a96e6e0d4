package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return false
	}
	return true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}

// viewerFrom builds the quiz-layer caller from the verified token.
func viewerFrom(r *http.Request) quiz.Viewer {
	role := rbac.RoleFromContext(r.Context())
	return quiz.Viewer{
		ID:    authmw.SubjectFromContext(r.Context()),
		Admin: rbac.Can(role, "attempt:view-all"),
	}
}

// writeError maps domain errors onto status codes; the body is the
// message shown to the user.
func writeError(w http.ResponseWriter, err error) {
	var verr *quiz.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, strings.Join(verr.Problems, "\n"), http.StatusBadRequest)
	case errors.Is(err, quiz.ErrQuizNotFound),
		errors.Is(err, quiz.ErrQuestionNotFound),
		errors.Is(err, quiz.ErrAttemptNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, quiz.ErrNotOwner):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, quiz.ErrAttemptCompleted),
		errors.Is(err, quiz.ErrAttemptOpen),
		errors.Is(err, quiz.ErrQuizUnavailable),
		errors.Is(err, quiz.ErrNoQuestions),
		errors.Is(err, quiz.ErrTimeExpired):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, quiz.ErrUnknownQuestion),
		errors.Is(err, quiz.ErrInvalidOption):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("api: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
