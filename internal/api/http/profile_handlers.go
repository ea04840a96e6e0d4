package http

import (
	"errors"
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/auth"
	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
)

// PATCH /me  { "name": "..." }
func UpdateProfileHandler(accounts *auth.Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := accounts.UpdateName(r.Context(), authmw.SubjectFromContext(r.Context()), req.Name)
		var in *auth.InputError
		switch {
		case errors.As(err, &in):
			http.Error(w, in.Msg, http.StatusBadRequest)
		case errors.Is(err, auth.ErrProfileNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case err != nil:
			writeError(w, err)
		default:
			respondJSON(w, http.StatusOK, p)
		}
	}
}
