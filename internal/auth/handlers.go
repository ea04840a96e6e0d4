package auth

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// POST /auth/signup  { "email": "...", "password": "...", "name": "..." }
func SignUpHandler(a *Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentials
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		s, err := a.SignUp(r.Context(), req.Email, req.Password, req.Name)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, s)
	}
}

// POST /auth/signin  { "email": "...", "password": "..." }
func SignInHandler(a *Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentials
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		s, err := a.SignIn(r.Context(), req.Email, req.Password)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// POST /auth/signout (authenticated)
func SignOutHandler(a *Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := authmw.ClaimsFromContext(r.Context())
		if c == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := a.SignOut(r.Context(), c); err != nil {
			writeAuthError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /auth/refresh (authenticated)
func RefreshHandler(a *Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := authmw.ClaimsFromContext(r.Context())
		if c == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		s, err := a.Refresh(r.Context(), c)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// GET /auth/session (authenticated)
func SessionHandler(a *Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := authmw.ClaimsFromContext(r.Context())
		if c == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		p, err := a.Profile(r.Context(), c.Sub)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": p, "expires_at": c.ExpiresAt.Time})
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	var in *InputError
	switch {
	case errors.As(err, &in):
		http.Error(w, in.Msg, http.StatusBadRequest)
	case errors.Is(err, ErrEmailTaken):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrProfileNotFound):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, ErrSignupDisabled):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		log.Printf("auth: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
