package http

import (
	"database/sql"
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
)

const minPasswordLen = 6

type changePasswordReq struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// POST /users/change-password
func ChangePasswordHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := authmw.SubjectFromContext(r.Context())
		if userID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req changePasswordReq
		if !decodeJSON(w, r, &req) {
			return
		}
		if len(req.NewPassword) < minPasswordLen {
			http.Error(w, "new password must be at least 6 characters", http.StatusBadRequest)
			return
		}

		var storedHash string
		err := db.QueryRowContext(r.Context(), `SELECT password_hash FROM user_profiles WHERE id=$1`, userID).Scan(&storedHash)
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(req.OldPassword)) != nil {
			http.Error(w, "incorrect old password", http.StatusForbidden)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), passwordCost)
		if err != nil {
			writeError(w, err)
			return
		}
		if _, err := db.ExecContext(r.Context(), `UPDATE user_profiles SET password_hash=$1 WHERE id=$2`, string(hash), userID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
