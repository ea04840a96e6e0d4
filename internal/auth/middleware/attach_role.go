package auth

import (
	"database/sql"
	"errors"
	"log"
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// AttachRoleFromDB replaces the token's role claim with the stored profile
// role, so promotions and demotions apply without signing in again.
func AttachRoleFromDB(db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := SubjectFromContext(ctx)

			var role string
			err := db.QueryRowContext(ctx, `SELECT role FROM user_profiles WHERE id=$1`, sub).Scan(&role)
			switch {
			case err == nil && role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case errors.Is(err, sql.ErrNoRows):
				http.Error(w, "account no longer exists", http.StatusUnauthorized)
			default:
				log.Printf("attach role %s: %v", sub, err)
				http.Error(w, "forbidden", http.StatusForbidden)
			}
		})
	}
}
