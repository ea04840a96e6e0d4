package http

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/auth"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

type updateUserRoleReq struct {
	Role string `json:"role"`
}

// PUT /users/{userID}/role  { "role": "student|admin" }; userID may be an id or email.
func AdminUpdateUserRoleHandler(db *sql.DB, accounts *auth.Accounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := strings.TrimSpace(chi.URLParam(r, "userID"))
		if target == "" {
			http.Error(w, "missing userID", http.StatusBadRequest)
			return
		}

		var req updateUserRoleReq
		if !decodeJSON(w, r, &req) {
			return
		}
		role := strings.ToLower(strings.TrimSpace(req.Role))
		if !rbac.ValidRole(role) {
			http.Error(w, "invalid role", http.StatusBadRequest)
			return
		}

		// ensure user exists and guard against demoting the last admin
		var id, curRole string
		err := db.QueryRowContext(r.Context(),
			`SELECT id, role FROM user_profiles WHERE id=$1 OR email=$2`, target, strings.ToLower(target)).Scan(&id, &curRole)
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		if curRole == rbac.RoleAdmin && role != rbac.RoleAdmin {
			var adminCount int
			if err := db.QueryRowContext(r.Context(),
				`SELECT COUNT(1) FROM user_profiles WHERE role=$1`, rbac.RoleAdmin).Scan(&adminCount); err != nil {
				writeError(w, err)
				return
			}
			if adminCount <= 1 {
				http.Error(w, "cannot demote the last admin", http.StatusBadRequest)
				return
			}
		}

		if _, err := db.ExecContext(r.Context(), `UPDATE user_profiles SET role=$1 WHERE id=$2`, role, id); err != nil {
			writeError(w, err)
			return
		}
		if _, err := accounts.NotifyUpdated(r.Context(), id); err != nil {
			log.Printf("role update notify %s: %v", id, err)
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
