package http

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/auth"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

// -----------------------------
// Admin: dashboard & compliance
// -----------------------------

type dashboardSummary struct {
	Quizzes           int     `json:"quizzes"`
	PublishedQuizzes  int     `json:"published_quizzes"`
	Questions         int     `json:"questions"`
	Students          int     `json:"students"`
	AttemptsOpen      int     `json:"attempts_in_progress"`
	AttemptsCompleted int     `json:"attempts_completed"`
	AveragePercentage float64 `json:"average_percentage"`
}

// GET /admin/summary
func AdminSummaryHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var s dashboardSummary
		var avg sql.NullFloat64
		err := db.QueryRowContext(ctx, `SELECT
			(SELECT COUNT(1) FROM quizzes),
			(SELECT COUNT(1) FROM quizzes WHERE is_published=$1),
			(SELECT COUNT(1) FROM questions),
			(SELECT COUNT(1) FROM user_profiles WHERE role=$2),
			(SELECT COUNT(1) FROM quiz_attempts WHERE status=$3),
			(SELECT COUNT(1) FROM quiz_attempts WHERE status=$4),
			(SELECT AVG(percentage) FROM quiz_attempts WHERE status=$4)`,
			true, rbac.RoleStudent, quiz.StatusInProgress, quiz.StatusCompleted).
			Scan(&s.Quizzes, &s.PublishedQuizzes, &s.Questions, &s.Students,
				&s.AttemptsOpen, &s.AttemptsCompleted, &avg)
		if err != nil {
			writeError(w, err)
			return
		}
		if avg.Valid {
			s.AveragePercentage = math.Round(avg.Float64*100) / 100
		}
		respondJSON(w, http.StatusOK, s)
	}
}

// GET /admin/events?type=AttemptCompleted&limit=50
func AdminEventsHandler(events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		typ := strings.TrimSpace(r.URL.Query().Get("type"))
		limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
		list, err := events.Recent(r.Context(), typ, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

// HandleAdminPIIExport returns a user's profile and attempt history as a
// downloadable JSON file.
func HandleAdminPIIExport(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"user_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.UserID == "" {
			http.Error(w, "user_id required", http.StatusBadRequest)
			return
		}

		var p auth.Profile
		var createdAt int64
		err := db.QueryRowContext(r.Context(),
			`SELECT id, email, name, role, created_at FROM user_profiles WHERE id=$1 OR email=$2`,
			req.UserID, strings.ToLower(req.UserID)).Scan(&p.ID, &p.Email, &p.Name, &p.Role, &createdAt)
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		p.CreatedAt = time.Unix(createdAt, 0).UTC()

		rows, err := db.QueryContext(r.Context(), `SELECT a.id, a.quiz_id, q.title, a.score, a.percentage, a.status, a.started_at
			FROM quiz_attempts a JOIN quizzes q ON q.id=a.quiz_id WHERE a.student_id=$1 ORDER BY a.started_at`, p.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		defer rows.Close()
		attempts := []map[string]any{}
		for rows.Next() {
			var id, quizID, title, status string
			var score int
			var pct float64
			var started int64
			if err := rows.Scan(&id, &quizID, &title, &score, &pct, &status, &started); err != nil {
				writeError(w, err)
				return
			}
			attempts = append(attempts, map[string]any{
				"id": id, "quiz_id": quizID, "quiz_title": title, "score": score,
				"percentage": pct, "status": status, "started_at": time.Unix(started, 0).UTC(),
			})
		}
		if err := rows.Err(); err != nil {
			writeError(w, err)
			return
		}

		filename := fmt.Sprintf("pii_%s.json", p.ID)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		respondJSON(w, http.StatusOK, map[string]any{"profile": p, "attempts": attempts})
	}
}

// HandleAdminPIIDelete removes a student and everything they submitted.
func HandleAdminPIIDelete(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UserID string `json:"user_id"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.UserID == "" {
			http.Error(w, "user_id required", http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		var role string
		err := db.QueryRowContext(ctx, `SELECT role FROM user_profiles WHERE id=$1`, req.UserID).Scan(&role)
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		if role == rbac.RoleAdmin {
			http.Error(w, "demote the admin before deleting", http.StatusBadRequest)
			return
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			writeError(w, err)
			return
		}
		defer tx.Rollback()

		for _, stmt := range []string{
			`DELETE FROM answers WHERE attempt_id IN (SELECT id FROM quiz_attempts WHERE student_id=$1)`,
			`DELETE FROM quiz_attempts WHERE student_id=$1`,
			`DELETE FROM user_profiles WHERE id=$1`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, req.UserID); err != nil {
				writeError(w, err)
				return
			}
		}
		if err := tx.Commit(); err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
