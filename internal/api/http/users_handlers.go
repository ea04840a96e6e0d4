package http

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/mindengage-quiz/internal/auth"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

const passwordCost = 12

type userRow struct {
	ID       string `json:"id,omitempty"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`               // usually "student"
	Password string `json:"password,omitempty"` // plaintext, hashed before storage
}

// POST /users/bulk  JSON array, or multipart file= holding JSON or CSV
// (header: email,name[,role][,password][,id]).
func BulkUpsertUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []userRow
		ct := r.Header.Get("Content-Type")
		if strings.HasPrefix(ct, "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				http.Error(w, "file required", http.StatusBadRequest)
				return
			}
			defer f.Close()
			br := bufio.NewReader(f)
			first, err := peekNonSpace(br)
			if err != nil {
				http.Error(w, "empty file", http.StatusBadRequest)
				return
			}
			if first == '[' {
				if err := json.NewDecoder(br).Decode(&rows); err != nil {
					http.Error(w, "bad json", http.StatusBadRequest)
					return
				}
			} else {
				rs, err := parseCSV(br)
				if err != nil {
					http.Error(w, "bad csv: "+err.Error(), http.StatusBadRequest)
					return
				}
				rows = rs
			}
		} else if !decodeJSON(w, r, &rows) {
			return
		}
		if len(rows) == 0 {
			respondJSON(w, http.StatusOK, map[string]any{"inserted": 0, "updated": 0})
			return
		}

		ins, upd, err := upsertUsers(r.Context(), db, rows)
		var in *auth.InputError
		if errors.As(err, &in) {
			http.Error(w, in.Msg, http.StatusBadRequest)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"inserted": ins, "updated": upd})
	}
}

// GET /users?role=student
func ListUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := r.URL.Query().Get("role")
		var rows *sql.Rows
		var err error
		if role == "" {
			rows, err = db.QueryContext(r.Context(), `SELECT id,email,name,role,created_at FROM user_profiles ORDER BY email`)
		} else {
			rows, err = db.QueryContext(r.Context(), `SELECT id,email,name,role,created_at FROM user_profiles WHERE role=$1 ORDER BY email`, role)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		defer rows.Close()
		out := []auth.Profile{}
		for rows.Next() {
			var p auth.Profile
			var created int64
			if err := rows.Scan(&p.ID, &p.Email, &p.Name, &p.Role, &created); err != nil {
				writeError(w, err)
				return
			}
			p.CreatedAt = time.Unix(created, 0).UTC()
			out = append(out, p)
		}
		if err := rows.Err(); err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for i := 1; ; i++ {
		b, err := br.Peek(i)
		if err != nil {
			return 0, err
		}
		switch c := b[i-1]; c {
		case ' ', '\t', '\r', '\n', 0xEF, 0xBB, 0xBF: // whitespace or UTF-8 BOM
		default:
			return c, nil
		}
	}
}

func parseCSV(r io.Reader) ([]userRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "\ufeff"))] = i
	}
	for _, k := range []string{"email", "name"} {
		if _, ok := idx[k]; !ok {
			return nil, errors.New("missing column: " + k)
		}
	}
	col := func(rec []string, k string) string {
		if i, ok := idx[k]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	var rows []userRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, userRow{
			ID:       col(rec, "id"),
			Email:    col(rec, "email"),
			Name:     col(rec, "name"),
			Role:     strings.ToLower(col(rec, "role")),
			Password: col(rec, "password"),
		})
	}
	return rows, nil
}

// upsertUsers matches rows by email. New users need a password and default
// to student; existing users keep their hash and role unless the row sets them.
func upsertUsers(ctx context.Context, db *sql.DB, rows []userRow) (inserted, updated int, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	now := time.Now().Unix()
	for i, r := range rows {
		line := i + 1
		email, ok := auth.NormalizeEmail(r.Email)
		if !ok {
			return inserted, updated, &auth.InputError{Msg: fmt.Sprintf("row %d: invalid email %q", line, r.Email)}
		}
		if r.Role != "" && !rbac.ValidRole(r.Role) {
			return inserted, updated, &auth.InputError{Msg: fmt.Sprintf("row %d: invalid role %q", line, r.Role)}
		}
		var phash string
		if r.Password != "" {
			b, e := bcrypt.GenerateFromPassword([]byte(r.Password), passwordCost)
			if e != nil {
				return inserted, updated, e
			}
			phash = string(b)
		}

		var id, curRole string
		err = tx.QueryRowContext(ctx, `SELECT id, role FROM user_profiles WHERE email=$1`, email).Scan(&id, &curRole)
		switch {
		case err == nil:
			if r.Role == "" {
				r.Role = curRole
			}
			if curRole == rbac.RoleAdmin && r.Role != rbac.RoleAdmin {
				var admins int
				if err = tx.QueryRowContext(ctx,
					`SELECT COUNT(1) FROM user_profiles WHERE role=$1`, rbac.RoleAdmin).Scan(&admins); err != nil {
					return inserted, updated, err
				}
				if admins <= 1 {
					return inserted, updated, &auth.InputError{Msg: fmt.Sprintf("row %d: cannot demote the last admin %s", line, email)}
				}
			}
			if phash != "" {
				_, err = tx.ExecContext(ctx, `UPDATE user_profiles SET name=COALESCE(NULLIF($1,''),name), role=$2, password_hash=$3 WHERE id=$4`,
					r.Name, r.Role, phash, id)
			} else {
				_, err = tx.ExecContext(ctx, `UPDATE user_profiles SET name=COALESCE(NULLIF($1,''),name), role=$2 WHERE id=$3`,
					r.Name, r.Role, id)
			}
			if err != nil {
				return inserted, updated, err
			}
			updated++
		case errors.Is(err, sql.ErrNoRows):
			if phash == "" {
				return inserted, updated, &auth.InputError{Msg: fmt.Sprintf("row %d: password required for new user %s", line, email)}
			}
			if r.Name == "" {
				return inserted, updated, &auth.InputError{Msg: fmt.Sprintf("row %d: name required for new user %s", line, email)}
			}
			if r.Role == "" {
				r.Role = rbac.RoleStudent
			}
			if r.ID == "" {
				r.ID = uuid.NewString()
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO user_profiles (id, email, name, role, password_hash, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
				r.ID, email, r.Name, r.Role, phash, now)
			if err != nil {
				return inserted, updated, err
			}
			inserted++
		default:
			return inserted, updated, err
		}
	}
	return
}
