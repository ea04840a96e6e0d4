package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

var (
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrSignupDisabled     = errors.New("sign-up is disabled")
)

const (
	RoleStudent = rbac.RoleStudent
	RoleAdmin   = rbac.RoleAdmin

	minPasswordLen = 6
)

// Profile is the public view of a user_profiles row.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is what sign-up, sign-in and refresh hand back to the client.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        Profile   `json:"user"`
}

type InputError struct{ Msg string }

func (e *InputError) Error() string { return e.Msg }

type Accounts struct {
	db           *sql.DB
	tokens       *authmw.AuthService
	hub          *Hub
	enableSignup bool
}

func NewAccounts(db *sql.DB, tokens *authmw.AuthService, hub *Hub, enableSignup bool) *Accounts {
	if hub == nil {
		hub = NewHub()
	}
	return &Accounts{db: db, tokens: tokens, hub: hub, enableSignup: enableSignup}
}

func (a *Accounts) Hub() *Hub { return a.hub }
func (a *Accounts) Tokens() *authmw.AuthService { return a.tokens }

// NormalizeEmail lower-cases and trims; the result must contain "@".
func NormalizeEmail(s string) (string, bool) {
	e := strings.ToLower(strings.TrimSpace(s))
	at := strings.Index(e, "@")
	return e, at > 0 && at < len(e)-1
}

func (a *Accounts) SignUp(ctx context.Context, email, password, name string) (Session, error) {
	if !a.enableSignup {
		return Session{}, ErrSignupDisabled
	}
	email, ok := NormalizeEmail(email)
	name = strings.TrimSpace(name)
	switch {
	case !ok:
		return Session{}, &InputError{"please enter a valid email address"}
	case len(password) < minPasswordLen:
		return Session{}, &InputError{fmt.Sprintf("password must be at least %d characters", minPasswordLen)}
	case name == "":
		return Session{}, &InputError{"name is required"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, err
	}
	p := Profile{ID: uuid.NewString(), Email: email, Name: name, Role: RoleStudent, CreatedAt: time.Now().UTC().Truncate(time.Second)}

	var exists int
	err = a.db.QueryRowContext(ctx, `SELECT 1 FROM user_profiles WHERE email=$1`, email).Scan(&exists)
	if err == nil {
		return Session{}, ErrEmailTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Session{}, err
	}
	if _, err := a.db.ExecContext(ctx, `INSERT INTO user_profiles (id,email,name,role,password_hash,created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`, p.ID, p.Email, p.Name, p.Role, string(hash), p.CreatedAt.Unix()); err != nil {
		if isUniqueViolation(err) {
			return Session{}, ErrEmailTaken
		}
		return Session{}, err
	}
	log.Printf("auth: new account %s", p.Email)
	return a.issue(p, EventSignedIn)
}

func (a *Accounts) SignIn(ctx context.Context, email, password string) (Session, error) {
	email, _ = NormalizeEmail(email)
	var (
		p       Profile
		hash    string
		created int64
	)
	err := a.db.QueryRowContext(ctx, `SELECT id,email,name,role,COALESCE(password_hash,''),created_at
		FROM user_profiles WHERE email=$1`, email).Scan(&p.ID, &p.Email, &p.Name, &p.Role, &hash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}
	p.CreatedAt = time.Unix(created, 0).UTC()
	return a.issue(p, EventSignedIn)
}

// SignOut revokes the presented token.
func (a *Accounts) SignOut(ctx context.Context, c *authmw.Claims) error {
	if err := a.tokens.Revoke(ctx, c); err != nil {
		return err
	}
	a.hub.Publish(c.Sub, SessionEvent{Type: EventSignedOut})
	return nil
}

// Refresh swaps a valid token for a fresh one carrying the current role.
func (a *Accounts) Refresh(ctx context.Context, c *authmw.Claims) (Session, error) {
	p, err := a.Profile(ctx, c.Sub)
	if err != nil {
		return Session{}, err
	}
	s, err := a.issue(p, EventTokenRefreshed)
	if err != nil {
		return Session{}, err
	}
	if err := a.tokens.Revoke(ctx, c); err != nil {
		return Session{}, err
	}
	return s, nil
}

func (a *Accounts) issue(p Profile, event string) (Session, error) {
	tok, claims, err := a.tokens.IssueJWT(p.ID, p.Role, p.Email)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	s := Session{AccessToken: tok, ExpiresAt: claims.ExpiresAt.Time, User: p}
	a.hub.Publish(p.ID, SessionEvent{Type: event, User: &p})
	return s, nil
}

func (a *Accounts) Profile(ctx context.Context, id string) (Profile, error) {
	var p Profile
	var created int64
	err := a.db.QueryRowContext(ctx, `SELECT id,email,name,role,created_at FROM user_profiles WHERE id=$1`, id).
		Scan(&p.ID, &p.Email, &p.Name, &p.Role, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	p.CreatedAt = time.Unix(created, 0).UTC()
	return p, nil
}

// UpdateName changes the caller's display name and notifies their sessions.
func (a *Accounts) UpdateName(ctx context.Context, id, name string) (Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Profile{}, &InputError{"name is required"}
	}
	res, err := a.db.ExecContext(ctx, `UPDATE user_profiles SET name=$1 WHERE id=$2`, name, id)
	if err != nil {
		return Profile{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Profile{}, ErrProfileNotFound
	}
	return a.NotifyUpdated(ctx, id)
}

// NotifyUpdated reloads the profile and publishes USER_UPDATED.
func (a *Accounts) NotifyUpdated(ctx context.Context, id string) (Profile, error) {
	p, err := a.Profile(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	a.hub.Publish(id, SessionEvent{Type: EventUserUpdated, User: &p})
	return p, nil
}

// EnsureAdmin upserts the bootstrap administrator. An empty hash is a no-op.
func EnsureAdmin(ctx context.Context, db *sql.DB, email, name, passHash string) error {
	if passHash == "" {
		return nil
	}
	email, ok := NormalizeEmail(email)
	if !ok {
		return fmt.Errorf("admin email %q is not valid", email)
	}
	if name == "" {
		name = "Administrator"
	}
	res, err := db.ExecContext(ctx, `UPDATE user_profiles SET role=$1, password_hash=$2 WHERE email=$3`,
		RoleAdmin, passHash, email)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = db.ExecContext(ctx, `INSERT INTO user_profiles (id,email,name,role,password_hash,created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`, uuid.NewString(), email, name, RoleAdmin, passHash, time.Now().Unix())
	if err == nil {
		log.Printf("auth: bootstrap admin %s created", email)
	}
	return err
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || // sqlite
		strings.Contains(msg, "duplicate key") // postgres
}
