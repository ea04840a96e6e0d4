package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

var ErrTokenRevoked = errors.New("token revoked")

type AuthService struct {
	hmac    []byte
	ttl     time.Duration
	revoked Revocations
	now     func() time.Time
}

func NewAuthService(secret string, ttl time.Duration, revoked Revocations) *AuthService {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	if revoked == nil {
		revoked = NewMemoryRevocations()
	}
	return &AuthService{hmac: []byte(secret), ttl: ttl, revoked: revoked, now: time.Now}
}

type Claims struct {
	Sub   string `json:"sub"`
	Role  string `json:"role"` // "student" or "admin"
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (a *AuthService) IssueJWT(sub, role, email string) (string, *Claims, error) {
	now := a.now()
	claims := &Claims{
		Sub:   sub,
		Role:  role,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    "mindengage-quiz",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(a.hmac)
	if err != nil {
		return "", nil, err
	}
	return s, claims, nil
}

// Parse verifies signature and expiry, then rejects revoked token ids.
func (a *AuthService) Parse(ctx context.Context, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.hmac, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || c.Sub == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if c.ID != "" {
		revoked, err := a.revoked.IsRevoked(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return c, nil
}

// Revoke blocks the token id until the token would have expired anyway.
func (a *AuthService) Revoke(ctx context.Context, c *Claims) error {
	if c == nil || c.ID == "" {
		return nil
	}
	until := a.now().Add(a.ttl)
	if c.ExpiresAt != nil {
		until = c.ExpiresAt.Time
	}
	return a.revoked.Revoke(ctx, c.ID, until)
}

// BearerToken reads the Authorization header, falling back to the
// access_token query parameter used by websocket clients.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("access_token")
}

func JWTMiddleware(a *AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := BearerToken(r)
			if tok == "" {
				http.Error(w, "missing bearer", http.StatusUnauthorized)
				return
			}
			c, err := a.Parse(r.Context(), tok)
			switch {
			case errors.Is(err, ErrTokenRevoked):
				http.Error(w, "session ended, please sign in again", http.StatusUnauthorized)
				return
			case err != nil:
				http.Error(w, "bad token", http.StatusUnauthorized)
				return
			}
			ctx := WithClaims(r.Context(), c)
			ctx = WithSubject(ctx, c.Sub)
			ctx = rbac.WithRole(ctx, c.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
