package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheckerDefaultPolicy(t *testing.T) {
	cases := []struct {
		role, perm string
		want       bool
	}{
		{RoleStudent, "quiz:view", true},
		{RoleStudent, "attempt:submit", true},
		{RoleStudent, "quiz:create", false},
		{RoleStudent, "attempt:view-all", false},
		{RoleStudent, "results:view", false},
		{RoleAdmin, "quiz:delete", true},
		{RoleAdmin, "admin:dashboard", true},
		{"", "quiz:view", false},
		{"teacher", "quiz:view", false},
	}
	for _, tc := range cases {
		if got := Can(tc.role, tc.perm); got != tc.want {
			t.Errorf("Can(%q,%q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestWildcardPermissions(t *testing.T) {
	c := NewChecker(map[string][]string{"editor": {"quiz:*", "question:view"}})
	if !c.Has("editor", "quiz:publish") || !c.Has("editor", "question:view") {
		t.Fatalf("expected editor permissions")
	}
	if c.Has("editor", "question:delete") {
		t.Fatalf("question:delete should be denied")
	}
	if !c.Any("editor", "users:list", "quiz:view") || c.Any("editor", "users:list", "results:view") {
		t.Fatalf("Any mismatch")
	}
}

func TestRequireMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	cases := []struct {
		name string
		mw   func(http.Handler) http.Handler
		role string
		want int
	}{
		{"require allowed", Require("quiz:view"), RoleStudent, http.StatusNoContent},
		{"require denied", Require("quiz:create"), RoleStudent, http.StatusForbidden},
		{"require no role", Require("quiz:view"), "", http.StatusForbidden},
		{"any allowed", RequireAny("quiz:create", "attempt:create"), RoleStudent, http.StatusNoContent},
		{"any denied", RequireAny("quiz:create", "results:view"), RoleStudent, http.StatusForbidden},
		{"admin wildcard", Require("admin:compliance"), RoleAdmin, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tc.role != "" {
				req = req.WithContext(WithRole(context.Background(), tc.role))
			}
			rec := httptest.NewRecorder()
			tc.mw(ok).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("code = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
