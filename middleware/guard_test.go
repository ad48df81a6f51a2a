package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/sessionctx"
)

type staticSource sessionctx.Snapshot

func (s staticSource) Snapshot() sessionctx.Snapshot {
	return sessionctx.Snapshot(s)
}

func authed(role session.Role) staticSource {
	return staticSource{
		State: sessionctx.StateAuthenticated,
		User:  &session.UserProfile{ID: "1", Role: role},
	}
}

func serve(mw func(http.Handler) http.Handler, target string) (*httptest.ResponseRecorder, *session.UserProfile) {
	var seen *session.UserProfile
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec, seen
}

func TestRequireSessionRedirectsUnauthenticated(t *testing.T) {
	src := staticSource{State: sessionctx.StateUnauthenticated}
	rec, _ := serve(RequireSession(src, "/login"), "/books?page=2")

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login?next=%2Fbooks%3Fpage%3D2" {
		t.Fatalf("unexpected location %q", loc)
	}
}

func TestRequireSessionWhileInitializing(t *testing.T) {
	src := staticSource{State: sessionctx.StateInitializing, Loading: true}
	rec, _ := serve(RequireSession(src, "/login"), "/books")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRequireSessionAdmitsAndInjectsUser(t *testing.T) {
	rec, user := serve(RequireSession(authed(session.RoleUser), "/login"), "/books")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if user == nil || user.ID != "1" {
		t.Fatalf("expected user in context, got %+v", user)
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		role session.Role
		want int
	}{
		{session.RoleAdmin, http.StatusOK},
		{session.RoleLibrarian, http.StatusForbidden},
		{session.RoleUser, http.StatusForbidden},
	}
	for _, tt := range tests {
		rec, _ := serve(RequireRole(authed(tt.role), "/login", session.RoleAdmin), "/admin")
		if rec.Code != tt.want {
			t.Fatalf("role %s: expected %d, got %d", tt.role, tt.want, rec.Code)
		}
	}
}

func TestRequireStaff(t *testing.T) {
	for role, want := range map[session.Role]int{
		session.RoleAdmin:     http.StatusOK,
		session.RoleLibrarian: http.StatusOK,
		session.RoleUser:      http.StatusForbidden,
	} {
		rec, _ := serve(RequireStaff(authed(role), "/login"), "/manage")
		if rec.Code != want {
			t.Fatalf("role %s: expected %d, got %d", role, want, rec.Code)
		}
	}
}

func TestGuardNilSourceRedirects(t *testing.T) {
	rec, _ := serve(RequireSession(nil, "/login"), "/login")
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/login" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Header().Get("Location"))
	}
}
