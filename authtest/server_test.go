package authtest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/jwt"
)

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	srv, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, srv *Server, path, token string, body any, out any) int {
	t.Helper()
	raw, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}

func TestLoginIssuesDecodableTokens(t *testing.T) {
	srv := newTestServer(t, Options{})

	var out struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
		User         struct {
			ID   int    `json:"id"`
			Role string `json:"role"`
		} `json:"user"`
	}
	status := postJSON(t, srv, PathLogin, "", map[string]string{"email": "Admin@Library.test", "password": "admin123"}, &out)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if out.Token == "" || out.RefreshToken == "" || out.User.ID != 1 || out.User.Role != "admin" {
		t.Fatalf("unexpected login response %+v", out)
	}

	claims, err := jwt.Decode(out.Token)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if claims.Subject != "1" || claims.Role != "admin" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if srv.Calls(PathLogin) != 1 {
		t.Fatalf("expected one login call, got %d", srv.Calls(PathLogin))
	}
}

func TestLoginRejectsBadPasswordAndInactiveUser(t *testing.T) {
	srv := newTestServer(t, Options{})

	var msg struct {
		Message string `json:"message"`
	}
	if status := postJSON(t, srv, PathLogin, "", map[string]string{"email": "admin@library.test", "password": "nope"}, &msg); status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if msg.Message != "Invalid credentials" {
		t.Fatalf("unexpected message %q", msg.Message)
	}
	if status := postJSON(t, srv, PathLogin, "", map[string]string{"email": "inactive@library.test", "password": "inactive123"}, nil); status != http.StatusForbidden {
		t.Fatalf("expected 403 for inactive account, got %d", status)
	}
}

func TestExpireAccessTokensAndRefresh(t *testing.T) {
	srv := newTestServer(t, Options{RotateRefreshTokens: true})
	access, refresh, err := srv.IssueTokens("2", 0)
	if err != nil {
		t.Fatalf("IssueTokens: %v", err)
	}

	var verify struct {
		Valid bool `json:"valid"`
	}
	postJSON(t, srv, PathVerify, "", map[string]string{"token": access}, &verify)
	if !verify.Valid {
		t.Fatal("fresh token should verify")
	}

	srv.ExpireAccessTokens()
	postJSON(t, srv, PathVerify, "", map[string]string{"token": access}, &verify)
	if verify.Valid {
		t.Fatal("expired token must not verify")
	}

	var out struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	if status := postJSON(t, srv, PathRefresh, "", map[string]string{"refreshToken": refresh}, &out); status != http.StatusOK {
		t.Fatalf("refresh status %d", status)
	}
	if out.Token == "" || out.Token == access || out.RefreshToken == "" || out.RefreshToken == refresh {
		t.Fatalf("expected rotated pair, got %+v", out)
	}
	if status := postJSON(t, srv, PathRefresh, "", map[string]string{"refreshToken": refresh}, nil); status != http.StatusUnauthorized {
		t.Fatalf("rotated refresh token must be rejected, got %d", status)
	}
}

func TestNegativeTTLTokenIsRejected(t *testing.T) {
	srv := newTestServer(t, Options{})
	access, _, err := srv.IssueTokens("3", -time.Minute)
	if err != nil {
		t.Fatalf("IssueTokens: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+PathBooks, nil)
	req.Header.Set("Authorization", "Bearer "+access)
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestFailRefresh(t *testing.T) {
	srv := newTestServer(t, Options{})
	_, refresh, _ := srv.IssueTokens("1", 0)
	srv.FailRefresh(http.StatusServiceUnavailable)
	if status := postJSON(t, srv, PathRefresh, "", map[string]string{"refreshToken": refresh}, nil); status != http.StatusServiceUnavailable {
		t.Fatalf("expected forced failure, got %d", status)
	}
	srv.FailRefresh(0)
	if status := postJSON(t, srv, PathRefresh, "", map[string]string{"refreshToken": refresh}, nil); status != http.StatusOK {
		t.Fatalf("expected recovery, got %d", status)
	}
}

func TestNewBackendRejectsBadSeed(t *testing.T) {
	_, err := NewBackend(Options{Users: []User{{Password: "x"}}})
	if err == nil {
		t.Fatal("expected error for user without id")
	}
}
