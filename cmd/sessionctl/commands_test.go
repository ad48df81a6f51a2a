package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrEthical07/goSession/authtest"
	"github.com/MrEthical07/goSession/session"
)

type cli struct {
	t       *testing.T
	srv     *authtest.Server
	globals []string
}

func newCLI(t *testing.T, opts authtest.Options) *cli {
	t.Helper()
	srv, err := authtest.NewServer(opts)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	t.Cleanup(srv.Close)

	return &cli{
		t:   t,
		srv: srv,
		globals: []string{
			"-env", "",
			"-base-url", srv.URL,
			"-store", storeBolt,
			"-bolt-path", filepath.Join(t.TempDir(), "session.db"),
		},
	}
}

func (c *cli) run(stdin string, args ...string) (int, string, string) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	all := append(append([]string(nil), c.globals...), args...)
	code := run(context.Background(), all, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLISessionPersistsAcrossInvocations(t *testing.T) {
	c := newCLI(t, authtest.Options{})

	code, out, errOut := c.run("", "login", "-email", "admin@library.test", "-password", "admin123")
	if code != exitOK {
		t.Fatalf("login exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "Ada Admin") || !strings.Contains(out, "(admin)") {
		t.Fatalf("unexpected login output %q", out)
	}

	code, out, _ = c.run("", "whoami")
	if code != exitOK {
		t.Fatalf("whoami exit %d", code)
	}
	var u session.UserProfile
	if err := json.Unmarshal([]byte(out), &u); err != nil {
		t.Fatalf("whoami output is not JSON: %v", err)
	}
	if u.Email != "admin@library.test" || u.Role != session.RoleAdmin {
		t.Fatalf("unexpected profile %+v", u)
	}

	code, out, _ = c.run("", "status")
	if code != exitOK || !strings.Contains(out, "authenticated: yes") || !strings.Contains(out, "refresh token: stored") {
		t.Fatalf("unexpected status %d %q", code, out)
	}

	code, out, _ = c.run("", "verify")
	if code != exitOK || !strings.Contains(out, "admin@library.test") {
		t.Fatalf("unexpected verify %d %q", code, out)
	}

	code, out, _ = c.run("", "logout")
	if code != exitOK || !strings.Contains(out, "signed out") {
		t.Fatalf("unexpected logout %d %q", code, out)
	}
	if n := c.srv.Calls(authtest.PathLogout); n != 1 {
		t.Fatalf("expected one logout notification, got %d", n)
	}

	code, out, _ = c.run("", "status")
	if code != exitFail || !strings.Contains(out, "authenticated: no") {
		t.Fatalf("expected signed-out status, got %d %q", code, out)
	}
}

func TestCLILoginReadsPasswordFromStdin(t *testing.T) {
	c := newCLI(t, authtest.Options{})

	code, out, errOut := c.run("user123\n", "login", "-email", "user@library.test")
	if code != exitOK {
		t.Fatalf("login exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "Uma User") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCLILoginFailure(t *testing.T) {
	c := newCLI(t, authtest.Options{})

	code, _, errOut := c.run("", "login", "-email", "admin@library.test", "-password", "wrong")
	if code != exitFail {
		t.Fatalf("expected failure exit, got %d", code)
	}
	if !strings.Contains(errOut, "login failed") {
		t.Fatalf("unexpected stderr %q", errOut)
	}

	code, _, _ = c.run("", "login", "-password", "x")
	if code != exitUsage {
		t.Fatalf("expected usage exit without -email, got %d", code)
	}
}

func TestCLIGetRefreshesExpiredToken(t *testing.T) {
	c := newCLI(t, authtest.Options{})

	if code, _, errOut := c.run("", "login", "-email", "librarian@library.test", "-password", "librarian123"); code != exitOK {
		t.Fatalf("login exit %d: %s", code, errOut)
	}
	c.srv.ExpireAccessTokens()
	c.srv.ResetCalls()

	code, out, errOut := c.run("", "get", authtest.PathBooks)
	if code != exitOK {
		t.Fatalf("get exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, `"books"`) {
		t.Fatalf("expected the book list, got %q", out)
	}
	if n := c.srv.Calls(authtest.PathRefresh); n != 1 {
		t.Fatalf("expected one refresh, got %d", n)
	}
}

func TestCLIGetWithoutSessionFails(t *testing.T) {
	c := newCLI(t, authtest.Options{})

	code, _, errOut := c.run("", "get", authtest.PathBooks)
	if code != exitFail || !strings.Contains(errOut, "401") {
		t.Fatalf("expected 401 failure, got %d %q", code, errOut)
	}
}

func TestCLIRefreshFailureClearsSession(t *testing.T) {
	c := newCLI(t, authtest.Options{})

	if code, _, errOut := c.run("", "login", "-email", "admin@library.test", "-password", "admin123"); code != exitOK {
		t.Fatalf("login exit %d: %s", code, errOut)
	}
	c.srv.RevokeRefreshTokens()

	code, _, errOut := c.run("", "refresh")
	if code != exitFail || !strings.Contains(errOut, "session cleared") {
		t.Fatalf("expected refresh failure, got %d %q", code, errOut)
	}
	if code, _, _ := c.run("", "whoami"); code != exitFail {
		t.Fatalf("expected no stored profile after failed refresh, got exit %d", code)
	}
}

func TestCLIRedisStoreWithEmbeddedServer(t *testing.T) {
	srv, err := authtest.NewServer(authtest.Options{})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	t.Cleanup(srv.Close)

	var stdout, stderr bytes.Buffer
	args := []string{"-env", "", "-base-url", srv.URL, "-store", storeRedis, "-metrics",
		"login", "-email", "admin@library.test", "-password", "admin123"}
	code := run(context.Background(), args, strings.NewReader(""), &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("login exit %d: %s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), "gosession_login_success_total 1") {
		t.Fatalf("expected metrics on stderr, got %q", stderr.String())
	}
}

func TestCLIUsageErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, strings.NewReader(""), &stdout, &stderr); code != exitUsage {
		t.Fatalf("expected usage exit with no command, got %d", code)
	}

	c := newCLI(t, authtest.Options{})
	if code, _, _ := c.run("", "frobnicate"); code != exitUsage {
		t.Fatalf("expected usage exit for unknown command, got %d", code)
	}
	if code, _, _ := c.run("", "get"); code != exitUsage {
		t.Fatalf("expected usage exit for get without path, got %d", code)
	}

	var errOut bytes.Buffer
	args := []string{"-env", "", "-store", "sqlite", "status"}
	if code := run(context.Background(), args, strings.NewReader(""), &stdout, &errOut); code != exitFail {
		t.Fatalf("expected config failure, got %d", code)
	}
}
