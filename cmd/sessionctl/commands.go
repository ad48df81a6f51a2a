package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/authtest"
	"github.com/MrEthical07/goSession/internal/logging"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/sessionctx"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type app struct {
	cfg    cliConfig
	logger *zap.Logger
	client *goSession.Client
	closer []func() error

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sessionctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	envFile := fs.String("env", ".env", "dotenv file to load, empty to skip")
	baseURL := fs.String("base-url", "", "identity server base URL")
	storeKind := fs.String("store", "", "session store: bolt, redis or memory")
	boltPath := fs.String("bolt-path", "", "bbolt file for the bolt store")
	redisAddr := fs.String("redis-addr", "", "redis address; embedded miniredis when empty")
	showMetrics := fs.Bool("metrics", false, "print session metrics to stderr after the command")
	audit := fs.Bool("audit", false, "log session audit events")
	fs.Usage = func() {
		usage(stderr)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	cfg, err := loadConfig(*envFile)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFail
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *storeKind != "" {
		cfg.Store = *storeKind
	}
	if *boltPath != "" {
		cfg.BoltPath = *boltPath
	}
	if *redisAddr != "" {
		cfg.RedisAddr = *redisAddr
	}
	cfg.Store = strings.ToLower(cfg.Store)
	if err := cfg.validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitFail
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding}, stderr)
	defer func() { _ = logger.Sync() }()

	command, rest := fs.Arg(0), fs.Args()[1:]
	if command == "mock" {
		return runMock(ctx, cfg, logger, rest, stdout, stderr)
	}

	a, err := newApp(ctx, cfg, logger, *audit, *showMetrics)
	if err != nil {
		fmt.Fprintf(stderr, "sessionctl: %v\n", err)
		return exitFail
	}
	defer a.close()
	a.stdin, a.stdout, a.stderr = stdin, stdout, stderr

	var code int
	switch command {
	case "login":
		code = a.login(ctx, rest)
	case "logout":
		code = a.logout(ctx)
	case "status":
		code = a.status(ctx, rest)
	case "whoami":
		code = a.whoami(ctx)
	case "refresh":
		code = a.refresh(ctx)
	case "verify":
		code = a.verify(ctx)
	case "get":
		code = a.get(ctx, rest)
	default:
		fmt.Fprintf(stderr, "sessionctl: unknown command %q\n", command)
		usage(stderr)
		return exitUsage
	}

	if *showMetrics {
		fmt.Fprint(stderr, prometheus.NewPrometheusExporter(a.client).Render())
	}
	return code
}

func newApp(ctx context.Context, cfg cliConfig, logger *zap.Logger, audit, metrics bool) (*app, error) {
	timeout, _ := cfg.requestTimeout()
	soon, _ := cfg.expiringSoon()

	clientCfg := goSession.DefaultConfig()
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.RequestTimeout = timeout
	clientCfg.ExpiringSoonThreshold = soon
	clientCfg.Session.RedisPrefix = cfg.RedisPrefix
	clientCfg.Audit.Enabled = audit
	clientCfg.Metrics.Enabled = metrics
	clientCfg.Metrics.EnableLatencyHistograms = metrics

	a := &app{cfg: cfg, logger: logger}
	b := goSession.New().WithConfig(clientCfg).WithLogger(logger)
	if audit {
		b.WithAuditSink(goSession.NewZapSink(logger))
	}

	switch cfg.Store {
	case storeBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.BoltPath), 0o700); err != nil {
			return nil, fmt.Errorf("create session directory: %w", err)
		}
		store, err := session.OpenBoltStore(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		a.closer = append(a.closer, store.Close)
		b.WithStore(store)
	case storeRedis:
		rdb, err := a.openRedis(ctx)
		if err != nil {
			a.close()
			return nil, err
		}
		b.WithRedis(rdb)
	case storeMemory:
		b.WithStore(session.NewMemoryStore())
	}

	client, err := b.Build()
	if err != nil {
		a.close()
		return nil, err
	}
	a.client = client
	a.closer = append(a.closer, func() error { client.Close(); return nil })
	return a, nil
}

func (a *app) openRedis(ctx context.Context) (redis.UniversalClient, error) {
	addr := a.cfg.RedisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start miniredis: %w", err)
		}
		a.closer = append(a.closer, func() error { mr.Close(); return nil })
		addr = mr.Addr()
		a.logger.Warn("no redis address configured, session lives in an embedded miniredis", zap.String("addr", addr))
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	a.closer = append(a.closer, rdb.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := session.NewRedisStore(rdb, a.cfg.RedisPrefix).Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return rdb, nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		if err := a.closer[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closer = nil
}

func (a *app) fail(format string, args ...any) int {
	fmt.Fprintf(a.stderr, format+"\n", args...)
	return exitFail
}

func (a *app) login(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password; read from stdin when empty")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *email == "" {
		fmt.Fprintln(a.stderr, "login: -email is required")
		return exitUsage
	}

	pw := *password
	if pw == "" {
		line, err := bufio.NewReader(a.stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return a.fail("login: read password: %v", err)
		}
		pw = strings.TrimRight(line, "\r\n")
	}

	resp, err := a.client.Login(ctx, goSession.Credentials{Email: *email, Password: pw})
	if err != nil {
		return a.fail("login failed: %s", goSession.ErrorMessage(err))
	}
	fmt.Fprintf(a.stdout, "signed in as %s <%s> (%s)\n", resp.User.Name, resp.User.Email, resp.User.Role)
	return exitOK
}

func (a *app) logout(ctx context.Context) int {
	if err := a.client.Logout(ctx); err != nil {
		return a.fail("logout: %s", goSession.ErrorMessage(err))
	}
	fmt.Fprintln(a.stdout, "signed out")
	return exitOK
}

func (a *app) status(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	within := fs.Duration("within", 0, "expiring-soon threshold; configured default when zero")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	claims, ok := a.client.TokenInfo(ctx)
	if !ok {
		fmt.Fprintln(a.stdout, "authenticated: no")
		return exitFail
	}

	authenticated := a.client.IsAuthenticated(ctx)
	fmt.Fprintf(a.stdout, "authenticated: %s\n", yesNo(authenticated))
	fmt.Fprintf(a.stdout, "subject:       %s\n", claims.Subject)
	fmt.Fprintf(a.stdout, "role:          %s\n", claims.Role)
	fmt.Fprintf(a.stdout, "expires:       %s (%s)\n",
		claims.ExpiresAt.Format(time.RFC3339), time.Until(claims.ExpiresAt).Round(time.Second))
	fmt.Fprintf(a.stdout, "expiring soon: %s\n", yesNo(a.client.IsTokenExpiringSoon(ctx, *within)))
	if _, ok := a.client.StoredRefreshToken(ctx); ok {
		fmt.Fprintln(a.stdout, "refresh token: stored")
	}
	if !authenticated {
		return exitFail
	}
	return exitOK
}

func (a *app) whoami(ctx context.Context) int {
	u := a.client.GetCurrentUser(ctx)
	if u == nil {
		return a.fail("not signed in")
	}
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(u); err != nil {
		return a.fail("whoami: %v", err)
	}
	return exitOK
}

func (a *app) refresh(ctx context.Context) int {
	if _, err := a.client.RefreshToken(ctx); err != nil {
		return a.fail("refresh failed, session cleared: %s", goSession.ErrorMessage(err))
	}
	claims, _ := a.client.TokenInfo(ctx)
	fmt.Fprintf(a.stdout, "access token refreshed, expires %s\n", claims.ExpiresAt.Format(time.RFC3339))
	return exitOK
}

func (a *app) verify(ctx context.Context) int {
	sc := sessionctx.New(a.client, sessionctx.WithLogger(a.logger))
	defer sc.Close()
	sc.Init(ctx)

	snap := sc.Snapshot()
	if snap.State != sessionctx.StateAuthenticated {
		if snap.Error != "" {
			return a.fail("session invalid: %s", snap.Error)
		}
		return a.fail("not signed in")
	}
	fmt.Fprintf(a.stdout, "session valid for %s (%s)\n", snap.User.Email, snap.User.Role)
	return exitOK
}

func (a *app) get(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(a.stderr, "get: exactly one path is required")
		return exitUsage
	}

	target := args[0]
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = strings.TrimRight(a.client.Config().BaseURL, "/") + "/" + strings.TrimLeft(target, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return a.fail("get: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.HTTPClient().Do(req)
	if err != nil {
		return a.fail("get: %v", err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(a.stdout, resp.Body); err != nil {
		return a.fail("get: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return a.fail("get: %s", resp.Status)
	}
	return exitOK
}

func runMock(ctx context.Context, cfg cliConfig, logger *zap.Logger, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mock", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", cfg.MockAddr, "listen address")
	ttl := fs.Duration("access-ttl", 15*time.Minute, "access token lifetime")
	rotate := fs.Bool("rotate", false, "rotate refresh tokens on every refresh")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	backend, err := authtest.NewBackend(authtest.Options{
		AccessTTL:           *ttl,
		RotateRefreshTokens: *rotate,
		Logger:              logger,
	})
	if err != nil {
		fmt.Fprintf(stderr, "mock: %v\n", err)
		return exitFail
	}

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		fmt.Fprintf(stderr, "mock: %v\n", err)
		return exitFail
	}
	srv := &http.Server{Handler: backend, ReadHeaderTimeout: 5 * time.Second}

	fmt.Fprintf(stdout, "identity server listening on http://%s\n", ln.Addr())
	for _, u := range authtest.DefaultUsers() {
		fmt.Fprintf(stdout, "  %-10s %-26s %s\n", u.Profile.Role, u.Profile.Email, u.Password)
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(stderr, "mock: %v\n", err)
			return exitFail
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("mock shutdown", zap.Error(err))
		}
	}
	return exitOK
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
