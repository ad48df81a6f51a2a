package transport

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader is set on outgoing requests that do not carry one.
const RequestIDHeader = "X-Request-ID"

// ErrBodyNotReplayable is logged when a 401 cannot be retried because the
// request body cannot be read twice.
var ErrBodyNotReplayable = errors.New("request body cannot be replayed")

// TokenSource supplies the current access token.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, bool)
}

// Refresher obtains a new access token after the server rejected failed.
// Implementations may return a newer token without a network call when
// failed is no longer the current one.
type Refresher interface {
	RefreshAccessToken(ctx context.Context, failed string) (string, error)
}

// Options configures a [Transport].
type Options struct {
	// Base performs the actual round trips; http.DefaultTransport when nil.
	Base      http.RoundTripper
	Tokens    TokenSource
	Refresher Refresher
	// OnRefreshFailed runs after a failed refresh, before the 401 is returned.
	OnRefreshFailed func(ctx context.Context, err error)
	// OnRetry runs before the single resend of a request.
	OnRetry func(ctx context.Context)
	Logger  *zap.Logger
}

// Transport attaches bearer credentials and performs the refresh-and-retry
// recovery protocol. It is safe for concurrent use.
type Transport struct {
	base            http.RoundTripper
	tokens          TokenSource
	refresher       Refresher
	onRefreshFailed func(ctx context.Context, err error)
	onRetry         func(ctx context.Context)
	logger          *zap.Logger
}

// New builds a [Transport] from opts.
func New(opts Options) *Transport {
	t := &Transport{
		base:            opts.Base,
		tokens:          opts.Tokens,
		refresher:       opts.Refresher,
		onRefreshFailed: opts.OnRefreshFailed,
		onRetry:         opts.OnRetry,
		logger:          opts.Logger,
	}
	if t.base == nil {
		t.base = http.DefaultTransport
	}
	if t.logger == nil {
		t.logger = zap.NewNop()
	}
	return t
}

// attempt is one send of a logical request. The retry decision is made on
// the attempt number, never on state stored in the request itself.
type attempt struct {
	n     int
	id    string
	token string
	req   *http.Request
}

func (a attempt) retried() bool {
	return a.n > 1
}

type skipRecoveryKey struct{}

// WithoutRecovery marks requests made with ctx as exempt from the
// refresh-and-retry protocol. Identity endpoints use it.
func WithoutRecovery(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipRecoveryKey{}, true)
}

func recoveryDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(skipRecoveryKey{}).(bool)
	return v
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	id := req.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}

	token, _ := t.currentToken(ctx)
	first, err := t.prepare(req, attempt{n: 1, id: id, token: token})
	if err != nil {
		return nil, err
	}

	resp, err := t.base.RoundTrip(first.req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || t.refresher == nil || recoveryDisabled(ctx) {
		return resp, nil
	}
	return t.recover(ctx, req, first, resp)
}

func (t *Transport) recover(ctx context.Context, req *http.Request, prev attempt, resp *http.Response) (*http.Response, error) {
	if prev.retried() {
		return resp, nil
	}
	if !replayable(req) {
		t.logger.Warn("transport: 401 on request with non-replayable body",
			zap.String("request_id", prev.id),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(ErrBodyNotReplayable),
		)
		return resp, nil
	}

	token, err := t.refresher.RefreshAccessToken(ctx, prev.token)
	if err != nil {
		t.logger.Warn("transport: token refresh failed",
			zap.String("request_id", prev.id),
			zap.String("path", req.URL.Path),
			zap.Error(err),
		)
		if t.onRefreshFailed != nil {
			t.onRefreshFailed(ctx, err)
		}
		return resp, nil
	}

	next, err := t.prepare(req, attempt{n: prev.n + 1, id: prev.id, token: token})
	if err != nil {
		return resp, nil
	}
	drainAndClose(resp)

	t.logger.Debug("transport: retrying request with refreshed token",
		zap.String("request_id", prev.id),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
	)
	if t.onRetry != nil {
		t.onRetry(ctx)
	}

	// A 401 here is final: no second refresh.
	return t.base.RoundTrip(next.req)
}

func (t *Transport) currentToken(ctx context.Context) (string, bool) {
	if t.tokens == nil {
		return "", false
	}
	return t.tokens.AccessToken(ctx)
}

// prepare clones req for a.n; the first attempt reuses the caller's body,
// later attempts obtain a fresh copy from GetBody.
func (t *Transport) prepare(req *http.Request, a attempt) (attempt, error) {
	clone := req.Clone(req.Context())
	if a.n > 1 && req.Body != nil && req.Body != http.NoBody {
		body, err := req.GetBody()
		if err != nil {
			return a, err
		}
		clone.Body = body
	}
	if a.token != "" {
		clone.Header.Set("Authorization", "Bearer "+a.token)
	}
	clone.Header.Set(RequestIDHeader, a.id)
	a.req = clone
	return a, nil
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
