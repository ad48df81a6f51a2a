package goSession

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/session"
	"go.uber.org/zap"
)

const refreshFlightKey = "refresh"

// RefreshToken exchanges the stored refresh token for a new access token.
//
// Concurrent calls share one in-flight exchange. Any failure, including a
// missing refresh token or a timeout, clears the session and notifies
// listeners before the error is returned. A logout or login that happens
// while the exchange is in flight wins: the result is discarded and
// ErrSessionClosed is returned.
//
// Cancelling ctx stops the wait, not the shared exchange, which stays
// bounded by Config.RequestTimeout.
func (c *Client) RefreshToken(ctx context.Context) (RefreshResponse, error) {
	if c == nil {
		return RefreshResponse{}, ErrClientNotReady
	}

	ch := c.refreshGroup.DoChan(refreshFlightKey, func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metricInc(MetricRefreshCoalesced)
		}
		if res.Err != nil {
			return RefreshResponse{}, res.Err
		}
		return res.Val.(RefreshResponse), nil
	case <-ctx.Done():
		return RefreshResponse{}, ctx.Err()
	}
}

// RefreshAccessToken returns a usable access token after the server
// rejected failed. When the stored token already differs from failed,
// another caller refreshed first and the stored token is returned without
// a network call.
//
// When a token was sent but the session has since been cleared, the 401
// belongs to a session that no longer exists: ErrSessionClosed is
// returned and nothing is refreshed or invalidated.
func (c *Client) RefreshAccessToken(ctx context.Context, failed string) (string, error) {
	current, ok := c.AccessToken(ctx)
	if ok && current != failed {
		return current, nil
	}
	if !ok && failed != "" {
		c.logger.Debug("401 for a session that has already ended")
		return "", ErrSessionClosed
	}
	resp, err := c.RefreshToken(ctx)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

func (c *Client) refresh(ctx context.Context) (RefreshResponse, error) {
	epoch := c.currentEpoch()
	start := time.Now()

	refreshToken, ok, err := c.store.Get(ctx, session.KeyRefreshToken)
	if err != nil {
		c.metricInc(MetricStoreError)
		c.logger.Warn("refresh token unreadable", zap.Error(err))
		ok = false
	}
	if !ok || refreshToken == "" {
		if _, hasToken := c.AccessToken(ctx); !hasToken {
			// Nothing to refresh and nothing to end.
			return RefreshResponse{}, &AuthError{Op: "refresh", Err: ErrNotAuthenticated}
		}
		return RefreshResponse{}, c.refreshFailed(ctx, epoch, "", &AuthError{Op: "refresh", Err: ErrNoRefreshToken})
	}

	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()

	var resp RefreshResponse
	body := map[string]string{"refreshToken": refreshToken}
	err = c.raw.Post(reqCtx, c.config.Endpoints.Refresh, body, &resp)
	if c.metrics.LatencyEnabled() {
		c.metrics.Observe(MetricRefreshLatency, time.Since(start))
	}
	if err != nil {
		return RefreshResponse{}, c.refreshFailed(ctx, epoch, refreshToken, err)
	}
	if resp.Token == "" {
		return RefreshResponse{}, c.refreshFailed(ctx, epoch, refreshToken, &AuthError{Op: "refresh", Err: ErrMissingToken})
	}

	// The epoch catches changes made by this client; the swap catches
	// logouts and logins made by other clients sharing the store.
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return RefreshResponse{}, c.refreshDiscarded(ctx)
	}
	err = session.SwapTokens(ctx, c.store, refreshToken, resp.Token, resp.RefreshToken)
	if err == nil {
		c.epoch++
	}
	c.mu.Unlock()
	if errors.Is(err, session.ErrSessionChanged) {
		return RefreshResponse{}, c.refreshDiscarded(ctx)
	}
	if err != nil {
		c.metricInc(MetricStoreError)
		return RefreshResponse{}, c.refreshFailed(ctx, epoch, refreshToken, err)
	}

	c.metricInc(MetricRefreshSuccess)
	c.logger.Debug("access token refreshed", zap.Bool("rotated", resp.RefreshToken != ""))
	c.emitAudit(ctx, auditEventRefreshSuccess, true, c.auditUser(ctx), nil, nil)
	return resp, nil
}

func (c *Client) refreshDiscarded(ctx context.Context) error {
	c.metricInc(MetricRefreshDiscarded)
	c.logger.Debug("session changed during refresh, discarding result")
	c.emitAudit(ctx, auditEventRefreshDiscarded, false, nil, ErrSessionClosed, nil)
	return ErrSessionClosed
}

// refreshFailed clears the session if it is still the one the refresh
// started from: same epoch here, and the same stored refresh token when
// used is set. Failures after a logout or a newer login elsewhere report
// ErrSessionClosed and leave the store alone.
func (c *Client) refreshFailed(ctx context.Context, epoch uint64, used string, cause error) error {
	c.metricInc(MetricRefreshFailure)
	c.emitAudit(ctx, auditEventRefreshFailure, false, nil, cause, nil)

	stale := c.currentEpoch() != epoch
	if !stale && used != "" {
		if current, ok := c.StoredRefreshToken(ctx); !ok || current != used {
			stale = true
		}
	}
	if stale {
		c.metricInc(MetricRefreshDiscarded)
		c.logger.Debug("refresh failed after session changed", zap.Error(cause))
		return ErrSessionClosed
	}
	c.invalidate(ctx, ReasonRefreshFailed, cause, true, epoch)
	return cause
}
