package goSession

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/transport"
	"go.uber.org/zap"
)

// Login sends creds to the login endpoint and stores the returned session.
//
// Server rejections (400, 401) are returned wrapped in ErrInvalidCredentials
// with the server's message preserved. A response without a token or user
// is an *AuthError. Network errors are returned as is. The full response
// is returned on success.
func (c *Client) Login(ctx context.Context, creds Credentials) (LoginResponse, error) {
	if c == nil {
		return LoginResponse{}, ErrClientNotReady
	}

	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()

	var resp LoginResponse
	if err := c.raw.Post(reqCtx, c.config.Endpoints.Login, creds, &resp); err != nil {
		var httpErr *transport.HTTPError
		if errors.As(err, &httpErr) &&
			(httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusBadRequest) {
			err = fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		c.metricInc(MetricLoginFailure)
		c.logger.Debug("login failed", zap.Error(err))
		c.emitAudit(ctx, auditEventLoginFailure, false, nil, err, nil)
		return LoginResponse{}, err
	}

	if resp.Token == "" {
		return LoginResponse{}, c.loginProtocolError(ctx, ErrMissingToken)
	}
	if resp.User == nil {
		return LoginResponse{}, c.loginProtocolError(ctx, ErrMissingUser)
	}

	sess := session.Session{
		AccessToken:  resp.Token,
		RefreshToken: resp.RefreshToken,
		User:         resp.User,
	}

	c.mu.Lock()
	c.epoch++
	err := session.Write(context.WithoutCancel(ctx), c.store, sess)
	c.mu.Unlock()
	if err != nil {
		c.metricInc(MetricStoreError)
		c.metricInc(MetricLoginFailure)
		c.logger.Error("login succeeded but session could not be stored", zap.Error(err))
		_, _ = c.clearSession(ctx, false, 0)
		c.emitAudit(ctx, auditEventLoginFailure, false, resp.User, err, nil)
		return LoginResponse{}, err
	}

	c.metricInc(MetricLoginSuccess)
	c.logger.Debug("login succeeded",
		zap.String("user_id", string(resp.User.ID)),
		zap.String("role", string(resp.User.Role)),
		zap.Bool("refresh_token", resp.RefreshToken != ""),
	)
	c.emitAudit(ctx, auditEventLoginSuccess, true, resp.User, nil, nil)
	return resp, nil
}

func (c *Client) loginProtocolError(ctx context.Context, cause error) error {
	err := &AuthError{Op: "login", Err: cause}
	c.metricInc(MetricLoginProtocolError)
	c.metricInc(MetricLoginFailure)
	c.logger.Warn("identity server returned malformed login response", zap.Error(err))
	c.emitAudit(ctx, auditEventLoginFailure, false, nil, err, nil)
	return err
}

// Logout notifies the server when an access token exists and then clears
// the session regardless of the outcome. Only a store failure is returned.
func (c *Client) Logout(ctx context.Context) error {
	return c.endSession(ctx, ReasonLogout)
}

// Invalidate ends the session like Logout but reports reason to listeners.
// Used when the session is found to be invalid, for example after a failed
// server-side verification.
func (c *Client) Invalidate(ctx context.Context, reason InvalidationReason) error {
	return c.endSession(ctx, reason)
}

func (c *Client) endSession(ctx context.Context, reason InvalidationReason) error {
	if c == nil {
		return ErrClientNotReady
	}

	user := c.auditUser(ctx)
	if token, ok := c.AccessToken(ctx); ok {
		c.notifyLogout(ctx, token)
	}

	_, err := c.clearSession(ctx, false, 0)

	if reason.Forced() {
		c.metricInc(MetricSessionInvalidated)
		c.logger.Warn("session invalidated", zap.String("reason", string(reason)))
		c.emitAudit(ctx, auditEventSessionInvalidated, err == nil, user, err, func() map[string]string {
			return map[string]string{"reason": string(reason)}
		})
	} else {
		c.metricInc(MetricLogout)
		c.logger.Debug("logged out")
		c.emitAudit(ctx, auditEventLogout, err == nil, user, err, nil)
	}
	c.notifyInvalidated(ctx, reason)
	return err
}

// notifyLogout is best effort: failures are logged and counted.
func (c *Client) notifyLogout(ctx context.Context, token string) {
	reqCtx, cancel := c.requestContext(context.WithoutCancel(ctx))
	defer cancel()

	body := map[string]string{"token": token}
	if err := c.raw.Post(reqCtx, c.config.Endpoints.Logout, body, nil, transport.WithBearer(token)); err != nil {
		c.metricInc(MetricLogoutNotifyFailure)
		c.logger.Warn("logout notification failed", zap.Error(err))
	}
}
