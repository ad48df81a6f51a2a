package goSession

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/transport"
	"go.uber.org/zap"
)

// AccessToken returns the stored access token. A store failure is logged
// and reported as absent. It implements transport.TokenSource.
func (c *Client) AccessToken(ctx context.Context) (string, bool) {
	return c.readKey(ctx, session.KeyAccessToken)
}

// StoredRefreshToken returns the stored refresh token.
func (c *Client) StoredRefreshToken(ctx context.Context) (string, bool) {
	return c.readKey(ctx, session.KeyRefreshToken)
}

func (c *Client) readKey(ctx context.Context, key session.Key) (string, bool) {
	v, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.metricInc(MetricStoreError)
		c.logger.Warn("session store read failed", zap.String("key", string(key)), zap.Error(err))
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// Session returns the stored session. A corrupt profile loads as nil.
func (c *Client) Session(ctx context.Context) session.Session {
	sess, err := session.Load(ctx, c.store)
	if err != nil {
		c.metricInc(MetricStoreError)
		c.logger.Warn("session store read failed", zap.Error(err))
	}
	return sess
}

// GetCurrentUser returns the stored profile, or nil when none is stored or
// the stored value cannot be parsed.
func (c *Client) GetCurrentUser(ctx context.Context) *session.UserProfile {
	raw, ok := c.readKey(ctx, session.KeyUser)
	if !ok {
		return nil
	}
	u, ok := session.DecodeUser(raw)
	if !ok {
		c.metricInc(MetricCorruptProfile)
		c.logger.Warn("stored user profile is corrupt, treating as absent")
		return nil
	}
	return u
}

// SetUser replaces the stored profile. Tokens are untouched. Without a
// stored access token it returns ErrNotAuthenticated, so a profile never
// outlives its session.
func (c *Client) SetUser(ctx context.Context, u session.UserProfile) error {
	raw, err := session.EncodeUser(u)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok, err := c.store.Get(ctx, session.KeyAccessToken)
	if err == nil && !ok {
		return ErrNotAuthenticated
	}
	if err == nil {
		err = c.store.Set(ctx, session.KeyUser, raw)
	}
	if err != nil {
		c.metricInc(MetricStoreError)
		return err
	}
	return nil
}

// IsAuthenticated reports whether a stored access token exists and has not
// expired. A token that cannot be decoded clears the session.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	claims, ok := c.decodeStored(ctx)
	if !ok {
		return false
	}
	return !claims.Expired(c.now())
}

// TokenInfo returns the decoded claims of the stored access token.
func (c *Client) TokenInfo(ctx context.Context) (jwt.Claims, bool) {
	return c.decodeStored(ctx)
}

// IsTokenExpiringSoon reports whether less than threshold remains before
// the stored token expires. A zero threshold uses
// Config.ExpiringSoonThreshold. Without a readable token it returns false.
func (c *Client) IsTokenExpiringSoon(ctx context.Context, threshold time.Duration) bool {
	if threshold <= 0 {
		threshold = c.config.ExpiringSoonThreshold
	}
	claims, ok := c.decodeStored(ctx)
	if !ok {
		return false
	}
	return claims.ExpiresWithin(c.now(), threshold)
}

// decodeStored decodes the stored access token. Decode failure is not an
// error for callers: the session is invalidated and false is returned.
func (c *Client) decodeStored(ctx context.Context) (jwt.Claims, bool) {
	epoch := c.currentEpoch()
	token, ok := c.AccessToken(ctx)
	if !ok {
		return jwt.Claims{}, false
	}

	claims, err := jwt.Decode(token)
	if err != nil {
		c.metricInc(MetricDecodeFailure)
		c.invalidate(ctx, ReasonDecodeFailure, err, true, epoch)
		return jwt.Claims{}, false
	}
	return claims, true
}

// VerifyToken asks the server whether the stored access token is still
// valid. Any network or server failure counts as not verified. It does not
// clear the session.
func (c *Client) VerifyToken(ctx context.Context) bool {
	token, ok := c.AccessToken(ctx)
	if !ok {
		return false
	}

	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()

	var resp verifyResponse
	body := map[string]string{"token": token}
	err := c.raw.Post(reqCtx, c.config.Endpoints.Verify, body, &resp, transport.WithBearer(token))
	if err != nil || !resp.Valid {
		c.metricInc(MetricVerifyFailure)
		c.logger.Debug("token verification failed", zap.Bool("valid", resp.Valid), zap.Error(err))
		c.emitAudit(ctx, auditEventVerify, false, nil, err, nil)
		return false
	}

	c.metricInc(MetricVerifySuccess)
	c.emitAudit(ctx, auditEventVerify, true, nil, nil, nil)
	return true
}

// HasRole reports whether the stored user has role. False without a user.
func (c *Client) HasRole(ctx context.Context, role session.Role) bool {
	u := c.GetCurrentUser(ctx)
	return u != nil && u.Role == role
}

// IsAdmin reports whether the stored user is an admin.
func (c *Client) IsAdmin(ctx context.Context) bool {
	return c.HasRole(ctx, session.RoleAdmin)
}

// IsLibrarian reports whether the stored user is a librarian.
func (c *Client) IsLibrarian(ctx context.Context) bool {
	return c.HasRole(ctx, session.RoleLibrarian)
}

// IsUser reports whether the stored user has the plain user role.
func (c *Client) IsUser(ctx context.Context) bool {
	return c.HasRole(ctx, session.RoleUser)
}

// IsStaff reports whether the stored user is an admin or a librarian.
func (c *Client) IsStaff(ctx context.Context) bool {
	u := c.GetCurrentUser(ctx)
	return u != nil && u.Role.Staff()
}
