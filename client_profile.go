package goSession

import (
	"context"
	"strconv"

	"github.com/MrEthical07/goSession/session"
	"go.uber.org/zap"
)

// GetProfile fetches the signed-in user's profile through the token
// pipeline. The stored profile is not changed.
func (c *Client) GetProfile(ctx context.Context) (*session.UserProfile, error) {
	if _, ok := c.AccessToken(ctx); !ok {
		return nil, ErrNotAuthenticated
	}

	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()

	var env profileEnvelope
	if err := c.api.Get(reqCtx, c.config.Endpoints.Profile, &env); err != nil {
		return nil, err
	}
	if env.User == nil {
		return nil, &AuthError{Op: "get profile", Err: ErrMissingUser}
	}
	return env.User, nil
}

// UpdateProfile sends update through the token pipeline and stores the
// returned profile. Errors are returned for display.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*session.UserProfile, error) {
	if _, ok := c.AccessToken(ctx); !ok {
		return nil, ErrNotAuthenticated
	}
	if update.NewPassword != "" && update.CurrentPassword == "" {
		return nil, &AuthError{Op: "update profile", Err: ErrCurrentPasswordRequired}
	}

	reqCtx, cancel := c.requestContext(ctx)
	defer cancel()

	var env profileEnvelope
	if err := c.api.Put(reqCtx, c.config.Endpoints.UpdateProfile, update, &env); err != nil {
		c.emitAudit(ctx, auditEventProfileUpdateFailed, false, nil, err, nil)
		return nil, err
	}
	if env.User == nil {
		err := &AuthError{Op: "update profile", Err: ErrMissingUser}
		c.emitAudit(ctx, auditEventProfileUpdateFailed, false, nil, err, nil)
		return nil, err
	}

	if err := c.SetUser(ctx, *env.User); err != nil {
		c.logger.Error("profile updated but could not be stored", zap.Error(err))
		return env.User, err
	}
	c.emitAudit(ctx, auditEventProfileUpdated, true, env.User, nil, func() map[string]string {
		return map[string]string{"password_changed": strconv.FormatBool(update.NewPassword != "")}
	})
	return env.User, nil
}
