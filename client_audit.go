package goSession

import (
	"context"
	"errors"
	"net/http"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/transport"
	"github.com/google/uuid"
)

const (
	auditEventLoginSuccess        = "login_success"
	auditEventLoginFailure        = "login_failure"
	auditEventLogout              = "logout"
	auditEventRefreshSuccess      = "refresh_success"
	auditEventRefreshFailure      = "refresh_failure"
	auditEventRefreshDiscarded    = "refresh_discarded"
	auditEventVerify              = "verify"
	auditEventSessionInvalidated  = "session_invalidated"
	auditEventProfileUpdated      = "profile_updated"
	auditEventProfileUpdateFailed = "profile_update_failed"
)

// AuditErrorCode is the stable error classification stored in AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrMissingToken       AuditErrorCode = "missing_token"
	auditErrMissingUser        AuditErrorCode = "missing_user"
	auditErrNoRefreshToken     AuditErrorCode = "no_refresh_token"
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrSessionClosed      AuditErrorCode = "session_closed"
	auditErrMalformedToken     AuditErrorCode = "malformed_token"
	auditErrStoreUnavailable   AuditErrorCode = "store_unavailable"
	auditErrTimeout            AuditErrorCode = "timeout"
	auditErrServer             AuditErrorCode = "server_error"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (c *Client) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	user *session.UserProfile,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		ID:        uuid.NewString(),
		Timestamp: c.now().UTC(),
		EventType: eventType,
		Success:   success,
		Metadata:  metadata,
	}
	if user != nil {
		event.UserID = string(user.ID)
		event.Role = string(user.Role)
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	c.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var httpErr *transport.HTTPError
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrMissingToken):
		return auditErrMissingToken
	case errors.Is(err, ErrMissingUser):
		return auditErrMissingUser
	case errors.Is(err, ErrNoRefreshToken):
		return auditErrNoRefreshToken
	case errors.Is(err, ErrSessionClosed):
		return auditErrSessionClosed
	case errors.Is(err, jwt.ErrMalformedToken):
		return auditErrMalformedToken
	case errors.Is(err, session.ErrStoreUnavailable):
		return auditErrStoreUnavailable
	case errors.Is(err, transport.ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return auditErrTimeout
	case errors.As(err, &httpErr) && httpErr.StatusCode >= http.StatusInternalServerError:
		return auditErrServer
	default:
		return auditErrInternal
	}
}

// auditUser reads the stored profile only when audit is enabled.
func (c *Client) auditUser(ctx context.Context) *session.UserProfile {
	if c.audit == nil {
		return nil
	}
	return c.GetCurrentUser(ctx)
}
