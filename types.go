package goSession

import (
	"context"

	"github.com/MrEthical07/goSession/session"
)

// Credentials are sent to the login endpoint.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the identity server's answer to a login.
type LoginResponse struct {
	Token        string               `json:"token"`
	RefreshToken string               `json:"refreshToken,omitempty"`
	User         *session.UserProfile `json:"user,omitempty"`
	Message      string               `json:"message,omitempty"`
}

// RefreshResponse is the identity server's answer to a token refresh. An
// empty RefreshToken keeps the stored one.
type RefreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// ProfileUpdate carries editable profile fields. Setting NewPassword
// requires CurrentPassword.
type ProfileUpdate struct {
	Name            string `json:"name,omitempty"`
	Email           string `json:"email,omitempty"`
	CurrentPassword string `json:"currentPassword,omitempty"`
	NewPassword     string `json:"newPassword,omitempty"`
}

type profileEnvelope struct {
	User *session.UserProfile `json:"user"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

// InvalidationReason says why a session ended.
type InvalidationReason string

const (
	ReasonLogout        InvalidationReason = "logout"
	ReasonDecodeFailure InvalidationReason = "decode_failure"
	ReasonRefreshFailed InvalidationReason = "refresh_failed"
	ReasonVerifyFailed  InvalidationReason = "verify_failed"
)

// Forced reports whether the session ended without the user asking.
func (r InvalidationReason) Forced() bool {
	return r != ReasonLogout
}

// InvalidationFunc is notified after a session is cleared. Forced
// invalidations must route the user to the unauthenticated entry point.
type InvalidationFunc func(ctx context.Context, reason InvalidationReason)
