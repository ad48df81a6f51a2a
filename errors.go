package goSession

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/transport"
)

var (
	// ErrMissingToken reports an identity response without an access token.
	ErrMissingToken = errors.New("missing token")
	// ErrMissingUser reports a login response without a user profile.
	ErrMissingUser = errors.New("missing user")
	// ErrNoRefreshToken reports a refresh attempted without a stored refresh token.
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrInvalidCredentials wraps the server's rejection of login credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionClosed reports a refresh whose result was discarded because
	// the session was cleared or replaced while it was in flight.
	ErrSessionClosed = errors.New("session closed during refresh")
	// ErrNotAuthenticated reports an operation that needs a session when none exists.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrCurrentPasswordRequired reports a password change without the
	// current password.
	ErrCurrentPasswordRequired = errors.New("current password is required to set a new password")
	// ErrClientNotReady reports use of a nil or unbuilt Client.
	ErrClientNotReady = errors.New("client not initialized")
)

// AuthError is a protocol violation: the identity server answered but its
// response broke the contract, or the client state cannot support the
// operation. It is distinct from network and HTTP errors.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ErrorMessage returns a message suitable for display. Server-provided
// messages are returned verbatim.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var httpErr *transport.HTTPError
	if errors.As(err, &httpErr) && httpErr.Message != "" {
		return httpErr.Message
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Err.Error()
	}

	var decodeErr *jwt.DecodeError
	if errors.As(err, &decodeErr) {
		return "session is no longer valid"
	}

	switch {
	case errors.Is(err, ErrSessionClosed):
		return "session ended"
	case errors.Is(err, ErrNotAuthenticated):
		return "not signed in"
	}
	return err.Error()
}
