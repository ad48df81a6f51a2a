package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken is matched by every [DecodeError].
var ErrMalformedToken = errors.New("malformed token")

// DecodeError reports a token string that cannot be read as a claims-bearing
// token. Callers treat it as "no valid session".
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode token: %s: %v", e.Reason, e.Err)
	}
	return "decode token: " + e.Reason
}

// Unwrap lets errors.Is match both ErrMalformedToken and the parser error.
func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedToken}
	}
	return []error{ErrMalformedToken, e.Err}
}

// Claims are the fields the client reads from an access token. They are
// for local gating only; the server remains the authority.
type Claims struct {
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token is expired at now.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// ExpiresWithin reports whether less than d remains before expiry.
func (c Claims) ExpiresWithin(now time.Time, d time.Duration) bool {
	return c.ExpiresAt.Sub(now) < d
}

type tokenClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

var unverifiedParser = jwt.NewParser()

// Decode reads the claims of token without verifying its signature.
// A token without an exp claim is rejected.
func Decode(token string) (Claims, error) {
	if token == "" {
		return Claims{}, &DecodeError{Reason: "empty token"}
	}

	var tc tokenClaims
	if _, _, err := unverifiedParser.ParseUnverified(token, &tc); err != nil {
		return Claims{}, &DecodeError{Reason: "unparseable", Err: err}
	}
	if tc.ExpiresAt == nil {
		return Claims{}, &DecodeError{Reason: "missing exp claim"}
	}

	out := Claims{
		Subject:   tc.Subject,
		Role:      tc.Role,
		ExpiresAt: tc.ExpiresAt.Time,
	}
	if tc.IssuedAt != nil {
		out.IssuedAt = tc.IssuedAt.Time
	}
	return out, nil
}
