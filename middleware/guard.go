package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/sessionctx"
)

// RetryAfterSeconds is sent with 503 responses while the session initializes.
const RetryAfterSeconds = 1

// SessionSource is the read side of a [sessionctx.Context].
type SessionSource interface {
	Snapshot() sessionctx.Snapshot
}

type userContextKey struct{}

// UserFromContext returns the profile of the admitted user.
func UserFromContext(ctx context.Context) (*session.UserProfile, bool) {
	u, ok := ctx.Value(userContextKey{}).(*session.UserProfile)
	return u, ok && u != nil
}

// Guard admits requests when the session is authenticated and allow
// accepts the user. A nil allow admits every authenticated user.
func Guard(src SessionSource, loginPath string, allow func(*session.UserProfile) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if src == nil {
				redirectToLogin(w, r, loginPath)
				return
			}

			snap := src.Snapshot()
			switch snap.State {
			case sessionctx.StateInitializing:
				w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
				http.Error(w, "session initializing", http.StatusServiceUnavailable)
				return
			case sessionctx.StateAuthenticated:
			default:
				redirectToLogin(w, r, loginPath)
				return
			}

			if snap.User == nil {
				redirectToLogin(w, r, loginPath)
				return
			}
			if allow != nil && !allow(snap.User) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey{}, snap.User)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession admits any authenticated user.
func RequireSession(src SessionSource, loginPath string) func(http.Handler) http.Handler {
	return Guard(src, loginPath, nil)
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, loginPath string) {
	target := loginPath
	if r.URL.Path != loginPath {
		target += "?" + url.Values{"next": {r.URL.RequestURI()}}.Encode()
	}
	http.Redirect(w, r, target, http.StatusFound)
}
