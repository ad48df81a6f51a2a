package middleware

import (
	"net/http"
	"slices"

	"github.com/MrEthical07/goSession/session"
)

// RequireRole admits authenticated users holding one of roles.
func RequireRole(src SessionSource, loginPath string, roles ...session.Role) func(http.Handler) http.Handler {
	allowed := slices.Clone(roles)
	return Guard(src, loginPath, func(u *session.UserProfile) bool {
		return slices.Contains(allowed, u.Role)
	})
}

// RequireStaff admits admins and librarians.
func RequireStaff(src SessionSource, loginPath string) func(http.Handler) http.Handler {
	return Guard(src, loginPath, func(u *session.UserProfile) bool {
		return u.Role.Staff()
	})
}
