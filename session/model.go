package session

// Role is the authorization role carried by a user profile and by the
// access token's role claim.
type Role string

const (
	// RoleAdmin manages the whole catalog, users and reports.
	RoleAdmin Role = "admin"
	// RoleLibrarian manages loans and inventory.
	RoleLibrarian Role = "librarian"
	// RoleUser is a regular library member.
	RoleUser Role = "user"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLibrarian, RoleUser:
		return true
	default:
		return false
	}
}

// Staff reports whether r may use staff-only screens.
func (r Role) Staff() bool {
	return r == RoleAdmin || r == RoleLibrarian
}

// Status is the account status of a user profile.
type Status string

const (
	// StatusActive marks an account that may sign in.
	StatusActive Status = "active"
	// StatusInactive marks a disabled account.
	StatusInactive Status = "inactive"
)

// UserProfile is the user record returned by the identity endpoints and
// persisted alongside the token pair.
//
// ID is kept as the raw JSON value the server sent (number or string).
type UserProfile struct {
	ID     ID     `json:"id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Role   Role   `json:"role"`
	Status Status `json:"status,omitempty"`
}

// Session is the authenticated state of the application: the token pair
// and the profile they were issued for.
//
// The three fields are stored under independent keys but are always written
// and cleared together by the auth client.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *UserProfile
}

// Empty reports whether no part of the session is present.
func (s Session) Empty() bool {
	return s.AccessToken == "" && s.RefreshToken == "" && s.User == nil
}
