package authtest

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"io"
	"strings"

	"github.com/MrEthical07/goSession/session"
	"golang.org/x/crypto/argon2"
)

// argon2id cost tuned for a test server, not for production storage.
const (
	hashMemoryKB   = 8 * 1024
	hashTime       = 1
	hashThreads    = 1
	hashSaltLength = 16
	hashKeyLength  = 32
)

var errUnknownUser = errors.New("unknown user")

// User seeds one account of the identity server.
type User struct {
	Profile  session.UserProfile
	Password string
}

type credential struct {
	salt []byte
	key  []byte
}

func newCredential(password string) (credential, error) {
	salt := make([]byte, hashSaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return credential{}, err
	}
	return credential{salt: salt, key: deriveKey(password, salt)}, nil
}

func (c credential) matches(password string) bool {
	return subtle.ConstantTimeCompare(deriveKey(password, c.salt), c.key) == 1
}

func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, hashTime, hashMemoryKB, hashThreads, hashKeyLength)
}

type account struct {
	profile session.UserProfile
	cred    credential
}

// directory indexes accounts by lowercased email and by ID. Callers hold
// the backend mutex.
type directory struct {
	byEmail map[string]*account
	byID    map[session.ID]*account
}

func newDirectory(users []User) (*directory, error) {
	d := &directory{
		byEmail: make(map[string]*account, len(users)),
		byID:    make(map[session.ID]*account, len(users)),
	}
	for _, u := range users {
		if u.Profile.ID == "" || u.Profile.Email == "" {
			return nil, errors.New("authtest: seeded user needs id and email")
		}
		if !u.Profile.Role.Valid() {
			return nil, errors.New("authtest: seeded user has unknown role " + string(u.Profile.Role))
		}
		cred, err := newCredential(u.Password)
		if err != nil {
			return nil, err
		}
		a := &account{profile: u.Profile, cred: cred}
		if a.profile.Status == "" {
			a.profile.Status = session.StatusActive
		}
		d.byEmail[strings.ToLower(u.Profile.Email)] = a
		d.byID[u.Profile.ID] = a
	}
	return d, nil
}

// authenticate returns the account for email when password matches. The
// key derivation runs for unknown emails too.
func (d *directory) authenticate(email, password string) (*account, bool) {
	a, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		deriveKey(password, make([]byte, hashSaltLength))
		return nil, false
	}
	return a, a.cred.matches(password)
}

func (d *directory) lookup(id session.ID) (*account, error) {
	a, ok := d.byID[id]
	if !ok {
		return nil, errUnknownUser
	}
	return a, nil
}

func (d *directory) setPassword(a *account, password string) error {
	cred, err := newCredential(password)
	if err != nil {
		return err
	}
	a.cred = cred
	return nil
}

func (d *directory) setEmail(a *account, email string) bool {
	key := strings.ToLower(strings.TrimSpace(email))
	if other, ok := d.byEmail[key]; ok && other != a {
		return false
	}
	delete(d.byEmail, strings.ToLower(a.profile.Email))
	a.profile.Email = strings.TrimSpace(email)
	d.byEmail[key] = a
	return true
}

// DefaultUsers are the accounts seeded when Options.Users is empty.
func DefaultUsers() []User {
	return []User{
		{
			Profile:  session.UserProfile{ID: "1", Name: "Ada Admin", Email: "admin@library.test", Role: session.RoleAdmin, Status: session.StatusActive},
			Password: "admin123",
		},
		{
			Profile:  session.UserProfile{ID: "2", Name: "Lena Librarian", Email: "librarian@library.test", Role: session.RoleLibrarian, Status: session.StatusActive},
			Password: "librarian123",
		},
		{
			Profile:  session.UserProfile{ID: "3", Name: "Uma User", Email: "user@library.test", Role: session.RoleUser, Status: session.StatusActive},
			Password: "user123",
		},
		{
			Profile:  session.UserProfile{ID: "4", Name: "Ivan Inactive", Email: "inactive@library.test", Role: session.RoleUser, Status: session.StatusInactive},
			Password: "inactive123",
		},
	}
}
