package sessionctx

import (
	"context"
	"errors"
	"sync"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/session"
	"go.uber.org/zap"
)

// State is the lifecycle state of a [Context].
type State int

const (
	StateInitializing State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// Snapshot is the published view of a [Context]. User is a copy and may be
// modified by the receiver.
type Snapshot struct {
	State   State
	User    *session.UserProfile
	Loading bool
	// Error is a displayable message for the last failed operation.
	Error string
	// Reason is set when the session ended without the user asking.
	Reason goSession.InvalidationReason
}

// Authenticator is the part of *goSession.Client a Context drives.
type Authenticator interface {
	IsAuthenticated(ctx context.Context) bool
	GetCurrentUser(ctx context.Context) *session.UserProfile
	VerifyToken(ctx context.Context) bool
	Login(ctx context.Context, creds goSession.Credentials) (goSession.LoginResponse, error)
	Logout(ctx context.Context) error
	Invalidate(ctx context.Context, reason goSession.InvalidationReason) error
	UpdateProfile(ctx context.Context, update goSession.ProfileUpdate) (*session.UserProfile, error)
	SetUser(ctx context.Context, u session.UserProfile) error
	OnInvalidate(fn goSession.InvalidationFunc) func()
}

// SessionExpiredMessage is published when the session is ended by the
// HTTP pipeline or by a failed startup verification.
const SessionExpiredMessage = "Your session has expired. Please sign in again."

// Option configures a [Context].
type Option func(*Context)

// WithLogger sets the logger; zap.NewNop when unset.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Context) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithErrorMessage sets how operation errors become display text.
// goSession.ErrorMessage by default.
func WithErrorMessage(fn func(error) string) Option {
	return func(c *Context) {
		if fn != nil {
			c.message = fn
		}
	}
}

// Context is the reactive session state of the application.
type Context struct {
	auth    Authenticator
	logger  *zap.Logger
	message func(error) string

	// ops serializes user-facing operations.
	ops sync.Mutex

	mu      sync.Mutex
	snap    Snapshot
	version uint64

	subsMu  sync.Mutex
	subs    map[uint64]func(Snapshot)
	nextSub uint64

	// deliverMu guards the delivery queue. Subscribers run without it.
	deliverMu      sync.Mutex
	delivered      uint64
	pending        Snapshot
	pendingVersion uint64
	draining       bool

	stopListening func()
}

// New returns a Context in the Initializing state and registers it for
// forced invalidations on auth. Call [Context.Init] to settle the state.
func New(auth Authenticator, opts ...Option) *Context {
	c := &Context{
		auth:    auth,
		logger:  zap.NewNop(),
		message: goSession.ErrorMessage,
		snap:    Snapshot{State: StateInitializing, Loading: true},
		subs:    make(map[uint64]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("sessionctx")
	c.stopListening = auth.OnInvalidate(c.onInvalidate)
	return c
}

// Close stops listening for invalidations. Subscribers are kept.
func (c *Context) Close() {
	if c.stopListening != nil {
		c.stopListening()
	}
}

// Snapshot returns the current state.
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copySnapshot(c.snap)
}

// Subscribe calls fn after every state change. The returned function
// removes fn. fn runs without internal locks held, so it may unsubscribe
// itself or call ClearError; a state change made from fn is delivered
// once the current round of subscribers returns.
func (c *Context) Subscribe(fn func(Snapshot)) func() {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	return func() {
		c.subsMu.Lock()
		delete(c.subs, id)
		c.subsMu.Unlock()
	}
}

// Init runs the startup lifecycle. A stored, unexpired token with a
// readable profile is loaded optimistically and then verified with the
// server; a failed verification ends the session. Init may be called
// again to re-check the stored session.
func (c *Context) Init(ctx context.Context) {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.update(func(s *Snapshot) {
		s.State = StateInitializing
		s.Loading = true
		s.Error = ""
		s.Reason = ""
	})

	if !c.auth.IsAuthenticated(ctx) {
		c.settleUnauthenticated("", "")
		return
	}

	user := c.auth.GetCurrentUser(ctx)
	if user == nil {
		c.logger.Warn("stored token has no readable profile, ending session")
		c.forceEnd(ctx, goSession.ReasonDecodeFailure)
		return
	}
	c.update(func(s *Snapshot) { s.User = user })

	if !c.auth.VerifyToken(ctx) {
		c.logger.Info("stored session failed server verification")
		c.forceEnd(ctx, goSession.ReasonVerifyFailed)
		return
	}

	c.update(func(s *Snapshot) {
		s.State = StateAuthenticated
		s.User = user
		s.Loading = false
	})
	c.logger.Debug("session restored", zap.String("user_id", string(user.ID)))
}

// Login authenticates with creds. On failure the state is unchanged and
// the error is both returned and published as display text.
func (c *Context) Login(ctx context.Context, creds goSession.Credentials) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.update(func(s *Snapshot) {
		s.Loading = true
		s.Error = ""
	})

	resp, err := c.auth.Login(ctx, creds)
	if err != nil {
		msg := c.message(err)
		c.update(func(s *Snapshot) {
			s.Loading = false
			s.Error = msg
		})
		return err
	}

	c.update(func(s *Snapshot) {
		s.State = StateAuthenticated
		s.User = resp.User
		s.Loading = false
		s.Reason = ""
	})
	return nil
}

// Logout ends the session. The Context is Unauthenticated afterwards even
// when the store could not be cleared; that error is returned.
func (c *Context) Logout(ctx context.Context) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.update(func(s *Snapshot) { s.Loading = true })

	err := c.auth.Logout(ctx)
	msg := ""
	if err != nil {
		c.logger.Error("logout could not clear the stored session", zap.Error(err))
		msg = c.message(err)
	}
	c.settleUnauthenticated(msg, "")
	return err
}

// UpdateProfile sends update to the server and holds the returned profile.
func (c *Context) UpdateProfile(ctx context.Context, update goSession.ProfileUpdate) (*session.UserProfile, error) {
	c.ops.Lock()
	defer c.ops.Unlock()

	if c.Snapshot().State != StateAuthenticated {
		return nil, goSession.ErrNotAuthenticated
	}
	c.update(func(s *Snapshot) {
		s.Loading = true
		s.Error = ""
	})

	user, err := c.auth.UpdateProfile(ctx, update)
	if err != nil {
		msg := c.message(err)
		c.update(func(s *Snapshot) {
			s.Loading = false
			if s.State == StateAuthenticated {
				s.Error = msg
			}
		})
		return nil, err
	}

	c.update(func(s *Snapshot) {
		s.Loading = false
		if s.State == StateAuthenticated {
			s.User = user
		}
	})
	return copyUser(user), nil
}

// UpdateUser stores u as the current profile without a server call.
func (c *Context) UpdateUser(ctx context.Context, u session.UserProfile) error {
	c.ops.Lock()
	defer c.ops.Unlock()

	if c.Snapshot().State != StateAuthenticated {
		return goSession.ErrNotAuthenticated
	}
	if err := c.auth.SetUser(ctx, u); err != nil {
		if errors.Is(err, goSession.ErrNotAuthenticated) {
			c.settleUnauthenticated("", "")
		}
		return err
	}
	c.update(func(s *Snapshot) {
		if s.State == StateAuthenticated {
			s.User = &u
		}
	})
	return nil
}

// ClearError drops the published error message.
func (c *Context) ClearError() {
	c.update(func(s *Snapshot) { s.Error = "" })
}

// IsAuthenticated reports whether the Context is Authenticated.
func (c *Context) IsAuthenticated() bool {
	return c.Snapshot().State == StateAuthenticated
}

// User returns a copy of the held profile, or nil.
func (c *Context) User() *session.UserProfile {
	return c.Snapshot().User
}

// HasRole reports whether the held user has role.
func (c *Context) HasRole(role session.Role) bool {
	u := c.User()
	return u != nil && u.Role == role
}

func (c *Context) IsAdmin() bool     { return c.HasRole(session.RoleAdmin) }
func (c *Context) IsLibrarian() bool { return c.HasRole(session.RoleLibrarian) }
func (c *Context) IsUser() bool      { return c.HasRole(session.RoleUser) }

// IsStaff reports whether the held user is an admin or a librarian.
func (c *Context) IsStaff() bool {
	u := c.User()
	return u != nil && u.Role.Staff()
}

// forceEnd clears the stored session through the Authenticator. The
// resulting invalidation callback settles the state; settling here again
// covers Authenticators that do not call back.
func (c *Context) forceEnd(ctx context.Context, reason goSession.InvalidationReason) {
	if err := c.auth.Invalidate(ctx, reason); err != nil {
		c.logger.Error("forced logout could not clear the stored session", zap.Error(err))
	}
	c.settleUnauthenticated(SessionExpiredMessage, reason)
}

func (c *Context) onInvalidate(_ context.Context, reason goSession.InvalidationReason) {
	if !reason.Forced() {
		return
	}
	c.logger.Info("session invalidated", zap.String("reason", string(reason)))
	c.settleUnauthenticated(SessionExpiredMessage, reason)
}

func (c *Context) settleUnauthenticated(msg string, reason goSession.InvalidationReason) {
	c.update(func(s *Snapshot) {
		s.State = StateUnauthenticated
		s.User = nil
		s.Loading = false
		s.Error = msg
		s.Reason = reason
	})
}

// update applies fn under the state lock and publishes the result.
func (c *Context) update(fn func(*Snapshot)) {
	c.mu.Lock()
	fn(&c.snap)
	c.snap.User = copyUser(c.snap.User)
	c.version++
	version := c.version
	snap := copySnapshot(c.snap)
	c.mu.Unlock()

	c.publish(version, snap)
}

// publish delivers snap unless a newer state was already queued or
// delivered. Only one goroutine delivers at a time; a publish made while
// another is delivering, including one made from inside a subscriber,
// is handed to that goroutine and delivered after the current round.
func (c *Context) publish(version uint64, snap Snapshot) {
	c.deliverMu.Lock()
	if version <= c.delivered || version <= c.pendingVersion {
		c.deliverMu.Unlock()
		return
	}
	c.pending = snap
	c.pendingVersion = version
	if c.draining {
		c.deliverMu.Unlock()
		return
	}
	c.draining = true
	c.deliverMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			c.deliverMu.Lock()
			c.draining = false
			c.deliverMu.Unlock()
			panic(r)
		}
	}()

	for {
		c.deliverMu.Lock()
		if c.pendingVersion <= c.delivered {
			c.draining = false
			c.deliverMu.Unlock()
			return
		}
		next := c.pending
		c.delivered = c.pendingVersion
		c.pending = Snapshot{}
		c.deliverMu.Unlock()

		for _, fn := range c.subscribers() {
			fn(copySnapshot(next))
		}
	}
}

func (c *Context) subscribers() []func(Snapshot) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	fns := make([]func(Snapshot), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	return fns
}

func copySnapshot(s Snapshot) Snapshot {
	s.User = copyUser(s.User)
	return s
}

func copyUser(u *session.UserProfile) *session.UserProfile {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
