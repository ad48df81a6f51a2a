package session

import (
	"context"
	"errors"
	"fmt"
)

// ErrStoreUnavailable wraps failures of the underlying key-value backend.
var ErrStoreUnavailable = errors.New("session store unavailable")

// ErrSessionChanged is returned by conditional writes when the guard entry
// no longer holds the expected value.
var ErrSessionChanged = errors.New("session changed")

// Key names one of the three logical session entries.
type Key string

const (
	// KeyAccessToken holds the serialized access token.
	KeyAccessToken Key = "authToken"
	// KeyRefreshToken holds the refresh token.
	KeyRefreshToken Key = "refreshToken"
	// KeyUser holds the JSON-encoded user profile.
	KeyUser Key = "user"
)

// Keys lists every key owned by a session, in write order.
var Keys = []Key{KeyAccessToken, KeyRefreshToken, KeyUser}

// Store is a persistent key-value store holding the session entries.
//
// Get reports ok=false for a missing key. Implementations do no validation
// and have no side effects beyond the backend itself.
type Store interface {
	Get(ctx context.Context, key Key) (value string, ok bool, err error)
	Set(ctx context.Context, key Key, value string) error
	Remove(ctx context.Context, key Key) error
}

// BatchStore is implemented by stores that can apply several writes and
// removals as one atomic unit. Write and Clear prefer it so a crash cannot
// leave a token without its profile.
type BatchStore interface {
	Store
	Apply(ctx context.Context, set map[Key]string, remove []Key) error
}

// CompareStore is implemented by stores that can make a batch conditional
// on the current value of one entry. ApplyIf returns ErrSessionChanged and
// writes nothing when guard is missing or differs from expect.
type CompareStore interface {
	BatchStore
	ApplyIf(ctx context.Context, guard Key, expect string, set map[Key]string, remove []Key) error
}

// Load reads all three entries. A corrupt profile loads as nil. The first
// backend error is returned together with whatever could be read.
func Load(ctx context.Context, s Store) (Session, error) {
	var (
		out      Session
		firstErr error
	)
	for _, key := range Keys {
		v, ok, err := s.Get(ctx, key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !ok {
			continue
		}
		switch key {
		case KeyAccessToken:
			out.AccessToken = v
		case KeyRefreshToken:
			out.RefreshToken = v
		case KeyUser:
			if u, ok := DecodeUser(v); ok {
				out.User = u
			}
		}
	}
	return out, firstErr
}

// Write stores sess. Empty fields remove their key so no stale value
// survives a partial update.
func Write(ctx context.Context, s Store, sess Session) error {
	values := make(map[Key]string, len(Keys))
	var remove []Key

	if sess.AccessToken != "" {
		values[KeyAccessToken] = sess.AccessToken
	} else {
		remove = append(remove, KeyAccessToken)
	}
	if sess.RefreshToken != "" {
		values[KeyRefreshToken] = sess.RefreshToken
	} else {
		remove = append(remove, KeyRefreshToken)
	}
	if sess.User != nil {
		encoded, err := EncodeUser(*sess.User)
		if err != nil {
			return fmt.Errorf("encode user: %w", err)
		}
		values[KeyUser] = encoded
	} else {
		remove = append(remove, KeyUser)
	}

	if bs, ok := s.(BatchStore); ok {
		return bs.Apply(ctx, values, remove)
	}

	for _, key := range remove {
		if err := s.Remove(ctx, key); err != nil {
			return err
		}
	}
	for _, key := range Keys {
		v, ok := values[key]
		if !ok {
			continue
		}
		if err := s.Set(ctx, key, v); err != nil {
			return err
		}
	}
	return nil
}

// SetTokens overwrites the token pair and leaves the profile untouched. An
// empty refresh token keeps the stored one.
func SetTokens(ctx context.Context, s Store, access, refresh string) error {
	values := map[Key]string{KeyAccessToken: access}
	if refresh != "" {
		values[KeyRefreshToken] = refresh
	}

	if bs, ok := s.(BatchStore); ok {
		return bs.Apply(ctx, values, nil)
	}

	if err := s.Set(ctx, KeyAccessToken, access); err != nil {
		return err
	}
	if refresh != "" {
		return s.Set(ctx, KeyRefreshToken, refresh)
	}
	return nil
}

// SwapTokens is SetTokens guarded by the refresh token the caller started
// from. When another writer logged out or signed in meanwhile the stored
// refresh token differs and ErrSessionChanged is returned without writing.
// Stores without [CompareStore] get a read-then-write check.
func SwapTokens(ctx context.Context, s Store, expectRefresh, access, refresh string) error {
	values := map[Key]string{KeyAccessToken: access}
	if refresh != "" {
		values[KeyRefreshToken] = refresh
	}

	if cs, ok := s.(CompareStore); ok {
		return cs.ApplyIf(ctx, KeyRefreshToken, expectRefresh, values, nil)
	}

	current, ok, err := s.Get(ctx, KeyRefreshToken)
	if err != nil {
		return err
	}
	if !ok || current != expectRefresh {
		return ErrSessionChanged
	}
	return SetTokens(ctx, s, access, refresh)
}

// Clear removes all three entries. Every key is attempted even when one
// removal fails; the first failure is returned.
func Clear(ctx context.Context, s Store) error {
	if bs, ok := s.(BatchStore); ok {
		return bs.Apply(ctx, nil, Keys)
	}

	var firstErr error
	for _, key := range Keys {
		if err := s.Remove(ctx, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
