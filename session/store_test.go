package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb, "lib")
	return store, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func newBoltStoreTest(t *testing.T) *BoltStore {
	t.Helper()
	store, err := OpenBoltStore(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("open bolt store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSession() Session {
	return Session{
		AccessToken:  "T1",
		RefreshToken: "R1",
		User: &UserProfile{
			ID:     "1",
			Name:   "Ada",
			Email:  "a@b.com",
			Role:   RoleAdmin,
			Status: StatusActive,
		},
	}
}

func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("redis", func(t *testing.T) {
		store, _, done := newRedisStoreTest(t)
		defer done()
		fn(t, store)
	})
	t.Run("bolt", func(t *testing.T) {
		fn(t, newBoltStoreTest(t))
	})
}

func TestStoreGetSetRemove(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if _, ok, err := s.Get(ctx, KeyAccessToken); err != nil || ok {
			t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
		}
		if err := s.Set(ctx, KeyAccessToken, "T1"); err != nil {
			t.Fatalf("set: %v", err)
		}
		v, ok, err := s.Get(ctx, KeyAccessToken)
		if err != nil || !ok || v != "T1" {
			t.Fatalf("get after set = %q %v %v", v, ok, err)
		}
		if err := s.Remove(ctx, KeyAccessToken); err != nil {
			t.Fatalf("remove: %v", err)
		}
		if err := s.Remove(ctx, KeyAccessToken); err != nil {
			t.Fatalf("second remove: %v", err)
		}
		if _, ok, _ := s.Get(ctx, KeyAccessToken); ok {
			t.Fatal("expected key removed")
		}
	})
}

func TestWriteLoadClearRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		want := testSession()

		if err := Write(ctx, s, want); err != nil {
			t.Fatalf("write: %v", err)
		}
		got, err := Load(ctx, s)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken {
			t.Fatalf("tokens mismatch: %+v", got)
		}
		if got.User == nil || *got.User != *want.User {
			t.Fatalf("user mismatch: %+v", got.User)
		}

		if err := Clear(ctx, s); err != nil {
			t.Fatalf("clear: %v", err)
		}
		got, err = Load(ctx, s)
		if err != nil {
			t.Fatalf("load after clear: %v", err)
		}
		if !got.Empty() {
			t.Fatalf("expected empty session, got %+v", got)
		}
	})
}

func TestWriteRemovesMissingRefreshToken(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := Write(ctx, s, testSession()); err != nil {
			t.Fatalf("write: %v", err)
		}

		next := testSession()
		next.AccessToken = "T2"
		next.RefreshToken = ""
		if err := Write(ctx, s, next); err != nil {
			t.Fatalf("second write: %v", err)
		}
		if _, ok, _ := s.Get(ctx, KeyRefreshToken); ok {
			t.Fatal("stale refresh token survived write")
		}
	})
}

func TestSetTokensKeepsProfileAndRefresh(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := Write(ctx, s, testSession()); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := SetTokens(ctx, s, "T2", ""); err != nil {
			t.Fatalf("set tokens: %v", err)
		}
		got, _ := Load(ctx, s)
		if got.AccessToken != "T2" || got.RefreshToken != "R1" || got.User == nil {
			t.Fatalf("unexpected session after SetTokens: %+v", got)
		}
	})
}

func TestLoadTreatsCorruptUserAsAbsent(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := s.Set(ctx, KeyAccessToken, "T1"); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := s.Set(ctx, KeyUser, "not-json{"); err != nil {
			t.Fatalf("set user: %v", err)
		}
		got, err := Load(ctx, s)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if got.User != nil {
			t.Fatalf("expected nil user, got %+v", got.User)
		}
		if got.AccessToken != "T1" {
			t.Fatalf("expected token kept, got %q", got.AccessToken)
		}
	})
}

func TestRedisStoreKeyNamespace(t *testing.T) {
	store, mr, done := newRedisStoreTest(t)
	defer done()
	if err := store.Set(context.Background(), KeyRefreshToken, "R1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := mr.Get("lib:session:refreshToken")
	if err != nil || got != "R1" {
		t.Fatalf("expected namespaced key, got %q err=%v", got, err)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	store := NewRedisStore(rdb, "lib")
	mr.Close()

	_, _, err = store.Get(context.Background(), KeyAccessToken)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := Clear(context.Background(), store); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable from clear, got %v", err)
	}
}

func TestBoltStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	ctx := context.Background()

	first, err := OpenBoltStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := Write(ctx, first, testSession()); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := OpenBoltStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	got, err := Load(ctx, second)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.AccessToken != "T1" || got.User == nil || got.User.Role != RoleAdmin {
		t.Fatalf("session not persisted: %+v", got)
	}
}

// plainStore hides the batch and compare methods of the wrapped store.
type plainStore struct{ Store }

func TestSwapTokensGuardsRefreshToken(t *testing.T) {
	check := func(t *testing.T, s Store) {
		ctx := context.Background()
		if err := Write(ctx, s, testSession()); err != nil {
			t.Fatalf("write: %v", err)
		}

		if err := SwapTokens(ctx, s, "R1", "T2", ""); err != nil {
			t.Fatalf("swap with matching refresh token: %v", err)
		}
		got, _ := Load(ctx, s)
		if got.AccessToken != "T2" || got.RefreshToken != "R1" || got.User == nil {
			t.Fatalf("unexpected session after swap: %+v", got)
		}

		if err := SwapTokens(ctx, s, "stale", "T3", "R3"); !errors.Is(err, ErrSessionChanged) {
			t.Fatalf("expected ErrSessionChanged for a stale refresh token, got %v", err)
		}

		if err := Clear(ctx, s); err != nil {
			t.Fatalf("clear: %v", err)
		}
		if err := SwapTokens(ctx, s, "R1", "T4", ""); !errors.Is(err, ErrSessionChanged) {
			t.Fatalf("expected ErrSessionChanged after clear, got %v", err)
		}
		got, _ = Load(ctx, s)
		if !got.Empty() {
			t.Fatalf("swap after clear must not write, got %+v", got)
		}
	}

	eachStore(t, check)
	t.Run("plain", func(t *testing.T) { check(t, plainStore{NewMemoryStore()}) })
}

func TestRedisApplyIfAbortsOnConcurrentWrite(t *testing.T) {
	store, mr, done := newRedisStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := Write(ctx, store, testSession()); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Another tab logs in with a new refresh token before the swap.
	mr.Set("lib:session:refreshToken", "R9")

	if err := SwapTokens(ctx, store, "R1", "T2", ""); !errors.Is(err, ErrSessionChanged) {
		t.Fatalf("expected ErrSessionChanged, got %v", err)
	}
	if v, _ := mr.Get("lib:session:authToken"); v != "T1" {
		t.Fatalf("expected access token untouched, got %q", v)
	}
}

func TestMemoryStoreZeroValue(t *testing.T) {
	var m MemoryStore
	ctx := context.Background()

	if err := m.Set(ctx, KeyAccessToken, "T1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Apply(ctx, map[Key]string{KeyRefreshToken: "R1"}, nil); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("expected two entries, got %d", m.Len())
	}

	var empty MemoryStore
	if err := empty.ApplyIf(ctx, KeyRefreshToken, "R1", map[Key]string{KeyAccessToken: "T"}, nil); !errors.Is(err, ErrSessionChanged) {
		t.Fatalf("expected ErrSessionChanged on empty store, got %v", err)
	}
}
