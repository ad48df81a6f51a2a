//go:build integration
// +build integration

package test

import (
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/authtest"
	"github.com/MrEthical07/goSession/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newIdentityServer(t *testing.T, opts authtest.Options) *authtest.Server {
	t.Helper()

	srv, err := authtest.NewServer(opts)
	if err != nil {
		t.Fatalf("authtest server failed: %v", err)
	}
	t.Cleanup(srv.Close)
	return srv
}

func newSharedRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return rdb
}

// newTab builds a client over store, the way each dashboard tab gets its
// own client on top of shared storage.
func newTab(t *testing.T, baseURL string, store session.Store) *goSession.Client {
	t.Helper()

	cfg := goSession.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.RequestTimeout = 5 * time.Second
	cfg.Metrics.Enabled = true

	client, err := goSession.New().WithConfig(cfg).WithStore(store).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}
