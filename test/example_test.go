package test

import (
	"context"
	"fmt"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/authtest"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/sessionctx"
	"github.com/redis/go-redis/v9"
)

// Example_redis demonstrates client construction with a Redis-backed session.
func Example_redis() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	cfg := goSession.DefaultConfig()
	cfg.BaseURL = "http://localhost:3001"

	client, _ := goSession.New().
		WithConfig(cfg).
		WithRedis(rdb).
		Build()
	_ = client
}

// Example_login signs in against the in-process identity server and
// reads the stored profile back.
func Example_login() {
	srv, _ := authtest.NewServer(authtest.Options{})
	defer srv.Close()

	cfg := goSession.DefaultConfig()
	cfg.BaseURL = srv.URL
	client, _ := goSession.New().WithConfig(cfg).WithStore(session.NewMemoryStore()).Build()
	defer client.Close()

	ctx := context.Background()
	_, err := client.Login(ctx, goSession.Credentials{Email: "librarian@library.test", Password: "librarian123"})
	if err != nil {
		fmt.Println(goSession.ErrorMessage(err))
		return
	}

	u := client.GetCurrentUser(ctx)
	fmt.Println(u.Name, u.Role, client.IsStaff(ctx))
	// Output: Lena Librarian librarian true
}

// Example_httpClient sends an authenticated request. A 401 triggers
// one refresh and one retry.
func Example_httpClient() {
	var client *goSession.Client
	req, _ := http.NewRequest(http.MethodGet, "http://localhost:3001/api/books", nil)
	resp, err := client.HTTPClient().Do(req)
	if err == nil {
		resp.Body.Close()
	}
}

// Example_subscribe routes forced sign-outs to a login screen.
func Example_subscribe() {
	var client *goSession.Client
	sc := sessionctx.New(client)
	defer sc.Close()

	stop := sc.Subscribe(func(s sessionctx.Snapshot) {
		if s.State == sessionctx.StateUnauthenticated && s.Reason.Forced() {
			fmt.Println(s.Error)
		}
	})
	defer stop()

	sc.Init(context.Background())
}
