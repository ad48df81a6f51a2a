// Command sessionctl drives a library dashboard session from the terminal.
//
// The session (token pair and profile) is kept in a bbolt file by default,
// so consecutive invocations share it the way browser tabs share local
// storage. Every request made by "get" goes through the same refresh and
// retry pipeline as the dashboard.
//
// Usage:
//
//	sessionctl [flags] <command> [command flags]
//
// Commands:
//
//	login -email E [-password P]   sign in (password read from stdin when omitted)
//	logout                         end the session
//	status [-within D]             show token state and expiry
//	whoami                         print the stored profile
//	refresh                        exchange the refresh token
//	verify                         check the session with the server
//	get PATH                       authenticated GET through the client
//	mock [-addr A]                 run the local identity server
//
// Configuration is read from SESSIONCTL_* environment variables and an
// optional .env file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: sessionctl [flags] <login|logout|status|whoami|refresh|verify|get|mock> [command flags]")
}
