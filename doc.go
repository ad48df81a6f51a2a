// Package goSession is the client-side session core of the library
// dashboard: it signs users in, keeps the access/refresh token pair and the
// user profile in a [session.Store], derives role decisions from them, and
// recovers transparently from access-token expiry during requests.
//
// The package is designed for concurrent use: Client methods are safe to
// call from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Client], [Builder], [Config]
// and value types (Credentials, LoginResponse, MetricsSnapshot, etc.).
// Storage lives in session, claim decoding in jwt, and the token-injecting
// round tripper in transport. The reactive application state machine lives
// in sessionctx and depends on this package, never the reverse.
//
// # What this package must NOT do
//
//   - Verify token signatures. The server is the authority; claims are read
//     for local gating only.
//   - Surface decode failures or corrupt stored profiles as errors. They
//     end the session and read as "not authenticated".
//   - Leave a partial session behind after logout or a failed refresh.
//
// # Refresh contract
//
// One refresh runs at a time; concurrent callers share its result. A
// refresh that completes after the session was cleared or replaced is
// discarded with [ErrSessionClosed].
package goSession
