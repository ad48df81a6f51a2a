// Package sessionctx holds the application-facing session state of a
// dashboard process.
//
// A [Context] is a small state machine over three states: Initializing,
// Authenticated and Unauthenticated. It starts in Initializing; [Context.Init]
// checks the stored session, verifies it with the server and settles in one
// of the other two states. From there it cycles between Authenticated and
// Unauthenticated for the life of the process.
//
// The Context never writes the session store itself. All mutations go
// through an [Authenticator] (normally a *goSession.Client), and the Context
// publishes the resulting [Snapshot] to its subscribers. Forced
// invalidations raised by the HTTP pipeline, such as a failed refresh,
// arrive through the Authenticator's invalidation hook and move the Context
// to Unauthenticated.
//
// # Concurrency
//
// User-facing operations (Init, Login, Logout, UpdateProfile, UpdateUser)
// are serialized. The state lock is never held while calling the
// Authenticator, so invalidation callbacks can run during any operation.
// Subscribers are called synchronously, in state order, and must not call
// the Context's operations from inside the callback.
package sessionctx
