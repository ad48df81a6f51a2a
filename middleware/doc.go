// Package middleware gates net/http handlers on the session state of a
// [sessionctx.Context].
//
// # Guards
//
//   - [RequireSession]: any authenticated user.
//   - [RequireRole]: an authenticated user holding one of the given roles.
//   - [RequireStaff]: an admin or a librarian.
//
// An unauthenticated request is redirected (302) to the login path with the
// original location in the next query parameter. While the session is still
// initializing the guard answers 503 with Retry-After. A user without the
// required role gets 403. Admitted requests carry the user profile in their
// context ([UserFromContext]).
//
// # What this package must NOT do
//
//   - Read or write the session store (the Context is the only source).
//   - Call the identity server.
package middleware
