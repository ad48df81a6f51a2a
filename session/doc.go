// Package session provides the persistent key-value storage behind a client
// session: the access token, the refresh token, and the user profile.
//
// # Backends
//
// [MemoryStore] keeps entries in process memory, [RedisStore] keeps them in
// Redis under a key prefix, and [BoltStore] keeps them in a local bbolt file.
// All three implement [BatchStore], so [Write], [SetTokens] and [Clear] touch
// the three entries atomically.
//
// # Architecture boundaries
//
// This package owns storage and the [Session] / [UserProfile] model. It does
// NOT decode tokens, talk to the identity server, or decide whether a session
// is valid; those responsibilities belong to the auth client.
//
// # What this package must NOT do
//
//   - Import goSession, jwt, or transport (no upward imports).
//   - Fail a read because a stored profile is corrupt; [DecodeUser] reports
//     such values as absent.
package session
