// Package authtest is an in-process identity server for tests and local
// development. It implements the login, logout, refresh, verify and
// profile endpoints the dashboard client consumes, plus a protected
// /api/books resource, and exposes controls to expire tokens, fail
// refreshes and count calls.
//
// Passwords are stored as argon2id hashes, access tokens are HS256 JWTs
// and refresh tokens are random UUIDs.
package authtest
