// Package jwt reads access-token claims on the client and issues signed
// tokens for identity servers.
//
// [Decode] never verifies signatures: the client only needs exp and role for
// local gating, and the server is the authority on validity. [Manager]
// signs and strictly verifies tokens and is used by the authtest identity
// server.
package jwt
