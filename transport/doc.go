// Package transport is the shared request pipeline of the client: an
// [http.RoundTripper] that attaches the current access token to every request
// and recovers from a single authorization failure by refreshing the token
// and resending the request once.
//
// # Recovery protocol
//
// A 401 on the first attempt triggers one refresh through the configured
// [Refresher]. On success the request is cloned, given the new token and sent
// again; a 401 on that second attempt is final. On refresh failure the
// original 401 response is returned and OnRefreshFailed runs so the owner can
// route the user to the unauthenticated entry point.
//
// # What this package must NOT do
//
//   - Import goSession or session; tokens arrive through [TokenSource].
//   - Mutate the caller's *http.Request.
//   - Refresh more than once per logical request.
package transport
