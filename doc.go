// Package authgate authenticates HTTP callers with short-lived signed access tokens
// and single-use refresh tokens, and gates routes by role.
//
// The package is designed for concurrent server workloads: Engine methods are safe to
// call from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the session service. It exposes [Engine], [Builder], [Config], [Sweeper]
// and value types ([Identity], [TokenPair], [MetricsSnapshot]). Token encoding lives in
// jwt/, persistence of refresh tokens in refresh/, users in credentials/, route rules in
// permission/. HTTP concerns live in middleware/ and httpapi/.
//
// # Token lifecycle
//
// Login and Refresh return a 5 minute access token and a 24 hour refresh token. A
// refresh token is consumed atomically by the ledger: of any number of concurrent
// Refresh calls with the same token exactly one succeeds. Logout deletes a refresh
// token and leaves access tokens alone. The [Sweeper] reclaims expired refresh records
// every 5 minutes.
//
// # What this package must NOT do
//
//   - Keep identities in globals. The current identity travels in context.Context.
//   - Hold a lock across ledger or credential store I/O.
//   - Import middleware/ or httpapi/ (no import cycles).
package authgate
