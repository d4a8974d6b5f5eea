// Package jwt issues and verifies the short-lived access tokens handed to clients
// after login or refresh.
//
// Tokens are HMAC-signed (HS512 by default) and carry only the subject id and the
// issue/expiry timestamps. Nothing is stored server-side, so an access token stays
// valid until it expires.
//
// # Failure reasons
//
// [Manager.Verify] separates [ErrTokenExpired] (authentic but stale) from
// [ErrTokenInvalid] (malformed, forged, wrong algorithm, bad subject). Callers at the
// HTTP boundary collapse both into a single 401.
//
// # What this package must NOT do
//
//   - Look up users or attach identities (the Engine does that).
//   - Apply clock-skew leeway.
//   - Import authgate.
package jwt
