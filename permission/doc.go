// Package permission defines the three account roles and the route policy that
// decides, per request path, whether an identity is needed and which roles may pass.
//
// # Evaluation
//
// A [Policy] is an ordered rule list evaluated first-match. The default policy is:
//
//  1. public allowlist (session login/register/refresh/logout, API docs, health, metrics)
//  2. any "moderator" path segment: MODERATOR or ADMIN
//  3. any "admin" path segment: ADMIN
//  4. everything else: any authenticated identity
//
// A missing identity yields [Unauthenticated]; a present identity whose role is not in
// the rule's set yields [Forbidden].
//
// # What this package must NOT do
//
//   - Verify tokens or read request headers.
//   - Import authgate or net/http.
package permission
