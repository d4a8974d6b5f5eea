// Package middleware adapts the authgate Engine to net/http.
//
// # Chain
//
//   - [CORS] answers preflight requests and exposes the token headers.
//   - [ClientIP] records the caller address for throttling and audit.
//   - [Authenticate] is the authentication gate. A request without an Authorization
//     header continues anonymously. A request with one either gets exactly one
//     Identity attached or is rejected with 401 and {"message": reason}.
//   - [Authorize] applies the route policy: 401 when an identity is required and
//     missing, 403 when the identity's role is insufficient.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine.Authenticate).
//   - Write to any store. The gate is read-only.
//   - Put internal error detail in a response body.
package middleware
