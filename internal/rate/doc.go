// Package rate implements the Redis fixed-window login throttle.
//
// # Window semantics
//
// Each failed attempt does INCR on a counter and sets EXPIRE on the first hit of a
// window. A counter above the configured maximum rejects further attempts until the
// key expires. Keys:
//   - <prefix>:al:<identifier>  per login identifier
//   - <prefix>:ali:<ip>         per client IP (optional)
//
// Identifiers are lower-cased so "Alice" and "alice" share one budget.
//
// # What this package must NOT do
//
//   - Decide what counts as a failed login (the Engine does that).
//   - Be imported outside the authgate module.
package rate
