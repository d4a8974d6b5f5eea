// Package refresh owns the single-use refresh token ledger.
//
// # Token format
//
// A refresh token is two random UUIDv4 strings joined with "-" (244 random bits). The
// token carries no structure; stores index records by the SHA-256 of the token so a
// leaked store dump cannot be replayed.
//
// # Stores
//
//   - [RedisStore]: one key per token plus a sorted-set expiry index. Create, consume and
//     sweep each run as a single Lua script.
//   - [PostgresStore]: a refresh_tokens table. Consume is a single
//     DELETE ... RETURNING statement.
//
// Both implement [Ledger]. Consume is the only single-use guarantee in the system: two
// concurrent consumes of one token yield exactly one record and one [ErrNotFound].
//
// # What this package must NOT do
//
//   - Issue access tokens or look up users.
//   - Decide whether an expired record is acceptable. Consume returns the record and the
//     caller checks ExpiresAt.
//   - Import authgate.
package refresh
