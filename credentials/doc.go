// Package credentials stores user accounts: login, email, password hash and role.
//
// Lookups by login and email are case-insensitive. [MemoryStore] backs demos and
// tests; [PostgresStore] runs over the users table created by the embedded
// migrations.
package credentials
