// Package password hashes and verifies account passwords.
//
// Two algorithms sit behind [Hasher]: Argon2id (default), encoded as a PHC string
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// and bcrypt. [Hasher.NeedsUpgrade] reports hashes produced with weaker parameters
// so the caller can re-hash after the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords.
//   - Import any other authgate package.
//   - Log plaintext passwords.
package password
