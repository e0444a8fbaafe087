// Package password hashes and verifies the passwords held by the local user directory.
//
// Two algorithms are supported. [Argon2] writes PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// and [Bcrypt] writes the usual $2a$ form. [Verify] accepts either, so a directory can
// migrate between them one user at a time.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other goGateway package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
