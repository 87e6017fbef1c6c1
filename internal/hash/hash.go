// Package hash implements the password-hashing primitive treated as an
// external collaborator by the rest of the server: a pure function from a
// plaintext password to the stable, non-reversible string stored in (and
// compared against) the credential store. It has no dependency on the
// session or store packages so tests and tooling can produce valid
// password_hash values without spinning up a server.
package hash

import (
	"crypto/sha256"
	"encoding/base64"
)

// passwordSalt is appended to every password before hashing. It is a fixed,
// published constant rather than a per-user random salt: the original
// implementation this server is modeled on used the same scheme, and
// per-user salting is out of scope for this pass.
const passwordSalt = "__simple_password_salt__"

// Password hashes a plaintext password with SHA-256 and a fixed salt,
// returning the result base64-encoded. The returned string is what callers
// place in UserPayload.PasswordHash and LoginInfo.PasswordHash.
func Password(plaintext string) string {
	return sha256Base64(plaintext + passwordSalt)
}

// String hashes an arbitrary string with SHA-256 and returns it base64
// encoded, with no salt applied. Exposed for callers that need a stable hash
// of something other than a password (e.g. building a test fixture ID).
func String(s string) string {
	return sha256Base64(s)
}

func sha256Base64(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}
