// Package opkey derives storage keys from remote operation names.
package opkey

import (
	"crypto/sha1"
	"encoding/base64"
)

// Size is the length of every key returned by Key.
const Size = 27

// Key returns a fixed-length, slash-free key for name: the SHA-1 digest
// encoded with the URL-safe base64 alphabet and no padding.
//
// Keys only satisfy storage constraints. They are not secrets and must not
// be used for authentication.
func Key(name string) string {
	sum := sha1.Sum([]byte(name))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
