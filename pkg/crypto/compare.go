package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
)

// ConstantTimeEquals compares two credential strings without leaking
// the length of the matching prefix through timing. Both sides are
// hashed first so unequal lengths do not short-circuit either.
func ConstantTimeEquals(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
