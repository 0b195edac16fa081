package common

import (
	"crypto/rand"
	"encoding/hex"
)

// SessionCookieName is the cookie carrying the viewer session JWT.
const SessionCookieName = "tc_session"

// MakeRandHexString returns a hex string built from size random bytes
// (so the result is size*2 characters long). Used for share-link access
// tokens.
func MakeRandHexString(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
