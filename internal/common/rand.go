package common

import (
	"crypto/rand"
	"encoding/hex"
)

// MakeRandHexString generates a hex string from size cryptographically random
// bytes. The resulting string is twice as long as size, since each byte
// expands to two hex characters. Session tokens use size 32 (64 hex chars).
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
