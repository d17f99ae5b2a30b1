// Package flaghash hashes and verifies challenge flags.
package flaghash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrEmptyFlag = errors.New("flag must be a non-empty string")

// Hash returns a salted bcrypt hash of the plaintext flag. The result embeds
// salt and cost so it can be verified later without extra configuration.
func Hash(plainFlag string) (string, error) {
	if plainFlag == "" {
		return "", ErrEmptyFlag
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plainFlag), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether plainFlag matches storedHash. storedHash may be
// empty (challenges without a flag never verify). Older deployments stored
// bare SHA-256 hex digests; those still verify through a constant time
// comparison until an admin re-saves the challenge.
func Verify(plainFlag, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	if strings.HasPrefix(storedHash, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(plainFlag)) == nil
	}

	sum := sha256.Sum256([]byte(plainFlag))
	candidate := hex.EncodeToString(sum[:])
	return hmac.Equal([]byte(candidate), []byte(storedHash))
}
