package account

import (
	"crypto/rand"
	"encoding/base64"
)

// secretKeyBytes is the entropy of activation and reset keys. 32 bytes is
// far beyond guessability; collisions are prevented by entropy, not by
// probing the store.
const secretKeyBytes = 32

// GenerateSecretKey produces a single-use opaque key for account
// activation and password reset, URL-safe so it can ride in a query
// parameter or email link.
func GenerateSecretKey() (string, error) {
	b := make([]byte, secretKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
