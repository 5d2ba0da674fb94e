package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math/big"
)

// NewLinkToken returns a URL-safe token long enough that invitation links
// cannot be enumerated.
func NewLinkToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken is used for refresh credentials, which are stored hashed.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

const accessCodePrefix = "BHP-"

// NewAccessCode returns a short human-typable code: fixed prefix plus six
// decimal digits. Uniqueness is the store's job, not the generator's.
func NewAccessCode() (string, error) {
	value, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%06d", accessCodePrefix, value.Int64()+100000), nil
}
