package cryptox

import (
	"crypto/sha256"
	"encoding/base64"
)

// FingerprintToken identifies a bearer token in logs without revealing it:
// the base64url SHA-256 of the token, 43 characters long. Both the gateway
// filter and the resource-side middleware log rejected tokens this way.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
