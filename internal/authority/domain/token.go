package domain

import "time"

// TokenPair is what login and refresh hand back to the caller.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	Principal    Principal
}

// InvalidatedToken is a write-once record of a token id that must never be
// accepted again. It can be purged once ExpiryTime has passed.
type InvalidatedToken struct {
	ID         string
	ExpiryTime time.Time
}
