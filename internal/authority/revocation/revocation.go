// Package revocation records invalidated token identifiers until they expire.
//
// A token id is inserted when a refresh token is redeemed or a session logs
// out. Insert is an atomic insert-if-absent: of two concurrent inserts of the
// same id exactly one succeeds and the other gets ErrDuplicate. Refresh
// rotation relies on this to reject replayed refresh tokens.
package revocation

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicate is returned by Insert when the id is already recorded.
	ErrDuplicate = errors.New("revocation: id already recorded")

	// ErrEmptyID is returned when an empty id is passed.
	ErrEmptyID = errors.New("revocation: empty id")
)

// Store is the revocation contract shared by all backends.
type Store interface {
	// Insert records id until expiry. Returns ErrDuplicate if id is already
	// recorded.
	Insert(ctx context.Context, id string, expiry time.Time) error

	// Exists reports whether id is recorded.
	Exists(ctx context.Context, id string) (bool, error)

	// DeleteExpired removes records whose expiry has passed and returns how
	// many were removed. Backends with native expiry may return 0.
	DeleteExpired(ctx context.Context) (int64, error)
}
