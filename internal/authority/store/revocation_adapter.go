package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/authority/domain"
	"github.com/aussiebroadwan/gatekeep/internal/authority/revocation"
)

// RevocationAdapter adapts the store.Store interface to revocation.Store so
// the invalidated_tokens table can back refresh rotation.
type RevocationAdapter struct {
	store Store
	now   func() time.Time
}

var _ revocation.Store = (*RevocationAdapter)(nil)

// NewRevocationAdapter creates an adapter that implements revocation.Store using a store.Store.
func NewRevocationAdapter(store Store) *RevocationAdapter {
	return &RevocationAdapter{store: store, now: time.Now}
}

// Insert records id, mapping the primary key conflict to revocation.ErrDuplicate.
func (a *RevocationAdapter) Insert(ctx context.Context, id string, expiry time.Time) error {
	if id == "" {
		return revocation.ErrEmptyID
	}

	err := a.store.InvalidatedTokens().InsertInvalidatedToken(ctx, domain.InvalidatedToken{
		ID:         id,
		ExpiryTime: expiry,
	})
	if errors.Is(err, ErrAlreadyExists) {
		return revocation.ErrDuplicate
	}
	return err
}

func (a *RevocationAdapter) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, revocation.ErrEmptyID
	}
	return a.store.InvalidatedTokens().InvalidatedTokenExists(ctx, id)
}

func (a *RevocationAdapter) DeleteExpired(ctx context.Context) (int64, error) {
	return a.store.InvalidatedTokens().DeleteExpiredInvalidatedTokens(ctx, a.now())
}
