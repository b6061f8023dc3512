package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/authority/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and so a transaction can't accidentally open another one.
type Store interface {
	Users() Users
	InvalidatedTokens() InvalidatedTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during login and refresh.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Returns ErrAlreadyExists when the username or email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// ActivateUser marks an inactive user active and clears its activation
	// secret. Returns ErrNotFound when no inactive user has that id, so of two
	// concurrent activations only one succeeds.
	ActivateUser(ctx context.Context, id string, now time.Time) error

	// IsEmpty returns true if there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

type InvalidatedTokens interface {
	// InsertInvalidatedToken records a token id. Returns ErrAlreadyExists if
	// the id is already present; the primary key makes this atomic.
	InsertInvalidatedToken(ctx context.Context, t domain.InvalidatedToken) error

	// InvalidatedTokenExists reports whether the id is recorded.
	InvalidatedTokenExists(ctx context.Context, id string) (bool, error)

	// DeleteExpiredInvalidatedTokens removes records that expired before now.
	DeleteExpiredInvalidatedTokens(ctx context.Context, now time.Time) (int64, error)
}
