package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/authority/domain"
	"github.com/aussiebroadwan/gatekeep/internal/authority/store"
)

const userColumns = `id, username, email, display_name, password_hash, role, created_at, updated_at,
	active, activation_secret, activation_expires_at`

type usersRepo struct {
	q querier
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u         domain.User
		email     sql.NullString
		role      string
		createdAt int64
		updatedAt int64
		secret    sql.NullString
		expiresAt sql.NullInt64
	)
	if err := row.Scan(&u.ID, &u.Username, &email, &u.DisplayName, &u.PasswordHash, &role, &createdAt, &updatedAt,
		&u.Active, &secret, &expiresAt); err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.Email = mapNullString(email)
	u.Role = domain.Role(role)
	u.CreatedAt = fromUnix(createdAt)
	u.UpdatedAt = fromUnix(updatedAt)
	u.ActivationSecret = secret.String
	if expiresAt.Valid {
		u.ActivationExpiresAt = fromUnix(expiresAt.Int64)
	}
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	return mapAffected(r.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		u.ID, u.Username, mapStringNull(u.Email), u.DisplayName, u.PasswordHash, string(u.Role),
		unix(u.CreatedAt), unix(u.UpdatedAt),
		u.Active, mapStringNull(u.ActivationSecret), unixNull(u.ActivationExpiresAt),
	))
}

func (r *usersRepo) ActivateUser(ctx context.Context, id string, now time.Time) error {
	err := mapAffected(r.q.ExecContext(ctx,
		`UPDATE users
		 SET active = 1, activation_secret = NULL, activation_expires_at = NULL, updated_at = ?
		 WHERE id = ? AND active = 0`,
		unix(now), id,
	))
	if errors.Is(err, store.ErrAlreadyExists) {
		return store.ErrNotFound
	}
	return err
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var exists int
	err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users)`).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists == 0, nil
}
