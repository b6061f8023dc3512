package postgres

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

func scanUser(row *sql.Row) (domain.User, error) {
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

	u.Email = email.String
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
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	return mapAffected(r.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT DO NOTHING`,
		u.ID, u.Username, nullString(u.Email), u.DisplayName, u.PasswordHash, string(u.Role),
		unix(u.CreatedAt), unix(u.UpdatedAt),
		u.Active, nullString(u.ActivationSecret), unixNull(u.ActivationExpiresAt),
	))
}

func (r *usersRepo) ActivateUser(ctx context.Context, id string, now time.Time) error {
	err := mapAffected(r.q.ExecContext(ctx,
		`UPDATE users
		 SET active = TRUE, activation_secret = NULL, activation_expires_at = NULL, updated_at = $1
		 WHERE id = $2 AND NOT active`,
		unix(now), id,
	))
	if errors.Is(err, store.ErrAlreadyExists) {
		return store.ErrNotFound
	}
	return err
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users)`).Scan(&exists); err != nil {
		return false, err
	}
	return !exists, nil
}
