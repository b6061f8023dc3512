package postgres

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/authority/domain"
)

type invalidatedTokensRepo struct {
	q querier
}

func (r *invalidatedTokensRepo) InsertInvalidatedToken(ctx context.Context, t domain.InvalidatedToken) error {
	return mapAffected(r.q.ExecContext(ctx,
		`INSERT INTO invalidated_tokens (id, expiry_time) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
		t.ID, unix(t.ExpiryTime),
	))
}

func (r *invalidatedTokensRepo) InvalidatedTokenExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM invalidated_tokens WHERE id = $1)`, id,
	).Scan(&exists)
	return exists, err
}

func (r *invalidatedTokensRepo) DeleteExpiredInvalidatedTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM invalidated_tokens WHERE expiry_time < $1`, unix(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
