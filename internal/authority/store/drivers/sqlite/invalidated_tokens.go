package sqlite

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
		`INSERT INTO invalidated_tokens (id, expiry_time) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		t.ID, unix(t.ExpiryTime),
	))
}

func (r *invalidatedTokensRepo) InvalidatedTokenExists(ctx context.Context, id string) (bool, error) {
	var exists int
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM invalidated_tokens WHERE id = ?)`, id,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

func (r *invalidatedTokensRepo) DeleteExpiredInvalidatedTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM invalidated_tokens WHERE expiry_time < ?`, unix(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
