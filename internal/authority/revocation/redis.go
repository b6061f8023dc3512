package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces revocation keys.
const DefaultRedisPrefix = "gatekeep:revoked:"

// minRedisTTL keeps already-expired ids around briefly so a racing insert of
// the same id still observes the duplicate.
const minRedisTTL = time.Second

// Redis is a Store backed by SET NX with a TTL matching the token expiry, so
// records expire on their own.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*Redis)(nil)

// NewRedis wraps client. An empty prefix uses DefaultRedisPrefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// OpenRedis parses a redis:// URL, connects and pings.
func OpenRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 3 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 2 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 2 * time.Second
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

func (r *Redis) key(id string) string { return r.prefix + id }

func (r *Redis) Insert(ctx context.Context, id string, expiry time.Time) error {
	if id == "" {
		return ErrEmptyID
	}

	ttl := max(time.Until(expiry), minRedisTTL)

	ok, err := r.client.SetNX(ctx, r.key(id), expiry.Unix(), ttl).Result()
	if err != nil {
		return fmt.Errorf("revocation: redis setnx: %w", err)
	}
	if !ok {
		return ErrDuplicate
	}
	return nil
}

func (r *Redis) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrEmptyID
	}

	n, err := r.client.Exists(ctx, r.key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("revocation: redis exists: %w", err)
	}
	return n > 0, nil
}

// DeleteExpired is a no-op; redis expires keys itself.
func (r *Redis) DeleteExpired(context.Context) (int64, error) {
	return 0, nil
}

// Ping checks the connection, used by readiness checks.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
