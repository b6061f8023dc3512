package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/authority/domain"
	"github.com/aussiebroadwan/gatekeep/internal/authority/revocation"
	"github.com/aussiebroadwan/gatekeep/internal/authority/store"
	"github.com/aussiebroadwan/gatekeep/internal/authority/store/drivers/postgres"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// newContainerStore starts postgres in docker and returns a migrated store.
func newContainerStore(t *testing.T) *postgres.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "gatekeep",
				"POSTGRES_PASSWORD": "gatekeep",
				"POSTGRES_DB":       "gatekeep",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://gatekeep:gatekeep@%s:%s/gatekeep?sslmode=disable", host, port.Port())
	s, err := postgres.NewStore(ctx, dsn, postgres.PoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	s := newContainerStore(t)

	t.Run("users", func(t *testing.T) {
		empty, err := s.Users().IsEmpty(ctx)
		require.NoError(t, err)
		require.True(t, empty)

		now := time.Now().UTC().Truncate(time.Second)
		alice := domain.User{
			ID:           "01HZZZZZZZZZZZZZZZZZZZZZZA",
			Username:     "alice",
			DisplayName:  "Alice",
			PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
			Role:         domain.RoleInstructor,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		require.NoError(t, s.Users().CreateUser(ctx, alice))

		got, err := s.Users().GetUserByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, alice, got)

		dup := alice
		dup.ID = "01HZZZZZZZZZZZZZZZZZZZZZZB"
		require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)

		_, err = s.Users().GetUserByID(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("activation", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Second)
		bob := domain.User{
			ID:                  "01HZZZZZZZZZZZZZZZZZZZZZZC",
			Username:            "bob",
			PasswordHash:        "$2a$10$abcdefghijklmnopqrstuv",
			Role:                domain.RoleStudent,
			CreatedAt:           now,
			UpdatedAt:           now,
			ActivationSecret:    "JBSWY3DPEHPK3PXP",
			ActivationExpiresAt: now.Add(5 * time.Minute),
		}
		require.NoError(t, s.Users().CreateUser(ctx, bob))

		got, err := s.Users().GetUserByID(ctx, bob.ID)
		require.NoError(t, err)
		require.Equal(t, bob, got)

		require.NoError(t, s.Users().ActivateUser(ctx, bob.ID, now))
		require.ErrorIs(t, s.Users().ActivateUser(ctx, bob.ID, now), store.ErrNotFound)

		got, err = s.Users().GetUserByID(ctx, bob.ID)
		require.NoError(t, err)
		require.True(t, got.Active)
		require.Empty(t, got.ActivationSecret)
		require.True(t, got.ActivationExpiresAt.IsZero())
	})

	t.Run("revocation adapter", func(t *testing.T) {
		rev := store.NewRevocationAdapter(s)
		expiry := time.Now().Add(time.Hour)

		var (
			wg    sync.WaitGroup
			wins  atomic.Int32
			dupes atomic.Int32
		)
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := rev.Insert(ctx, "jti-race", expiry)
				switch {
				case err == nil:
					wins.Add(1)
				case errors.Is(err, revocation.ErrDuplicate):
					dupes.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), wins.Load())
		require.Equal(t, int32(19), dupes.Load())

		require.NoError(t, rev.Insert(ctx, "jti-old", time.Now().Add(-time.Hour)))
		n, err := rev.DeleteExpired(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		ok, err := rev.Exists(ctx, "jti-race")
		require.NoError(t, err)
		require.True(t, ok)
	})
}
