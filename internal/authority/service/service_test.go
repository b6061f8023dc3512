package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeep/internal/authority/domain"
	"github.com/aussiebroadwan/gatekeep/internal/authority/revocation"
	"github.com/aussiebroadwan/gatekeep/internal/authority/service"
	"github.com/aussiebroadwan/gatekeep/internal/authority/store"
	"github.com/aussiebroadwan/gatekeep/internal/authority/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeep/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeep/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store       store.Store
	revocations revocation.Store
	codec       *jwtx.Codec
	auth        *service.AuthService
	users       *service.UserService
}

func newFixture(t *testing.T, revocations revocation.Store) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.Join(t.TempDir(), "auth.db"))
	st, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	if revocations == nil {
		revocations = revocation.NewMemory()
	}

	codec, err := jwtx.NewCodec(jwtx.CodecConfig{
		Secret:              []byte(strings.Repeat("k", jwtx.MinSecretLength)),
		Issuer:              "gatekeep-test",
		RefreshableDuration: time.Hour,
	})
	require.NoError(t, err)

	hasher, err := cryptox.NewPasswordHasher(cryptox.PasswordHasherConfig{BcryptCost: 4})
	require.NoError(t, err)

	return &fixture{
		store:       st,
		revocations: revocations,
		codec:       codec,
		auth: &service.AuthService{
			Store:       st,
			Revocations: revocations,
			Codec:       codec,
			Hasher:      hasher,
			AccessTTL:   time.Minute,
		},
		users: &service.UserService{Store: st, Hasher: hasher},
	}
}

func (f *fixture) createUser(t *testing.T, username, password string, role domain.Role) domain.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), service.CreateUserInput{
		Username: username,
		Password: password,
		Role:     role,
	})
	require.NoError(t, err)
	return u
}

// captureLogs returns a context whose request logger writes JSON into buf.
func captureLogs(buf *bytes.Buffer) context.Context {
	return slogx.WithContext(context.Background(), slog.New(slog.NewJSONHandler(buf, nil)))
}

// failingRevocations fails every call.
type failingRevocations struct{}

func (failingRevocations) Insert(context.Context, string, time.Time) error {
	return errors.New("store down")
}
func (failingRevocations) Exists(context.Context, string) (bool, error) {
	return false, errors.New("store down")
}
func (failingRevocations) DeleteExpired(context.Context) (int64, error) {
	return 0, errors.New("store down")
}

// recordingRevocations remembers the expiry handed to each insert.
type recordingRevocations struct {
	*revocation.Memory

	mu      sync.Mutex
	expires map[string]time.Time
}

func newRecordingRevocations() *recordingRevocations {
	return &recordingRevocations{Memory: revocation.NewMemory(), expires: map[string]time.Time{}}
}

func (r *recordingRevocations) Insert(ctx context.Context, id string, expiresAt time.Time) error {
	r.mu.Lock()
	r.expires[id] = expiresAt
	r.mu.Unlock()
	return r.Memory.Insert(ctx, id, expiresAt)
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	alice := f.createUser(t, "alice", "password123", domain.RoleInstructor)

	t.Run("success", func(t *testing.T) {
		pair, err := f.auth.Login(ctx, "alice", "password123")
		require.NoError(t, err)
		require.Equal(t, alice.Principal(), pair.Principal)

		access, err := f.codec.Verify(pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, "alice", access.Subject)
		require.Equal(t, "ROLE_INSTRUCTOR", access.Scope)

		refresh, err := f.codec.VerifyRefresh(pair.RefreshToken)
		require.NoError(t, err)
		require.Equal(t, jwtx.KindRefresh, refresh.Kind())
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := f.auth.Login(ctx, "nobody", "password123")
		require.ErrorIs(t, err, service.ErrUserNotFound)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.auth.Login(ctx, "alice", "password124")
		require.ErrorIs(t, err, service.ErrInvalidPassword)
	})
}

func TestIntrospect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createUser(t, "alice", "password123", domain.RoleStudent)

	pair, err := f.auth.Login(ctx, "alice", "password123")
	require.NoError(t, err)

	require.True(t, f.auth.Introspect(ctx, pair.AccessToken))
	require.False(t, f.auth.Introspect(ctx, pair.RefreshToken), "refresh tokens are not access tokens")
	require.False(t, f.auth.Introspect(ctx, "garbage"))
	require.False(t, f.auth.Introspect(ctx, ""))

	require.NoError(t, f.auth.Logout(ctx, pair.AccessToken))
	require.False(t, f.auth.Introspect(ctx, pair.AccessToken), "logged out token must not introspect")

	t.Run("store failure is invalid", func(t *testing.T) {
		broken := newFixture(t, failingRevocations{})
		broken.createUser(t, "bob", "password123", domain.RoleStudent)

		pair, err := broken.auth.Login(ctx, "bob", "password123")
		require.NoError(t, err)
		require.False(t, broken.auth.Introspect(ctx, pair.AccessToken))
	})
}

func TestIntrospectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := revocation.NewMemory()
	f := newFixture(t, mem)
	f.createUser(t, "alice", "password123", domain.RoleStudent)

	pair, err := f.auth.Login(ctx, "alice", "password123")
	require.NoError(t, err)
	require.NoError(t, f.auth.Logout(ctx, pair.RefreshToken))
	before := mem.Len()

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"valid", pair.AccessToken, true},
		{"garbage", "not.a.token", false},
		{"revoked refresh", pair.RefreshToken, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := f.auth.Introspect(ctx, tt.token)
			second := f.auth.Introspect(ctx, tt.token)
			require.Equal(t, tt.want, first)
			require.Equal(t, first, second)
		})
	}

	require.Equal(t, before, mem.Len(), "introspection never writes revocations")
	revoked, err := mem.Exists(ctx, mustClaims(t, f.codec.VerifyAnyKind, pair.AccessToken).ID)
	require.NoError(t, err)
	require.False(t, revoked)
}

func mustClaims(t *testing.T, verify func(string) (jwtx.Claims, error), token string) jwtx.Claims {
	t.Helper()
	claims, err := verify(token)
	require.NoError(t, err)
	return claims
}

func TestRevocationOutlivesLeeway(t *testing.T) {
	ctx := context.Background()
	rec := newRecordingRevocations()
	f := newFixture(t, rec)
	f.createUser(t, "alice", "password123", domain.RoleStudent)

	codec, err := jwtx.NewCodec(jwtx.CodecConfig{
		Secret:              []byte(strings.Repeat("k", jwtx.MinSecretLength)),
		Issuer:              "gatekeep-test",
		RefreshableDuration: time.Hour,
		Leeway:              2 * time.Minute,
	})
	require.NoError(t, err)
	f.auth.Codec = codec

	pair, err := f.auth.Login(ctx, "alice", "password123")
	require.NoError(t, err)
	access := mustClaims(t, codec.Verify, pair.AccessToken)
	refresh := mustClaims(t, codec.VerifyRefresh, pair.RefreshToken)

	t.Run("refresh", func(t *testing.T) {
		_, err := f.auth.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)
		want := refresh.IssuedAt.Add(time.Hour + 2*time.Minute)
		require.True(t, rec.expires[refresh.ID].Equal(want), "got %v want %v", rec.expires[refresh.ID], want)
	})

	t.Run("logout access", func(t *testing.T) {
		require.NoError(t, f.auth.Logout(ctx, pair.AccessToken))
		want := access.ExpiresAt.Add(2 * time.Minute)
		require.True(t, rec.expires[access.ID].Equal(want), "got %v want %v", rec.expires[access.ID], want)
	})
}

func TestRefresh(t *testing.T) {
	f := newFixture(t, nil)
	f.createUser(t, "alice", "password123", domain.RoleAdmin)

	pair, err := f.auth.Login(context.Background(), "alice", "password123")
	require.NoError(t, err)

	t.Run("rotates", func(t *testing.T) {
		next, err := f.auth.Refresh(context.Background(), pair.RefreshToken)
		require.NoError(t, err)
		require.NotEqual(t, pair.RefreshToken, next.RefreshToken)
		require.True(t, f.auth.Introspect(context.Background(), next.AccessToken))

		claims, err := f.codec.Verify(next.AccessToken)
		require.NoError(t, err)
		require.Equal(t, "ROLE_ADMIN", claims.Scope)

		// The rotated refresh token works once too.
		_, err = f.auth.Refresh(context.Background(), next.RefreshToken)
		require.NoError(t, err)
	})

	t.Run("replay is rejected and logged", func(t *testing.T) {
		var buf bytes.Buffer
		_, err := f.auth.Refresh(captureLogs(&buf), pair.RefreshToken)
		require.ErrorIs(t, err, service.ErrTokenReplayed)
		require.ErrorIs(t, err, service.ErrUnauthenticated)

		require.Contains(t, buf.String(), `"event":"refresh_token_replayed"`)
		require.Contains(t, buf.String(), `"level":"WARN"`)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		_, err := f.auth.Refresh(context.Background(), pair.AccessToken)
		require.ErrorIs(t, err, service.ErrUnauthenticated)
		require.ErrorIs(t, err, jwtx.ErrWrongKind)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := f.auth.Refresh(context.Background(), "a.b.c")
		require.ErrorIs(t, err, service.ErrUnauthenticated)
	})

	t.Run("revocation store failure", func(t *testing.T) {
		broken := newFixture(t, failingRevocations{})
		broken.createUser(t, "bob", "password123", domain.RoleStudent)
		p, err := broken.auth.Login(context.Background(), "bob", "password123")
		require.NoError(t, err)

		_, err = broken.auth.Refresh(context.Background(), p.RefreshToken)
		require.Error(t, err)
		require.NotErrorIs(t, err, service.ErrUnauthenticated)
	})
}

func TestRefreshConcurrentRedemption(t *testing.T) {
	for name, newRevocations := range map[string]func(store.Store) revocation.Store{
		"memory": func(store.Store) revocation.Store { return revocation.NewMemory() },
		"sql":    func(st store.Store) revocation.Store { return store.NewRevocationAdapter(st) },
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.auth.Revocations = newRevocations(f.store)
			f.createUser(t, "alice", "password123", domain.RoleStudent)

			pair, err := f.auth.Login(context.Background(), "alice", "password123")
			require.NoError(t, err)

			var (
				wg       sync.WaitGroup
				wins     atomic.Int32
				replayed atomic.Int32
			)
			for range 50 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := f.auth.Refresh(context.Background(), pair.RefreshToken)
					switch {
					case err == nil:
						wins.Add(1)
					case errors.Is(err, service.ErrTokenReplayed):
						replayed.Add(1)
					}
				}()
			}
			wg.Wait()

			require.Equal(t, int32(1), wins.Load())
			require.Equal(t, int32(49), replayed.Load())
		})
	}
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createUser(t, "alice", "password123", domain.RoleStudent)

	pair, err := f.auth.Login(ctx, "alice", "password123")
	require.NoError(t, err)

	require.NoError(t, f.auth.Logout(ctx, pair.RefreshToken))
	require.NoError(t, f.auth.Logout(ctx, pair.RefreshToken), "logout is idempotent")

	_, err = f.auth.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, service.ErrUnauthenticated)

	require.ErrorIs(t, f.auth.Logout(ctx, "garbage"), service.ErrUnauthenticated)
}

func TestLocalIntrospector(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.createUser(t, "alice", "password123", domain.RoleStudent)

	pair, err := f.auth.Login(ctx, "alice", "password123")
	require.NoError(t, err)

	li := service.LocalIntrospector{Auth: f.auth}
	require.Equal(t, authsdk.OutcomeValid, li.Introspect(ctx, pair.AccessToken).Outcome)
	require.Equal(t, authsdk.OutcomeInvalid, li.Introspect(ctx, "nope").Outcome)

	claims, err := authsdk.NewDecoder(li, f.codec).Decode(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Subject)
}
