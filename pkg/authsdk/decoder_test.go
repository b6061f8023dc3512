package authsdk

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeep/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

type fixedIntrospector struct {
	result IntrospectResult
}

func (f fixedIntrospector) Introspect(context.Context, string) IntrospectResult { return f.result }

func newCodec(t *testing.T, secret string) *jwtx.Codec {
	t.Helper()
	codec, err := jwtx.NewCodec(jwtx.CodecConfig{
		Secret:              []byte(strings.Repeat(secret, jwtx.MinSecretLength)),
		Issuer:              "gatekeep-authority",
		RefreshableDuration: time.Hour,
	})
	require.NoError(t, err)
	return codec
}

func TestDecoder(t *testing.T) {
	t.Parallel()

	codec := newCodec(t, "s")
	token, err := codec.Mint(jwtx.KindAccess, "alice", "INSTRUCTOR", time.Minute)
	require.NoError(t, err)

	t.Run("valid outcome and good signature", func(t *testing.T) {
		d := NewDecoder(fixedIntrospector{IntrospectResult{Outcome: OutcomeValid}}, codec)

		claims, err := d.Decode(context.Background(), token)
		require.NoError(t, err)
		require.Equal(t, "alice", claims.Subject)
		require.Equal(t, "INSTRUCTOR", claims.Role())
	})

	t.Run("invalid outcome", func(t *testing.T) {
		d := NewDecoder(fixedIntrospector{IntrospectResult{Outcome: OutcomeInvalid}}, codec)

		_, err := d.Decode(context.Background(), token)
		require.ErrorIs(t, err, ErrTokenRejected)
	})

	t.Run("unreachable outcome keeps the cause", func(t *testing.T) {
		cause := errors.New("dial tcp: connection refused")
		d := NewDecoder(fixedIntrospector{IntrospectResult{Outcome: OutcomeUnreachable, Err: cause}}, codec)

		_, err := d.Decode(context.Background(), token)
		require.ErrorIs(t, err, ErrTokenRejected)
		require.ErrorIs(t, err, cause)
	})

	t.Run("valid outcome but signature from another secret", func(t *testing.T) {
		d := NewDecoder(fixedIntrospector{IntrospectResult{Outcome: OutcomeValid}}, newCodec(t, "x"))

		_, err := d.Decode(context.Background(), token)
		require.ErrorIs(t, err, ErrTokenRejected)
		require.ErrorIs(t, err, jwtx.ErrBadSignature)
	})

	t.Run("concurrent use", func(t *testing.T) {
		d := NewDecoder(fixedIntrospector{IntrospectResult{Outcome: OutcomeValid}}, codec)

		var wg sync.WaitGroup
		errs := make(chan error, 32)
		for range 32 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := d.Decode(context.Background(), token); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}
	})
}
