package gateway_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	authorityhttp "github.com/aussiebroadwan/gatekeep/internal/authority/http"
	"github.com/aussiebroadwan/gatekeep/internal/authority/domain"
	"github.com/aussiebroadwan/gatekeep/internal/authority/revocation"
	"github.com/aussiebroadwan/gatekeep/internal/authority/service"
	"github.com/aussiebroadwan/gatekeep/internal/authority/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeep/internal/gateway"
	"github.com/aussiebroadwan/gatekeep/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeep/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
	"github.com/aussiebroadwan/gatekeep/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var e2eSecret = []byte(strings.Repeat("e", jwtx.MinSecretLength))

const e2eIssuer = "gatekeep-e2e"

func e2eCodec(t *testing.T, now func() time.Time) *jwtx.Codec {
	t.Helper()
	codec, err := jwtx.NewCodec(jwtx.CodecConfig{
		Secret:              e2eSecret,
		Issuer:              e2eIssuer,
		RefreshableDuration: time.Hour,
		Now:                 now,
	})
	require.NoError(t, err)
	return codec
}

// stack is an authority, a resource service and a gateway in front of both.
type stack struct {
	authority *httptest.Server
	gateway   *httptest.Server
	client    *authsdk.Client
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.Join(t.TempDir(), "auth.db"))
	st, err := sqlite.NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	codec := e2eCodec(t, nil)
	hasher, err := cryptox.NewPasswordHasher(cryptox.PasswordHasherConfig{BcryptCost: 4})
	require.NoError(t, err)

	revocations := revocation.NewMemory()
	auth := &service.AuthService{
		Store:       st,
		Revocations: revocations,
		Codec:       codec,
		Hasher:      hasher,
		AccessTTL:   time.Minute,
	}
	users := &service.UserService{Store: st, Hasher: hasher}

	_, err = users.Create(context.Background(), service.CreateUserInput{
		Username: "alice",
		Password: "password123",
		Role:     domain.RoleStudent,
	})
	require.NoError(t, err)

	router := authorityhttp.NewRouter(
		authsdk.NewDecoder(service.LocalIntrospector{Auth: auth}, codec),
		"e2e", st, revocations, slogx.Discard(),
	)
	router.AuthService = auth
	router.UserService = users
	router.ApplyRoutes()

	authoritySrv := httptest.NewServer(router)
	t.Cleanup(authoritySrv.Close)

	// A resource service that decodes tokens on its own, through the
	// authority, before answering.
	decoder := authsdk.NewDecoder(authsdk.NewClient(authoritySrv.URL), codec)
	courses := http.NewServeMux()
	courses.Handle("GET /courses", httpx.Authenticate(decoder, func(w http.ResponseWriter, _ *http.Request, rc httpx.RequestContext) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"subject": rc.Subject(), "role": rc.Role()})
	}))
	coursesSrv := httptest.NewServer(courses)
	t.Cleanup(coursesSrv.Close)

	cfg := gateway.DefaultConfig()
	cfg.Authority.URL = authoritySrv.URL
	cfg.Routes = []gateway.RouteConfig{
		{Prefix: "/users", Upstream: authoritySrv.URL},
		{Prefix: "/courses", Upstream: coursesSrv.URL},
	}

	app, err := gateway.New(cfg, slogx.Discard())
	require.NoError(t, err)

	gatewaySrv := httptest.NewServer(app.Handler())
	t.Cleanup(gatewaySrv.Close)

	return &stack{
		authority: authoritySrv,
		gateway:   gatewaySrv,
		client:    authsdk.NewClient(gatewaySrv.URL + "/api"),
	}
}

func (s *stack) get(t *testing.T, path, bearer string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.gateway.URL+path, nil)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestGatewayEndToEnd(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	// Login is public at the gateway.
	login, err := s.client.Login(ctx, "alice", "password123")
	require.NoError(t, err)

	t.Run("valid token reaches the resource", func(t *testing.T) {
		resp := s.get(t, "/api/courses", login.AccessToken)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("authority endpoints behind the gateway", func(t *testing.T) {
		me, err := s.client.Me(ctx, login.AccessToken)
		require.NoError(t, err)
		require.Equal(t, "alice", me.Username)
	})

	t.Run("missing token is denied", func(t *testing.T) {
		resp := s.get(t, "/api/courses", "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("expired token is denied", func(t *testing.T) {
		past := e2eCodec(t, func() time.Time { return time.Now().Add(-2 * time.Hour) })
		expired, err := past.Mint(jwtx.KindAccess, "alice", "STUDENT", time.Minute)
		require.NoError(t, err)

		resp := s.get(t, "/api/courses", expired)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("forged token is denied", func(t *testing.T) {
		forger, err := jwtx.NewCodec(jwtx.CodecConfig{
			Secret:              []byte(strings.Repeat("f", jwtx.MinSecretLength)),
			Issuer:              e2eIssuer,
			RefreshableDuration: time.Hour,
		})
		require.NoError(t, err)
		forged, err := forger.Mint(jwtx.KindAccess, "alice", "ADMIN", time.Minute)
		require.NoError(t, err)

		resp := s.get(t, "/api/courses", forged)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("account activation is public", func(t *testing.T) {
		err := s.client.VerifyOTP(ctx, "nobody", "123456")
		var apiErr *authsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusBadRequest, apiErr.StatusCode, "reached the authority without a token")
	})

	t.Run("dot segments cannot borrow a public prefix", func(t *testing.T) {
		for _, path := range []string{"/api/users/login/../me", "/api/users/login/..%2fme", "/api/users/create/../42"} {
			resp := s.get(t, path, "")
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		}
	})

	t.Run("refresh rotates and the old pair stops working", func(t *testing.T) {
		pair, err := s.client.Login(ctx, "alice", "password123")
		require.NoError(t, err)

		rotated, err := s.client.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)

		_, err = s.client.Refresh(ctx, pair.RefreshToken)
		var apiErr *authsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

		resp := s.get(t, "/api/courses", rotated.AccessToken)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("logout revokes at the gateway", func(t *testing.T) {
		pair, err := s.client.Login(ctx, "alice", "password123")
		require.NoError(t, err)

		require.Equal(t, http.StatusOK, s.get(t, "/api/courses", pair.AccessToken).StatusCode)
		// Logout is not a public path, so it goes to the authority directly.
		require.NoError(t, authsdk.NewClient(s.authority.URL).Logout(ctx, pair.AccessToken))
		require.Equal(t, http.StatusUnauthorized, s.get(t, "/api/courses", pair.AccessToken).StatusCode)
	})

	t.Run("livez bypasses the filter", func(t *testing.T) {
		resp := s.get(t, "/livez", "")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get(slogx.HeaderRequestID))
	})

	t.Run("unknown route after auth is 404", func(t *testing.T) {
		resp := s.get(t, "/api/nowhere", login.AccessToken)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestGatewayConcurrentRefresh(t *testing.T) {
	s := newStack(t)

	login, err := s.client.Login(context.Background(), "alice", "password123")
	require.NoError(t, err)

	results := make(chan error, 2)
	for range 2 {
		go func() {
			_, err := s.client.Refresh(context.Background(), login.RefreshToken)
			results <- err
		}()
	}

	var ok, rejected int
	for range 2 {
		err := <-results
		if err == nil {
			ok++
			continue
		}
		var apiErr *authsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		rejected++
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, rejected)
}

func TestGatewayFailsClosed(t *testing.T) {
	s := newStack(t)

	login, err := s.client.Login(context.Background(), "alice", "password123")
	require.NoError(t, err)

	s.authority.Close()

	resp := s.get(t, "/api/courses", login.AccessToken)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGatewayAuthorityErrorDenies(t *testing.T) {
	gin.SetMode(gin.TestMode)

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusInternalServerError, httpx.CodeInternal, "boom")
	}))
	t.Cleanup(broken.Close)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	t.Cleanup(upstream.Close)

	cfg := gateway.DefaultConfig()
	cfg.Authority.URL = broken.URL
	cfg.Routes = []gateway.RouteConfig{{Prefix: "/courses", Upstream: upstream.URL}}

	app, err := gateway.New(cfg, slogx.Discard())
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/courses", nil)
	req.Header.Set("Authorization", "Bearer anything")
	app.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"code":1401,"message":"Unauthenticated"}`, w.Body.String())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := gateway.DefaultConfig()
	cfg.Routes = nil

	_, err := gateway.New(cfg, slogx.Discard())
	require.Error(t, err)
}
