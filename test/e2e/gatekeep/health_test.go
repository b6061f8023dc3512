package gatekeep_test

import (
	"net/http"
	"testing"

	"github.com/aussiebroadwan/gatekeep/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestLivezEndpoint(t *testing.T) {
	s := setupStack(t)

	health, err := s.authority.GetLiveness(t.Context())
	assertHealthy(t, health, err)
}

func TestReadyzEndpoint(t *testing.T) {
	s := setupStack(t)

	health, err := s.authority.GetReadiness(t.Context())
	assertHealthy(t, health, err)
	require.Equal(t, "ok", health.Checks.Database)
	require.Equal(t, "ok", health.Checks.Revocation)
}

func TestGatewayLivez(t *testing.T) {
	s := setupStack(t)

	// The gateway's own health check is not under /api and needs no token.
	require.Equal(t, http.StatusOK, s.get(t, "/livez", ""))

	health, err := authsdk.NewClient(s.gatewayURL).GetLiveness(t.Context())
	assertHealthy(t, health, err)
}
