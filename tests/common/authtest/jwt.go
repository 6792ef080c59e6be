//go:build unit || e2e

package authtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"genflow/internal/pkg/config"
	"genflow/internal/pkg/token"
)

type ServiceTokenHelper struct {
	issuer *token.Issuer
}

func NewServiceTokenHelper(cfg config.AuthConfig) *ServiceTokenHelper {
	return &ServiceTokenHelper{issuer: token.NewIssuer(cfg.ServiceTokenSecret)}
}

func (h *ServiceTokenHelper) GenerateToken(t *testing.T, service string) string {
	t.Helper()
	signed, err := h.issuer.Issue(service, time.Hour)
	require.NoError(t, err)
	return signed
}

func (h *ServiceTokenHelper) CreateExpiredToken(t *testing.T, service string) string {
	t.Helper()
	signed, err := h.issuer.Issue(service, -time.Minute)
	require.NoError(t, err)
	return signed
}
