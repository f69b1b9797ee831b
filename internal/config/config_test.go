package config

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBase(t *testing.T) {
	t.Setenv("KEYGATE_STORE_PROVIDER", "memory")
	t.Setenv("KEYGATE_JWT_SECRET", "s3cret")
}

func TestNew_Defaults(t *testing.T) {
	setBase(t)

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "none", cfg.BusProvider)
	assert.Equal(t, 3*time.Second, cfg.StorageTimeout)
	assert.Equal(t, 8, cfg.CommitRetries)
	assert.Equal(t, "admin", cfg.AdminUsername)
	assert.Empty(t, cfg.TrustedProxies)

	_, err = cfg.ApiAddr()
	assert.Error(t, err)
	_, err = cfg.GRPCAddr()
	assert.Error(t, err)
}

func TestNew_Overrides(t *testing.T) {
	setBase(t)
	t.Setenv("KEYGATE_STORE_PROVIDER", "postgres")
	t.Setenv("KEYGATE_POSTGRES_USER", "kg")
	t.Setenv("KEYGATE_POSTGRES_PASSWORD", "pw")
	t.Setenv("KEYGATE_POSTGRES_HOST", "db")
	t.Setenv("KEYGATE_POSTGRES_DB", "keygate")
	t.Setenv("KEYGATE_API_ENABLED", "true")
	t.Setenv("KEYGATE_API_PORT", "8080")
	t.Setenv("KEYGATE_GRPC_PORT", "50051")
	t.Setenv("KEYGATE_STORAGE_TIMEOUT", "750ms")
	t.Setenv("KEYGATE_TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.7,")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "postgres://kg:pw@db:5432/keygate?sslmode=disable", cfg.DSN())
	assert.Equal(t, 750*time.Millisecond, cfg.StorageTimeout)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.7/32"),
	}, cfg.TrustedProxies)

	addr, err := cfg.ApiAddr()
	require.NoError(t, err)
	assert.Equal(t, ":8080", addr)

	addr, err = cfg.GRPCAddr()
	require.NoError(t, err)
	assert.Equal(t, ":50051", addr)
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing store", map[string]string{"KEYGATE_STORE_PROVIDER": ""}},
		{"unknown store", map[string]string{"KEYGATE_STORE_PROVIDER": "files"}},
		{"redis without host", map[string]string{"KEYGATE_STORE_PROVIDER": "redis"}},
		{"postgres without db", map[string]string{"KEYGATE_STORE_PROVIDER": "postgres"}},
		{"unknown bus", map[string]string{"KEYGATE_BUS_PROVIDER": "kafka"}},
		{"nats without host", map[string]string{"KEYGATE_BUS_PROVIDER": "nats"}},
		{"missing secret", map[string]string{"KEYGATE_JWT_SECRET": ""}},
		{"zero retries", map[string]string{"KEYGATE_COMMIT_RETRIES": "0"}},
		{"bad trusted proxy", map[string]string{"KEYGATE_TRUSTED_PROXIES": "10.0.0.1, proxy.local"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBase(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := New()
			assert.Error(t, err)
		})
	}
}
