package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "vumi", cfg.Broker.Exchange)
	assert.Equal(t, "memory", cfg.KeyStore.Backend)
	assert.Equal(t, 48*time.Hour, cfg.Bridge.MessageLifetime)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*GatewayConfig)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *GatewayConfig) { c.Server.LogLevel = "loud" },
			wantErr: "invalid log level",
		},
		{
			name:    "empty exchange",
			mutate:  func(c *GatewayConfig) { c.Broker.Exchange = "" },
			wantErr: "exchange cannot be empty",
		},
		{
			name:    "unknown keystore backend",
			mutate:  func(c *GatewayConfig) { c.KeyStore.Backend = "redis" },
			wantErr: "unsupported keystore backend",
		},
		{
			name: "badger without path",
			mutate: func(c *GatewayConfig) {
				c.KeyStore.Backend = "badger"
				c.KeyStore.Path = ""
			},
			wantErr: "keystore path required",
		},
		{
			name: "auth without users",
			mutate: func(c *GatewayConfig) {
				c.HTTPTransport.AuthEnabled = true
			},
			wantErr: "auth enabled without users",
		},
		{
			name: "bridge missing credentials",
			mutate: func(c *GatewayConfig) {
				c.Bridge.Enabled = true
				c.Bridge.BaseURL = "https://example.org"
			},
			wantErr: "bridge requires",
		},
		{
			name: "metrics without addr",
			mutate: func(c *GatewayConfig) {
				c.Metrics.Enabled = true
				c.Metrics.Addr = ""
			},
			wantErr: "metrics address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  name: test-gateway
  log_level: debug
keystore:
  backend: badger
  path: /var/lib/vumi/keystore
bridge:
  enabled: true
  account_key: acc
  conversation_key: conv
  access_token: tok
  base_url: https://example.org/api/v1/go
  message_lifetime: 24h
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-gateway", cfg.Server.Name)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "badger", cfg.KeyStore.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Bridge.MessageLifetime)
	// Untouched sections keep their defaults.
	assert.Equal(t, "vumi", cfg.Broker.Exchange)
	assert.Equal(t, ":8080", cfg.HTTPTransport.Addr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadInvalidConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  log_level: shouty
`), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VUMI_SERVER_LOG_LEVEL", "warn")
	t.Setenv("VUMI_HTTP_TRANSPORT_ADDR", ":9999")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Server.LogLevel)
	assert.Equal(t, ":9999", cfg.HTTPTransport.Addr)
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"VUMI_SERVER_LOG_LEVEL", "server.log_level"},
		{"VUMI_HTTP_TRANSPORT_ADDR", "http_transport.addr"},
		{"VUMI_KEYSTORE_BACKEND", "keystore.backend"},
		{"VUMI_BRIDGE_ACCOUNT_KEY", "bridge.account_key"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envKey(tt.in), tt.in)
	}
}

func TestBuilder(t *testing.T) {
	cfg, err := NewBuilder().
		WithServerName("built-gateway").
		WithLogLevel("debug").
		WithExchange("gateway").
		WithHTTPTransport("http_transport", ":8081").
		WithHTTPAuth(map[string]string{"account": "token"}).
		WithBridge("acc", "conv", "tok", "https://example.org").
		WithMessageLifetime(time.Hour).
		WithBadgerKeyStore("/tmp/keystore").
		WithMetrics(":9091").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "built-gateway", cfg.Server.Name)
	assert.Equal(t, "gateway", cfg.Broker.Exchange)
	assert.True(t, cfg.Bridge.Enabled)
	assert.Equal(t, time.Hour, cfg.Bridge.MessageLifetime)
	assert.Equal(t, "/tmp/keystore", cfg.KeyStore.Path)
}

func TestBuilderValidationFailure(t *testing.T) {
	_, err := NewBuilder().WithLogLevel("loud").Build()
	require.Error(t, err)

	cfg := NewBuilder().WithLogLevel("loud").BuildUnsafe()
	assert.Equal(t, "loud", cfg.Server.LogLevel)
}
