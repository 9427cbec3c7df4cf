// Package config holds the gateway's configuration: defaults, YAML
// file loading and environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces the gateway's environment overrides, e.g.
// VUMI_SERVER_LOG_LEVEL=debug.
const envPrefix = "VUMI_"

// ServerConfig identifies the gateway instance.
type ServerConfig struct {
	Name     string `koanf:"name"`
	LogLevel string `koanf:"log_level"`
}

// BrokerConfig configures the in-process broker.
type BrokerConfig struct {
	Exchange string `koanf:"exchange"`
}

// HTTPTransportConfig configures the inbound HTTP API transport.
type HTTPTransportConfig struct {
	Enabled     bool              `koanf:"enabled"`
	Name        string            `koanf:"name"`
	Addr        string            `koanf:"addr"`
	WebPath     string            `koanf:"web_path"`
	AuthEnabled bool              `koanf:"auth_enabled"`
	Users       map[string]string `koanf:"users"`
	UserFile    string            `koanf:"user_file"`
}

// BridgeConfig configures the streaming bridge transport.
type BridgeConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Name            string        `koanf:"name"`
	AccountKey      string        `koanf:"account_key"`
	ConversationKey string        `koanf:"conversation_key"`
	AccessToken     string        `koanf:"access_token"`
	BaseURL         string        `koanf:"base_url"`
	MessageLifetime time.Duration `koanf:"message_lifetime"`
	MaxRetries      int           `koanf:"max_retries"`
}

// KeyStoreConfig selects the message-id mapping backend.
type KeyStoreConfig struct {
	Backend string `koanf:"backend"` // memory or badger
	Path    string `koanf:"path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	Path    string `koanf:"path"`
}

// DispatchConfig wires transports to exposed connectors by name.
type DispatchConfig struct {
	TransportNames   []string            `koanf:"transport_names"`
	ExposedNames     []string            `koanf:"exposed_names"`
	InboundMappings  map[string][]string `koanf:"inbound_mappings"`
	OutboundMappings map[string][]string `koanf:"outbound_mappings"`
}

// GatewayConfig is the full gateway configuration.
type GatewayConfig struct {
	Server        ServerConfig        `koanf:"server"`
	Broker        BrokerConfig        `koanf:"broker"`
	HTTPTransport HTTPTransportConfig `koanf:"http_transport"`
	Bridge        BridgeConfig        `koanf:"bridge"`
	KeyStore      KeyStoreConfig      `koanf:"keystore"`
	Metrics       MetricsConfig       `koanf:"metrics"`
	Dispatch      DispatchConfig      `koanf:"dispatch"`
}

// DefaultConfig creates a configuration with sensible defaults
func DefaultConfig() *GatewayConfig {
	return &GatewayConfig{
		Server: ServerConfig{
			Name:     "vumi-gateway",
			LogLevel: "info",
		},
		Broker: BrokerConfig{
			Exchange: "vumi",
		},
		HTTPTransport: HTTPTransportConfig{
			Enabled: true,
			Name:    "http_transport",
			Addr:    ":8080",
			WebPath: "/api/v1/message",
		},
		Bridge: BridgeConfig{
			Name:            "bridge_transport",
			MessageLifetime: 48 * time.Hour,
		},
		KeyStore: KeyStoreConfig{
			Backend: "memory",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
			Path: "/metrics",
		},
		Dispatch: DispatchConfig{
			TransportNames: []string{"http_transport"},
			ExposedNames:   []string{"app"},
			InboundMappings: map[string][]string{
				"http_transport": {"app"},
			},
			OutboundMappings: map[string][]string{
				"app": {"http_transport"},
			},
		},
	}
}

var logLevels = map[string]struct{}{
	"debug": {}, "info": {}, "warn": {}, "error": {},
}

// Validate validates the configuration
func (c *GatewayConfig) Validate() error {
	if _, ok := logLevels[c.Server.LogLevel]; !ok {
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}

	if c.Broker.Exchange == "" {
		return fmt.Errorf("broker exchange cannot be empty")
	}

	switch c.KeyStore.Backend {
	case "memory":
	case "badger":
		if c.KeyStore.Path == "" {
			return fmt.Errorf("keystore path required for backend: %s", c.KeyStore.Backend)
		}
	default:
		return fmt.Errorf("unsupported keystore backend: %s", c.KeyStore.Backend)
	}

	if c.HTTPTransport.Enabled {
		if c.HTTPTransport.Addr == "" {
			return fmt.Errorf("http transport address cannot be empty")
		}
		if c.HTTPTransport.AuthEnabled &&
			len(c.HTTPTransport.Users) == 0 && c.HTTPTransport.UserFile == "" {
			return fmt.Errorf("http transport auth enabled without users or user_file")
		}
	}

	if c.Bridge.Enabled {
		if c.Bridge.AccountKey == "" || c.Bridge.ConversationKey == "" || c.Bridge.AccessToken == "" {
			return fmt.Errorf("bridge requires account_key, conversation_key and access_token")
		}
		if c.Bridge.BaseURL == "" {
			return fmt.Errorf("bridge base_url cannot be empty")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics address cannot be empty")
	}

	return nil
}

// Load reads a YAML configuration file, applies VUMI_* environment
// overrides on top and validates the result. An empty path skips the
// file and uses defaults plus environment only.
func Load(path string) (*GatewayConfig, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to read configuration file: %w", err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKey(key), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envSections are the section prefixes recognized in environment
// variable names, longest first so http_transport wins over a plain
// first-underscore split.
var envSections = []string{
	"http_transport", "keystore", "dispatch", "metrics",
	"server", "broker", "bridge",
}

// envKey maps VUMI_HTTP_TRANSPORT_ADDR to http_transport.addr.
func envKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	for _, section := range envSections {
		if strings.HasPrefix(key, section+"_") {
			return section + "." + strings.TrimPrefix(key, section+"_")
		}
	}
	return key
}

// Exists reports whether a config file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
