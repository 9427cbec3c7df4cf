package config

import (
	"time"
)

// Builder provides a fluent API for building configuration
type Builder struct {
	config *GatewayConfig
}

// NewBuilder creates a new configuration builder with defaults
func NewBuilder() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// FromConfig creates a builder from an existing configuration
func FromConfig(config *GatewayConfig) *Builder {
	builder := NewBuilder()
	*builder.config = *config
	return builder
}

// WithServerName sets the gateway instance name
func (b *Builder) WithServerName(name string) *Builder {
	b.config.Server.Name = name
	return b
}

// WithLogLevel sets the log level
func (b *Builder) WithLogLevel(level string) *Builder {
	b.config.Server.LogLevel = level
	return b
}

// WithExchange sets the shared broker exchange
func (b *Builder) WithExchange(exchange string) *Builder {
	b.config.Broker.Exchange = exchange
	return b
}

// WithHTTPTransport enables the HTTP transport on the given address
func (b *Builder) WithHTTPTransport(name, addr string) *Builder {
	b.config.HTTPTransport.Enabled = true
	b.config.HTTPTransport.Name = name
	b.config.HTTPTransport.Addr = addr
	return b
}

// WithHTTPAuth enables basic auth on the HTTP transport with in-config users
func (b *Builder) WithHTTPAuth(users map[string]string) *Builder {
	b.config.HTTPTransport.AuthEnabled = true
	b.config.HTTPTransport.Users = users
	return b
}

// WithBridge enables the streaming bridge transport
func (b *Builder) WithBridge(accountKey, conversationKey, accessToken, baseURL string) *Builder {
	b.config.Bridge.Enabled = true
	b.config.Bridge.AccountKey = accountKey
	b.config.Bridge.ConversationKey = conversationKey
	b.config.Bridge.AccessToken = accessToken
	b.config.Bridge.BaseURL = baseURL
	return b
}

// WithMessageLifetime sets how long remote message-id mappings live
func (b *Builder) WithMessageLifetime(lifetime time.Duration) *Builder {
	b.config.Bridge.MessageLifetime = lifetime
	return b
}

// WithMemoryKeyStore configures the in-memory keystore
func (b *Builder) WithMemoryKeyStore() *Builder {
	b.config.KeyStore.Backend = "memory"
	b.config.KeyStore.Path = ""
	return b
}

// WithBadgerKeyStore configures the persistent badger keystore
func (b *Builder) WithBadgerKeyStore(path string) *Builder {
	b.config.KeyStore.Backend = "badger"
	b.config.KeyStore.Path = path
	return b
}

// WithMetrics enables the Prometheus endpoint
func (b *Builder) WithMetrics(addr string) *Builder {
	b.config.Metrics.Enabled = true
	b.config.Metrics.Addr = addr
	return b
}

// WithDispatch sets the dispatcher's connector wiring
func (b *Builder) WithDispatch(transportNames, exposedNames []string, inbound, outbound map[string][]string) *Builder {
	b.config.Dispatch.TransportNames = transportNames
	b.config.Dispatch.ExposedNames = exposedNames
	b.config.Dispatch.InboundMappings = inbound
	b.config.Dispatch.OutboundMappings = outbound
	return b
}

// Build returns the configured GatewayConfig
func (b *Builder) Build() (*GatewayConfig, error) {
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	return b.config, nil
}

// BuildUnsafe returns the configured GatewayConfig without validation
func (b *Builder) BuildUnsafe() *GatewayConfig {
	return b.config
}
