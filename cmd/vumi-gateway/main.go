package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ismaild/vumi/auth"
	"github.com/ismaild/vumi/broker"
	"github.com/ismaild/vumi/config"
	"github.com/ismaild/vumi/dispatch"
	"github.com/ismaild/vumi/interfaces"
	"github.com/ismaild/vumi/keystore"
	"github.com/ismaild/vumi/metrics"
	"github.com/ismaild/vumi/transport"
	"github.com/ismaild/vumi/worker"
)

const version = "0.4.0"

func main() {
	var (
		configFile  = flag.String("config", "", "Configuration file path (YAML)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("vumi-gateway version %s\n", version)
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := buildLogger(cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gateway exited", zap.Error(err))
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func run(cfg *config.GatewayConfig, logger *zap.Logger) error {
	b := broker.NewBroker()
	defer b.Close()
	b.SetLogger(logger)

	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector("vumi")
		b.SetMetrics(collector)

		srv := metrics.NewServer(cfg.Metrics.Addr)
		go func() {
			logger.Info("metrics server listening", zap.String("addr", cfg.Metrics.Addr))
			if err := srv.Start(); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer srv.Stop(context.Background())
	}

	store, err := buildKeyStore(cfg.KeyStore)
	if err != nil {
		return err
	}
	defer store.Close()

	runner := worker.NewRunner(logger)
	channelID := 1

	if cfg.HTTPTransport.Enabled {
		authenticator, err := buildAuthenticator(cfg.HTTPTransport)
		if err != nil {
			return err
		}
		conn := transport.NewConnector(b, channelID, cfg.HTTPTransport.Name, logger)
		channelID++
		runner.Add(cfg.HTTPTransport.Name, transport.NewHTTPTransport(conn, transport.HTTPConfig{
			Addr:        cfg.HTTPTransport.Addr,
			WebPath:     cfg.HTTPTransport.WebPath,
			AuthEnabled: cfg.HTTPTransport.AuthEnabled,
		}, authenticator, logger))
	}

	if cfg.Bridge.Enabled {
		bridgeCfg := transport.DefaultBridgeConfig()
		bridgeCfg.AccountKey = cfg.Bridge.AccountKey
		bridgeCfg.ConversationKey = cfg.Bridge.ConversationKey
		bridgeCfg.AccessToken = cfg.Bridge.AccessToken
		bridgeCfg.BaseURL = cfg.Bridge.BaseURL
		if cfg.Bridge.MessageLifetime > 0 {
			bridgeCfg.MessageLifetime = cfg.Bridge.MessageLifetime
		}
		if cfg.Bridge.MaxRetries > 0 {
			bridgeCfg.MaxRetries = cfg.Bridge.MaxRetries
		}
		conn := transport.NewConnector(b, channelID, cfg.Bridge.Name, logger)
		channelID++
		runner.Add(cfg.Bridge.Name, transport.NewBridgeTransport(conn, store, bridgeCfg, logger))
	}

	runner.Add("dispatcher", dispatch.NewDispatcher(b, channelID, dispatch.Config{
		TransportNames: cfg.Dispatch.TransportNames,
		ExposedNames:   cfg.Dispatch.ExposedNames,
		Router: dispatch.NewSimpleDispatchRouter(
			cfg.Dispatch.InboundMappings, cfg.Dispatch.OutboundMappings),
		Middleware: dispatch.NewStack(dispatch.NewLoggingMiddleware(logger)),
	}, logger))

	logger.Info("gateway starting",
		zap.String("name", cfg.Server.Name), zap.String("version", version))
	return runner.RunUntilSignal(context.Background())
}

func buildKeyStore(cfg config.KeyStoreConfig) (interfaces.KeyStore, error) {
	switch cfg.Backend {
	case "badger":
		store, err := keystore.NewBadgerStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return keystore.NewMemoryStore(), nil
	}
}

func buildAuthenticator(cfg config.HTTPTransportConfig) (interfaces.Authenticator, error) {
	if !cfg.AuthEnabled {
		return nil, nil
	}
	if cfg.UserFile != "" {
		return auth.NewFileAuthenticator(cfg.UserFile)
	}
	if len(cfg.Users) > 0 {
		return auth.NewStaticAuthenticator(cfg.Users), nil
	}
	return nil, fmt.Errorf("http transport auth enabled without users or user_file")
}
