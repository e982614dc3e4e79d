package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/sigmesh/sigmesh-go/internal/core/ledger"
	"github.com/sigmesh/sigmesh-go/internal/core/service"
	"github.com/sigmesh/sigmesh-go/internal/infra/buildinfo"
	"github.com/sigmesh/sigmesh-go/internal/infra/confloader"
	"github.com/sigmesh/sigmesh-go/internal/infra/shutdown"
	"github.com/sigmesh/sigmesh-go/internal/infra/tlsroots"
	"github.com/sigmesh/sigmesh-go/internal/secrets"
	"github.com/sigmesh/sigmesh-go/internal/server/config"
	"github.com/sigmesh/sigmesh-go/internal/server/httpserver"
	"github.com/sigmesh/sigmesh-go/internal/server/relay"
	"github.com/sigmesh/sigmesh-go/internal/storage"
	"github.com/sigmesh/sigmesh-go/internal/storage/memory"
	"github.com/sigmesh/sigmesh-go/internal/telemetry/logger"
	"github.com/sigmesh/sigmesh-go/internal/telemetry/metric"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("sigmesh-server " + buildinfo.String())
		return nil
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, slogLogger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting sigmesh-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", *configFile)

	store, err := initStorage(cfg, slogLogger)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	ctx := context.Background()
	vault, err := secrets.NewVault(ctx, store, vaultConfig(cfg), slogLogger)
	if err != nil {
		store.Close()
		return fmt.Errorf("open vault: %w", err)
	}

	hub := relay.NewHub(cfg.Relay.QueueSize, slogLogger)
	metrics := metric.New()

	registry := service.NewRegistry(store, ledger.NewStaticEngine(), vault, hub, metrics, slogLogger,
		service.RegistryConfig{IdleTTL: cfg.Relay.IdleTTL})

	syncSvc := service.NewSyncService(registry, store, service.NewEd25519Verifier(), hub, metrics, slogLogger,
		service.SyncConfig{
			MaxMessageSize:     cfg.Relay.MaxMessageSize,
			ByteBudgetFraction: cfg.Relay.ByteBudgetFraction,
			SubmitRate:         rate.Limit(cfg.Relay.SubmitRate),
			SubmitBurst:        cfg.Relay.SubmitBurst,
		})

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Registry:           registry,
		Sync:               syncSvc,
		Hub:                hub,
		Store:              store,
		Metrics:            metrics,
		Logger:             slogLogger,
		CORSAllowedOrigins: cfg.Server.HTTP.CORSAllowedOrigins,
		GlobalRateLimit:    cfg.Server.HTTP.RateLimit,
		EnableAudit:        cfg.Server.HTTP.EnableAudit,
	})
	httpServer := httpserver.New(cfg.Server.HTTP.Addr, router)

	shutdownHandler := shutdown.NewHandler(30 * time.Second)
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("closing store")
		return store.Close()
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("stopping community registry")
		registry.Stop()
		return nil
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("closing event hub")
		hub.Close()
		return nil
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return httpServer.Shutdown(ctx)
	})

	if *configFile != "" {
		if err := watchLogLevel(*configFile, log, shutdownHandler); err != nil {
			log.Warn("config reload watcher unavailable", "error", err)
		}
	}

	serve := httpServer.ListenAndServe
	if cfg.Server.HTTP.TLSCertFile != "" && cfg.Server.HTTP.TLSKeyFile != "" {
		certWatcher, err := tlsroots.NewWatcher(cfg.Server.HTTP.TLSCertFile, cfg.Server.HTTP.TLSKeyFile,
			tlsroots.WithLogger(slogLogger))
		if err != nil {
			store.Close()
			return fmt.Errorf("load TLS certificate: %w", err)
		}
		certWatcher.StartAsync()
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			certWatcher.Stop()
			return nil
		})
		serve = func() error {
			return httpServer.ListenAndServeTLSDynamic(certWatcher.GetCertificate)
		}
	}

	go func() {
		log.Info("HTTP server listening", "addr", cfg.Server.HTTP.Addr)
		if err := serve(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// loadConfig loads configuration from file and environment.
func loadConfig(configFile string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}

	loader := confloader.NewLoader(opts...)
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// initLogger initializes the structured logger.
// Returns both the logger interface and a *slog.Logger for components
// that take one directly.
func initLogger(cfg *config.ServerConfig) (logger.Logger, *slog.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.SetDefault(log)

	return log, logger.NewSlog(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	}), nil
}

// watchLogLevel reloads the log level when the config file changes.
// Only the level is applied live; other settings need a restart.
func watchLogLevel(configFile string, log logger.Logger, sh *shutdown.Handler) error {
	watcher, err := confloader.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Watch(configFile); err != nil {
		watcher.Stop()
		return err
	}

	watcher.OnChange(func(path string) {
		cfg, err := loadConfig(configFile)
		if err != nil {
			log.Warn("config reload failed", "path", path, "error", err)
			return
		}
		logger.SetLevel(cfg.Log.Level)
		log.Info("log level reloaded", "level", cfg.Log.Level)
	})

	go watcher.Start()
	sh.OnShutdown(func(ctx context.Context) error {
		watcher.Stop()
		return nil
	})
	return nil
}

// initStorage opens the configured storage backend.
func initStorage(cfg *config.ServerConfig, log *slog.Logger) (storage.Store, error) {
	if cfg.Storage.Backend == "memory" {
		log.Warn("using in-memory storage, data is lost on restart")
		return memory.NewStore(), nil
	}

	storeCfg := storage.DefaultStoreConfig(cfg.Storage.DataDir)
	if cfg.Storage.GCInterval > 0 {
		storeCfg.Badger.GCInterval = cfg.Storage.GCInterval.String()
	}
	storeCfg.Badger.SyncWrites = cfg.Storage.SyncWrites
	return storage.NewBadgerStore(storeCfg, log)
}

// vaultConfig maps the security section onto the vault config.
func vaultConfig(cfg *config.ServerConfig) secrets.Config {
	vc := secrets.Config{Algorithm: cfg.Security.VaultAlgorithm}
	if cfg.Security.VaultKey != "" {
		vc.Key = []byte(cfg.Security.VaultKey)
	} else {
		vc.Passphrase = []byte(cfg.Security.VaultPassphrase)
	}
	return vc
}
