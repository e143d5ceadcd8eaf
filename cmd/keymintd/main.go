package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropDatabas3/keymint/internal/cache"
	"github.com/dropDatabas3/keymint/internal/config"
	"github.com/dropDatabas3/keymint/internal/domain/repository"
	httpserver "github.com/dropDatabas3/keymint/internal/http"
	"github.com/dropDatabas3/keymint/internal/keystore"
	"github.com/dropDatabas3/keymint/internal/metrics"
	"github.com/dropDatabas3/keymint/internal/observability/logger"
	"github.com/dropDatabas3/keymint/internal/registry"
	"github.com/dropDatabas3/keymint/internal/store"
)

func main() {
	var (
		flagConfig  = flag.String("config", "", "ruta a config.yaml (opcional; env pisa YAML)")
		flagEnvFile = flag.String("env-file", ".env", "ruta a .env")
	)
	flag.Parse()

	if *flagEnvFile != "" {
		_ = godotenv.Load(*flagEnvFile)
	}

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level})
	defer func() { _ = logger.Sync() }()
	lg := logger.Named("keymintd")

	ctx := context.Background()

	repo, closeStore, err := store.New(ctx, store.Config{
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
		Root:   cfg.Storage.FSRoot,
	})
	if err != nil {
		lg.Fatal("store init", logger.Err(err))
	}
	defer closeStore()

	cacheClient, err := cache.New(cache.Config{
		Driver:     cfg.Cache.Kind,
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: cfg.MemoryCacheTTL(),
	})
	if err != nil {
		lg.Fatal("cache init", logger.Err(err))
	}
	defer cacheClient.Close()

	var keyRegistry repository.ExternalKeyRegistry
	if cfg.Registry.BaseURL != "" {
		keyRegistry = registry.NewHTTP(cfg.Registry.BaseURL, cfg.Registry.Token)
	} else {
		// Sin registry configurado los namespaces asimétricos no resuelven;
		// los simétricos funcionan igual.
		keyRegistry = registry.NewMemory()
	}

	svc := keystore.New(repo, cacheClient, keyRegistry,
		keystore.WithRotationRetry(uint64(cfg.Rotation.MaxRetries), cfg.RotationRetryBase()),
		keystore.WithCacheTTL(cfg.RecordCacheTTL()),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		lg.Fatal("metrics init", logger.Err(err))
	}

	router := httpserver.NewRouter(
		httpserver.NewHandlers(svc),
		cfg.Server.CORSAllowedOrigins,
		prometheus.DefaultGatherer,
	)
	srv := httpserver.NewServer(cfg.Server.Addr, router)

	go func() {
		lg.Info("listening",
			logger.Component("http"),
			logger.Addr(cfg.Server.Addr))
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			lg.Fatal("server", logger.Err(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("shutdown", logger.Err(err))
	}
	lg.Info("stopped")
}
