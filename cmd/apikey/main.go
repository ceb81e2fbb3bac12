package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/sifan077/shortener/config"
	appmodel "github.com/sifan077/shortener/internal/app/model"
	apprepository "github.com/sifan077/shortener/internal/app/repository"
	appservice "github.com/sifan077/shortener/internal/app/service"
	"github.com/sifan077/shortener/internal/infra/logger"
	infraPostgres "github.com/sifan077/shortener/internal/infra/postgres"
	"go.uber.org/zap"
)

func main() {
	var (
		key     = flag.String("key", "", "API key to accept on protected routes")
		timeout = flag.Duration("timeout", 5*time.Second, "Database timeout")
	)
	flag.Parse()

	log := logger.MustInit(logger.FromEnv())
	defer func() { _ = logger.Sync() }()

	if *key == "" {
		log.Error("Missing -key")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()

	if cfg.Postgres.Migrate {
		if err := infraPostgres.Migrate(infraPostgres.ConnString(cfg.Postgres), log.Named("migrate")); err != nil {
			log.Fatal("Failed to run database migrations", zap.Error(err))
		}
	}

	gormDB, err := infraPostgres.NewGorm(pool, log)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}

	settings := apprepository.NewSettingsRepository(gormDB, *timeout)
	if err := settings.Upsert(ctx, &appmodel.Settings{
		ID:              appmodel.DefaultSettingsID,
		EncryptedAPIKey: appservice.HashAPIKey(*key),
	}); err != nil {
		log.Fatal("Failed to store API key", zap.Error(err))
	}

	log.Info("API key stored", zap.String("settings_id", appmodel.DefaultSettingsID))
}
