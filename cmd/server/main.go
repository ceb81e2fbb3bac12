package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/shortener/config"
	apprepository "github.com/sifan077/shortener/internal/app/repository"
	appserver "github.com/sifan077/shortener/internal/app/server"
	appservice "github.com/sifan077/shortener/internal/app/service"
	"github.com/sifan077/shortener/internal/http/middleware"
	"github.com/sifan077/shortener/internal/infra/logger"
	infraNATS "github.com/sifan077/shortener/internal/infra/nats"
	infraPostgres "github.com/sifan077/shortener/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/shortener/internal/infra/prometheus"
	infraRedis "github.com/sifan077/shortener/internal/infra/redis"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.MustInit(logger.FromEnv())
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("addr", cfg.Server.Addr),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.Bool("nats_enabled", cfg.NATS.Enabled),
		zap.String("statistics_transport", cfg.Statistics.Transport),
	)

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	if cfg.Postgres.Migrate {
		if err := infraPostgres.Migrate(infraPostgres.ConnString(cfg.Postgres), log.Named("migrate")); err != nil {
			log.Fatal("Failed to run database migrations", zap.Error(err))
		}
	}

	gormDB, err := infraPostgres.NewGorm(pool, log)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}

	metrics := infraPrometheus.NewMetrics()

	linkRepo := apprepository.NewLinkRepository(gormDB, cfg.Postgres.QueryTimeout)
	statisticRepo := apprepository.NewStatisticRepository(gormDB, cfg.Postgres.QueryTimeout)
	settingsRepo := apprepository.NewSettingsRepository(gormDB, cfg.Postgres.QueryTimeout)

	var redisClient *redis.Client
	var rateLimit *middleware.RateLimitConfig
	if cfg.Redis.Enabled {
		redisClient, err = infraRedis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		log.Info("Connected to Redis successfully", zap.String("addr", infraRedis.Addr(cfg.Redis)))

		linkRepo = apprepository.NewCachedLinkRepository(linkRepo, redisClient, cfg.Redis.CacheTTL, cfg.Postgres.QueryTimeout, log.Named("cache"))

		if cfg.RateLimit.Enabled {
			rl := middleware.DefaultRateLimitConfig()
			rl.MaxRequests = cfg.RateLimit.MaxRequests
			rl.Window = cfg.RateLimit.Window
			rateLimit = &rl
		}
	}

	var recorder appservice.StatisticsRecorder
	var consumer *appservice.StatisticsConsumer
	if cfg.NATS.Enabled {
		var natsConn *nats.Conn
		var js nats.JetStreamContext
		natsConn, js, err = infraNATS.Connect(cfg.NATS)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer natsConn.Drain()

		if err := infraNATS.EnsureStatisticsStream(js); err != nil {
			log.Fatal("Failed to provision statistics stream", zap.Error(err))
		}
		log.Info("Connected to NATS successfully", zap.String("url", infraNATS.URL(cfg.NATS)))

		if cfg.Statistics.Transport == config.TransportNATS {
			recorder = appservice.NewStatisticsPublisher(js)
			consumer = appservice.NewStatisticsConsumer(js, log.Named("statistics"), statisticRepo)
			if err := consumer.Start(ctx); err != nil {
				log.Fatal("Failed to start statistics consumer", zap.Error(err))
			}
		}
	}

	linkService := appservice.NewLinkService(linkRepo, cfg.Link.CreateAttempts, log.Named("links"))
	statistics := appservice.NewStatisticsService(appservice.StatisticsDeps{
		Logger:   log.Named("statistics"),
		Recorder: recorder,
		Repo:     statisticRepo,
		Metrics:  metrics,
		Timeout:  cfg.Statistics.Timeout,
	})

	server := appserver.New(appserver.Dependencies{
		Logger:     log,
		Metrics:    metrics,
		Links:      linkService,
		Statistics: statistics,
		Auth:       appservice.NewAuthenticator(settingsRepo),
		Redis:      redisClient,
		RateLimit:  rateLimit,
	})

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.String("addr", cfg.Server.Addr))
		serveErr <- server.Listen(cfg.Server.Addr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error("Fiber server exited", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to shut down HTTP server", zap.Error(err))
	}
	if err := statistics.Wait(shutdownCtx); err != nil {
		log.Warn("Pending statistics were not flushed", zap.Error(err))
	}
	if consumer != nil {
		select {
		case <-consumer.Done():
		case <-shutdownCtx.Done():
			log.Warn("Statistics consumer did not stop in time")
		}
	}

	log.Info("Server stopped")
}
