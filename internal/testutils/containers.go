//go:build integration

// Package testutils starts the PostgreSQL and Redis containers used by the
// integration tests. Containers are removed when the test finishes.
package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/shortener/config"
	infraPostgres "github.com/sifan077/shortener/internal/infra/postgres"
	infraRedis "github.com/sifan077/shortener/internal/infra/redis"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// Postgres is a migrated database reachable through the service's own pool.
type Postgres struct {
	Pool *pgxpool.Pool
	DB   *gorm.DB
	DSN  string
}

// StartPostgres runs postgres:16-alpine, applies the embedded migrations and
// opens the pool plus GORM on top of it.
func StartPostgres(t testing.TB) *Postgres {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("shortener"),
		tcpostgres.WithUsername("shortener"),
		tcpostgres.WithPassword("shortener"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	tc.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	log := zaptest.NewLogger(t)
	if err := infraPostgres.Migrate(dsn, log); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	pool, err := infraPostgres.NewPool(ctx, config.PostgresConfig{URL: dsn})
	if err != nil {
		t.Fatalf("failed to open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	db, err := infraPostgres.NewGorm(pool, log)
	if err != nil {
		t.Fatalf("failed to open gorm: %v", err)
	}

	return &Postgres{Pool: pool, DB: db, DSN: dsn}
}

// Truncate empties every table between tests.
func (p *Postgres) Truncate(t testing.TB) {
	t.Helper()
	if _, err := p.Pool.Exec(context.Background(), "TRUNCATE links, link_statistics, settings"); err != nil {
		t.Fatalf("failed to truncate: %v", err)
	}
}

// StartRedis runs redis:7-alpine and returns a client built like the server's.
func StartRedis(t testing.TB) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	tc.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("failed to get redis port: %v", err)
	}

	rdb, err := infraRedis.NewClient(ctx, config.RedisConfig{Host: host, Port: port.Int()})
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	return rdb
}
