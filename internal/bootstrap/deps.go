package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/Domenick1991/charterbooking/config"
	"github.com/Domenick1991/charterbooking/internal/cache"
	"github.com/Domenick1991/charterbooking/internal/clock"
	"github.com/Domenick1991/charterbooking/internal/docstore"
	"github.com/Domenick1991/charterbooking/internal/repository"
	"github.com/Domenick1991/charterbooking/internal/service/lifecycle"
	"github.com/Domenick1991/charterbooking/internal/service/migration"
)

const migrationLockExpiry = 30 * time.Minute

type Store interface {
	docstore.Store
	Pinger
}

// OpenStore connects the configured document store. The returned func
// releases the connection.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return repository.NewMemoryDocumentStore(), func() {}, nil

	case config.DriverMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		}
		return repository.NewMongoDocumentStore(client, cfg.Mongo.Database), closeFn, nil

	default:
		pool, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		st := repository.NewPGDocumentStore(pool)
		if err := st.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return st, pool.Close, nil
	}
}

// OpenRedis returns nil when no redis address is configured.
func OpenRedis(cfg *config.Config) *cache.RedisCache {
	if !cfg.Redis.Enabled() {
		return nil
	}
	return cache.NewRedisCache(cfg.Redis, cfg.Migration.ReportCacheTTL())
}

// NewLifecycle builds the coordinator. redisCache and notifier are optional.
func NewLifecycle(cfg *config.Config, store docstore.Store, redisCache *cache.RedisCache, notifier lifecycle.Notifier, log *zap.Logger) (*lifecycle.Service, error) {
	rate, err := decimal.NewFromString(cfg.Lifecycle.CommissionRate)
	if err != nil {
		return nil, fmt.Errorf("parse commission rate: %w", err)
	}

	opts := []lifecycle.Option{
		lifecycle.WithLogger(log),
		lifecycle.WithRequestTTL(cfg.Lifecycle.RequestTTL()),
		lifecycle.WithLockTTL(cfg.Lifecycle.LockTTL()),
		lifecycle.WithCommissionRate(rate),
		lifecycle.WithCurrency(cfg.Lifecycle.Currency),
		lifecycle.WithAutoAcknowledge(cfg.Lifecycle.AutoAcknowledge),
	}
	if redisCache != nil {
		opts = append(opts, lifecycle.WithLocker(redisCache))
	}
	if notifier != nil {
		opts = append(opts, lifecycle.WithNotifier(notifier))
	}
	return lifecycle.NewService(store, nil, clock.Real{}, opts...), nil
}

// NewMigrationEngine builds the migration engine. Without redis the run
// mutex and the report cache are left out.
func NewMigrationEngine(cfg *config.Config, store docstore.Store, redisCache *cache.RedisCache, log *zap.Logger) (*migration.Engine, error) {
	rate, err := decimal.NewFromString(cfg.Lifecycle.CommissionRate)
	if err != nil {
		return nil, fmt.Errorf("parse commission rate: %w", err)
	}

	opts := []migration.Option{
		migration.WithLogger(log),
		migration.WithBatchSize(cfg.Migration.BatchSize),
		migration.WithCooldown(cfg.Migration.Cooldown()),
		migration.WithConcurrency(cfg.Migration.Concurrency),
		migration.WithCommissionRate(rate),
		migration.WithCurrency(cfg.Lifecycle.Currency),
		migration.WithRequestTTL(cfg.Lifecycle.RequestTTL()),
	}
	if redisCache != nil {
		opts = append(opts,
			migration.WithMutex(cache.NewMigrationMutex(redisCache.Client(), migrationLockExpiry)),
			migration.WithReportCache(redisCache),
		)
	}
	return migration.NewEngine(store, clock.Real{}, opts...), nil
}
