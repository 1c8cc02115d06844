package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/intake-gateway/internal/broker"
	"github.com/akylbek/payment-system/intake-gateway/internal/config"
	"github.com/akylbek/payment-system/intake-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/intake-gateway/internal/pool"
	"github.com/akylbek/payment-system/intake-gateway/internal/repository"
	"github.com/akylbek/payment-system/intake-gateway/internal/telemetry"
)

// deps owns every external connection a process opens.
type deps struct {
	redisClient *redis.Client
	redisPool   *pool.Pool[*redis.Conn]
	db          *sql.DB
	sqlPool     *pool.Pool[*sql.Conn]

	store  interfaces.PaymentStore
	broker interfaces.Broker
}

func newDeps(ctx context.Context, cfg *config.Config, poolSize int) (*deps, error) {
	d := &deps{}

	if cfg.StoreDriver == "redis" || cfg.BrokerDriver == string(broker.DriverRedis) {
		// Connect to Redis. The client pool also has to cover the
		// subscriber connection.
		d.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			PoolSize: poolSize + 2,
		})

		p, err := repository.NewRedisConnPool(ctx, d.redisClient, poolSize)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("redis pool: %w", err)
		}
		d.redisPool = p
		telemetry.RegisterPoolGauge("redis", p.InUse)
	}

	switch cfg.StoreDriver {
	case "postgres":
		// Connect to PostgreSQL
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(poolSize)
		d.db = db

		p, err := repository.NewSQLConnPool(ctx, db, poolSize)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("database pool: %w", err)
		}
		d.sqlPool = p
		telemetry.RegisterPoolGauge("postgres", p.InUse)

		store := repository.NewPostgresPaymentStore(p)
		if err := store.InitDB(ctx); err != nil {
			d.Close()
			return nil, fmt.Errorf("initialize database: %w", err)
		}
		d.store = store
	default:
		d.store = repository.NewRedisPaymentStore(d.redisPool)
	}

	b, err := broker.New(broker.Driver(cfg.BrokerDriver), broker.Options{
		RedisClient:  d.redisClient,
		RedisPool:    d.redisPool,
		NatsURL:      cfg.NatsURL,
		KafkaBrokers: cfg.KafkaBrokers,
	})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("broker: %w", err)
	}
	d.broker = b

	telemetry.Logger.Info("Dependencies ready",
		zap.String("store", cfg.StoreDriver),
		zap.String("broker", cfg.BrokerDriver),
		zap.Int("pool_size", poolSize),
	)
	return d, nil
}

func (d *deps) Close() {
	if d.broker != nil {
		if err := d.broker.Close(); err != nil {
			telemetry.Logger.Warn("Failed to close broker", zap.Error(err))
		}
	}
	if d.sqlPool != nil {
		d.sqlPool.Close()
	}
	if d.db != nil {
		d.db.Close()
	}
	if d.redisPool != nil {
		d.redisPool.Close()
	}
	if d.redisClient != nil {
		d.redisClient.Close()
	}
}
