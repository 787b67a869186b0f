package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ois/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/ois/internal/health"
	"github.com/vladislavdragonenkov/ois/internal/storage/memory"
	"github.com/vladislavdragonenkov/ois/internal/storage/mongodb"
	"github.com/vladislavdragonenkov/ois/internal/storage/postgres"
)

// runtimeDependencies — хранилище, выбранное конфигурацией, и его обвязка.
type runtimeDependencies struct {
	repo           domain.OrderRepository
	storageChecker healthcheck.Checker
	closeFn        func() error
}

func (d runtimeDependencies) close() error {
	if d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		repo := memory.NewOrderRepository()
		logger.Info("using in-memory order storage")
		return runtimeDependencies{
			repo:           repo,
			storageChecker: healthcheck.NewPingChecker("storage", repo.Ping),
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return runtimeDependencies{}, errors.New("postgres dsn is required for postgres storage driver")
		}
		var store *postgres.Store
		err := withRetry(ctx, storageConnectRetry, logger, "open postgres", func(ctx context.Context) error {
			var openErr error
			store, openErr = postgres.Open(ctx, cfg.PostgresDSN)
			return openErr
		})
		if err != nil {
			return runtimeDependencies{}, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return runtimeDependencies{}, fmt.Errorf("ensure postgres schema: %w", err)
			}
		}
		logger.WithField("auto_migrate", cfg.PostgresAutoMigrate).Info("using postgres order storage")
		return runtimeDependencies{
			repo:           postgres.NewOrderRepository(store),
			storageChecker: healthcheck.NewPingChecker("storage", store.Ping),
			closeFn:        store.Close,
		}, nil

	case StorageDriverMongo:
		if cfg.MongoURI == "" {
			return runtimeDependencies{}, errors.New("mongo uri is required for mongo storage driver")
		}
		var store *mongodb.Store
		err := withRetry(ctx, storageConnectRetry, logger, "open mongo", func(ctx context.Context) error {
			var openErr error
			store, openErr = mongodb.Open(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
			return openErr
		})
		if err != nil {
			return runtimeDependencies{}, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close(context.Background())
			return runtimeDependencies{}, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		logger.WithFields(log.Fields{
			"database":   cfg.MongoDatabase,
			"collection": cfg.MongoCollection,
		}).Info("using mongo order storage")
		return runtimeDependencies{
			repo:           mongodb.NewOrderRepository(store),
			storageChecker: healthcheck.NewPingChecker("storage", store.Ping),
			closeFn: func() error {
				return store.Close(context.Background())
			},
		}, nil

	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
