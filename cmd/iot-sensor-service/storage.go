package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/config"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/repositories/cache"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/repositories/database"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/registry"
)

//openDatastore connects the configured storage driver. Callers release it with Close.
func openDatastore(ctx context.Context, cfg config.Config, log logging.Logger) (database.Datastore, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		return database.NewDatabaseConnection(database.NewSQLiteConnector(cfg.Storage.SQLite.Path), log)

	case config.DriverPostgres:
		return database.NewDatabaseConnection(database.NewPostgreSQLConnector(ctx, cfg.PostgresConfig(), log), log)

	case config.DriverRedis:
		store := cache.NewRedisStore(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		}, "")

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := store.Ping(pingCtx); err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Storage.Redis.Addr, err)
		}

		return store, nil

	case config.DriverMemory:
		log.Warnf("Using in-memory storage, sensors are lost on exit")
		return cache.NewMemoryStore(), nil
	}

	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

//closeDatastore releases db and logs a failure to do so
func closeDatastore(db database.Datastore, log logging.Logger) {
	if err := db.Close(); err != nil {
		log.Errorf("Failed to close storage: %s", err.Error())
	}
}

//newStore builds the registry on top of db. A zero seed draws mock data from the clock.
func newStore(db database.Datastore, cfg config.Config, log logging.Logger, opts ...registry.Option) *registry.Store {
	seed := cfg.Registry.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	opts = append([]registry.Option{
		registry.WithKeys(cfg.Keys()),
		registry.WithTechnician(cfg.Technician),
	}, opts...)

	return registry.NewStore(db, cfg.Catalogue(), registry.NewMockGenerator(seed), log, opts...)
}
