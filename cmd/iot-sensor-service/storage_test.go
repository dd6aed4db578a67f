package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/config"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/logging"
)

func TestThatSQLiteStorageSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	log := logging.NewLogger()

	t.Setenv("SENSREG_STORAGE_SQLITE_PATH", filepath.Join(t.TempDir(), "sensors.db"))
	t.Setenv("SENSREG_REGISTRY_SEED", "9")

	cfg, err := config.Load(config.New(), "")
	require.NoError(t, err)

	db, err := openDatastore(ctx, cfg, log)
	require.NoError(t, err)

	first, err := newStore(db, cfg, log).Load(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 30)

	require.NoError(t, db.Close())

	db, err = openDatastore(ctx, cfg, log)
	require.NoError(t, err)
	defer closeDatastore(db, log)

	second, err := newStore(db, cfg, log).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, db.Close())
	_, _, err = db.Get(ctx, "acrelink_service_sensors")
	assert.Error(t, err, "a closed sqlite pool should refuse reads")
}

func TestThatMemoryStorageSeedsTheCatalogue(t *testing.T) {
	ctx := context.Background()
	log := logging.NewLogger()

	t.Setenv("SENSREG_STORAGE_DRIVER", "memory")

	cfg, err := config.Load(config.New(), "")
	require.NoError(t, err)

	db, err := openDatastore(ctx, cfg, log)
	require.NoError(t, err)
	defer closeDatastore(db, log)

	store := newStore(db, cfg, log)
	_, err = store.Load(ctx)
	require.NoError(t, err)

	site, ok := store.Site("demo-b")
	require.True(t, ok)
	assert.Equal(t, 12, site.PlannedCount)
}

func TestThatUnreachableRedisFails(t *testing.T) {
	t.Setenv("SENSREG_STORAGE_DRIVER", "redis")
	t.Setenv("SENSREG_STORAGE_REDIS_ADDR", "127.0.0.1:1")

	cfg, err := config.Load(config.New(), "")
	require.NoError(t, err)

	_, err = openDatastore(context.Background(), cfg, logging.NewLogger())
	assert.Error(t, err)
}
