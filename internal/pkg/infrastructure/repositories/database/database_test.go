package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/repositories/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}

func TestThatGetReportsMissingKeyAsNotFound(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		value, found, err := db.Get(context.Background(), "nothing-here")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, value)
	}
}

func TestThatSetStoresValue(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()

		require.NoError(t, db.Set(ctx, "sensors", []byte(`[{"id":"ACR-0001"}]`)))

		value, found, err := db.Get(ctx, "sensors")
		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, `[{"id":"ACR-0001"}]`, string(value))
	}
}

func TestThatSetOverwritesExistingKey(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()

		require.NoError(t, db.Set(ctx, "sites", []byte(`[]`)))
		require.NoError(t, db.Set(ctx, "sites", []byte(`[{"id":"demo-a"}]`)))

		value, found, err := db.Get(ctx, "sites")
		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, `[{"id":"demo-a"}]`, string(value))
	}
}

func TestThatDeleteRemovesKey(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()

		require.NoError(t, db.Set(ctx, "sensors", []byte(`[]`)))
		require.NoError(t, db.Delete(ctx, "sensors"))
		require.NoError(t, db.Delete(ctx, "sensors"))

		_, found, err := db.Get(ctx, "sensors")
		require.NoError(t, err)
		assert.False(t, found)
	}
}

func TestThatSetAllStoresEveryEntry(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()

		require.NoError(t, db.SetAll(ctx, map[string][]byte{
			"sensors": []byte(`[{"id":"ACR-0001"}]`),
			"sites":   []byte(`[{"id":"demo-a"}]`),
		}))

		value, found, err := db.Get(ctx, "sensors")
		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, `[{"id":"ACR-0001"}]`, string(value))

		value, found, err = db.Get(ctx, "sites")
		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, `[{"id":"demo-a"}]`, string(value))
	}
}

func TestThatSetAllRollsBackWhenOneWriteFails(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		ctx := context.Background()
		require.NoError(t, db.Set(ctx, "sensors", []byte(`[]`)))

		impl := db.(*myDB).impl
		err := impl.Callback().Create().Before("gorm:create").Register("test:fail_sites", func(tx *gorm.DB) {
			if entry, ok := tx.Statement.Dest.(*models.StorageEntry); ok && entry.Key == "sites" {
				tx.AddError(errors.New("sites write failed"))
			}
		})
		require.NoError(t, err)

		err = db.SetAll(ctx, map[string][]byte{
			"sensors": []byte(`[{"id":"ACR-9999"}]`),
			"sites":   []byte(`[{"id":"demo-a"}]`),
		})
		require.ErrorContains(t, err, "sites write failed")

		value, found, err := db.Get(ctx, "sensors")
		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, `[]`, string(value))

		_, found, err = db.Get(ctx, "sites")
		require.NoError(t, err)
		assert.False(t, found)
	}
}

func TestThatCloseReleasesTheConnection(t *testing.T) {
	if db, ok := newDatabaseForTest(t); ok {
		require.NoError(t, db.Close())

		_, _, err := db.Get(context.Background(), "sensors")
		assert.Error(t, err)
	}
}

func newDatabaseForTest(t *testing.T) (Datastore, bool) {
	log := logging.NewLogger()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := NewDatabaseConnection(NewSQLiteConnector(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), log)

	if err != nil {
		t.Error(err.Error())
		return nil, false
	}

	return db, true
}
