package database

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/repositories/models"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

//Datastore is an interface that is used to inject the key-value storage into the registry to improve testability
type Datastore interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	//SetAll writes every entry or none of them
	SetAll(ctx context.Context, entries map[string][]byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type myDB struct {
	impl *gorm.DB
	log  logging.Logger
}

//PostgresConfig holds the connection parameters for a postgresql database
type PostgresConfig struct {
	Host     string
	User     string
	DBName   string
	Password string
	SSLMode  string
}

//ConnectorFunc is used to inject a database connection method into NewDatabaseConnection
type ConnectorFunc func() (*gorm.DB, error)

//NewPostgreSQLConnector opens a connection to a postgresql database, retrying until ctx is done
func NewPostgreSQLConnector(ctx context.Context, cfg PostgresConfig, log logging.Logger) ConnectorFunc {
	dbURI := fmt.Sprintf("host=%s user=%s dbname=%s sslmode=%s password=%s", cfg.Host, cfg.User, cfg.DBName, cfg.SSLMode, cfg.Password)

	return func() (*gorm.DB, error) {
		for {
			log.Infof("Connecting to database host %s ...", cfg.Host)
			db, err := gorm.Open(postgres.Open(dbURI), &gorm.Config{})
			if err == nil {
				return db, nil
			}

			log.Errorf("Failed to connect to database %s", err)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("giving up on database %s: %w", cfg.Host, ctx.Err())
			case <-time.After(3 * time.Second):
			}
		}
	}
}

//NewSQLiteConnector opens a connection to a local sqlite database. An empty path selects a shared in-memory database.
func NewSQLiteConnector(path string) ConnectorFunc {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:?cache=shared"
	}

	return func() (*gorm.DB, error) {
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
	}
}

//NewDatabaseConnection initializes a new connection to the database and wraps it in a Datastore
func NewDatabaseConnection(connect ConnectorFunc, log logging.Logger) (Datastore, error) {
	impl, err := connect()
	if err != nil {
		return nil, err
	}

	db := &myDB{
		impl: impl,
		log:  log,
	}

	if err = db.impl.AutoMigrate(&models.StorageEntry{}); err != nil {
		log.Errorf("Failed to migrate storage entries: %s", err.Error())
		return nil, err
	}

	return db, nil
}

//Get reads the value stored under key, reporting false when there is none
func (db *myDB) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry := models.StorageEntry{}

	result := db.impl.WithContext(ctx).Where("key = ?", key).Limit(1).Find(&entry)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, result.Error)
	}

	if result.RowsAffected == 0 {
		return nil, false, nil
	}

	return []byte(entry.Value), true, nil
}

//Set inserts or replaces the value stored under key
func (db *myDB) Set(ctx context.Context, key string, value []byte) error {
	if err := upsert(db.impl.WithContext(ctx), key, value); err != nil {
		return err
	}

	db.log.Debugf("Stored %d bytes under %s", len(value), key)
	return nil
}

//SetAll writes the entries in one transaction, in key order
func (db *myDB) SetAll(ctx context.Context, entries map[string][]byte) error {
	keys := slices.Sorted(maps.Keys(entries))

	err := db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, key := range keys {
			if err := upsert(tx, key, entries[key]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	db.log.Debugf("Stored %d keys in one transaction", len(keys))
	return nil
}

func upsert(tx *gorm.DB, key string, value []byte) error {
	entry := models.StorageEntry{
		Key:   key,
		Value: datatypes.JSON(value),
	}

	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry)

	if result.Error != nil {
		return fmt.Errorf("failed to write %s: %w", key, result.Error)
	}
	return nil
}

//Delete removes key. Missing keys are not an error.
func (db *myDB) Delete(ctx context.Context, key string) error {
	result := db.impl.WithContext(ctx).Unscoped().Where("key = ?", key).Delete(&models.StorageEntry{})
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to delete %s: %w", key, result.Error)
	}
	return nil
}

//Close releases the connection pool of the underlying database
func (db *myDB) Close() error {
	sqlDB, err := db.impl.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
