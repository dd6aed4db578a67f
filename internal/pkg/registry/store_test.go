package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThatLoadSeedsMockFleetWhenStorageIsEmpty(t *testing.T) {
	db := newMemoryDatastore()
	store := newStoreForTest(db)

	sensors, err := store.Load(context.Background())
	require.NoError(t, err)

	expected := 0
	for _, site := range DefaultSites() {
		expected += site.SeedCount
	}
	assert.Len(t, sensors, expected)

	demoA, ok := store.Site("demo-a")
	require.True(t, ok)
	assert.Equal(t, 10, demoA.PlannedCount)

	assert.Contains(t, db.entries, DefaultKeys().Sensors)
	assert.Contains(t, db.entries, DefaultKeys().Sites)
}

func TestThatLoadKeepsTheSentinelSite(t *testing.T) {
	store := newStoreForTest(newMemoryDatastore())
	_, err := store.Load(context.Background())
	require.NoError(t, err)

	sites := store.Sites()
	require.NotEmpty(t, sites)
	assert.Equal(t, domain.NoSiteID, sites[0].ID)
	assert.Equal(t, 0, sites[0].PlannedCount)
}

func TestThatLoadReadsPersistedRegistry(t *testing.T) {
	db := newMemoryDatastore()
	db.put(t, DefaultKeys().Sensors, []domain.SensorRecord{
		{ID: "ACR-0101", SiteID: "demo-b", Depth: domain.DepthDeep, Status: domain.StatusInstalled},
	})

	store := newStoreForTest(db)
	sensors, err := store.Load(context.Background())
	require.NoError(t, err)

	require.Len(t, sensors, 1)
	assert.Equal(t, "ACR-0101", sensors[0].ID)

	demoB, _ := store.Site("demo-b")
	assert.Equal(t, 1, demoB.PlannedCount)
}

func TestThatUnreadableStorageIsReseeded(t *testing.T) {
	db := newMemoryDatastore()
	db.entries[DefaultKeys().Sensors] = []byte("{not json")

	store := newStoreForTest(db)
	sensors, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, sensors, 30)
}

func TestThatStorageReadFailuresAreReturned(t *testing.T) {
	db := newMemoryDatastore()
	db.getErr = errors.New("connection refused")

	store := newStoreForTest(db)
	_, err := store.Load(context.Background())
	assert.ErrorContains(t, err, "connection refused")
	assert.Empty(t, db.entries)
}

func TestThatSeedingIsDeterministicForAGivenSeed(t *testing.T) {
	first, err := newStoreForTest(newMemoryDatastore()).Load(context.Background())
	require.NoError(t, err)
	second, err := newStoreForTest(newMemoryDatastore()).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestThatUpsertInsertsNewRecordAtFront(t *testing.T) {
	store := loadedStoreForTest(t)

	saved, err := store.Upsert(context.Background(), domain.SensorRecord{
		ID: "ACR-9001", SiteID: "demo-a", Depth: domain.DepthShallow, Status: domain.StatusPlanned,
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "ACR-9001", saved.ID)

	all := store.ListAll()
	assert.Equal(t, "ACR-9001", all[0].ID)
	assert.Len(t, all, 31)

	demoA, _ := store.Site("demo-a")
	assert.Equal(t, 11, demoA.PlannedCount)
}

func TestThatSavedIDIsPresentExactlyOnce(t *testing.T) {
	store := loadedStoreForTest(t)
	ctx := context.Background()

	record := domain.SensorRecord{ID: "ACR-0001", SiteID: "demo-a", Depth: domain.DepthMedium, Notes: "first"}
	for i := 0; i < 3; i++ {
		_, err := store.Upsert(ctx, record, "ACR-0001")
		require.NoError(t, err)
	}

	_, err := store.Upsert(ctx, domain.SensorRecord{ID: "ACR-7777", SiteID: "demo-b", Depth: domain.DepthDeep}, "")
	require.NoError(t, err)

	for _, id := range []string{"ACR-0001", "ACR-7777"} {
		assert.Equal(t, 1, countID(store.ListAll(), id), id)
	}
}

func TestThatUpsertRejectsDuplicateID(t *testing.T) {
	store := loadedStoreForTest(t)
	original, ok := store.Get("ACR-0001")
	require.True(t, ok)

	_, err := store.Upsert(context.Background(), domain.SensorRecord{
		ID: "ACR-0001", SiteID: "demo-a", Depth: domain.DepthDeep, Notes: "imposter",
	}, "")

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, domain.ErrDuplicateID)

	current, _ := store.Get("ACR-0001")
	assert.Equal(t, original, current)
	assert.Len(t, store.ListAll(), 30)
}

func TestThatRenamingOntoAnotherRecordIsRejected(t *testing.T) {
	store := loadedStoreForTest(t)

	record, _ := store.Get("ACR-0001")
	record.ID = "ACR-0002"

	_, err := store.Upsert(context.Background(), record, "ACR-0001")
	assert.ErrorIs(t, err, domain.ErrDuplicateID)
}

func TestThatRenamingReplacesTheRecordInPlace(t *testing.T) {
	store := loadedStoreForTest(t)
	ctx := context.Background()

	before := store.ListAll()
	position := indexOfID(before, "ACR-0003")

	record, _ := store.Get("ACR-0003")
	record.ID = "ACR-0003B"

	_, err := store.Upsert(ctx, record, "ACR-0003")
	require.NoError(t, err)

	after := store.ListAll()
	assert.Len(t, after, len(before))
	assert.Equal(t, "ACR-0003B", after[position].ID)
	assert.Equal(t, 0, countID(after, "ACR-0003"))
}

func TestThatUpsertValidatesRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		record domain.SensorRecord
		kind   error
	}{
		{"empty id", domain.SensorRecord{ID: "", SiteID: "demo-a", Depth: domain.DepthShallow}, domain.ErrEmptyID},
		{"whitespace id", domain.SensorRecord{ID: "  \t ", SiteID: "demo-a", Depth: domain.DepthShallow}, domain.ErrEmptyID},
		{"missing depth", domain.SensorRecord{ID: "ACR-5000", SiteID: "demo-a"}, domain.ErrMissingDepth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := loadedStoreForTest(t)

			_, err := store.Upsert(context.Background(), tt.record, "")
			assert.ErrorIs(t, err, tt.kind)
			assert.Len(t, store.ListAll(), 30)
		})
	}
}

func TestThatUpsertRequiresAKnownSite(t *testing.T) {
	store := loadedStoreForTest(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, domain.SensorRecord{ID: "ACR-5000", SiteID: domain.NoSiteID, Depth: domain.DepthDeep}, "")
	assert.ErrorIs(t, err, domain.ErrNoSiteSelected)

	_, err = store.Upsert(ctx, domain.SensorRecord{ID: "ACR-5000", SiteID: "demo-z", Depth: domain.DepthDeep}, "")
	assert.ErrorIs(t, err, domain.ErrUnknownSite)
}

func TestThatUpsertTrimsTheID(t *testing.T) {
	store := loadedStoreForTest(t)

	saved, err := store.Upsert(context.Background(), domain.SensorRecord{ID: " ACR-4242 ", SiteID: "demo-c", Depth: domain.DepthMedium}, "")
	require.NoError(t, err)
	assert.Equal(t, "ACR-4242", saved.ID)
}

func TestThatRemoveDecrementsPlannedCount(t *testing.T) {
	store := loadedStoreForTest(t)
	ctx := context.Background()

	require.NoError(t, store.Remove(ctx, "ACR-0001"))

	_, found := store.Get("ACR-0001")
	assert.False(t, found)

	demoA, _ := store.Site("demo-a")
	assert.Equal(t, 9, demoA.PlannedCount)

	require.NoError(t, store.Remove(ctx, "ACR-0001"))
	assert.Len(t, store.ListAll(), 29)
}

func TestThatMutationsSurviveAReload(t *testing.T) {
	db := newMemoryDatastore()
	store := newStoreForTest(db)
	ctx := context.Background()

	_, err := store.Load(ctx)
	require.NoError(t, err)
	_, err = store.Upsert(ctx, domain.SensorRecord{ID: "ACR-8000", SiteID: "demo-b", Depth: domain.DepthDeep}, "")
	require.NoError(t, err)
	require.NoError(t, store.Remove(ctx, "ACR-0101"))

	reloaded := NewStore(db, DefaultSites(), NewMockGenerator(99), logging.NewLogger())
	sensors, err := reloaded.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, store.ListAll(), sensors)
	assert.Equal(t, store.Sites(), reloaded.Sites())
}

func TestThatFailedPersistLeavesStateUnchanged(t *testing.T) {
	db := newMemoryDatastore()
	store := newStoreForTest(db)
	ctx := context.Background()
	_, err := store.Load(ctx)
	require.NoError(t, err)

	before := store.ListAll()
	db.setErr = errors.New("disk full")

	_, err = store.Upsert(ctx, domain.SensorRecord{ID: "ACR-8000", SiteID: "demo-b", Depth: domain.DepthDeep}, "")
	assert.ErrorContains(t, err, "disk full")
	assert.ErrorContains(t, store.Remove(ctx, "ACR-0001"), "disk full")

	assert.Equal(t, before, store.ListAll())
	demoA, _ := store.Site("demo-a")
	assert.Equal(t, 10, demoA.PlannedCount)
}

func TestThatRejectedSaveIsNotRestoredOnReload(t *testing.T) {
	db := newMemoryDatastore()
	store := newStoreForTest(db)
	ctx := context.Background()
	_, err := store.Load(ctx)
	require.NoError(t, err)

	db.failKey = DefaultKeys().Sites

	_, err = store.Upsert(ctx, domain.SensorRecord{ID: "ACR-9999", SiteID: "demo-b", Depth: domain.DepthDeep}, "")
	require.ErrorContains(t, err, "acrelink_service_sites")
	assert.ErrorContains(t, store.Remove(ctx, "ACR-0001"), "acrelink_service_sites")

	_, found := store.Get("ACR-9999")
	assert.False(t, found)

	db.failKey = ""
	reloaded := NewStore(db, DefaultSites(), NewMockGenerator(99), logging.NewLogger())
	sensors, err := reloaded.Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, countID(sensors, "ACR-9999"))
	assert.Equal(t, 1, countID(sensors, "ACR-0001"))
	assert.Equal(t, store.ListAll(), sensors)
}

func TestThatResetReseedsTheRegistry(t *testing.T) {
	store := loadedStoreForTest(t)
	ctx := context.Background()

	require.NoError(t, store.Remove(ctx, "ACR-0001"))
	require.NoError(t, store.Reset(ctx))

	assert.Len(t, store.ListAll(), 30)
}

func TestThatListAllReturnsCopies(t *testing.T) {
	store := loadedStoreForTest(t)

	all := store.ListAll()
	all[0].Notes = "mutated"
	all[0].History = append(all[0].History, "mutated")

	again := store.ListAll()
	assert.NotEqual(t, "mutated", again[0].Notes)
	assert.NotContains(t, again[0].History, "mutated")
}

func newStoreForTest(db *memoryDatastore) *Store {
	clock := func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }
	return NewStore(db, DefaultSites(), NewMockGenerator(42), logging.NewLogger(), WithClock(clock))
}

func loadedStoreForTest(t *testing.T) *Store {
	store := newStoreForTest(newMemoryDatastore())
	_, err := store.Load(context.Background())
	require.NoError(t, err)
	return store
}

func countID(sensors []domain.SensorRecord, id string) int {
	count := 0
	for _, s := range sensors {
		if s.ID == id {
			count++
		}
	}
	return count
}

func indexOfID(sensors []domain.SensorRecord, id string) int {
	for i, s := range sensors {
		if s.ID == id {
			return i
		}
	}
	return -1
}

type memoryDatastore struct {
	mu      sync.Mutex
	entries map[string][]byte
	getErr  error
	setErr  error
	//failKey makes every write that touches this key fail
	failKey string
}

func newMemoryDatastore() *memoryDatastore {
	return &memoryDatastore{entries: map[string][]byte{}}
}

func (db *memoryDatastore) put(t *testing.T, key string, value interface{}) {
	b, err := json.Marshal(value)
	require.NoError(t, err)
	db.entries[key] = b
}

func (db *memoryDatastore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.getErr != nil {
		return nil, false, db.getErr
	}
	value, found := db.entries[key]
	return value, found, nil
}

func (db *memoryDatastore) Set(ctx context.Context, key string, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.setErr != nil {
		return db.setErr
	}
	if key == db.failKey {
		return fmt.Errorf("write to %s failed", key)
	}
	db.entries[key] = append([]byte(nil), value...)
	return nil
}

func (db *memoryDatastore) SetAll(ctx context.Context, entries map[string][]byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.setErr != nil {
		return db.setErr
	}
	if _, ok := entries[db.failKey]; ok {
		return fmt.Errorf("write to %s failed", db.failKey)
	}
	for key, value := range entries {
		db.entries[key] = append([]byte(nil), value...)
	}
	return nil
}

func (db *memoryDatastore) Close() error {
	return nil
}

func (db *memoryDatastore) Delete(ctx context.Context, key string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	delete(db.entries, key)
	return nil
}
