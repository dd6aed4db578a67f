package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/metrics"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/repositories/database"
)

//Keys names the two storage entries that hold the registry
type Keys struct {
	Sensors string
	Sites   string
}

//DefaultKeys returns the storage keys used by the service client
func DefaultKeys() Keys {
	return Keys{
		Sensors: "acrelink_service_sensors",
		Sites:   "acrelink_service_sites",
	}
}

//Store owns the sensor and site collections and writes them back to the
//Datastore after every mutation. All methods are safe for concurrent use.
type Store struct {
	mu sync.Mutex

	db         database.Datastore
	keys       Keys
	catalogue  []SiteSpec
	generator  Generator
	technician string
	now        func() time.Time
	log        logging.Logger
	metrics    *metrics.Metrics

	loaded  bool
	sensors []domain.SensorRecord
	sites   []domain.Site
}

//Option configures a Store
type Option func(*Store)

//WithKeys overrides the storage keys
func WithKeys(keys Keys) Option {
	return func(s *Store) { s.keys = keys }
}

//WithClock overrides the time source used when seeding
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

//WithMetrics makes the store report mutations to m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

//WithTechnician sets the name written into seeded history entries
func WithTechnician(name string) Option {
	return func(s *Store) { s.technician = name }
}

//NewStore creates a Store. Nothing is read until Load is called.
func NewStore(db database.Datastore, catalogue []SiteSpec, generator Generator, log logging.Logger, opts ...Option) *Store {
	s := &Store{
		db:         db,
		keys:       DefaultKeys(),
		catalogue:  catalogue,
		generator:  generator,
		technician: "Parker",
		now:        time.Now,
		log:        log,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

//Generator returns the mock data generator the store seeds from
func (s *Store) Generator() Generator {
	return s.generator
}

//Load reads the registry from storage, seeding and persisting a mock fleet if none exists.
//Subsequent calls return the in-memory collection.
func (s *Store) Load(ctx context.Context) ([]domain.SensorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	return cloneAll(s.sensors), nil
}

func (s *Store) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) error {
	dirty := false

	sites, found, err := readJSON[[]domain.Site](ctx, s.db, s.keys.Sites)
	if errors.Is(err, errUnreadable) {
		s.log.Warnf("Discarding unreadable site collection: %s", err.Error())
	} else if err != nil {
		return err
	}
	if !found {
		sites = s.catalogueSites()
		dirty = true
	}
	s.sites = withSentinel(sites)

	sensors, found, err := readJSON[[]domain.SensorRecord](ctx, s.db, s.keys.Sensors)
	if errors.Is(err, errUnreadable) {
		s.log.Warnf("Discarding unreadable sensor collection: %s", err.Error())
	} else if err != nil {
		return err
	}
	if !found {
		sensors = s.generator.Fleet(s.catalogue, s.technician, s.now())
		s.log.Infof("No sensors in storage, seeded %d mock sensors for %d sites", len(sensors), len(s.catalogue))
		dirty = true
	}
	s.sensors = sensors

	s.recount()

	if dirty {
		if err := s.persist(ctx); err != nil {
			return err
		}
	}

	s.loaded = true
	s.metrics.RegistrySize(len(s.sensors))
	return nil
}

//Reset drops the stored registry and seeds a fresh mock fleet
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []string{s.keys.Sensors, s.keys.Sites} {
		if err := s.db.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to reset registry: %w", err)
		}
	}

	s.loaded = false
	return s.load(ctx)
}

//ListAll returns a copy of every sensor record
func (s *Store) ListAll() []domain.SensorRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return cloneAll(s.sensors)
}

//Sites returns the site collection including the sentinel "no site" entry
func (s *Store) Sites() []domain.Site {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]domain.Site(nil), s.sites...)
}

//Site looks up a site by id
func (s *Store) Site(id string) (domain.Site, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, site := range s.sites {
		if site.ID == id {
			return site, true
		}
	}
	return domain.Site{}, false
}

//Get returns a copy of the sensor with the given id
func (s *Store) Get(id string) (domain.SensorRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(id); i >= 0 {
		return s.sensors[i].Clone(), true
	}
	return domain.SensorRecord{}, false
}

//Upsert validates and saves record. priorID is the id the record had when it
//was opened for editing, or empty for a new record. A record whose id is held
//by any record other than priorID is rejected as a duplicate. New records are
//inserted at the front, edited records are replaced in place.
func (s *Store) Upsert(ctx context.Context, record domain.SensorRecord, priorID string) (domain.SensorRecord, error) {
	record = record.Clone()
	record.ID = strings.TrimSpace(record.ID)

	if err := record.Validate(); err != nil {
		s.reject(err)
		return domain.SensorRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return domain.SensorRecord{}, err
	}

	if record.SiteID == "" || record.SiteID == domain.NoSiteID {
		return domain.SensorRecord{}, domain.ErrNoSiteSelected
	}
	if !s.knownSite(record.SiteID) {
		return domain.SensorRecord{}, fmt.Errorf("%w: %s", domain.ErrUnknownSite, record.SiteID)
	}

	if i := s.indexOf(record.ID); i >= 0 && record.ID != priorID {
		err := domain.NewValidationError(domain.ErrDuplicateID, "sensor "+record.ID+" already exists")
		s.reject(err)
		return domain.SensorRecord{}, err
	}

	previousSensors, previousSites := s.sensors, s.sites

	next := make([]domain.SensorRecord, 0, len(s.sensors)+1)
	inserted := true
	if i := s.indexOf(priorID); priorID != "" && i >= 0 {
		next = append(next, s.sensors...)
		next[i] = record
		inserted = false
	} else {
		next = append(next, record)
		next = append(next, s.sensors...)
	}

	s.sensors = next
	s.recount()

	if err := s.persist(ctx); err != nil {
		s.sensors, s.sites = previousSensors, previousSites
		return domain.SensorRecord{}, err
	}

	if inserted {
		s.log.Infof("Registered sensor %s on site %s", record.ID, record.SiteID)
	} else {
		s.log.Infof("Updated sensor %s on site %s", record.ID, record.SiteID)
	}
	s.metrics.SensorSaved(inserted)
	s.metrics.RegistrySize(len(s.sensors))

	return record.Clone(), nil
}

//Remove deletes the sensor with the given id. Unknown ids are ignored.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}

	i := s.indexOf(id)
	if i < 0 {
		return nil
	}

	previousSensors, previousSites := s.sensors, s.sites

	next := make([]domain.SensorRecord, 0, len(s.sensors)-1)
	next = append(next, s.sensors[:i]...)
	next = append(next, s.sensors[i+1:]...)

	s.sensors = next
	s.recount()

	if err := s.persist(ctx); err != nil {
		s.sensors, s.sites = previousSensors, previousSites
		return err
	}

	s.log.Infof("Removed sensor %s", id)
	s.metrics.SensorRemoved()
	s.metrics.RegistrySize(len(s.sensors))

	return nil
}

func (s *Store) reject(err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		s.log.Infof("Rejected sensor save: %s", verr.Error())
		s.metrics.Rejected(verr.Kind.Error())
	}
}

func (s *Store) indexOf(id string) int {
	for i := range s.sensors {
		if s.sensors[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) knownSite(id string) bool {
	for _, site := range s.sites {
		if site.ID == id {
			return true
		}
	}
	return false
}

//recount rebuilds the site slice so that earlier snapshots stay untouched
func (s *Store) recount() {
	counts := map[string]int{}
	for _, sensor := range s.sensors {
		counts[sensor.SiteID]++
	}

	sites := make([]domain.Site, len(s.sites))
	for i, site := range s.sites {
		site.PlannedCount = counts[site.ID]
		sites[i] = site
	}
	s.sites = sites
}

//persist writes both collections together so a reload never sees one without the other
func (s *Store) persist(ctx context.Context) error {
	sensors, err := json.Marshal(s.sensors)
	if err != nil {
		return fmt.Errorf("failed to encode sensors: %w", err)
	}

	sites, err := json.Marshal(s.sites)
	if err != nil {
		return fmt.Errorf("failed to encode sites: %w", err)
	}

	entries := map[string][]byte{
		s.keys.Sensors: sensors,
		s.keys.Sites:   sites,
	}

	if err = s.db.SetAll(ctx, entries); err != nil {
		s.log.Errorf("Failed to persist registry: %s", err.Error())
		return err
	}

	return nil
}

func (s *Store) catalogueSites() []domain.Site {
	sites := []domain.Site{}
	for _, spec := range s.catalogue {
		sites = append(sites, domain.Site{ID: spec.ID, Name: spec.Name, Info: spec.Info})
	}
	return sites
}

func withSentinel(sites []domain.Site) []domain.Site {
	for _, site := range sites {
		if site.ID == domain.NoSiteID {
			return sites
		}
	}
	return append([]domain.Site{{ID: domain.NoSiteID, Name: "Select a site"}}, sites...)
}

var errUnreadable = errors.New("failed to decode")

func readJSON[T any](ctx context.Context, db database.Datastore, key string) (T, bool, error) {
	var value T

	raw, found, err := db.Get(ctx, key)
	if err != nil || !found {
		return value, false, err
	}

	if err = json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("%w %s: %s", errUnreadable, key, err.Error())
	}

	return value, true, nil
}

func cloneAll(sensors []domain.SensorRecord) []domain.SensorRecord {
	c := make([]domain.SensorRecord, len(sensors))
	for i := range sensors {
		c[i] = sensors[i].Clone()
	}
	return c
}
