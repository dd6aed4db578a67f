package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/basket"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/editor"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/metrics"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/registry"
)

//Visit is the event produced when a technician commits the sensors picked on a site
type Visit struct {
	ID         uuid.UUID `json:"id"`
	SiteID     string    `json:"siteId"`
	SensorIDs  []string  `json:"sensorIds"`
	Remarks    string    `json:"remarks"`
	Technician string    `json:"technician"`
	RecordedAt time.Time `json:"recordedAt"`
}

//VisitRecorder receives committed visits
type VisitRecorder interface {
	RecordVisit(ctx context.Context, visit Visit) error
}

//Listing is the pick list shown for the selected site
type Listing struct {
	Site    domain.Site           `json:"site"`
	Query   string                `json:"query"`
	Sensors []domain.SensorRecord `json:"sensors"`
	//Selected holds the ids already picked, which are left out of Sensors
	Selected []string `json:"selected"`
}

//Workflow is one technician's service session: the selected site, the
//search text, the sensor editor and the selection basket.
type Workflow struct {
	mu sync.Mutex

	id         uuid.UUID
	technician string
	store      *registry.Store
	editor     *editor.Editor
	basket     *basket.Basket
	recorder   VisitRecorder
	now        func() time.Time
	log        logging.Logger
	metrics    *metrics.Metrics

	siteID   string
	query    string
	lastUsed time.Time
}

//Option configures a Workflow
type Option func(*Workflow)

//WithRecorder hands committed visits to r
func WithRecorder(r VisitRecorder) Option {
	return func(w *Workflow) { w.recorder = r }
}

//WithClock overrides the time source used for visits and idle tracking
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

//WithMetrics reports visits, rejections and GPS captures to m
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workflow) { w.metrics = m }
}

//New starts a session for technician with no site selected
func New(store *registry.Store, technician string, log logging.Logger, opts ...Option) *Workflow {
	w := &Workflow{
		id:         uuid.New(),
		technician: technician,
		store:      store,
		basket:     basket.New(),
		now:        time.Now,
		siteID:     domain.NoSiteID,
	}

	for _, opt := range opts {
		opt(w)
	}

	w.log = log.WithField("session", w.id.String())
	w.editor = editor.New(store, w.log, editor.WithClock(w.now), editor.WithMetrics(w.metrics))
	w.lastUsed = w.now()

	return w
}

//ID identifies the session
func (w *Workflow) ID() uuid.UUID {
	return w.id
}

//Editor gives access to the draft being edited
func (w *Workflow) Editor() *editor.Editor {
	return w.editor
}

func (w *Workflow) touch() {
	w.lastUsed = w.now()
}

//LastUsed returns when the session last handled an action
func (w *Workflow) LastUsed() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.lastUsed
}

//SelectSite switches the session to siteID. Picks and search text belong to
//one site visit and are dropped when the site changes.
func (w *Workflow) SelectSite(siteID string) error {
	if siteID != domain.NoSiteID {
		if _, ok := w.store.Site(siteID); !ok {
			return fmt.Errorf("%w: %s", domain.ErrUnknownSite, siteID)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	if siteID != w.siteID {
		w.basket = basket.New()
		w.query = ""
		w.siteID = siteID
	}

	return nil
}

//Search sets the free-text filter of the pick list
func (w *Workflow) Search(query string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	w.query = query
}

//Listing returns the visible sensors of the selected site that are not yet picked
func (w *Workflow) Listing() (Listing, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	site, err := w.selectedSite()
	if err != nil {
		return Listing{}, err
	}

	listing := Listing{
		Site:     site,
		Query:    w.query,
		Sensors:  []domain.SensorRecord{},
		Selected: w.basket.IDs(),
	}

	for sensor := range registry.Visible(w.store.ListAll(), w.siteID, w.query) {
		if !w.basket.Contains(sensor.ID) {
			listing.Sensors = append(listing.Sensors, sensor)
		}
	}

	return listing, nil
}

func (w *Workflow) selectedSite() (domain.Site, error) {
	if w.siteID == domain.NoSiteID {
		return domain.Site{}, domain.ErrNoSiteSelected
	}

	site, ok := w.store.Site(w.siteID)
	if !ok {
		return domain.Site{}, fmt.Errorf("%w: %s", domain.ErrUnknownSite, w.siteID)
	}
	return site, nil
}

//Pick adds a sensor of the selected site to the basket and clears the search text
func (w *Workflow) Pick(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	if _, err := w.selectedSite(); err != nil {
		return err
	}

	sensor, ok := w.store.Get(id)
	if !ok || sensor.SiteID != w.siteID {
		return fmt.Errorf("%w: %s", domain.ErrSensorNotFound, id)
	}

	w.basket.Add(id)
	w.query = ""

	return nil
}

//Unpick returns a sensor from the basket to the pick list
func (w *Workflow) Unpick(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	w.basket.Remove(id)
}

//Selected returns the picked sensor ids in pick order
func (w *Workflow) Selected() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.basket.IDs()
}

//SetRemarks replaces the remarks that go with the next visit
func (w *Workflow) SetRemarks(remarks string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	w.basket.SetRemarks(remarks)
}

//Remarks returns the remarks of the pending visit
func (w *Workflow) Remarks() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.basket.Remarks()
}

//CommitVisit hands the picked sensors and remarks to the recorder as one
//Visit and then empties the basket. Nothing is cleared if recording fails.
func (w *Workflow) CommitVisit(ctx context.Context) (Visit, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	if w.basket.Len() == 0 {
		_, err := w.basket.Commit(w.basket.Remarks())
		w.metrics.Rejected(domain.ErrEmptySelection.Error())
		w.log.Infof("Rejected empty selection on site %s", w.siteID)
		return Visit{}, err
	}

	visit := Visit{
		ID:         uuid.New(),
		SiteID:     w.siteID,
		SensorIDs:  w.basket.IDs(),
		Remarks:    w.basket.Remarks(),
		Technician: w.technician,
		RecordedAt: w.now().UTC(),
	}

	if w.recorder != nil {
		if err := w.recorder.RecordVisit(ctx, visit); err != nil {
			w.log.Errorf("Failed to record visit %s: %s", visit.ID, err.Error())
			return Visit{}, err
		}
	}

	if _, err := w.basket.Commit(visit.Remarks); err != nil {
		return Visit{}, err
	}

	w.metrics.VisitRecorded()
	w.log.Infof("Recorded visit %s on site %s with %d sensors", visit.ID, visit.SiteID, len(visit.SensorIDs))

	return visit, nil
}

//OpenNewSensor opens the editor on a new sensor for the selected site
func (w *Workflow) OpenNewSensor() error {
	w.mu.Lock()
	siteID := w.siteID
	w.touch()
	w.mu.Unlock()

	return w.editor.OpenNew(siteID)
}

//EditSensor opens the editor on a copy of a stored sensor
func (w *Workflow) EditSensor(id string) error {
	w.mu.Lock()
	siteID := w.siteID
	w.touch()
	w.mu.Unlock()

	if siteID == domain.NoSiteID {
		return domain.ErrNoSiteSelected
	}
	return w.editor.OpenEdit(id)
}

//CaptureGPS captures a position into the open draft. The session is not locked while waiting.
func (w *Workflow) CaptureGPS(ctx context.Context, geo editor.Geolocator) (domain.GPSFix, error) {
	w.mu.Lock()
	w.touch()
	w.mu.Unlock()

	return w.editor.CaptureGPS(ctx, geo)
}

//SaveSensor commits the draft under the site selected now
func (w *Workflow) SaveSensor(ctx context.Context) (domain.SensorRecord, error) {
	w.mu.Lock()
	siteID := w.siteID
	w.touch()
	w.mu.Unlock()

	if siteID == domain.NoSiteID {
		return domain.SensorRecord{}, domain.ErrNoSiteSelected
	}
	return w.editor.Save(ctx, siteID)
}

//CancelEdit discards the open draft
func (w *Workflow) CancelEdit() {
	w.mu.Lock()
	w.touch()
	w.mu.Unlock()

	w.editor.Cancel()
}

//RemoveSensor deletes a sensor from the registry and from this session's basket
func (w *Workflow) RemoveSensor(ctx context.Context, id string) error {
	if err := w.store.Remove(ctx, id); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.touch()

	w.basket.Remove(id)
	return nil
}

//Snapshot summarises the session state
type Snapshot struct {
	ID         uuid.UUID            `json:"id"`
	Technician string               `json:"technician"`
	SiteID     string               `json:"siteId"`
	Query      string               `json:"query"`
	Selected   []string             `json:"selected"`
	Remarks    string               `json:"remarks"`
	Editor     string               `json:"editor"`
	Draft      *domain.SensorRecord `json:"draft,omitempty"`
}

//Snapshot returns a copy of the session state, including the open draft
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	s := Snapshot{
		ID:         w.id,
		Technician: w.technician,
		SiteID:     w.siteID,
		Query:      w.query,
		Selected:   w.basket.IDs(),
		Remarks:    w.basket.Remarks(),
	}
	w.mu.Unlock()

	s.Editor = w.editor.State().String()
	if draft, ok := w.editor.Draft(); ok {
		s.Draft = &draft
	}

	return s
}
