package editor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/metrics"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/registry"
)

//State is the lifecycle state of an Editor
type State int

const (
	Closed State = iota
	OpenNew
	OpenEdit
)

func (s State) String() string {
	switch s {
	case OpenNew:
		return "open-new"
	case OpenEdit:
		return "open-edit"
	default:
		return "closed"
	}
}

//Editor holds a draft sensor record apart from the store until it is saved or cancelled
type Editor struct {
	mu sync.Mutex

	store   *registry.Store
	now     func() time.Time
	log     logging.Logger
	metrics *metrics.Metrics

	state   State
	draft   domain.SensorRecord
	priorID string
	//generation changes on every open so late GPS results for an older draft are dropped
	generation uint64
}

//Option configures an Editor
type Option func(*Editor)

//WithClock overrides the time source used for install dates and GPS timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Editor) { e.now = now }
}

//WithMetrics makes the editor report GPS captures to m
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Editor) { e.metrics = m }
}

//New creates a closed Editor that commits into store
func New(store *registry.Store, log logging.Logger, opts ...Option) *Editor {
	e := &Editor{
		store: store,
		now:   time.Now,
		log:   log,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

//State returns the current lifecycle state
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

//Draft returns a copy of the draft, or false when the editor is closed
func (e *Editor) Draft() (domain.SensorRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Closed {
		return domain.SensorRecord{}, false
	}
	return e.draft.Clone(), true
}

//OpenNew starts a draft for a new sensor on siteID
func (e *Editor) OpenNew(siteID string) error {
	if siteID == "" || siteID == domain.NoSiteID {
		return domain.ErrNoSiteSelected
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Closed {
		return domain.ErrEditorOpen
	}

	now := e.now()
	e.open(OpenNew, domain.SensorRecord{
		ID:          "",
		SiteID:      siteID,
		Depth:       domain.DepthUnset,
		InstallDate: now.Format(domain.InstallDateLayout),
		GPS:         nil,
		Status:      domain.StatusPlanned,
		History:     []string{},
		Device:      e.store.Generator().Device(now),
	}, "")

	return nil
}

//OpenEdit starts a draft that is a deep copy of the stored sensor id
func (e *Editor) OpenEdit(id string) error {
	sensor, found := e.store.Get(id)
	if !found {
		return fmt.Errorf("%w: %s", domain.ErrSensorNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Closed {
		return domain.ErrEditorOpen
	}

	e.open(OpenEdit, sensor, sensor.ID)
	return nil
}

func (e *Editor) open(state State, draft domain.SensorRecord, priorID string) {
	e.state = state
	e.draft = draft
	e.priorID = priorID
	e.generation++
}

func (e *Editor) close() {
	e.state = Closed
	e.draft = domain.SensorRecord{}
	e.priorID = ""
	e.generation++
}

//Update applies fn to the draft. The device snapshot and history are read-only and are restored afterwards.
func (e *Editor) Update(fn func(draft *domain.SensorRecord)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Closed {
		return domain.ErrEditorClosed
	}

	device, history := e.draft.Device, e.draft.History
	fn(&e.draft)
	e.draft.Device, e.draft.History = device, history

	return nil
}

//Patch lists draft fields to change. Nil fields are left as they are.
type Patch struct {
	ID          *string        `json:"id"`
	Label       *string        `json:"label"`
	Notes       *string        `json:"notes"`
	Depth       *domain.Depth  `json:"depth"`
	Status      *domain.Status `json:"status"`
	InstallDate *string        `json:"installDate"`
}

func (p Patch) validate() error {
	if p.Depth != nil && *p.Depth != domain.DepthUnset && !p.Depth.Valid() {
		return fmt.Errorf("unknown depth %q", *p.Depth)
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("unknown status %q", *p.Status)
	}
	if p.InstallDate != nil {
		if _, err := time.Parse(domain.InstallDateLayout, *p.InstallDate); err != nil {
			return fmt.Errorf("install date must be formatted as YYYY-MM-DD: %w", err)
		}
	}
	return nil
}

//Apply checks every field of p and then changes them together. A rejected patch leaves the draft untouched.
func (e *Editor) Apply(p Patch) error {
	if err := p.validate(); err != nil {
		return err
	}

	return e.Update(func(d *domain.SensorRecord) {
		if p.ID != nil {
			d.ID = *p.ID
		}
		if p.Label != nil {
			d.Label = *p.Label
		}
		if p.Notes != nil {
			d.Notes = *p.Notes
		}
		if p.Depth != nil {
			d.Depth = *p.Depth
		}
		if p.Status != nil {
			d.Status = *p.Status
		}
		if p.InstallDate != nil {
			d.InstallDate = *p.InstallDate
		}
	})
}

//SetID changes the sensor id of the draft
func (e *Editor) SetID(id string) error {
	return e.Apply(Patch{ID: &id})
}

//SetLabel changes the optional display label of the draft
func (e *Editor) SetLabel(label string) error {
	return e.Apply(Patch{Label: &label})
}

//SetNotes replaces the free-text notes of the draft
func (e *Editor) SetNotes(notes string) error {
	return e.Apply(Patch{Notes: &notes})
}

//SetDepth sets the depth band. DepthUnset clears it.
func (e *Editor) SetDepth(depth domain.Depth) error {
	return e.Apply(Patch{Depth: &depth})
}

//SetStatus sets the deployment status of the draft
func (e *Editor) SetStatus(status domain.Status) error {
	return e.Apply(Patch{Status: &status})
}

//SetInstallDate sets the install date, formatted as YYYY-MM-DD
func (e *Editor) SetInstallDate(date string) error {
	return e.Apply(Patch{InstallDate: &date})
}

//ClearGPS drops any captured position from the draft
func (e *Editor) ClearGPS() error {
	return e.Update(func(d *domain.SensorRecord) { d.GPS = nil })
}

//CaptureGPS asks geo for the current position and merges it into the draft.
//The editor is not locked while waiting, so overlapping captures race and the
//last one to resolve wins. Failures leave the draft untouched.
func (e *Editor) CaptureGPS(ctx context.Context, geo Geolocator) (domain.GPSFix, error) {
	e.mu.Lock()
	if e.state == Closed {
		e.mu.Unlock()
		return domain.GPSFix{}, domain.ErrEditorClosed
	}
	generation := e.generation
	e.mu.Unlock()

	if geo == nil {
		err := domain.NewCapabilityError(domain.ErrGeolocationUnavailable, "geolocation is not supported")
		e.gpsFailed(err)
		return domain.GPSFix{}, err
	}

	opts := DefaultPositionOptions
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	pos, err := geo.CurrentPosition(ctx, opts)
	if err != nil {
		capErr := capabilityError(err)
		e.gpsFailed(capErr)
		return domain.GPSFix{}, capErr
	}

	fix := domain.GPSFix{
		Latitude:   pos.Latitude,
		Longitude:  pos.Longitude,
		AccuracyFt: MetersToFeet(pos.AccuracyMeters),
		CapturedAt: e.now().UTC(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Closed || e.generation != generation {
		return domain.GPSFix{}, domain.ErrEditorClosed
	}

	e.draft.GPS = &fix
	e.metrics.GPSCapture(true)
	e.log.Debugf("Captured GPS %.6f,%.6f (±%d ft)", fix.Latitude, fix.Longitude, fix.AccuracyFt)

	return fix, nil
}

func (e *Editor) gpsFailed(err *domain.CapabilityError) {
	e.metrics.GPSCapture(false)
	e.metrics.Rejected(err.Kind.Error())
	e.log.Warnf("GPS capture failed: %s", err.Error())
}

//Cancel discards the draft without touching the store
func (e *Editor) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.close()
}

//Save commits the draft to the store under siteID, the site selected at save
//time, and closes the editor. On failure the editor stays open with its draft.
func (e *Editor) Save(ctx context.Context, siteID string) (domain.SensorRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Closed {
		return domain.SensorRecord{}, domain.ErrEditorClosed
	}

	draft := e.draft.Clone()
	draft.SiteID = siteID

	saved, err := e.store.Upsert(ctx, draft, e.priorID)
	if err != nil {
		return domain.SensorRecord{}, err
	}

	e.close()
	return saved, nil
}
