package dashboard

import (
	"math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/infrastructure/metrics"
)

type ZoneStatus string

const (
	StatusDry     ZoneStatus = "Dry"
	StatusOptimal ZoneStatus = "Optimal"
	StatusWet     ZoneStatus = "Wet"
)

const (
	dryBelow     = 35
	wetAbove     = 60
	targetLevel  = 50
	historyLimit = 20
)

//StatusFor classifies a moisture reading
func StatusFor(moisture int) ZoneStatus {
	switch {
	case moisture < dryBelow:
		return StatusDry
	case moisture > wetAbove:
		return StatusWet
	default:
		return StatusOptimal
	}
}

//Zone is the latest telemetry of one irrigation zone
type Zone struct {
	Name           string     `json:"zone"`
	Moisture       int        `json:"moisture"`
	Temperature    int        `json:"temperature"`
	Status         ZoneStatus `json:"status"`
	LastIrrigation string     `json:"lastIrrigation"`
	BatteryVoltage float64    `json:"batteryVoltage"`
	SignalStrength int        `json:"signalStrength"`
}

//Key is the short zone name used in moisture history, e.g. North for North Field
func (z Zone) Key() string {
	return strings.TrimSuffix(z.Name, " Field")
}

//HistoryPoint is the moisture of every zone at one refresh
type HistoryPoint struct {
	Timestamp time.Time      `json:"timestamp"`
	Moisture  map[string]int `json:"moisture"`
}

func initialZones() []Zone {
	return []Zone{
		{Name: "North Field", Moisture: 28, Temperature: 19, Status: StatusDry, LastIrrigation: "36 hours ago", BatteryVoltage: 3.2, SignalStrength: 85},
		{Name: "South Field", Moisture: 42, Temperature: 21, Status: StatusOptimal, LastIrrigation: "18 hours ago", BatteryVoltage: 3.6, SignalStrength: 92},
		{Name: "East Field", Moisture: 65, Temperature: 23, Status: StatusWet, LastIrrigation: "12 hours ago", BatteryVoltage: 3.8, SignalStrength: 78},
		{Name: "West Field", Moisture: 51, Temperature: 20, Status: StatusOptimal, LastIrrigation: "24 hours ago", BatteryVoltage: 3.5, SignalStrength: 88},
	}
}

//Dashboard holds simulated zone telemetry and its moisture history. It is safe for concurrent use.
type Dashboard struct {
	mu          sync.RWMutex
	zones       []Zone
	history     []HistoryPoint
	lastUpdated time.Time

	rnd     *rand.Rand
	now     func() time.Time
	log     logging.Logger
	metrics *metrics.Metrics
}

type Option func(*Dashboard)

//WithSeed makes refreshes reproducible
func WithSeed(seed int64) Option {
	return func(d *Dashboard) { d.rnd = rand.New(rand.NewSource(seed)) }
}

//WithClock overrides the time source used for history timestamps
func WithClock(now func() time.Time) Option {
	return func(d *Dashboard) { d.now = now }
}

//WithMetrics counts refreshes in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dashboard) { d.metrics = m }
}

//New creates a dashboard showing the initial zone readings and an empty history
func New(log logging.Logger, opts ...Option) *Dashboard {
	d := &Dashboard{
		zones:   initialZones(),
		history: []HistoryPoint{},
		now:     time.Now,
		log:     log,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.rnd == nil {
		d.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	d.lastUpdated = d.now()

	return d
}

//Refresh draws new readings for every zone and appends them to the history
func (d *Dashboard) Refresh() []Zone {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	point := HistoryPoint{Timestamp: now, Moisture: map[string]int{}}

	zones := make([]Zone, len(d.zones))
	for i, zone := range d.zones {
		zone.Moisture = 20 + d.rnd.Intn(70)
		zone.Status = StatusFor(zone.Moisture)
		zone.Temperature = 18 + d.rnd.Intn(10)
		zone.BatteryVoltage = decimal.NewFromFloat(3.0 + d.rnd.Float64()*0.8).Round(1).InexactFloat64()
		zone.SignalStrength = 70 + d.rnd.Intn(30)

		zones[i] = zone
		point.Moisture[zone.Key()] = zone.Moisture
	}

	d.zones = zones
	d.lastUpdated = now

	if len(d.history) >= historyLimit {
		d.history = slices.Clone(d.history[len(d.history)-historyLimit+1:])
	}
	d.history = append(d.history, point)

	d.metrics.TelemetryRefreshed()
	d.log.Debugf("Refreshed %d zones, history holds %d points", len(zones), len(d.history))

	return slices.Clone(zones)
}

//Zones returns a copy of the current zone readings
func (d *Dashboard) Zones() []Zone {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return slices.Clone(d.zones)
}

//View is everything the dashboard shows at one moment
type View struct {
	LastUpdated time.Time      `json:"lastUpdated"`
	Zones       []Zone         `json:"zones"`
	Metrics     Metrics        `json:"metrics"`
	Instruction *Instruction   `json:"instruction,omitempty"`
	Week        []DayPoint     `json:"week"`
	History     []HistoryPoint `json:"history"`
}

//View takes a consistent snapshot of the dashboard
func (d *Dashboard) View() View {
	d.mu.RLock()
	zones := slices.Clone(d.zones)
	history := slices.Clone(d.history)
	updated := d.lastUpdated
	d.mu.RUnlock()

	v := View{
		LastUpdated: updated,
		Zones:       zones,
		Metrics:     Summarize(zones),
		Week:        WeekView(history, d.now()),
		History:     history,
	}

	if instruction, ok := IrrigationFor(zones); ok {
		v.Instruction = &instruction
	}

	return v
}
