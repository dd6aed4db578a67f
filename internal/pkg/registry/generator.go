package registry

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/domain"
)

//SiteSpec describes a known site and how many mock sensors to seed for it
type SiteSpec struct {
	ID        string
	Name      string
	Info      string
	SeedCount int
	Latitude  float64
	Longitude float64
}

//DefaultSites is the demo site catalogue used when nothing else is configured
func DefaultSites() []SiteSpec {
	return []SiteSpec{
		{ID: "demo-a", Name: "Demo Site A", Info: "Hay Farm", SeedCount: 10, Latitude: 36.12, Longitude: -115.17},
		{ID: "demo-b", Name: "Demo Site B", Info: "Orchard", SeedCount: 12, Latitude: 36.31, Longitude: -115.42},
		{ID: "demo-c", Name: "Demo Site C", Info: "Wheat Farm", SeedCount: 8, Latitude: 35.98, Longitude: -114.93},
	}
}

//MaxSeedCount bounds the per-site seed count. Each site owns a block of 100 identifiers.
const MaxSeedCount = 99

//Generator produces mock sensor data
type Generator interface {
	Fleet(sites []SiteSpec, technician string, now time.Time) []domain.SensorRecord
	Device(now time.Time) domain.DeviceTelemetry
}

//MockGenerator is a seedable Generator. It is safe for concurrent use.
type MockGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

//NewMockGenerator creates a generator. The same seed always yields the same data for the same clock.
func NewMockGenerator(seed int64) *MockGenerator {
	return &MockGenerator{rnd: rand.New(rand.NewSource(seed))}
}

var mockNotes = []string{
	"",
	"",
	"Near oak tree",
	"Intermittent connectivity",
	"North edge of pivot",
	"Marked with orange flag",
	"Replaced antenna",
}

//Fleet seeds SeedCount sensors per site. Site n (0-based) gets ids ACR-{n*100+1} onwards.
func (g *MockGenerator) Fleet(sites []SiteSpec, technician string, now time.Time) []domain.SensorRecord {
	g.mu.Lock()
	defer g.mu.Unlock()

	fleet := []domain.SensorRecord{}

	for n, site := range sites {
		count := site.SeedCount
		if count > MaxSeedCount {
			count = MaxSeedCount
		}

		for i := 1; i <= count; i++ {
			installed := now.AddDate(0, 0, -g.rnd.Intn(180))
			sensor := domain.SensorRecord{
				ID:          fmt.Sprintf("ACR-%04d", n*100+i),
				SiteID:      site.ID,
				Depth:       domain.Depths[g.rnd.Intn(len(domain.Depths))],
				InstallDate: installed.Format(domain.InstallDateLayout),
				Status:      g.status(),
				Notes:       mockNotes[g.rnd.Intn(len(mockNotes))],
				History:     []string{},
				Device:      g.device(now),
			}

			if g.rnd.Float64() < 0.7 {
				sensor.GPS = &domain.GPSFix{
					Latitude:   round(site.Latitude+(g.rnd.Float64()-0.5)*0.02, 6),
					Longitude:  round(site.Longitude+(g.rnd.Float64()-0.5)*0.02, 6),
					AccuracyFt: 5 + g.rnd.Intn(26),
					CapturedAt: installed.Add(time.Duration(8+g.rnd.Intn(9)) * time.Hour).UTC(),
				}
			}

			if sensor.Status != domain.StatusPlanned {
				sensor.History = append(sensor.History, fmt.Sprintf("%s – Installed at %s, %s",
					sensor.InstallDate, strings.ToLower(string(sensor.Depth)), technician))
			}

			fleet = append(fleet, sensor)
		}
	}

	return fleet
}

//Device returns a fresh mock device snapshot
func (g *MockGenerator) Device(now time.Time) domain.DeviceTelemetry {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.device(now)
}

func (g *MockGenerator) device(now time.Time) domain.DeviceTelemetry {
	return domain.DeviceTelemetry{
		DevEUI:   fmt.Sprintf("%016X", g.rnd.Uint64()),
		Battery:  round(3.0+g.rnd.Float64()*0.8, 1),
		RF:       70 + g.rnd.Intn(30),
		LastSeen: now.Add(-time.Duration(g.rnd.Intn(24*60)) * time.Minute).UTC(),
	}
}

func (g *MockGenerator) status() domain.Status {
	switch p := g.rnd.Intn(10); {
	case p < 2:
		return domain.StatusPlanned
	case p < 8:
		return domain.StatusInstalled
	case p < 9:
		return domain.StatusNeedsService
	default:
		return domain.StatusOffline
	}
}

func round(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}
