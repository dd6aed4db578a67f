package registry

import (
	"regexp"
	"testing"
	"time"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func TestFleetSeedsConfiguredCountPerSite(t *testing.T) {
	fleet := NewMockGenerator(1).Fleet(DefaultSites(), "Parker", fixedNow)

	perSite := map[string]int{}
	seen := map[string]bool{}
	for _, sensor := range fleet {
		perSite[sensor.SiteID]++
		assert.False(t, seen[sensor.ID], "duplicate id %s", sensor.ID)
		seen[sensor.ID] = true
	}

	assert.Equal(t, map[string]int{"demo-a": 10, "demo-b": 12, "demo-c": 8}, perSite)
}

func TestFleetRecordsAreValidAndPlausible(t *testing.T) {
	devEUI := regexp.MustCompile(`^[0-9A-F]{16}$`)

	for _, sensor := range NewMockGenerator(3).Fleet(DefaultSites(), "Parker", fixedNow) {
		require.NoError(t, sensor.Validate())
		assert.True(t, sensor.Depth.Valid())
		assert.True(t, sensor.Status.Valid())

		installed, err := time.Parse(domain.InstallDateLayout, sensor.InstallDate)
		require.NoError(t, err)
		assert.False(t, installed.After(fixedNow))

		assert.Regexp(t, devEUI, sensor.Device.DevEUI)
		assert.GreaterOrEqual(t, sensor.Device.Battery, 3.0)
		assert.LessOrEqual(t, sensor.Device.Battery, 3.8)
		assert.GreaterOrEqual(t, sensor.Device.RF, 70)
		assert.Less(t, sensor.Device.RF, 100)

		if sensor.GPS != nil {
			assert.GreaterOrEqual(t, sensor.GPS.AccuracyFt, 5)
			assert.LessOrEqual(t, sensor.GPS.AccuracyFt, 30)
		}
	}
}

func TestFleetCapsSeedCount(t *testing.T) {
	sites := []SiteSpec{{ID: "big", SeedCount: 250}}

	fleet := NewMockGenerator(1).Fleet(sites, "Parker", fixedNow)
	assert.Len(t, fleet, MaxSeedCount)
}

func TestDeviceIsDeterministicForSeed(t *testing.T) {
	a := NewMockGenerator(11).Device(fixedNow)
	b := NewMockGenerator(11).Device(fixedNow)

	assert.Equal(t, a, b)
	assert.False(t, a.LastSeen.After(fixedNow))
}
