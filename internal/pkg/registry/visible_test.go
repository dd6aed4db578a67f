package registry

import (
	"slices"
	"testing"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func visibleFixture() []domain.SensorRecord {
	return []domain.SensorRecord{
		{ID: "ACR-0010", SiteID: "demo-a", Label: "Pivot north"},
		{ID: "ACR-0002", SiteID: "demo-a"},
		{ID: "ACR-0101", SiteID: "demo-b", Label: "Oak tree"},
		{ID: "ACR-0001", SiteID: "demo-a", Label: "Gate"},
		{ID: "acr-0003", SiteID: "demo-a"},
	}
}

func ids(sensors []domain.SensorRecord) []string {
	out := []string{}
	for _, s := range sensors {
		out = append(out, s.ID)
	}
	return out
}

func TestVisibleFiltersBySiteAndSortsByID(t *testing.T) {
	got := slices.Collect(Visible(visibleFixture(), "demo-a", ""))

	assert.Equal(t, []string{"ACR-0001", "ACR-0002", "ACR-0010", "acr-0003"}, ids(got))
}

func TestVisibleWithEmptyQueryMatchesUnfilteredSite(t *testing.T) {
	fixture := visibleFixture()

	for _, site := range []string{"demo-a", "demo-b", "demo-c"} {
		unfiltered := []domain.SensorRecord{}
		for _, s := range fixture {
			if s.SiteID == site {
				unfiltered = append(unfiltered, s)
			}
		}

		assert.ElementsMatch(t, unfiltered, slices.Collect(Visible(fixture, site, "")), site)
	}
}

func TestVisibleMatchesIDAndLabelIgnoringCase(t *testing.T) {
	tests := []struct {
		query    string
		expected []string
	}{
		{"acr-000", []string{"ACR-0001", "ACR-0002", "acr-0003"}},
		{"PIVOT", []string{"ACR-0010"}},
		{"gate", []string{"ACR-0001"}},
		{"oak", []string{}},
		{"zzz", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := slices.Collect(Visible(visibleFixture(), "demo-a", tt.query))
			assert.Equal(t, tt.expected, ids(got))
		})
	}
}

func TestVisibleIsSortedForGeneratedFleets(t *testing.T) {
	fleet := NewMockGenerator(7).Fleet(DefaultSites(), "Parker", fixedNow)

	for _, site := range DefaultSites() {
		got := ids(slices.Collect(Visible(fleet, site.ID, "")))
		assert.True(t, slices.IsSorted(got), site.ID)
		assert.Len(t, got, site.SeedCount)
	}
}

func TestVisibleStopsWhenConsumerStops(t *testing.T) {
	count := 0
	for range Visible(visibleFixture(), "demo-a", "") {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}
