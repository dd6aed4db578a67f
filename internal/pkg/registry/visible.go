package registry

import (
	"iter"
	"slices"
	"strings"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/domain"
)

//Visible yields the sensors of siteID whose id or label contains query,
//ignoring case, in ascending id order. An empty query matches every sensor
//of the site. Filtering and sorting happen when the sequence is ranged over.
func Visible(sensors []domain.SensorRecord, siteID, query string) iter.Seq[domain.SensorRecord] {
	return func(yield func(domain.SensorRecord) bool) {
		matches := []domain.SensorRecord{}
		for _, sensor := range sensors {
			if sensor.SiteID == siteID && Matches(sensor, query) {
				matches = append(matches, sensor)
			}
		}

		slices.SortStableFunc(matches, func(a, b domain.SensorRecord) int {
			return strings.Compare(a.ID, b.ID)
		})

		for _, sensor := range matches {
			if !yield(sensor) {
				return
			}
		}
	}
}

//Matches reports whether the sensor id or label contains query, ignoring case
func Matches(sensor domain.SensorRecord, query string) bool {
	if query == "" {
		return true
	}

	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(sensor.ID), q) ||
		strings.Contains(strings.ToLower(sensor.Label), q)
}
