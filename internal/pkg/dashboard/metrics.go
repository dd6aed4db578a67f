package dashboard

import (
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

var (
	waterSavedYTD    = decimal.RequireFromString("197.8")
	dollarsPerAcreFt = decimal.NewFromInt(45)
	sensorUptime     = decimal.RequireFromString("98.4")
	inchesPerPoint   = decimal.RequireFromString("0.15")
)

//Metrics are the key figures derived from the current zone readings
type Metrics struct {
	LowMoistureZones []string        `json:"lowMoistureZones"`
	AverageMoisture  int             `json:"averageMoisture"`
	WaterSavedYTD    decimal.Decimal `json:"waterSavedYtd"`
	EstimatedSavings decimal.Decimal `json:"estimatedSavings"`
	SensorUptime     decimal.Decimal `json:"sensorUptime"`
	ActiveSensors    int             `json:"activeSensors"`
	OfflineSensors   int             `json:"offlineSensors"`
	AverageBattery   decimal.Decimal `json:"averageBattery"`
}

//Summarize computes the dashboard metrics for zones
func Summarize(zones []Zone) Metrics {
	m := Metrics{
		LowMoistureZones: []string{},
		WaterSavedYTD:    waterSavedYTD,
		EstimatedSavings: waterSavedYTD.Mul(dollarsPerAcreFt).Round(0),
		SensorUptime:     sensorUptime,
		ActiveSensors:    len(zones),
		AverageBattery:   decimal.Zero,
	}

	if len(zones) == 0 {
		return m
	}

	moisture := 0
	battery := decimal.Zero
	for _, zone := range zones {
		if zone.Status == StatusDry {
			m.LowMoistureZones = append(m.LowMoistureZones, zone.Name)
		}
		moisture += zone.Moisture
		battery = battery.Add(decimal.NewFromFloat(zone.BatteryVoltage))
	}

	count := decimal.NewFromInt(int64(len(zones)))
	m.AverageMoisture = int(decimal.NewFromInt(int64(moisture)).Div(count).Round(0).IntPart())
	m.AverageBattery = battery.Div(count).Round(1)

	return m
}

//Instruction tells the technician how much to irrigate the driest zone
type Instruction struct {
	Zone           string          `json:"zone"`
	Moisture       int             `json:"moisture"`
	Target         int             `json:"target"`
	LastIrrigation string          `json:"lastIrrigation"`
	WaterInches    decimal.Decimal `json:"waterInches"`
	DurationHours  int             `json:"durationHours"`
}

//IrrigationFor picks the driest zone, the first one listed on ties. It reports false when there are no zones.
func IrrigationFor(zones []Zone) (Instruction, bool) {
	if len(zones) == 0 {
		return Instruction{}, false
	}

	sorted := slices.Clone(zones)
	slices.SortStableFunc(sorted, func(a, b Zone) int { return a.Moisture - b.Moisture })
	driest := sorted[0]

	deficit := targetLevel - driest.Moisture

	return Instruction{
		Zone:           driest.Name,
		Moisture:       driest.Moisture,
		Target:         targetLevel,
		LastIrrigation: driest.LastIrrigation,
		WaterInches:    decimal.Max(decimal.Zero, decimal.NewFromInt(int64(deficit)).Mul(inchesPerPoint)).Round(2),
		DurationHours:  max(0, int(math.Ceil(float64(deficit)/5))),
	}, true
}

//DayPoint is one column of the seven day moisture chart
type DayPoint struct {
	Day      string         `json:"day"`
	Date     time.Time      `json:"date"`
	Forecast bool           `json:"forecast"`
	Moisture map[string]int `json:"moisture"`
}

const dayLabelLayout = "Mon, Jan 02"

//WeekView lays out three past days, today and three future days. Past days
//are taken from the tail of history, falling back to the latest point, and
//future days read zero for every zone.
func WeekView(history []HistoryPoint, now time.Time) []DayPoint {
	week := make([]DayPoint, 0, 7)

	pick := func(back int) map[string]int {
		moisture := map[string]int{}
		if len(history) == 0 {
			return moisture
		}

		point := history[len(history)-1]
		if back <= len(history) {
			point = history[len(history)-back]
		}

		for k, v := range point.Moisture {
			moisture[k] = v
		}
		return moisture
	}

	for back := 3; back > 0; back-- {
		day := now.AddDate(0, 0, -back)
		week = append(week, DayPoint{Day: day.Format(dayLabelLayout), Date: day, Moisture: pick(back)})
	}

	week = append(week, DayPoint{Day: now.Format(dayLabelLayout), Date: now, Moisture: pick(1)})

	keys := []string{}
	if len(history) > 0 {
		for k := range history[len(history)-1].Moisture {
			keys = append(keys, k)
		}
	} else {
		for _, zone := range initialZones() {
			keys = append(keys, zone.Key())
		}
	}

	for ahead := 1; ahead <= 3; ahead++ {
		day := now.AddDate(0, 0, ahead)
		future := map[string]int{}
		for _, k := range keys {
			future[k] = 0
		}
		week = append(week, DayPoint{Day: day.Format(dayLabelLayout), Date: day, Forecast: true, Moisture: future})
	}

	return week
}
