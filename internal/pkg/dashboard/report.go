package dashboard

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReportContentType = "text/csv"
	generatedLayout   = "2006-01-02 15:04:05"
)

//ReportFilename names the report generated at t
func ReportFilename(t time.Time) string {
	return fmt.Sprintf("acrelink-validation-report-%s.csv", t.UTC().Format("2006-01-02"))
}

//WriteReport writes the validation report for zones as CSV
func WriteReport(w io.Writer, zones []Zone, generated time.Time) error {
	m := Summarize(zones)

	rows := [][]string{
		{"AcreLink Validation Dashboard Report"},
		{"Generated:", generated.Format(generatedLayout)},
		{""},
		{"Key Performance Metrics"},
		{"Average Moisture", fmt.Sprintf("%d%%", m.AverageMoisture)},
		{"Water Saved YTD", m.WaterSavedYTD.String() + " acre-feet"},
		{"Estimated Savings", "$" + m.EstimatedSavings.String()},
		{"Sensor Uptime", m.SensorUptime.String() + "%"},
		{""},
		{"Zone Data"},
		{"Zone", "Moisture %", "Temperature °C", "Status", "Last Irrigation", "Battery (V)", "Signal %"},
	}

	for _, zone := range zones {
		rows = append(rows, []string{
			zone.Name,
			strconv.Itoa(zone.Moisture),
			strconv.Itoa(zone.Temperature),
			string(zone.Status),
			zone.LastIrrigation,
			decimal.NewFromFloat(zone.BatteryVoltage).String(),
			strconv.Itoa(zone.SignalStrength),
		})
	}

	rows = append(rows,
		[]string{""},
		[]string{"System Health"},
		[]string{"Active Sensors", strconv.Itoa(m.ActiveSensors)},
		[]string{"Offline Sensors", strconv.Itoa(m.OfflineSensors)},
		[]string{"Avg Battery Voltage", m.AverageBattery.StringFixed(1) + "V"},
		[]string{"Data Latency", "< 2 seconds"},
	)

	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}
