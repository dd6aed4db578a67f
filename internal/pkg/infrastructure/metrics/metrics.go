package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

//Metrics holds the collectors updated by the registry, the service workflow and the dashboard
type Metrics struct {
	sensorsSaved      *prometheus.CounterVec
	sensorsRemoved    prometheus.Counter
	rejections        *prometheus.CounterVec
	visitsRecorded    prometheus.Counter
	gpsCaptures       *prometheus.CounterVec
	telemetryRefresh  prometheus.Counter
	registeredSensors prometheus.Gauge
}

//New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sensorsSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensreg_sensors_saved_total",
			Help: "Sensor records saved, by operation (insert or update).",
		}, []string{"op"}),
		sensorsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensreg_sensors_removed_total",
			Help: "Sensor records removed from the registry.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensreg_rejections_total",
			Help: "Rejected workflow actions, by error kind.",
		}, []string{"kind"}),
		visitsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensreg_visits_recorded_total",
			Help: "Committed sensor selections.",
		}),
		gpsCaptures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensreg_gps_captures_total",
			Help: "GPS capture attempts, by result.",
		}, []string{"result"}),
		telemetryRefresh: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensreg_dashboard_refreshes_total",
			Help: "Dashboard telemetry regenerations.",
		}),
		registeredSensors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensreg_registered_sensors",
			Help: "Sensor records currently in the registry.",
		}),
	}

	reg.MustRegister(
		m.sensorsSaved,
		m.sensorsRemoved,
		m.rejections,
		m.visitsRecorded,
		m.gpsCaptures,
		m.telemetryRefresh,
		m.registeredSensors,
	)

	return m
}

//All methods accept a nil receiver so that metrics stay optional.

//SensorSaved counts a saved sensor, labelled insert or update
func (m *Metrics) SensorSaved(inserted bool) {
	if m == nil {
		return
	}
	op := "update"
	if inserted {
		op = "insert"
	}
	m.sensorsSaved.WithLabelValues(op).Inc()
}

//SensorRemoved counts a sensor removed from the registry
func (m *Metrics) SensorRemoved() {
	if m == nil {
		return
	}
	m.sensorsRemoved.Inc()
}

//Rejected counts a rejected action by error kind
func (m *Metrics) Rejected(kind string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(kind).Inc()
}

//VisitRecorded counts a committed site visit
func (m *Metrics) VisitRecorded() {
	if m == nil {
		return
	}
	m.visitsRecorded.Inc()
}

//GPSCapture counts a GPS capture attempt by outcome
func (m *Metrics) GPSCapture(ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "captured"
	}
	m.gpsCaptures.WithLabelValues(result).Inc()
}

//TelemetryRefreshed counts a dashboard refresh
func (m *Metrics) TelemetryRefreshed() {
	if m == nil {
		return
	}
	m.telemetryRefresh.Inc()
}

//RegistrySize records the number of registered sensors
func (m *Metrics) RegistrySize(n int) {
	if m == nil {
		return
	}
	m.registeredSensors.Set(float64(n))
}
