package domain

import (
	"strings"
	"time"
)

//NoSiteID is the sentinel site id used when no site has been selected
const NoSiteID = "none"

//InstallDateLayout is the calendar date format used for install dates
const InstallDateLayout = "2006-01-02"

//Site is a farm or field where sensors are deployed
type Site struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Info         string `json:"info"`
	PlannedCount int    `json:"planned"`
}

//Depth is the installation depth band of a soil moisture sensor
type Depth string

const (
	//DepthUnset means that no depth has been chosen yet
	DepthUnset   Depth = ""
	DepthShallow Depth = "Shallow (0–6 in)"
	DepthMedium  Depth = "Medium (6–12 in)"
	DepthDeep    Depth = "Deep (12–24 in)"
)

//Depths lists the selectable depth bands in display order
var Depths = []Depth{DepthShallow, DepthMedium, DepthDeep}

//Valid reports whether d is one of the known depth bands
func (d Depth) Valid() bool {
	for _, known := range Depths {
		if d == known {
			return true
		}
	}
	return false
}

//Status is the deployment status of a sensor
type Status string

const (
	StatusPlanned      Status = "Planned"
	StatusInstalled    Status = "Installed"
	StatusNeedsService Status = "Needs service"
	StatusOffline      Status = "Offline"
)

//Statuses lists the selectable statuses in display order
var Statuses = []Status{StatusPlanned, StatusInstalled, StatusNeedsService, StatusOffline}

//Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

//GPSFix is a captured device position
type GPSFix struct {
	Latitude   float64   `json:"lat"`
	Longitude  float64   `json:"lng"`
	AccuracyFt int       `json:"accuracyFt"`
	CapturedAt time.Time `json:"capturedAt"`
}

//DeviceTelemetry is the read-only device snapshot shown next to a sensor
type DeviceTelemetry struct {
	DevEUI   string    `json:"devEUI"`
	Battery  float64   `json:"battery"`
	RF       int       `json:"rf"`
	LastSeen time.Time `json:"lastSeen"`
}

//SensorRecord is a tagged soil moisture sensor deployment
type SensorRecord struct {
	ID          string          `json:"id"`
	Label       string          `json:"label,omitempty"`
	SiteID      string          `json:"siteId"`
	Depth       Depth           `json:"depth,omitempty"`
	InstallDate string          `json:"installDate,omitempty"`
	GPS         *GPSFix         `json:"gps"`
	Status      Status          `json:"status,omitempty"`
	Notes       string          `json:"notes"`
	History     []string        `json:"history"`
	Device      DeviceTelemetry `json:"device"`
}

//Clone returns a deep copy of the record so that edits never alias the original
func (s SensorRecord) Clone() SensorRecord {
	c := s
	if s.GPS != nil {
		gps := *s.GPS
		c.GPS = &gps
	}
	if s.History != nil {
		c.History = append([]string(nil), s.History...)
	}
	return c
}

//Validate checks the fields required before a record may be saved
func (s SensorRecord) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return NewValidationError(ErrEmptyID, "sensor id is required")
	}
	if s.Depth == DepthUnset {
		return NewValidationError(ErrMissingDepth, "depth is required for sensor "+s.ID)
	}
	return nil
}
