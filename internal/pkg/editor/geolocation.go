package editor

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/iot-for-tillgenglighet/iot-sensor-service/internal/pkg/domain"
)

const feetPerMeter = 3.28084

//Position is a device position as reported by a geolocation capability
type Position struct {
	Latitude       float64 `json:"lat"`
	Longitude      float64 `json:"lng"`
	AccuracyMeters float64 `json:"accuracy"`
}

//PositionOptions mirror the options of a browser geolocation request
type PositionOptions struct {
	EnableHighAccuracy bool
	Timeout            time.Duration
	MaximumAge         time.Duration
}

//DefaultPositionOptions requests a low accuracy fix within ten seconds and never reuses a cached position
var DefaultPositionOptions = PositionOptions{
	EnableHighAccuracy: false,
	Timeout:            10 * time.Second,
	MaximumAge:         0,
}

//Geolocator is the capability that resolves the current device position
type Geolocator interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error)
}

//GeolocatorFunc adapts a function to the Geolocator interface
type GeolocatorFunc func(ctx context.Context, opts PositionOptions) (Position, error)

func (f GeolocatorFunc) CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error) {
	return f(ctx, opts)
}

//ReportedGeolocator replays the outcome of a position request made on the technician's device
type ReportedGeolocator struct {
	Position    *Position
	Failure     string
	Unsupported bool
}

func (r ReportedGeolocator) CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error) {
	if r.Unsupported {
		return Position{}, domain.NewCapabilityError(domain.ErrGeolocationUnavailable, "geolocation is not supported on this device")
	}
	if r.Failure != "" {
		return Position{}, domain.NewCapabilityError(domain.ErrGeolocationDeniedOrTimeout, r.Failure)
	}
	if r.Position == nil {
		return Position{}, domain.NewCapabilityError(domain.ErrGeolocationDeniedOrTimeout, "no position reported")
	}
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	return *r.Position, nil
}

//MetersToFeet converts an accuracy radius and rounds it to whole feet
func MetersToFeet(meters float64) int {
	return int(math.Round(meters * feetPerMeter))
}

func capabilityError(err error) *domain.CapabilityError {
	var capErr *domain.CapabilityError
	if errors.As(err, &capErr) {
		return capErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewCapabilityError(domain.ErrGeolocationDeniedOrTimeout, "timeout expired")
	}
	return domain.NewCapabilityError(domain.ErrGeolocationDeniedOrTimeout, err.Error())
}
