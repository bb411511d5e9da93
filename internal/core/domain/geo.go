package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate reports whether the point lies inside the WGS 84 coordinate ranges.
// NaN fails both checks.
func (p GeoPoint) Validate() error {
	if !(p.Lat >= -90 && p.Lat <= 90) {
		return fmt.Errorf("%w: latitude %.6f out of range [-90, 90]", ErrValidation, p.Lat)
	}
	if !(p.Lon >= -180 && p.Lon <= 180) {
		return fmt.Errorf("%w: longitude %.6f out of range [-180, 180]", ErrValidation, p.Lon)
	}
	return nil
}

// String formats the point as "lat, lon" with 5 decimals (about 1 m).
func (p GeoPoint) String() string {
	return fmt.Sprintf("%.5f, %.5f", p.Lat, p.Lon)
}

// PositionSample is a single device fix.
type PositionSample struct {
	Point          GeoPoint  `json:"point"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	CapturedAt     time.Time `json:"captured_at"`
}

// Validate checks the point ranges and that accuracy is finite and non-negative.
func (s PositionSample) Validate() error {
	if err := s.Point.Validate(); err != nil {
		return err
	}
	if math.IsNaN(s.AccuracyMeters) || math.IsInf(s.AccuracyMeters, 0) {
		return fmt.Errorf("%w: accuracy must be a finite number", ErrValidation)
	}
	if s.AccuracyMeters < 0 {
		return fmt.Errorf("%w: accuracy must be >= 0, got %.1f", ErrValidation, s.AccuracyMeters)
	}
	return nil
}

// AcquireOptions parameterise a one-shot position request.
type AcquireOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxAge       time.Duration
}

// MarshalJSON uses the PositionOptions shape of the browser geolocation API
// so a client can pass the value straight to getCurrentPosition.
func (o AcquireOptions) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EnableHighAccuracy bool  `json:"enableHighAccuracy"`
		Timeout            int64 `json:"timeout"`
		MaximumAge         int64 `json:"maximumAge"`
	}{o.HighAccuracy, o.Timeout.Milliseconds(), o.MaxAge.Milliseconds()})
}

// Address is a reverse-geocoded, display-only description of a point.
type Address struct {
	Point       GeoPoint `json:"point"`
	DisplayName string   `json:"display_name"`
	Street      string   `json:"street,omitempty"`
	HouseNumber string   `json:"house_number,omitempty"`
	City        string   `json:"city,omitempty"`
	Country     string   `json:"country,omitempty"`
	Fallback    bool     `json:"fallback"`
}
