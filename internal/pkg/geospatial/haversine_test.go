package geospatial_test

import (
	"math"
	"testing"

	"github.com/samirrijal/classroom/internal/core/domain"
	"github.com/samirrijal/classroom/internal/pkg/geospatial"
)

func TestDistance_SamePointIsZero(t *testing.T) {
	points := []domain.GeoPoint{
		{Lat: 0, Lon: 0},
		{Lat: 43.263, Lon: -2.935},
		{Lat: -89.9, Lon: 179.9},
		{Lat: 90, Lon: -180},
	}
	for _, p := range points {
		if d := geospatial.Distance(p, p); d != 0 {
			t.Errorf("distance(%v, %v) = %f, want 0", p, p, d)
		}
	}
}

func TestDistance_Symmetric(t *testing.T) {
	pairs := [][2]domain.GeoPoint{
		{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.008993}},
		{{Lat: 43.263, Lon: -2.935}, {Lat: 40.4168, Lon: -3.7038}},
		{{Lat: -33.86, Lon: 151.21}, {Lat: 51.5, Lon: -0.12}},
		{{Lat: 10, Lon: 179.5}, {Lat: 10, Lon: -179.5}},
	}
	for _, p := range pairs {
		ab := geospatial.Distance(p[0], p[1])
		ba := geospatial.Distance(p[1], p[0])
		if math.Abs(ab-ba) > 1e-6 {
			t.Errorf("asymmetric distance: %f vs %f", ab, ba)
		}
	}
}

func TestDistance_OneKilometreAtEquator(t *testing.T) {
	d := geospatial.Distance(domain.GeoPoint{Lat: 0, Lon: 0}, domain.GeoPoint{Lat: 0, Lon: 0.008993})
	if math.Abs(d-1000) > 1 {
		t.Errorf("expected ~1000 m, got %f", d)
	}
}

func TestDistance_MonotonicWithSeparation(t *testing.T) {
	origin := domain.GeoPoint{Lat: 43.263, Lon: -2.935}
	prev := 0.0
	for _, deg := range []float64{0.001, 0.01, 0.1, 1, 10, 90} {
		d := geospatial.Distance(origin, domain.GeoPoint{Lat: origin.Lat, Lon: origin.Lon + deg})
		if d <= prev {
			t.Fatalf("distance not increasing at %f deg: %f <= %f", deg, d, prev)
		}
		prev = d
	}
}

func TestHaversine_Antipodal(t *testing.T) {
	d := geospatial.Haversine(0, 0, 0, 180)
	want := math.Pi * geospatial.EarthRadiusMeters
	if math.Abs(d-want) > 1 {
		t.Errorf("expected half circumference %f, got %f", want, d)
	}
}

func TestOffset_RoundTrip(t *testing.T) {
	origin := domain.GeoPoint{Lat: 43.263, Lon: -2.935}
	p := geospatial.Offset(origin, 0, 600)
	d := geospatial.Distance(origin, p)
	if math.Abs(d-600) > 2 {
		t.Errorf("expected ~600 m, got %f", d)
	}
}
