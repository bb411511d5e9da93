package geospatial

import (
	"math"

	"github.com/samirrijal/classroom/internal/core/domain"
)

// EarthRadiusMeters is the mean Earth radius.
const EarthRadiusMeters = 6371000.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRad(lat1)
	phi2 := toRad(lat2)
	dPhi := toRad(lat2 - lat1)
	dLambda := toRad(lon2 - lon1)

	h := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*
			math.Sin(dLambda/2)*math.Sin(dLambda/2)

	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Distance is Haversine over domain points.
func Distance(a, b domain.GeoPoint) float64 {
	return Haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

// Offset moves p by north/east meters on a local flat approximation.
// Good enough for building fixtures a few kilometres away.
func Offset(p domain.GeoPoint, northMeters, eastMeters float64) domain.GeoPoint {
	return domain.GeoPoint{
		Lat: p.Lat + northMeters/111320.0,
		Lon: p.Lon + eastMeters/(111320.0*math.Cos(toRad(p.Lat))),
	}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
