// Package geo provides the geodesic math used throughout the engine:
// great-circle distance, initial bearing, the bearing-to-stereo-pan mapping
// for spatial playback, and Douglas-Peucker trajectory simplification.
package geo

import (
	"math"

	"github.com/golang/geo/s2"

	"github.com/biomapp/derive/internal/model"
)

// EarthRadiusMeters is Earth's mean radius used for all distance math.
const EarthRadiusMeters = 6371000.0

// DistanceMeters returns the haversine great-circle distance between two
// points in meters.
func DistanceMeters(a, b model.LatLng) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lng)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// BearingDegrees returns the initial bearing (forward azimuth) from one
// point to another, in degrees [0,360) where 0 is north and 90 is east.
func BearingDegrees(from, to model.LatLng) float64 {
	lat1 := from.Lat * math.Pi / 180
	lat2 := to.Lat * math.Pi / 180
	lngDiff := (to.Lng - from.Lng) * math.Pi / 180

	y := math.Sin(lngDiff) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(lngDiff)
	bearing := math.Atan2(y, x) * 180 / math.Pi

	return math.Mod(bearing+360, 360)
}

// BearingToStereoPan maps a bearing to a stereo pan value in [-1,1]:
// east is full right (+1), west is full left (-1), north and south are
// center (0). The mapping is pan = sin(bearing); it deliberately ignores
// the listener's own heading, which a hand-held device cannot report
// reliably while walking.
func BearingToStereoPan(bearingDegrees float64) float64 {
	return math.Sin(bearingDegrees * math.Pi / 180)
}

// DestinationPoint returns the point reached by travelling the given
// distance on the given bearing from the origin. bearing in degrees,
// distance in meters.
func DestinationPoint(origin model.LatLng, bearingDegrees, distanceMeters float64) model.LatLng {
	bearingRad := bearingDegrees * math.Pi / 180
	angular := distanceMeters / EarthRadiusMeters

	latRad := origin.Lat * math.Pi / 180
	lngRad := origin.Lng * math.Pi / 180

	lat2 := math.Asin(math.Sin(latRad)*math.Cos(angular) +
		math.Cos(latRad)*math.Sin(angular)*math.Cos(bearingRad))
	lng2 := lngRad + math.Atan2(
		math.Sin(bearingRad)*math.Sin(angular)*math.Cos(latRad),
		math.Cos(angular)-math.Sin(latRad)*math.Sin(lat2))

	return model.LatLng{Lat: lat2 * 180 / math.Pi, Lng: lng2 * 180 / math.Pi}
}
