package core

import (
	"math"
	"time"

	"github.com/signalsfoundry/route-simulator/model"
)

// EarthRadiusKm is the mean Earth radius used for all great-circle
// calculations (kilometres).
const EarthRadiusKm = 6371.0

// MaxVelocity is the constant cruise speed of the simulated vehicle in m/s.
// Acceleration is not modelled: every leg is flown at this speed.
const MaxVelocity = 10.0

// TakeOffAltitude is the altitude in metres the vehicle climbs to on take-off.
const TakeOffAltitude = 3.0

// DegreesToRadians converts an angle in degrees to radians.
func DegreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// GreatCircleDistanceKm returns the haversine distance between a and b in
// kilometres. Altitude is ignored.
func GreatCircleDistanceKm(a, b model.Coordinate) float64 {
	lat1 := DegreesToRadians(a.Lat)
	lat2 := DegreesToRadians(b.Lat)
	dLat := DegreesToRadians(b.Lat - a.Lat)
	dLon := DegreesToRadians(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	// Rounding can push sqrt(h) just past 1 for antipodal points.
	root := math.Sqrt(h)
	if root > 1 {
		root = 1
	}
	return 2 * EarthRadiusKm * math.Asin(root)
}

// TravelTimeSeconds returns how long covering distanceMeters takes at
// MaxVelocity.
func TravelTimeSeconds(distanceMeters float64) float64 {
	return distanceMeters / MaxVelocity
}

// LegDistanceMeters is the path length used to time a FlyTo leg: the larger
// of the horizontal great-circle distance and the altitude change. It is not
// a true 3-D distance.
func LegDistanceMeters(from, to model.Coordinate) float64 {
	horizontal := GreatCircleDistanceKm(from, to) * 1000
	vertical := math.Abs(from.Alt - to.Alt)
	return math.Max(horizontal, vertical)
}

// secondsToDuration converts fractional seconds to a time.Duration.
// Negative and NaN inputs yield zero.
func secondsToDuration(s float64) time.Duration {
	if !(s > 0) {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
