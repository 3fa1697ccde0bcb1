// Package coordinates provides the geodesy used to place and describe
// traffic relative to the ownship: great-circle distance, bearing and
// dead-reckoning on a spherical Earth.
package coordinates

import (
	"math"
)

// Constants for coordinate calculations
const (
	// DegreesToRadians converts degrees to radians
	DegreesToRadians = math.Pi / 180.0

	// RadiansToDegrees converts radians to degrees
	RadiansToDegrees = 180.0 / math.Pi

	// EarthRadiusKm is the Earth's radius in kilometers (WGS84 mean radius)
	EarthRadiusKm = 6371.0

	// FeetToMeters converts feet to meters
	FeetToMeters = 0.3048

	// MetersPerNauticalMile is the length of one nautical mile
	MetersPerNauticalMile = 1852.0

	// StatuteMilesPerNauticalMile converts nautical to statute miles
	StatuteMilesPerNauticalMile = 1.15078

	// MPHPerKnot converts knots to statute miles per hour
	MPHPerKnot = 1.151
)

// Geographic represents a position on Earth's surface.
// Uses the WGS84 coordinate system (same as GPS).
type Geographic struct {
	// Latitude in decimal degrees (-90 to +90)
	// Positive = North, Negative = South
	Latitude float64

	// Longitude in decimal degrees (-180 to +180)
	// Positive = East, Negative = West
	Longitude float64

	// Altitude in feet above mean sea level (MSL)
	AltitudeFt float64
}

// NormalizeHeading ensures a heading is in the range [0, 360).
func NormalizeHeading(heading float64) float64 {
	h := math.Mod(heading, 360.0)
	if h < 0 {
		h += 360.0
	}
	return h
}

// Bearing calculates the initial bearing (forward azimuth) from one point to another.
// Uses spherical trigonometry to calculate the bearing along a great circle.
// Returns bearing in degrees (0-360), where 0/360 = North, 90 = East, 180 = South, 270 = West.
func Bearing(from, to Geographic) float64 {
	lat1 := from.Latitude * DegreesToRadians
	lon1 := from.Longitude * DegreesToRadians
	lat2 := to.Latitude * DegreesToRadians
	lon2 := to.Longitude * DegreesToRadians

	dLon := lon2 - lon1
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	return NormalizeHeading(math.Atan2(y, x) * RadiansToDegrees)
}

// DistanceNauticalMiles calculates the great-circle distance between two points.
// Uses the Haversine formula for accuracy over short and long distances.
func DistanceNauticalMiles(from, to Geographic) float64 {
	lat1Rad := from.Latitude * DegreesToRadians
	lon1Rad := from.Longitude * DegreesToRadians
	lat2Rad := to.Latitude * DegreesToRadians
	lon2Rad := to.Longitude * DegreesToRadians

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * 1000.0 * c / MetersPerNauticalMile
}

// Destination returns the point reached by travelling distanceNM along a
// great circle from start with the given initial track. Altitude is carried
// over unchanged.
//
// lat2 = asin(sin(lat1)*cos(d) + cos(lat1)*sin(d)*cos(track))
// lon2 = lon1 + atan2(sin(track)*sin(d)*cos(lat1), cos(d)-sin(lat1)*sin(lat2))
func Destination(start Geographic, trackDeg, distanceNM float64) Geographic {
	latRad := start.Latitude * DegreesToRadians
	lonRad := start.Longitude * DegreesToRadians
	trackRad := trackDeg * DegreesToRadians

	angularDistance := distanceNM * MetersPerNauticalMile / (EarthRadiusKm * 1000.0)

	newLatRad := math.Asin(
		math.Sin(latRad)*math.Cos(angularDistance) +
			math.Cos(latRad)*math.Sin(angularDistance)*math.Cos(trackRad),
	)
	newLonRad := lonRad + math.Atan2(
		math.Sin(trackRad)*math.Sin(angularDistance)*math.Cos(latRad),
		math.Cos(angularDistance)-math.Sin(latRad)*math.Sin(newLatRad),
	)

	newLon := newLonRad * RadiansToDegrees
	// Normalize longitude to [-180, 180]
	if newLon > 180.0 {
		newLon -= 360.0
	} else if newLon < -180.0 {
		newLon += 360.0
	}

	return Geographic{
		Latitude:   newLatRad * RadiansToDegrees,
		Longitude:  newLon,
		AltitudeFt: start.AltitudeFt,
	}
}

// DeadReckon advances a position by groundspeed and track over seconds.
// 1 knot = 1 nautical mile per hour.
func DeadReckon(start Geographic, speedKnots, trackDeg, seconds float64) Geographic {
	return Destination(start, trackDeg, speedKnots*seconds/3600.0)
}

// NauticalToStatuteMiles converts a distance in nautical miles to statute miles.
func NauticalToStatuteMiles(nm float64) float64 {
	return nm * StatuteMilesPerNauticalMile
}

// KnotsToMPH converts knots to statute miles per hour.
func KnotsToMPH(kts float64) float64 {
	return kts * MPHPerKnot
}
