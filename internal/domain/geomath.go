package domain

import "github.com/golang/geo/s1"

// EarthRadiusMeters is the mean Earth radius used for meter/degree conversion.
const EarthRadiusMeters = 6_371_000.0

// MetersToDegrees converts a great-circle distance to the central angle it
// subtends, in degrees. Negative distances give negative offsets.
func MetersToDegrees(meters float64) float64 {
	return s1.Angle(meters / EarthRadiusMeters).Degrees()
}

// DegreesToMeters is the inverse of MetersToDegrees.
func DegreesToMeters(deg float64) float64 {
	return (s1.Angle(deg) * s1.Degree).Radians() * EarthRadiusMeters
}
