package geo

import "math"

// MaxRadiusMeters bounds a radius filter to half the Earth's circumference.
const MaxRadiusMeters = 20_037_508.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// NewPoint returns a Point when both coordinates are in range.
func NewPoint(lat, lng float64) (Point, bool) {
	if !ValidateCoordinates(lat, lng) {
		return Point{}, false
	}
	return Point{Lat: lat, Lng: lng}, true
}

// ValidateCoordinates checks that latitude is in [-90,90] and longitude in [-180,180].
// NaN fails every comparison and is rejected.
func ValidateCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// ValidRadius reports whether meters is usable as a search radius.
func ValidRadius(meters float64) bool {
	return !math.IsNaN(meters) && meters >= 0 && meters <= MaxRadiusMeters
}
