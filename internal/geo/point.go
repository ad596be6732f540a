package geo

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used for distances.
const EarthRadiusKm = 6371.0088

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether p lies within the coordinate ranges.
func (p Point) Valid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180 &&
		!math.IsNaN(p.Latitude) && !math.IsNaN(p.Longitude)
}

// LonLat returns the GeoJSON ordering used on the wire.
func (p Point) LonLat() [2]float64 {
	return [2]float64{p.Longitude, p.Latitude}
}

func (p Point) String() string {
	return fmt.Sprintf("%.5f,%.5f", p.Latitude, p.Longitude)
}

// DistanceKm returns the great-circle distance between a and b.
func DistanceKm(a, b Point) float64 {
	const rad = math.Pi / 180
	lat1, lat2 := a.Latitude*rad, b.Latitude*rad
	dLat := (b.Latitude - a.Latitude) * rad
	dLon := (b.Longitude - a.Longitude) * rad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DistanceM returns the great-circle distance between a and b in meters.
func DistanceM(a, b Point) float64 {
	return DistanceKm(a, b) * 1000
}
