package geo

import (
	"fmt"
	"math"
)

// EarthRadiusKm is the mean Earth radius used for all great-circle distances
const EarthRadiusKm = 6371.0

// Point is a latitude/longitude coordinate in decimal degrees
type Point struct {
	Lat float64 `json:"latitude" msgpack:"lat"`
	Lon float64 `json:"longitude" msgpack:"lon"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Lat, p.Lon)
}

// Valid reports whether the point is a finite coordinate on the globe
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

func radians(d float64) float64 { return d / 180 * math.Pi }

// HaversineKm returns the great-circle distance in kilometres between a and b.
// https://www.movable-type.co.uk/scripts/latlong.html
func HaversineKm(a, b Point) float64 {
	lat1, lon1 := radians(a.Lat), radians(a.Lon)
	lat2, lon2 := radians(b.Lat), radians(b.Lon)
	dlat, dlon := lat2-lat1, lon2-lon1

	x := sqr(math.Sin(dlat/2)) + math.Cos(lat1)*math.Cos(lat2)*sqr(math.Sin(dlon/2))
	if x > 1 {
		x = 1
	}
	c := 2 * math.Atan2(math.Sqrt(x), math.Sqrt(1-x))
	return EarthRadiusKm * c
}

// Centroid returns the arithmetic mean of the given coordinates. It does not
// handle sets that straddle the antimeridian; survey clusters are small
// enough that this never matters in practice.
func Centroid(pts []Point) Point {
	if len(pts) == 0 {
		return Point{}
	}
	var lat, lon float64
	for _, p := range pts {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(pts))
	return Point{Lat: lat / n, Lon: lon / n}
}

func sqr(x float64) float64 { return x * x }
