package spatial

import "math"

// Point represents a 2D point with latitude and longitude
type Point struct {
	Lat float64
	Lon float64
}

// Centroid calculates the geographic centroid of a set of points
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}

	var sumLat, sumLon float64
	for _, p := range points {
		sumLat += p.Lat
		sumLon += p.Lon
	}

	return Point{
		Lat: sumLat / float64(len(points)),
		Lon: sumLon / float64(len(points)),
	}
}

// RadiusOfGyration calculates the radius of gyration for a set of points.
// This measures the spatial dispersion around the centroid.
func RadiusOfGyration(points []Point) float64 {
	if len(points) == 0 {
		return 0
	}

	center := Centroid(points)

	var sumSquaredDist float64
	for _, p := range points {
		dist := HaversineDistance(center.Lat, center.Lon, p.Lat, p.Lon)
		sumSquaredDist += dist * dist
	}

	return math.Sqrt(sumSquaredDist / float64(len(points)))
}
