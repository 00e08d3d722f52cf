package geo

import (
	"errors"
	"math"
)

// Point is a WGS-84 coordinate pair. The wire order is (lon, lat) at
// every boundary; keep the field order matching.
type Point struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

var ErrOutOfRange = errors.New("coordinate out of range")

// Validate checks longitude and latitude bounds.
func (p Point) Validate() error {
	if p.Lon < -180 || p.Lon > 180 {
		return ErrOutOfRange
	}
	if p.Lat < -90 || p.Lat > 90 {
		return ErrOutOfRange
	}
	return nil
}

// HaversineKM returns the great-circle distance between two points in kilometers.
func HaversineKM(a, b Point) float64 {
	const earthRadiusKM = 6371.0

	la1 := a.Lat * math.Pi / 180
	la2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(la1)*math.Cos(la2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKM * c
}

// EstimateDurationMinutes converts a distance to an approximate travel
// time using a flat average city speed. Good enough for offer payloads;
// the client shows real ETAs from its own routing.
func EstimateDurationMinutes(distanceKM float64) int {
	const avgSpeedKMH = 21.0

	minutes := (distanceKM / avgSpeedKMH) * 60.0
	m := int(math.Ceil(minutes))
	if m < 1 {
		return 1
	}
	return m
}
