package model

import (
	"fmt"
	"math"
)

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate is finite and within range.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// CloseTo reports whether both components are within eps degrees of other.
func (c Coordinate) CloseTo(other Coordinate, eps float64) bool {
	return math.Abs(c.Lat-other.Lat) <= eps && math.Abs(c.Lon-other.Lon) <= eps
}

// Stop is one labeled waypoint from the input spreadsheet.
type Stop struct {
	ID                int               `json:"id"` // 1-based input order, stable across the run
	Label             string            `json:"label"`
	Address           string            `json:"address"`
	NormalizedAddress string            `json:"normalized_address"`
	Group             string            `json:"group,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`
	Coord             *Coordinate       `json:"coord,omitempty"` // nil until geocoded
}

// Resolved reports whether the stop has a geocoded coordinate.
func (s *Stop) Resolved() bool {
	return s.Coord != nil
}

// Ref returns a short human-readable reference for error messages.
func (s *Stop) Ref() string {
	if s.Label != "" {
		return fmt.Sprintf("stop %d (%s)", s.ID, s.Label)
	}
	return fmt.Sprintf("stop %d", s.ID)
}

// Leg is the routed segment between two consecutive stops.
type Leg struct {
	Origin          *Stop        `json:"-"`
	Destination     *Stop        `json:"-"`
	DistanceMeters  float64      `json:"distance_meters"`
	DurationSeconds float64      `json:"duration_seconds"`
	Geometry        string       `json:"geometry"` // encoded polyline as returned by the provider
	Points          []Coordinate `json:"-"`        // decoded geometry
}

// Ref returns a short human-readable reference for error messages.
func (l *Leg) Ref() string {
	if l.Origin != nil && l.Destination != nil {
		return fmt.Sprintf("leg %s → %s", l.Origin.Label, l.Destination.Label)
	}
	return "leg"
}

// Route is the ordered stop sequence with the legs between consecutive stops.
type Route struct {
	Stops           []Stop  `json:"stops"`
	Legs            []Leg   `json:"legs"`
	DistanceMeters  float64 `json:"distance_meters"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Totals recomputes the aggregate distance and duration from the legs.
func (r *Route) Totals() (distance, duration float64) {
	for i := range r.Legs {
		distance += r.Legs[i].DistanceMeters
		duration += r.Legs[i].DurationSeconds
	}
	return distance, duration
}
