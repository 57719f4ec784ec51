// Package geofence classifies coordinates against named regions such as home and work.
package geofence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alfredhome/alfred/pkg/geo"
)

// HomeRegion is the region name used to decide whether a user is at home.
const HomeRegion = "home"

// Geofence errors.
var (
	// ErrMissingCoordinate is returned when only one of lat and long is given.
	ErrMissingCoordinate = errors.New("both lat and long are required")

	// ErrUnknownRegion is returned when a queried region is not configured.
	ErrUnknownRegion = errors.New("unknown geofence region")
)

// Region is a named circle or polygon.
type Region struct {
	Name string `yaml:"name" json:"name" validate:"required"`

	// Center and RadiusMeters describe a circular region.
	Center       geo.Point `yaml:"center" json:"center"`
	RadiusMeters float64   `yaml:"radiusMeters" json:"radiusMeters" validate:"gte=0"`

	// Polygon, when set, takes precedence over the circle.
	Polygon []geo.Point `yaml:"polygon" json:"polygon,omitempty" validate:"omitempty,min=3"`
}

// Contains reports whether p lies inside the region.
func (r Region) Contains(p geo.Point) bool {
	if len(r.Polygon) > 0 {
		return geo.InPolygon(p, r.Polygon)
	}
	return geo.Distance(r.Center, p) <= r.RadiusMeters
}

// Membership maps region names to whether a coordinate lies inside them.
type Membership map[string]bool

// Evaluator holds the configured regions.
type Evaluator struct {
	regions []Region
	byName  map[string]Region
}

// NewEvaluator creates an evaluator over regions. Names match case-insensitively.
func NewEvaluator(regions []Region) *Evaluator {
	e := &Evaluator{
		regions: regions,
		byName:  make(map[string]Region, len(regions)),
	}
	for _, r := range regions {
		e.byName[strings.ToLower(r.Name)] = r
	}
	return e
}

// Contains reports whether (lat, lon) lies inside the named region.
func (e *Evaluator) Contains(region string, lat, lon float64) (bool, error) {
	r, ok := e.byName[strings.ToLower(region)]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownRegion, region)
	}
	return r.Contains(geo.Point{Lat: lat, Lon: lon}), nil
}

// Evaluate classifies string-encoded coordinates against every region.
func (e *Evaluator) Evaluate(lat, lon string) (Membership, error) {
	p, err := geo.ParsePoint(lat, lon)
	if err != nil {
		return nil, err
	}

	m := make(Membership, len(e.regions))
	for _, r := range e.regions {
		m[r.Name] = r.Contains(p)
	}
	return m, nil
}

// AtHome reports whether the coordinates fall inside the home region.
// Absent coordinates count as at home. A single coordinate is an error.
func (e *Evaluator) AtHome(lat, lon string) (bool, error) {
	lat, lon = strings.TrimSpace(lat), strings.TrimSpace(lon)
	if lat == "" && lon == "" {
		return true, nil
	}
	if lat == "" || lon == "" {
		return false, ErrMissingCoordinate
	}

	p, err := geo.ParsePoint(lat, lon)
	if err != nil {
		return false, err
	}

	home, ok := e.byName[HomeRegion]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownRegion, HomeRegion)
	}
	return home.Contains(p), nil
}
