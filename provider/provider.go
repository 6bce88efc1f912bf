// Package provider defines the upstream data collaborators of the routing
// engine and the typed results they return.
package provider

import (
	"context"
	"errors"
	"net"

	"git.fiblab.net/sim/saferoute/geo"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
)

// PlaceCategory classifies a point of interest.
type PlaceCategory string

const (
	PlaceRestaurant PlaceCategory = "restaurant"
	PlaceShop       PlaceCategory = "shop"
	PlaceLeisure    PlaceCategory = "leisure"
	PlaceAmenity    PlaceCategory = "amenity"
	PlaceCCTV       PlaceCategory = "cctv"
	PlaceOther      PlaceCategory = "other"
)

// Place is a point of interest. OpenNow is nil unless a real-time source confirmed it.
type Place struct {
	ID       string        `json:"id"`
	Name     string        `json:"name,omitempty"`
	Point    geo.Point     `json:"point"`
	Category PlaceCategory `json:"category"`
	OpenNow  *bool         `json:"open_now,omitempty"`
}

// IsSurveillance reports whether the place is a camera rather than an activity place.
func (p Place) IsSurveillance() bool {
	return p.Category == PlaceCCTV
}

type CrimeIncident struct {
	Point    geo.Point `json:"point"`
	Category string    `json:"category"`
	// 严重程度/时效权重，缺省为1
	Weight float64 `json:"weight,omitempty"`
	Period string  `json:"period,omitempty"`
}

type TransitStop struct {
	ID    string    `json:"id"`
	Name  string    `json:"name,omitempty"`
	Point geo.Point `json:"point"`
}

// StreetNetwork returns the ways intersecting a bounding box.
type StreetNetwork interface {
	WaysInBound(ctx context.Context, b orb.Bound) (osm.Ways, error)
}

// Places returns points of interest (activity places and cameras) near a point.
type Places interface {
	PlacesNear(ctx context.Context, p geo.Point, radius float64) ([]Place, error)
}

type Crimes interface {
	CrimesInPolygon(ctx context.Context, poly orb.Polygon) ([]CrimeIncident, error)
}

type Transit interface {
	StopsNear(ctx context.Context, p geo.Point, radius float64) ([]TransitStop, error)
}

// Providers bundles the collaborators. Only Streets is mandatory.
type Providers struct {
	Streets StreetNetwork
	Places  Places
	Crimes  Crimes
	Transit Transit
}

// ErrTransient marks an upstream failure worth retrying.
var ErrTransient = errors.New("transient upstream failure")

// IsTransient reports whether err is a retryable upstream failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
