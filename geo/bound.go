package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// BoundAround returns the bounding box of points padded by marginMeters on every side.
func BoundAround(marginMeters float64, points ...Point) orb.Bound {
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = p.Orb()
	}
	return geo.BoundPad(mp.Bound(), marginMeters)
}

// BoundPolygon returns the closed ring polygon of b.
func BoundPolygon(b orb.Bound) orb.Polygon {
	return b.ToPolygon()
}

// BoundRadius returns the center of b and the radius in meters of a circle covering it.
func BoundRadius(b orb.Bound) (Point, float64) {
	c := FromOrb(b.Center())
	r := 0.0
	for _, corner := range []orb.Point{b.Min, b.Max, {b.Min[0], b.Max[1]}, {b.Max[0], b.Min[1]}} {
		r = math.Max(r, Distance(c, FromOrb(corner)))
	}
	return c, r
}

// BoundContains reports whether p falls inside b, edges included.
func BoundContains(b orb.Bound, p Point) bool {
	return b.Contains(p.Orb())
}

// SnapBound grows b outward to the nearest multiples of step degrees so that
// neighbouring requests resolve to the same cell-aligned box.
func SnapBound(b orb.Bound, step float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{math.Floor(b.Min[0]/step) * step, math.Floor(b.Min[1]/step) * step},
		Max: orb.Point{math.Ceil(b.Max[0]/step) * step, math.Ceil(b.Max[1]/step) * step},
	}
}

// Quantize rounds v to the nearest multiple of step.
func Quantize(v, step float64) float64 {
	return math.Round(v/step) * step
}
