// Package spatial buckets point features into a uniform latitude/longitude grid
// so that radius queries only touch the cells around the query point.
//
// An Index is built once per request and is read-only afterwards; it carries no lock.
package spatial

import (
	"math"

	"git.fiblab.net/sim/saferoute/geo"
)

const (
	// 默认网格边长（米）
	DEFAULT_CELL_SIZE = 100.0

	METERS_PER_DEGREE_LAT = 111_320.0
)

type cellKey struct {
	X, Y int32
}

type entry[T any] struct {
	item T
	p    geo.Point
}

// Hit is a query result with its distance from the query point.
type Hit[T any] struct {
	Item     T
	Point    geo.Point
	Distance float64
}

type Index[T any] struct {
	cellSize float64
	latStep  float64
	lngStep  float64
	cells    map[cellKey][]entry[T]
	n        int
}

// New creates an index whose cells are cellSize meters wide at refLat.
func New[T any](cellSize, refLat float64) *Index[T] {
	if cellSize <= 0 {
		cellSize = DEFAULT_CELL_SIZE
	}
	cos := math.Max(math.Cos(refLat*math.Pi/180), 0.01)
	latStep := cellSize / METERS_PER_DEGREE_LAT
	return &Index[T]{
		cellSize: cellSize,
		latStep:  latStep,
		lngStep:  latStep / cos,
		cells:    make(map[cellKey][]entry[T]),
	}
}

func (idx *Index[T]) key(p geo.Point) cellKey {
	return cellKey{
		X: int32(math.Floor(p.Lng / idx.lngStep)),
		Y: int32(math.Floor(p.Lat / idx.latStep)),
	}
}

func (idx *Index[T]) Insert(item T, p geo.Point) {
	k := idx.key(p)
	idx.cells[k] = append(idx.cells[k], entry[T]{item: item, p: p})
	idx.n++
}

func (idx *Index[T]) Len() int {
	return idx.n
}

// rings returns how many cells around the center cell have to be visited on
// each axis to cover radius meters; never less than the 3x3 neighbourhood.
func (idx *Index[T]) rings(p geo.Point, radius float64) (int32, int32) {
	ry := int32(math.Ceil(radius / (idx.latStep * METERS_PER_DEGREE_LAT)))
	cos := math.Max(math.Cos(p.Lat*math.Pi/180), 0.01)
	rx := int32(math.Ceil(radius / (idx.lngStep * METERS_PER_DEGREE_LAT * cos)))
	return max(rx, 1), max(ry, 1)
}

// Near returns every item within radius meters of p, with distances.
// Results are ordered by cell then insertion, which keeps them deterministic.
func (idx *Index[T]) Near(p geo.Point, radius float64) []Hit[T] {
	if idx.n == 0 {
		return nil
	}
	center := idx.key(p)
	rx, ry := idx.rings(p, radius)
	var hits []Hit[T]
	for dy := -ry; dy <= ry; dy++ {
		for dx := -rx; dx <= rx; dx++ {
			for _, e := range idx.cells[cellKey{X: center.X + dx, Y: center.Y + dy}] {
				if d := geo.Distance(p, e.p); d <= radius {
					hits = append(hits, Hit[T]{Item: e.item, Point: e.p, Distance: d})
				}
			}
		}
	}
	return hits
}

// QueryNear returns the items within radius meters of p.
func (idx *Index[T]) QueryNear(p geo.Point, radius float64) []T {
	hits := idx.Near(p, radius)
	items := make([]T, len(hits))
	for i, h := range hits {
		items[i] = h.Item
	}
	return items
}

// Nearest returns the closest item within maxRadius meters of p.
func (idx *Index[T]) Nearest(p geo.Point, maxRadius float64) (Hit[T], bool) {
	var best Hit[T]
	found := false
	for _, h := range idx.Near(p, maxRadius) {
		if !found || h.Distance < best.Distance {
			best = h
			found = true
		}
	}
	return best, found
}
