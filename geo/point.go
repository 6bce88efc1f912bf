// Package geo holds WGS84 primitives shared by the routing engine.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func NewPoint(lat, lng float64) Point {
	return Point{Lat: lat, Lng: lng}
}

func FromOrb(p orb.Point) Point {
	return Point{Lat: p.Lat(), Lng: p.Lon()}
}

func (p Point) Orb() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// Valid reports whether p is a finite coordinate inside the WGS84 range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p Point) String() string {
	return fmt.Sprintf("(%.6f,%.6f)", p.Lat, p.Lng)
}

// Distance is the haversine distance in meters.
func Distance(a, b Point) float64 {
	return geo.Distance(a.Orb(), b.Orb())
}

// Blend returns the point at fraction t on the straight segment a->b.
func Blend(a, b Point, t float64) Point {
	return Point{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lng: a.Lng + (b.Lng-a.Lng)*t,
	}
}

// PolylineLengths returns the cumulative length at every vertex, starting at 0.
func PolylineLengths(line []Point) []float64 {
	lengths := make([]float64, len(line))
	for i := 1; i < len(line); i++ {
		lengths[i] = lengths[i-1] + Distance(line[i-1], line[i])
	}
	return lengths
}

func PolylineLength(line []Point) float64 {
	if len(line) < 2 {
		return 0
	}
	return geo.Length(toLineString(line))
}

// PointAlong returns the point at arc length s along line, clamped to its ends.
func PointAlong(line []Point, lengths []float64, s float64) Point {
	if len(line) == 0 {
		return Point{}
	}
	if s <= 0 || len(line) == 1 {
		return line[0]
	}
	for i := 1; i < len(line); i++ {
		if lengths[i] >= s {
			seg := lengths[i] - lengths[i-1]
			if seg == 0 {
				return line[i]
			}
			return Blend(line[i-1], line[i], (s-lengths[i-1])/seg)
		}
	}
	return line[len(line)-1]
}

// Sample returns points along line spaced at most step meters apart,
// always including the arc-length midpoint.
func Sample(line []Point, step float64) []Point {
	if len(line) == 0 {
		return nil
	}
	lengths := PolylineLengths(line)
	total := lengths[len(lengths)-1]
	if total == 0 || step <= 0 {
		return []Point{PointAlong(line, lengths, total/2)}
	}
	n := int(math.Ceil(total / step))
	samples := make([]Point, 0, n+1)
	for i := 0; i < n; i++ {
		samples = append(samples, PointAlong(line, lengths, (float64(i)+0.5)*total/float64(n)))
	}
	if n%2 == 0 {
		samples = append(samples, PointAlong(line, lengths, total/2))
	}
	return samples
}

// Projection is the point of a polyline closest to a query point.
type Projection struct {
	Point Point
	// 查询点到投影点的距离/m
	Distance float64
	// 投影点沿折线的弧长/m
	Along float64
	// 投影点所在的边为 line[Index] -> line[Index+1]
	Index int
}

// Project returns the closest point of line to p. Each edge is projected in a
// local equirectangular frame centered on p, which is exact enough at street scale.
func Project(line []Point, p Point) Projection {
	if len(line) == 0 {
		return Projection{Point: p}
	}
	if len(line) == 1 {
		return Projection{Point: line[0], Distance: Distance(p, line[0])}
	}
	cos := math.Cos(p.Lat * math.Pi / 180)
	xy := func(q Point) (float64, float64) {
		return (q.Lng - p.Lng) * cos, q.Lat - p.Lat
	}
	lengths := PolylineLengths(line)
	best := Projection{Distance: math.Inf(1)}
	for i := 0; i+1 < len(line); i++ {
		ax, ay := xy(line[i])
		bx, by := xy(line[i+1])
		dx, dy := bx-ax, by-ay
		t := 0.0
		if l2 := dx*dx + dy*dy; l2 > 0 {
			t = math.Max(0, math.Min(1, -(ax*dx+ay*dy)/l2))
		}
		q := Blend(line[i], line[i+1], t)
		if d := Distance(p, q); d < best.Distance {
			best = Projection{Point: q, Distance: d, Along: lengths[i] + Distance(line[i], q), Index: i}
		}
	}
	return best
}

func toLineString(line []Point) orb.LineString {
	ls := make(orb.LineString, len(line))
	for i, p := range line {
		ls[i] = p.Orb()
	}
	return ls
}
