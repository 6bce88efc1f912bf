package geo

import (
	"fmt"

	"github.com/twpayne/go-polyline"
)

// EncodePolyline encodes points with the signed-delta base64 polyline format at 5-decimal precision.
func EncodePolyline(points []Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lng}
	}
	return string(polyline.EncodeCoords(coords))
}

func DecodePolyline(s string) ([]Point, error) {
	coords, rest, err := polyline.DecodeCoords([]byte(s))
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("trailing polyline bytes: %q", rest)
	}
	points := make([]Point, len(coords))
	for i, c := range coords {
		points[i] = Point{Lat: c[0], Lng: c[1]}
	}
	return points, nil
}
