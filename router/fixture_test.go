package router

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"git.fiblab.net/sim/saferoute/config"
	"git.fiblab.net/sim/saferoute/geo"
	"git.fiblab.net/sim/saferoute/provider"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
)

var BASE = geo.Point{Lat: 40.0, Lng: -75.0}

// offset moves p by north and east meters.
func offset(p geo.Point, north, east float64) geo.Point {
	return geo.Point{
		Lat: p.Lat + north/111_320,
		Lng: p.Lng + east/(111_320*math.Cos(p.Lat*math.Pi/180)),
	}
}

type wayNode struct {
	id int64
	p  geo.Point
}

func way(id int64, tags map[string]string, nodes ...wayNode) provider.SnapshotWay {
	w := provider.SnapshotWay{ID: id, Tags: tags}
	for _, n := range nodes {
		w.Nodes = append(w.Nodes, provider.SnapshotNode{ID: n.id, Lat: n.p.Lat, Lon: n.p.Lng})
	}
	return w
}

func osmWays(ws ...provider.SnapshotWay) osm.Ways {
	out := make(osm.Ways, len(ws))
	for i, w := range ws {
		out[i] = provider.ToOSMWay(w)
	}
	return out
}

// ladder is a 1000m footway from A to B and a 1400m residential detour
// A-C-D-B running 200m to the north.
type ladder struct {
	A, B, C, D wayNode
	ways       []provider.SnapshotWay
}

func newLadder(residentialTags map[string]string) ladder {
	l := ladder{
		A: wayNode{1, BASE},
		B: wayNode{2, offset(BASE, 0, 1000)},
		C: wayNode{3, offset(BASE, 200, 0)},
		D: wayNode{4, offset(BASE, 200, 1000)},
	}
	tags := map[string]string{"highway": "residential"}
	for k, v := range residentialTags {
		tags[k] = v
	}
	l.ways = []provider.SnapshotWay{
		way(1, map[string]string{"highway": "footway"}, l.A, l.B),
		way(2, tags, l.A, l.C, l.D, l.B),
	}
	return l
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Upstream.MinSpacing = 0
	cfg.Upstream.RetryBaseDelay = 0
	return cfg
}

// countingStreets counts calls to the street network.
type countingStreets struct {
	inner provider.StreetNetwork
	calls atomic.Int32
}

func (c *countingStreets) WaysInBound(ctx context.Context, b orb.Bound) (osm.Ways, error) {
	c.calls.Add(1)
	return c.inner.WaysInBound(ctx, b)
}

// blockingPlaces never answers before the context ends.
type blockingPlaces struct{}

func (blockingPlaces) PlacesNear(ctx context.Context, p geo.Point, radius float64) ([]provider.Place, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingCrimes struct{}

func (failingCrimes) CrimesInPolygon(ctx context.Context, poly orb.Polygon) ([]provider.CrimeIncident, error) {
	return nil, errors.New("crime feed unavailable")
}

func newTestRouter(t *testing.T, cfg *config.Config, p provider.Providers) *Router {
	r := New(cfg, p)
	t.Cleanup(r.Close)
	return r
}

func boolPtr(b bool) *bool {
	return &b
}
