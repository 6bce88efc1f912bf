package provider

import (
	"context"
	"fmt"
	"os"
	"sort"

	"git.fiblab.net/sim/saferoute/geo"
	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/osm"
)

// SnapshotNode and SnapshotWay are the file representation of a street network extract.
type SnapshotNode struct {
	ID  int64   `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type SnapshotWay struct {
	ID    int64             `json:"id"`
	Tags  map[string]string `json:"tags"`
	Nodes []SnapshotNode    `json:"nodes"`
}

// SnapshotData is the on-disk layout of a snapshot file.
type SnapshotData struct {
	Ways    []SnapshotWay   `json:"ways"`
	Crimes  []CrimeIncident `json:"crimes"`
	Places  []Place         `json:"places"`
	Transit []TransitStop   `json:"transit"`
}

// Snapshot serves every collaborator from an in-memory extract. It backs
// file-based deployments, benchmarks and tests.
type Snapshot struct {
	ways    osm.Ways
	bounds  []orb.Bound
	crimes  []CrimeIncident
	places  []Place
	transit []TransitStop
}

func NewSnapshot(data SnapshotData) *Snapshot {
	s := &Snapshot{
		crimes:  data.Crimes,
		places:  data.Places,
		transit: data.Transit,
	}
	for _, w := range data.Ways {
		way := ToOSMWay(w)
		s.ways = append(s.ways, way)
		s.bounds = append(s.bounds, wayBound(way))
	}
	return s
}

// LoadSnapshot reads a JSON snapshot file.
func LoadSnapshot(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	var data SnapshotData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	log.Infof("snapshot %s: %d ways, %d crimes, %d places, %d transit stops",
		path, len(data.Ways), len(data.Crimes), len(data.Places), len(data.Transit))
	return NewSnapshot(data), nil
}

// ToOSMWay converts a file way into an osm.Way with tags in key order.
func ToOSMWay(w SnapshotWay) *osm.Way {
	keys := make([]string, 0, len(w.Tags))
	for k := range w.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tags := make(osm.Tags, 0, len(keys))
	for _, k := range keys {
		tags = append(tags, osm.Tag{Key: k, Value: w.Tags[k]})
	}
	nodes := make(osm.WayNodes, len(w.Nodes))
	for i, n := range w.Nodes {
		nodes[i] = osm.WayNode{ID: osm.NodeID(n.ID), Lat: n.Lat, Lon: n.Lon}
	}
	return &osm.Way{ID: osm.WayID(w.ID), Tags: tags, Nodes: nodes}
}

func wayBound(w *osm.Way) orb.Bound {
	if len(w.Nodes) == 0 {
		return orb.Bound{}
	}
	b := orb.Bound{Min: orb.Point{w.Nodes[0].Lon, w.Nodes[0].Lat}, Max: orb.Point{w.Nodes[0].Lon, w.Nodes[0].Lat}}
	for _, n := range w.Nodes[1:] {
		b = b.Extend(orb.Point{n.Lon, n.Lat})
	}
	return b
}

func (s *Snapshot) WaysInBound(ctx context.Context, b orb.Bound) (osm.Ways, error) {
	var ways osm.Ways
	for i, w := range s.ways {
		if len(w.Nodes) > 0 && s.bounds[i].Intersects(b) {
			ways = append(ways, w)
		}
	}
	return ways, ctx.Err()
}

func (s *Snapshot) PlacesNear(ctx context.Context, p geo.Point, radius float64) ([]Place, error) {
	var places []Place
	for _, pl := range s.places {
		if geo.Distance(p, pl.Point) <= radius {
			places = append(places, pl)
		}
	}
	return places, ctx.Err()
}

func (s *Snapshot) CrimesInPolygon(ctx context.Context, poly orb.Polygon) ([]CrimeIncident, error) {
	var crimes []CrimeIncident
	for _, c := range s.crimes {
		if planar.PolygonContains(poly, c.Point.Orb()) {
			crimes = append(crimes, c)
		}
	}
	return crimes, ctx.Err()
}

func (s *Snapshot) StopsNear(ctx context.Context, p geo.Point, radius float64) ([]TransitStop, error) {
	var stops []TransitStop
	for _, st := range s.transit {
		if geo.Distance(p, st.Point) <= radius {
			stops = append(stops, st)
		}
	}
	return stops, ctx.Err()
}

// Providers exposes every collaborator of the snapshot.
func (s *Snapshot) Providers() Providers {
	return Providers{Streets: s, Places: s, Crimes: s, Transit: s}
}

// Bound is the extent of the street network, the zero bound when it has no ways.
func (s *Snapshot) Bound() orb.Bound {
	var b orb.Bound
	for i, w := range s.ways {
		if len(w.Nodes) == 0 {
			continue
		}
		if b.IsZero() {
			b = s.bounds[i]
		} else {
			b = b.Union(s.bounds[i])
		}
	}
	return b
}
