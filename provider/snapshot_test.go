package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"git.fiblab.net/sim/saferoute/geo"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshotJSON = `{
  "ways": [
    {"id": 10, "tags": {"name": "Main St", "highway": "primary", "lit": "yes"},
     "nodes": [{"id": 1, "lat": 40.0, "lon": -75.0}, {"id": 2, "lat": 40.0, "lon": -74.99}]},
    {"id": 11, "tags": {"highway": "footway"},
     "nodes": [{"id": 3, "lat": 41.0, "lon": -75.0}, {"id": 4, "lat": 41.0, "lon": -74.99}]}
  ],
  "crimes": [
    {"point": {"lat": 40.0001, "lng": -74.995}, "category": "theft"},
    {"point": {"lat": 42.0, "lng": -74.995}, "category": "theft"}
  ],
  "places": [
    {"id": "p1", "point": {"lat": 40.0002, "lng": -74.995}, "category": "shop", "open_now": true},
    {"id": "c1", "point": {"lat": 40.0002, "lng": -74.996}, "category": "cctv"}
  ],
  "transit": [
    {"id": "s1", "point": {"lat": 40.0003, "lng": -74.995}}
  ]
}`

func writeSnapshot(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(snapshotJSON), 0o644))
	return path
}

func TestLoadSnapshot(t *testing.T) {
	s, err := LoadSnapshot(writeSnapshot(t))
	require.NoError(t, err)
	ctx := context.Background()

	ways, err := s.WaysInBound(ctx, orb.Bound{Min: orb.Point{-75.01, 39.99}, Max: orb.Point{-74.98, 40.01}})
	require.NoError(t, err)
	require.Len(t, ways, 1)
	assert.Equal(t, "primary", ways[0].Tags.Find("highway"))
	assert.Equal(t, "highway", ways[0].Tags[0].Key)
	assert.Len(t, ways[0].Nodes, 2)

	crimes, err := s.CrimesInPolygon(ctx, orb.Bound{Min: orb.Point{-75.01, 39.99}, Max: orb.Point{-74.98, 40.01}}.ToPolygon())
	require.NoError(t, err)
	assert.Len(t, crimes, 1)

	places, err := s.PlacesNear(ctx, geo.Point{Lat: 40.0, Lng: -74.995}, 200)
	require.NoError(t, err)
	require.Len(t, places, 2)
	assert.True(t, *places[0].OpenNow)
	assert.True(t, places[1].IsSurveillance())

	stops, err := s.StopsNear(ctx, geo.Point{Lat: 40.0, Lng: -74.995}, 10)
	require.NoError(t, err)
	assert.Empty(t, stops)
}

func TestLoadSnapshotErrors(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = LoadSnapshot(path)
	assert.Error(t, err)
}

func TestSnapshotProviders(t *testing.T) {
	s := NewSnapshot(SnapshotData{})
	p := s.Providers()
	assert.NotNil(t, p.Streets)
	assert.NotNil(t, p.Crimes)
	ways, err := p.Streets.WaysInBound(context.Background(), orb.Bound{Max: orb.Point{1, 1}})
	require.NoError(t, err)
	assert.Empty(t, ways)
	assert.True(t, s.Bound().IsZero())
}

func TestSnapshotBound(t *testing.T) {
	s, err := LoadSnapshot(writeSnapshot(t))
	require.NoError(t, err)
	assert.Equal(t, orb.Bound{Min: orb.Point{-75.0, 40.0}, Max: orb.Point{-74.99, 41.0}}, s.Bound())
}
