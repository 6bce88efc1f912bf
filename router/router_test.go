package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.fiblab.net/sim/saferoute/geo"
	"git.fiblab.net/sim/saferoute/provider"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteLadder(t *testing.T) {
	l := newLadder(map[string]string{"lit": "yes"})
	snap := provider.NewSnapshot(provider.SnapshotData{
		Ways: l.ways,
		Places: []provider.Place{
			{ID: "s1", Point: offset(l.C.p, 20, 300), Category: provider.PlaceShop, OpenNow: boolPtr(true)},
		},
	})
	r := newTestRouter(t, testConfig(), snap.Providers())

	rs, err := r.Route(context.Background(), Request{Origin: l.A.p, Destination: l.B.p}, Token{})
	require.NoError(t, err)
	require.Len(t, rs.Routes, 2)
	assert.Equal(t, RankingSafety, rs.Metadata.Ranking)

	best, other := rs.Routes[0], rs.Routes[1]
	assert.True(t, best.Selected)
	assert.False(t, other.Selected)
	// 选中较长但有照明的住宅路
	assert.InDelta(t, 1400, best.Distance, 5)
	assert.InDelta(t, 1000, other.Distance, 5)
	assert.Greater(t, best.Pathfinding, other.Pathfinding)
	assert.InDelta(t, best.Distance/1.3, best.Duration, 1)
	assert.NotEqual(t, best.Polyline, other.Polyline)
	assert.NotEqual(t, best.ID, other.ID)
	assert.NotEmpty(t, rs.ID)

	for _, route := range rs.Routes {
		line, err := geo.DecodePolyline(route.Polyline)
		require.NoError(t, err)
		assert.Less(t, geo.Distance(line[0], l.A.p), 1.0)
		assert.Less(t, geo.Distance(line[len(line)-1], l.B.p), 1.0)
		assert.Equal(t, len(route.segments), len(route.Segments))
		for _, v := range []int{route.Safety.RoadType, route.Safety.Lighting, route.Safety.Crime,
			route.Safety.CCTV, route.Safety.OpenPlaces, route.Safety.Traffic, route.Safety.LitRoadPct} {
			assert.GreaterOrEqual(t, v, 0)
			assert.LessOrEqual(t, v, 100)
		}
		assert.Equal(t, route.Safety.Composite, Composite(route.Safety, r.cfg.Scoring.Composite))
	}
	assert.Equal(t, 1, best.Diagnostics.POIs[0].Count)
	assert.Equal(t, "shop", best.Diagnostics.POIs[0].Category)
	assert.Equal(t, 0, best.Diagnostics.UnpavedPct)
	assert.Equal(t, 100, other.Diagnostics.SidewalkPct)

	names := make([]string, 0)
	for _, s := range rs.Metadata.Sources {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"streets", "lighting", "crimes", "places", "transit"}, names)
	assert.Equal(t, SourceOK, rs.Metadata.Sources[0].Status)
	assert.Equal(t, SourceEmpty, rs.Metadata.Sources[4].Status)
	assert.Equal(t, SourceOK, rs.Metadata.Sources[1].Status)
}

func TestRouteLowConfidenceFallsBackToDistance(t *testing.T) {
	l := newLadder(nil)
	snap := provider.NewSnapshot(provider.SnapshotData{Ways: l.ways})
	r := newTestRouter(t, testConfig(), provider.Providers{Streets: snap})

	rs, err := r.Route(context.Background(), Request{Origin: l.A.p, Destination: l.B.p}, Token{})
	require.NoError(t, err)
	require.Len(t, rs.Routes, 2)
	assert.Equal(t, RankingDistance, rs.Metadata.Ranking)
	assert.InDelta(t, 1000, rs.Routes[0].Distance, 5)
	for _, route := range rs.Routes {
		assert.Less(t, route.Confidence, 0.3)
		assert.Equal(t, INSUFFICIENT_DATA.Label, route.Label)
		assert.GreaterOrEqual(t, route.Distance, rs.Routes[0].Distance)
	}
	// 安全得分更高的路线并未被选中
	assert.Greater(t, rs.Routes[1].Pathfinding, rs.Routes[0].Pathfinding)
}

func TestRouteScenarioVerySafe(t *testing.T) {
	// 10段有照明的住宅路共1.2km，无犯罪记录，沿线3家营业中的商店
	var nodes []wayNode
	for i := 0; i <= 10; i++ {
		nodes = append(nodes, wayNode{int64(i + 1), offset(BASE, 0, float64(i)*120)})
	}
	data := provider.SnapshotData{}
	for i := 0; i < 10; i++ {
		data.Ways = append(data.Ways, way(int64(100+i), map[string]string{"highway": "residential", "lit": "yes"}, nodes[i], nodes[i+1]))
	}
	for i, east := range []float64{200, 600, 1000} {
		data.Places = append(data.Places, provider.Place{
			ID: string(rune('a' + i)), Point: offset(BASE, 20, east), Category: provider.PlaceShop, OpenNow: boolPtr(true),
		})
	}
	snap := provider.NewSnapshot(data)
	r := newTestRouter(t, testConfig(), snap.Providers())

	rs, err := r.Route(context.Background(), Request{Origin: nodes[0].p, Destination: nodes[10].p}, Token{})
	require.NoError(t, err)
	require.NotEmpty(t, rs.Routes)
	best := rs.Routes[0]
	assert.InDelta(t, 1200, best.Distance, 5)
	assert.Len(t, best.Segments, 10)
	assert.GreaterOrEqual(t, best.Safety.Composite, 70)
	assert.Equal(t, "Very Safe", best.Label)
	assert.GreaterOrEqual(t, best.Confidence, 0.6)
	assert.Equal(t, 100, best.Safety.Crime)
	assert.Equal(t, 100, best.Safety.LitRoadPct)
}

func TestRouteGraphEmpty(t *testing.T) {
	snap := provider.NewSnapshot(provider.SnapshotData{})
	r := newTestRouter(t, testConfig(), snap.Providers())
	rs, err := r.Route(context.Background(), Request{Origin: BASE, Destination: offset(BASE, 0, 500)}, Token{})
	assert.Nil(t, rs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGraphEmpty))
	assert.Equal(t, GraphEmpty, CodeOf(err))
}

func TestRouteRangeCeiling(t *testing.T) {
	l := newLadder(nil)
	streets := &countingStreets{inner: provider.NewSnapshot(provider.SnapshotData{Ways: l.ways})}
	req := Request{Origin: l.A.p, Destination: l.B.p}

	cfg := testConfig()
	cfg.Search.RangeCeiling = geo.Distance(l.A.p, l.B.p)
	r := newTestRouter(t, cfg, provider.Providers{Streets: streets})
	_, err := r.Route(context.Background(), req, Token{})
	require.NoError(t, err)

	cfg = testConfig()
	cfg.Search.RangeCeiling = geo.Distance(l.A.p, l.B.p) - 1
	streets.calls.Store(0)
	r = newTestRouter(t, cfg, provider.Providers{Streets: streets})
	_, err = r.Route(context.Background(), req, Token{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDestinationOutOfRange))
	assert.Equal(t, int32(0), streets.calls.Load())
}

func TestRouteInvalidCoordinates(t *testing.T) {
	r := newTestRouter(t, testConfig(), provider.NewSnapshot(provider.SnapshotData{}).Providers())
	_, err := r.Route(context.Background(), Request{Origin: geo.Point{Lat: 91}, Destination: BASE}, Token{})
	assert.Equal(t, InvalidCoordinates, CodeOf(err))
}

func TestRouteNoNearbyRoad(t *testing.T) {
	l := newLadder(nil)
	r := newTestRouter(t, testConfig(), provider.NewSnapshot(provider.SnapshotData{Ways: l.ways}).Providers())
	_, err := r.Route(context.Background(), Request{Origin: offset(l.A.p, -400, 0), Destination: l.B.p}, Token{})
	assert.Equal(t, NoNearbyRoad, CodeOf(err))
}

func TestRouteFromMiddleOfLongStreet(t *testing.T) {
	nodes := longStreet()
	snap := provider.NewSnapshot(provider.SnapshotData{Ways: []provider.SnapshotWay{
		way(1, map[string]string{"highway": "residential"}, nodes...),
	}})
	r := newTestRouter(t, testConfig(), snap.Providers())

	origin := offset(nodes[6].p, 5, 0)
	rs, err := r.Route(context.Background(), Request{Origin: origin, Destination: nodes[12].p}, Token{})
	require.NoError(t, err)
	require.NotEmpty(t, rs.Routes)
	route := rs.Routes[0]
	assert.InDelta(t, 600, route.Distance, 5)
	line, err := geo.DecodePolyline(route.Polyline)
	require.NoError(t, err)
	assert.InDelta(t, 5, geo.Distance(line[0], origin), 1)
	assert.Less(t, geo.Distance(line[len(line)-1], nodes[12].p), 1.0)

	// 起终点都落在两个路口之间
	rs, err = r.Route(context.Background(), Request{Origin: offset(BASE, -4, 250), Destination: offset(BASE, 3, 880)}, Token{})
	require.NoError(t, err)
	require.NotEmpty(t, rs.Routes)
	assert.InDelta(t, 630, rs.Routes[0].Distance, 5)
}

func TestRouteNoRouteFound(t *testing.T) {
	a, b := wayNode{1, BASE}, wayNode{2, offset(BASE, 0, 300)}
	c, d := wayNode{3, offset(BASE, 0, 600)}, wayNode{4, offset(BASE, 0, 900)}
	snap := provider.NewSnapshot(provider.SnapshotData{Ways: []provider.SnapshotWay{
		way(1, map[string]string{"highway": "residential"}, a, b),
		way(2, map[string]string{"highway": "residential"}, c, d),
	}})
	r := newTestRouter(t, testConfig(), snap.Providers())
	_, err := r.Route(context.Background(), Request{Origin: a.p, Destination: d.p}, Token{})
	assert.Equal(t, NoRouteFound, CodeOf(err))
	assert.Contains(t, err.Error(), "not connected")
}

func TestRouteIdempotent(t *testing.T) {
	l := newLadder(map[string]string{"lit": "yes"})
	r := newTestRouter(t, testConfig(), provider.NewSnapshot(provider.SnapshotData{Ways: l.ways}).Providers())
	req := Request{Origin: l.A.p, Destination: l.B.p}

	first, err := r.Route(context.Background(), req, Token{})
	require.NoError(t, err)
	second, err := r.Route(context.Background(), req, Token{})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.True(t, second.Cached)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRouteDeterministicAcrossRouters(t *testing.T) {
	l := newLadder(map[string]string{"lit": "yes"})
	data := provider.SnapshotData{Ways: l.ways}
	req := Request{Origin: l.A.p, Destination: l.B.p}

	var sets []*RouteSet
	for i := 0; i < 2; i++ {
		r := newTestRouter(t, testConfig(), provider.NewSnapshot(data).Providers())
		rs, err := r.Route(context.Background(), req, Token{})
		require.NoError(t, err)
		rs.Metadata.Timings = Timings{}
		sets = append(sets, rs)
	}
	a, _ := json.Marshal(sets[0])
	b, _ := json.Marshal(sets[1])
	assert.Equal(t, string(a), string(b))
}

func TestRouteStaleRequest(t *testing.T) {
	l := newLadder(nil)
	r := newTestRouter(t, testConfig(), provider.NewSnapshot(provider.SnapshotData{Ways: l.ways}).Providers())
	req := Request{Origin: l.A.p, Destination: l.B.p}

	var epoch Epoch
	old := epoch.Next()
	cur := epoch.Next()
	assert.False(t, old.Current())
	assert.True(t, cur.Current())

	_, err := r.Route(context.Background(), req, old)
	assert.True(t, errors.Is(err, ErrStaleRequest))
	assert.Equal(t, 0, r.results.Size())

	_, err = r.Route(context.Background(), req, cur)
	require.NoError(t, err)
	assert.Equal(t, 1, r.results.Size())
}

func TestRouteAbandoned(t *testing.T) {
	l := newLadder(nil)
	r := newTestRouter(t, testConfig(), provider.NewSnapshot(provider.SnapshotData{Ways: l.ways}).Providers())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Route(ctx, Request{Origin: l.A.p, Destination: l.B.p}, Token{})
	assert.Equal(t, StaleRequest, CodeOf(err))
	assert.Equal(t, 0, r.results.Size())
}

func TestRouteDegradesOnSourceFailure(t *testing.T) {
	l := newLadder(map[string]string{"lit": "yes"})
	snap := provider.NewSnapshot(provider.SnapshotData{Ways: l.ways})
	cfg := testConfig()
	cfg.Upstream.Timeout = 200 * time.Millisecond
	r := newTestRouter(t, cfg, provider.Providers{
		Streets: snap,
		Places:  blockingPlaces{},
		Crimes:  failingCrimes{},
	})

	rs, err := r.Route(context.Background(), Request{Origin: l.A.p, Destination: l.B.p}, Token{})
	require.NoError(t, err)
	require.NotEmpty(t, rs.Routes)
	status := make(map[string]string)
	for _, s := range rs.Metadata.Sources {
		status[s.Name] = s.Status
	}
	assert.Equal(t, SourceOK, status[SOURCE_STREETS])
	assert.Equal(t, SourceError, status[SOURCE_CRIMES])
	assert.Equal(t, SourceTimeout, status[SOURCE_PLACES])
	assert.Equal(t, SourceAbsent, status[SOURCE_TRANSIT])
	// 路网与照明两个数据源
	assert.InDelta(t, 0.4, rs.Routes[0].Confidence, 1e-9)
}
