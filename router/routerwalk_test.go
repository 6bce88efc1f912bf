package router

import (
	"context"
	"testing"

	"git.fiblab.net/sim/saferoute/config"
	"git.fiblab.net/sim/saferoute/geo"
	"git.fiblab.net/sim/saferoute/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gridWays builds an n x n grid of residential streets spaced 100m apart.
func gridWays(n int) ([][]wayNode, []provider.SnapshotWay) {
	nodes := make([][]wayNode, n)
	for r := 0; r < n; r++ {
		nodes[r] = make([]wayNode, n)
		for c := 0; c < n; c++ {
			nodes[r][c] = wayNode{int64(r*n + c + 1), offset(BASE, float64(r)*100, float64(c)*100)}
		}
	}
	var ways []provider.SnapshotWay
	tags := map[string]string{"highway": "residential"}
	for r := 0; r < n; r++ {
		ways = append(ways, way(int64(1000+r), tags, nodes[r]...))
	}
	for c := 0; c < n; c++ {
		col := make([]wayNode, n)
		for r := 0; r < n; r++ {
			col[r] = nodes[r][c]
		}
		ways = append(ways, way(int64(2000+c), tags, col...))
	}
	return nodes, ways
}

func TestSearchWalkingDiversifies(t *testing.T) {
	nodes, ways := gridWays(4)
	g, err := buildGraph(osmWays(ways...))
	require.NoError(t, err)
	from, ok := g.snap(nodes[0][0].p, 10)
	require.True(t, ok)
	to, ok := g.snap(nodes[3][3].p, 10)
	require.True(t, ok)

	cfg := config.Default().Search
	cands, err := g.searchWalking(from, to, cfg)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(cands), 2)
	assert.LessOrEqual(t, len(cands), cfg.MaxRoutes)

	shortest := cands[0].distance
	for _, c := range cands {
		shortest = min(shortest, c.distance)
	}
	for i, c := range cands {
		assert.LessOrEqual(t, c.distance, shortest*cfg.DetourFactor+1e-6)
		// 路径连续：相邻边共享结点
		require.Len(t, c.nodes, len(c.segments)+1)
		assert.Equal(t, from, c.nodes[0])
		assert.Equal(t, to, c.nodes[len(c.nodes)-1])
		for k, sid := range c.segments {
			s := g.segments[sid]
			assert.ElementsMatch(t, []int{c.nodes[k], c.nodes[k+1]}, []int{s.From, s.To})
		}
		for j := i + 1; j < len(cands); j++ {
			assert.NotEqual(t, c.key(), cands[j].key())
		}
	}
}

func TestSearchWalkingDetourLimit(t *testing.T) {
	// 绕行1400m超过1.2倍的限制
	l := newLadder(map[string]string{"lit": "yes"})
	g, err := buildGraph(osmWays(l.ways...))
	require.NoError(t, err)
	cfg := config.Default().Search
	cfg.DetourFactor = 1.2
	from, _ := g.snap(l.A.p, 1)
	to, _ := g.snap(l.B.p, 1)
	cands, err := g.searchWalking(from, to, cfg)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.InDelta(t, 1000, cands[0].distance, 5)
}

func TestSearchWalkingSameNode(t *testing.T) {
	l := newLadder(nil)
	g, err := buildGraph(osmWays(l.ways...))
	require.NoError(t, err)
	_, err = g.searchWalking(0, 0, config.Default().Search)
	assert.Equal(t, NoRouteFound, CodeOf(err))
}

func TestLineFollowsTravelDirection(t *testing.T) {
	l := newLadder(nil)
	g, err := buildGraph(osmWays(l.ways...))
	require.NoError(t, err)
	from, _ := g.snap(l.B.p, 1)
	to, _ := g.snap(l.A.p, 1)
	cands, err := g.searchWalking(from, to, config.Default().Search)
	require.NoError(t, err)
	for _, c := range cands {
		line := g.line(c)
		assert.Less(t, geo.Distance(line[0], l.B.p), 0.01)
		assert.Less(t, geo.Distance(line[len(line)-1], l.A.p), 0.01)
		assert.InDelta(t, c.distance, geo.PolylineLength(line), 0.5)
	}
}

func TestRouteGridReturnsDistinctRoutes(t *testing.T) {
	nodes, ways := gridWays(5)
	r := newTestRouter(t, testConfig(), provider.NewSnapshot(provider.SnapshotData{Ways: ways}).Providers())
	rs, err := r.Route(context.Background(), Request{Origin: nodes[0][0].p, Destination: nodes[4][4].p}, Token{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(rs.Routes), 2)
	assert.LessOrEqual(t, len(rs.Routes), 5)
	seen := make(map[string]bool)
	for _, route := range rs.Routes {
		assert.False(t, seen[route.Polyline])
		seen[route.Polyline] = true
	}
}
