package router

import (
	"math"
	"sort"

	"git.fiblab.net/sim/saferoute/geo"
	"git.fiblab.net/sim/saferoute/router/algo"
	"git.fiblab.net/sim/saferoute/spatial"
	"github.com/paulmach/osm"
)

const (
	// 吸附索引中路段采样点的间距/m
	SNAP_SAMPLE_STEP = 20.0
	// 投影点距路段端点小于该距离时直接使用端点
	SNAP_NODE_DIST = 1.0
)

// 非道路要素的标签，无highway标签时据此剔除
var NON_STREET_KEYS = []string{"building", "landuse", "natural", "waterway", "railway", "boundary", "power", "barrier"}

type streetNode struct {
	OSMID int64
	Point geo.Point
}

// segment is a street edge between two intersections, traversable both ways.
type segment struct {
	ID       int
	From, To int
	WayID    int64
	Line     []geo.Point
	Length   float64
	Highway  string
	Lit      string
	Surface  string
	Name     string
	Sidewalk bool
}

// lit reports whether the segment counts as a lit road.
func (s *segment) lit() bool {
	switch s.Lit {
	case LIT_YES:
		return true
	case LIT_NO:
		return false
	}
	return lightingLikelihood(s.Highway) >= LIT_INFERRED_THRESHOLD
}

type walkGraph = algo.SearchGraph[algo.WalkNodeAttr, algo.WalkEdgeAttr]

// streetGraph is the routable graph of one request. It is read-only once built,
// except for edge costs which are set once by the scorer.
type streetGraph struct {
	nodes    []streetNode
	segments []*segment
	// node -> incident segment ids
	adj    [][]int
	search *walkGraph
	// 路段形状采样点 -> 路段id，用于起终点吸附
	segIndex *spatial.Index[int]
}

type wayInfo struct {
	way      *osm.Way
	highway  string
	lit      string
	surface  string
	name     string
	sidewalk bool
}

// walkable applies the pedestrian access policy to a way's tags and returns its highway class.
func walkable(tags osm.Tags) (string, bool) {
	highway := tags.Find("highway")
	if highway == "" {
		for _, k := range NON_STREET_KEYS {
			if tags.HasTag(k) {
				return "", false
			}
		}
		highway = HIGHWAY_UNCLASSIFIED
	}
	if NOT_TRAVERSABLE[highway] {
		return "", false
	}
	foot := tags.Find("foot")
	footAllowed := foot == "yes" || foot == "designated" || foot == "permissive"
	if foot == "no" {
		return "", false
	}
	if access := tags.Find("access"); (access == "no" || access == "private") && !footAllowed {
		return "", false
	}
	if MOTOR_ONLY[highway] && !footAllowed {
		return "", false
	}
	return highway, true
}

func parseWay(w *osm.Way) (wayInfo, bool) {
	highway, ok := walkable(w.Tags)
	if !ok || len(w.Nodes) < 2 {
		return wayInfo{}, false
	}
	info := wayInfo{
		way:     w,
		highway: highway,
		lit:     LIT_UNKNOWN,
		surface: SURFACE_UNKNOWN,
		name:    w.Tags.Find("name"),
	}
	if v, ok := LIT_VALUES[w.Tags.Find("lit")]; ok {
		info.lit = v
	}
	if v, ok := SURFACE_VALUES[w.Tags.Find("surface")]; ok {
		info.surface = v
	}
	info.sidewalk = PEDESTRIAN_HIGHWAYS[highway] || w.Tags.Find("footway") == "sidewalk"
	for _, k := range []string{"sidewalk", "sidewalk:both", "sidewalk:left", "sidewalk:right"} {
		if SIDEWALK_VALUES[w.Tags.Find(k)] {
			info.sidewalk = true
		}
	}
	return info, true
}

// buildGraph splits the walkable ways at shared nodes and assembles the search graph.
// Fails with GRAPH_EMPTY when no usable edge remains.
func buildGraph(ways osm.Ways) (*streetGraph, error) {
	infos := make([]wayInfo, 0, len(ways))
	for _, w := range ways {
		if info, ok := parseWay(w); ok {
			infos = append(infos, info)
		}
	}
	// 按way id排序，保证结点与边的编号确定
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].way.ID < infos[j].way.ID
	})

	// 统计每个OSM结点被引用的次数，被多次引用或位于端点的结点作为路口
	uses := make(map[osm.NodeID]int)
	for _, info := range infos {
		nodes := dedupNodes(info.way.Nodes)
		for _, n := range nodes {
			uses[n.ID]++
		}
		uses[nodes[0].ID]++
		uses[nodes[len(nodes)-1].ID]++
		// 闭合的way切成三段，避免自环与重边
		if n := len(nodes); n > 3 && nodes[0].ID == nodes[n-1].ID {
			uses[nodes[n/3].ID] += 2
			uses[nodes[2*n/3].ID] += 2
		}
	}

	g := &streetGraph{}
	nodeIDs := make(map[osm.NodeID]int)
	nodeOf := func(n osm.WayNode) int {
		if id, ok := nodeIDs[n.ID]; ok {
			return id
		}
		id := len(g.nodes)
		g.nodes = append(g.nodes, streetNode{OSMID: int64(n.ID), Point: geo.Point{Lat: n.Lat, Lng: n.Lon}})
		nodeIDs[n.ID] = id
		return id
	}
	pairs := make(map[[2]int]int)
	// addSegment adds the stretch of way between two intersections. A stretch
	// parallel to an existing edge is split at an interior node so that every
	// pair of graph nodes is joined by at most one edge.
	var addSegment func(info wayInfo, nodes osm.WayNodes)
	addSegment = func(info wayInfo, nodes osm.WayNodes) {
		from, to := nodeOf(nodes[0]), nodeOf(nodes[len(nodes)-1])
		if from == to {
			return
		}
		line := make([]geo.Point, len(nodes))
		for i, n := range nodes {
			line[i] = geo.Point{Lat: n.Lat, Lng: n.Lon}
		}
		length := geo.PolylineLength(line)
		if length <= 0 {
			return
		}
		key := [2]int{min(from, to), max(from, to)}
		if id, ok := pairs[key]; ok {
			if len(nodes) > 2 {
				mid := len(nodes) / 2
				addSegment(info, nodes[:mid+1])
				addSegment(info, nodes[mid:])
				return
			}
			// 两个路口间的直线重复边只保留较短的一条
			if g.segments[id].Length > length {
				g.segments[id].Line = line
				g.segments[id].Length = length
			}
			return
		}
		pairs[key] = len(g.segments)
		g.segments = append(g.segments, &segment{
			ID:       len(g.segments),
			From:     from,
			To:       to,
			WayID:    int64(info.way.ID),
			Line:     line,
			Length:   length,
			Highway:  info.highway,
			Lit:      info.lit,
			Surface:  info.surface,
			Name:     info.name,
			Sidewalk: info.sidewalk,
		})
	}

	for _, info := range infos {
		nodes := dedupNodes(info.way.Nodes)
		start := 0
		for i := 1; i < len(nodes); i++ {
			if uses[nodes[i].ID] < 2 && i != len(nodes)-1 {
				continue
			}
			addSegment(info, nodes[start:i+1])
			start = i
		}
	}
	if len(g.segments) == 0 {
		return nil, newError(GraphEmpty, nil, "no walkable streets among %d ways", len(ways))
	}

	g.segIndex = spatial.New[int](spatial.DEFAULT_CELL_SIZE, g.nodes[g.segments[0].From].Point.Lat)
	for _, seg := range g.segments {
		g.indexSegment(seg)
	}
	g.link()
	return g, nil
}

func (g *streetGraph) indexSegment(s *segment) {
	for _, p := range s.Line {
		g.segIndex.Insert(s.ID, p)
	}
	for _, p := range geo.Sample(s.Line, SNAP_SAMPLE_STEP) {
		g.segIndex.Insert(s.ID, p)
	}
}

// link (re)builds the adjacency lists and the search graph from the segments.
// Edge costs start at the physical length and are set by the scorer afterwards.
func (g *streetGraph) link() {
	g.adj = make([][]int, len(g.nodes))
	for _, s := range g.segments {
		g.adj[s.From] = append(g.adj[s.From], s.ID)
		g.adj[s.To] = append(g.adj[s.To], s.ID)
	}
	g.search = algo.NewSearchGraph[algo.WalkNodeAttr, algo.WalkEdgeAttr](WalkHeuristics{}, nil)
	for _, n := range g.nodes {
		g.search.InitNode(n.Point, algo.WalkNodeAttr{OSMID: n.OSMID})
	}
	for _, s := range g.segments {
		g.search.InitEdge(s.From, s.To, s.Length, s.Length, algo.WalkEdgeAttr{Segment: s.ID, Direction: algo.FORWARD})
		g.search.InitEdge(s.To, s.From, s.Length, s.Length, algo.WalkEdgeAttr{Segment: s.ID, Direction: algo.BACKWARD})
	}
}

// dedupNodes drops consecutive repeats of the same node.
func dedupNodes(nodes osm.WayNodes) osm.WayNodes {
	out := make(osm.WayNodes, 0, len(nodes))
	for i, n := range nodes {
		if i > 0 && n.ID == nodes[i-1].ID {
			continue
		}
		out = append(out, n)
	}
	return out
}

// snap returns the graph node for p: the nearest point of any street within
// tolerance meters. A point inside a segment splits it there and relinks the
// graph, so snapping must happen before edge costs are set.
func (g *streetGraph) snap(p geo.Point, tolerance float64) (int, bool) {
	best, bestID := geo.Projection{Distance: math.Inf(1)}, -1
	for _, id := range g.segIndex.QueryNear(p, tolerance+SNAP_SAMPLE_STEP) {
		pr := geo.Project(g.segments[id].Line, p)
		if pr.Distance < best.Distance || (pr.Distance == best.Distance && id < bestID) {
			best, bestID = pr, id
		}
	}
	if bestID < 0 || best.Distance > tolerance {
		return 0, false
	}
	s := g.segments[bestID]
	switch {
	case best.Along <= SNAP_NODE_DIST:
		return s.From, true
	case s.Length-best.Along <= SNAP_NODE_DIST:
		return s.To, true
	}
	return g.split(s, best), true
}

// split cuts s at the projected point pr into s (From -> new node) and a new
// segment (new node -> old To) with the same attributes.
func (g *streetGraph) split(s *segment, pr geo.Projection) int {
	mid := len(g.nodes)
	g.nodes = append(g.nodes, streetNode{Point: pr.Point})

	head := append(append([]geo.Point{}, s.Line[:pr.Index+1]...), pr.Point)
	tail := append([]geo.Point{pr.Point}, s.Line[pr.Index+1:]...)
	rest := *s
	rest.ID = len(g.segments)
	rest.From = mid
	rest.Line = tail
	rest.Length = geo.PolylineLength(tail)
	g.segments = append(g.segments, &rest)

	s.To = mid
	s.Line = head
	s.Length = geo.PolylineLength(head)

	g.indexSegment(&rest)
	g.link()
	return mid
}

// other returns the endpoint of segment s that is not node n.
func (g *streetGraph) other(s *segment, n int) int {
	if s.From == n {
		return s.To
	}
	return s.From
}
