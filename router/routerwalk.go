package router

import (
	"fmt"
	"strconv"
	"strings"

	"git.fiblab.net/sim/saferoute/config"
	"git.fiblab.net/sim/saferoute/geo"
	"git.fiblab.net/sim/saferoute/router/algo"
)

type WalkHeuristics struct {
}

// HeuristicEuclidean never overestimates: every edge weight is at least its length.
func (h WalkHeuristics) HeuristicEuclidean(p1 geo.Point, p2 geo.Point) float64 {
	return geo.Distance(p1, p2)
}

// penaltyOverlay multiplies the cost of edges used by accepted routes.
// It lives for one request only.
type penaltyOverlay map[int]float64

func (o penaltyOverlay) GetRuntimeEdgeWeight(attr algo.WalkEdgeAttr, base float64) float64 {
	if f, ok := o[attr.Segment]; ok {
		return base * f
	}
	return base
}

// distanceWeight ignores safety and weights edges by physical length.
type distanceWeight struct {
	g *streetGraph
}

func (w distanceWeight) GetRuntimeEdgeWeight(attr algo.WalkEdgeAttr, _ float64) float64 {
	return w.g.segments[attr.Segment].Length
}

// candidate is a found path before scoring.
type candidate struct {
	nodes    []int
	segments []int
	distance float64
}

func (c candidate) key() string {
	var b strings.Builder
	for _, s := range c.segments {
		b.WriteString(strconv.Itoa(s))
		b.WriteByte(',')
	}
	return b.String()
}

func (g *streetGraph) toCandidate(path []algo.PathItem[algo.WalkNodeAttr, algo.WalkEdgeAttr], start int) candidate {
	c := candidate{nodes: []int{start}}
	cur := start
	for _, item := range path[:len(path)-1] {
		s := g.segments[item.EdgeAttr.Segment]
		cur = g.other(s, cur)
		c.nodes = append(c.nodes, cur)
		c.segments = append(c.segments, s.ID)
		c.distance += item.Distance
	}
	return c
}

// line concatenates the segment geometries of c in travel order.
func (g *streetGraph) line(c candidate) []geo.Point {
	if len(c.segments) == 0 {
		return []geo.Point{g.nodes[c.nodes[0]].Point}
	}
	var line []geo.Point
	for i, id := range c.segments {
		s := g.segments[id]
		pts := s.Line
		if s.From != c.nodes[i] {
			pts = reversed(pts)
		}
		if i > 0 {
			pts = pts[1:]
		}
		line = append(line, pts...)
	}
	return line
}

func reversed(pts []geo.Point) []geo.Point {
	out := make([]geo.Point, len(pts))
	for i, p := range pts {
		out[len(pts)-1-i] = p
	}
	return out
}

// searchWalking finds the safest path, diversified alternates and the
// distance-shortest path between two snapped nodes.
func (g *streetGraph) searchWalking(start, end int, cfg config.Search) (cands []candidate, err error) {
	// panic recover
	defer func() {
		if e := recover(); e != nil {
			cands = nil
			err = newError(InternalError, fmt.Errorf("panic: %v", e), "route search failed")
			log.Errorf("panic: searchWalking %v with input start=%d, end=%d", e, start, end)
		}
	}()

	if start == end {
		return nil, newError(NoRouteFound, nil, "origin and destination snap to the same street node")
	}
	shortestPath, dist := g.search.ShortestPathAStar(start, end, distanceWeight{g})
	if shortestPath == nil {
		log.Debugf("routing failed, no path between node %d and %d", start, end)
		return nil, newError(NoRouteFound, nil, "origin and destination are not connected by walkable streets")
	}
	shortest := g.toCandidate(shortestPath, start)
	maxDistance := dist * cfg.DetourFactor

	seen := make(map[string]bool)
	overlay := penaltyOverlay{}
	for attempt := 0; attempt < cfg.MaxAttempts && len(cands) < cfg.MaxRoutes; attempt++ {
		path, _ := g.search.ShortestPathAStar(start, end, overlay)
		if path == nil {
			break
		}
		c := g.toCandidate(path, start)
		for _, s := range c.segments {
			if f, ok := overlay[s]; ok {
				overlay[s] = f * cfg.PenaltyFactor
			} else {
				overlay[s] = cfg.PenaltyFactor
			}
		}
		k := c.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		if c.distance > maxDistance+algo.EPS {
			log.Debugf("candidate rejected, %.0fm exceeds detour limit %.0fm", c.distance, maxDistance)
			continue
		}
		cands = append(cands, c)
	}
	// 最短路径总是作为候选，用于低置信度时按距离排序
	if !containsKey(cands, shortest.key()) {
		if len(cands) >= cfg.MaxRoutes {
			cands = cands[:cfg.MaxRoutes-1]
		}
		cands = append(cands, shortest)
	}
	return cands, nil
}

func containsKey(cands []candidate, k string) bool {
	for _, c := range cands {
		if c.key() == k {
			return true
		}
	}
	return false
}
