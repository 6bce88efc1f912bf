package algo

import (
	"container/heap"
	"log"

	"git.fiblab.net/sim/saferoute/geo"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/samber/lo"
)

type node[T any] struct {
	p    geo.Point
	attr T
}

type edge[T any] struct {
	to       int
	distance float64 // 物理长度/m
	cost     float64 // 基础边权
	attr     T
}

// SearchGraph 通用有向图，支持A*搜索与运行时边权覆盖
type SearchGraph[NT any, ET any] struct {
	// 邻接表，按插入顺序保存出边，保证搜索结果确定
	// 构建完成后拓扑不变，但cost会被SetEdgeCost改变，因此需要考虑并发问题
	edges [][]edge[ET]
	// 点的位置
	nodes []node[NT]
	// A Star距离预估函数
	h IHeuristics
	// 缺省边权提取函数
	w IEdgeWeight[ET]

	mu *xsync.RBMutex
}

type IHeuristics interface {
	HeuristicEuclidean(geo.Point, geo.Point) float64
}

// IEdgeWeight 运行时边权，base为图中保存的基础边权
type IEdgeWeight[ET any] interface {
	GetRuntimeEdgeWeight(attr ET, base float64) float64
}

type baseWeight[ET any] struct{}

func (baseWeight[ET]) GetRuntimeEdgeWeight(_ ET, base float64) float64 {
	return base
}

func NewSearchGraph[NT any, ET any](h IHeuristics, w IEdgeWeight[ET]) *SearchGraph[NT, ET] {
	if w == nil {
		w = baseWeight[ET]{}
	}
	return &SearchGraph[NT, ET]{
		edges: make([][]edge[ET], 0),
		nodes: make([]node[NT], 0),
		h:     h,
		w:     w,
		mu:    xsync.NewRBMutex(),
	}
}

func (g *SearchGraph[NT, ET]) InitNode(p geo.Point, attr NT) int {
	g.nodes = append(g.nodes, node[NT]{p: p, attr: attr})
	g.edges = append(g.edges, make([]edge[ET], 0, 2))
	return len(g.nodes) - 1
}

// InitEdge 添加有向边，重复添加同一对结点时覆盖原有的边
func (g *SearchGraph[NT, ET]) InitEdge(from, to int, distance, cost float64, attr ET) {
	if from >= len(g.edges) || to >= len(g.edges) {
		log.Panicf("edge %d->%d out of range, len(g.nodes)=%d", from, to, len(g.nodes))
	}
	e := edge[ET]{to: to, distance: distance, cost: cost, attr: attr}
	for i := range g.edges[from] {
		if g.edges[from][i].to == to {
			g.edges[from][i] = e
			return
		}
	}
	g.edges[from] = append(g.edges[from], e)
}

func (g *SearchGraph[NT, ET]) NodeCount() int {
	return len(g.nodes)
}

func (g *SearchGraph[NT, ET]) NodePoint(i int) geo.Point {
	return g.nodes[i].p
}

func (g *SearchGraph[NT, ET]) NodeAttr(i int) NT {
	return g.nodes[i].attr
}

// Degree 出边数量
func (g *SearchGraph[NT, ET]) Degree(i int) int {
	return len(g.edges[i])
}

func (g *SearchGraph[NT, ET]) find(from, to int) (*edge[ET], error) {
	if from < 0 || from >= len(g.edges) || to < 0 || to >= len(g.edges) {
		return nil, ErrNodeNotExist
	}
	for i := range g.edges[from] {
		if g.edges[from][i].to == to {
			return &g.edges[from][i], nil
		}
	}
	return nil, ErrEdgeNotExist
}

func (g *SearchGraph[NT, ET]) GetEdgeCost(from, to int) (float64, error) {
	token := g.mu.RLock()
	defer g.mu.RUnlock(token)
	e, err := g.find(from, to)
	if err != nil {
		return INF, err
	}
	return e.cost, nil
}

func (g *SearchGraph[NT, ET]) SetEdgeCost(from, to int, cost float64) error {
	if !(cost > 0) || cost == INF {
		return ErrInvalidCost
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e, err := g.find(from, to)
	if err != nil {
		return err
	}
	e.cost = cost
	return nil
}

type PathItem[NT any, ET any] struct {
	NodeAttr NT
	EdgeAttr ET
	// 从本结点出发的边的物理长度，最后一个结点为0
	Distance float64
}

func (g *SearchGraph[NT, ET]) reconstructPath(cameFrom map[int]int, curNode int) []PathItem[NT, ET] {
	pathBeforeReversed := []PathItem[NT, ET]{{NodeAttr: g.nodes[curNode].attr}}
	for {
		if from, ok := cameFrom[curNode]; ok {
			e, _ := g.find(from, curNode)
			curNode = from
			pathBeforeReversed = append(pathBeforeReversed, PathItem[NT, ET]{
				NodeAttr: g.nodes[curNode].attr,
				EdgeAttr: e.attr,
				Distance: e.distance,
			})
		} else {
			break
		}
	}
	return lo.Reverse(pathBeforeReversed)
}

// ShortestPath 使用缺省边权求最短路
func (g *SearchGraph[NT, ET]) ShortestPath(start, end int) ([]PathItem[NT, ET], float64) {
	return g.ShortestPathAStar(start, end, nil)
}

// ShortestPathAStar A Star算法求最短路，w为nil时使用缺省边权
// 代价相同时选择物理距离更短的路径；不可达时返回nil与INF
func (g *SearchGraph[NT, ET]) ShortestPathAStar(start, end int, w IEdgeWeight[ET]) ([]PathItem[NT, ET], float64) {
	token := g.mu.RLock()
	defer g.mu.RUnlock(token)
	if w == nil {
		w = g.w
	}
	if start == end {
		return []PathItem[NT, ET]{{NodeAttr: g.nodes[start].attr}}, 0
	}
	endP := g.nodes[end].p
	openSet := make(PriorityQueue, 1)
	openSetMap := make(map[int]*Item, 1) // openSet value -> openSet item
	closed := make(map[int]bool)
	cameFrom := make(map[int]int, 0)
	gScore := map[int]float64{start: 0}
	gDist := map[int]float64{start: 0}
	fScore := g.h.HeuristicEuclidean(g.nodes[start].p, endP)
	openSet[0] = &Item{Value: start, Priority: fScore, Index: 0}
	openSetMap[start] = openSet[0]
	heap.Init(&openSet)
	for openSet.Len() > 0 {
		cur := heap.Pop(&openSet).(*Item).Value
		delete(openSetMap, cur)
		if cur == end {
			return g.reconstructPath(cameFrom, cur), gScore[cur]
		}
		closed[cur] = true
		for _, e := range g.edges[cur] {
			if closed[e.to] {
				continue
			}
			tentative := gScore[cur] + w.GetRuntimeEdgeWeight(e.attr, e.cost)
			tentativeDist := gDist[cur] + e.distance
			s, ok := gScore[e.to]
			if ok && !Less(tentative, tentativeDist, s, gDist[e.to]) {
				continue
			}
			cameFrom[e.to] = cur
			gScore[e.to] = tentative
			gDist[e.to] = tentativeDist
			f := tentative + g.h.HeuristicEuclidean(g.nodes[e.to].p, endP)
			if item, inOpen := openSetMap[e.to]; inOpen {
				// 已经访问过的节点，修改其在heap中的优先级
				item.Priority = f
				item.Secondary = tentativeDist
				heap.Fix(&openSet, item.Index)
			} else {
				// 新访问的节点
				item := &Item{Value: e.to, Priority: f, Secondary: tentativeDist}
				heap.Push(&openSet, item)
				openSetMap[e.to] = item
			}
		}
	}
	return nil, INF
}
