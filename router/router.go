// Package router computes safety-scored walking routes.
//
// A request fetches the street network and its context (crimes, places,
// transit) for the area around origin and destination, builds a routable
// graph, weights every edge by a crime-free pathfinding score, searches a
// handful of distinct routes and ranks them, falling back to a distance
// ranking when the data is too sparse to trust.
package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"git.fiblab.net/sim/saferoute/cache"
	"git.fiblab.net/sim/saferoute/config"
	"git.fiblab.net/sim/saferoute/geo"
	"git.fiblab.net/sim/saferoute/metrics"
	"git.fiblab.net/sim/saferoute/provider"
	"git.fiblab.net/sim/saferoute/router/algo"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var ROUTE_NAMESPACE = uuid.NewSHA1(uuid.NameSpaceURL, []byte("saferoute/route"))

type Router struct {
	cfg       *config.Config
	providers provider.Providers
	clock     cache.Clock
	geodata   *cache.Cache[any]
	results   *cache.Cache[*RouteSet]
	// 由Router创建的缓存在Close时关闭
	owned []interface{ Close() }
}

type Option func(*Router)

// WithClock sets the clock of the caches created by New.
func WithClock(c cache.Clock) Option {
	return func(r *Router) { r.clock = c }
}

// WithGeodataCache shares an existing geodata cache between routers.
func WithGeodataCache(c *cache.Cache[any]) Option {
	return func(r *Router) { r.geodata = c }
}

func WithResultCache(c *cache.Cache[*RouteSet]) Option {
	return func(r *Router) { r.results = c }
}

// New creates a router over the given collaborators. Calls to them are
// rate limited, deduplicated, retried and cached. providers.Streets is required.
func New(cfg *config.Config, providers provider.Providers, opts ...Option) *Router {
	if providers.Streets == nil {
		log.Panic("street network provider is required")
	}
	r := &Router{cfg: cfg, clock: cache.SystemClock}
	for _, opt := range opts {
		opt(r)
	}
	if r.geodata == nil {
		r.geodata = cache.New[any](cfg.Caches.GeodataTTL,
			cache.WithClock(r.clock),
			cache.WithMaxSize(cfg.Caches.GeodataSize),
			cache.WithName("geodata"),
		)
		r.owned = append(r.owned, r.geodata)
	}
	if r.results == nil {
		r.results = cache.New[*RouteSet](cfg.Caches.ResultTTL,
			cache.WithClock(r.clock),
			cache.WithMaxSize(cfg.Caches.ResultSize),
			cache.WithName("result"),
		)
		r.owned = append(r.owned, r.results)
	}
	r.providers = provider.NewGuarded(providers, cfg.Upstream, r.geodata, cfg.Search.GeodataCellDelta).Providers()
	return r
}

func (r *Router) Close() {
	for _, c := range r.owned {
		c.Close()
	}
}

func (r *Router) resultKey(req Request) string {
	q := r.cfg.Search.ResultPrecision
	return fmt.Sprintf("%.6f,%.6f:%.6f,%.6f",
		geo.Quantize(req.Origin.Lat, q), geo.Quantize(req.Origin.Lng, q),
		geo.Quantize(req.Destination.Lat, q), geo.Quantize(req.Destination.Lng, q),
	)
}

// Route computes the ranked routes of req. Results are cached by rounded
// coordinates; a result computed under a token that is no longer current is
// dropped with STALE_REQUEST and never cached.
func (r *Router) Route(ctx context.Context, req Request, tok Token) (rs *RouteSet, err error) {
	defer func() {
		code := "ok"
		if err != nil {
			code = string(CodeOf(err))
		}
		metrics.RouteRequests.WithLabelValues(code).Inc()
	}()

	if !req.Origin.Valid() || !req.Destination.Valid() {
		return nil, newError(InvalidCoordinates, nil, "invalid coordinates: origin %v, destination %v", req.Origin, req.Destination)
	}
	if d := geo.Distance(req.Origin, req.Destination); d > r.cfg.Search.RangeCeiling {
		return nil, newError(DestinationOutOfRange, nil,
			"destination %v is %.0fm from origin %v, beyond the %.0fm walking limit",
			req.Destination, d, req.Origin, r.cfg.Search.RangeCeiling)
	}
	key := r.resultKey(req)
	if cached, ok := r.results.Get(key); ok {
		cp := *cached
		cp.Cached = true
		return &cp, nil
	}
	rs, err = r.compute(ctx, req, key, tok)
	if err != nil {
		var e *Error
		if !errors.As(err, &e) {
			err = newError(InternalError, err, "route computation failed for %v -> %v", req.Origin, req.Destination)
		}
		if CodeOf(err) == InternalError {
			log.Errorf("route %v -> %v: %v", req.Origin, req.Destination, err)
		}
		return nil, err
	}
	if !tok.Current() {
		return nil, newError(StaleRequest, nil, "request for %v -> %v was superseded", req.Origin, req.Destination)
	}
	r.results.Set(key, rs)
	return rs, nil
}

func (r *Router) compute(ctx context.Context, req Request, key string, tok Token) (*RouteSet, error) {
	cfg := r.cfg
	var timings Timings

	start := time.Now()
	b := geo.BoundAround(cfg.Search.BoundMargin, req.Origin, req.Destination)
	log.Debugf("routing %v -> %v in %v", req.Origin, req.Destination, b)
	f := fetch(ctx, r.providers, b, r.searchRadius(), cfg.Upstream.Timeout)
	timings.Fetch = metrics.ObserveStage("fetch", start).Milliseconds()
	if err := ctx.Err(); err != nil {
		// 调用方已放弃请求
		return nil, newError(StaleRequest, err, "request for %v -> %v was abandoned", req.Origin, req.Destination)
	}
	if !tok.Current() {
		return nil, newError(StaleRequest, nil, "request for %v -> %v was superseded", req.Origin, req.Destination)
	}
	if f.streetsErr != nil {
		return nil, newError(GraphEmpty, f.streetsErr, "street network unavailable between %v and %v", req.Origin, req.Destination)
	}

	start = time.Now()
	g, err := buildGraph(f.ways)
	if err != nil {
		return nil, newError(GraphEmpty, err, "no walkable streets between %v and %v", req.Origin, req.Destination)
	}
	// 吸附可能切分路段，须在设置边权之前完成
	from, ok := g.snap(req.Origin, cfg.Search.SnapTolerance)
	if !ok {
		return nil, newError(NoNearbyRoad, nil, "no walkable road within %.0fm of origin %v", cfg.Search.SnapTolerance, req.Origin)
	}
	to, ok := g.snap(req.Destination, cfg.Search.SnapTolerance)
	if !ok {
		return nil, newError(NoNearbyRoad, nil, "no walkable road within %.0fm of destination %v", cfg.Search.SnapTolerance, req.Destination)
	}
	data := newGeodata(f, req.Origin.Lat)
	sc := &scorer{cfg: &cfg.Scoring, data: data}
	if err := sc.setCosts(g, cfg.Search.MinScore); err != nil {
		return nil, err
	}
	timings.Build = metrics.ObserveStage("build", start).Milliseconds()

	start = time.Now()
	cands, err := g.searchWalking(from, to, cfg.Search)
	if err != nil {
		var e *Error
		if errors.As(err, &e) && e.Code == NoRouteFound {
			e.Message = fmt.Sprintf("%s (%v -> %v)", e.Message, req.Origin, req.Destination)
		}
		return nil, err
	}
	timings.Search = metrics.ObserveStage("search", start).Milliseconds()

	start = time.Now()
	setID := uuid.NewSHA1(ROUTE_NAMESPACE, []byte(key))
	seen := make(map[string]bool)
	routes := make([]*Route, 0, len(cands))
	for _, c := range cands {
		route := r.assemble(g, sc, c)
		if seen[route.Polyline] {
			continue
		}
		seen[route.Polyline] = true
		route.ID = uuid.NewSHA1(setID, []byte(route.Polyline)).String()
		routes = append(routes, route)
	}
	ordered, ranking := selectRoutes(routes, cfg.Selection)
	timings.Score = metrics.ObserveStage("score", start).Milliseconds()

	return &RouteSet{
		ID:     setID.String(),
		Routes: ordered,
		Metadata: Metadata{
			Sources: sources(f, g),
			Timings: timings,
			Ranking: ranking,
		},
	}, nil
}

// searchRadius is the largest feature radius, used to pad POI queries.
func (r *Router) searchRadius() float64 {
	s := r.cfg.Scoring
	return lo.Max([]float64{s.Crime.Radius, s.CCTV.Radius, s.OpenPlaces.Radius, s.Transit.Radius})
}

// assemble scores a candidate and fills in everything but its ID and rank.
func (r *Router) assemble(g *streetGraph, sc *scorer, c candidate) *Route {
	cfg := r.cfg
	segs := lo.Map(c.segments, func(id int, _ int) *segment { return g.segments[id] })
	line := g.line(c)
	f, near := sc.score(segs, line)
	b := breakdown(f, cfg.Scoring.Composite)
	b.RoadTypes = roadTypes(segs)
	conf := r.confidence(g, sc.data, line)
	label := Label(b.Composite, conf, cfg.Selection.ConfidenceFloor)

	scores := make([]SegmentScore, len(segs))
	safety := make([]float64, len(segs))
	for i, s := range segs {
		ef, _ := sc.score([]*segment{s}, s.Line)
		eb := breakdown(ef, cfg.Scoring.Composite)
		scores[i] = SegmentScore{
			Highway:     s.Highway,
			Name:        s.Name,
			Length:      math.Round(s.Length*10) / 10,
			Lit:         s.Lit,
			Surface:     s.Surface,
			Safety:      eb.Composite,
			Pathfinding: PathfindingScore(eb, cfg.Scoring.Pathfinding),
		}
		safety[i] = float64(eb.Composite)
	}

	distance := math.Round(c.distance*10) / 10
	return &Route{
		Distance:    distance,
		Duration:    math.Round(c.distance / cfg.Search.WalkingSpeed),
		Polyline:    geo.EncodePolyline(line),
		Safety:      b,
		Pathfinding: PathfindingScore(b, cfg.Scoring.Pathfinding),
		Confidence:  conf,
		Label:       label.Label,
		Color:       label.Color,
		Segments:    scores,
		Diagnostics: diagnose(g, c, segs, near),
		segments:    c.segments,
		variance:    algo.Variance(safety),
	}
}

// confidence adds one source weight per collaborator that returned data
// within the padded area of the route.
func (r *Router) confidence(g *streetGraph, data *geodata, line []geo.Point) float64 {
	area := geo.BoundAround(r.searchRadius(), line...)
	w := r.cfg.Selection.SourceWeight
	inArea := func(p geo.Point) bool { return geo.BoundContains(area, p) }
	// 路网本身提供了这条路线
	c := w
	if lo.SomeBy(g.segments, func(s *segment) bool { return s.Lit != LIT_UNKNOWN && lo.SomeBy(s.Line, inArea) }) {
		c += w
	}
	if lo.SomeBy(data.crimes, func(x provider.CrimeIncident) bool { return inArea(x.Point) }) {
		c += w
	}
	if lo.SomeBy(data.places, func(p provider.Place) bool { return inArea(p.Point) }) ||
		lo.SomeBy(data.cameras, func(p provider.Place) bool { return inArea(p.Point) }) {
		c += w
	}
	if lo.SomeBy(data.stops, func(s provider.TransitStop) bool { return inArea(s.Point) }) {
		c += w
	}
	return math.Round(math.Min(c, 1)*100) / 100
}

func diagnose(g *streetGraph, c candidate, segs []*segment, near nearby) Diagnostics {
	onRoute := lo.Associate(c.nodes, func(n int) (int, bool) { return n, true })
	deadEnds := make(map[int]bool)
	for _, n := range c.nodes {
		for _, sid := range g.adj[n] {
			o := g.other(g.segments[sid], n)
			if !onRoute[o] && len(g.adj[o]) == 1 {
				deadEnds[o] = true
			}
		}
	}
	var total, sidewalk, unpaved float64
	for _, s := range segs {
		total += s.Length
		if s.Sidewalk {
			sidewalk += s.Length
		}
		if s.Surface == SURFACE_UNPAVED {
			unpaved += s.Length
		}
	}
	total = math.Max(total, 1e-9)
	pois := make([]POICount, 0, len(near.places))
	for cat, n := range near.places {
		pois = append(pois, POICount{Category: string(cat), Count: n})
	}
	sort.Slice(pois, func(i, j int) bool { return pois[i].Category < pois[j].Category })
	return Diagnostics{
		DeadEnds:      len(deadEnds),
		SidewalkPct:   pct(sidewalk / total),
		UnpavedPct:    pct(unpaved / total),
		TransitNearby: near.stops,
		CCTVNearby:    near.cameras,
		POIs:          pois,
	}
}

// sources reports the data quality of every collaborator in a fixed order.
func sources(f *fetched, g *streetGraph) []SourceStatus {
	explicit := lo.CountBy(g.segments, func(s *segment) bool { return s.Lit != LIT_UNKNOWN })
	lighting := SourceStatus{Name: SOURCE_LIGHTING, Status: SourceOK, Count: explicit}
	if explicit == 0 {
		lighting.Status = SourceEmpty
	}
	return []SourceStatus{
		f.status[SOURCE_STREETS],
		lighting,
		f.status[SOURCE_CRIMES],
		f.status[SOURCE_PLACES],
		f.status[SOURCE_TRANSIT],
	}
}
