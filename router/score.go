package router

import (
	"math"
	"sort"

	"git.fiblab.net/sim/saferoute/config"
	"git.fiblab.net/sim/saferoute/geo"
	"git.fiblab.net/sim/saferoute/provider"
	"git.fiblab.net/sim/saferoute/spatial"
	"github.com/samber/lo"
)

// geodata is the fetched context of one request, bucketed for radius queries.
type geodata struct {
	crimes  []provider.CrimeIncident
	places  []provider.Place
	cameras []provider.Place
	stops   []provider.TransitStop

	crimeIndex  *spatial.Index[int]
	placeIndex  *spatial.Index[int]
	cameraIndex *spatial.Index[int]
	stopIndex   *spatial.Index[int]
}

func newGeodata(f *fetched, refLat float64) *geodata {
	d := &geodata{
		crimes:      f.crimes,
		stops:       f.stops,
		crimeIndex:  spatial.New[int](spatial.DEFAULT_CELL_SIZE, refLat),
		placeIndex:  spatial.New[int](spatial.DEFAULT_CELL_SIZE, refLat),
		cameraIndex: spatial.New[int](spatial.DEFAULT_CELL_SIZE, refLat),
		stopIndex:   spatial.New[int](spatial.DEFAULT_CELL_SIZE, refLat),
	}
	for _, p := range f.places {
		if p.IsSurveillance() {
			d.cameras = append(d.cameras, p)
		} else {
			d.places = append(d.places, p)
		}
	}
	for i, c := range d.crimes {
		d.crimeIndex.Insert(i, c.Point)
	}
	for i, p := range d.places {
		d.placeIndex.Insert(i, p.Point)
	}
	for i, p := range d.cameras {
		d.cameraIndex.Insert(i, p.Point)
	}
	for i, s := range d.stops {
		d.stopIndex.Insert(i, s.Point)
	}
	return d
}

// factors are the normalized [0,1] safety factors of a stretch of street.
type factors struct {
	RoadType    float64
	Lighting    float64
	LitFraction float64
	Crime       float64
	CCTV        float64
	OpenPlaces  float64
	Traffic     float64
}

// nearby are the deduplicated features found along a stretch of street.
type nearby struct {
	crimes  int
	cameras int
	stops   int
	places  map[provider.PlaceCategory]int
}

type scorer struct {
	cfg  *config.Scoring
	data *geodata
}

// pathfinding is the crime-free score in [0,1] used to weight search edges.
func (s *scorer) pathfinding(f factors) float64 {
	w := s.cfg.Pathfinding
	return (w.MainRoad*f.RoadType + w.Lighting*f.Lighting + w.LitFraction*f.LitFraction) / w.Sum()
}

// roadFactors computes the factors that only depend on street attributes.
func (s *scorer) roadFactors(segs []*segment) factors {
	var total, road, lit, explicitLen, explicitLit, inferredLen, inferredLit float64
	for _, seg := range segs {
		total += seg.Length
		road += seg.Length * roadTypeScore(seg.Highway)
		if seg.lit() {
			lit += seg.Length
		}
		switch seg.Lit {
		case LIT_YES:
			explicitLen += seg.Length
			explicitLit += seg.Length
		case LIT_NO:
			explicitLen += seg.Length
		default:
			inferredLen += seg.Length
			inferredLit += seg.Length * lightingLikelihood(seg.Highway)
		}
	}
	if total <= 0 {
		return factors{}
	}
	f := factors{RoadType: road / total, LitFraction: lit / total}
	switch {
	case explicitLen > 0 && inferredLen > 0:
		share := s.cfg.ExplicitLit
		f.Lighting = share*explicitLit/explicitLen + (1-share)*inferredLit/inferredLen
	case explicitLen > 0:
		f.Lighting = explicitLit / explicitLen
	default:
		f.Lighting = inferredLit / inferredLen
	}
	return f
}

// collect gathers the distinct features of index within radius of any sample point.
func collect(index *spatial.Index[int], samples []geo.Point, radius float64) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, p := range samples {
		for _, id := range index.QueryNear(p, radius) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Ints(ids)
	return ids
}

// density maps a per-kilometer count onto [0,1], saturating at d.Saturation.
func density(count, km float64, d config.Density) float64 {
	if d.Saturation <= 0 {
		return 0
	}
	return lo.Clamp(count/km/d.Saturation, 0, 1)
}

// score computes every factor of the stretch made of segs along line.
func (s *scorer) score(segs []*segment, line []geo.Point) (factors, nearby) {
	f := s.roadFactors(segs)
	length := lo.SumBy(segs, func(seg *segment) float64 { return seg.Length })
	km := math.Max(length, 1) / 1000
	samples := geo.Sample(line, s.cfg.SampleStep)
	n := nearby{places: make(map[provider.PlaceCategory]int)}

	crimes := collect(s.data.crimeIndex, samples, s.cfg.Crime.Radius)
	n.crimes = len(crimes)
	weighted := lo.SumBy(crimes, func(i int) float64 {
		if w := s.data.crimes[i].Weight; w > 0 {
			return w
		}
		return 1
	})
	f.Crime = 1 - density(weighted, km, s.cfg.Crime)

	cameras := collect(s.data.cameraIndex, samples, s.cfg.CCTV.Radius)
	n.cameras = len(cameras)
	f.CCTV = density(float64(len(cameras)), km, s.cfg.CCTV)

	open := 0.0
	for _, i := range collect(s.data.placeIndex, samples, s.cfg.OpenPlaces.Radius) {
		p := s.data.places[i]
		n.places[p.Category]++
		switch {
		case p.OpenNow == nil:
			open += s.cfg.UnknownOpenWeight
		case *p.OpenNow:
			open++
		}
	}
	f.OpenPlaces = density(open, km, s.cfg.OpenPlaces)

	stops := collect(s.data.stopIndex, samples, s.cfg.Transit.Radius)
	n.stops = len(stops)
	f.Traffic = density(float64(len(stops)), km, s.cfg.Transit)
	return f, n
}

func pct(v float64) int {
	return lo.Clamp(int(math.Round(v*100)), 0, 100)
}

// breakdown converts factors into integer sub-scores and their composite.
func breakdown(f factors, w config.CompositeWeights) SafetyBreakdown {
	b := SafetyBreakdown{
		RoadType:   pct(f.RoadType),
		Lighting:   pct(f.Lighting),
		Crime:      pct(f.Crime),
		CCTV:       pct(f.CCTV),
		OpenPlaces: pct(f.OpenPlaces),
		Traffic:    pct(f.Traffic),
		LitRoadPct: pct(f.LitFraction),
	}
	b.Composite = Composite(b, w)
	return b
}

// Composite recomputes the 1-100 composite score from persisted sub-scores.
// CCTV is reported but carries no composite weight.
func Composite(b SafetyBreakdown, w config.CompositeWeights) int {
	sum := w.Sum()
	if sum <= 0 {
		return 1
	}
	s := (w.Crime*float64(b.Crime) +
		w.Lighting*float64(b.Lighting) +
		w.MainRoad*float64(b.RoadType) +
		w.Activity*float64(b.OpenPlaces) +
		w.Transit*float64(b.Traffic) +
		w.LitFraction*float64(b.LitRoadPct)) / sum
	return lo.Clamp(int(math.Round(s)), 1, 100)
}

// PathfindingScore is the 0-100 crime-free score of a breakdown.
func PathfindingScore(b SafetyBreakdown, w config.PathfindingWeights) int {
	sum := w.Sum()
	if sum <= 0 {
		return 0
	}
	s := (w.MainRoad*float64(b.RoadType) + w.Lighting*float64(b.Lighting) + w.LitFraction*float64(b.LitRoadPct)) / sum
	return lo.Clamp(int(math.Round(s)), 0, 100)
}

// roadTypes is the length share of each highway class, largest first.
func roadTypes(segs []*segment) []RoadTypeShare {
	total := 0.0
	byClass := make(map[string]float64)
	for _, s := range segs {
		byClass[s.Highway] += s.Length
		total += s.Length
	}
	shares := make([]RoadTypeShare, 0, len(byClass))
	for h, l := range byClass {
		shares = append(shares, RoadTypeShare{Highway: h, Pct: pct(l / math.Max(total, 1e-9))})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Pct != shares[j].Pct {
			return shares[i].Pct > shares[j].Pct
		}
		return shares[i].Highway < shares[j].Highway
	})
	return shares
}

// setCosts weights every search edge by length over its pathfinding score.
func (s *scorer) setCosts(g *streetGraph, minScore float64) error {
	for _, seg := range g.segments {
		score := math.Max(s.pathfinding(s.roadFactors([]*segment{seg})), minScore)
		cost := seg.Length / score
		if err := g.search.SetEdgeCost(seg.From, seg.To, cost); err != nil {
			return err
		}
		if err := g.search.SetEdgeCost(seg.To, seg.From, cost); err != nil {
			return err
		}
	}
	return nil
}
