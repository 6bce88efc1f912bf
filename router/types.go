package router

import "git.fiblab.net/sim/saferoute/geo"

type Request struct {
	Origin      geo.Point `json:"origin"`
	Destination geo.Point `json:"destination"`
}

// SafetyBreakdown holds the integer sub-scores of a route. Composite is a
// pure function of the sub-scores and the composite weights, see Composite.
type SafetyBreakdown struct {
	RoadType   int `json:"road_type"`
	Lighting   int `json:"lighting"`
	Crime      int `json:"crime"`
	CCTV       int `json:"cctv"`
	OpenPlaces int `json:"open_places"`
	// 公交站点密度
	Traffic    int `json:"traffic"`
	LitRoadPct int `json:"lit_road_pct"`
	Composite  int `json:"composite"`

	RoadTypes []RoadTypeShare `json:"road_types"`
}

type RoadTypeShare struct {
	Highway string `json:"highway"`
	Pct     int    `json:"pct"`
}

// SegmentScore is the score of one traversed street edge.
type SegmentScore struct {
	Highway     string  `json:"highway"`
	Name        string  `json:"name,omitempty"`
	Length      float64 `json:"length"`
	Lit         string  `json:"lit"`
	Surface     string  `json:"surface"`
	Safety      int     `json:"safety"`
	Pathfinding int     `json:"pathfinding"`
}

type POICount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

type Diagnostics struct {
	DeadEnds      int        `json:"dead_ends"`
	SidewalkPct   int        `json:"sidewalk_pct"`
	UnpavedPct    int        `json:"unpaved_pct"`
	TransitNearby int        `json:"transit_nearby"`
	CCTVNearby    int        `json:"cctv_nearby"`
	POIs          []POICount `json:"pois"`
}

type Route struct {
	ID       string  `json:"id"`
	Selected bool    `json:"selected"`
	Distance float64 `json:"distance"`
	// 步行时间/s
	Duration    float64         `json:"duration"`
	Polyline    string          `json:"polyline"`
	Safety      SafetyBreakdown `json:"safety"`
	Pathfinding int             `json:"pathfinding_score"`
	Confidence  float64         `json:"confidence"`
	Label       string          `json:"label"`
	Color       string          `json:"color"`
	Segments    []SegmentScore  `json:"segments"`
	Diagnostics Diagnostics     `json:"diagnostics"`

	segments []int
	variance float64
}

const (
	RankingSafety   = "safety"
	RankingDistance = "distance"

	SourceOK      = "ok"
	SourceEmpty   = "empty"
	SourceError   = "error"
	SourceTimeout = "timeout"
	SourceAbsent  = "absent"
)

type SourceStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// Timings are stage durations in milliseconds.
type Timings struct {
	Fetch  int64 `json:"fetch_ms"`
	Build  int64 `json:"build_ms"`
	Search int64 `json:"search_ms"`
	Score  int64 `json:"score_ms"`
}

type Metadata struct {
	Sources []SourceStatus `json:"sources"`
	Timings Timings        `json:"timings"`
	Ranking string         `json:"ranking"`
}

// RouteSet is the ranked answer for one origin/destination pair; Routes[0] is the selected route.
type RouteSet struct {
	ID       string   `json:"id"`
	Routes   []*Route `json:"routes"`
	Metadata Metadata `json:"metadata"`

	// Cached is set on results served from the result cache. It is not serialized
	// so that cached and fresh answers stay byte-identical.
	Cached bool `json:"-"`
}
