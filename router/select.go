package router

import (
	"math"
	"sort"

	"git.fiblab.net/sim/saferoute/config"
	"github.com/samber/lo"
)

// DISQUALIFIED is the effective score of routes whose data is too sparse to be
// recommended as the safest; they are still returned as options.
var DISQUALIFIED = math.Inf(-1)

// selectRoutes orders routes with the selected one first and returns the
// ranking used. When every route is below the confidence floor the safety
// ranking is not trusted and routes are ordered by distance instead.
func selectRoutes(routes []*Route, cfg config.Selection) ([]*Route, string) {
	if len(routes) == 0 {
		return routes, RankingDistance
	}
	ordered := make([]*Route, len(routes))
	copy(ordered, routes)
	index := make(map[*Route]int, len(routes))
	for i, r := range routes {
		index[r] = i
	}
	// 代价相同时依次比较距离、分段得分方差、原始顺序
	tieBreak := func(a, b *Route) bool {
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		if a.variance != b.variance {
			return a.variance < b.variance
		}
		return index[a] < index[b]
	}

	ranking := RankingSafety
	if lo.EveryBy(routes, func(r *Route) bool { return r.Confidence < cfg.ConfidenceFloor }) {
		ranking = RankingDistance
		sort.SliceStable(ordered, func(i, j int) bool { return tieBreak(ordered[i], ordered[j]) })
	} else {
		shortest := lo.MinBy(routes, func(a, b *Route) bool { return a.Distance < b.Distance }).Distance
		eff := make(map[*Route]float64, len(routes))
		for _, r := range routes {
			eff[r] = effectiveScore(r, shortest, cfg)
		}
		sort.SliceStable(ordered, func(i, j int) bool {
			a, b := ordered[i], ordered[j]
			if eff[a] != eff[b] {
				return eff[a] > eff[b]
			}
			return tieBreak(a, b)
		})
	}
	for i, r := range ordered {
		r.Selected = i == 0
	}
	return ordered, ranking
}

// effectiveScore rewards both safety and brevity.
func effectiveScore(r *Route, shortest float64, cfg config.Selection) float64 {
	if r.Confidence < cfg.ConfidenceFloor {
		return DISQUALIFIED
	}
	if r.Distance <= 0 {
		return float64(r.Pathfinding) + cfg.BrevityBonus
	}
	return float64(r.Pathfinding) + shortest/r.Distance*cfg.BrevityBonus
}
