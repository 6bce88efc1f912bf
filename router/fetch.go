package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"git.fiblab.net/sim/saferoute/geo"
	"git.fiblab.net/sim/saferoute/provider"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"golang.org/x/sync/errgroup"
)

const (
	SOURCE_STREETS  = "streets"
	SOURCE_LIGHTING = "lighting"
	SOURCE_CRIMES   = "crimes"
	SOURCE_PLACES   = "places"
	SOURCE_TRANSIT  = "transit"
)

// fetched is what arrived from the collaborators before the deadline.
type fetched struct {
	ways   osm.Ways
	crimes []provider.CrimeIncident
	places []provider.Place
	stops  []provider.TransitStop

	status map[string]SourceStatus
	// 路网获取失败的原因，nil表示成功
	streetsErr error
}

func (f *fetched) set(name string, n int, err error) {
	st := SourceStatus{Name: name, Status: SourceOK, Count: n}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		st.Status = SourceTimeout
	case err != nil:
		st.Status = SourceError
	case n == 0:
		st.Status = SourceEmpty
	}
	f.status[name] = st
}

// fetch queries every collaborator concurrently for the area b. It returns
// when all of them answered or timeout elapsed, whichever comes first; late
// answers are dropped. A missing street network is reported in streetsErr.
func fetch(ctx context.Context, p provider.Providers, b orb.Bound, searchRadius float64, timeout time.Duration) *fetched {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	out := &fetched{status: make(map[string]SourceStatus)}
	for _, name := range []string{SOURCE_CRIMES, SOURCE_PLACES, SOURCE_TRANSIT} {
		out.status[name] = SourceStatus{Name: name, Status: SourceAbsent}
	}
	center, radius := geo.BoundRadius(b)
	radius += searchRadius

	var g errgroup.Group
	g.Go(func() error {
		ways, err := p.Streets.WaysInBound(ctx, b)
		mu.Lock()
		defer mu.Unlock()
		out.ways, out.streetsErr = ways, err
		out.set(SOURCE_STREETS, len(ways), err)
		return err
	})
	if p.Crimes != nil {
		g.Go(func() error {
			crimes, err := p.Crimes.CrimesInPolygon(ctx, geo.BoundPolygon(b))
			mu.Lock()
			defer mu.Unlock()
			out.crimes = crimes
			out.set(SOURCE_CRIMES, len(crimes), err)
			return nil
		})
	}
	if p.Places != nil {
		g.Go(func() error {
			places, err := p.Places.PlacesNear(ctx, center, radius)
			mu.Lock()
			defer mu.Unlock()
			out.places = places
			out.set(SOURCE_PLACES, len(places), err)
			return nil
		})
	}
	if p.Transit != nil {
		g.Go(func() error {
			stops, err := p.Transit.StopsNear(ctx, center, radius)
			mu.Lock()
			defer mu.Unlock()
			out.stops = stops
			out.set(SOURCE_TRANSIT, len(stops), err)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warnf("fetch deadline reached for %v, continuing with partial data", b)
	}

	mu.Lock()
	defer mu.Unlock()
	// 截止时仍未返回的数据源记为超时
	snapshot := &fetched{
		ways:       out.ways,
		crimes:     out.crimes,
		places:     out.places,
		stops:      out.stops,
		streetsErr: out.streetsErr,
		status:     make(map[string]SourceStatus, len(out.status)+1),
	}
	for k, v := range out.status {
		snapshot.status[k] = v
	}
	if _, ok := snapshot.status[SOURCE_STREETS]; !ok {
		snapshot.status[SOURCE_STREETS] = SourceStatus{Name: SOURCE_STREETS, Status: SourceTimeout}
		snapshot.streetsErr = context.DeadlineExceeded
	}
	for _, name := range []string{SOURCE_CRIMES, SOURCE_PLACES, SOURCE_TRANSIT} {
		if st := snapshot.status[name]; st.Status == SourceAbsent && sourceSet(p, name) {
			snapshot.status[name] = SourceStatus{Name: name, Status: SourceTimeout}
		}
	}
	for name, st := range snapshot.status {
		if st.Status == SourceError || st.Status == SourceTimeout {
			log.Warnf("source %s degraded (%s) for %v", name, st.Status, b)
		}
	}
	return snapshot
}

func sourceSet(p provider.Providers, name string) bool {
	switch name {
	case SOURCE_CRIMES:
		return p.Crimes != nil
	case SOURCE_PLACES:
		return p.Places != nil
	case SOURCE_TRANSIT:
		return p.Transit != nil
	}
	return true
}
