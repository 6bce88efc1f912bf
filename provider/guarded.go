package provider

import (
	"context"
	"fmt"
	"math"
	"time"

	"git.fiblab.net/sim/saferoute/cache"
	"git.fiblab.net/sim/saferoute/config"
	"git.fiblab.net/sim/saferoute/geo"
	"git.fiblab.net/sim/saferoute/metrics"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Limiter guards one upstream provider: at most MaxConcurrent calls in flight
// (waiters are served in submission order), a minimum spacing between calls,
// duplicate suppression for identical keys and bounded retries.
type Limiter struct {
	name     string
	sem      *semaphore.Weighted
	spacing  *rate.Limiter
	group    singleflight.Group
	timeout  time.Duration
	attempts int
	base     time.Duration
	maxDelay time.Duration
}

func NewLimiter(name string, cfg config.Upstream) *Limiter {
	spacing := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinSpacing > 0 {
		spacing = rate.NewLimiter(rate.Every(cfg.MinSpacing), 1)
	}
	return &Limiter{
		name:     name,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		spacing:  spacing,
		timeout:  cfg.Timeout,
		attempts: max(cfg.MaxAttempts, 1),
		base:     cfg.RetryBaseDelay,
		maxDelay: cfg.RetryMaxDelay,
	}
}

func (l *Limiter) call(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	var lastErr error
	for attempt := 0; attempt < l.attempts; attempt++ {
		if attempt > 0 {
			delay := l.base * time.Duration(1<<uint(attempt-1))
			if l.maxDelay > 0 && delay > l.maxDelay {
				delay = l.maxDelay
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			log.Debugf("retrying %s, attempt %d: %v", l.name, attempt+1, lastErr)
		}
		v, err := l.once(ctx, fn)
		if err == nil {
			metrics.UpstreamCalls.WithLabelValues(l.name, "ok").Inc()
			return v, nil
		}
		lastErr = err
		if !IsTransient(err) || ctx.Err() != nil {
			break
		}
		metrics.UpstreamCalls.WithLabelValues(l.name, "retry").Inc()
	}
	metrics.UpstreamCalls.WithLabelValues(l.name, "error").Inc()
	return nil, fmt.Errorf("%s: %w", l.name, lastErr)
}

func (l *Limiter) once(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)
	if err := l.spacing.Wait(ctx); err != nil {
		return nil, err
	}
	return fn(ctx)
}

func (l *Limiter) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

// Do runs fn through the geodata cache, the duplicate suppression group and the limiter.
// The shared call is detached from the cancellation of whichever caller
// started it and bounded by the upstream timeout instead; each caller still
// stops waiting when its own ctx ends.
func Do[T any](ctx context.Context, l *Limiter, geodata *cache.Cache[any], key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if geodata != nil {
		if v, ok := geodata.Get(key); ok {
			if t, ok := v.(T); ok {
				return t, nil
			}
		}
	}
	ch := l.group.DoChan(key, func() (any, error) {
		callCtx, cancel := l.detach(ctx)
		defer cancel()
		v, err := l.call(callCtx, func(ctx context.Context) (any, error) { return fn(ctx) })
		if err != nil {
			return nil, err
		}
		if geodata != nil {
			geodata.Set(key, v)
		}
		return v, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Guarded wraps Providers with per-provider limiters and the shared geodata
// cache. Query areas are snapped outward to cells of CellDelta degrees so
// that overlapping requests share cache entries.
type Guarded struct {
	inner     Providers
	geodata   *cache.Cache[any]
	cellDelta float64

	streets, places, crimes, transit *Limiter
}

func NewGuarded(inner Providers, cfg config.Upstream, geodata *cache.Cache[any], cellDelta float64) *Guarded {
	return &Guarded{
		inner:     inner,
		geodata:   geodata,
		cellDelta: cellDelta,
		streets:   NewLimiter("streets", cfg),
		places:    NewLimiter("places", cfg),
		crimes:    NewLimiter("crimes", cfg),
		transit:   NewLimiter("transit", cfg),
	}
}

// Providers exposes g as a Providers value, leaving absent collaborators nil.
func (g *Guarded) Providers() Providers {
	p := Providers{Streets: guardedStreets{g}}
	if g.inner.Places != nil {
		p.Places = guardedPlaces{g}
	}
	if g.inner.Crimes != nil {
		p.Crimes = guardedCrimes{g}
	}
	if g.inner.Transit != nil {
		p.Transit = guardedTransit{g}
	}
	return p
}

func boundKey(b orb.Bound) string {
	return fmt.Sprintf("%.5f,%.5f,%.5f,%.5f", b.Min[0], b.Min[1], b.Max[0], b.Max[1])
}

// snapCircle moves p to its cell center and grows radius so the new circle covers the old one.
func (g *Guarded) snapCircle(p geo.Point, radius float64) (geo.Point, float64) {
	half := g.cellDelta / 2
	c := geo.Point{
		Lat: math.Floor(p.Lat/g.cellDelta)*g.cellDelta + half,
		Lng: math.Floor(p.Lng/g.cellDelta)*g.cellDelta + half,
	}
	r := math.Ceil((radius+geo.Distance(c, p))/100) * 100
	return c, r
}

type guardedStreets struct{ g *Guarded }

func (s guardedStreets) WaysInBound(ctx context.Context, b orb.Bound) (osm.Ways, error) {
	b = geo.SnapBound(b, s.g.cellDelta)
	return Do(ctx, s.g.streets, s.g.geodata, "streets:"+boundKey(b), func(ctx context.Context) (osm.Ways, error) {
		return s.g.inner.Streets.WaysInBound(ctx, b)
	})
}

type guardedPlaces struct{ g *Guarded }

func (s guardedPlaces) PlacesNear(ctx context.Context, p geo.Point, radius float64) ([]Place, error) {
	c, r := s.g.snapCircle(p, radius)
	key := fmt.Sprintf("places:%.5f,%.5f,%.0f", c.Lat, c.Lng, r)
	return Do(ctx, s.g.places, s.g.geodata, key, func(ctx context.Context) ([]Place, error) {
		return s.g.inner.Places.PlacesNear(ctx, c, r)
	})
}

type guardedCrimes struct{ g *Guarded }

func (s guardedCrimes) CrimesInPolygon(ctx context.Context, poly orb.Polygon) ([]CrimeIncident, error) {
	b := geo.SnapBound(poly.Bound(), s.g.cellDelta)
	return Do(ctx, s.g.crimes, s.g.geodata, "crimes:"+boundKey(b), func(ctx context.Context) ([]CrimeIncident, error) {
		return s.g.inner.Crimes.CrimesInPolygon(ctx, geo.BoundPolygon(b))
	})
}

type guardedTransit struct{ g *Guarded }

func (s guardedTransit) StopsNear(ctx context.Context, p geo.Point, radius float64) ([]TransitStop, error) {
	c, r := s.g.snapCircle(p, radius)
	key := fmt.Sprintf("transit:%.5f,%.5f,%.0f", c.Lat, c.Lng, r)
	return Do(ctx, s.g.transit, s.g.geodata, key, func(ctx context.Context) ([]TransitStop, error) {
		return s.g.inner.Transit.StopsNear(ctx, c, r)
	})
}
