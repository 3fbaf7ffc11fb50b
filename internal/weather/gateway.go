package weather

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/skysched/flightwx/internal/breaker"
	"github.com/skysched/flightwx/internal/logger"
	"github.com/skysched/flightwx/internal/retry"
	"github.com/skysched/flightwx/internal/types"
)

// ErrWeatherUnavailable means every provider and the cache were exhausted.
// Callers must treat this as "cannot confirm safety", never as "safe".
var ErrWeatherUnavailable = errors.New("weather unavailable from all providers")

const (
	breakerFailureThreshold = 5
	breakerSuccessThreshold = 2
	breakerResetTimeout     = 60 * time.Second

	// singleProviderConfidence applies when cross-validation only got one
	// reading to work with.
	singleProviderConfidence = 0.80
)

// Gateway is the dual-provider weather client. It owns the shared cache and
// one circuit breaker per provider; both are safe under concurrent lookups.
type Gateway struct {
	providers []Provider // priority order: primary first
	breakers  map[string]*breaker.Breaker
	cache     *Cache
	policy    retry.Policy
	log       *logger.Logger
}

// NewGateway constructs a gateway over the given providers in priority order.
func NewGateway(providers []Provider, cache *Cache, log *logger.Logger) *Gateway {
	breakers := make(map[string]*breaker.Breaker, len(providers))
	for _, p := range providers {
		breakers[p.Name()] = breaker.New(breakerFailureThreshold, breakerSuccessThreshold, breakerResetTimeout)
	}
	return &Gateway{
		providers: providers,
		breakers:  breakers,
		cache:     cache,
		policy:    retry.DefaultPolicy,
		log:       log,
	}
}

// Get returns a reading for the coordinate at the given time. Cache first,
// then the primary provider through its breaker with jittered retry, then
// the secondary the same way. Fails only when everything is exhausted.
func (g *Gateway) Get(ctx context.Context, coord types.Coordinate, at time.Time) (*types.WeatherReading, error) {
	for _, p := range g.providers {
		if r, ok := g.cache.Get(CacheKey(coord, at, p.Name())); ok {
			return r, nil
		}
	}

	var errs []error
	for _, p := range g.providers {
		reading, err := g.fetchWithRetry(ctx, p, coord, at)
		if err != nil {
			g.log.Warn("provider fetch failed", "provider", p.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		g.cache.Put(CacheKey(coord, at, p.Name()), reading)
		return reading, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrWeatherUnavailable, errors.Join(errs...))
}

// fetchWithRetry runs one provider through its breaker under the retry
// policy. An open breaker short-circuits without burning retry delays.
func (g *Gateway) fetchWithRetry(ctx context.Context, p Provider, coord types.Coordinate, at time.Time) (*types.WeatherReading, error) {
	br := g.breakers[p.Name()]
	if br.State() == breaker.StateOpen {
		return nil, breaker.ErrOpen
	}

	var reading *types.WeatherReading
	err := retry.Do(ctx, g.policy, func() error {
		return br.Execute(func() error {
			r, ferr := p.Fetch(ctx, coord, at)
			if ferr != nil {
				return ferr
			}
			reading = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return reading, nil
}

// CrossValidate queries both providers and scores their agreement. A fresh
// cached reading stands in for its provider without a new fetch; only cache
// misses hit the network, concurrently. Either provider may fail; with a
// single reading the confidence is 0.80, with both it is the fraction of
// three agreement checks passed (visibility within 10%, wind speed within
// 15%, temperature within 5%). Confidence is a fraction in [0,1].
func (g *Gateway) CrossValidate(ctx context.Context, coord types.Coordinate, at time.Time) (*types.WeatherReading, float64, error) {
	readings := make([]*types.WeatherReading, len(g.providers))
	var wg sync.WaitGroup
	for i, p := range g.providers {
		if r, ok := g.cache.Get(CacheKey(coord, at, p.Name())); ok {
			readings[i] = r
			continue
		}
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			r, err := g.fetchWithRetry(ctx, p, coord, at)
			if err != nil {
				g.log.Debug("cross-validation fetch failed", "provider", p.Name(), "error", err)
				return
			}
			g.cache.Put(CacheKey(coord, at, p.Name()), r)
			readings[i] = r
		}(i, p)
	}
	wg.Wait()

	var available []*types.WeatherReading
	for _, r := range readings {
		if r != nil {
			available = append(available, r)
		}
	}
	switch len(available) {
	case 0:
		// fall back to the cache before giving up
		for _, p := range g.providers {
			if r, ok := g.cache.Get(CacheKey(coord, at, p.Name())); ok {
				return r, singleProviderConfidence, nil
			}
		}
		return nil, 0, ErrWeatherUnavailable
	case 1:
		return available[0], singleProviderConfidence, nil
	}

	a, b := available[0], available[1]
	passed := 0
	if withinPct(a.VisibilitySM, b.VisibilitySM, 0.10) {
		passed++
	}
	if withinPct(a.WindSpeedKts, b.WindSpeedKts, 0.15) {
		passed++
	}
	if withinPct(a.TemperatureC, b.TemperatureC, 0.05) {
		passed++
	}
	return a, float64(passed) / 3, nil
}

// withinPct reports agreement of a and b within frac of the larger
// magnitude. Two zeros agree trivially.
func withinPct(a, b, frac float64) bool {
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return true
	}
	return math.Abs(a-b)/denom <= frac
}
