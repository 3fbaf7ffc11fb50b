package weather

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skysched/flightwx/internal/logger"
	"github.com/skysched/flightwx/internal/retry"
	"github.com/skysched/flightwx/internal/types"
)

// fakeProvider is a scriptable provider for gateway tests.
type fakeProvider struct {
	name    string
	reading *types.WeatherReading
	err     error
	calls   atomic.Int64
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Fetch(_ context.Context, coord types.Coordinate, at time.Time) (*types.WeatherReading, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	r := *f.reading
	r.Coord = coord
	r.Timestamp = at
	return &r, nil
}

func noRetry() retry.Policy {
	return retry.Policy{Retries: 0, BaseDelay: time.Millisecond, Factor: 1}
}

func newTestGateway(providers ...Provider) *Gateway {
	g := NewGateway(providers, NewCache(5*time.Minute, 100), logger.NewNop())
	g.policy = noRetry()
	return g
}

var (
	testCoord = types.Coordinate{Lat: 37.46, Lon: -122.11}
	testAt    = time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
)

func TestGatewayGetPrimaryFirst(t *testing.T) {
	primary := &fakeProvider{name: "primary", reading: &types.WeatherReading{VisibilitySM: 10, Source: "primary"}}
	secondary := &fakeProvider{name: "secondary", reading: &types.WeatherReading{VisibilitySM: 8, Source: "secondary"}}
	g := newTestGateway(primary, secondary)

	r, err := g.Get(context.Background(), testCoord, testAt)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if r.Source != "primary" {
		t.Errorf("Get() source = %q, want primary", r.Source)
	}
	if secondary.calls.Load() != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.calls.Load())
	}
}

func TestGatewayGetFallsBackToSecondary(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("timeout")}
	secondary := &fakeProvider{name: "secondary", reading: &types.WeatherReading{VisibilitySM: 8, Source: "secondary"}}
	g := newTestGateway(primary, secondary)

	r, err := g.Get(context.Background(), testCoord, testAt)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if r.Source != "secondary" {
		t.Errorf("Get() source = %q, want secondary", r.Source)
	}
}

func TestGatewayGetCachesReadings(t *testing.T) {
	primary := &fakeProvider{name: "primary", reading: &types.WeatherReading{VisibilitySM: 10, Source: "primary"}}
	g := newTestGateway(primary)

	if _, err := g.Get(context.Background(), testCoord, testAt); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := g.Get(context.Background(), testCoord, testAt); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if primary.calls.Load() != 1 {
		t.Errorf("provider called %d times, want 1 (second lookup should hit the cache)", primary.calls.Load())
	}
}

func TestGatewayGetAllProvidersDown(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("down")}
	secondary := &fakeProvider{name: "secondary", err: errors.New("also down")}
	g := newTestGateway(primary, secondary)

	_, err := g.Get(context.Background(), testCoord, testAt)
	if !errors.Is(err, ErrWeatherUnavailable) {
		t.Errorf("Get() error = %v, want %v", err, ErrWeatherUnavailable)
	}
}

func TestGatewayOpenBreakerSkipsProvider(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: errors.New("down")}
	secondary := &fakeProvider{name: "secondary", reading: &types.WeatherReading{VisibilitySM: 8, Source: "secondary"}}
	g := newTestGateway(primary, secondary)

	// Trip the primary's breaker.
	for i := 0; i < breakerFailureThreshold; i++ {
		g.breakers["primary"].Execute(func() error { return errors.New("down") })
	}

	before := primary.calls.Load()
	r, err := g.Get(context.Background(), testCoord, testAt)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if r.Source != "secondary" {
		t.Errorf("Get() source = %q, want secondary", r.Source)
	}
	if primary.calls.Load() != before {
		t.Errorf("primary called while its breaker was open")
	}
}

func TestCrossValidateConfidence(t *testing.T) {
	tests := []struct {
		name           string
		primary        *types.WeatherReading
		secondary      *types.WeatherReading
		wantConfidence float64
	}{
		{
			name:           "full agreement",
			primary:        &types.WeatherReading{VisibilitySM: 10, WindSpeedKts: 10, TemperatureC: 20},
			secondary:      &types.WeatherReading{VisibilitySM: 9.5, WindSpeedKts: 11, TemperatureC: 20.5},
			wantConfidence: 1,
		},
		{
			name:           "visibility disagrees",
			primary:        &types.WeatherReading{VisibilitySM: 10, WindSpeedKts: 10, TemperatureC: 20},
			secondary:      &types.WeatherReading{VisibilitySM: 6, WindSpeedKts: 10, TemperatureC: 20},
			wantConfidence: 2.0 / 3,
		},
		{
			name:           "only temperature agrees",
			primary:        &types.WeatherReading{VisibilitySM: 10, WindSpeedKts: 25, TemperatureC: 20},
			secondary:      &types.WeatherReading{VisibilitySM: 4, WindSpeedKts: 10, TemperatureC: 20},
			wantConfidence: 1.0 / 3,
		},
		{
			name:           "total disagreement",
			primary:        &types.WeatherReading{VisibilitySM: 10, WindSpeedKts: 25, TemperatureC: 30},
			secondary:      &types.WeatherReading{VisibilitySM: 4, WindSpeedKts: 10, TemperatureC: 10},
			wantConfidence: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(
				&fakeProvider{name: "primary", reading: tt.primary},
				&fakeProvider{name: "secondary", reading: tt.secondary},
			)
			r, confidence, err := g.CrossValidate(context.Background(), testCoord, testAt)
			if err != nil {
				t.Fatalf("CrossValidate() error = %v", err)
			}
			if r == nil {
				t.Fatalf("CrossValidate() returned nil reading")
			}
			if confidence != tt.wantConfidence {
				t.Errorf("CrossValidate() confidence = %v, want %v", confidence, tt.wantConfidence)
			}
		})
	}
}

func TestCrossValidateSingleProvider(t *testing.T) {
	primary := &fakeProvider{name: "primary", reading: &types.WeatherReading{VisibilitySM: 10, Source: "primary"}}
	secondary := &fakeProvider{name: "secondary", err: errors.New("down")}
	g := newTestGateway(primary, secondary)

	r, confidence, err := g.CrossValidate(context.Background(), testCoord, testAt)
	if err != nil {
		t.Fatalf("CrossValidate() error = %v", err)
	}
	if r.Source != "primary" {
		t.Errorf("CrossValidate() source = %q, want primary", r.Source)
	}
	if confidence != singleProviderConfidence {
		t.Errorf("CrossValidate() confidence = %v, want %v", confidence, singleProviderConfidence)
	}
}

func TestCrossValidateFallsBackToCache(t *testing.T) {
	primary := &fakeProvider{name: "primary", reading: &types.WeatherReading{VisibilitySM: 10, Source: "primary"}}
	g := newTestGateway(primary)

	// Seed the cache, then kill the provider.
	if _, _, err := g.CrossValidate(context.Background(), testCoord, testAt); err != nil {
		t.Fatalf("CrossValidate() seed error = %v", err)
	}
	primary.err = errors.New("down")
	primary.reading = nil

	r, confidence, err := g.CrossValidate(context.Background(), testCoord, testAt)
	if err != nil {
		t.Fatalf("CrossValidate() with dead provider error = %v", err)
	}
	if r.Source != "primary" {
		t.Errorf("CrossValidate() source = %q, want cached primary reading", r.Source)
	}
	if confidence != singleProviderConfidence {
		t.Errorf("CrossValidate() confidence = %v, want %v", confidence, singleProviderConfidence)
	}
}

func TestCrossValidateServesFromCache(t *testing.T) {
	primary := &fakeProvider{name: "primary", reading: &types.WeatherReading{VisibilitySM: 10, WindSpeedKts: 10, TemperatureC: 20, Source: "primary"}}
	secondary := &fakeProvider{name: "secondary", reading: &types.WeatherReading{VisibilitySM: 9.5, WindSpeedKts: 11, TemperatureC: 20.5, Source: "secondary"}}
	g := newTestGateway(primary, secondary)

	if _, _, err := g.CrossValidate(context.Background(), testCoord, testAt); err != nil {
		t.Fatalf("CrossValidate() seed error = %v", err)
	}
	pCalls, sCalls := primary.calls.Load(), secondary.calls.Load()

	r, confidence, err := g.CrossValidate(context.Background(), testCoord, testAt)
	if err != nil {
		t.Fatalf("CrossValidate() error = %v", err)
	}
	if primary.calls.Load() != pCalls || secondary.calls.Load() != sCalls {
		t.Errorf("providers fetched again with fresh cache entries: primary %d->%d, secondary %d->%d",
			pCalls, primary.calls.Load(), sCalls, secondary.calls.Load())
	}
	if r.Source != "primary" {
		t.Errorf("CrossValidate() source = %q, want cached primary reading", r.Source)
	}
	if confidence != 1 {
		t.Errorf("CrossValidate() confidence = %v, want agreement scored from the cached pair", confidence)
	}
}

func TestCrossValidateFetchesOnlyCacheMisses(t *testing.T) {
	primary := &fakeProvider{name: "primary", reading: &types.WeatherReading{VisibilitySM: 10, WindSpeedKts: 10, TemperatureC: 20, Source: "primary"}}
	secondary := &fakeProvider{name: "secondary", reading: &types.WeatherReading{VisibilitySM: 9.5, WindSpeedKts: 11, TemperatureC: 20.5, Source: "secondary"}}
	g := newTestGateway(primary, secondary)

	cached := &types.WeatherReading{VisibilitySM: 10, WindSpeedKts: 10, TemperatureC: 20, Source: "primary"}
	g.cache.Put(CacheKey(testCoord, testAt, "primary"), cached)

	if _, _, err := g.CrossValidate(context.Background(), testCoord, testAt); err != nil {
		t.Fatalf("CrossValidate() error = %v", err)
	}
	if primary.calls.Load() != 0 {
		t.Errorf("primary fetched %d times despite a fresh cache entry, want 0", primary.calls.Load())
	}
	if secondary.calls.Load() != 1 {
		t.Errorf("secondary fetched %d times, want 1", secondary.calls.Load())
	}
}

func TestCrossValidateAllUnavailable(t *testing.T) {
	g := newTestGateway(
		&fakeProvider{name: "primary", err: errors.New("down")},
		&fakeProvider{name: "secondary", err: errors.New("down")},
	)
	_, _, err := g.CrossValidate(context.Background(), testCoord, testAt)
	if !errors.Is(err, ErrWeatherUnavailable) {
		t.Errorf("CrossValidate() error = %v, want %v", err, ErrWeatherUnavailable)
	}
}

func TestWithinPct(t *testing.T) {
	tests := []struct {
		name    string
		a, b    float64
		frac    float64
		want    bool
	}{
		{"both zero", 0, 0, 0.10, true},
		{"exact boundary", 10, 9, 0.10, true},
		{"just outside", 10, 8.9, 0.10, false},
		{"negative temperatures", -10, -10.4, 0.05, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := withinPct(tt.a, tt.b, tt.frac); got != tt.want {
				t.Errorf("withinPct(%v, %v, %v) = %v, want %v", tt.a, tt.b, tt.frac, got, tt.want)
			}
		})
	}
}
