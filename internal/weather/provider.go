// Package weather provides the dual-provider weather gateway: per-provider
// circuit breaking, jittered retry, a bounded TTL cache, and a
// cross-validation mode for high-confidence lookups.
package weather

import (
	"context"
	"time"

	"github.com/skysched/flightwx/internal/types"
)

// Provider abstracts a weather data source. Fetch returns a normalized
// reading for the coordinate, as close to the requested time as the source
// supports.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, coord types.Coordinate, at time.Time) (*types.WeatherReading, error)
}
