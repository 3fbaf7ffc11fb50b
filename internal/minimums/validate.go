// Package minimums checks weather readings against per-training-level
// minimums profiles.
package minimums

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/skysched/flightwx/internal/corridor"
	"github.com/skysched/flightwx/internal/types"
)

// WeatherSource supplies readings with an agreement confidence. The gateway's
// cross-validation mode satisfies this.
type WeatherSource interface {
	CrossValidate(ctx context.Context, coord types.Coordinate, at time.Time) (*types.WeatherReading, float64, error)
}

// Validate checks a single reading against a profile. All checks run
// independently; every violating dimension is reported, not just the first.
func Validate(reading *types.WeatherReading, profile types.MinimumsProfile) types.ValidationResult {
	var violations []types.Violation

	if reading.VisibilitySM < profile.MinVisibilitySM {
		violations = append(violations, types.Violation{
			Dimension: types.DimVisibility,
			Message:   fmt.Sprintf("visibility %.1fSM below minimum %.1fSM", reading.VisibilitySM, profile.MinVisibilitySM),
			Limit:     profile.MinVisibilitySM,
			Actual:    reading.VisibilitySM,
		})
	}

	if profile.MinCeilingFt != nil && reading.CeilingFt != nil && *reading.CeilingFt < *profile.MinCeilingFt {
		violations = append(violations, types.Violation{
			Dimension: types.DimCeiling,
			Message:   fmt.Sprintf("ceiling %.0fft below minimum %.0fft", *reading.CeilingFt, *profile.MinCeilingFt),
			Limit:     *profile.MinCeilingFt,
			Actual:    *reading.CeilingFt,
		})
	}

	if reading.WindSpeedKts > profile.MaxWindKts {
		violations = append(violations, types.Violation{
			Dimension: types.DimWind,
			Message:   fmt.Sprintf("wind %.0fkt above maximum %.0fkt", reading.WindSpeedKts, profile.MaxWindKts),
			Limit:     profile.MaxWindKts,
			Actual:    reading.WindSpeedKts,
		})
	}

	if profile.MaxCrosswindKts != nil {
		crosswind := reading.CrosswindKts
		if crosswind == 0 && reading.WindSpeedKts > 0 {
			crosswind = DeriveCrosswind(reading.WindSpeedKts, reading.WindDirDeg)
		}
		if crosswind > *profile.MaxCrosswindKts {
			violations = append(violations, types.Violation{
				Dimension: types.DimCrosswind,
				Message:   fmt.Sprintf("crosswind %.0fkt above maximum %.0fkt", crosswind, *profile.MaxCrosswindKts),
				Limit:     *profile.MaxCrosswindKts,
				Actual:    crosswind,
			})
		}
	}

	for _, c := range reading.Conditions {
		if profile.Prohibits(c) {
			violations = append(violations, types.Violation{
				Dimension: types.DimConditions,
				Message:   fmt.Sprintf("condition %q prohibited for %s pilots", c, profile.Level),
			})
		}
	}

	return types.ValidationResult{
		IsValid:    len(violations) == 0,
		Violations: violations,
	}
}

// DeriveCrosswind estimates the crosswind component from wind speed and
// direction when a provider does not report it directly.
func DeriveCrosswind(windSpeedKts, windDirDeg float64) float64 {
	return windSpeedKts * math.Abs(math.Sin(windDirDeg*math.Pi/180))
}

// Validator runs corridor-wide validation against a weather source.
type Validator struct {
	src WeatherSource
}

// NewValidator creates a corridor validator backed by src.
func NewValidator(src WeatherSource) *Validator {
	return &Validator{src: src}
}

// ValidateFlightWeather samples the 5-point corridor between dep and arr at
// the given time and validates each point against the level's profile.
// Overall validity is the AND across points; overall confidence is the
// arithmetic mean of per-point confidences.
func (v *Validator) ValidateFlightWeather(ctx context.Context, dep, arr types.Coordinate, at time.Time, level types.TrainingLevel) (*types.FlightValidation, error) {
	profile := ProfileFor(level)
	points := corridor.Points(dep, arr)

	out := &types.FlightValidation{IsValid: true}
	var confidenceSum float64
	for _, pt := range points {
		reading, confidence, err := v.src.CrossValidate(ctx, pt, at)
		if err != nil {
			return nil, fmt.Errorf("weather at %.4f,%.4f: %w", pt.Lat, pt.Lon, err)
		}
		res := Validate(reading, profile)
		res.Confidence = confidence
		if !res.IsValid {
			out.IsValid = false
		}
		confidenceSum += confidence
		out.Points = append(out.Points, types.PointValidation{
			Coord:   pt,
			Reading: reading,
			Result:  res,
		})
	}
	out.Confidence = confidenceSum / float64(len(points))
	return out, nil
}
