// Package detector evaluates upcoming bookings for weather conflicts and
// classifies their urgency.
package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/skysched/flightwx/internal/types"
)

// Severity boundaries, measured from evaluation time to departure.
const (
	criticalWindow = 2 * time.Hour
	warningWindow  = 12 * time.Hour
)

// FlightValidator runs corridor-wide minimums validation. Satisfied by
// minimums.Validator.
type FlightValidator interface {
	ValidateFlightWeather(ctx context.Context, dep, arr types.Coordinate, at time.Time, level types.TrainingLevel) (*types.FlightValidation, error)
}

// BookingLister supplies the bookings due within the lookahead window.
type BookingLister interface {
	ListBookingsDueWithin(ctx context.Context, window time.Duration, statuses []types.BookingStatus) ([]*types.Booking, error)
}

// Detector evaluates bookings against weather minimums.
type Detector struct {
	validator FlightValidator
	now       func() time.Time
}

// New creates a detector backed by the given validator.
func New(validator FlightValidator) *Detector {
	return &Detector{validator: validator, now: time.Now}
}

// NewWithClock creates a detector with a fixed time source for tests.
func NewWithClock(validator FlightValidator, now func() time.Time) *Detector {
	return &Detector{validator: validator, now: now}
}

// SeverityFor classifies urgency by time remaining until departure.
func SeverityFor(untilDeparture time.Duration) types.ConflictSeverity {
	switch {
	case untilDeparture <= criticalWindow:
		return types.SeverityCritical
	case untilDeparture <= warningWindow:
		return types.SeverityWarning
	default:
		return types.SeverityNone
	}
}

// Evaluate validates one booking's corridor at its scheduled time and applies
// the severity and notification policy. It performs no side effects; the
// monitor loop owns status transitions.
//
// Notification policy: notify when the booking was still CONFIRMED (a fresh
// conflict) or when severity is critical regardless of prior status.
func (d *Detector) Evaluate(ctx context.Context, b *types.Booking) (*types.ConflictResult, error) {
	validation, err := d.validator.ValidateFlightWeather(ctx, b.DepartureCoord, b.ArrivalCoord, b.ScheduledAt, b.TrainingLevel)
	if err != nil {
		// Cannot confirm safety; the caller must not treat this as safe.
		return nil, fmt.Errorf("booking %s: %w", b.ID, err)
	}

	result := &types.ConflictResult{
		BookingID:  b.ID,
		Severity:   types.SeverityNone,
		Validation: validation,
	}
	if validation.IsValid {
		return result, nil
	}

	result.HasConflict = true
	result.Kind = types.ConflictKindWeather
	result.Severity = SeverityFor(b.ScheduledAt.Sub(d.now()))
	result.ShouldNotify = b.Status == types.BookingStatusConfirmed || result.Severity == types.SeverityCritical
	result.Recommendations = recommendations(validation)
	return result, nil
}

// Scan evaluates every CONFIRMED or AT_RISK booking due within the lookahead
// window. Single-booking failures are recorded per booking and do not stop
// the scan.
func (d *Detector) Scan(ctx context.Context, bookings BookingLister, lookahead time.Duration) ([]*types.ConflictResult, []error, error) {
	due, err := bookings.ListBookingsDueWithin(ctx, lookahead, []types.BookingStatus{
		types.BookingStatusConfirmed, types.BookingStatusAtRisk,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	var results []*types.ConflictResult
	var failures []error
	for _, b := range due {
		res, err := d.Evaluate(ctx, b)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		results = append(results, res)
	}
	return results, failures, nil
}

// recommendations derives short action hints from the violated dimensions.
func recommendations(v *types.FlightValidation) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, violation := range v.AllViolations() {
		switch violation.Dimension {
		case types.DimVisibility, types.DimCeiling:
			add("consider a later slot; visibility and ceiling often improve after morning hours")
		case types.DimWind, types.DimCrosswind:
			add("winds above limits along the corridor; review alternative departure times")
		case types.DimConditions:
			add("prohibited weather reported on the route; rescheduling recommended")
		}
	}
	return out
}
