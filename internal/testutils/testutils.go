package testutils

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skysched/flightwx/internal/types"
)

// MockBooking creates a confirmed training booking scheduled at the given
// time for testing.
func MockBooking(level types.TrainingLevel, scheduledAt time.Time) *types.Booking {
	return &types.Booking{
		ID:               uuid.New(),
		StudentID:        uuid.New(),
		InstructorID:     uuid.New(),
		DepartureAirport: "KPAO",
		ArrivalAirport:   "KHWD",
		DepartureCoord:   types.Coordinate{Lat: 37.4611, Lon: -122.1150},
		ArrivalCoord:     types.Coordinate{Lat: 37.6593, Lon: -122.1217},
		ScheduledAt:      scheduledAt,
		DurationMins:     60,
		TrainingLevel:    level,
		Status:           types.BookingStatusConfirmed,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
}

// ClearReading creates a reading that passes every training level's minimums.
func ClearReading(coord types.Coordinate, at time.Time) *types.WeatherReading {
	ceiling := 5000.0
	return &types.WeatherReading{
		Coord:        coord,
		Timestamp:    at,
		VisibilitySM: 10,
		CeilingFt:    &ceiling,
		WindSpeedKts: 5,
		WindDirDeg:   270,
		TemperatureC: 18,
		HumidityPct:  55,
		PressureHpa:  1013,
		Conditions:   []types.Condition{types.CondClear},
		Source:       "test-source",
	}
}

// StormReading creates a reading that violates every training level's
// minimums.
func StormReading(coord types.Coordinate, at time.Time) *types.WeatherReading {
	ceiling := 400.0
	return &types.WeatherReading{
		Coord:        coord,
		Timestamp:    at,
		VisibilitySM: 0.5,
		CeilingFt:    &ceiling,
		WindSpeedKts: 35,
		WindDirDeg:   90,
		TemperatureC: 12,
		HumidityPct:  98,
		PressureHpa:  995,
		Conditions:   []types.Condition{types.CondThunderstorm, types.CondRain},
		Source:       "test-source",
	}
}

// WaitForCondition waits for a condition to be true with timeout.
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}
