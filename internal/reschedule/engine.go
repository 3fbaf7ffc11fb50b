// Package reschedule generates, filters and ranks alternative departure
// times for an at-risk booking as a strict four-stage pipeline.
package reschedule

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/now"
	"github.com/skysched/flightwx/internal/logger"
	"github.com/skysched/flightwx/internal/preference"
	"github.com/skysched/flightwx/internal/types"
)

// ErrNoValidSlot means candidate generation and weather filtering produced
// slots but none survived availability filtering. Callers must distinguish
// this from an empty-but-successful result.
var ErrNoValidSlot = errors.New("no valid slot in window")

const (
	searchDays    = 7
	businessStart = 8  // 08:00 local
	businessEnd   = 18 // 18:00 local
	slotStepHours = 2
	maxOptions    = 3

	// maxCombinedScore is the ceiling of score + confidence*10, used to
	// normalize the final option confidence.
	maxCombinedScore = 110.0
)

// Store is the persistence surface the engine commits through.
type Store interface {
	GetBooking(ctx context.Context, id uuid.UUID) (*types.Booking, error)
	ReplaceOptions(ctx context.Context, bookingID uuid.UUID, options []*types.RescheduleOption) error
	InitRanking(ctx context.Context, r *types.PreferenceRanking) error
}

// AvailabilityProvider answers whether a user can fly a given window.
type AvailabilityProvider interface {
	IsAvailable(ctx context.Context, userID uuid.UUID, date time.Time, startHH, endHH int) (bool, error)
}

// FlightValidator runs corridor-wide minimums validation at a candidate time.
type FlightValidator interface {
	ValidateFlightWeather(ctx context.Context, dep, arr types.Coordinate, at time.Time, level types.TrainingLevel) (*types.FlightValidation, error)
}

// candidate is the unit flowing through the pipeline stages.
type candidate struct {
	at         time.Time
	score      float64
	confidence float64
	weather    *types.WeatherReading
}

// pipelineState is handed from stage to stage; a stage replaces the
// candidate slice rather than mutating shared state.
type pipelineState struct {
	booking    *types.Booking
	candidates []candidate
}

// stage is one named pipeline step. Returning an error aborts the pipeline
// before anything is persisted.
type stage struct {
	name string
	run  func(ctx context.Context, st *pipelineState) error
}

// Engine produces scored reschedule options.
type Engine struct {
	store        Store
	availability AvailabilityProvider
	validator    FlightValidator
	log          *logger.Logger
	now          func() time.Time
}

// New creates a reschedule engine.
func New(store Store, availability AvailabilityProvider, validator FlightValidator, log *logger.Logger) *Engine {
	return &Engine{
		store:        store,
		availability: availability,
		validator:    validator,
		log:          log,
		now:          time.Now,
	}
}

// NewWithClock creates an engine with a fixed time source for tests.
func NewWithClock(store Store, availability AvailabilityProvider, validator FlightValidator, log *logger.Logger, clock func() time.Time) *Engine {
	e := New(store, availability, validator, log)
	e.now = clock
	return e
}

// GenerateOptions runs the full pipeline for a booking and commits the
// result: prior options are deleted and the fresh batch inserted (replace,
// not merge), and both participants' preference rows are reset with a new
// submission deadline. notifiedAt anchors the deadline arithmetic.
func (e *Engine) GenerateOptions(ctx context.Context, bookingID uuid.UUID, notifiedAt time.Time) ([]*types.RescheduleOption, time.Time, error) {
	booking, err := e.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, time.Time{}, err
	}

	st := &pipelineState{booking: booking}
	stages := []stage{
		{name: "generate_candidates", run: e.generateCandidates},
		{name: "filter_weather", run: e.filterWeather},
		{name: "filter_availability", run: e.filterAvailability},
		{name: "rank", run: e.rank},
	}
	for _, s := range stages {
		if err := s.run(ctx, st); err != nil {
			return nil, time.Time{}, fmt.Errorf("stage %s: %w", s.name, err)
		}
		e.log.Debug("pipeline stage complete", "stage", s.name, "booking_id", bookingID, "candidates", len(st.candidates))
	}

	generatedAt := e.now()
	options := make([]*types.RescheduleOption, 0, len(st.candidates))
	for _, c := range st.candidates {
		options = append(options, &types.RescheduleOption{
			ID:          uuid.New(),
			BookingID:   booking.ID,
			CandidateAt: c.at,
			Score:       c.score,
			Confidence:  c.confidence,
			Weather:     c.weather,
			GeneratedAt: generatedAt,
		})
	}

	if err := e.store.ReplaceOptions(ctx, booking.ID, options); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to persist options: %w", err)
	}

	deadline := preference.ComputeDeadline(booking.ScheduledAt, notifiedAt)
	participants := []struct {
		id   uuid.UUID
		role types.ParticipantRole
	}{
		{booking.StudentID, types.RoleStudent},
		{booking.InstructorID, types.RoleInstructor},
	}
	for _, p := range participants {
		r := &types.PreferenceRanking{
			BookingID:     booking.ID,
			ParticipantID: p.id,
			Role:          p.role,
			Deadline:      deadline,
		}
		if err := e.store.InitRanking(ctx, r); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to init %s ranking: %w", p.role, err)
		}
	}

	return options, deadline, nil
}

// generateCandidates enumerates business-hour slots over the search window
// and scores them by temporal proximity to the original time.
func (e *Engine) generateCandidates(_ context.Context, st *pipelineState) error {
	nowT := e.now()
	loc := st.booking.ScheduledAt.Location()
	dayStart := now.New(nowT.In(loc)).BeginningOfDay()

	var out []candidate
	for day := 0; day < searchDays; day++ {
		date := dayStart.AddDate(0, 0, day)
		for hh := businessStart; hh+slotStepHours <= businessEnd; hh += slotStepHours {
			slot := time.Date(date.Year(), date.Month(), date.Day(), hh, 0, 0, 0, loc)
			if !slot.After(nowT) {
				continue
			}
			deltaHours := math.Abs(slot.Sub(st.booking.ScheduledAt).Hours())
			out = append(out, candidate{
				at:    slot,
				score: math.Max(0, 100-deltaHours),
			})
		}
	}
	st.candidates = out
	return nil
}

// filterWeather keeps only candidates whose corridor clears the training
// level's minimums at the candidate time, carrying the weather confidence
// and departure-point snapshot forward.
func (e *Engine) filterWeather(ctx context.Context, st *pipelineState) error {
	b := st.booking
	var out []candidate
	for _, c := range st.candidates {
		validation, err := e.validator.ValidateFlightWeather(ctx, b.DepartureCoord, b.ArrivalCoord, c.at, b.TrainingLevel)
		if err != nil {
			return err
		}
		if !validation.IsValid {
			continue
		}
		c.confidence = validation.Confidence
		if len(validation.Points) > 0 {
			c.weather = validation.Points[0].Reading
		}
		out = append(out, c)
	}
	st.candidates = out
	return nil
}

// filterAvailability keeps only candidates where both participants have
// recurring-or-override availability covering the slot. Unavailable
// candidates are dropped, not down-scored. Zero survivors is a distinct
// failure, not an empty success.
func (e *Engine) filterAvailability(ctx context.Context, st *pipelineState) error {
	b := st.booking
	durHours := int(math.Ceil(float64(b.DurationMins) / 60))
	if durHours < 1 {
		durHours = 1
	}

	var out []candidate
	for _, c := range st.candidates {
		startHH := c.at.Hour()
		endHH := startHH + durHours
		ok := true
		for _, userID := range []uuid.UUID{b.StudentID, b.InstructorID} {
			available, err := e.availability.IsAvailable(ctx, userID, c.at, startHH, endHH)
			if err != nil {
				return fmt.Errorf("availability check: %w", err)
			}
			if !available {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return ErrNoValidSlot
	}
	st.candidates = out
	return nil
}

// rank orders candidates by combined score descending (ties broken by the
// earlier datetime), keeps the top 3 and normalizes the final confidence.
func (e *Engine) rank(_ context.Context, st *pipelineState) error {
	cs := st.candidates
	sort.SliceStable(cs, func(i, j int) bool {
		ci, cj := combined(cs[i]), combined(cs[j])
		if ci != cj {
			return ci > cj
		}
		return cs[i].at.Before(cs[j].at)
	})
	if len(cs) > maxOptions {
		cs = cs[:maxOptions]
	}
	for i := range cs {
		cs[i].confidence = combined(cs[i]) / maxCombinedScore
	}
	st.candidates = cs
	return nil
}

func combined(c candidate) float64 {
	return c.score + c.confidence*10
}
