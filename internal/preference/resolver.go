// Package preference records participants' ranked reschedule choices and
// resolves the two submissions into a single confirmed time.
package preference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/skysched/flightwx/internal/logger"
	"github.com/skysched/flightwx/internal/types"
)

var (
	// ErrDeadlinePassed means the stored submission deadline has elapsed.
	ErrDeadlinePassed = errors.New("preference submission deadline passed")
	// ErrAwaitingSubmissions means resolution needs both participants' rows.
	ErrAwaitingSubmissions = errors.New("awaiting preference submissions")
	// ErrNoResolution means the instructor has no usable ranked choice.
	ErrNoResolution = errors.New("no usable instructor choice")
	// ErrRevalidationFailed means the resolved time no longer clears weather
	// minimums; fresh options must be generated.
	ErrRevalidationFailed = errors.New("weather re-validation failed at confirmation")
)

const (
	deadlineBeforeDeparture = 30 * time.Minute
	deadlineAfterNotice     = 12 * time.Hour
	maxRankedChoices        = 3
)

// ComputeDeadline returns the preference submission deadline: whichever of
// "30 minutes before departure" and "12 hours after notification" binds
// first.
func ComputeDeadline(scheduledAt, notifiedAt time.Time) time.Time {
	byDeparture := scheduledAt.Add(-deadlineBeforeDeparture)
	byNotice := notifiedAt.Add(deadlineAfterNotice)
	if byDeparture.Before(byNotice) {
		return byDeparture
	}
	return byNotice
}

// Store is the persistence surface the resolver works through.
type Store interface {
	GetBooking(ctx context.Context, id uuid.UUID) (*types.Booking, error)
	GetOption(ctx context.Context, id uuid.UUID) (*types.RescheduleOption, error)
	ReplaceOptions(ctx context.Context, bookingID uuid.UUID, options []*types.RescheduleOption) error
	GetRanking(ctx context.Context, bookingID, participantID uuid.UUID) (*types.PreferenceRanking, error)
	GetRankings(ctx context.Context, bookingID uuid.UUID) ([]*types.PreferenceRanking, error)
	SubmitRanking(ctx context.Context, r *types.PreferenceRanking) error
	UpdateBookingSchedule(ctx context.Context, id uuid.UUID, scheduledAt time.Time, status types.BookingStatus) error
	RecordAudit(ctx context.Context, e *types.AuditEntry) error
}

// FlightValidator re-validates weather before a reschedule is committed.
type FlightValidator interface {
	ValidateFlightWeather(ctx context.Context, dep, arr types.Coordinate, at time.Time, level types.TrainingLevel) (*types.FlightValidation, error)
}

// Resolver handles preference submission and the resolve-and-confirm flow.
type Resolver struct {
	store     Store
	validator FlightValidator
	log       *logger.Logger
	now       func() time.Time
}

// New creates a resolver.
func New(store Store, validator FlightValidator, log *logger.Logger) *Resolver {
	return &Resolver{store: store, validator: validator, log: log, now: time.Now}
}

// NewWithClock creates a resolver with a fixed time source for tests.
func NewWithClock(store Store, validator FlightValidator, log *logger.Logger, clock func() time.Time) *Resolver {
	r := New(store, validator, log)
	r.now = clock
	return r
}

// Submit records a participant's ranked choices and unavailable set.
// Resubmission overwrites (last write wins) until the stored deadline. The
// stored value is the sole source of truth, never recomputed, since the
// booking's scheduled time may itself be stale by now.
func (r *Resolver) Submit(ctx context.Context, bookingID, participantID uuid.UUID, ranked, unavailable []uuid.UUID) error {
	if len(ranked) > maxRankedChoices {
		return fmt.Errorf("at most %d ranked choices allowed, got %d", maxRankedChoices, len(ranked))
	}

	row, err := r.store.GetRanking(ctx, bookingID, participantID)
	if err != nil {
		return err
	}
	if r.now().After(row.Deadline) {
		return ErrDeadlinePassed
	}

	// All referenced options must belong to this booking's live set.
	for _, optID := range ranked {
		opt, err := r.store.GetOption(ctx, optID)
		if err != nil {
			return fmt.Errorf("ranked option %s: %w", optID, err)
		}
		if opt.BookingID != bookingID {
			return fmt.Errorf("option %s does not belong to booking %s", optID, bookingID)
		}
	}

	submittedAt := r.now()
	row.Ranked = ranked
	row.Unavailable = unavailable
	row.SubmittedAt = &submittedAt
	if err := r.store.SubmitRanking(ctx, row); err != nil {
		return err
	}

	r.audit(ctx, types.AuditPreferenceRecord, bookingID, participantID.String(), map[string]any{
		"role":        row.Role,
		"ranked":      len(ranked),
		"unavailable": len(unavailable),
	})
	return nil
}

// Get returns a participant's stored preference row.
func (r *Resolver) Get(ctx context.Context, bookingID, participantID uuid.UUID) (*types.PreferenceRanking, error) {
	return r.store.GetRanking(ctx, bookingID, participantID)
}

// Resolve selects the winning option once both participants have submitted.
//
// The policy is asymmetric by design: the instructor's highest-ranked still-
// live choice wins unconditionally and the student's ranking does not
// influence selection. This encodes instructor authority over scheduling and
// must not be replaced with a fairer vote without an explicit product
// decision.
func (r *Resolver) Resolve(ctx context.Context, bookingID uuid.UUID) (*types.RescheduleOption, error) {
	rankings, err := r.store.GetRankings(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var instructor *types.PreferenceRanking
	submitted := 0
	for _, row := range rankings {
		if row.Submitted() {
			submitted++
		}
		if row.Role == types.RoleInstructor {
			instructor = row
		}
	}
	if instructor == nil || submitted < 2 {
		return nil, ErrAwaitingSubmissions
	}
	if instructor.FirstChoice() == nil {
		return nil, ErrNoResolution
	}

	for _, optID := range instructor.Ranked {
		opt, err := r.store.GetOption(ctx, optID)
		if err != nil {
			// Option may have been replaced by a regeneration; fall through
			// to the next rank.
			r.log.Debug("ranked option not found", "booking_id", bookingID, "option_id", optID)
			continue
		}
		return opt, nil
	}
	return nil, ErrNoResolution
}

// ConfirmResult reports the outcome of a confirmation attempt.
type ConfirmResult struct {
	Option          *types.RescheduleOption `json:"option,omitempty"`
	Confirmed       bool                    `json:"confirmed"`
	NeedsNewOptions bool                    `json:"needs_new_options"`
}

// Confirm resolves the booking's reschedule and commits it after re-validating
// weather at the resolved time. A booking is never silently confirmed with a
// stale validation: if minimums now fail, the result flags that new options
// must be generated and the booking is left untouched.
func (r *Resolver) Confirm(ctx context.Context, bookingID uuid.UUID, actorID string) (*ConfirmResult, error) {
	opt, err := r.Resolve(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	booking, err := r.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	validation, err := r.validator.ValidateFlightWeather(ctx, booking.DepartureCoord, booking.ArrivalCoord, opt.CandidateAt, booking.TrainingLevel)
	if err != nil {
		return nil, fmt.Errorf("cannot confirm without weather: %w", err)
	}
	if !validation.IsValid {
		return &ConfirmResult{Option: opt, NeedsNewOptions: true}, ErrRevalidationFailed
	}

	oldTime := booking.ScheduledAt
	if err := r.store.UpdateBookingSchedule(ctx, bookingID, opt.CandidateAt, types.BookingStatusConfirmed); err != nil {
		return nil, fmt.Errorf("failed to commit reschedule: %w", err)
	}

	// The consumed option set is cleared; the next conflict starts fresh.
	if err := r.store.ReplaceOptions(ctx, bookingID, nil); err != nil {
		r.log.Warn("failed to clear consumed options", "booking_id", bookingID, "error", err)
	}

	r.audit(ctx, types.AuditRescheduleApplied, bookingID, actorID, map[string]any{
		"old_time":   oldTime,
		"new_time":   opt.CandidateAt,
		"option_id":  opt.ID,
		"confidence": opt.Confidence,
	})
	return &ConfirmResult{Option: opt, Confirmed: true}, nil
}

// audit records an audit entry, logging and swallowing failures so the
// primary outcome is unaffected.
func (r *Resolver) audit(ctx context.Context, eventType string, bookingID uuid.UUID, actorID string, data map[string]any) {
	entry := &types.AuditEntry{
		ID:         uuid.New(),
		EventType:  eventType,
		EntityType: "booking",
		EntityID:   bookingID,
		ActorID:    actorID,
		Data:       data,
		CreatedAt:  r.now(),
	}
	if err := r.store.RecordAudit(ctx, entry); err != nil {
		r.log.Warn("audit record failed", "event", eventType, "booking_id", bookingID, "error", err)
	}
}
