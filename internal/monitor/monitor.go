// Package monitor drives the periodic weather-conflict scan: it evaluates
// every at-risk booking, applies status transitions, triggers option
// generation and dispatches best-effort notifications.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/skysched/flightwx/internal/logger"
	"github.com/skysched/flightwx/internal/reschedule"
	"github.com/skysched/flightwx/internal/stats"
	"github.com/skysched/flightwx/internal/types"
)

const actorID = "conflict-monitor"

// Store is the persistence surface the monitor mutates through.
type Store interface {
	ListBookingsDueWithin(ctx context.Context, window time.Duration, statuses []types.BookingStatus) ([]*types.Booking, error)
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, status types.BookingStatus) error
	RecordAudit(ctx context.Context, e *types.AuditEntry) error
	StoreScanRun(ctx context.Context, startedAt time.Time, processed, conflicts, cleared, skipped, errored int) error
}

// Locker serializes per-booking mutation across concurrent runs and
// deduplicates alerts.
type Locker interface {
	AcquireBookingLock(ctx context.Context, bookingID uuid.UUID, holder string, ttl time.Duration) (bool, error)
	ReleaseBookingLock(ctx context.Context, bookingID uuid.UUID) error
	MarkAlerted(ctx context.Context, bookingID uuid.UUID, severity string, ttl time.Duration) (bool, error)
	ClearAlerted(ctx context.Context, bookingID uuid.UUID) error
}

// Notifier delivers best-effort participant notifications.
type Notifier interface {
	SendWeatherAlert(bookingID uuid.UUID, severity types.ConflictSeverity, violations []types.Violation) error
	SendWeatherCleared(bookingID uuid.UUID) error
	SendOptionsAvailable(bookingID uuid.UUID, optionCount int, deadline time.Time) error
}

// Evaluator produces a conflict result for one booking.
type Evaluator interface {
	Evaluate(ctx context.Context, b *types.Booking) (*types.ConflictResult, error)
}

// OptionGenerator produces and persists reschedule options.
type OptionGenerator interface {
	GenerateOptions(ctx context.Context, bookingID uuid.UUID, notifiedAt time.Time) ([]*types.RescheduleOption, time.Time, error)
}

// Config tunes a monitor.
type Config struct {
	Lookahead      time.Duration
	Interval       time.Duration
	Concurrency    int
	BookingTimeout time.Duration
	LockTTL        time.Duration
	AlertDedupeTTL time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Lookahead:      48 * time.Hour,
		Interval:       5 * time.Minute,
		Concurrency:    8,
		BookingTimeout: 60 * time.Second,
		LockTTL:        2 * time.Minute,
		AlertDedupeTTL: 6 * time.Hour,
	}
}

// RunSummary reports one scan run. A run with errored bookings is degraded
// but still successful; only an inoperable run (e.g. the booking list could
// not be fetched) is a hard failure.
type RunSummary struct {
	StartedAt time.Time `json:"started_at"`
	Processed int       `json:"processed"`
	Conflicts int       `json:"conflicts"`
	Cleared   int       `json:"cleared"`
	Skipped   int       `json:"skipped"`
	Errored   int       `json:"errored"`
	Degraded  bool      `json:"degraded"`
}

// Monitor is the periodic conflict scan driver.
type Monitor struct {
	cfg       Config
	store     Store
	locks     Locker
	notifier  Notifier
	evaluator Evaluator
	engine    OptionGenerator
	stats     *stats.Stats
	log       *logger.Logger
	now       func() time.Time
}

// New creates a monitor.
func New(cfg Config, store Store, locks Locker, notifier Notifier, evaluator Evaluator, engine OptionGenerator, st *stats.Stats, log *logger.Logger) *Monitor {
	return &Monitor{
		cfg:       cfg,
		store:     store,
		locks:     locks,
		notifier:  notifier,
		evaluator: evaluator,
		engine:    engine,
		stats:     st,
		log:       log,
		now:       time.Now,
	}
}

// Start runs scans on the configured interval until ctx is done. An
// immediate first run precedes the ticker.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		if summary, err := m.RunOnce(ctx); err != nil {
			m.log.Error("scan run failed", "error", err)
		} else {
			m.log.Info("scan run complete",
				"processed", summary.Processed, "conflicts", summary.Conflicts,
				"cleared", summary.Cleared, "skipped", summary.Skipped,
				"errored", summary.Errored, "degraded", summary.Degraded)
		}
		m.log.Info("lifetime stats",
			"uptime", m.stats.Uptime().Round(time.Second).String(),
			"counters", m.stats.Snapshot())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single scan over every booking due within the lookahead
// window. Bookings are evaluated concurrently; each booking's mutation is
// serialized by its advisory lock, and one booking's failure never stops the
// rest.
func (m *Monitor) RunOnce(ctx context.Context) (*RunSummary, error) {
	startedAt := m.now()
	bookings, err := m.store.ListBookingsDueWithin(ctx, m.cfg.Lookahead, []types.BookingStatus{
		types.BookingStatusConfirmed, types.BookingStatusAtRisk,
	})
	if err != nil {
		return nil, fmt.Errorf("scan could not start: %w", err)
	}

	var conflicts, cleared, skipped, errored atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Concurrency)
	for _, b := range bookings {
		b := b
		g.Go(func() error {
			bctx, cancel := context.WithTimeout(gctx, m.cfg.BookingTimeout)
			defer cancel()

			outcome, err := m.processBooking(bctx, b)
			switch {
			case err != nil:
				errored.Add(1)
				m.stats.IncrementErrored()
				m.log.Warn("booking scan failed", "booking_id", b.ID, "error", err)
			case outcome == outcomeSkipped:
				skipped.Add(1)
				m.stats.IncrementSkipped()
			case outcome == outcomeConflict:
				conflicts.Add(1)
				m.stats.IncrementConflicts()
			case outcome == outcomeCleared:
				cleared.Add(1)
				m.stats.IncrementCleared()
			}
			m.stats.IncrementScanned()
			return nil // single-booking failures never abort the run
		})
	}
	_ = g.Wait()

	summary := &RunSummary{
		StartedAt: startedAt,
		Processed: len(bookings),
		Conflicts: int(conflicts.Load()),
		Cleared:   int(cleared.Load()),
		Skipped:   int(skipped.Load()),
		Errored:   int(errored.Load()),
	}
	summary.Degraded = summary.Errored > 0

	m.stats.IncrementRuns()
	m.stats.UpdateLastRunTime()
	if err := m.store.StoreScanRun(ctx, startedAt, summary.Processed, summary.Conflicts, summary.Cleared, summary.Skipped, summary.Errored); err != nil {
		m.log.Warn("failed to persist scan run", "error", err)
	}
	return summary, nil
}

type outcome int

const (
	outcomeNoChange outcome = iota
	outcomeSkipped
	outcomeConflict
	outcomeCleared
)

func (m *Monitor) processBooking(ctx context.Context, b *types.Booking) (outcome, error) {
	locked, err := m.locks.AcquireBookingLock(ctx, b.ID, actorID, m.cfg.LockTTL)
	if err != nil {
		return outcomeNoChange, fmt.Errorf("lock: %w", err)
	}
	if !locked {
		return outcomeSkipped, nil
	}
	defer func() {
		if err := m.locks.ReleaseBookingLock(context.WithoutCancel(ctx), b.ID); err != nil {
			m.log.Warn("failed to release booking lock", "booking_id", b.ID, "error", err)
		}
	}()

	result, err := m.evaluator.Evaluate(ctx, b)
	if err != nil {
		return outcomeNoChange, err
	}

	if !result.HasConflict {
		if b.Status == types.BookingStatusAtRisk {
			m.handleCleared(ctx, b)
			return outcomeCleared, nil
		}
		return outcomeNoChange, nil
	}

	m.handleConflict(ctx, b, result)
	return outcomeConflict, nil
}

// handleConflict applies the status flip, alerting and escalation policy for
// a conflicting booking. Audit and notification failures are logged and
// swallowed.
func (m *Monitor) handleConflict(ctx context.Context, b *types.Booking, result *types.ConflictResult) {
	freshConflict := b.Status == types.BookingStatusConfirmed
	if freshConflict {
		m.transition(ctx, b, types.BookingStatusAtRisk, "weather conflict detected")
	}

	if result.ShouldNotify {
		fresh, err := m.locks.MarkAlerted(ctx, b.ID, string(result.Severity), m.cfg.AlertDedupeTTL)
		if err != nil {
			m.log.Warn("alert dedupe check failed", "booking_id", b.ID, "error", err)
			fresh = true // fail open: better a duplicate alert than none
		}
		if fresh {
			if err := m.notifier.SendWeatherAlert(b.ID, result.Severity, result.Validation.AllViolations()); err != nil {
				m.log.Warn("weather alert failed", "booking_id", b.ID, "error", err)
			}
		}
	}

	// Escalation: a fresh conflict with real urgency, or any critical
	// conflict, gets a reschedule option set.
	if result.Severity == types.SeverityNone {
		return
	}
	if !freshConflict && result.Severity != types.SeverityCritical {
		return
	}

	options, deadline, err := m.engine.GenerateOptions(ctx, b.ID, m.now())
	if err != nil {
		if errors.Is(err, reschedule.ErrNoValidSlot) {
			m.log.Warn("no reschedule slot available", "booking_id", b.ID)
			return
		}
		m.log.Warn("option generation failed", "booking_id", b.ID, "error", err)
		return
	}
	m.stats.AddOptionsGenerated(len(options))
	m.transition(ctx, b, types.BookingStatusRescheduling, "reschedule options generated")
	m.audit(ctx, types.AuditOptionsGenerated, b.ID, map[string]any{
		"options":  len(options),
		"deadline": deadline,
	})
	if err := m.notifier.SendOptionsAvailable(b.ID, len(options), deadline); err != nil {
		m.log.Warn("options notification failed", "booking_id", b.ID, "error", err)
	}
}

// handleCleared reverts a previously flagged booking whose weather has
// improved.
func (m *Monitor) handleCleared(ctx context.Context, b *types.Booking) {
	m.transition(ctx, b, types.BookingStatusConfirmed, "weather conflict cleared")
	if err := m.locks.ClearAlerted(ctx, b.ID); err != nil {
		m.log.Warn("failed to clear alert markers", "booking_id", b.ID, "error", err)
	}
	if err := m.notifier.SendWeatherCleared(b.ID); err != nil {
		m.log.Warn("cleared notification failed", "booking_id", b.ID, "error", err)
	}
}

// transition applies a status change, enforcing the state machine and
// auditing the flip with previous/new status and reason.
func (m *Monitor) transition(ctx context.Context, b *types.Booking, next types.BookingStatus, reason string) {
	if !b.Status.CanTransitionTo(next) {
		m.log.Warn("illegal status transition skipped", "booking_id", b.ID, "from", b.Status, "to", next)
		return
	}
	if err := m.store.UpdateBookingStatus(ctx, b.ID, next); err != nil {
		m.log.Error("status update failed", "booking_id", b.ID, "to", next, "error", err)
		return
	}
	m.audit(ctx, types.AuditStatusChanged, b.ID, map[string]any{
		"previous": b.Status,
		"new":      next,
		"reason":   reason,
	})
	b.Status = next
}

// audit records an entry, logging and swallowing failures.
func (m *Monitor) audit(ctx context.Context, eventType string, bookingID uuid.UUID, data map[string]any) {
	entry := &types.AuditEntry{
		ID:         uuid.New(),
		EventType:  eventType,
		EntityType: "booking",
		EntityID:   bookingID,
		ActorID:    actorID,
		Data:       data,
		CreatedAt:  m.now(),
	}
	if err := m.store.RecordAudit(ctx, entry); err != nil {
		m.log.Warn("audit record failed", "event", eventType, "booking_id", bookingID, "error", err)
	}
}
