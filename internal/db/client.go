package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/skysched/flightwx/internal/types"
)

// ErrBookingNotFound is returned when a booking id does not exist.
var ErrBookingNotFound = errors.New("booking not found")

// ErrRankingNotFound is returned when no preference row exists for a
// (booking, participant) pair.
var ErrRankingNotFound = errors.New("preference ranking not found")

type Client struct {
	db *sql.DB
}

// New creates a new database client
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// NewWithDB wraps an existing connection. Tests use this with sqlmock.
func NewWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

const bookingColumns = `id, student_id, instructor_id, departure_airport, arrival_airport,
			departure_lat, departure_lon, arrival_lat, arrival_lon,
			scheduled_at, duration_mins, training_level, status, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (*types.Booking, error) {
	var b types.Booking
	err := row.Scan(
		&b.ID, &b.StudentID, &b.InstructorID, &b.DepartureAirport, &b.ArrivalAirport,
		&b.DepartureCoord.Lat, &b.DepartureCoord.Lon, &b.ArrivalCoord.Lat, &b.ArrivalCoord.Lon,
		&b.ScheduledAt, &b.DurationMins, &b.TrainingLevel, &b.Status, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBooking retrieves a booking by id.
func (c *Client) GetBooking(ctx context.Context, id uuid.UUID) (*types.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	b, err := scanBooking(c.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// CreateBooking inserts a new booking.
func (c *Client) CreateBooking(ctx context.Context, b *types.Booking) error {
	query := `
		INSERT INTO bookings (` + bookingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := c.db.ExecContext(ctx, query,
		b.ID, b.StudentID, b.InstructorID, b.DepartureAirport, b.ArrivalAirport,
		b.DepartureCoord.Lat, b.DepartureCoord.Lon, b.ArrivalCoord.Lat, b.ArrivalCoord.Lon,
		b.ScheduledAt, b.DurationMins, b.TrainingLevel, b.Status, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

// ListBookingsDueWithin retrieves bookings in any of the given statuses whose
// scheduled time falls inside the lookahead window starting now.
func (c *Client) ListBookingsDueWithin(ctx context.Context, window time.Duration, statuses []types.BookingStatus) ([]*types.Booking, error) {
	strs := make([]string, len(statuses))
	for i, s := range statuses {
		strs[i] = string(s)
	}
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = ANY($1)
		  AND scheduled_at > NOW()
		  AND scheduled_at <= NOW() + $2 * INTERVAL '1 second'
		ORDER BY scheduled_at
	`
	rows, err := c.db.QueryContext(ctx, query, pq.Array(strs), int64(window.Seconds()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*types.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// UpdateBookingStatus transitions a booking's status.
func (c *Client) UpdateBookingStatus(ctx context.Context, id uuid.UUID, status types.BookingStatus) error {
	query := `UPDATE bookings SET status = $1, updated_at = NOW() WHERE id = $2`
	res, err := c.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// UpdateBookingSchedule moves a booking to a new time and status in one
// statement. Used when a resolved reschedule is confirmed.
func (c *Client) UpdateBookingSchedule(ctx context.Context, id uuid.UUID, scheduledAt time.Time, status types.BookingStatus) error {
	query := `UPDATE bookings SET scheduled_at = $1, status = $2, updated_at = NOW() WHERE id = $3`
	res, err := c.db.ExecContext(ctx, query, scheduledAt, status, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// ReplaceOptions deletes all existing options for the booking and inserts the
// fresh batch in one transaction, so at most one live option set exists per
// booking.
func (c *Client) ReplaceOptions(ctx context.Context, bookingID uuid.UUID, options []*types.RescheduleOption) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM reschedule_options WHERE booking_id = $1`, bookingID); err != nil {
		return fmt.Errorf("failed to delete prior options: %w", err)
	}

	insert := `
		INSERT INTO reschedule_options (id, booking_id, candidate_at, score, confidence, weather, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, opt := range options {
		var weather []byte
		if opt.Weather != nil {
			weather, err = json.Marshal(opt.Weather)
			if err != nil {
				return fmt.Errorf("failed to marshal weather snapshot: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, insert,
			opt.ID, opt.BookingID, opt.CandidateAt, opt.Score, opt.Confidence, weather, opt.GeneratedAt,
		); err != nil {
			return fmt.Errorf("failed to insert option: %w", err)
		}
	}
	return tx.Commit()
}

// GetOptions retrieves the live option set for a booking, best first.
func (c *Client) GetOptions(ctx context.Context, bookingID uuid.UUID) ([]*types.RescheduleOption, error) {
	query := `
		SELECT id, booking_id, candidate_at, score, confidence, weather, generated_at
		FROM reschedule_options
		WHERE booking_id = $1
		ORDER BY confidence DESC, candidate_at
	`
	rows, err := c.db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var options []*types.RescheduleOption
	for rows.Next() {
		var opt types.RescheduleOption
		var weather []byte
		if err := rows.Scan(&opt.ID, &opt.BookingID, &opt.CandidateAt, &opt.Score, &opt.Confidence, &weather, &opt.GeneratedAt); err != nil {
			return nil, err
		}
		if len(weather) > 0 {
			if err := json.Unmarshal(weather, &opt.Weather); err != nil {
				return nil, fmt.Errorf("failed to unmarshal weather snapshot: %w", err)
			}
		}
		options = append(options, &opt)
	}
	return options, rows.Err()
}

// GetOption retrieves a single option by id.
func (c *Client) GetOption(ctx context.Context, id uuid.UUID) (*types.RescheduleOption, error) {
	query := `
		SELECT id, booking_id, candidate_at, score, confidence, weather, generated_at
		FROM reschedule_options
		WHERE id = $1
	`
	var opt types.RescheduleOption
	var weather []byte
	err := c.db.QueryRowContext(ctx, query, id).Scan(
		&opt.ID, &opt.BookingID, &opt.CandidateAt, &opt.Score, &opt.Confidence, &weather, &opt.GeneratedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("option %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if len(weather) > 0 {
		if err := json.Unmarshal(weather, &opt.Weather); err != nil {
			return nil, fmt.Errorf("failed to unmarshal weather snapshot: %w", err)
		}
	}
	return &opt, nil
}

// InitRanking creates or resets the empty preference row for one participant,
// stamping the submission deadline. Called when options are generated.
func (c *Client) InitRanking(ctx context.Context, r *types.PreferenceRanking) error {
	query := `
		INSERT INTO preference_rankings (booking_id, participant_id, role, ranked, unavailable, deadline, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULL)
		ON CONFLICT (booking_id, participant_id)
		DO UPDATE SET ranked = $4, unavailable = $5, deadline = $6, submitted_at = NULL
	`
	_, err := c.db.ExecContext(ctx, query,
		r.BookingID, r.ParticipantID, r.Role,
		pq.Array(uuidStrings(r.Ranked)), pq.Array(uuidStrings(r.Unavailable)), r.Deadline,
	)
	return err
}

// SubmitRanking overwrites a participant's choices and stamps submitted_at.
// Last write wins; deadline enforcement lives in the resolver.
func (c *Client) SubmitRanking(ctx context.Context, r *types.PreferenceRanking) error {
	query := `
		UPDATE preference_rankings
		SET ranked = $1, unavailable = $2, submitted_at = $3
		WHERE booking_id = $4 AND participant_id = $5
	`
	res, err := c.db.ExecContext(ctx, query,
		pq.Array(uuidStrings(r.Ranked)), pq.Array(uuidStrings(r.Unavailable)),
		r.SubmittedAt, r.BookingID, r.ParticipantID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRankingNotFound
	}
	return nil
}

// GetRanking retrieves one participant's preference row.
func (c *Client) GetRanking(ctx context.Context, bookingID, participantID uuid.UUID) (*types.PreferenceRanking, error) {
	query := `
		SELECT booking_id, participant_id, role, ranked, unavailable, deadline, submitted_at
		FROM preference_rankings
		WHERE booking_id = $1 AND participant_id = $2
	`
	r, err := scanRanking(c.db.QueryRowContext(ctx, query, bookingID, participantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRankingNotFound
	}
	return r, err
}

// GetRankings retrieves both participants' preference rows for a booking.
func (c *Client) GetRankings(ctx context.Context, bookingID uuid.UUID) ([]*types.PreferenceRanking, error) {
	query := `
		SELECT booking_id, participant_id, role, ranked, unavailable, deadline, submitted_at
		FROM preference_rankings
		WHERE booking_id = $1
	`
	rows, err := c.db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rankings []*types.PreferenceRanking
	for rows.Next() {
		r, err := scanRanking(rows)
		if err != nil {
			return nil, err
		}
		rankings = append(rankings, r)
	}
	return rankings, rows.Err()
}

func scanRanking(row interface{ Scan(...any) error }) (*types.PreferenceRanking, error) {
	var r types.PreferenceRanking
	var ranked, unavailable pq.StringArray
	var submittedAt sql.NullTime
	err := row.Scan(&r.BookingID, &r.ParticipantID, &r.Role, &ranked, &unavailable, &r.Deadline, &submittedAt)
	if err != nil {
		return nil, err
	}
	if r.Ranked, err = parseUUIDs(ranked); err != nil {
		return nil, err
	}
	if r.Unavailable, err = parseUUIDs(unavailable); err != nil {
		return nil, err
	}
	if submittedAt.Valid {
		r.SubmittedAt = &submittedAt.Time
	}
	return &r, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseUUIDs(strs []string) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, s := range strs {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid uuid %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// IsAvailable reports whether the user can fly the [startHH, endHH) window on
// the given date. A date-specific override wins over the weekly pattern.
func (c *Client) IsAvailable(ctx context.Context, userID uuid.UUID, date time.Time, startHH, endHH int) (bool, error) {
	day := date.Format("2006-01-02")

	var available bool
	var oStart, oEnd sql.NullInt64
	err := c.db.QueryRowContext(ctx,
		`SELECT available, start_hh, end_hh FROM availability_overrides WHERE user_id = $1 AND date = $2`,
		userID, day,
	).Scan(&available, &oStart, &oEnd)
	switch {
	case err == nil:
		if !available {
			return false, nil
		}
		if !oStart.Valid || !oEnd.Valid {
			return true, nil // available all day
		}
		return int(oStart.Int64) <= startHH && endHH <= int(oEnd.Int64), nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, err
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT start_hh, end_hh FROM weekly_availability WHERE user_id = $1 AND weekday = $2`,
		userID, int(date.Weekday()),
	)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var s, e int
		if err := rows.Scan(&s, &e); err != nil {
			return false, err
		}
		if s <= startHH && endHH <= e {
			return true, nil
		}
	}
	return false, rows.Err()
}

// RecordAudit appends an audit entry. Callers treat failures as non-fatal.
func (c *Client) RecordAudit(ctx context.Context, e *types.AuditEntry) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal audit data: %w", err)
	}
	query := `
		INSERT INTO audit_log (id, event_type, entity_type, entity_id, actor_id, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.ExecContext(ctx, query, e.ID, e.EventType, e.EntityType, e.EntityID, e.ActorID, data, e.CreatedAt)
	return err
}

// StoreScanRun persists one monitor run's counters.
func (c *Client) StoreScanRun(ctx context.Context, startedAt time.Time, processed, conflicts, cleared, skipped, errored int) error {
	query := `
		INSERT INTO scan_runs (started_at, finished_at, processed, conflicts, cleared, skipped, errored)
		VALUES ($1, NOW(), $2, $3, $4, $5, $6)
	`
	_, err := c.db.ExecContext(ctx, query, startedAt, processed, conflicts, cleared, skipped, errored)
	return err
}
