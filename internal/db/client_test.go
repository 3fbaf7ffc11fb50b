package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/skysched/flightwx/internal/types"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = mockDB.Close() })
	return NewWithDB(mockDB), mock
}

func bookingRow(b *types.Booking) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "student_id", "instructor_id", "departure_airport", "arrival_airport",
		"departure_lat", "departure_lon", "arrival_lat", "arrival_lon",
		"scheduled_at", "duration_mins", "training_level", "status", "created_at", "updated_at",
	}).AddRow(
		b.ID, b.StudentID, b.InstructorID, b.DepartureAirport, b.ArrivalAirport,
		b.DepartureCoord.Lat, b.DepartureCoord.Lon, b.ArrivalCoord.Lat, b.ArrivalCoord.Lon,
		b.ScheduledAt, b.DurationMins, string(b.TrainingLevel), string(b.Status), b.CreatedAt, b.UpdatedAt,
	)
}

func sampleBooking() *types.Booking {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return &types.Booking{
		ID:               uuid.New(),
		StudentID:        uuid.New(),
		InstructorID:     uuid.New(),
		DepartureAirport: "KPAO",
		ArrivalAirport:   "KHWD",
		DepartureCoord:   types.Coordinate{Lat: 37.4611, Lon: -122.1150},
		ArrivalCoord:     types.Coordinate{Lat: 37.6593, Lon: -122.1217},
		ScheduledAt:      now.Add(5 * time.Hour),
		DurationMins:     60,
		TrainingLevel:    types.TrainingLevelCertified,
		Status:           types.BookingStatusConfirmed,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestGetBooking(t *testing.T) {
	client, mock := newMockClient(t)
	want := sampleBooking()

	mock.ExpectQuery(`(?s)SELECT .+ FROM bookings WHERE id = \$1`).
		WithArgs(want.ID).
		WillReturnRows(bookingRow(want))

	got, err := client.GetBooking(context.Background(), want.ID)
	if err != nil {
		t.Fatalf("GetBooking() error = %v", err)
	}
	if got.ID != want.ID || got.TrainingLevel != want.TrainingLevel || got.Status != want.Status {
		t.Errorf("GetBooking() = %+v, want %+v", got, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetBookingNotFound(t *testing.T) {
	client, mock := newMockClient(t)
	id := uuid.New()

	mock.ExpectQuery(`(?s)SELECT .+ FROM bookings WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := client.GetBooking(context.Background(), id)
	if !errors.Is(err, ErrBookingNotFound) {
		t.Errorf("GetBooking() error = %v, want %v", err, ErrBookingNotFound)
	}
}

func TestListBookingsDueWithin(t *testing.T) {
	client, mock := newMockClient(t)
	b1, b2 := sampleBooking(), sampleBooking()

	rows := bookingRow(b1)
	rows.AddRow(
		b2.ID, b2.StudentID, b2.InstructorID, b2.DepartureAirport, b2.ArrivalAirport,
		b2.DepartureCoord.Lat, b2.DepartureCoord.Lon, b2.ArrivalCoord.Lat, b2.ArrivalCoord.Lon,
		b2.ScheduledAt, b2.DurationMins, string(b2.TrainingLevel), string(b2.Status), b2.CreatedAt, b2.UpdatedAt,
	)

	mock.ExpectQuery(`(?s)SELECT .+ FROM bookings\s+WHERE status = ANY\(\$1\)`).
		WillReturnRows(rows)

	got, err := client.ListBookingsDueWithin(context.Background(), 48*time.Hour, []types.BookingStatus{
		types.BookingStatusConfirmed, types.BookingStatusAtRisk,
	})
	if err != nil {
		t.Fatalf("ListBookingsDueWithin() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ListBookingsDueWithin() returned %d bookings, want 2", len(got))
	}
}

func TestUpdateBookingStatus(t *testing.T) {
	client, mock := newMockClient(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE bookings SET status = \$1, updated_at = NOW\(\) WHERE id = \$2`).
		WithArgs(string(types.BookingStatusAtRisk), id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := client.UpdateBookingStatus(context.Background(), id, types.BookingStatusAtRisk); err != nil {
		t.Errorf("UpdateBookingStatus() error = %v", err)
	}
}

func TestUpdateBookingStatusNotFound(t *testing.T) {
	client, mock := newMockClient(t)
	id := uuid.New()

	mock.ExpectExec(`UPDATE bookings SET status = .+`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := client.UpdateBookingStatus(context.Background(), id, types.BookingStatusAtRisk)
	if !errors.Is(err, ErrBookingNotFound) {
		t.Errorf("UpdateBookingStatus() error = %v, want %v", err, ErrBookingNotFound)
	}
}

func TestReplaceOptions(t *testing.T) {
	client, mock := newMockClient(t)
	bookingID := uuid.New()
	opt := &types.RescheduleOption{
		ID:          uuid.New(),
		BookingID:   bookingID,
		CandidateAt: time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC),
		Score:       98,
		Confidence:  0.95,
		GeneratedAt: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM reschedule_options WHERE booking_id = $1`)).
		WithArgs(bookingID).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO reschedule_options`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := client.ReplaceOptions(context.Background(), bookingID, []*types.RescheduleOption{opt}); err != nil {
		t.Fatalf("ReplaceOptions() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReplaceOptionsRollsBackOnInsertFailure(t *testing.T) {
	client, mock := newMockClient(t)
	bookingID := uuid.New()
	opt := &types.RescheduleOption{ID: uuid.New(), BookingID: bookingID}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM reschedule_options`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO reschedule_options`).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	if err := client.ReplaceOptions(context.Background(), bookingID, []*types.RescheduleOption{opt}); err == nil {
		t.Fatalf("ReplaceOptions() expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetRanking(t *testing.T) {
	client, mock := newMockClient(t)
	bookingID, participantID := uuid.New(), uuid.New()
	opt1, opt2 := uuid.New(), uuid.New()
	deadline := time.Date(2026, 3, 2, 13, 30, 0, 0, time.UTC)
	submitted := deadline.Add(-time.Hour)

	rows := sqlmock.NewRows([]string{"booking_id", "participant_id", "role", "ranked", "unavailable", "deadline", "submitted_at"}).
		AddRow(bookingID, participantID, "instructor",
			"{"+opt1.String()+","+opt2.String()+"}", "{}", deadline, submitted)

	mock.ExpectQuery(`(?s)SELECT .+ FROM preference_rankings\s+WHERE booking_id = \$1 AND participant_id = \$2`).
		WithArgs(bookingID, participantID).
		WillReturnRows(rows)

	got, err := client.GetRanking(context.Background(), bookingID, participantID)
	if err != nil {
		t.Fatalf("GetRanking() error = %v", err)
	}
	if got.Role != types.RoleInstructor {
		t.Errorf("Role = %q, want instructor", got.Role)
	}
	if len(got.Ranked) != 2 || got.Ranked[0] != opt1 {
		t.Errorf("Ranked = %v, want [%v %v]", got.Ranked, opt1, opt2)
	}
	if !got.Submitted() {
		t.Errorf("Submitted() = false, want true")
	}
}

func TestGetRankingNotFound(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery(`FROM preference_rankings`).
		WillReturnRows(sqlmock.NewRows([]string{"booking_id"}))

	_, err := client.GetRanking(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, ErrRankingNotFound) {
		t.Errorf("GetRanking() error = %v, want %v", err, ErrRankingNotFound)
	}
}

func TestIsAvailable(t *testing.T) {
	userID := uuid.New()
	date := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC) // a Wednesday

	tests := []struct {
		name   string
		expect func(mock sqlmock.Sqlmock)
		want   bool
	}{
		{
			name: "override marks day off",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT available, start_hh, end_hh FROM availability_overrides`).
					WillReturnRows(sqlmock.NewRows([]string{"available", "start_hh", "end_hh"}).
						AddRow(false, nil, nil))
			},
			want: false,
		},
		{
			name: "override available all day",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT available, start_hh, end_hh FROM availability_overrides`).
					WillReturnRows(sqlmock.NewRows([]string{"available", "start_hh", "end_hh"}).
						AddRow(true, nil, nil))
			},
			want: true,
		},
		{
			name: "override window too narrow",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT available, start_hh, end_hh FROM availability_overrides`).
					WillReturnRows(sqlmock.NewRows([]string{"available", "start_hh", "end_hh"}).
						AddRow(true, 12, 14))
			},
			want: false,
		},
		{
			name: "weekly window covers the slot",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT available, start_hh, end_hh FROM availability_overrides`).
					WillReturnRows(sqlmock.NewRows([]string{"available", "start_hh", "end_hh"}))
				mock.ExpectQuery(`SELECT start_hh, end_hh FROM weekly_availability`).
					WillReturnRows(sqlmock.NewRows([]string{"start_hh", "end_hh"}).AddRow(8, 18))
			},
			want: true,
		},
		{
			name: "no rows at all",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT available, start_hh, end_hh FROM availability_overrides`).
					WillReturnRows(sqlmock.NewRows([]string{"available", "start_hh", "end_hh"}))
				mock.ExpectQuery(`SELECT start_hh, end_hh FROM weekly_availability`).
					WillReturnRows(sqlmock.NewRows([]string{"start_hh", "end_hh"}))
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mock := newMockClient(t)
			tt.expect(mock)

			got, err := client.IsAvailable(context.Background(), userID, date, 10, 11)
			if err != nil {
				t.Fatalf("IsAvailable() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsAvailable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecordAudit(t *testing.T) {
	client, mock := newMockClient(t)
	entry := &types.AuditEntry{
		ID:         uuid.New(),
		EventType:  types.AuditStatusChanged,
		EntityType: "booking",
		EntityID:   uuid.New(),
		ActorID:    "conflict-monitor",
		Data:       map[string]any{"previous": "CONFIRMED", "new": "AT_RISK"},
		CreatedAt:  time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO audit_log`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := client.RecordAudit(context.Background(), entry); err != nil {
		t.Errorf("RecordAudit() error = %v", err)
	}
}

func TestStoreScanRun(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec(`INSERT INTO scan_runs`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := client.StoreScanRun(context.Background(), time.Now().UTC(), 10, 2, 1, 0, 1); err != nil {
		t.Errorf("StoreScanRun() error = %v", err)
	}
}
