package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/skysched/flightwx/internal/db/migrations"
	"github.com/skysched/flightwx/internal/testutils"
	"github.com/skysched/flightwx/internal/types"
)

func setupTestDatabase(t *testing.T) (*Client, func()) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("flightwx"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections"),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get PostgreSQL connection string: %v", err)
	}

	sqlDB, err := sql.Open("postgres", connStr+"&sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to open database connection: %v", err)
	}
	if err := sqlDB.Ping(); err != nil {
		t.Fatalf("Database ping failed: %v", err)
	}

	migrator := migrations.New(sqlDB)
	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Failed to initialize migrator: %v", err)
	}
	if err := migrator.Migrate([]*migrations.Migration{
		migrations.InitialSchema,
		migrations.ScanRuns,
	}); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		sqlDB.Close()
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	}
	return NewWithDB(sqlDB), cleanup
}

func TestBookingRoundTrip_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	booking := testutils.MockBooking(types.TrainingLevelNovice, time.Now().UTC().Add(3*time.Hour).Truncate(time.Second))
	if err := client.CreateBooking(ctx, booking); err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}

	got, err := client.GetBooking(ctx, booking.ID)
	if err != nil {
		t.Fatalf("GetBooking() error = %v", err)
	}
	if got.Status != types.BookingStatusConfirmed {
		t.Errorf("GetBooking() status = %s, want %s", got.Status, types.BookingStatusConfirmed)
	}
	if !got.ScheduledAt.Equal(booking.ScheduledAt) {
		t.Errorf("GetBooking() scheduled_at = %v, want %v", got.ScheduledAt, booking.ScheduledAt)
	}

	due, err := client.ListBookingsDueWithin(ctx, 12*time.Hour, []types.BookingStatus{types.BookingStatusConfirmed})
	if err != nil {
		t.Fatalf("ListBookingsDueWithin() error = %v", err)
	}
	if len(due) != 1 || due[0].ID != booking.ID {
		t.Errorf("ListBookingsDueWithin() = %d bookings, want the created one", len(due))
	}

	if err := client.UpdateBookingStatus(ctx, booking.ID, types.BookingStatusAtRisk); err != nil {
		t.Fatalf("UpdateBookingStatus() error = %v", err)
	}
	got, err = client.GetBooking(ctx, booking.ID)
	if err != nil {
		t.Fatalf("GetBooking() after update error = %v", err)
	}
	if got.Status != types.BookingStatusAtRisk {
		t.Errorf("status after update = %s, want %s", got.Status, types.BookingStatusAtRisk)
	}

	if _, err := client.GetBooking(ctx, uuid.New()); err != ErrBookingNotFound {
		t.Errorf("GetBooking(unknown) error = %v, want ErrBookingNotFound", err)
	}
}

func TestOptionsAndRankings_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	client, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	booking := testutils.MockBooking(types.TrainingLevelCertified, time.Now().UTC().Add(4*time.Hour).Truncate(time.Second))
	if err := client.CreateBooking(ctx, booking); err != nil {
		t.Fatalf("CreateBooking() error = %v", err)
	}

	generated := time.Now().UTC().Truncate(time.Second)
	options := []*types.RescheduleOption{
		{
			ID:          uuid.New(),
			BookingID:   booking.ID,
			CandidateAt: booking.ScheduledAt.Add(24 * time.Hour),
			Score:       100,
			Confidence:  1,
			Weather:     testutils.ClearReading(booking.DepartureCoord, booking.ScheduledAt.Add(24*time.Hour)),
			GeneratedAt: generated,
		},
		{
			ID:          uuid.New(),
			BookingID:   booking.ID,
			CandidateAt: booking.ScheduledAt.Add(26 * time.Hour),
			Score:       98,
			Confidence:  0.8,
			GeneratedAt: generated,
		},
	}
	if err := client.ReplaceOptions(ctx, booking.ID, options); err != nil {
		t.Fatalf("ReplaceOptions() error = %v", err)
	}

	stored, err := client.GetOptions(ctx, booking.ID)
	if err != nil {
		t.Fatalf("GetOptions() error = %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("GetOptions() returned %d options, want 2", len(stored))
	}
	if stored[0].ID != options[0].ID {
		t.Errorf("GetOptions() order: first = %s, want the higher-confidence option", stored[0].ID)
	}
	if stored[0].Weather == nil || stored[0].Weather.VisibilitySM != 10 {
		t.Errorf("GetOptions() weather snapshot not preserved: %+v", stored[0].Weather)
	}
	if stored[1].Weather != nil {
		t.Errorf("GetOptions() weather = %+v for an option stored without one", stored[1].Weather)
	}

	// Replacing again drops the old set.
	replacement := []*types.RescheduleOption{{
		ID:          uuid.New(),
		BookingID:   booking.ID,
		CandidateAt: booking.ScheduledAt.Add(48 * time.Hour),
		Score:       90,
		Confidence:  1,
		GeneratedAt: generated,
	}}
	if err := client.ReplaceOptions(ctx, booking.ID, replacement); err != nil {
		t.Fatalf("ReplaceOptions() second call error = %v", err)
	}
	stored, err = client.GetOptions(ctx, booking.ID)
	if err != nil {
		t.Fatalf("GetOptions() after replace error = %v", err)
	}
	if len(stored) != 1 || stored[0].ID != replacement[0].ID {
		t.Errorf("GetOptions() after replace = %d options, want only the replacement", len(stored))
	}

	deadline := time.Now().UTC().Add(12 * time.Hour).Truncate(time.Second)
	ranking := &types.PreferenceRanking{
		BookingID:     booking.ID,
		ParticipantID: booking.StudentID,
		Role:          types.RoleStudent,
		Deadline:      deadline,
	}
	if err := client.InitRanking(ctx, ranking); err != nil {
		t.Fatalf("InitRanking() error = %v", err)
	}

	got, err := client.GetRanking(ctx, booking.ID, booking.StudentID)
	if err != nil {
		t.Fatalf("GetRanking() error = %v", err)
	}
	if got.Submitted() {
		t.Errorf("GetRanking() Submitted() = true before any submission")
	}
	if !got.Deadline.Equal(deadline) {
		t.Errorf("GetRanking() deadline = %v, want %v", got.Deadline, deadline)
	}

	submittedAt := time.Now().UTC().Truncate(time.Second)
	ranking.Ranked = []uuid.UUID{replacement[0].ID}
	ranking.SubmittedAt = &submittedAt
	if err := client.SubmitRanking(ctx, ranking); err != nil {
		t.Fatalf("SubmitRanking() error = %v", err)
	}

	got, err = client.GetRanking(ctx, booking.ID, booking.StudentID)
	if err != nil {
		t.Fatalf("GetRanking() after submit error = %v", err)
	}
	if !got.Submitted() {
		t.Errorf("GetRanking() Submitted() = false after submission")
	}
	if len(got.Ranked) != 1 || got.Ranked[0] != replacement[0].ID {
		t.Errorf("GetRanking() ranked = %v, want [%s]", got.Ranked, replacement[0].ID)
	}

	if err := client.SubmitRanking(ctx, &types.PreferenceRanking{
		BookingID:     booking.ID,
		ParticipantID: uuid.New(),
		SubmittedAt:   &submittedAt,
	}); err != ErrRankingNotFound {
		t.Errorf("SubmitRanking(unknown participant) error = %v, want ErrRankingNotFound", err)
	}
}
