package migrations

// InitialSchema creates the scheduling tables.
var InitialSchema = &Migration{
	Name: "001_initial_schema",
	UpSQL: `
		-- Training flight bookings
		CREATE TABLE IF NOT EXISTS bookings (
			id UUID PRIMARY KEY,
			student_id UUID NOT NULL,
			instructor_id UUID NOT NULL,
			departure_airport TEXT NOT NULL,
			arrival_airport TEXT NOT NULL,
			departure_lat DOUBLE PRECISION NOT NULL,
			departure_lon DOUBLE PRECISION NOT NULL,
			arrival_lat DOUBLE PRECISION NOT NULL,
			arrival_lon DOUBLE PRECISION NOT NULL,
			scheduled_at TIMESTAMPTZ NOT NULL,
			duration_mins INTEGER NOT NULL,
			training_level TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_bookings_scheduled_at ON bookings (scheduled_at);
		CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings (status);

		-- Generated reschedule options; replaced wholesale on regeneration
		CREATE TABLE IF NOT EXISTS reschedule_options (
			id UUID PRIMARY KEY,
			booking_id UUID NOT NULL REFERENCES bookings (id) ON DELETE CASCADE,
			candidate_at TIMESTAMPTZ NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			weather JSONB,
			generated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_reschedule_options_booking ON reschedule_options (booking_id);

		-- One row per (booking, participant)
		CREATE TABLE IF NOT EXISTS preference_rankings (
			booking_id UUID NOT NULL REFERENCES bookings (id) ON DELETE CASCADE,
			participant_id UUID NOT NULL,
			role TEXT NOT NULL,
			ranked TEXT[] NOT NULL DEFAULT '{}',
			unavailable TEXT[] NOT NULL DEFAULT '{}',
			deadline TIMESTAMPTZ NOT NULL,
			submitted_at TIMESTAMPTZ,
			PRIMARY KEY (booking_id, participant_id)
		);

		-- Append-only audit trail
		CREATE TABLE IF NOT EXISTS audit_log (
			id UUID PRIMARY KEY,
			event_type TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id UUID NOT NULL,
			actor_id TEXT NOT NULL,
			data JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log (entity_type, entity_id);

		-- Recurring weekly availability plus date-specific overrides
		CREATE TABLE IF NOT EXISTS weekly_availability (
			user_id UUID NOT NULL,
			weekday INTEGER NOT NULL CHECK (weekday BETWEEN 0 AND 6),
			start_hh INTEGER NOT NULL CHECK (start_hh BETWEEN 0 AND 23),
			end_hh INTEGER NOT NULL CHECK (end_hh BETWEEN 1 AND 24),
			PRIMARY KEY (user_id, weekday, start_hh)
		);

		CREATE TABLE IF NOT EXISTS availability_overrides (
			user_id UUID NOT NULL,
			date DATE NOT NULL,
			available BOOLEAN NOT NULL,
			start_hh INTEGER,
			end_hh INTEGER,
			PRIMARY KEY (user_id, date)
		);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS availability_overrides;
		DROP TABLE IF EXISTS weekly_availability;
		DROP TABLE IF EXISTS audit_log;
		DROP TABLE IF EXISTS preference_rankings;
		DROP TABLE IF EXISTS reschedule_options;
		DROP TABLE IF EXISTS bookings;
	`,
}
