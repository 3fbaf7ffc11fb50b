package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TrainingLevel identifies the trainee certification tier a booking flies under.
type TrainingLevel string

const (
	TrainingLevelNovice     TrainingLevel = "novice"
	TrainingLevelCertified  TrainingLevel = "certified"
	TrainingLevelInstrument TrainingLevel = "instrument"
)

// BookingStatus is the booking state machine:
// CONFIRMED -> AT_RISK -> RESCHEDULING -> CONFIRMED, with CANCELLED and
// COMPLETED as terminal states.
type BookingStatus string

const (
	BookingStatusConfirmed    BookingStatus = "CONFIRMED"
	BookingStatusAtRisk       BookingStatus = "AT_RISK"
	BookingStatusRescheduling BookingStatus = "RESCHEDULING"
	BookingStatusCancelled    BookingStatus = "CANCELLED"
	BookingStatusCompleted    BookingStatus = "COMPLETED"
)

// Terminal reports whether no further transition is allowed from s.
func (s BookingStatus) Terminal() bool {
	return s == BookingStatusCancelled || s == BookingStatusCompleted
}

// CanTransitionTo reports whether the state machine permits moving to next.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	switch s {
	case BookingStatusConfirmed:
		return next == BookingStatusAtRisk || next == BookingStatusCancelled || next == BookingStatusCompleted
	case BookingStatusAtRisk:
		return next == BookingStatusConfirmed || next == BookingStatusRescheduling || next == BookingStatusCancelled
	case BookingStatusRescheduling:
		return next == BookingStatusConfirmed || next == BookingStatusCancelled
	default:
		return false
	}
}

// Coordinate is a WGS84 lat/lon pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Booking represents a scheduled training flight between a student and an
// instructor.
type Booking struct {
	ID               uuid.UUID     `json:"id"`
	StudentID        uuid.UUID     `json:"student_id"`
	InstructorID     uuid.UUID     `json:"instructor_id"`
	DepartureAirport string        `json:"departure_airport"`
	ArrivalAirport   string        `json:"arrival_airport"`
	DepartureCoord   Coordinate    `json:"departure_coord"`
	ArrivalCoord     Coordinate    `json:"arrival_coord"`
	ScheduledAt      time.Time     `json:"scheduled_at"`
	DurationMins     int           `json:"duration_mins"`
	TrainingLevel    TrainingLevel `json:"training_level"`
	Status           BookingStatus `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Condition is a normalized weather condition tag reported by a provider.
type Condition string

const (
	CondClear        Condition = "clear"
	CondClouds       Condition = "clouds"
	CondRain         Condition = "rain"
	CondDrizzle      Condition = "drizzle"
	CondSnow         Condition = "snow"
	CondFog          Condition = "fog"
	CondMist         Condition = "mist"
	CondThunderstorm Condition = "thunderstorm"
	CondIcing        Condition = "icing"
	CondHail         Condition = "hail"
)

// WeatherReading is a normalized observation or forecast for one coordinate.
// Immutable once produced.
type WeatherReading struct {
	Coord        Coordinate      `json:"coord"`
	Timestamp    time.Time       `json:"timestamp"`
	VisibilitySM float64         `json:"visibility_sm"`
	CeilingFt    *float64        `json:"ceiling_ft,omitempty"`
	WindSpeedKts float64         `json:"wind_speed_kts"`
	WindDirDeg   float64         `json:"wind_dir_deg"`
	CrosswindKts float64         `json:"crosswind_kts"`
	TemperatureC float64         `json:"temperature_c"`
	HumidityPct  float64         `json:"humidity_pct"`
	PressureHpa  float64         `json:"pressure_hpa"`
	Conditions   []Condition     `json:"conditions"`
	Source       string          `json:"source"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

// HasCondition reports whether the reading carries the given tag.
func (r *WeatherReading) HasCondition(c Condition) bool {
	for _, rc := range r.Conditions {
		if rc == c {
			return true
		}
	}
	return false
}

// MinimumsProfile holds the weather thresholds a pilot of a given training
// level may fly under. Optional thresholds are nil when the level does not
// constrain that dimension.
type MinimumsProfile struct {
	Level           TrainingLevel `json:"level"`
	MinVisibilitySM float64       `json:"min_visibility_sm"`
	MinCeilingFt    *float64      `json:"min_ceiling_ft,omitempty"`
	MaxWindKts      float64       `json:"max_wind_kts"`
	MaxCrosswindKts *float64      `json:"max_crosswind_kts,omitempty"`
	Allowed         []Condition   `json:"allowed,omitempty"`
	Prohibited      []Condition   `json:"prohibited,omitempty"`
}

// Prohibits reports whether c is in the profile's prohibited set.
func (p *MinimumsProfile) Prohibits(c Condition) bool {
	for _, pc := range p.Prohibited {
		if pc == c {
			return true
		}
	}
	return false
}

// Violation dimensions reported by the validator.
const (
	DimVisibility = "visibility"
	DimCeiling    = "ceiling"
	DimWind       = "wind"
	DimCrosswind  = "crosswind"
	DimConditions = "conditions"
)

// Violation describes one failed minimums check.
type Violation struct {
	Dimension string  `json:"dimension"`
	Message   string  `json:"message"`
	Limit     float64 `json:"limit,omitempty"`
	Actual    float64 `json:"actual,omitempty"`
}

// ValidationResult is the outcome of checking one reading against a profile.
type ValidationResult struct {
	IsValid    bool        `json:"is_valid"`
	Violations []Violation `json:"violations,omitempty"`
	Confidence float64     `json:"confidence"` // fraction in [0,1]
}

// PointValidation pairs a corridor sample point with its reading and result.
type PointValidation struct {
	Coord   Coordinate       `json:"coord"`
	Reading *WeatherReading  `json:"reading,omitempty"`
	Result  ValidationResult `json:"result"`
}

// FlightValidation aggregates corridor-wide validation. IsValid is the AND
// across sample points; Confidence is the arithmetic mean.
type FlightValidation struct {
	IsValid    bool              `json:"is_valid"`
	Confidence float64           `json:"confidence"`
	Points     []PointValidation `json:"points"`
}

// AllViolations flattens the per-point violation lists.
func (v *FlightValidation) AllViolations() []Violation {
	var out []Violation
	for _, p := range v.Points {
		out = append(out, p.Result.Violations...)
	}
	return out
}

// ConflictSeverity is the urgency tier derived from time until departure.
type ConflictSeverity string

const (
	SeverityNone     ConflictSeverity = "none"
	SeverityWarning  ConflictSeverity = "warning"
	SeverityCritical ConflictSeverity = "critical"
)

// ConflictKindWeather is currently the only conflict kind produced.
const ConflictKindWeather = "weather"

// ConflictResult is the outcome of evaluating one booking during a scan.
// Produced fresh every scan; only its side effects persist.
type ConflictResult struct {
	BookingID       uuid.UUID         `json:"booking_id"`
	HasConflict     bool              `json:"has_conflict"`
	Kind            string            `json:"kind,omitempty"`
	Severity        ConflictSeverity  `json:"severity"`
	ShouldNotify    bool              `json:"should_notify"`
	Validation      *FlightValidation `json:"validation,omitempty"`
	Recommendations []string          `json:"recommendations,omitempty"`
}

// RescheduleOption is one scored alternative departure time for a booking.
type RescheduleOption struct {
	ID          uuid.UUID       `json:"id"`
	BookingID   uuid.UUID       `json:"booking_id"`
	CandidateAt time.Time       `json:"candidate_at"`
	Score       float64         `json:"score"`
	Confidence  float64         `json:"confidence"` // fraction in [0,1]
	Weather     *WeatherReading `json:"weather,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// ParticipantRole distinguishes the two sides of a booking.
type ParticipantRole string

const (
	RoleStudent    ParticipantRole = "student"
	RoleInstructor ParticipantRole = "instructor"
)

// PreferenceRanking is one participant's response to a generated option set:
// up to three ranked option ids plus a set of options marked unavailable.
// A row is created empty when options are generated and becomes immutable
// once the deadline passes.
type PreferenceRanking struct {
	BookingID     uuid.UUID       `json:"booking_id"`
	ParticipantID uuid.UUID       `json:"participant_id"`
	Role          ParticipantRole `json:"role"`
	Ranked        []uuid.UUID     `json:"ranked"` // ordered, len <= 3
	Unavailable   []uuid.UUID     `json:"unavailable"`
	Deadline      time.Time       `json:"deadline"`
	SubmittedAt   *time.Time      `json:"submitted_at,omitempty"`
}

// Submitted reports whether the participant has recorded a response.
func (p *PreferenceRanking) Submitted() bool {
	return p.SubmittedAt != nil
}

// FirstChoice returns the highest-ranked option id, or nil when the
// participant ranked nothing.
func (p *PreferenceRanking) FirstChoice() *uuid.UUID {
	if len(p.Ranked) == 0 {
		return nil
	}
	id := p.Ranked[0]
	return &id
}

// AuditEntry records one auditable engine action.
type AuditEntry struct {
	ID         uuid.UUID      `json:"id"`
	EventType  string         `json:"event_type"`
	EntityType string         `json:"entity_type"`
	EntityID   uuid.UUID      `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Data       map[string]any `json:"data,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Audit event types emitted by the engine.
const (
	AuditStatusChanged     = "booking.status_changed"
	AuditOptionsGenerated  = "booking.options_generated"
	AuditPreferenceRecord  = "booking.preference_recorded"
	AuditRescheduleApplied = "booking.reschedule_applied"
)

// WeeklyAvailability is a recurring weekly availability window for a user.
type WeeklyAvailability struct {
	UserID  uuid.UUID    `json:"user_id"`
	Weekday time.Weekday `json:"weekday"`
	StartHH int          `json:"start_hh"` // inclusive hour, 0-23
	EndHH   int          `json:"end_hh"`   // exclusive hour, 1-24
}

// AvailabilityOverride is a date-specific exception; it wins over the weekly
// pattern for its date.
type AvailabilityOverride struct {
	UserID    uuid.UUID `json:"user_id"`
	Date      time.Time `json:"date"` // midnight, date-only
	Available bool      `json:"available"`
	StartHH   *int      `json:"start_hh,omitempty"`
	EndHH     *int      `json:"end_hh,omitempty"`
}
