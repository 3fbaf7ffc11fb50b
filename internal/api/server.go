// Package api exposes the thin HTTP surface over the scheduling engine:
// scan trigger, option regeneration, preference submission/retrieval and
// resolve-and-confirm.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/skysched/flightwx/internal/db"
	"github.com/skysched/flightwx/internal/logger"
	"github.com/skysched/flightwx/internal/monitor"
	"github.com/skysched/flightwx/internal/nats"
	"github.com/skysched/flightwx/internal/preference"
	"github.com/skysched/flightwx/internal/reschedule"
	"github.com/skysched/flightwx/internal/types"
	"github.com/skysched/flightwx/internal/weather"
)

// ScanRunner triggers a full conflict scan.
type ScanRunner interface {
	RunOnce(ctx context.Context) (*monitor.RunSummary, error)
}

// OptionGenerator regenerates the option set for one booking.
type OptionGenerator interface {
	GenerateOptions(ctx context.Context, bookingID uuid.UUID, notifiedAt time.Time) ([]*types.RescheduleOption, time.Time, error)
}

// PreferenceService is the submission/resolution surface.
type PreferenceService interface {
	Submit(ctx context.Context, bookingID, participantID uuid.UUID, ranked, unavailable []uuid.UUID) error
	Get(ctx context.Context, bookingID, participantID uuid.UUID) (*types.PreferenceRanking, error)
	Confirm(ctx context.Context, bookingID uuid.UUID, actorID string) (*preference.ConfirmResult, error)
}

// OptionReader lists a booking's live options.
type OptionReader interface {
	GetOptions(ctx context.Context, bookingID uuid.UUID) ([]*types.RescheduleOption, error)
}

// Server wires the engine into a fiber app.
type Server struct {
	app         *fiber.App
	scans       ScanRunner
	engine      OptionGenerator
	preferences PreferenceService
	options     OptionReader
	alerts      *AlertFeed
	log         *logger.Logger
}

// New builds the HTTP server.
func New(scans ScanRunner, engine OptionGenerator, preferences PreferenceService, options OptionReader, alerts *AlertFeed, log *logger.Logger) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		}),
		scans:       scans,
		engine:      engine,
		preferences: preferences,
		options:     options,
		alerts:      alerts,
		log:         log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	v1 := s.app.Group("/v1")
	v1.Post("/scan", s.handleScan)
	v1.Post("/bookings/:id/options", s.handleRegenerate)
	v1.Get("/bookings/:id/options", s.handleListOptions)
	v1.Put("/bookings/:id/preferences/:participant", s.handleSubmitPreference)
	v1.Get("/bookings/:id/preferences/:participant", s.handleGetPreference)
	v1.Post("/bookings/:id/confirm", s.handleConfirm)
	v1.Get("/alerts/recent", s.handleRecentAlerts)
}

// Listen serves until the listener fails or is shut down.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) handleScan(c *fiber.Ctx) error {
	summary, err := s.scans.RunOnce(c.Context())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(summary)
}

func (s *Server) handleRegenerate(c *fiber.Ctx) error {
	bookingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid booking id")
	}
	options, deadline, err := s.engine.GenerateOptions(c.Context(), bookingID, time.Now())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"options":  options,
		"deadline": deadline,
	})
}

func (s *Server) handleListOptions(c *fiber.Ctx) error {
	bookingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid booking id")
	}
	options, err := s.options.GetOptions(c.Context(), bookingID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"options": options})
}

type submitPreferenceRequest struct {
	Ranked      []uuid.UUID `json:"ranked"`
	Unavailable []uuid.UUID `json:"unavailable"`
}

func (s *Server) handleSubmitPreference(c *fiber.Ctx) error {
	bookingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid booking id")
	}
	participantID, err := uuid.Parse(c.Params("participant"))
	if err != nil {
		return badRequest(c, "invalid participant id")
	}
	var req submitPreferenceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := s.preferences.Submit(c.Context(), bookingID, participantID, req.Ranked, req.Unavailable); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleGetPreference(c *fiber.Ctx) error {
	bookingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid booking id")
	}
	participantID, err := uuid.Parse(c.Params("participant"))
	if err != nil {
		return badRequest(c, "invalid participant id")
	}
	ranking, err := s.preferences.Get(c.Context(), bookingID, participantID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(ranking)
}

func (s *Server) handleConfirm(c *fiber.Ctx) error {
	bookingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid booking id")
	}
	actorID := c.Get("X-Actor-ID", "api")
	result, err := s.preferences.Confirm(c.Context(), bookingID, actorID)
	if errors.Is(err, preference.ErrRevalidationFailed) {
		// Not silently confirmed: the caller must regenerate options.
		return c.Status(fiber.StatusConflict).JSON(result)
	}
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(result)
}

func (s *Server) handleRecentAlerts(c *fiber.Ctx) error {
	events := []*nats.WeatherAlertEvent{}
	if s.alerts != nil {
		events = append(events, s.alerts.Recent()...)
	}
	return c.JSON(fiber.Map{"alerts": events})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// fail maps engine errors onto HTTP statuses.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, db.ErrBookingNotFound), errors.Is(err, db.ErrRankingNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, preference.ErrDeadlinePassed),
		errors.Is(err, preference.ErrAwaitingSubmissions),
		errors.Is(err, preference.ErrNoResolution),
		errors.Is(err, reschedule.ErrNoValidSlot):
		status = fiber.StatusConflict
	case errors.Is(err, weather.ErrWeatherUnavailable):
		status = fiber.StatusServiceUnavailable
	}
	if status == fiber.StatusInternalServerError {
		s.log.Error("request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
