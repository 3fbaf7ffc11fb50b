package nats

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/skysched/flightwx/internal/types"
)

// Subjects carried on the scheduler event stream.
const (
	SubjectWeatherAlert     = "sched.weather.alert"
	SubjectWeatherCleared   = "sched.weather.cleared"
	SubjectOptionsAvailable = "sched.reschedule.options"
)

// WeatherAlertEvent notifies participants that their flight is at risk.
type WeatherAlertEvent struct {
	BookingID  uuid.UUID              `json:"booking_id"`
	Severity   types.ConflictSeverity `json:"severity"`
	Violations []types.Violation      `json:"violations"`
	SentAt     time.Time              `json:"sent_at"`
}

// WeatherClearedEvent notifies participants that a previously flagged flight
// is back within minimums.
type WeatherClearedEvent struct {
	BookingID uuid.UUID `json:"booking_id"`
	SentAt    time.Time `json:"sent_at"`
}

// OptionsAvailableEvent notifies participants that reschedule options are
// ready and a preference deadline is running.
type OptionsAvailableEvent struct {
	BookingID uuid.UUID `json:"booking_id"`
	Options   int       `json:"options"`
	Deadline  time.Time `json:"deadline"`
	SentAt    time.Time `json:"sent_at"`
}

// Client represents a NATS client
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New creates a new NATS client
func New(url string) (*Client, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	// Create stream if it doesn't exist
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     "SCHED_EVENTS",
		Subjects: []string{"sched.>"},
		Storage:  nats.FileStorage,
		MaxAge:   72 * time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn: nc,
		js:   js,
	}, nil
}

func (c *Client) publish(subject string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := c.js.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// SendWeatherAlert publishes a weather alert for a booking.
func (c *Client) SendWeatherAlert(bookingID uuid.UUID, severity types.ConflictSeverity, violations []types.Violation) error {
	return c.publish(SubjectWeatherAlert, &WeatherAlertEvent{
		BookingID:  bookingID,
		Severity:   severity,
		Violations: violations,
		SentAt:     time.Now().UTC(),
	})
}

// SendWeatherCleared publishes an all-clear for a previously flagged booking.
func (c *Client) SendWeatherCleared(bookingID uuid.UUID) error {
	return c.publish(SubjectWeatherCleared, &WeatherClearedEvent{
		BookingID: bookingID,
		SentAt:    time.Now().UTC(),
	})
}

// SendOptionsAvailable publishes that fresh reschedule options exist.
func (c *Client) SendOptionsAvailable(bookingID uuid.UUID, optionCount int, deadline time.Time) error {
	return c.publish(SubjectOptionsAvailable, &OptionsAvailableEvent{
		BookingID: bookingID,
		Options:   optionCount,
		Deadline:  deadline,
		SentAt:    time.Now().UTC(),
	})
}

// SubscribeWeatherAlerts subscribes to weather alert events. Delivery
// consumers (email, in-app) hang off this.
func (c *Client) SubscribeWeatherAlerts(handler func(*WeatherAlertEvent)) error {
	_, err := c.js.Subscribe(SubjectWeatherAlert, func(msg *nats.Msg) {
		var ev WeatherAlertEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		handler(&ev)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	return nil
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
