package api

import (
	"sync"

	"github.com/skysched/flightwx/internal/nats"
)

// AlertFeed retains the most recent weather alert events seen on the event
// stream so the API can serve them without a round trip to the broker.
type AlertFeed struct {
	mu     sync.Mutex
	max    int
	events []*nats.WeatherAlertEvent
}

// NewAlertFeed creates a feed bounded to max retained events.
func NewAlertFeed(max int) *AlertFeed {
	return &AlertFeed{max: max}
}

// Record appends an event, dropping the oldest past the bound. The signature
// matches the alert subscription handler.
func (f *AlertFeed) Record(ev *nats.WeatherAlertEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	if len(f.events) > f.max {
		f.events = f.events[len(f.events)-f.max:]
	}
}

// Recent returns the retained events, newest first.
func (f *AlertFeed) Recent() []*nats.WeatherAlertEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*nats.WeatherAlertEvent, len(f.events))
	for i, ev := range f.events {
		out[len(f.events)-1-i] = ev
	}
	return out
}
