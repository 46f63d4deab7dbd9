package events

import (
	"context"
	"encoding/json"
	"sync"
)

// Recorded one captured event
type Recorded struct {
	RoutingKey string
	Body       json.RawMessage
}

// Recorder keeps published events in memory. Handy for tests and local runs.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(_ context.Context, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.events = append(r.events, Recorded{RoutingKey: routingKey, Body: body})
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Close() error { return nil }

// ByKey returns the events published under routingKey.
func (r *Recorder) ByKey(routingKey string) []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Recorded
	for _, e := range r.events {
		if e.RoutingKey == routingKey {
			out = append(out, e)
		}
	}
	return out
}
