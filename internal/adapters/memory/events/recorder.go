package events

import (
	"context"
	"sync"

	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/events"
)

// Recorder keeps published events in memory so tests can observe them.
type Recorder struct {
	mu     sync.Mutex
	events []events.ClaimEvent
	// Err, when set, is returned by Publish (the event is still recorded).
	Err error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(ctx context.Context, e events.ClaimEvent) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.Err
}

// Events returns a copy of the recorded events in publish order.
func (r *Recorder) Events() []events.ClaimEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.ClaimEvent, len(r.events))
	copy(out, r.events)
	return out
}
