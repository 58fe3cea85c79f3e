package memory

import (
	"context"
	"sync"

	"reclaim/internal/domain"
)

// RecordedEvent is one captured outbound notification.
type RecordedEvent struct {
	Name    string
	MatchID string
	ClaimID string
	Actor   string
	Reason  string
}

// EventRecorder captures published events for inspection in tests and local
// runs instead of pushing them to the bus.
type EventRecorder struct {
	mu     sync.Mutex
	events []RecordedEvent
}

func NewEventRecorder() *EventRecorder { return &EventRecorder{} }

func (r *EventRecorder) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Named returns the captured events with the given name.
func (r *EventRecorder) Named(name string) []RecordedEvent {
	var out []RecordedEvent
	for _, ev := range r.Events() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (r *EventRecorder) record(ev RecordedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *EventRecorder) MatchDetected(ctx context.Context, m domain.Match) error {
	r.record(RecordedEvent{Name: "match.detected", MatchID: m.ID})
	return nil
}

func (r *EventRecorder) MatchConfirmed(ctx context.Context, m domain.Match, actor string) error {
	r.record(RecordedEvent{Name: "match.confirmed", MatchID: m.ID, Actor: actor})
	return nil
}

func (r *EventRecorder) MatchRejected(ctx context.Context, m domain.Match, actor, reason string) error {
	r.record(RecordedEvent{Name: "match.rejected", MatchID: m.ID, Actor: actor, Reason: reason})
	return nil
}

func (r *EventRecorder) MatchExpired(ctx context.Context, m domain.Match, wasConfirmed bool) error {
	r.record(RecordedEvent{Name: "match.expired", MatchID: m.ID})
	return nil
}

func (r *EventRecorder) ClaimInitiated(ctx context.Context, c domain.Claim) error {
	r.record(RecordedEvent{Name: "claim.initiated", MatchID: c.MatchID, ClaimID: c.ID})
	return nil
}

func (r *EventRecorder) ClaimVerified(ctx context.Context, c domain.Claim) error {
	r.record(RecordedEvent{Name: "claim.verified", MatchID: c.MatchID, ClaimID: c.ID})
	return nil
}

func (r *EventRecorder) ClaimExpired(ctx context.Context, c domain.Claim) error {
	r.record(RecordedEvent{Name: "claim.expired", MatchID: c.MatchID, ClaimID: c.ID})
	return nil
}
