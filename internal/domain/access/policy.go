package access

import (
	"context"

	"github.com/eventhub-live/server/internal/domain/events"
)

// Scope names the resource views a caller may request on an event.
type Scope string

const (
	ScopeMessages          Scope = "messages"
	ScopeRegistrationsList Scope = "registrations_list"
	ScopeRealtimeStream    Scope = "realtime_stream"
)

// RegistrationChecker reports whether a user currently holds an active
// registration for an event.
type RegistrationChecker interface {
	HasActiveRegistration(ctx context.Context, eventID, userID string) (bool, error)
}

// Policy is the single viewer-permission predicate. Every place that
// gates an event-scoped view (message list and post, registration list,
// stream subscription) asks this one question instead of re-deriving
// owner/participant checks locally.
type Policy struct {
	registrations RegistrationChecker
}

func NewPolicy(registrations RegistrationChecker) *Policy {
	return &Policy{registrations: registrations}
}

// CanView rules:
//   - the owner is allowed every scope on their own event
//   - messages and realtime stream: non-owners need an active registration
//   - registrations list: owner only
//   - anonymous viewers are never allowed
func (p *Policy) CanView(ctx context.Context, event *events.Event, viewerID string, scope Scope) (bool, error) {
	if event == nil || viewerID == "" {
		return false, nil
	}
	if event.OwnerID == viewerID {
		return true, nil
	}

	switch scope {
	case ScopeMessages, ScopeRealtimeStream:
		return p.registrations.HasActiveRegistration(ctx, event.ID, viewerID)
	case ScopeRegistrationsList:
		return false, nil
	default:
		return false, nil
	}
}
