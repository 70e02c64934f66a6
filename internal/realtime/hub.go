package realtime

import (
	"encoding/json"
	"sync"

	"github.com/eventhub-live/server/internal/metrics"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// ChannelKind selects one of the two fan-out tables.
type ChannelKind string

const (
	ChannelEvent ChannelKind = "event"
	ChannelUser  ChannelKind = "user"
)

// sendBuffer bounds how far a slow consumer may fall behind before
// frames are dropped. Delivery is best-effort with no replay, so
// dropping is the correct failure mode.
const sendBuffer = 16

// Subscription is a live connection's handle on a single channel key.
// The transport (SSE framing, websockets, a test harness) drains
// Receive; the hub never blocks on it.
type Subscription struct {
	connID string
	kind   ChannelKind
	id     string
	ch     chan []byte
}

// ID returns the connection identifier, a ULID minted at subscribe
// time. It only exists for log correlation.
func (s *Subscription) ID() string {
	return s.connID
}

// Receive yields marshaled payloads published to the subscription's
// channel after it was registered.
func (s *Subscription) Receive() <-chan []byte {
	return s.ch
}

// Hub is the in-process publish/subscribe fan-out. It is constructed
// once and injected into every handler that subscribes or publishes;
// there is no package-level instance.
type Hub struct {
	mu     sync.RWMutex
	events map[string]map[*Subscription]struct{}
	users  map[string]map[*Subscription]struct{}
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		events: make(map[string]map[*Subscription]struct{}),
		users:  make(map[string]map[*Subscription]struct{}),
		logger: logger.With().Str("component", "realtime").Logger(),
	}
}

// Subscribe registers a new connection under the given channel key.
// Authorization happens before this call; the hub only manages
// membership and delivery.
func (h *Hub) Subscribe(kind ChannelKind, id string) *Subscription {
	sub := &Subscription{connID: ulid.Make().String(), kind: kind, id: id, ch: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	table := h.table(kind)
	set, ok := table[id]
	if !ok {
		set = make(map[*Subscription]struct{})
		table[id] = set
	}
	set[sub] = struct{}{}
	metrics.StreamConnections.WithLabelValues(string(kind)).Inc()
	return sub
}

// Unsubscribe removes the connection from its set. Safe to call more
// than once; invoked when the underlying connection closes.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	table := h.table(sub.kind)
	if set, ok := table[sub.id]; ok {
		if _, member := set[sub]; member {
			delete(set, sub)
			metrics.StreamConnections.WithLabelValues(string(sub.kind)).Dec()
		}
		if len(set) == 0 {
			delete(table, sub.id)
		}
	}
}

// PublishEvent delivers payload to every live subscriber of the event
// channel. Best-effort: no subscribers is a no-op, a full buffer drops
// the frame for that subscriber only, and nothing propagates back to
// the caller.
func (h *Hub) PublishEvent(eventID string, payload any) {
	h.publish(ChannelEvent, eventID, payload)
}

// PublishUser delivers payload to every live subscriber of the user
// channel.
func (h *Hub) PublishUser(userID string, payload any) {
	h.publish(ChannelUser, userID, payload)
}

func (h *Hub) publish(kind ChannelKind, id string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error().Err(err).Str("channel", string(kind)).Str("id", id).Msg("payload marshal failed")
		return
	}

	h.mu.RLock()
	set := h.table(kind)[id]
	subs := make([]*Subscription, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- data:
		default:
			// Slow consumer; drop rather than block the others.
			metrics.StreamFramesDropped.Inc()
			h.logger.Debug().Str("channel", string(kind)).Str("id", id).Str("conn_id", sub.connID).Msg("subscriber buffer full, frame dropped")
		}
	}
}

func (h *Hub) table(kind ChannelKind) map[string]map[*Subscription]struct{} {
	if kind == ChannelUser {
		return h.users
	}
	return h.events
}

func (h *Hub) subscriberCount(kind ChannelKind, id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.table(kind)[id])
}
