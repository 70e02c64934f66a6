package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eventhub"

// Registry holds every metric the server exposes on /metrics.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// RegistrationsTotal counts signup attempts by outcome:
// created, already_registered, event_full, canceled.
var RegistrationsTotal = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Registration lifecycle operations by outcome",
	},
	[]string{"outcome"},
)

// StreamConnections tracks currently open realtime subscriptions.
var StreamConnections = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stream_connections",
		Help:      "Open realtime stream subscriptions",
	},
	[]string{"channel"},
)

// StreamFramesDropped counts frames discarded because a subscriber's
// buffer was full.
var StreamFramesDropped = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_frames_dropped_total",
		Help:      "Realtime frames dropped for slow subscribers",
	},
)

// MessagesPosted counts accepted message board posts.
var MessagesPosted = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_posted_total",
		Help:      "Messages accepted onto event boards",
	},
)

// NotificationsAppended counts stored notifications by type.
var NotificationsAppended = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_appended_total",
		Help:      "Notifications appended to user stores",
	},
	[]string{"type"},
)
