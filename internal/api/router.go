package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/eventhub-live/server/internal/api/handlers"
	"github.com/eventhub-live/server/internal/api/middleware"
	"github.com/eventhub-live/server/internal/config"
	"github.com/eventhub-live/server/internal/domain/access"
	"github.com/eventhub-live/server/internal/domain/events"
	"github.com/eventhub-live/server/internal/domain/identity"
	"github.com/eventhub-live/server/internal/domain/messages"
	"github.com/eventhub-live/server/internal/domain/notifications"
	"github.com/eventhub-live/server/internal/domain/registrations"
	"github.com/eventhub-live/server/internal/metrics"
	"github.com/eventhub-live/server/internal/realtime"
	"github.com/eventhub-live/server/web"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Dependencies carries the wired services the router exposes. The
// caller owns construction and shutdown; the router only routes.
type Dependencies struct {
	Pool          *pgxpool.Pool
	Gate          *identity.Gate
	Policy        *access.Policy
	Hub           *realtime.Hub
	Events        *events.Service
	Registrations *registrations.Ledger
	Messages      *messages.Board
	Notifications *notifications.Store
}

func NewRouter(cfg config.Config, deps Dependencies, logger zerolog.Logger) http.Handler {
	env := cfg.Environment

	eventsHandler := handlers.NewEventsHandler(deps.Events, env)
	registrationsHandler := handlers.NewRegistrationsHandler(deps.Registrations, env)
	messagesHandler := handlers.NewMessagesHandler(deps.Messages, env)
	notificationsHandler := handlers.NewNotificationsHandler(deps.Notifications, env)
	streamHandler := handlers.NewStreamHandler(deps.Hub, deps.Gate, deps.Policy, deps.Events, env)

	rateLimit := middleware.RateLimit(cfg.RateLimit)
	requireAuth := middleware.RequireAuth(deps.Gate, env)
	userTier := middleware.WithRateLimitTierHandler(middleware.TierUser)

	// Public routes rate limit on the public tier; authenticated routes
	// switch tier first, then limit, then authenticate.
	public := func(h http.HandlerFunc) http.Handler {
		return rateLimit(h)
	}
	authed := func(h http.HandlerFunc) http.Handler {
		return userTier(rateLimit(requireAuth(h)))
	}
	// Streams authenticate in the handler (token rides the query string).
	stream := func(h http.HandlerFunc) http.Handler {
		return userTier(rateLimit(h))
	}

	mux := http.NewServeMux()

	mux.Handle("/{$}", web.IndexHandler())
	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", handlers.Readyz(deps.Pool))
	mux.Handle("/metrics", metrics.Handler())

	mux.Handle("/api/events", methodMux(map[string]http.Handler{
		http.MethodGet:  public(eventsHandler.List),
		http.MethodPost: authed(eventsHandler.Create),
	}))
	mux.Handle("/api/events/mine", methodMux(map[string]http.Handler{
		http.MethodGet: authed(eventsHandler.ListMine),
	}))
	mux.Handle("/api/events/subscribed", methodMux(map[string]http.Handler{
		http.MethodGet: authed(eventsHandler.ListSubscribed),
	}))
	mux.Handle("/api/events/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    public(eventsHandler.Get),
		http.MethodPatch:  authed(eventsHandler.Update),
		http.MethodDelete: authed(eventsHandler.Delete),
	}))

	mux.Handle("/api/events/{id}/registrations", methodMux(map[string]http.Handler{
		http.MethodGet:  authed(registrationsHandler.List),
		http.MethodPost: authed(registrationsHandler.Register),
	}))
	mux.Handle("/api/events/{id}/registrations/me", methodMux(map[string]http.Handler{
		http.MethodDelete: authed(registrationsHandler.Cancel),
	}))
	mux.Handle("/api/events/{id}/registrations/{regId}", methodMux(map[string]http.Handler{
		http.MethodDelete: authed(registrationsHandler.CancelByID),
	}))

	mux.Handle("/api/events/{id}/messages", methodMux(map[string]http.Handler{
		http.MethodGet:  authed(messagesHandler.List),
		http.MethodPost: authed(messagesHandler.Post),
	}))

	mux.Handle("/api/notifications", methodMux(map[string]http.Handler{
		http.MethodGet: authed(notificationsHandler.List),
	}))
	mux.Handle("/api/notifications/read-all", methodMux(map[string]http.Handler{
		http.MethodPut: authed(notificationsHandler.MarkAllRead),
	}))
	mux.Handle("/api/notifications/{id}/read", methodMux(map[string]http.Handler{
		http.MethodPut: authed(notificationsHandler.MarkRead),
	}))

	mux.Handle("/api/realtime/events/{id}", methodMux(map[string]http.Handler{
		http.MethodGet: stream(streamHandler.StreamEvent),
	}))
	mux.Handle("/api/realtime/users/{id}", methodMux(map[string]http.Handler{
		http.MethodGet: stream(streamHandler.StreamUser),
	}))

	var handler http.Handler = mux
	handler = middleware.RequestSize(middleware.DefaultMaxBodySize)(handler)
	handler = metrics.InstrumentHTTP(mux)(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.CorrelationID(logger)(handler)
	handler = middleware.CORS(cfg.CORS, logger)(handler)
	handler = middleware.SecurityHeaders()(handler)
	return handler
}

func methodMux(routes map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := routes[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(routes))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(routes map[string]http.Handler) string {
	methods := make([]string, 0, len(routes))
	for method := range routes {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
