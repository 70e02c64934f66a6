package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/eventhub-live/server/internal/api/middleware"
	"github.com/eventhub-live/server/internal/api/problem"
	"github.com/eventhub-live/server/internal/domain/events"
)

type EventsHandler struct {
	Service *events.Service
	Env     string
}

func NewEventsHandler(service *events.Service, env string) *EventsHandler {
	return &EventsHandler{Service: service, Env: env}
}

type eventInput struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=5000"`
	Category    string     `json:"category" validate:"max=100"`
	City        string     `json:"city" validate:"max=100"`
	ImageURL    *string    `json:"imageUrl" validate:"omitempty,url"`
	Lat         *float64   `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lng         *float64   `json:"lng" validate:"omitempty,gte=-180,lte=180"`
	StartsAt    time.Time  `json:"startsAt" validate:"required"`
	EndsAt      *time.Time `json:"endsAt"`
	Capacity    *int       `json:"capacity" validate:"omitempty,gte=1"`
	Status      string     `json:"status" validate:"omitempty,oneof=draft published archived"`
}

type eventPatch struct {
	Title       *string    `json:"title" validate:"omitempty,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	Category    *string    `json:"category" validate:"omitempty,max=100"`
	City        *string    `json:"city" validate:"omitempty,max=100"`
	ImageURL    *string    `json:"imageUrl" validate:"omitempty,url"`
	Lat         *float64   `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lng         *float64   `json:"lng" validate:"omitempty,gte=-180,lte=180"`
	StartsAt    *time.Time `json:"startsAt"`
	EndsAt      *time.Time `json:"endsAt"`
	Capacity    *int       `json:"capacity" validate:"omitempty,gte=1"`
	Status      *string    `json:"status" validate:"omitempty,oneof=draft published archived"`
}

type eventResponse struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	OwnerName   string     `json:"ownerName,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	City        string     `json:"city,omitempty"`
	ImageURL    *string    `json:"imageUrl,omitempty"`
	Lat         *float64   `json:"lat,omitempty"`
	Lng         *float64   `json:"lng,omitempty"`
	StartsAt    time.Time  `json:"startsAt"`
	EndsAt      *time.Time `json:"endsAt,omitempty"`
	Capacity    *int       `json:"capacity,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func toEventResponse(ev *events.Event) eventResponse {
	return eventResponse{
		ID:          ev.ID,
		OwnerID:     ev.OwnerID,
		OwnerName:   ev.OwnerName,
		Title:       ev.Title,
		Description: ev.Description,
		Category:    ev.Category,
		City:        ev.City,
		ImageURL:    ev.ImageURL,
		Lat:         ev.Lat,
		Lng:         ev.Lng,
		StartsAt:    ev.StartsAt,
		EndsAt:      ev.EndsAt,
		Capacity:    ev.Capacity,
		Status:      ev.Status,
		CreatedAt:   ev.CreatedAt,
	}
}

func toEventList(items []events.Event) []eventResponse {
	out := make([]eventResponse, 0, len(items))
	for i := range items {
		out = append(out, toEventResponse(&items[i]))
	}
	return out
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters := events.Filters{
		Query:    query.Get("q"),
		Category: query.Get("category"),
		City:     query.Get("city"),
	}
	if from := query.Get("from"); from != "" {
		if ts, err := time.Parse(time.RFC3339, from); err == nil {
			filters.DateFrom = &ts
		}
	}
	if to := query.Get("to"); to != "" {
		if ts, err := time.Parse(time.RFC3339, to); err == nil {
			filters.DateTo = &ts
		}
	}

	items, err := h.Service.List(r.Context(), filters)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Server error", err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toEventList(items))
}

func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ev, err := h.Service.GetByID(r.Context(), pathParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

func (h *EventsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	user := middleware.IdentityFromContext(r.Context())
	items, err := h.Service.ListMine(r.Context(), user.ID)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Server error", err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toEventList(items))
}

func (h *EventsHandler) ListSubscribed(w http.ResponseWriter, r *http.Request) {
	user := middleware.IdentityFromContext(r.Context())
	items, err := h.Service.ListSubscribed(r.Context(), user.ID)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Server error", err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toEventList(items))
}

func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input eventInput
	if !decodeAndValidate(w, r, &input, h.Env) {
		return
	}

	user := middleware.IdentityFromContext(r.Context())
	ev, err := h.Service.Create(r.Context(), events.CreateParams{
		OwnerID:     user.ID,
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		City:        input.City,
		ImageURL:    input.ImageURL,
		Lat:         input.Lat,
		Lng:         input.Lng,
		StartsAt:    input.StartsAt,
		EndsAt:      input.EndsAt,
		Capacity:    input.Capacity,
		Status:      input.Status,
	})
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Server error", err, h.Env)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(ev))
}

func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch eventPatch
	if !decodeAndValidate(w, r, &patch, h.Env) {
		return
	}

	user := middleware.IdentityFromContext(r.Context())
	ev, err := h.Service.Update(r.Context(), pathParam(r, "id"), user.ID, events.UpdateParams{
		Title:       patch.Title,
		Description: patch.Description,
		Category:    patch.Category,
		City:        patch.City,
		ImageURL:    patch.ImageURL,
		Lat:         patch.Lat,
		Lng:         patch.Lng,
		StartsAt:    patch.StartsAt,
		EndsAt:      patch.EndsAt,
		Capacity:    patch.Capacity,
		Status:      patch.Status,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := middleware.IdentityFromContext(r.Context())
	if err := h.Service.Delete(r.Context(), pathParam(r, "id"), user.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *EventsHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, events.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, "https://eventhub.live/problems/not-found", "Event not found", err, h.Env)
	case errors.Is(err, events.ErrForbidden):
		problem.Write(w, r, http.StatusForbidden, "https://eventhub.live/problems/forbidden", "Not the event owner", err, h.Env)
	default:
		problem.Write(w, r, http.StatusInternalServerError, "about:blank", "Server error", err, h.Env)
	}
}
