package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eventhub-live/server/internal/auth"
	"github.com/eventhub-live/server/internal/config"
	"github.com/eventhub-live/server/internal/domain/access"
	"github.com/eventhub-live/server/internal/domain/events"
	"github.com/eventhub-live/server/internal/domain/identity"
	"github.com/eventhub-live/server/internal/domain/messages"
	"github.com/eventhub-live/server/internal/domain/notifications"
	"github.com/eventhub-live/server/internal/domain/registrations"
	"github.com/eventhub-live/server/internal/realtime"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// In-memory repositories. They mirror the Postgres contracts closely
// enough for routing and permission tests.

type memUsers struct {
	users map[string]*identity.Identity
}

func (r *memUsers) GetByID(_ context.Context, id string) (*identity.Identity, error) {
	if user, ok := r.users[id]; ok {
		return user, nil
	}
	return nil, identity.ErrNotFound
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*identity.Identity, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (r *memUsers) Create(_ context.Context, params identity.CreateParams) (*identity.Identity, error) {
	user := &identity.Identity{ID: fmt.Sprintf("u-%d", len(r.users)+1), Email: params.Email, Name: params.Name, Role: params.Role}
	r.users[user.ID] = user
	return user, nil
}

type memEvents struct {
	mu   sync.Mutex
	seq  int
	rows map[string]*events.Event
}

func (r *memEvents) List(_ context.Context, _ events.Filters) ([]events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.rows {
		out = append(out, *ev)
	}
	return out, nil
}

func (r *memEvents) ListByOwner(_ context.Context, ownerID string) ([]events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.rows {
		if ev.OwnerID == ownerID {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (r *memEvents) ListByActiveRegistrant(_ context.Context, _ string) ([]events.Event, error) {
	return nil, nil
}

func (r *memEvents) GetByID(_ context.Context, id string) (*events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := r.rows[id]; ok {
		copied := *ev
		return &copied, nil
	}
	return nil, events.ErrNotFound
}

func (r *memEvents) Create(_ context.Context, params events.CreateParams) (*events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ev := &events.Event{
		ID:       fmt.Sprintf("e-%d", r.seq),
		OwnerID:  params.OwnerID,
		Title:    params.Title,
		City:     params.City,
		StartsAt: params.StartsAt,
		Capacity: params.Capacity,
		Status:   params.Status,
	}
	r.rows[ev.ID] = ev
	return ev, nil
}

func (r *memEvents) Update(_ context.Context, id string, params events.UpdateParams) (*events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.rows[id]
	if !ok {
		return nil, events.ErrNotFound
	}
	if params.Title != nil {
		ev.Title = *params.Title
	}
	copied := *ev
	return &copied, nil
}

func (r *memEvents) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return events.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

type memRegs struct {
	mu     sync.Mutex
	seq    int
	rows   map[string]*registrations.Registration
	events *memEvents
}

func (r *memRegs) CreateActive(_ context.Context, eventID, userID string) (*registrations.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, ok := r.events.rows[eventID]
	if !ok {
		return nil, events.ErrNotFound
	}

	active := 0
	for _, reg := range r.rows {
		if reg.EventID == eventID && reg.Status == registrations.StatusActive {
			if reg.UserID == userID {
				return nil, registrations.ErrAlreadyRegistered
			}
			active++
		}
	}
	if ev.Capacity != nil && active >= *ev.Capacity {
		return nil, registrations.ErrEventFull
	}

	r.seq++
	reg := &registrations.Registration{
		ID:        fmt.Sprintf("r-%d", r.seq),
		EventID:   eventID,
		UserID:    userID,
		Status:    registrations.StatusActive,
		CreatedAt: time.Now(),
	}
	r.rows[reg.ID] = reg
	copied := *reg
	return &copied, nil
}

func (r *memRegs) FindActive(_ context.Context, eventID, userID string) (*registrations.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.rows {
		if reg.EventID == eventID && reg.UserID == userID && reg.Status == registrations.StatusActive {
			copied := *reg
			return &copied, nil
		}
	}
	return nil, registrations.ErrNotRegistered
}

func (r *memRegs) GetByID(_ context.Context, id string) (*registrations.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.rows[id]; ok {
		copied := *reg
		return &copied, nil
	}
	return nil, registrations.ErrNotFound
}

func (r *memRegs) Cancel(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.rows[id]
	if !ok || reg.Status != registrations.StatusActive {
		return registrations.ErrNotRegistered
	}
	reg.Status = registrations.StatusCanceled
	return nil
}

func (r *memRegs) ListByEvent(_ context.Context, eventID string) ([]registrations.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []registrations.Registration
	for _, reg := range r.rows {
		if reg.EventID == eventID {
			out = append(out, *reg)
		}
	}
	return out, nil
}

func (r *memRegs) HasActiveRegistration(_ context.Context, eventID, userID string) (bool, error) {
	reg, err := r.FindActive(context.Background(), eventID, userID)
	return err == nil && reg != nil, nil
}

func (r *memRegs) ActiveUserIDs(_ context.Context, eventID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, reg := range r.rows {
		if reg.EventID == eventID && reg.Status == registrations.StatusActive {
			out = append(out, reg.UserID)
		}
	}
	return out, nil
}

type memMsgs struct {
	mu   sync.Mutex
	seq  int
	rows []messages.Message
}

func (r *memMsgs) Insert(_ context.Context, params messages.CreateParams) (*messages.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	msg := messages.Message{ID: fmt.Sprintf("m-%d", r.seq), EventID: params.EventID, UserID: params.UserID, Content: params.Content, CreatedAt: time.Now()}
	r.rows = append(r.rows, msg)
	return &msg, nil
}

func (r *memMsgs) ListByEvent(_ context.Context, eventID string) ([]messages.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []messages.Message
	for _, msg := range r.rows {
		if msg.EventID == eventID {
			out = append(out, msg)
		}
	}
	return out, nil
}

type memNotifs struct {
	mu   sync.Mutex
	seq  int
	rows map[string]*notifications.Notification
}

func (r *memNotifs) Insert(_ context.Context, params notifications.AppendParams) (*notifications.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	n := &notifications.Notification{
		ID:        fmt.Sprintf("n-%d", r.seq),
		UserID:    params.UserID,
		EventID:   params.EventID,
		Type:      params.Type,
		Content:   params.Content,
		CreatedAt: time.Now(),
	}
	r.rows[n.ID] = n
	copied := *n
	return &copied, nil
}

func (r *memNotifs) ListByUser(_ context.Context, userID string) ([]notifications.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notifications.Notification
	for _, n := range r.rows {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (r *memNotifs) MarkRead(_ context.Context, id, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.rows[id]
	if !ok || n.UserID != userID {
		return notifications.ErrNotFound
	}
	n.Read = true
	return nil
}

func (r *memNotifs) MarkAllRead(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.rows {
		if n.UserID == userID {
			n.Read = true
		}
	}
	return nil
}

type fixture struct {
	server  *httptest.Server
	manager *auth.JWTManager
	eventID string
	hub     *realtime.Hub
}

func (f *fixture) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := f.manager.Generate(userID, identity.RoleUser)
	require.NoError(t, err)
	return token
}

func (f *fixture) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zerolog.Nop()
	manager := auth.NewJWTManager("router-test-secret", time.Hour, "eventhub")

	users := &memUsers{users: map[string]*identity.Identity{
		"owner":       {ID: "owner", Name: "Olive", Email: "olive@example.com", Role: identity.RoleUser},
		"participant": {ID: "participant", Name: "Ada", Email: "ada@example.com", Role: identity.RoleUser},
		"stranger":    {ID: "stranger", Name: "Sam", Email: "sam@example.com", Role: identity.RoleUser},
		"third":       {ID: "third", Name: "Tess", Email: "tess@example.com", Role: identity.RoleUser},
	}}
	eventRepo := &memEvents{rows: make(map[string]*events.Event)}
	regRepo := &memRegs{rows: make(map[string]*registrations.Registration), events: eventRepo}
	msgRepo := &memMsgs{}
	notifRepo := &memNotifs{rows: make(map[string]*notifications.Notification)}

	gate := identity.NewGate(manager, users)
	policy := access.NewPolicy(regRepo)
	hub := realtime.NewHub(logger)
	notifStore := notifications.NewStore(notifRepo)

	eventsService := events.NewService(eventRepo, regRepo, notifStore, hub, logger)
	ledger := registrations.NewLedger(regRepo, eventRepo, policy, notifStore, hub, nil, logger)
	board := messages.NewBoard(msgRepo, eventRepo, policy, notifStore, hub, logger)

	capacity := 2
	ev, err := eventRepo.Create(context.Background(), events.CreateParams{
		OwnerID:  "owner",
		Title:    "Go Meetup",
		City:     "Torino",
		StartsAt: time.Now().Add(24 * time.Hour),
		Capacity: &capacity,
		Status:   events.StatusPublished,
	})
	require.NoError(t, err)

	cfg := config.Config{Environment: "test"}
	router := NewRouter(cfg, Dependencies{
		Gate:          gate,
		Policy:        policy,
		Hub:           hub,
		Events:        eventsService,
		Registrations: ledger,
		Messages:      board,
		Notifications: notifStore,
	}, logger)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &fixture{server: server, manager: manager, eventID: ev.ID, hub: hub}
}

func TestRegisterLifecycle(t *testing.T) {
	f := newFixture(t)
	base := "/api/events/" + f.eventID + "/registrations"

	resp := f.request(t, http.MethodPost, base, f.token(t, "participant"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var reg map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reg))
	resp.Body.Close()
	require.Equal(t, "active", reg["status"])

	// Second attempt conflicts.
	resp = f.request(t, http.MethodPost, base, f.token(t, "participant"), nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	resp.Body.Close()

	// Fill remaining capacity, then overflow.
	resp = f.request(t, http.MethodPost, base, f.token(t, "stranger"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = f.request(t, http.MethodPost, base, f.token(t, "third"), nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var p map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	resp.Body.Close()
	require.Contains(t, p["type"], "event-full")
}

func TestCancelIsIdempotentPerRegistration(t *testing.T) {
	f := newFixture(t)
	base := "/api/events/" + f.eventID + "/registrations"

	resp := f.request(t, http.MethodPost, base, f.token(t, "participant"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = f.request(t, http.MethodDelete, base+"/me", f.token(t, "participant"), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = f.request(t, http.MethodDelete, base+"/me", f.token(t, "participant"), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Cancel-then-register creates a fresh row.
	resp = f.request(t, http.MethodPost, base, f.token(t, "participant"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func TestRegistrationsListOwnerOnly(t *testing.T) {
	f := newFixture(t)
	base := "/api/events/" + f.eventID + "/registrations"

	resp := f.request(t, http.MethodPost, base, f.token(t, "participant"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = f.request(t, http.MethodGet, base, f.token(t, "participant"), nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = f.request(t, http.MethodGet, base, f.token(t, "owner"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)
}

func TestMessagesPermissions(t *testing.T) {
	f := newFixture(t)
	msgPath := "/api/events/" + f.eventID + "/messages"
	regPath := "/api/events/" + f.eventID + "/registrations"

	resp := f.request(t, http.MethodPost, msgPath, f.token(t, "stranger"), map[string]string{"content": "hi"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	resp = f.request(t, http.MethodPost, regPath, f.token(t, "participant"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = f.request(t, http.MethodPost, msgPath, f.token(t, "participant"), map[string]string{"content": "<b>hello</b>"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var msg map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msg))
	resp.Body.Close()
	require.NotContains(t, msg["content"], "<b>")

	resp = f.request(t, http.MethodGet, msgPath, f.token(t, "owner"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)
}

func TestMessageValidation(t *testing.T) {
	f := newFixture(t)
	msgPath := "/api/events/" + f.eventID + "/messages"

	resp := f.request(t, http.MethodPost, msgPath, f.token(t, "owner"), map[string]string{"content": ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var p map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	resp.Body.Close()
	require.NotNil(t, p["errors"])
}

func TestNotificationsFlow(t *testing.T) {
	f := newFixture(t)
	regPath := "/api/events/" + f.eventID + "/registrations"

	resp := f.request(t, http.MethodPost, regPath, f.token(t, "participant"), nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// The owner got a registration notification.
	resp = f.request(t, http.MethodGet, "/api/notifications", f.token(t, "owner"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)
	require.Equal(t, "registration", list[0]["type"])
	require.Equal(t, false, list[0]["read"])

	id := list[0]["id"].(string)

	// Another user cannot mark it read.
	resp = f.request(t, http.MethodPut, "/api/notifications/"+id+"/read", f.token(t, "participant"), nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = f.request(t, http.MethodPut, "/api/notifications/"+id+"/read", f.token(t, "owner"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ok map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ok))
	resp.Body.Close()
	require.True(t, ok["ok"])

	resp = f.request(t, http.MethodPut, "/api/notifications/read-all", f.token(t, "owner"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	resp := f.request(t, http.MethodPost, "/api/events/"+f.eventID+"/registrations", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
	resp.Body.Close()

	// Public event read works without a token.
	resp = f.request(t, http.MethodGet, "/api/events/"+f.eventID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestEventStreamDeliversFrames(t *testing.T) {
	f := newFixture(t)

	// Owner may attach without a registration.
	req, err := http.NewRequest(http.MethodGet,
		f.server.URL+"/api/realtime/events/"+f.eventID+"?token="+f.token(t, "owner"), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	// First frame is the :ok comment.
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ":ok", strings.TrimSpace(line))

	// A registration from another user lands as a data frame.
	go func() {
		// Give the subscription a beat to settle, then trigger a publish.
		time.Sleep(50 * time.Millisecond)
		resp := f.request(t, http.MethodPost, "/api/events/"+f.eventID+"/registrations", f.token(t, "participant"), nil)
		resp.Body.Close()
	}()

	var data string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			break
		}
	}

	var frame map[string]any
	require.NoError(t, json.Unmarshal([]byte(data), &frame))
	require.Equal(t, "registration", frame["type"])
	require.Equal(t, f.eventID, frame["eventId"])
}

func TestEventStreamForbiddenWithoutRegistration(t *testing.T) {
	f := newFixture(t)

	resp, err := f.server.Client().Get(
		f.server.URL + "/api/realtime/events/" + f.eventID + "?token=" + f.token(t, "stranger"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUserStreamSelfOnly(t *testing.T) {
	f := newFixture(t)

	resp, err := f.server.Client().Get(
		f.server.URL + "/api/realtime/users/owner?token=" + f.token(t, "participant"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	resp := f.request(t, http.MethodPut, "/api/events/"+f.eventID+"/registrations", f.token(t, "owner"), nil)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Allow"), "POST")
	resp.Body.Close()
}
