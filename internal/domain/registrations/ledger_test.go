package registrations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eventhub-live/server/internal/domain/access"
	"github.com/eventhub-live/server/internal/domain/events"
	"github.com/eventhub-live/server/internal/domain/identity"
	"github.com/eventhub-live/server/internal/domain/notifications"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// memRegRepo mirrors the storage contract, including the atomicity of
// CreateActive, so concurrency properties can be checked in-process.
type memRegRepo struct {
	mu     sync.Mutex
	seq    int
	rows   []*Registration
	events map[string]*events.Event
}

func newMemRegRepo(evs ...*events.Event) *memRegRepo {
	repo := &memRegRepo{events: make(map[string]*events.Event)}
	for _, ev := range evs {
		repo.events[ev.ID] = ev
	}
	return repo
}

func (r *memRegRepo) CreateActive(_ context.Context, eventID, userID string) (*Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, ok := r.events[eventID]
	if !ok {
		return nil, events.ErrNotFound
	}

	active := 0
	for _, row := range r.rows {
		if row.EventID == eventID && row.Status == StatusActive {
			if row.UserID == userID {
				return nil, ErrAlreadyRegistered
			}
			active++
		}
	}
	if event.Capacity != nil && active >= *event.Capacity {
		return nil, ErrEventFull
	}

	r.seq++
	row := &Registration{
		ID:        fmt.Sprintf("reg-%d", r.seq),
		EventID:   eventID,
		UserID:    userID,
		Status:    StatusActive,
		CreatedAt: time.Now(),
	}
	r.rows = append(r.rows, row)
	return row, nil
}

func (r *memRegRepo) FindActive(_ context.Context, eventID, userID string) (*Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.EventID == eventID && row.UserID == userID && row.Status == StatusActive {
			return row, nil
		}
	}
	return nil, ErrNotRegistered
}

func (r *memRegRepo) GetByID(_ context.Context, id string) (*Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRegRepo) Cancel(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id && row.Status == StatusActive {
			row.Status = StatusCanceled
			return nil
		}
	}
	return ErrNotRegistered
}

func (r *memRegRepo) ListByEvent(_ context.Context, eventID string) ([]Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Registration
	for _, row := range r.rows {
		if row.EventID == eventID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (r *memRegRepo) HasActiveRegistration(_ context.Context, eventID, userID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.EventID == eventID && row.UserID == userID && row.Status == StatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRegRepo) GetEvent(_ context.Context, id string) (*events.Event, error) {
	if ev, ok := r.events[id]; ok {
		return ev, nil
	}
	return nil, events.ErrNotFound
}

type capturingNotifier struct {
	mu      sync.Mutex
	appends []notifications.AppendParams
	err     error
}

func (n *capturingNotifier) Append(_ context.Context, params notifications.AppendParams) (*notifications.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	n.appends = append(n.appends, params)
	return &notifications.Notification{ID: fmt.Sprintf("n-%d", len(n.appends)), Content: params.Content}, nil
}

type capturingHub struct {
	mu         sync.Mutex
	eventPubs  []any
	userPubs   []any
	eventIDs   []string
	userTopics []string
}

func (h *capturingHub) PublishEvent(eventID string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.eventIDs = append(h.eventIDs, eventID)
	h.eventPubs = append(h.eventPubs, payload)
}

func (h *capturingHub) PublishUser(userID string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.userTopics = append(h.userTopics, userID)
	h.userPubs = append(h.userPubs, payload)
}

type failingMailer struct{ calls int }

func (m *failingMailer) QueueConfirmation(context.Context, ConfirmationParams) error {
	m.calls++
	return errors.New("smtp on fire")
}

func intPtr(v int) *int { return &v }

func testEvent(id, ownerID string, capacity *int) *events.Event {
	return &events.Event{
		ID:       id,
		OwnerID:  ownerID,
		Title:    "Go Meetup",
		City:     "Torino",
		StartsAt: time.Now().Add(24 * time.Hour),
		Capacity: capacity,
		Status:   events.StatusPublished,
	}
}

func newTestLedger(repo *memRegRepo) (*Ledger, *capturingNotifier, *capturingHub) {
	notifs := &capturingNotifier{}
	hub := &capturingHub{}
	policy := access.NewPolicy(repo)
	ledger := NewLedger(repo, eventSourceFunc(repo.GetEvent), policy, notifs, hub, nil, zerolog.Nop())
	return ledger, notifs, hub
}

type eventSourceFunc func(ctx context.Context, id string) (*events.Event, error)

func (f eventSourceFunc) GetByID(ctx context.Context, id string) (*events.Event, error) {
	return f(ctx, id)
}

func TestRegisterSuccess(t *testing.T) {
	repo := newMemRegRepo(testEvent("e1", "owner", nil))
	ledger, notifs, hub := newTestLedger(repo)
	user := &identity.Identity{ID: "u1", Name: "Ada"}

	reg, err := ledger.Register(context.Background(), "e1", user)
	require.NoError(t, err)
	require.Equal(t, StatusActive, reg.Status)

	require.Len(t, notifs.appends, 1)
	require.Equal(t, "owner", notifs.appends[0].UserID)
	require.Equal(t, notifications.TypeRegistration, notifs.appends[0].Type)
	require.Contains(t, notifs.appends[0].Content, "Ada")

	require.Equal(t, []string{"e1"}, hub.eventIDs)
	require.Equal(t, []string{"owner"}, hub.userTopics)
}

func TestRegisterEventNotFound(t *testing.T) {
	ledger, _, _ := newTestLedger(newMemRegRepo())

	_, err := ledger.Register(context.Background(), "nope", &identity.Identity{ID: "u1"})
	require.ErrorIs(t, err, events.ErrNotFound)
}

func TestRegisterTwiceConflicts(t *testing.T) {
	repo := newMemRegRepo(testEvent("e1", "owner", nil))
	ledger, _, _ := newTestLedger(repo)
	user := &identity.Identity{ID: "u1", Name: "Ada"}

	_, err := ledger.Register(context.Background(), "e1", user)
	require.NoError(t, err)

	_, err = ledger.Register(context.Background(), "e1", user)
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegisterCapacityReached(t *testing.T) {
	repo := newMemRegRepo(testEvent("e1", "owner", intPtr(1)))
	ledger, _, _ := newTestLedger(repo)

	_, err := ledger.Register(context.Background(), "e1", &identity.Identity{ID: "u1"})
	require.NoError(t, err)

	_, err = ledger.Register(context.Background(), "e1", &identity.Identity{ID: "u2"})
	require.ErrorIs(t, err, ErrEventFull)
}

func TestConcurrentRegistersNeverOverbook(t *testing.T) {
	const capacity = 3
	const contenders = 12
	repo := newMemRegRepo(testEvent("e1", "owner", intPtr(capacity)))
	ledger, _, _ := newTestLedger(repo)

	var wg sync.WaitGroup
	results := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := ledger.Register(context.Background(), "e1", &identity.Identity{ID: fmt.Sprintf("u%d", n)})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded, full := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrEventFull):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, capacity, succeeded)
	require.Equal(t, contenders-capacity, full)

	active := 0
	rows, err := repo.ListByEvent(context.Background(), "e1")
	require.NoError(t, err)
	for _, row := range rows {
		if row.Status == StatusActive {
			active++
		}
	}
	require.Equal(t, capacity, active)
}

func TestCancelIsIdempotent(t *testing.T) {
	repo := newMemRegRepo(testEvent("e1", "owner", nil))
	ledger, _, hub := newTestLedger(repo)
	user := &identity.Identity{ID: "u1", Name: "Ada"}

	_, err := ledger.Register(context.Background(), "e1", user)
	require.NoError(t, err)

	require.NoError(t, ledger.Cancel(context.Background(), "e1", user))
	require.ErrorIs(t, ledger.Cancel(context.Background(), "e1", user), ErrNotRegistered)

	// One registration frame, one cancellation frame.
	require.Len(t, hub.eventPubs, 2)
}

func TestCancelThenRegisterPreservesHistory(t *testing.T) {
	repo := newMemRegRepo(testEvent("e1", "owner", intPtr(1)))
	ledger, _, _ := newTestLedger(repo)
	user := &identity.Identity{ID: "u1", Name: "Ada"}

	first, err := ledger.Register(context.Background(), "e1", user)
	require.NoError(t, err)
	require.NoError(t, ledger.Cancel(context.Background(), "e1", user))

	second, err := ledger.Register(context.Background(), "e1", user)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	rows, err := repo.ListByEvent(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	statuses := map[string]string{}
	for _, row := range rows {
		statuses[row.ID] = row.Status
	}
	require.Equal(t, StatusCanceled, statuses[first.ID])
	require.Equal(t, StatusActive, statuses[second.ID])
}

func TestCancelByIDOwnershipEnforced(t *testing.T) {
	repo := newMemRegRepo(testEvent("e1", "owner", nil))
	ledger, _, _ := newTestLedger(repo)

	reg, err := ledger.Register(context.Background(), "e1", &identity.Identity{ID: "u1", Name: "Ada"})
	require.NoError(t, err)

	err = ledger.CancelByID(context.Background(), "e1", reg.ID, &identity.Identity{ID: "intruder"})
	require.ErrorIs(t, err, ErrForbidden)

	// Addressed under the wrong event, the registration does not exist.
	err = ledger.CancelByID(context.Background(), "other", reg.ID, &identity.Identity{ID: "u1", Name: "Ada"})
	require.ErrorIs(t, err, ErrNotFound)

	err = ledger.CancelByID(context.Background(), "e1", reg.ID, &identity.Identity{ID: "u1", Name: "Ada"})
	require.NoError(t, err)

	// Already canceled: addressed by id, the second cancel is a miss.
	err = ledger.CancelByID(context.Background(), "e1", reg.ID, &identity.Identity{ID: "u1", Name: "Ada"})
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestCancelByIDUnknownRegistration(t *testing.T) {
	ledger, _, _ := newTestLedger(newMemRegRepo(testEvent("e1", "owner", nil)))

	err := ledger.CancelByID(context.Background(), "e1", "missing", &identity.Identity{ID: "u1"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListForEventOwnerOnly(t *testing.T) {
	repo := newMemRegRepo(testEvent("e1", "owner", nil))
	ledger, _, _ := newTestLedger(repo)

	_, err := ledger.Register(context.Background(), "e1", &identity.Identity{ID: "u1", Name: "Ada"})
	require.NoError(t, err)

	rows, err := ledger.ListForEvent(context.Background(), "e1", "owner")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// A participant may watch the stream but not the registrations list.
	_, err = ledger.ListForEvent(context.Background(), "e1", "u1")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestRegisterMailerFailureDoesNotFailSignup(t *testing.T) {
	repo := newMemRegRepo(testEvent("e1", "owner", nil))
	notifs := &capturingNotifier{}
	hub := &capturingHub{}
	mailer := &failingMailer{}
	ledger := NewLedger(repo, eventSourceFunc(repo.GetEvent), access.NewPolicy(repo), notifs, hub, mailer, zerolog.Nop())

	_, err := ledger.Register(context.Background(), "e1", &identity.Identity{ID: "u1", Name: "Ada", Email: "ada@example.com"})
	require.NoError(t, err)
	require.Equal(t, 1, mailer.calls)
}

func TestRegisterNotifierFailureDoesNotFailSignup(t *testing.T) {
	repo := newMemRegRepo(testEvent("e1", "owner", nil))
	notifs := &capturingNotifier{err: errors.New("db gone")}
	hub := &capturingHub{}
	ledger := NewLedger(repo, eventSourceFunc(repo.GetEvent), access.NewPolicy(repo), notifs, hub, nil, zerolog.Nop())

	_, err := ledger.Register(context.Background(), "e1", &identity.Identity{ID: "u1", Name: "Ada"})
	require.NoError(t, err)

	// The event-channel frame still goes out; only the owner
	// notification push is skipped.
	require.Len(t, hub.eventPubs, 1)
	require.Empty(t, hub.userPubs)
}
