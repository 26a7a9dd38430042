package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/events"
	"github.com/spec-kit/ticket-sync/internal/observability"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type reconcileFixture struct {
	store    *memStore
	svc      *ReconciliationService
	recorder *eventRecorder
	metrics  *observability.Metrics
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	_, client := newTestRedis(t)
	store := newMemStore()
	dispatcher := events.NewInMemoryDispatcher()
	recorder := &eventRecorder{}
	for _, et := range []events.EventType{
		events.EventTicketCreated, events.EventTicketUpdated, events.EventTicketReassigned,
		events.EventTicketVoided, events.EventTicketRestored, events.EventUserProvisioned,
	} {
		dispatcher.Subscribe(et, recorder.handle)
	}
	metrics := observability.NewMetrics()
	svc := NewReconciliationService(ReconciliationDependencies{
		UserRepo:   memUserRepo{store},
		TicketRepo: memTicketRepo{store},
		Locker:     newTestLocker(client),
		Dispatcher: dispatcher,
		BcryptCost: 4,
		Metrics:    metrics,
	})
	return &reconcileFixture{store: store, svc: svc, recorder: recorder, metrics: metrics}
}

func ticketEvent(ref, email string) domain.TicketEvent {
	return domain.TicketEvent{
		ReferenceID:  ref,
		ReleaseTitle: "Early Bird",
		ReleaseID:    "42",
		StateName:    domain.TicketStatusComplete,
		Email:        email,
		Name:         "Ada Lovelace",
		Phone:        "+100",
	}
}

func TestReconcileCreatesTicketAndOwner(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()

	outcome, err := f.svc.Reconcile(ctx, ticketEvent("ABC-1", "Ada@Example.com"))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCreated, outcome.Action)

	tickets := f.store.liveTickets()
	require.Len(t, tickets, 1)
	assert.Equal(t, "ABC-1", tickets[0].ReferenceID)
	assert.Equal(t, "Early Bird ( #42 )", tickets[0].Name)
	assert.Equal(t, domain.TicketStatusComplete, tickets[0].Status)

	owner, err := memUserRepo{f.store}.GetByID(ctx, tickets[0].UserID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", owner.Email)
	assert.Equal(t, domain.RoleUser, owner.Role)
	assert.NotEmpty(t, owner.PasswordHash)
	assert.False(t, owner.IsVerified())

	assert.ElementsMatch(t, []events.EventType{events.EventUserProvisioned, events.EventTicketCreated}, f.recorder.types())
	assert.Equal(t, int64(1), f.metrics.Snapshot().Reconciliation["created"])
}

func TestReconcileIsIdempotent(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()
	event := ticketEvent("ABC-1", "ada@example.com")

	_, err := f.svc.Reconcile(ctx, event)
	require.NoError(t, err)
	outcome, err := f.svc.Reconcile(ctx, event)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionUpdated, outcome.Action)
	assert.Len(t, f.store.allTickets(), 1)
	assert.Equal(t, 1, f.store.userCount())
}

func TestReconcileUpdatesOwnerContactOnSameEmail(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()

	_, err := f.svc.Reconcile(ctx, ticketEvent("ABC-1", "ada@example.com"))
	require.NoError(t, err)

	event := ticketEvent("ABC-1", "ADA@example.com")
	event.Name = "Ada King"
	event.Phone = "+200"
	event.StateName = domain.TicketStatusIncomplete
	event.ReleaseTitle = "Regular"
	outcome, err := f.svc.Reconcile(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionUpdated, outcome.Action)

	owner, err := memUserRepo{f.store}.GetByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Ada King", owner.Name)
	assert.Equal(t, "+200", owner.Phone)
	assert.Equal(t, 1, f.store.userCount())

	ticket := f.store.liveTickets()[0]
	assert.Equal(t, "Regular ( #42 )", ticket.Name)
	assert.Equal(t, domain.TicketStatusIncomplete, ticket.Status)
}

func TestReconcileReassignsOnEmailChange(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()

	first, err := f.svc.Reconcile(ctx, ticketEvent("ABC-1", "ada@example.com"))
	require.NoError(t, err)

	event := ticketEvent("ABC-1", "grace@example.com")
	event.Name = "Grace Hopper"
	outcome, err := f.svc.Reconcile(ctx, event)
	require.NoError(t, err)

	assert.Equal(t, domain.ActionReassigned, outcome.Action)
	assert.NotEqual(t, first.UserID, outcome.UserID)
	assert.Equal(t, 2, f.store.userCount())

	ticket := f.store.liveTickets()[0]
	assert.Equal(t, outcome.UserID, ticket.UserID)

	previous, err := memUserRepo{f.store}.GetByID(ctx, first.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", previous.Name)
	assert.Contains(t, f.recorder.types(), events.EventTicketReassigned)
}

func TestReconcileReassignsToExistingUser(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()

	_, err := f.svc.Reconcile(ctx, ticketEvent("ABC-1", "ada@example.com"))
	require.NoError(t, err)
	other, err := f.svc.Reconcile(ctx, ticketEvent("ABC-2", "grace@example.com"))
	require.NoError(t, err)

	outcome, err := f.svc.Reconcile(ctx, ticketEvent("ABC-1", "grace@example.com"))
	require.NoError(t, err)
	assert.Equal(t, other.UserID, outcome.UserID)
	assert.Equal(t, 2, f.store.userCount())
}

func TestReconcileVoidAndUnvoidRoundTrip(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()

	_, err := f.svc.Reconcile(ctx, ticketEvent("ABC-1", "ada@example.com"))
	require.NoError(t, err)

	voided := ticketEvent("ABC-1", "ada@example.com")
	voided.StateName = domain.TicketStatusVoid
	voided.Trigger = domain.TriggerTicketVoided
	outcome, err := f.svc.Reconcile(ctx, voided)
	require.NoError(t, err)
	assert.True(t, outcome.Voided)
	assert.Empty(t, f.store.liveTickets())

	again, err := f.svc.Reconcile(ctx, voided)
	require.NoError(t, err)
	assert.False(t, again.Voided)

	bulk := ticketEvent("ABC-1", "ada@example.com")
	bulk.StateName = domain.TicketStatusIncomplete
	_, err = f.svc.Reconcile(ctx, bulk)
	require.NoError(t, err)
	all := f.store.allTickets()
	require.Len(t, all, 1)
	assert.True(t, all[0].IsDeleted(), "bulk updates leave lifecycle alone")
	assert.Equal(t, domain.TicketStatusIncomplete, all[0].Status)

	unvoided := ticketEvent("ABC-1", "ada@example.com")
	unvoided.Trigger = domain.TriggerTicketUnvoided
	outcome, err = f.svc.Reconcile(ctx, unvoided)
	require.NoError(t, err)
	assert.True(t, outcome.Restored)
	require.Len(t, f.store.liveTickets(), 1)
	assert.Len(t, f.store.allTickets(), 1)

	types := f.recorder.types()
	assert.Contains(t, types, events.EventTicketVoided)
	assert.Contains(t, types, events.EventTicketRestored)
}

func TestReconcileVoidedWebhookForUnknownTicket(t *testing.T) {
	f := newReconcileFixture(t)
	event := ticketEvent("ABC-9", "ada@example.com")
	event.Trigger = domain.TriggerTicketVoided

	outcome, err := f.svc.Reconcile(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionCreated, outcome.Action)
	assert.True(t, outcome.Voided)
	assert.Empty(t, f.store.liveTickets())
	assert.Len(t, f.store.allTickets(), 1)
}

func TestReconcileRejectsMalformedEvents(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()

	_, err := f.svc.Reconcile(ctx, ticketEvent("  ", "ada@example.com"))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = f.svc.Reconcile(ctx, ticketEvent("ABC-1", ""))
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.Empty(t, f.store.allTickets())

	_, err = f.svc.Reconcile(ctx, ticketEvent("ABC-1", "ada@example.com"))
	require.NoError(t, err)

	broken := ticketEvent("ABC-1", "ada@example.com")
	broken.ReleaseTitle = ""
	broken.StateName = domain.TicketStatusVoid
	_, err = f.svc.Reconcile(ctx, broken)
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.Equal(t, domain.TicketStatusComplete, f.store.liveTickets()[0].Status)
	assert.Equal(t, int64(3), f.metrics.Snapshot().Reconciliation["malformed"])
}

func TestReconcileOwnerMissing(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()

	outcome, err := f.svc.Reconcile(ctx, ticketEvent("ABC-1", "ada@example.com"))
	require.NoError(t, err)

	f.store.mu.Lock()
	delete(f.store.users, outcome.UserID)
	f.store.mu.Unlock()

	_, err = f.svc.Reconcile(ctx, ticketEvent("ABC-1", "ada@example.com"))
	assert.ErrorIs(t, err, ErrOwnerMissing)
}

func TestReconcileConcurrentSameReference(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Reconcile(ctx, ticketEvent("ABC-1", "ada@example.com"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, f.store.allTickets(), 1)
	assert.Equal(t, 1, f.store.userCount())
	assert.Equal(t, int64(1), f.metrics.Snapshot().Reconciliation["created"])
}

func TestResolveOrCreateUserKeepsExisting(t *testing.T) {
	f := newReconcileFixture(t)
	ctx := context.Background()

	first, err := f.svc.ResolveOrCreateUser(ctx, "Ada", "ada@example.com", "+1")
	require.NoError(t, err)
	second, err := f.svc.ResolveOrCreateUser(ctx, "Someone Else", "ADA@example.com", "+2")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Ada", second.Name)

	_, err = f.svc.ResolveOrCreateUser(ctx, "", "x@example.com", "")
	assert.ErrorIs(t, err, ErrMalformedEvent)
}
