package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/auth"
	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/events"
	"github.com/spec-kit/ticket-sync/internal/lease"
	"github.com/spec-kit/ticket-sync/internal/observability"
	"github.com/spec-kit/ticket-sync/internal/repository"
)

var (
	// ErrMalformedEvent marks an event missing required fields. It is skipped, never retried.
	ErrMalformedEvent = errors.New("malformed ticket event")
	// ErrOwnerMissing marks an existing ticket whose owner row cannot be loaded.
	ErrOwnerMissing = errors.New("ticket owner missing")
)

// TicketReconciler merges one remote observation into the local store.
type TicketReconciler interface {
	Reconcile(ctx context.Context, event domain.TicketEvent) (*domain.ReconciliationOutcome, error)
}

// ReconciliationService is the single write path for remote ticket data.
type ReconciliationService struct {
	users      repository.UserRepository
	tickets    repository.TicketRepository
	locker     lease.KeyedLocker
	dispatcher events.Dispatcher
	bcryptCost int
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// ReconciliationDependencies bundles collaborators for the reconciliation service.
type ReconciliationDependencies struct {
	UserRepo   repository.UserRepository
	TicketRepo repository.TicketRepository
	Locker     lease.KeyedLocker
	Dispatcher events.Dispatcher
	BcryptCost int
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewReconciliationService constructs the service.
func NewReconciliationService(deps ReconciliationDependencies) *ReconciliationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationService{
		users:      deps.UserRepo,
		tickets:    deps.TicketRepo,
		locker:     deps.Locker,
		dispatcher: deps.Dispatcher,
		bcryptCost: deps.BcryptCost,
		logger:     logger.Named("reconcile"),
		metrics:    deps.Metrics,
	}
}

// Reconcile applies event under the per-reference lock.
func (s *ReconciliationService) Reconcile(ctx context.Context, event domain.TicketEvent) (*domain.ReconciliationOutcome, error) {
	event.ReferenceID = strings.TrimSpace(event.ReferenceID)
	if event.ReferenceID == "" {
		s.metrics.RecordReconciliation("malformed")
		return nil, fmt.Errorf("%w: missing reference id", ErrMalformedEvent)
	}

	logger := s.logger.With(zap.String("reference_id", event.ReferenceID), zap.String("trigger", event.Trigger))

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, event.ReferenceID)
		if err != nil {
			return nil, fmt.Errorf("lock ticket %s: %w", event.ReferenceID, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("ticket lock release failed", zap.Error(err))
			}
		}()
	}

	ticket, err := s.tickets.GetByReference(ctx, event.ReferenceID, true)
	var outcome *domain.ReconciliationOutcome
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		outcome, err = s.createTicket(ctx, event)
	case err != nil:
		err = fmt.Errorf("load ticket: %w", err)
	default:
		outcome, err = s.updateTicket(ctx, ticket, event)
	}

	if err != nil {
		switch {
		case errors.Is(err, ErrMalformedEvent):
			s.metrics.RecordReconciliation("malformed")
		case errors.Is(err, ErrOwnerMissing):
			s.metrics.RecordReconciliation("owner_missing")
		default:
			s.metrics.RecordReconciliation("error")
		}
		return nil, err
	}

	s.metrics.RecordReconciliation(string(outcome.Action))
	logger.Info("ticket reconciled",
		zap.String("action", string(outcome.Action)),
		zap.String("ticket_id", outcome.TicketID),
		zap.String("user_id", outcome.UserID),
		zap.Bool("voided", outcome.Voided),
		zap.Bool("restored", outcome.Restored),
	)
	return outcome, nil
}

func (s *ReconciliationService) createTicket(ctx context.Context, event domain.TicketEvent) (*domain.ReconciliationOutcome, error) {
	owner, err := s.ResolveOrCreateUser(ctx, event.Name, event.Email, event.Phone)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		ReferenceID: event.ReferenceID,
		Name:        domain.TicketDisplayName(event.ReleaseTitle, event.ReleaseID),
		Status:      event.StateName,
		UserID:      owner.ID,
	}
	created, err := s.tickets.FirstOrCreate(ctx, ticket)
	if err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	if !created {
		// someone else inserted the row between lookup and insert
		return s.updateTicket(ctx, ticket, event)
	}

	outcome := &domain.ReconciliationOutcome{
		Action:   domain.ActionCreated,
		TicketID: ticket.ID,
		UserID:   owner.ID,
	}
	s.publish(ctx, events.NewEvent(events.EventTicketCreated, ticket.ReferenceID, owner.ID, events.TicketCreatedPayload{
		TicketID: ticket.ID,
		Name:     ticket.Name,
		Status:   ticket.Status,
		Trigger:  event.Trigger,
	}))

	if event.Trigger == domain.TriggerTicketVoided {
		voided, err := s.tickets.SoftDelete(ctx, ticket.ID)
		if err != nil {
			return nil, fmt.Errorf("void ticket: %w", err)
		}
		outcome.Voided = voided
		if voided {
			s.publishLifecycle(ctx, events.EventTicketVoided, ticket, owner.ID, event.Trigger)
		}
	}
	return outcome, nil
}

func (s *ReconciliationService) updateTicket(ctx context.Context, ticket *domain.Ticket, event domain.TicketEvent) (*domain.ReconciliationOutcome, error) {
	if missing := missingUpdateFields(event); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedEvent, strings.Join(missing, ", "))
	}

	if ticket.UserID == "" {
		return nil, ErrOwnerMissing
	}
	owner, err := s.users.GetByID(ctx, ticket.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOwnerMissing
	}
	if err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}

	name := domain.TicketDisplayName(event.ReleaseTitle, event.ReleaseID)
	status := event.StateName
	update := domain.TicketUpdate{Name: &name, Status: &status}
	outcome := &domain.ReconciliationOutcome{
		Action:   domain.ActionUpdated,
		TicketID: ticket.ID,
		UserID:   owner.ID,
	}

	if !domain.SameEmail(owner.Email, event.Email) {
		newOwner, err := s.ResolveOrCreateUser(ctx, event.Name, event.Email, event.Phone)
		if err != nil {
			return nil, err
		}
		update.UserID = &newOwner.ID
		outcome.Action = domain.ActionReassigned
		outcome.UserID = newOwner.ID
	} else if owner.Name != event.Name || owner.Phone != event.Phone {
		userName, phone := event.Name, event.Phone
		if err := s.users.ApplyUpdate(ctx, owner.ID, domain.UserUpdate{Name: &userName, Phone: &phone}); err != nil {
			return nil, fmt.Errorf("update owner: %w", err)
		}
	}

	if err := s.tickets.ApplyUpdate(ctx, ticket.ID, update); err != nil {
		return nil, fmt.Errorf("update ticket: %w", err)
	}
	ticket.Name, ticket.Status = name, status

	if outcome.Action == domain.ActionReassigned {
		s.publish(ctx, events.NewEvent(events.EventTicketReassigned, ticket.ReferenceID, outcome.UserID, events.TicketReassignedPayload{
			TicketID:       ticket.ID,
			PreviousUserID: owner.ID,
			NewUserID:      outcome.UserID,
		}))
	} else {
		s.publish(ctx, events.NewEvent(events.EventTicketUpdated, ticket.ReferenceID, owner.ID, events.TicketUpdatedPayload{
			TicketID: ticket.ID,
			Name:     name,
			Status:   status,
		}))
	}

	switch {
	case event.Trigger == domain.TriggerTicketVoided:
		voided, err := s.tickets.SoftDelete(ctx, ticket.ID)
		if err != nil {
			return nil, fmt.Errorf("void ticket: %w", err)
		}
		outcome.Voided = voided
		if voided {
			s.publishLifecycle(ctx, events.EventTicketVoided, ticket, outcome.UserID, event.Trigger)
		}
	case event.Trigger == domain.TriggerTicketUnvoided && ticket.IsDeleted():
		restored, err := s.tickets.Restore(ctx, ticket.ID)
		if err != nil {
			return nil, fmt.Errorf("restore ticket: %w", err)
		}
		outcome.Restored = restored
		if restored {
			s.publishLifecycle(ctx, events.EventTicketRestored, ticket, outcome.UserID, event.Trigger)
		}
	}
	return outcome, nil
}

// ResolveOrCreateUser returns the user owning email, creating one with a random password
// when absent. Existing users are returned untouched.
func (s *ReconciliationService) ResolveOrCreateUser(ctx context.Context, name, email, phone string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = domain.NormalizeEmail(email)
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name and email are required to create a user", ErrMalformedEvent)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load user: %w", err)
	}

	hash, err := auth.HashPassword(auth.RandomPassword(), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user = &domain.User{
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		Role:         domain.RoleUser,
	}
	created, err := s.users.FirstOrCreate(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	if created {
		s.logger.Info("user provisioned", zap.String("user_id", user.ID))
		s.publish(ctx, events.NewEvent(events.EventUserProvisioned, "", user.ID, events.UserProvisionedPayload{
			Email: user.Email,
			Name:  user.Name,
		}))
	}
	return user, nil
}

func missingUpdateFields(event domain.TicketEvent) []string {
	var missing []string
	if strings.TrimSpace(event.ReferenceID) == "" {
		missing = append(missing, "reference_id")
	}
	if strings.TrimSpace(event.ReleaseTitle) == "" {
		missing = append(missing, "release_title")
	}
	if strings.TrimSpace(event.StateName) == "" {
		missing = append(missing, "state")
	}
	if strings.TrimSpace(event.Name) == "" {
		missing = append(missing, "name")
	}
	return missing
}

func (s *ReconciliationService) publishLifecycle(ctx context.Context, eventType events.EventType, ticket *domain.Ticket, userID, trigger string) {
	s.publish(ctx, events.NewEvent(eventType, ticket.ReferenceID, userID, events.TicketLifecyclePayload{
		TicketID: ticket.ID,
		Trigger:  trigger,
	}))
}

func (s *ReconciliationService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("reference_id", event.ReferenceID),
			zap.Error(err))
	}
}
