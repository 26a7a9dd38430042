package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/auth"
	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/lease"
	"github.com/spec-kit/ticket-sync/internal/queue"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
	"github.com/spec-kit/ticket-sync/pkg/util/validation"
)

// WebhookPayload is the ticket body Tito posts to the webhook endpoint.
type WebhookPayload struct {
	Reference    string      `json:"reference" validate:"required"`
	ReleaseID    json.Number `json:"release_id" validate:"required,numeric"`
	ReleaseTitle string      `json:"release_title" validate:"required"`
	Email        string      `json:"email" validate:"required,email"`
	Name         string      `json:"name" validate:"required"`
	PhoneNumber  string      `json:"phone_number"`
	StateName    string      `json:"state_name" validate:"required"`
	Type         string      `json:"_type" validate:"required,eq=ticket"`
}

// WebhookJobPayload is the body of a webhook.ticket job.
type WebhookJobPayload struct {
	Trigger string         `json:"trigger"`
	Ticket  WebhookPayload `json:"ticket"`
}

// WebhookService accepts signed Tito webhooks and hands them to the queue.
type WebhookService struct {
	flag       lease.Lease
	verifier   *auth.SignatureVerifier
	queue      queue.Queue
	queueName  string
	reconciler TicketReconciler
	logger     *zap.Logger
}

// WebhookDependencies bundles collaborators for the webhook service.
type WebhookDependencies struct {
	Flag       lease.Lease
	Verifier   *auth.SignatureVerifier
	Queue      queue.Queue
	QueueName  string
	Reconciler TicketReconciler
	Logger     *zap.Logger
}

// NewWebhookService constructs the service.
func NewWebhookService(deps WebhookDependencies) *WebhookService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	queueName := deps.QueueName
	if queueName == "" {
		queueName = "webhooks"
	}
	return &WebhookService{
		flag:       deps.Flag,
		verifier:   deps.Verifier,
		queue:      deps.Queue,
		queueName:  queueName,
		reconciler: deps.Reconciler,
		logger:     logger.Named("webhook"),
	}
}

// Ingest checks the sync flag, the payload shape and the signature, in that order,
// then queues the ticket for reconciliation.
func (s *WebhookService) Ingest(ctx context.Context, body []byte, signature, trigger string) (*queue.Job, error) {
	held, err := s.flag.IsHeld(ctx)
	if err != nil {
		return nil, apperrors.NewServiceUnavailable("sync flag unavailable", err)
	}
	if held {
		return nil, ErrSyncInProgress
	}

	payload, err := decodeWebhookPayload(body)
	if err != nil {
		return nil, err
	}

	if err := s.verifier.Verify(body, signature); err != nil {
		s.logger.Warn("webhook signature rejected", zap.String("reference_id", payload.Reference), zap.Error(err))
		return nil, apperrors.NewUnauthorized("invalid webhook signature")
	}

	job, err := queue.NewJob(queue.JobWebhookTicket, WebhookJobPayload{Trigger: trigger, Ticket: *payload})
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if err := s.queue.Enqueue(ctx, s.queueName, job); err != nil {
		return nil, apperrors.NewServiceUnavailable("webhook could not be queued", err)
	}

	s.logger.Info("webhook queued",
		zap.String("job_id", job.ID),
		zap.String("reference_id", payload.Reference),
		zap.String("trigger", trigger))
	return &job, nil
}

func decodeWebhookPayload(body []byte) (*WebhookPayload, error) {
	var payload WebhookPayload
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return nil, apperrors.NewUnprocessable("invalid webhook payload", map[string]any{"body": "must be a JSON object"})
	}
	if err := validation.Struct(payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// HandleJob reconciles a queued webhook. Malformed events and orphaned tickets are
// logged and dropped; other failures go back to the queue for retry.
func (s *WebhookService) HandleJob(ctx context.Context, job *queue.Job) error {
	var payload WebhookJobPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}

	event := domain.TicketEvent{
		ReferenceID:  payload.Ticket.Reference,
		ReleaseTitle: payload.Ticket.ReleaseTitle,
		ReleaseID:    payload.Ticket.ReleaseID.String(),
		StateName:    payload.Ticket.StateName,
		Email:        payload.Ticket.Email,
		Name:         payload.Ticket.Name,
		Phone:        payload.Ticket.PhoneNumber,
		Trigger:      payload.Trigger,
	}

	_, err := s.reconciler.Reconcile(ctx, event)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrMalformedEvent), errors.Is(err, ErrOwnerMissing):
		s.logger.Error("webhook ticket skipped",
			zap.String("job_id", job.ID),
			zap.String("reference_id", event.ReferenceID),
			zap.Error(err))
		return nil
	default:
		s.logger.Error("webhook reconciliation failed",
			zap.String("job_id", job.ID),
			zap.String("reference_id", event.ReferenceID),
			zap.Int("attempt", job.Attempts),
			zap.Error(err))
		return err
	}
}
