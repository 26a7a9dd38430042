package service

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/events"
)

// NotificationService reacts to domain events and delivers mailed links.
// Delivery is a logging stub.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	appURL     string
	issuer     PasswordResetIssuer
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig, appURL string) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger.Named("notify"),
		cfg:        cfg,
		appURL:     strings.TrimRight(appURL, "/"),
	}
}

// RegisterHandlers subscribes to events. issuer mints password links for provisioned users.
func (n *NotificationService) RegisterHandlers(issuer PasswordResetIssuer) {
	if n.dispatcher == nil {
		return
	}
	n.issuer = issuer
	n.dispatcher.Subscribe(events.EventUserProvisioned, n.handleUserProvisioned)
	n.dispatcher.Subscribe(events.EventTicketCreated, n.logTicketEvent)
	n.dispatcher.Subscribe(events.EventTicketUpdated, n.logTicketEvent)
	n.dispatcher.Subscribe(events.EventTicketReassigned, n.logTicketEvent)
	n.dispatcher.Subscribe(events.EventTicketVoided, n.logTicketEvent)
	n.dispatcher.Subscribe(events.EventTicketRestored, n.logTicketEvent)
}

// provisioned accounts have a random password; mail them a link to set their own
func (n *NotificationService) handleUserProvisioned(ctx context.Context, event events.Event) error {
	if n.issuer == nil || event.UserID == "" {
		return nil
	}
	return n.issuer.IssuePasswordReset(ctx, event.UserID)
}

func (n *NotificationService) logTicketEvent(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("reference_id", event.ReferenceID),
		zap.String("user_id", event.UserID),
		zap.Any("payload", event.Payload))
	return nil
}

// SendPasswordResetLink implements Mailer.
func (n *NotificationService) SendPasswordResetLink(ctx context.Context, user *domain.User, token string) error {
	link := n.link("/reset-password/"+url.PathEscape(token), url.Values{"email": {user.Email}})
	n.sendEmailStub(ctx, user.Email, "Set your password", link)
	return nil
}

// SendVerificationLink implements Mailer.
func (n *NotificationService) SendVerificationLink(ctx context.Context, user *domain.User, token string) error {
	link := n.link("/api/user/verify-email/"+url.PathEscape(token), nil)
	n.sendEmailStub(ctx, user.Email, "Verify your email address", link)
	return nil
}

func (n *NotificationService) link(path string, query url.Values) string {
	out := n.appURL + path
	if len(query) > 0 {
		out += "?" + query.Encode()
	}
	return out
}

func (n *NotificationService) sendEmailStub(_ context.Context, to, subject, link string) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Info("sendEmailStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("link", link))
}
