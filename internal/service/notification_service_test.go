package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/events"
)

func newDispatcherWithNotifications(issuer PasswordResetIssuer) events.Dispatcher {
	dispatcher := events.NewInMemoryDispatcher()
	notifications := NewNotificationService(dispatcher, zap.NewNop(), config.NotificationConfig{}, "http://localhost")
	notifications.RegisterHandlers(issuer)
	return dispatcher
}

func TestNotificationLinks(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewNotificationService(nil, zap.New(core), config.NotificationConfig{EmailFrom: "noreply@example.com"}, "https://tickets.example.com/")
	user := &domain.User{Email: "ada+1@example.com"}

	require.NoError(t, n.SendPasswordResetLink(context.Background(), user, "tok"))
	require.NoError(t, n.SendVerificationLink(context.Background(), user, "vtok"))

	entries := logs.FilterMessage("sendEmailStub").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "https://tickets.example.com/reset-password/tok?email=ada%2B1%40example.com", entries[0].ContextMap()["link"])
	assert.Equal(t, "https://tickets.example.com/api/user/verify-email/vtok", entries[1].ContextMap()["link"])
}

func TestNotificationStubSilentWithoutSender(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	n := NewNotificationService(nil, zap.New(core), config.NotificationConfig{}, "http://localhost")
	require.NoError(t, n.SendVerificationLink(context.Background(), &domain.User{Email: "a@example.com"}, "t"))
	assert.Zero(t, logs.FilterMessage("sendEmailStub").Len())
}

type issuerFunc func(ctx context.Context, userID string) error

func (f issuerFunc) IssuePasswordReset(ctx context.Context, userID string) error { return f(ctx, userID) }

func TestUserProvisionedTriggersResetLink(t *testing.T) {
	var issued []string
	dispatcher := newDispatcherWithNotifications(issuerFunc(func(_ context.Context, userID string) error {
		issued = append(issued, userID)
		return nil
	}))

	require.NoError(t, dispatcher.Publish(context.Background(), events.NewEvent(events.EventUserProvisioned, "", "user-1", nil)))
	require.NoError(t, dispatcher.Publish(context.Background(), events.NewEvent(events.EventTicketCreated, "ABC-1", "user-1", nil)))
	assert.Equal(t, []string{"user-1"}, issued)
}
