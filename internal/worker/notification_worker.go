package worker

import (
	"github.com/spec-kit/ticket-sync/internal/service"
)

// StartNotificationWorker registers notification handlers. issuer mints password
// links for accounts the reconciler provisions.
func StartNotificationWorker(notificationService *service.NotificationService, issuer service.PasswordResetIssuer) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers(issuer)
}
