package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sync/internal/auth"
	"github.com/spec-kit/ticket-sync/internal/service"
)

// WebhookTriggerHeader names the webhook event, e.g. "ticket.voided".
const WebhookTriggerHeader = "X-Webhook-Name"

// WebhookHandler receives Tito ticket webhooks.
type WebhookHandler struct {
	webhooks *service.WebhookService
}

// NewWebhookHandler constructs handler.
func NewWebhookHandler(webhooks *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Receive POST /api/tito-webhook.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	job, err := h.webhooks.Ingest(c.UserContext(), body, c.Get(auth.SignatureHeader), c.Get(WebhookTriggerHeader))
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"data": fiber.Map{"status": "queued", "job_id": job.ID}})
}
