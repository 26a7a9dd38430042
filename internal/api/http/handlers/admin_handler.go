package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sync/internal/api/dto"
	"github.com/spec-kit/ticket-sync/internal/service"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
)

// AdminHandler exposes operator endpoints.
type AdminHandler struct {
	auth    *service.AuthService
	tickets *service.TicketService
	sync    *service.SyncService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(authService *service.AuthService, ticketService *service.TicketService, syncService *service.SyncService) *AdminHandler {
	return &AdminHandler{auth: authService, tickets: ticketService, sync: syncService}
}

// Login POST /api/admin/login.
func (h *AdminHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.auth.LoginAdmin(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"user": dto.NewUserResponse(result.User),
		"auth": dto.AuthResponse{Token: result.Token.Token, ExpiresAt: result.Token.ExpiresAt},
	}})
}

// Logout POST /api/admin/logout.
func (h *AdminHandler) Logout(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.auth.Logout(c.UserContext(), principal); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "logged_out"}})
}

// ListTickets GET /api/admin/tickets.
func (h *AdminHandler) ListTickets(c *fiber.Ctx) error {
	in, err := parseTicketListQuery(c)
	if err != nil {
		return err
	}
	page, err := h.tickets.List(c.UserContext(), in)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, dto.NewTicketWithOwnerResponse(&page.Items[i]))
	}
	return c.JSON(fiber.Map{
		"data": items,
		"meta": dto.PaginationMeta{Page: page.Page, Limit: page.Limit, Total: page.Total, LastPage: page.LastPage},
	})
}

func parseTicketListQuery(c *fiber.Ctx) (service.TicketListInput, error) {
	page, err := parseIntQuery(c, "page")
	if err != nil {
		return service.TicketListInput{}, err
	}
	limit, err := parseIntQuery(c, "limit")
	if err != nil {
		return service.TicketListInput{}, err
	}
	in := service.TicketListInput{
		Page:  page,
		Limit: limit,
		Sort:  c.Query("sort"),
		Order: c.Query("order"),
	}
	if raw := c.Query("filter"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Filter); err != nil {
			return service.TicketListInput{}, apperrors.NewUnprocessable("invalid query", map[string]any{"filter": "must be a JSON object of strings"})
		}
	}
	return in, nil
}

// GetTicket GET /api/admin/tickets/:ticketId.
func (h *AdminHandler) GetTicket(c *fiber.Ctx) error {
	item, err := h.tickets.GetByReference(c.UserContext(), c.Params("ticketId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketWithOwnerResponse(item)})
}

// DeleteTicket DELETE /api/admin/tickets/:ticketId.
func (h *AdminHandler) DeleteTicket(c *fiber.Ctx) error {
	if err := h.tickets.Delete(c.UserContext(), c.Params("ticketId")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "deleted", "ticket_id": c.Params("ticketId")}})
}

// TriggerSync POST /api/admin/sync.
func (h *AdminHandler) TriggerSync(c *fiber.Ctx) error {
	if err := h.sync.TriggerAsync(c.UserContext()); err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": fiber.Map{"status": "started"}})
}
