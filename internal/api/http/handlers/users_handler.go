package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sync/internal/api/dto"
	"github.com/spec-kit/ticket-sync/internal/service"
)

// UsersHandler exposes attendee auth and self-service endpoints.
type UsersHandler struct {
	auth    *service.AuthService
	tickets *service.TicketService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService, ticketService *service.TicketService) *UsersHandler {
	return &UsersHandler{auth: authService, tickets: ticketService}
}

// Register POST /api/user/register.
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// Login POST /api/user/login.
func (h *UsersHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.auth.LoginUser(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"user": dto.NewUserResponse(result.User),
		"auth": dto.AuthResponse{Token: result.Token.Token, ExpiresAt: result.Token.ExpiresAt},
	}})
}

// Logout POST /api/user/logout.
func (h *UsersHandler) Logout(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	if err := h.auth.Logout(c.UserContext(), principal); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "logged_out"}})
}

// ForgotPassword POST /api/user/forgot-password.
func (h *UsersHandler) ForgotPassword(c *fiber.Ctx) error {
	var req dto.EmailRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if err := h.auth.ForgotPassword(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "reset_link_sent"}})
}

// ResetPassword POST /api/user/reset-password.
func (h *UsersHandler) ResetPassword(c *fiber.Ctx) error {
	var req dto.ResetPasswordRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	err := h.auth.ResetPassword(c.UserContext(), service.ResetPasswordInput{
		Token:    req.Token,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "password_reset"}})
}

// VerifyEmail GET /api/user/verify-email/:token.
func (h *UsersHandler) VerifyEmail(c *fiber.Ctx) error {
	if err := h.auth.VerifyEmail(c.UserContext(), c.Params("token")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "verified"}})
}

// ResendVerification POST /api/user/email/verification-notification.
func (h *UsersHandler) ResendVerification(c *fiber.Ctx) error {
	var req dto.EmailRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	sent, err := h.auth.ResendVerification(c.UserContext(), req.Email)
	if err != nil {
		return err
	}
	status := "verification_link_sent"
	if !sent {
		status = "already_verified"
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": status}})
}

// Profile GET /api/user/profile.
func (h *UsersHandler) Profile(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	profile, err := h.tickets.Profile(c.UserContext(), principal.User.ID)
	if err != nil {
		return err
	}
	tickets := make([]dto.TicketResponse, 0, len(profile.Tickets))
	for i := range profile.Tickets {
		tickets = append(tickets, dto.NewTicketResponse(&profile.Tickets[i]))
	}
	return c.JSON(fiber.Map{"data": dto.ProfileResponse{User: dto.NewUserResponse(profile.User), Tickets: tickets}})
}

// GetTicket GET /api/user/tickets/:ticketId.
func (h *UsersHandler) GetTicket(c *fiber.Ctx) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}
	item, err := h.tickets.GetForUser(c.UserContext(), principal.User.ID, c.Params("ticketId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(&item.Ticket)})
}
