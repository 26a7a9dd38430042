package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sync/internal/auth"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
	"github.com/spec-kit/ticket-sync/pkg/util/validation"
)

func parseBody(c *fiber.Ctx, v any) error {
	if err := c.BodyParser(v); err != nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"body": err.Error()})
	}
	return validation.Struct(v)
}

func currentPrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return principal, nil
}

// parseIntQuery returns 0 for an absent key so services apply their defaults.
func parseIntQuery(c *fiber.Ctx, key string) (int, error) {
	val := c.Query(key)
	if val == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return 0, apperrors.NewUnprocessable("invalid query", map[string]any{key: "must be an integer"})
	}
	return parsed, nil
}
