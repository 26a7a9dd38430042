package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang/mock/gomock"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-sync/internal/domain"
	mock_repository "github.com/spec-kit/ticket-sync/internal/repository/mock"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
)

type memoryRevocations map[string]bool

func (m memoryRevocations) Revoke(_ context.Context, id string, _ time.Time) error {
	m[id] = true
	return nil
}

func (m memoryRevocations) IsRevoked(_ context.Context, id string) (bool, error) {
	return m[id], nil
}

func newGuardedApp(mw *AuthMiddleware, guard fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return c.SendStatus(fe.Code)
			}
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	app.Get("/me", mw.Handle, guard, func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(p.User.ID)
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mock_repository.NewMockUserRepository(ctrl)
	tm := NewTokenManager("secret", 5)
	revoked := memoryRevocations{}
	mw := NewAuthMiddleware(tm, users, revoked)

	verified := time.Now()
	admin := &domain.User{ID: "admin-1", Role: domain.RoleAdmin}
	holder := &domain.User{ID: "user-1", Role: domain.RoleUser, EmailVerifiedAt: &verified}
	unverified := &domain.User{ID: "user-2", Role: domain.RoleUser}

	users.EXPECT().GetByID(gomock.Any(), "admin-1").Return(admin, nil).AnyTimes()
	users.EXPECT().GetByID(gomock.Any(), "user-1").Return(holder, nil).AnyTimes()
	users.EXPECT().GetByID(gomock.Any(), "user-2").Return(unverified, nil).AnyTimes()
	users.EXPECT().GetByID(gomock.Any(), "ghost").Return(nil, pgx.ErrNoRows).AnyTimes()

	bearer := func(userID string, role domain.Role) string {
		issued, err := tm.GenerateToken(userID, role)
		require.NoError(t, err)
		return "Bearer " + issued.Token
	}
	revokedToken, err := tm.GenerateToken("admin-1", domain.RoleAdmin)
	require.NoError(t, err)
	revoked[revokedToken.TokenID] = true

	tests := []struct {
		name   string
		guard  fiber.Handler
		header string
		status int
	}{
		{name: "missing header", guard: RequireAdmin(), status: http.StatusUnauthorized},
		{name: "bad scheme", guard: RequireAdmin(), header: "Basic abc", status: http.StatusUnauthorized},
		{name: "admin passes admin guard", guard: RequireAdmin(), header: bearer("admin-1", domain.RoleAdmin), status: http.StatusOK},
		{name: "user blocked by admin guard", guard: RequireAdmin(), header: bearer("user-1", domain.RoleUser), status: http.StatusForbidden},
		{name: "verified user passes", guard: RequireUser(), header: bearer("user-1", domain.RoleUser), status: http.StatusOK},
		{name: "unverified user blocked", guard: RequireUser(), header: bearer("user-2", domain.RoleUser), status: http.StatusForbidden},
		{name: "admin blocked by user guard", guard: RequireUser(), header: bearer("admin-1", domain.RoleAdmin), status: http.StatusForbidden},
		{name: "unknown user", guard: RequireAdmin(), header: bearer("ghost", domain.RoleAdmin), status: http.StatusUnauthorized},
		{name: "stale role claim", guard: RequireAdmin(), header: bearer("user-1", domain.RoleAdmin), status: http.StatusUnauthorized},
		{name: "revoked token", guard: RequireAdmin(), header: "Bearer " + revokedToken.Token, status: http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := newGuardedApp(mw, tc.guard)
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
