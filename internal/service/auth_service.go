package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/auth"
	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/repository"
	"github.com/spec-kit/ticket-sync/internal/tito"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
)

var errInvalidCredentials = apperrors.NewUnauthorized("invalid credentials")

// Mailer delivers one-time links to users.
type Mailer interface {
	SendPasswordResetLink(ctx context.Context, user *domain.User, token string) error
	SendVerificationLink(ctx context.Context, user *domain.User, token string) error
}

// PasswordResetIssuer mints and mails a password reset link for a user.
type PasswordResetIssuer interface {
	IssuePasswordReset(ctx context.Context, userID string) error
}

// LoginResult is a successful login.
type LoginResult struct {
	User  *domain.User
	Token *auth.IssuedToken
}

// RegisterInput is a self-service registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

// ResetPasswordInput completes a password reset.
type ResetPasswordInput struct {
	Token    string
	Email    string
	Password string
}

// AuthService coordinates registration, login and one-time token flows.
type AuthService struct {
	users      repository.UserRepository
	tokens     repository.AuthTokenRepository
	source     tito.Source
	tokenMgr   *auth.TokenManager
	revoked    auth.RevocationStore
	mailer     Mailer
	bcryptCost int
	resetTTL   time.Duration
	verifyTTL  time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo      repository.UserRepository
	AuthTokenRepo repository.AuthTokenRepository
	Source        tito.Source
	Revocations   auth.RevocationStore
	Mailer        Mailer
	Logger        *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		tokens:     deps.AuthTokenRepo,
		source:     deps.Source,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		revoked:    deps.Revocations,
		mailer:     deps.Mailer,
		bcryptCost: cfg.BcryptCost,
		resetTTL:   minutesOr(cfg.PasswordResetTTLMinutes, 60),
		verifyTTL:  minutesOr(cfg.EmailVerificationTTLMinutes, 60),
		logger:     logger.Named("auth"),
		now:        time.Now,
	}
}

func minutesOr(minutes, fallback int) time.Duration {
	if minutes <= 0 {
		minutes = fallback
	}
	return time.Duration(minutes) * time.Minute
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// SetMailer wires the mailer after construction.
func (s *AuthService) SetMailer(m Mailer) {
	s.mailer = m
}

// LoginAdmin authenticates an operator.
func (s *AuthService) LoginAdmin(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.checkCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if !user.Role.IsAdmin() {
		return nil, apperrors.NewForbidden("admin role required")
	}
	return s.issue(user)
}

// LoginUser authenticates an attendee. The email address must be verified.
func (s *AuthService) LoginUser(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.checkCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if user.Role != domain.RoleUser {
		return nil, apperrors.NewForbidden("user role required")
	}
	if !user.IsVerified() {
		return nil, apperrors.NewForbidden("email address is not verified")
	}
	return s.issue(user)
}

func (s *AuthService) checkCredentials(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, errInvalidCredentials
	}
	return user, nil
}

func (s *AuthService) issue(user *domain.User) (*LoginResult, error) {
	token, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &LoginResult{User: user, Token: token}, nil
}

// Logout revokes the caller's access token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, principal *auth.Principal) error {
	if principal == nil {
		return apperrors.NewUnauthorized("missing principal")
	}
	if s.revoked == nil {
		return nil
	}
	if err := s.revoked.Revoke(ctx, principal.TokenID, principal.ExpiresAt); err != nil {
		return apperrors.NewServiceUnavailable("logout unavailable", err)
	}
	return nil
}

// Register creates a user account for someone holding at least one remote ticket.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	email := domain.NormalizeEmail(in.Email)
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", map[string]any{"email": "has already been taken"})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	tickets, err := s.source.SearchAttendeeTickets(ctx, email)
	if err != nil {
		s.logger.Warn("attendee lookup failed", zap.String("email", email), zap.Error(err))
		return nil, apperrors.NewForbidden("no tickets found for this email address")
	}
	if len(tickets) == 0 {
		return nil, apperrors.NewForbidden("no tickets found for this email address")
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user := &domain.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: hash,
		Role:         domain.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("email already registered", map[string]any{"email": "has already been taken"})
		}
		return nil, err
	}

	if err := s.sendVerification(ctx, user); err != nil {
		s.logger.Error("verification email failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	return user, nil
}

// ForgotPassword mails a reset link to a known address.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewUnprocessable("unable to send reset link", map[string]any{"email": "no account uses this address"})
	}
	if err != nil {
		return err
	}
	return s.issuePasswordReset(ctx, user)
}

// IssuePasswordReset mints a reset token for userID and mails the link.
func (s *AuthService) IssuePasswordReset(ctx context.Context, userID string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	return s.issuePasswordReset(ctx, user)
}

func (s *AuthService) issuePasswordReset(ctx context.Context, user *domain.User) error {
	token, err := s.mint(ctx, user.ID, domain.TokenPurposePasswordReset, s.resetTTL)
	if err != nil {
		return err
	}
	if s.mailer == nil {
		return nil
	}
	return s.mailer.SendPasswordResetLink(ctx, user, token.Token)
}

// ResetPassword sets a new password from a mailed token. Completing a reset proves
// ownership of the address, so it also verifies the email.
func (s *AuthService) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	invalid := apperrors.NewUnprocessable("invalid or expired reset token", map[string]any{"token": "is invalid or expired"})

	token, err := s.tokens.GetByToken(ctx, domain.TokenPurposePasswordReset, in.Token)
	if errors.Is(err, pgx.ErrNoRows) {
		return invalid
	}
	if err != nil {
		return err
	}
	if !token.Usable(s.now()) {
		return invalid
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		return err
	}
	if !domain.SameEmail(user.Email, in.Email) {
		return invalid
	}

	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	if !user.IsVerified() {
		if err := s.users.MarkEmailVerified(ctx, user.ID, s.now().UTC()); err != nil {
			return err
		}
	}
	if err := s.tokens.MarkUsed(ctx, token.ID); err != nil {
		return err
	}
	return s.tokens.InvalidateForUser(ctx, user.ID, domain.TokenPurposePasswordReset)
}

// VerifyEmail consumes a verification token.
func (s *AuthService) VerifyEmail(ctx context.Context, tokenStr string) error {
	invalid := apperrors.NewUnprocessable("invalid or expired verification link", nil)

	token, err := s.tokens.GetByToken(ctx, domain.TokenPurposeEmailVerification, tokenStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return invalid
	}
	if err != nil {
		return err
	}
	if !token.Usable(s.now()) {
		return invalid
	}
	if err := s.users.MarkEmailVerified(ctx, token.UserID, s.now().UTC()); err != nil {
		return err
	}
	return s.tokens.MarkUsed(ctx, token.ID)
}

// ResendVerification mails a fresh verification link. It reports false when the
// address is already verified.
func (s *AuthService) ResendVerification(ctx context.Context, email string) (bool, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, apperrors.NewUnprocessable("unable to send verification link", map[string]any{"email": "no account uses this address"})
	}
	if err != nil {
		return false, err
	}
	if user.IsVerified() {
		return false, nil
	}
	if err := s.sendVerification(ctx, user); err != nil {
		return false, err
	}
	return true, nil
}

func (s *AuthService) sendVerification(ctx context.Context, user *domain.User) error {
	token, err := s.mint(ctx, user.ID, domain.TokenPurposeEmailVerification, s.verifyTTL)
	if err != nil {
		return err
	}
	if s.mailer == nil {
		return nil
	}
	return s.mailer.SendVerificationLink(ctx, user, token.Token)
}

func (s *AuthService) mint(ctx context.Context, userID string, purpose domain.TokenPurpose, ttl time.Duration) (*domain.AuthToken, error) {
	if err := s.tokens.InvalidateForUser(ctx, userID, purpose); err != nil {
		return nil, fmt.Errorf("invalidate %s tokens: %w", purpose, err)
	}
	token := &domain.AuthToken{
		UserID:    userID,
		Purpose:   purpose,
		Token:     auth.RandomToken(),
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, fmt.Errorf("store %s token: %w", purpose, err)
	}
	return token, nil
}

// BootstrapAdmin creates a verified super admin when email is unused. It reports
// whether an account was created.
func (s *AuthService) BootstrapAdmin(ctx context.Context, name, email, password string) (bool, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || password == "" {
		return false, nil
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return false, err
	}
	now := s.now().UTC()
	admin := &domain.User{
		Name:            name,
		Email:           email,
		PasswordHash:    hash,
		Role:            domain.RoleSuperAdmin,
		EmailVerifiedAt: &now,
	}
	created, err := s.users.FirstOrCreate(ctx, admin)
	if err != nil {
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		s.logger.Info("bootstrap admin created", zap.String("user_id", admin.ID))
	}
	return created, nil
}
