package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/repository"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util/errorutil"
	"github.com/spec-kit/ticket-sync/pkg/util/validation"
)

// Admin list filter keys.
const (
	FilterTicketID   = "ticket_id"
	FilterTicketName = "ticket_name"
	FilterStatus     = "status"
	FilterUserName   = "user_name"
	FilterUserEmail  = "user_email"
	FilterUserPhone  = "user_phone"
)

const (
	defaultTicketPageSize = 10
	maxTicketPageSize     = 100
)

// TicketListInput is an admin list request.
type TicketListInput struct {
	Page   int
	Limit  int
	Sort   string
	Order  string
	Filter map[string]string
}

// TicketListResult is one page of the admin listing.
type TicketListResult struct {
	Items    []domain.TicketWithOwner
	Page     int
	Limit    int
	Total    int
	LastPage int
}

// Profile is a user with their live tickets.
type Profile struct {
	User    *domain.User
	Tickets []domain.Ticket
}

// TicketService serves the read and admin APIs over reconciled tickets.
type TicketService struct {
	tickets repository.TicketRepository
	users   repository.UserRepository
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{tickets: deps.TicketRepo, users: deps.UserRepo}
}

// List returns a filtered page of live tickets. An empty page is a 404.
func (s *TicketService) List(ctx context.Context, in TicketListInput) (*TicketListResult, error) {
	filter, err := buildTicketFilter(in)
	if err != nil {
		return nil, err
	}

	items, total, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperrors.NewNotFound("tickets", nil)
	}

	page := filter.Offset/filter.Limit + 1
	return &TicketListResult{
		Items:    items,
		Page:     page,
		Limit:    filter.Limit,
		Total:    total,
		LastPage: (total + filter.Limit - 1) / filter.Limit,
	}, nil
}

func buildTicketFilter(in TicketListInput) (repository.TicketFilter, error) {
	details := map[string]any{}

	page := in.Page
	if page == 0 {
		page = 1
	}
	if page < 1 {
		details["page"] = "must be at least 1"
	}
	limit := in.Limit
	if limit == 0 {
		limit = defaultTicketPageSize
	}
	if limit < 1 || limit > maxTicketPageSize {
		details["limit"] = fmt.Sprintf("must be between 1 and %d", maxTicketPageSize)
	}

	sortColumn := strings.TrimSpace(in.Sort)
	if sortColumn == "" {
		sortColumn = "created_at"
	}
	if !repository.IsSortableTicketColumn(sortColumn) {
		details["sort"] = "is not a sortable column"
	}
	order := strings.ToLower(strings.TrimSpace(in.Order))
	if order == "" {
		order = "asc"
	}
	if order != "asc" && order != "desc" {
		details["order"] = "must be one of: asc desc"
	}

	filter := repository.TicketFilter{Sort: sortColumn, Order: order, Limit: limit}

	keys := make([]string, 0, len(in.Filter))
	for key := range in.Filter {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value := strings.TrimSpace(in.Filter[key])
		switch key {
		case FilterTicketID:
			filter.TicketID = value
		case FilterTicketName:
			filter.TicketName = value
		case FilterStatus:
			if value != "" && !domain.IsKnownTicketStatus(value) {
				details["filter."+key] = "must be one of: void complete incomplete"
			}
			filter.Status = value
		case FilterUserName:
			filter.UserName = value
		case FilterUserEmail:
			if value != "" && validation.Validator().Var(value, "email") != nil {
				details["filter."+key] = "must be a valid email address"
			}
			filter.UserEmail = value
		case FilterUserPhone:
			filter.UserPhone = value
		default:
			details["filter."+key] = "is not a supported filter"
		}
	}

	if len(details) > 0 {
		return repository.TicketFilter{}, apperrors.NewUnprocessable("invalid ticket query", details)
	}
	filter.Offset = (page - 1) * limit
	return filter, nil
}

// GetByReference returns a live ticket with its owner.
func (s *TicketService) GetByReference(ctx context.Context, referenceID string) (*domain.TicketWithOwner, error) {
	item, err := s.tickets.GetWithOwner(ctx, referenceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": referenceID})
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// Delete soft-deletes a live ticket.
func (s *TicketService) Delete(ctx context.Context, referenceID string) error {
	ticket, err := s.tickets.GetByReference(ctx, referenceID, false)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": referenceID})
	}
	if err != nil {
		return err
	}
	if _, err := s.tickets.SoftDelete(ctx, ticket.ID); err != nil {
		return err
	}
	return nil
}

// Profile returns the user and their live tickets.
func (s *TicketService) Profile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("user", nil)
	}
	if err != nil {
		return nil, err
	}
	tickets, err := s.tickets.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: user, Tickets: tickets}, nil
}

// GetForUser returns a live ticket owned by userID.
func (s *TicketService) GetForUser(ctx context.Context, userID, referenceID string) (*domain.TicketWithOwner, error) {
	item, err := s.GetByReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if item.UserID != userID {
		return nil, apperrors.NewForbidden("ticket belongs to another user")
	}
	return item, nil
}
