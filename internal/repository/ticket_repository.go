package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// TicketFilter captures admin list parameters. Empty string fields are ignored;
// the rest match as case-insensitive substrings.
type TicketFilter struct {
	UserID     string
	TicketID   string
	TicketName string
	Status     string
	UserName   string
	UserEmail  string
	UserPhone  string
	Sort       string
	Order      string
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	FirstOrCreate(ctx context.Context, ticket *domain.Ticket) (bool, error)
	GetByReference(ctx context.Context, referenceID string, includeDeleted bool) (*domain.Ticket, error)
	GetWithOwner(ctx context.Context, referenceID string) (*domain.TicketWithOwner, error)
	ApplyUpdate(ctx context.Context, id string, update domain.TicketUpdate) error
	SoftDelete(ctx context.Context, id string) (bool, error)
	Restore(ctx context.Context, id string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.TicketWithOwner, int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, reference_id, name, status, user_id, created_at, updated_at, deleted_at`

var ticketSortColumns = map[string]string{
	"created_at":   "t.created_at",
	"updated_at":   "t.updated_at",
	"reference_id": "t.reference_id",
	"name":         "t.name",
	"status":       "t.status",
}

// IsSortableTicketColumn reports whether List accepts column as Sort.
func IsSortableTicketColumn(column string) bool {
	_, ok := ticketSortColumns[column]
	return ok
}

// FirstOrCreate inserts ticket unless its reference id exists (soft-deleted rows included),
// in which case ticket is overwritten with the stored row.
func (r *ticketRepository) FirstOrCreate(ctx context.Context, ticket *domain.Ticket) (bool, error) {
	const query = `
        INSERT INTO tickets (reference_id, name, status, user_id)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (reference_id) DO NOTHING
        RETURNING ` + ticketColumns

	err := scanTicket(r.pool.QueryRow(ctx, query,
		ticket.ReferenceID,
		ticket.Name,
		ticket.Status,
		ticket.UserID,
	), ticket)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	existing, err := r.GetByReference(ctx, ticket.ReferenceID, true)
	if err != nil {
		return false, err
	}
	*ticket = *existing
	return false, nil
}

func (r *ticketRepository) GetByReference(ctx context.Context, referenceID string, includeDeleted bool) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE reference_id=$1`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	var ticket domain.Ticket
	if err := scanTicket(r.pool.QueryRow(ctx, query, referenceID), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) GetWithOwner(ctx context.Context, referenceID string) (*domain.TicketWithOwner, error) {
	query := ticketWithOwnerSelect + ` WHERE t.reference_id=$1 AND t.deleted_at IS NULL`

	var item domain.TicketWithOwner
	if err := scanTicketWithOwner(r.pool.QueryRow(ctx, query, referenceID), &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *ticketRepository) ApplyUpdate(ctx context.Context, id string, update domain.TicketUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	sets := []string{}
	args := []any{}
	if update.Name != nil {
		args = append(args, *update.Name)
		sets = append(sets, fmt.Sprintf("name=$%d", len(args)))
	}
	if update.Status != nil {
		args = append(args, *update.Status)
		sets = append(sets, fmt.Sprintf("status=$%d", len(args)))
	}
	if update.UserID != nil {
		args = append(args, *update.UserID)
		sets = append(sets, fmt.Sprintf("user_id=$%d", len(args)))
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE tickets SET %s, updated_at=NOW() WHERE id=$%d`, strings.Join(sets, ", "), len(args))

	return execOne(ctx, r.pool, query, args...)
}

// SoftDelete marks the ticket deleted. It reports false when it already was.
func (r *ticketRepository) SoftDelete(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE tickets SET deleted_at=NOW(), updated_at=NOW() WHERE id=$1 AND deleted_at IS NULL`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// Restore clears the soft-delete marker. It reports false when the ticket was not deleted.
func (r *ticketRepository) Restore(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE tickets SET deleted_at=NULL, updated_at=NOW() WHERE id=$1 AND deleted_at IS NOT NULL`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *ticketRepository) ListByUser(ctx context.Context, userID string) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE user_id=$1 AND deleted_at IS NULL
        ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

const ticketWithOwnerSelect = `
        SELECT t.id, t.reference_id, t.name, t.status, t.user_id, t.created_at, t.updated_at, t.deleted_at,
               u.id, u.name, u.email, u.phone, u.role, u.email_verified_at, u.created_at, u.updated_at
        FROM tickets t
        JOIN users u ON u.id = t.user_id`

// List returns one page of non-deleted tickets with owners, plus the total match count.
func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.TicketWithOwner, int, error) {
	clauses := []string{"t.deleted_at IS NULL"}
	args := []any{}

	like := func(column, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(value))+"%")
		clauses = append(clauses, fmt.Sprintf("LOWER(%s) LIKE $%d", column, len(args)))
	}

	if filter.UserID != "" {
		args = append(args, filter.UserID)
		clauses = append(clauses, fmt.Sprintf("t.user_id=$%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		clauses = append(clauses, fmt.Sprintf("t.status=$%d", len(args)))
	}
	like("t.reference_id", filter.TicketID)
	like("t.name", filter.TicketName)
	like("u.name", filter.UserName)
	like("u.email", filter.UserEmail)
	like("u.phone", filter.UserPhone)

	where := strings.Join(clauses, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM tickets t JOIN users u ON u.id = t.user_id WHERE ` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sortColumn, ok := ticketSortColumns[filter.Sort]
	if !ok {
		sortColumn = "t.created_at"
	}
	order := "DESC"
	if strings.EqualFold(filter.Order, "asc") {
		order = "ASC"
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY %s %s, t.id LIMIT %d OFFSET %d`,
		ticketWithOwnerSelect, where, sortColumn, order, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []domain.TicketWithOwner
	for rows.Next() {
		var item domain.TicketWithOwner
		if err := scanTicketWithOwner(rows, &item); err != nil {
			return nil, 0, err
		}
		result = append(result, item)
	}
	return result, total, rows.Err()
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.ReferenceID,
		&ticket.Name,
		&ticket.Status,
		&ticket.UserID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.DeletedAt,
	)
}

func scanTicketWithOwner(row pgx.Row, item *domain.TicketWithOwner) error {
	return row.Scan(
		&item.ID,
		&item.ReferenceID,
		&item.Name,
		&item.Status,
		&item.UserID,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.DeletedAt,
		&item.Owner.ID,
		&item.Owner.Name,
		&item.Owner.Email,
		&item.Owner.Phone,
		&item.Owner.Role,
		&item.Owner.EmailVerifiedAt,
		&item.Owner.CreatedAt,
		&item.Owner.UpdatedAt,
	)
}
