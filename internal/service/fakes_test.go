package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/lease"
	"github.com/spec-kit/ticket-sync/internal/repository"
)

// memStore backs the user, ticket and token fakes with one lock so joins stay consistent.
type memStore struct {
	mu      sync.Mutex
	seq     int
	users   map[string]*domain.User
	tickets map[string]*domain.Ticket
	tokens  map[string]*domain.AuthToken
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[string]*domain.User{},
		tickets: map[string]*domain.Ticket{},
		tokens:  map[string]*domain.AuthToken{},
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memStore) userByEmail(email string) *domain.User {
	for _, u := range s.users {
		if domain.SameEmail(u.Email, email) {
			return u
		}
	}
	return nil
}

func (s *memStore) ticketByRef(ref string) *domain.Ticket {
	for _, t := range s.tickets {
		if t.ReferenceID == ref {
			return t
		}
	}
	return nil
}

func (s *memStore) liveTickets() []domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Ticket
	for _, t := range s.tickets {
		if !t.IsDeleted() {
			out = append(out, *t)
		}
	}
	return out
}

func (s *memStore) allTickets() []domain.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, *t)
	}
	return out
}

func (s *memStore) userCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

type memUserRepo struct{ s *memStore }

func (r memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.userByEmail(user.Email) != nil {
		return repository.ErrDuplicate
	}
	r.s.insertUser(user)
	return nil
}

func (r memUserRepo) FirstOrCreate(_ context.Context, user *domain.User) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing := r.s.userByEmail(user.Email); existing != nil {
		*user = *existing
		return false, nil
	}
	r.s.insertUser(user)
	return true, nil
}

func (s *memStore) insertUser(user *domain.User) {
	user.Email = domain.NormalizeEmail(user.Email)
	user.ID = s.nextID("user")
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	s.users[user.ID] = &stored
}

func (r memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := *u
	return &out, nil
}

func (r memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u := r.s.userByEmail(email)
	if u == nil {
		return nil, pgx.ErrNoRows
	}
	out := *u
	return &out, nil
}

func (r memUserRepo) ApplyUpdate(_ context.Context, id string, update domain.UserUpdate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if update.Name != nil {
		u.Name = *update.Name
	}
	if update.Phone != nil {
		u.Phone = *update.Phone
	}
	return nil
}

func (r memUserRepo) UpdatePassword(_ context.Context, id, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.PasswordHash = hash
	return nil
}

func (r memUserRepo) MarkEmailVerified(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.EmailVerifiedAt = &at
	return nil
}

type memTicketRepo struct{ s *memStore }

func (r memTicketRepo) FirstOrCreate(_ context.Context, ticket *domain.Ticket) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing := r.s.ticketByRef(ticket.ReferenceID); existing != nil {
		*ticket = *existing
		return false, nil
	}
	ticket.ID = r.s.nextID("ticket")
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	stored := *ticket
	r.s.tickets[ticket.ID] = &stored
	return true, nil
}

func (r memTicketRepo) GetByReference(_ context.Context, ref string, includeDeleted bool) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t := r.s.ticketByRef(ref)
	if t == nil || (!includeDeleted && t.IsDeleted()) {
		return nil, pgx.ErrNoRows
	}
	out := *t
	return &out, nil
}

func (r memTicketRepo) GetWithOwner(_ context.Context, ref string) (*domain.TicketWithOwner, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t := r.s.ticketByRef(ref)
	if t == nil || t.IsDeleted() {
		return nil, pgx.ErrNoRows
	}
	owner, ok := r.s.users[t.UserID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &domain.TicketWithOwner{Ticket: *t, Owner: *owner}, nil
}

func (r memTicketRepo) ApplyUpdate(_ context.Context, id string, update domain.TicketUpdate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if update.Name != nil {
		t.Name = *update.Name
	}
	if update.Status != nil {
		t.Status = *update.Status
	}
	if update.UserID != nil {
		t.UserID = *update.UserID
	}
	t.UpdatedAt = time.Now()
	return nil
}

func (r memTicketRepo) SoftDelete(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok || t.IsDeleted() {
		return false, nil
	}
	now := time.Now()
	t.DeletedAt = &now
	return true, nil
}

func (r memTicketRepo) Restore(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok || !t.IsDeleted() {
		return false, nil
	}
	t.DeletedAt = nil
	return true, nil
}

func (r memTicketRepo) ListByUser(_ context.Context, userID string) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Ticket
	for _, t := range r.s.tickets {
		if t.UserID == userID && !t.IsDeleted() {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReferenceID < out[j].ReferenceID })
	return out, nil
}

func (r memTicketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.TicketWithOwner, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	contains := func(have, want string) bool {
		return want == "" || strings.Contains(strings.ToLower(have), strings.ToLower(want))
	}
	var matched []domain.TicketWithOwner
	for _, t := range r.s.tickets {
		owner := r.s.users[t.UserID]
		if t.IsDeleted() || owner == nil {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		if !contains(t.ReferenceID, filter.TicketID) || !contains(t.Name, filter.TicketName) ||
			!contains(owner.Name, filter.UserName) || !contains(owner.Email, filter.UserEmail) ||
			!contains(owner.Phone, filter.UserPhone) {
			continue
		}
		matched = append(matched, domain.TicketWithOwner{Ticket: *t, Owner: *owner})
	}
	sort.Slice(matched, func(i, j int) bool {
		if filter.Order == "desc" {
			return matched[i].ReferenceID > matched[j].ReferenceID
		}
		return matched[i].ReferenceID < matched[j].ReferenceID
	})
	total := len(matched)
	if filter.Offset >= total {
		return nil, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

type memTokenRepo struct{ s *memStore }

func (r memTokenRepo) Create(_ context.Context, token *domain.AuthToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	token.ID = r.s.nextID("token")
	token.CreatedAt = time.Now()
	stored := *token
	r.s.tokens[token.ID] = &stored
	return nil
}

func (r memTokenRepo) GetByToken(_ context.Context, purpose domain.TokenPurpose, value string) (*domain.AuthToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tokens {
		if t.Purpose == purpose && t.Token == value {
			out := *t
			return &out, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r memTokenRepo) MarkUsed(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[id]
	if !ok {
		return pgx.ErrNoRows
	}
	now := time.Now()
	t.UsedAt = &now
	return nil
}

func (r memTokenRepo) InvalidateForUser(_ context.Context, userID string, purpose domain.TokenPurpose) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	for _, t := range r.s.tokens {
		if t.UserID == userID && t.Purpose == purpose && t.UsedAt == nil {
			t.UsedAt = &now
		}
	}
	return nil
}

func (s *memStore) latestToken(userID string, purpose domain.TokenPurpose) *domain.AuthToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.UserID == userID && t.Purpose == purpose && t.UsedAt == nil {
			out := *t
			return &out
		}
	}
	return nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestLocker(client *redis.Client) lease.KeyedLocker {
	return lease.NewRedisKeyedLocker(client, "ticket-sync:ticket-lock", time.Second, 5*time.Second)
}
