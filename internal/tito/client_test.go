package tito

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
)

func testConfig(base string) config.TitoConfig {
	return config.TitoConfig{
		APIBase:     base,
		APIKey:      "secret-key",
		Account:     "acme",
		Event:       "conf-2025",
		MaxAttempts: 3,
		RetryDelay:  time.Millisecond,
	}
}

func TestFetchTicketsQueryShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/acme/conf-2025/tickets", r.URL.Path)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "created_at", q.Get("search[sort]"))
		assert.Equal(t, "asc", q.Get("search[direction]"))
		assert.Equal(t, "2", q.Get("page[number]"))
		assert.Equal(t, "5", q.Get("page[size]"))
		assert.Equal(t, "short", q.Get("view"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tickets":[{"reference":"ABCD-1","release_id":42,"release_title":"GA","email":"a@example.com","name":"Ann","state":"complete"}],"meta":{"next_page":3,"total_pages":4}}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), srv.Client(), zap.NewNop())
	page, err := client.FetchTickets(context.Background(), TicketQuery{
		Sort: "created_at", Direction: "asc", Page: 2, PageSize: 5, View: "short",
	})
	require.NoError(t, err)
	require.Len(t, page.Tickets, 1)
	assert.Equal(t, "ABCD-1", page.Tickets[0].Reference)
	assert.Equal(t, "42", page.Tickets[0].ReleaseID.String())
	assert.Equal(t, "complete", page.Tickets[0].EffectiveState())
	assert.Equal(t, 3, page.NextPageNumber())
}

func TestNextPageFallsBackToTotalPages(t *testing.T) {
	page := &TicketPage{Meta: Meta{TotalPages: 4}}
	assert.Equal(t, 5, page.NextPageNumber())
}

func TestFetchTicketsRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"tickets":[],"meta":{"total_pages":0}}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), srv.Client(), zap.NewNop())
	page, err := client.FetchTickets(context.Background(), TicketQuery{Page: 1})
	require.NoError(t, err)
	assert.Empty(t, page.Tickets)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchTicketsGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), srv.Client(), zap.NewNop())
	_, err := client.FetchTickets(context.Background(), TicketQuery{Page: 1})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientErrorIsNotFoundWithoutRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), srv.Client(), zap.NewNop())
	_, err := client.SearchAttendeeTickets(context.Background(), "a@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSearchAttendeeTickets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a+b@example.com", r.URL.Query().Get("search[q]"))
		_, _ = w.Write([]byte(`{"tickets":[{"reference":"X-1","release_id":"7","release_title":"VIP","email":"a+b@example.com","name":"A","state_name":"complete"}],"meta":{}}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), srv.Client(), zap.NewNop())
	tickets, err := client.SearchAttendeeTickets(context.Background(), "a+b@example.com")
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "7", tickets[0].ReleaseID.String())
}

func TestMissingConfig(t *testing.T) {
	client := NewClient(config.TitoConfig{APIBase: "http://x"}, nil, zap.NewNop())
	_, err := client.FetchTickets(context.Background(), TicketQuery{})
	require.ErrorIs(t, err, ErrMissingConfig)
	assert.Contains(t, err.Error(), "TITO_API_KEY")
}
