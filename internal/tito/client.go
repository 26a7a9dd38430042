package tito

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
)

var (
	// ErrMissingConfig means one of base url, api key, account or event is unset.
	ErrMissingConfig = errors.New("tito: missing api configuration")
	// ErrNotFound is returned for a non-retryable, non-2xx response.
	ErrNotFound = errors.New("tito: resource not found")
)

//go:generate mockgen -destination=mock/source_mock.go -package=mock_tito github.com/spec-kit/ticket-sync/internal/tito Source

// Source is the remote ticket catalogue.
type Source interface {
	FetchTickets(ctx context.Context, query TicketQuery) (*TicketPage, error)
	SearchAttendeeTickets(ctx context.Context, email string) ([]Ticket, error)
}

// StatusError reports a retryable upstream status after retries ran out.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tito: upstream returned %d", e.StatusCode)
}

// Client talks to the Tito admin API.
type Client struct {
	cfg        config.TitoConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg config.TitoConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, httpClient: httpClient, logger: logger.Named("tito")}
}

// Validate checks the required configuration.
func (c *Client) Validate() error {
	var missing []string
	if strings.TrimSpace(c.cfg.APIBase) == "" {
		missing = append(missing, "TITO_API_BASE")
	}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		missing = append(missing, "TITO_API_KEY")
	}
	if strings.TrimSpace(c.cfg.Account) == "" {
		missing = append(missing, "TITO_ACCOUNT")
	}
	if strings.TrimSpace(c.cfg.Event) == "" {
		missing = append(missing, "TITO_EVENT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

// FetchTickets returns one page of the event's tickets.
func (c *Client) FetchTickets(ctx context.Context, query TicketQuery) (*TicketPage, error) {
	params := url.Values{}
	if query.Sort != "" {
		params.Set("search[sort]", query.Sort)
	}
	if query.Direction != "" {
		params.Set("search[direction]", query.Direction)
	}
	if query.Page > 0 {
		params.Set("page[number]", strconv.Itoa(query.Page))
	}
	if query.PageSize > 0 {
		params.Set("page[size]", strconv.Itoa(query.PageSize))
	}
	if query.View != "" {
		params.Set("view", query.View)
	}

	var page TicketPage
	if err := c.get(ctx, params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SearchAttendeeTickets returns the tickets matching an attendee email.
func (c *Client) SearchAttendeeTickets(ctx context.Context, email string) ([]Ticket, error) {
	params := url.Values{}
	params.Set("search[q]", email)

	var page TicketPage
	if err := c.get(ctx, params, &page); err != nil {
		return nil, err
	}
	return page.Tickets, nil
}

func (c *Client) ticketsURL(params url.Values) string {
	base := strings.TrimRight(c.cfg.APIBase, "/")
	endpoint := fmt.Sprintf("%s/%s/%s/tickets", base, url.PathEscape(c.cfg.Account), url.PathEscape(c.cfg.Event))
	if len(params) == 0 {
		return endpoint
	}
	return endpoint + "?" + params.Encode()
}

func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	if err := c.Validate(); err != nil {
		return err
	}
	endpoint := c.ticketsURL(params)

	var body []byte
	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("request failed", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			c.logger.Warn("retryable status", zap.Int("attempt", attempt), zap.Int("status", resp.StatusCode))
			return &StatusError{StatusCode: resp.StatusCode}
		default:
			return backoff.Permanent(fmt.Errorf("%w: status %d", ErrNotFound, resp.StatusCode))
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay()), uint64(c.maxAttempts()-1)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("tito: decode response: %w", err)
	}
	return nil
}

func (c *Client) retryDelay() time.Duration {
	if c.cfg.RetryDelay <= 0 {
		return time.Second
	}
	return c.cfg.RetryDelay
}

func (c *Client) maxAttempts() int {
	if c.cfg.MaxAttempts < 1 {
		return 1
	}
	return c.cfg.MaxAttempts
}
