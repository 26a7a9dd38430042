package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var seen []string

	d.Subscribe(EventTicketVoided, func(ctx context.Context, e Event) error {
		seen = append(seen, "first")
		return errors.New("mail down")
	})
	d.Subscribe(EventTicketVoided, func(ctx context.Context, e Event) error {
		seen = append(seen, "second:"+e.ReferenceID)
		return nil
	})
	d.Subscribe(EventTicketCreated, func(ctx context.Context, e Event) error {
		seen = append(seen, "wrong")
		return nil
	})

	err := d.Publish(context.Background(), NewEvent(EventTicketVoided, "ABCD-1", "", TicketLifecyclePayload{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mail down")
	assert.Equal(t, []string{"first", "second:ABCD-1"}, seen)
}

func TestPublishWithoutListeners(t *testing.T) {
	d := NewInMemoryDispatcher()
	e := NewEvent(EventUserProvisioned, "", "u-1", UserProvisionedPayload{Email: "a@example.com"})
	assert.NotEmpty(t, e.ID)
	assert.NoError(t, d.Publish(context.Background(), e))
}
