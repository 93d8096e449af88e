package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronzipp/moonhowl/internal/models"
)

func TestLocalBusRoundTrip(t *testing.T) {
	bus := NewLocalBus(time.Second)
	require.NoError(t, bus.Register("Echo", func(_ context.Context, msg models.Message) (models.Message, error) {
		return models.Message{Kind: models.KindResponse, Source: "echo", Content: "heard: " + msg.Content}, nil
	}))

	// Recipient lookup is case-insensitive.
	res, err := bus.Send(context.Background(),
		models.Message{Kind: models.KindSystemNotice, Source: "moderator", Content: "hello"}, "echo")
	require.NoError(t, err)
	assert.Equal(t, "heard: hello", res.Content)
	assert.Equal(t, models.KindResponse, res.Kind)
}

func TestLocalBusRejectsDuplicateIdentity(t *testing.T) {
	bus := NewLocalBus(time.Second)
	h := func(_ context.Context, msg models.Message) (models.Message, error) { return msg, nil }

	require.NoError(t, bus.Register("alice", h))
	assert.ErrorIs(t, bus.Register("ALICE", h), ErrDuplicateIdentity)
}

func TestLocalBusUnknownRecipient(t *testing.T) {
	bus := NewLocalBus(time.Second)

	_, err := bus.Send(context.Background(), models.Message{Kind: models.KindSystemNotice}, "ghost")

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "ghost", de.Recipient)
	assert.ErrorIs(t, err, ErrUnknownRecipient)
}

func TestLocalBusHandlerErrorBecomesDeliveryError(t *testing.T) {
	bus := NewLocalBus(time.Second)
	boom := errors.New("boom")
	require.NoError(t, bus.Register("flaky", func(context.Context, models.Message) (models.Message, error) {
		return models.Message{}, boom
	}))

	_, err := bus.Send(context.Background(), models.Message{Kind: models.KindSystemNotice}, "flaky")

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, boom)
}

func TestLocalBusSlowHandlerTimesOut(t *testing.T) {
	bus := NewLocalBus(20 * time.Millisecond)
	require.NoError(t, bus.Register("sleepy", func(ctx context.Context, msg models.Message) (models.Message, error) {
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
		}
		return msg, nil
	}))

	start := time.Now()
	_, err := bus.Send(context.Background(), models.Message{Kind: models.KindSystemNotice}, "sleepy")

	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "send must not wait for the handler")
}
