package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aaronzipp/moonhowl/internal/models"
)

// LocalBus routes messages between handlers registered in the same
// process. It mirrors the remote hub's contract so the engine and its
// tests run without a network.
type LocalBus struct {
	timeout time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewLocalBus creates a bus whose sends give each handler at most
// timeout to answer.
func NewLocalBus(timeout time.Duration) *LocalBus {
	return &LocalBus{
		timeout:  timeout,
		handlers: make(map[string]Handler),
	}
}

// Register attaches a handler for identity. Identities are
// case-insensitive and unique.
func (b *LocalBus) Register(identity string, h Handler) error {
	key := strings.ToLower(identity)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.handlers[key]; dup {
		return ErrDuplicateIdentity
	}
	b.handlers[key] = h
	return nil
}

// Send delivers msg to recipient's handler and waits for the reply.
func (b *LocalBus) Send(ctx context.Context, msg models.Message, recipient string) (models.Message, error) {
	b.mu.RLock()
	h := b.handlers[strings.ToLower(recipient)]
	b.mu.RUnlock()
	if h == nil {
		return models.Message{}, &DeliveryError{Recipient: recipient, Err: ErrUnknownRecipient}
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	type reply struct {
		msg models.Message
		err error
	}
	done := make(chan reply, 1)
	go func() {
		res, err := h(ctx, msg)
		done <- reply{msg: res, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return models.Message{}, &DeliveryError{Recipient: recipient, Err: r.err}
		}
		return r.msg, nil
	case <-ctx.Done():
		return models.Message{}, &DeliveryError{Recipient: recipient, Err: ctx.Err()}
	}
}
