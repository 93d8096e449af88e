// Package transport moves messages between the moderator and named
// participants. A failed round trip to one recipient is reported as a
// *DeliveryError and never aborts the caller's round.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/aaronzipp/moonhowl/internal/models"
)

// ErrUnknownRecipient indicates no participant with that identity is
// reachable right now.
var ErrUnknownRecipient = errors.New("unknown recipient")

// ErrDuplicateIdentity indicates the identity is already registered.
var ErrDuplicateIdentity = errors.New("identity already registered")

// ErrResponseTimeout indicates the recipient did not answer in time.
var ErrResponseTimeout = errors.New("response timed out")

// DeliveryError reports a failed round trip to a single recipient.
// Callers treat it as a skip, not a fatal error: the recipient is simply
// excluded from the round's quorum.
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Handler consumes one request and produces the reply.
type Handler func(ctx context.Context, msg models.Message) (models.Message, error)

// Messenger performs one request/response round trip with a named
// participant.
type Messenger interface {
	Send(ctx context.Context, msg models.Message, recipient string) (models.Message, error)
}

// Bus is a Messenger that can also host handlers for local identities,
// such as the moderator's own registration handler.
type Bus interface {
	Messenger
	Register(identity string, h Handler) error
}
