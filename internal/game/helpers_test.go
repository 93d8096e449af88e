package game

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aaronzipp/moonhowl/internal/models"
	"github.com/aaronzipp/moonhowl/internal/transport"
)

// respondFunc scripts one participant's replies for a test.
type respondFunc func(msg models.Message) (models.Message, error)

type sentMessage struct {
	Recipient string
	Msg       models.Message
}

// fakeBus is an in-memory transport.Bus that records every send and
// answers from scripted responders. Unscripted recipients acknowledge
// with an empty response.
type fakeBus struct {
	mu         sync.Mutex
	handlers   map[string]transport.Handler
	responders map[string]respondFunc
	sent       []sentMessage
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		handlers:   make(map[string]transport.Handler),
		responders: make(map[string]respondFunc),
	}
}

func (b *fakeBus) respond(recipient string, fn respondFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responders[strings.ToLower(recipient)] = fn
}

func (b *fakeBus) Send(ctx context.Context, msg models.Message, recipient string) (models.Message, error) {
	b.mu.Lock()
	b.sent = append(b.sent, sentMessage{Recipient: recipient, Msg: msg})
	fn := b.responders[strings.ToLower(recipient)]
	b.mu.Unlock()

	if fn != nil {
		return fn(msg)
	}
	return reply(recipient, ""), nil
}

func (b *fakeBus) Register(identity string, h transport.Handler) error {
	key := strings.ToLower(identity)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, dup := b.handlers[key]; dup {
		return transport.ErrDuplicateIdentity
	}
	b.handlers[key] = h
	return nil
}

func (b *fakeBus) handler(identity string) transport.Handler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handlers[strings.ToLower(identity)]
}

// sentTo returns the messages delivered to recipient, in send order.
func (b *fakeBus) sentTo(recipient string) []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []models.Message
	for _, s := range b.sent {
		if strings.EqualFold(s.Recipient, recipient) {
			out = append(out, s.Msg)
		}
	}
	return out
}

// kindsSentTo returns just the kinds delivered to recipient.
func (b *fakeBus) kindsSentTo(recipient string) []models.Kind {
	var out []models.Kind
	for _, m := range b.sentTo(recipient) {
		out = append(out, m.Kind)
	}
	return out
}

func reply(source, content string) models.Message {
	return models.Message{Kind: models.KindResponse, Source: source, Content: content}
}

func vote(source, content string) models.Message {
	return models.Message{Kind: models.KindResponse, Source: source, Content: content}
}

func classicSlots() []SlotSpec {
	return []SlotSpec{
		{Role: models.RoleWolf, Count: 2},
		{Role: models.RoleVillager, Count: 2},
		{Role: models.RoleSeer, Count: 1},
		{Role: models.RoleWitch, Count: 1},
	}
}

// testNames fills the classic six-slot table. The names share no
// substrings, so free-text identity resolution stays unambiguous.
var testNames = []string{"alice", "bob", "carol", "dave", "erin", "frank"}

// buildRoster registers testNames into the classic six-slot table and
// returns the roster plus the identities grouped by assigned role.
func buildRoster(t *testing.T, seed int64) (*Roster, map[models.Role][]string) {
	t.Helper()
	r := NewRoster(classicSlots(), rand.New(rand.NewSource(seed)))
	byRole := make(map[models.Role][]string)
	for _, id := range testNames {
		role := r.Register(id)
		require.NotEmpty(t, role, "registration of %s must succeed", id)
		byRole[role] = append(byRole[role], id)
	}
	require.Zero(t, r.OpenSlots())
	return r, byRole
}

// firstAlive returns the first alive identity of role, or empty.
func firstAlive(r *Roster, role models.Role) string {
	alive := r.AliveOfRole(role)
	if len(alive) == 0 {
		return ""
	}
	return alive[0].Identity
}
