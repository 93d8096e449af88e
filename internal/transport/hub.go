package transport

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aaronzipp/moonhowl/internal/models"
)

// JoinAuthorizer gates who may connect to a session. A nil authorizer
// on the hub disables the gate (local play and tests).
type JoinAuthorizer interface {
	Verify(ctx context.Context, sessionID, agentID, timestamp, signature string) error
}

// envelope is the hub's wire frame. ID correlates a request with its
// reply; To names the addressee of an unsolicited request.
type envelope struct {
	ID      string      `json:"id"`
	To      string      `json:"to,omitempty"`
	Kind    models.Kind `json:"type"`
	Source  string      `json:"source"`
	Content string      `json:"content"`
}

type wsClient struct {
	identity string
	conn     *websocket.Conn
	writeMu  sync.Mutex
}

func (c *wsClient) write(env envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

// Hub is the moderator-side transport: participants dial its join
// endpoint over websocket, the moderator sends them requests and awaits
// correlated replies. One hub hosts one session.
type Hub struct {
	sessionID string
	auth      JoinAuthorizer
	timeout   time.Duration
	upgrader  websocket.Upgrader
	log       zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*wsClient
	local   map[string]Handler
	pending map[string]chan models.Message
	closed  bool
}

// NewHub creates a hub for sessionID. Every Send waits at most timeout
// for the recipient's reply.
func NewHub(sessionID string, auth JoinAuthorizer, timeout time.Duration, log zerolog.Logger) *Hub {
	return &Hub{
		sessionID: sessionID,
		auth:      auth,
		timeout:   timeout,
		log:       log.With().Str("component", "hub").Str("session", sessionID).Logger(),
		clients:   make(map[string]*wsClient),
		local:     make(map[string]Handler),
		pending:   make(map[string]chan models.Message),
	}
}

// Register attaches a local handler, typically the moderator's own.
func (h *Hub) Register(identity string, handler Handler) error {
	key := strings.ToLower(identity)
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, dup := h.local[key]; dup {
		return ErrDuplicateIdentity
	}
	h.local[key] = handler
	return nil
}

// ServeHTTP handles the join endpoint: it verifies the caller's
// credentials, upgrades the connection, and starts reading frames.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	identity := strings.TrimSpace(q.Get("agent_id"))
	if identity == "" {
		http.Error(w, "agent_id is required", http.StatusBadRequest)
		return
	}

	if h.auth != nil {
		err := h.auth.Verify(r.Context(), h.sessionID, identity, q.Get("timestamp"), q.Get("signature"))
		if err != nil {
			h.log.Warn().Str("agent", identity).Err(err).Msg("join rejected")
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Str("agent", identity).Err(err).Msg("upgrade failed")
		return
	}

	c := &wsClient{identity: identity, conn: conn}
	key := strings.ToLower(identity)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	if _, dup := h.clients[key]; dup {
		h.mu.Unlock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "identity already connected"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}
	h.clients[key] = c
	h.mu.Unlock()

	h.log.Info().Str("agent", identity).Msg("participant connected")
	go h.readPump(c)
}

func (h *Hub) readPump(c *wsClient) {
	defer h.drop(c)
	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			h.log.Debug().Str("agent", c.identity).Err(err).Msg("participant disconnected")
			return
		}
		msg := models.Message{Kind: env.Kind, Source: env.Source, Content: env.Content}
		if msg.Source == "" {
			msg.Source = c.identity
		}

		h.mu.Lock()
		ch, isReply := h.pending[env.ID]
		if isReply {
			delete(h.pending, env.ID)
		}
		h.mu.Unlock()

		if isReply {
			ch <- msg
			continue
		}
		go h.dispatch(c, env, msg)
	}
}

// dispatch routes an unsolicited request (e.g. a registration) to the
// addressed local handler and writes the reply back on the same frame id.
func (h *Hub) dispatch(c *wsClient, env envelope, msg models.Message) {
	h.mu.RLock()
	handler := h.local[strings.ToLower(env.To)]
	h.mu.RUnlock()
	if handler == nil {
		h.log.Warn().Str("agent", c.identity).Str("to", env.To).Msg("request for unknown local identity dropped")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	res, err := handler(ctx, msg)
	if err != nil {
		h.log.Warn().Str("agent", c.identity).Err(err).Msg("local handler failed")
		return
	}
	reply := envelope{ID: env.ID, Kind: res.Kind, Source: res.Source, Content: res.Content}
	if err := c.write(reply); err != nil {
		h.log.Warn().Str("agent", c.identity).Err(err).Msg("reply write failed")
	}
}

// Send delivers msg to recipient and waits for the correlated reply.
func (h *Hub) Send(ctx context.Context, msg models.Message, recipient string) (models.Message, error) {
	h.mu.RLock()
	c := h.clients[strings.ToLower(recipient)]
	h.mu.RUnlock()
	if c == nil {
		return models.Message{}, &DeliveryError{Recipient: recipient, Err: ErrUnknownRecipient}
	}

	id := uuid.NewString()
	ch := make(chan models.Message, 1)
	h.mu.Lock()
	h.pending[id] = ch
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, id)
		h.mu.Unlock()
	}()

	env := envelope{ID: id, To: recipient, Kind: msg.Kind, Source: msg.Source, Content: msg.Content}
	if err := c.write(env); err != nil {
		return models.Message{}, &DeliveryError{Recipient: recipient, Err: err}
	}

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return models.Message{}, &DeliveryError{Recipient: recipient, Err: ctx.Err()}
	case <-timer.C:
		return models.Message{}, &DeliveryError{Recipient: recipient, Err: ErrResponseTimeout}
	}
}

func (h *Hub) drop(c *wsClient) {
	key := strings.ToLower(c.identity)
	h.mu.Lock()
	if h.clients[key] == c {
		delete(h.clients, key)
	}
	h.mu.Unlock()
	c.conn.Close()
}

// ClientCount reports how many participants are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every participant and rejects future joins.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*wsClient)
	h.mu.Unlock()

	for _, c := range clients {
		c.conn.Close()
	}
}
