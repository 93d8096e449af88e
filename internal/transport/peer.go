package transport

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aaronzipp/moonhowl/internal/models"
)

// JoinCredentials are the signed values a peer presents when dialing a
// hub that verifies joins.
type JoinCredentials struct {
	Timestamp string
	Signature string
}

// Peer is the participant side of the hub protocol. It serves incoming
// requests with its handler and can issue its own requests, such as the
// initial registration.
type Peer struct {
	identity string
	conn     *websocket.Conn
	handler  Handler
	timeout  time.Duration
	log      zerolog.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	pending map[string]chan models.Message
}

// DialPeer connects identity to the hub at rawURL. creds may be zero
// when the hub does not verify joins.
func DialPeer(ctx context.Context, rawURL, identity string, creds JoinCredentials, handler Handler, timeout time.Duration, log zerolog.Logger) (*Peer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("agent_id", identity)
	if creds.Signature != "" {
		q.Set("timestamp", creds.Timestamp)
		q.Set("signature", creds.Signature)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	p := &Peer{
		identity: identity,
		conn:     conn,
		handler:  handler,
		timeout:  timeout,
		log:      log.With().Str("component", "peer").Str("agent", identity).Logger(),
		pending:  make(map[string]chan models.Message),
	}
	go p.readPump()
	return p, nil
}

func (p *Peer) readPump() {
	for {
		var env envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			p.log.Debug().Err(err).Msg("connection closed")
			return
		}

		p.mu.Lock()
		ch, isReply := p.pending[env.ID]
		if isReply {
			delete(p.pending, env.ID)
		}
		p.mu.Unlock()

		if isReply {
			ch <- models.Message{Kind: env.Kind, Source: env.Source, Content: env.Content}
			continue
		}
		go p.serve(env)
	}
}

func (p *Peer) serve(env envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	msg := models.Message{Kind: env.Kind, Source: env.Source, Content: env.Content}
	res, err := p.handler(ctx, msg)
	if err != nil {
		p.log.Warn().Err(err).Msg("handler failed")
		return
	}
	if res.Source == "" {
		res.Source = p.identity
	}
	reply := envelope{ID: env.ID, Kind: res.Kind, Source: res.Source, Content: res.Content}
	if err := p.write(reply); err != nil {
		p.log.Warn().Err(err).Msg("reply write failed")
	}
}

// Request sends msg to another identity through the hub and waits for
// the reply. Used for the initial registration round trip.
func (p *Peer) Request(ctx context.Context, msg models.Message, to string) (models.Message, error) {
	id := uuid.NewString()
	ch := make(chan models.Message, 1)
	p.mu.Lock()
	p.pending[id] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}()

	if msg.Source == "" {
		msg.Source = p.identity
	}
	env := envelope{ID: id, To: to, Kind: msg.Kind, Source: msg.Source, Content: msg.Content}
	if err := p.write(env); err != nil {
		return models.Message{}, &DeliveryError{Recipient: to, Err: err}
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res, nil
	case <-ctx.Done():
		return models.Message{}, &DeliveryError{Recipient: to, Err: ctx.Err()}
	case <-timer.C:
		return models.Message{}, &DeliveryError{Recipient: to, Err: ErrResponseTimeout}
	}
}

func (p *Peer) write(env envelope) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteJSON(env)
}

// Close tears down the connection.
func (p *Peer) Close() error { return p.conn.Close() }
