// Package auth gates who may join a session. Credentials are a
// timestamp plus a personal-sign signature over that timestamp; the
// signer must be the wallet registered on chain for the agent, and the
// agent must hold on-chain permission for the session. Every failure
// here is fatal to the attempted join.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aaronzipp/moonhowl/internal/chain"
)

// TokenTTL is how long a signed timestamp stays valid.
const TokenTTL = 300 * time.Second

var (
	// ErrUnauthorized indicates a missing signature, timestamp, or agent id.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidTimestamp indicates the timestamp is not parseable.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	// ErrTokenExpired indicates the timestamp is older than TokenTTL.
	ErrTokenExpired = errors.New("token expired")
	// ErrNotAuthorized indicates the agent lacks on-chain permission for
	// the session.
	ErrNotAuthorized = errors.New("not authorized on chain")
	// ErrInvalidSignature indicates the recovered signer does not match
	// the agent's registered address.
	ErrInvalidSignature = errors.New("invalid signature")
)

// ChainReader is the slice of the chain client the verifier needs.
type ChainReader interface {
	HasAuth(ctx context.Context, taskID, agentID string) (bool, error)
	AgentAddress(ctx context.Context, agentID string) (string, error)
}

// Verifier checks join credentials against the chain.
type Verifier struct {
	chain ChainReader
	ttl   time.Duration
	now   func() time.Time
	log   zerolog.Logger
}

// NewVerifier builds a verifier with the default token TTL.
func NewVerifier(reader ChainReader, log zerolog.Logger) *Verifier {
	return &Verifier{
		chain: reader,
		ttl:   TokenTTL,
		now:   time.Now,
		log:   log.With().Str("component", "auth").Logger(),
	}
}

// Verify checks one join attempt. It returns one of the package's
// sentinel errors (possibly wrapped) on rejection.
func (v *Verifier) Verify(ctx context.Context, sessionID, agentID, timestamp, signature string) error {
	if signature == "" || timestamp == "" || agentID == "" {
		return ErrUnauthorized
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}
	if v.now().Unix()-ts > int64(v.ttl.Seconds()) {
		v.log.Warn().Str("agent", agentID).Msg("expired token")
		return ErrTokenExpired
	}

	ok, err := v.chain.HasAuth(ctx, sessionID, agentID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotAuthorized, err)
	}
	if !ok {
		v.log.Warn().Str("agent", agentID).Msg("no permission on chain")
		return ErrNotAuthorized
	}

	address, err := v.chain.AgentAddress(ctx, agentID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !chain.ValidSignature(timestamp, signature, address) {
		v.log.Warn().Str("agent", agentID).Msg("signature does not recover to registered address")
		return ErrInvalidSignature
	}
	return nil
}

// MessageSigner signs the credential message.
type MessageSigner interface {
	SignMessage(message string) (string, error)
}

// NewToken signs the timestamp message so a participant can present it
// when joining.
func NewToken(signer MessageSigner, timestamp int64) (string, error) {
	return signer.SignMessage(strconv.FormatInt(timestamp, 10))
}
