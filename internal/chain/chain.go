// Package chain is the on-chain identity collaborator: agent identities
// map to wallet addresses through the Membase contract, sessions are
// tasks agents must hold permission for, and credentials are
// personal-sign signatures over a timestamp message.
package chain

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
)

// Client is what the moderator needs from the chain. Implementations
// are constructed explicitly and passed in; there is no package-level
// singleton.
type Client interface {
	// RegisterAgent binds agentID to this client's wallet. Registering
	// an identity the wallet already owns is a no-op.
	RegisterAgent(ctx context.Context, agentID string) error
	// CreateTask opens a session task with the given price.
	CreateTask(ctx context.Context, taskID string, price uint64) error
	// JoinTask grants agentID participation in the task.
	JoinTask(ctx context.Context, taskID, agentID string) error
	// FinishTask settles the task in favor of agentID.
	FinishTask(ctx context.Context, taskID, agentID string) error
	// HasAuth reports whether agentID holds permission for the task.
	HasAuth(ctx context.Context, taskID, agentID string) (bool, error)
	// AgentAddress resolves agentID to its wallet address.
	AgentAddress(ctx context.Context, agentID string) (string, error)
}

// Signer signs personal-sign messages with a wallet key.
type Signer struct {
	key *ecdsa.PrivateKey
}

// NewSigner parses a hex-encoded private key, with or without the 0x
// prefix.
func NewSigner(hexKey string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Signer{key: key}, nil
}

// Address returns the wallet address for the key.
func (s *Signer) Address() string {
	return crypto.PubkeyToAddress(s.key.PublicKey).Hex()
}

// SignMessage produces a hex-encoded personal-sign signature over
// message.
func (s *Signer) SignMessage(message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), s.key)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	// Ethereum wallets publish V as 27/28.
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// ValidSignature reports whether signature over message recovers to
// address. Malformed input is simply invalid, never an error.
func ValidSignature(message, signature, address string) bool {
	raw, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(raw) != crypto.SignatureLength {
		return false
	}
	sig := make([]byte, len(raw))
	copy(sig, raw)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return false
	}
	return strings.EqualFold(crypto.PubkeyToAddress(*pub).Hex(), address)
}
