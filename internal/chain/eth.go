package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// membaseABI covers the slice of the Membase contract this client uses.
const membaseABI = `[
  {"type":"function","name":"register","stateMutability":"nonpayable","inputs":[{"name":"_uuid","type":"string"}],"outputs":[]},
  {"type":"function","name":"buy","stateMutability":"nonpayable","inputs":[{"name":"_uuid","type":"string"},{"name":"_auuid","type":"string"}],"outputs":[]},
  {"type":"function","name":"getAgent","stateMutability":"view","inputs":[{"name":"_uuid","type":"string"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"getPermission","stateMutability":"view","inputs":[{"name":"_uuid","type":"string"},{"name":"_auuid","type":"string"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"createTask","stateMutability":"nonpayable","inputs":[{"name":"_uuid","type":"string"},{"name":"_price","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"joinTask","stateMutability":"nonpayable","inputs":[{"name":"_uuid","type":"string"},{"name":"_auuid","type":"string"}],"outputs":[]},
  {"type":"function","name":"finishTask","stateMutability":"nonpayable","inputs":[{"name":"_uuid","type":"string"},{"name":"_auuid","type":"string"}],"outputs":[]}
]`

// EthClient talks to the Membase contract over an Ethereum-compatible
// RPC endpoint (BSC testnet by default).
type EthClient struct {
	rpc      *ethclient.Client
	contract *bind.BoundContract
	signer   *Signer
	chainID  *big.Int
	log      zerolog.Logger
}

var _ Client = (*EthClient)(nil)

// Dial connects to endpoint and binds the contract at contractAddr.
func Dial(ctx context.Context, endpoint, contractAddr string, signer *Signer, log zerolog.Logger) (*EthClient, error) {
	rpc, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial chain %s: %w", endpoint, err)
	}
	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	parsed, err := abi.JSON(strings.NewReader(membaseABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	contract := bind.NewBoundContract(common.HexToAddress(contractAddr), parsed, rpc, rpc, rpc)

	return &EthClient{
		rpc:      rpc,
		contract: contract,
		signer:   signer,
		chainID:  chainID,
		log:      log.With().Str("component", "chain").Logger(),
	}, nil
}

// RegisterAgent implements Client.
func (c *EthClient) RegisterAgent(ctx context.Context, agentID string) error {
	owner, err := c.agentAddress(ctx, agentID)
	if err != nil {
		return err
	}
	if strings.EqualFold(owner.Hex(), c.signer.Address()) {
		return nil
	}
	if owner != (common.Address{}) {
		return fmt.Errorf("agent %s already registered by %s", agentID, owner.Hex())
	}
	return c.transact(ctx, "register", agentID)
}

// CreateTask implements Client.
func (c *EthClient) CreateTask(ctx context.Context, taskID string, price uint64) error {
	return c.transact(ctx, "createTask", taskID, new(big.Int).SetUint64(price))
}

// JoinTask implements Client.
func (c *EthClient) JoinTask(ctx context.Context, taskID, agentID string) error {
	return c.transact(ctx, "joinTask", taskID, agentID)
}

// FinishTask implements Client.
func (c *EthClient) FinishTask(ctx context.Context, taskID, agentID string) error {
	return c.transact(ctx, "finishTask", taskID, agentID)
}

// HasAuth implements Client. The task owner always has permission.
func (c *EthClient) HasAuth(ctx context.Context, taskID, agentID string) (bool, error) {
	owner, err := c.agentAddress(ctx, taskID)
	if err != nil {
		return false, err
	}
	if owner == (common.Address{}) {
		return false, fmt.Errorf("task %s is not registered", taskID)
	}
	if strings.EqualFold(owner.Hex(), c.signer.Address()) {
		return true, nil
	}

	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getPermission", taskID, agentID); err != nil {
		return false, fmt.Errorf("call getPermission: %w", err)
	}
	return out[0].(bool), nil
}

// BuyAuth purchases task permission for agentID when it does not
// already hold it. Participant processes call this before joining.
func (c *EthClient) BuyAuth(ctx context.Context, taskID, agentID string) error {
	ok, err := c.HasAuth(ctx, taskID, agentID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return c.transact(ctx, "buy", taskID, agentID)
}

// AgentAddress implements Client.
func (c *EthClient) AgentAddress(ctx context.Context, agentID string) (string, error) {
	addr, err := c.agentAddress(ctx, agentID)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

func (c *EthClient) agentAddress(ctx context.Context, agentID string) (common.Address, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getAgent", agentID); err != nil {
		return common.Address{}, fmt.Errorf("call getAgent: %w", err)
	}
	return out[0].(common.Address), nil
}

func (c *EthClient) transact(ctx context.Context, method string, args ...interface{}) error {
	opts, err := bind.NewKeyedTransactorWithChainID(c.signer.key, c.chainID)
	if err != nil {
		return fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := c.contract.Transact(opts, method, args...)
	if err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}
	receipt, err := bind.WaitMined(ctx, c.rpc, tx)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", method, err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return fmt.Errorf("%s reverted in tx %s", method, tx.Hash().Hex())
	}
	c.log.Debug().Str("method", method).Str("tx", tx.Hash().Hex()).Msg("transaction mined")
	return nil
}

// Close releases the RPC connection.
func (c *EthClient) Close() { c.rpc.Close() }
