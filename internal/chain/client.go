package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Backend is the narrow slice of the JSON-RPC surface this package needs.
// *ethclient.Client satisfies it; tests substitute a fake.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client is the single point of truth for "is the ledger reachable and are we
// authorised". It holds the signing key, the RPC backend, and the bound
// contract addresses. One instance is shared for the process lifetime.
type Client struct {
	cfg    Config
	logger *zap.Logger

	dialOnce sync.Once
	dialErr  error

	backend     Backend
	key         *ecdsa.PrivateKey
	from        common.Address
	mcAddr      common.Address
	trAddr      common.Address
	hasTreasury bool
	breaker     *gobreaker.CircuitBreaker
	submitter   *Submitter
}

// NewClient creates an undialed Client. Call Dial before using it; calling
// any operation on an undialed or unconfigured client returns
// ErrNotConfigured rather than panicking.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	return &Client{cfg: cfg.withDefaults(), logger: logger}
}

// Configured reports whether a signing key and the MissionControl address are
// present. Pure check; no I/O.
func (c *Client) Configured() bool {
	return c.cfg.Configured()
}

// Dial establishes the RPC connection and binds the contracts. It is
// idempotent: concurrent and repeated calls share one attempt and its result.
func (c *Client) Dial(ctx context.Context) error {
	c.dialOnce.Do(func() { c.dialErr = c.dial(ctx) })
	return c.dialErr
}

func (c *Client) dial(ctx context.Context) error {
	if !c.cfg.Configured() {
		return ErrNotConfigured
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(c.cfg.PrivateKey, "0x"))
	if err != nil {
		return fmt.Errorf("%w: bad oracle key: %v", ErrNotConfigured, err)
	}
	if !common.IsHexAddress(c.cfg.MissionControl) {
		return fmt.Errorf("%w: bad MissionControl address %q", ErrNotConfigured, c.cfg.MissionControl)
	}

	ec, err := ethclient.DialContext(ctx, c.cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.RPCURL, err)
	}

	c.key = key
	c.from = crypto.PubkeyToAddress(key.PublicKey)
	c.mcAddr = common.HexToAddress(c.cfg.MissionControl)
	if c.cfg.Treasury != "" {
		c.trAddr = common.HexToAddress(c.cfg.Treasury)
		c.hasTreasury = true
	}
	c.bind(ec)

	c.logger.Info("chain connected",
		zap.String("oracle", c.from.Hex()),
		zap.String("mission_control", c.mcAddr.Hex()),
		zap.Int64("chain_id", c.cfg.ChainID),
	)
	return nil
}

// bind attaches a backend and builds the submitter and read breaker.
// Split from dial so tests can attach a fake backend.
func (c *Client) bind(b Backend) {
	c.backend = b
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "ledger-read",
		Interval: 30 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	c.submitter = NewSubmitter(b, c.key, big.NewInt(c.cfg.ChainID), c.from, c.cfg, c.logger)
}

// OracleAddress returns the signing identity's address. Zero until dialed.
func (c *Client) OracleAddress() common.Address { return c.from }

// HasTreasury reports whether an AidTreasury contract is bound.
func (c *Client) HasTreasury() bool { return c.hasTreasury }

// Submitter exposes the transaction submitter for metric wiring.
func (c *Client) Submitter() *Submitter { return c.submitter }

// ready guards operations that need a dialed connection.
func (c *Client) ready() error {
	if c.backend == nil {
		return ErrNotConfigured
	}
	return nil
}

// VerifyEvent submits MissionControl.verifyEvent with an attestation proof
// and returns the confirmed transaction hash.
func (c *Client) VerifyEvent(ctx context.Context, requestID uint64, path [][32]byte, root, leaf [32]byte) (common.Hash, error) {
	if err := c.ready(); err != nil {
		return common.Hash{}, err
	}
	rcpt, err := c.submitter.Submit(ctx, c.mcAddr, missionControlABI, "verifyEvent",
		new(big.Int).SetUint64(requestID), path, root, leaf)
	if err != nil {
		return common.Hash{}, err
	}
	return rcpt.TxHash, nil
}

// ApproveAid submits MissionControl.approveAid. No proof is required for this
// transition.
func (c *Client) ApproveAid(ctx context.Context, requestID uint64, provider common.Address, costUSD uint64) (common.Hash, error) {
	if err := c.ready(); err != nil {
		return common.Hash{}, err
	}
	rcpt, err := c.submitter.Submit(ctx, c.mcAddr, missionControlABI, "approveAid",
		new(big.Int).SetUint64(requestID), provider, new(big.Int).SetUint64(costUSD))
	if err != nil {
		return common.Hash{}, err
	}
	return rcpt.TxHash, nil
}

// ConfirmDelivery submits MissionControl.confirmDelivery. The contract pays
// the provider out of the treasury atomically inside this transaction; there
// is no separate payout call in the delivery flow.
func (c *Client) ConfirmDelivery(ctx context.Context, requestID uint64, path [][32]byte, root, leaf [32]byte) (common.Hash, error) {
	if err := c.ready(); err != nil {
		return common.Hash{}, err
	}
	rcpt, err := c.submitter.Submit(ctx, c.mcAddr, missionControlABI, "confirmDelivery",
		new(big.Int).SetUint64(requestID), path, root, leaf)
	if err != nil {
		return common.Hash{}, err
	}
	return rcpt.TxHash, nil
}

// ProcessPayout submits AidTreasury.processPayout directly. Operator use
// only: a request whose delivery confirmation already paid out will revert a
// second payout on-contract.
func (c *Client) ProcessPayout(ctx context.Context, provider common.Address, usdAmount uint64) (common.Hash, error) {
	if err := c.ready(); err != nil {
		return common.Hash{}, err
	}
	if !c.hasTreasury {
		return common.Hash{}, ErrNoTreasury
	}
	rcpt, err := c.submitter.Submit(ctx, c.trAddr, aidTreasuryABI, "processPayout",
		provider, new(big.Int).SetUint64(usdAmount))
	if err != nil {
		return common.Hash{}, err
	}
	return rcpt.TxHash, nil
}
