// Package chain owns the connection to the on-ledger MissionControl contract,
// the oracle signing identity, and the typed contract bindings.
//
// The oracle is the sole authorised writer for request state transitions:
// verifyEvent, approveAid, and confirmDelivery all require a signature from
// the configured key. A single Client instance is constructed at startup and
// passed into every component that talks to the ledger.
package chain

import (
	"errors"
	"fmt"
	"time"
)

// Errors in the taxonomy surfaced by this package.
var (
	// ErrNotConfigured means the signing key or contract address is absent.
	// Mutating operations degrade to no-ops upstream rather than failing the
	// process.
	ErrNotConfigured = errors.New("chain not configured: set ORACLE_PRIVATE_KEY and MISSION_CONTROL_ADDRESS")

	// ErrLedgerRead wraps transient RPC failures on point reads. Reads are
	// not retried here; the caller decides.
	ErrLedgerRead = errors.New("ledger read failed")

	// ErrNoTreasury means a payout was requested but no treasury contract
	// address is configured.
	ErrNoTreasury = errors.New("no treasury contract configured")

	// errReverted marks a mined-but-reverted transaction. For retry purposes
	// a revert is the same as a broadcast failure.
	errReverted = errors.New("transaction reverted")
)

// TxError is returned when the submitter has exhausted its retry budget.
// It carries the last underlying cause.
type TxError struct {
	Attempts int
	Err      error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("transaction failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// Config is the chain-facing configuration surface. Only PrivateKey and
// MissionControl are required for mutating operations; everything else has a
// working default.
type Config struct {
	RPCURL         string
	ChainID        int64
	PrivateKey     string // hex-encoded secp256k1 key, 0x prefix optional
	MissionControl string // MissionControl contract address
	Treasury       string // optional AidTreasury contract address
	GasLimit       uint64
	TxAttempts     uint
	RetryBaseDelay time.Duration
	ReceiptTimeout time.Duration
}

// Configured reports whether mutating calls are possible. Pure function of
// configuration; no I/O.
func (c Config) Configured() bool {
	return c.PrivateKey != "" && c.MissionControl != ""
}

// withDefaults fills zero-valued tuning knobs.
func (c Config) withDefaults() Config {
	if c.RPCURL == "" {
		c.RPCURL = "https://coston2-api.flare.network/ext/C/rpc"
	}
	if c.ChainID == 0 {
		c.ChainID = 114
	}
	if c.GasLimit == 0 {
		c.GasLimit = 500_000
	}
	if c.TxAttempts == 0 {
		c.TxAttempts = 3
	}
	if c.RetryBaseDelay == 0 {
		c.RetryBaseDelay = 2 * time.Second
	}
	if c.ReceiptTimeout == 0 {
		c.ReceiptTimeout = 60 * time.Second
	}
	return c
}
