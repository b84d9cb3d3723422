package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// gasPriceNum/gasPriceDen overprice the suggested gas price by 1.2x to bias
// toward inclusion.
const (
	gasPriceNum = 120
	gasPriceDen = 100
)

// receiptPollInterval is how often the submitter polls for a receipt while
// waiting for confirmation.
const receiptPollInterval = 2 * time.Second

// MetricsRecorder is an optional callback for recording submission outcomes.
type MetricsRecorder func(success bool)

// Submitter builds, signs, broadcasts, and confirms single ledger-mutating
// calls with retry and backoff.
//
// The nonce counter behind the one signing key is the only contended
// resource: a mutex serialises the nonce-fetch-and-broadcast sequence so
// concurrent submissions for different requests cannot race on the same
// nonce. The receipt wait happens outside the lock.
//
// Idempotency is NOT provided here. Retried attempts are not cancelled; a
// prior broadcast may still land, in which case the replacement (same
// re-fetched pending nonce) or the ledger's own status checks resolve the
// duplicate. Callers must not invoke Submit twice for the same logical
// transition.
type Submitter struct {
	backend        Backend
	key            *ecdsa.PrivateKey
	chainID        *big.Int
	from           common.Address
	gasLimit       uint64
	attempts       uint
	baseDelay      time.Duration
	receiptTimeout time.Duration

	mu        sync.Mutex
	onMetrics MetricsRecorder
	logger    *zap.Logger
}

// NewSubmitter creates a Submitter for the given signing identity.
func NewSubmitter(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int, from common.Address, cfg Config, logger *zap.Logger) *Submitter {
	return &Submitter{
		backend:        backend,
		key:            key,
		chainID:        chainID,
		from:           from,
		gasLimit:       cfg.GasLimit,
		attempts:       cfg.TxAttempts,
		baseDelay:      cfg.RetryBaseDelay,
		receiptTimeout: cfg.ReceiptTimeout,
		logger:         logger,
	}
}

// SetMetricsRecorder configures the outcome callback.
func (s *Submitter) SetMetricsRecorder(fn MetricsRecorder) {
	s.onMetrics = fn
}

// Submit executes one ledger-mutating contract call and blocks until it is
// confirmed. Each attempt re-fetches the pending-inclusive nonce and the
// current gas price: a stale nonce reused after a competing broadcast landed
// is a classic corruption source. A mined-but-reverted receipt counts as a
// failed attempt. Attempts are spaced by exponential backoff; exhausting the
// budget returns a *TxError carrying the last cause.
func (s *Submitter) Submit(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...any) (*types.Receipt, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	var (
		receipt *types.Receipt
		lastErr error
		attempt int
	)

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.baseDelay),
		retry.DelayType(retry.BackOffDelay),
	)

	retryErr := r.Do(func() error {
		attempt++
		rcpt, err := s.attemptOnce(ctx, to, data)
		if err != nil {
			lastErr = err
			s.logger.Warn("submit attempt failed",
				zap.String("method", method),
				zap.Int("attempt", attempt),
				zap.Uint("max_attempts", s.attempts),
				zap.Error(err),
			)
			return err
		}
		receipt = rcpt
		return nil
	})

	if retryErr != nil {
		if lastErr == nil {
			// Context cancelled before any attempt ran.
			lastErr = retryErr
		}
		if s.onMetrics != nil {
			s.onMetrics(false)
		}
		return nil, &TxError{Attempts: attempt, Err: lastErr}
	}

	if s.onMetrics != nil {
		s.onMetrics(true)
	}
	s.logger.Info("transaction confirmed",
		zap.String("method", method),
		zap.String("tx", receipt.TxHash.Hex()),
		zap.Uint64("gas_used", receipt.GasUsed),
	)
	return receipt, nil
}

// attemptOnce performs one full build/sign/broadcast/confirm cycle.
func (s *Submitter) attemptOnce(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	signed, err := s.broadcast(ctx, to, data)
	if err != nil {
		return nil, err
	}

	receipt, err := s.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s", errReverted, signed.Hash().Hex())
	}
	return receipt, nil
}

// broadcast holds the nonce lock from nonce fetch through SendTransaction.
func (s *Submitter) broadcast(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch gas price: %w", err)
	}
	gasPrice = new(big.Int).Div(new(big.Int).Mul(gasPrice, big.NewInt(gasPriceNum)), big.NewInt(gasPriceDen))

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      s.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("broadcast: %w", err)
	}
	return signed, nil
}

// waitMined polls for the receipt until it appears or the bounded wait
// elapses.
func (s *Submitter) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.backend.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			s.logger.Debug("receipt poll error", zap.String("tx", txHash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("receipt wait for %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
