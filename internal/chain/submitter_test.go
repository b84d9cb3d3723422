package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// fakeBackend simulates the ledger RPC surface. Nonce accounting is
// pending-inclusive: every accepted broadcast bumps the reported nonce.
type fakeBackend struct {
	mu         sync.Mutex
	nonce      uint64
	nonceCalls int
	gasPrice   *big.Int

	sendErrs    []error // consumed one per SendTransaction, then accepts
	revertFirst int     // mine this many accepted txs as reverted
	sent        []*types.Transaction
	receipts    map[common.Hash]*types.Receipt

	callResult []byte
	callErr    error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		gasPrice: big.NewInt(100),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (b *fakeBackend) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nonceCalls++
	return b.nonce, nil
}

func (b *fakeBackend) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.gasPrice), nil
}

func (b *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sendErrs) > 0 {
		err := b.sendErrs[0]
		b.sendErrs = b.sendErrs[1:]
		return err
	}
	b.sent = append(b.sent, tx)
	b.nonce++

	status := types.ReceiptStatusSuccessful
	if b.revertFirst > 0 {
		b.revertFirst--
		status = types.ReceiptStatusFailed
	}
	b.receipts[tx.Hash()] = &types.Receipt{Status: status, TxHash: tx.Hash(), GasUsed: 21000}
	return nil
}

func (b *fakeBackend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *fakeBackend) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return b.callResult, b.callErr
}

func testConfig() Config {
	return Config{
		PrivateKey:     "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
		MissionControl: "0x1111111111111111111111111111111111111111",
		TxAttempts:     3,
		RetryBaseDelay: time.Millisecond,
		ReceiptTimeout: 200 * time.Millisecond,
		GasLimit:       500_000,
		ChainID:        114,
	}.withDefaults()
}

func newTestSubmitter(t *testing.T, b Backend) *Submitter {
	t.Helper()
	cfg := testConfig()
	key, err := crypto.HexToECDSA(cfg.PrivateKey)
	if err != nil {
		t.Fatal(err)
	}
	return NewSubmitter(b, key, big.NewInt(cfg.ChainID), crypto.PubkeyToAddress(key.PublicKey), cfg, zap.NewNop())
}

var testContract = common.HexToAddress("0x1111111111111111111111111111111111111111")

func TestSubmit_succeedsFirstAttempt(t *testing.T) {
	b := newFakeBackend()
	s := newTestSubmitter(t, b)

	rcpt, err := s.Submit(context.Background(), testContract, missionControlABI, "approveAid",
		big.NewInt(42), common.HexToAddress("0x2222222222222222222222222222222222222222"), big.NewInt(75))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		t.Error("expected successful receipt")
	}
	if len(b.sent) != 1 {
		t.Fatalf("broadcast %d txs, want 1", len(b.sent))
	}
	if b.nonceCalls != 1 {
		t.Errorf("nonce fetched %d times, want 1", b.nonceCalls)
	}
}

func TestSubmit_overpricesGas(t *testing.T) {
	b := newFakeBackend()
	b.gasPrice = big.NewInt(100)
	s := newTestSubmitter(t, b)

	if _, err := s.Submit(context.Background(), testContract, missionControlABI, "approveAid",
		big.NewInt(1), common.Address{}, big.NewInt(1)); err != nil {
		t.Fatal(err)
	}
	if got := b.sent[0].GasPrice().Int64(); got != 120 {
		t.Errorf("gas price: got %d, want market 100 * 1.2 = 120", got)
	}
	if got := b.sent[0].Gas(); got != 500_000 {
		t.Errorf("gas limit: got %d, want the fixed 500000", got)
	}
}

func TestSubmit_retriesBroadcastFailureThenSucceeds(t *testing.T) {
	b := newFakeBackend()
	b.sendErrs = []error{errors.New("connection reset"), errors.New("connection reset")}
	s := newTestSubmitter(t, b)

	rcpt, err := s.Submit(context.Background(), testContract, missionControlABI, "approveAid",
		big.NewInt(42), common.Address{}, big.NewInt(75))
	if err != nil {
		t.Fatalf("Submit should succeed on the third attempt: %v", err)
	}
	if rcpt == nil || rcpt.Status != types.ReceiptStatusSuccessful {
		t.Fatal("expected a successful receipt")
	}

	// Pre-broadcast failures: the nonce must be re-queried on every attempt,
	// not carried over from the failed one.
	if b.nonceCalls != 3 {
		t.Errorf("nonce fetched %d times, want once per attempt (3)", b.nonceCalls)
	}
	if got := b.sent[0].Nonce(); got != 0 {
		t.Errorf("landed tx nonce: got %d, want 0", got)
	}
}

func TestSubmit_revertCountsAsFailureAndRefetchesNonce(t *testing.T) {
	b := newFakeBackend()
	b.revertFirst = 1
	s := newTestSubmitter(t, b)

	rcpt, err := s.Submit(context.Background(), testContract, missionControlABI, "approveAid",
		big.NewInt(42), common.Address{}, big.NewInt(75))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		t.Error("expected the retried attempt to succeed")
	}
	if len(b.sent) != 2 {
		t.Fatalf("broadcast %d txs, want 2 (reverted + retried)", len(b.sent))
	}
	// The reverted tx consumed nonce 0; the retry must observe nonce 1.
	if n0, n1 := b.sent[0].Nonce(), b.sent[1].Nonce(); n0 != 0 || n1 != 1 {
		t.Errorf("nonces: got (%d, %d), want (0, 1)", n0, n1)
	}
}

func TestSubmit_concurrentSubmitsUseDistinctNonces(t *testing.T) {
	b := newFakeBackend()
	s := newTestSubmitter(t, b)

	// One signer, many in-flight submissions: the nonce fetch and broadcast
	// must serialise so no two transactions claim the same nonce.
	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Submit(context.Background(), testContract, missionControlABI, "approveAid",
				big.NewInt(int64(i+1)), common.Address{}, big.NewInt(10))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	if len(b.sent) != n {
		t.Fatalf("broadcast %d txs, want %d", len(b.sent), n)
	}

	seen := make(map[uint64]bool, n)
	for _, tx := range b.sent {
		if seen[tx.Nonce()] {
			t.Fatalf("nonce %d claimed by two transactions", tx.Nonce())
		}
		seen[tx.Nonce()] = true
	}
	for want := uint64(0); want < n; want++ {
		if !seen[want] {
			t.Errorf("nonce %d never used, want consecutive nonces 0..%d", want, n-1)
		}
	}
}

func TestSubmit_exhaustedAttemptsReturnTxError(t *testing.T) {
	b := newFakeBackend()
	b.sendErrs = []error{
		errors.New("down"), errors.New("down"), errors.New("down"),
	}
	s := newTestSubmitter(t, b)

	var recorded []bool
	s.SetMetricsRecorder(func(ok bool) { recorded = append(recorded, ok) })

	_, err := s.Submit(context.Background(), testContract, missionControlABI, "approveAid",
		big.NewInt(42), common.Address{}, big.NewInt(75))
	if err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}

	var txErr *TxError
	if !errors.As(err, &txErr) {
		t.Fatalf("expected *TxError, got %T: %v", err, err)
	}
	if txErr.Attempts != 3 {
		t.Errorf("attempts: got %d, want 3", txErr.Attempts)
	}
	if txErr.Err == nil {
		t.Error("TxError must carry the last underlying cause")
	}
	if len(recorded) != 1 || recorded[0] {
		t.Errorf("metrics: got %v, want one failure record", recorded)
	}
}

func TestSubmit_receiptTimeoutIsAnAttemptFailure(t *testing.T) {
	// Every broadcast is accepted but no receipt ever appears.
	b := &receiptlessBackend{fakeBackend: newFakeBackend()}
	s := newTestSubmitter(t, b)

	_, err := s.Submit(context.Background(), testContract, missionControlABI, "approveAid",
		big.NewInt(42), common.Address{}, big.NewInt(75))
	if err == nil {
		t.Fatal("expected timeout failure when no receipt ever appears")
	}
	var txErr *TxError
	if !errors.As(err, &txErr) {
		t.Fatalf("expected *TxError, got %T", err)
	}
}

func TestSubmit_cancelledContextStillCarriesCause(t *testing.T) {
	b := newFakeBackend()
	s := newTestSubmitter(t, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Submit(ctx, testContract, missionControlABI, "approveAid",
		big.NewInt(42), common.Address{}, big.NewInt(75))
	if err == nil {
		t.Fatal("expected failure with a cancelled context")
	}
	var txErr *TxError
	if !errors.As(err, &txErr) {
		t.Fatalf("expected *TxError, got %T: %v", err, err)
	}
	if txErr.Err == nil {
		t.Error("TxError must carry a cause even when no attempt completed")
	}
}

// receiptlessBackend accepts broadcasts but never produces a receipt.
type receiptlessBackend struct {
	*fakeBackend
}

func (b *receiptlessBackend) TransactionReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}
