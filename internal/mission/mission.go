// Package mission drives an aid request through its on-ledger stage sequence:
// verify → approve → deliver. Status only ever moves forward; the ledger
// itself rejects out-of-order transitions, so the orchestrator does not
// duplicate that check.
//
// Failure policy: every operation catches its errors at this boundary and
// returns an absent result plus a log entry. Nothing escapes to crash a
// background task — a stage that fails simply leaves the on-ledger status
// unchanged, which is the signal for an external actor to retry.
package mission

import (
	"context"
	"sync"
	"time"

	"github.com/aegis-relief/aegis/internal/activity"
	"github.com/aegis-relief/aegis/internal/attest"
	"github.com/aegis-relief/aegis/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// DefaultTransitDelay is the simulated drone/vehicle transit time before a
// delivery is confirmed.
const DefaultTransitDelay = 50 * time.Second

// Ledger is the slice of the chain client the orchestrator depends on.
// *chain.Client satisfies it; tests substitute a fake.
type Ledger interface {
	Configured() bool
	VerifyEvent(ctx context.Context, requestID uint64, path [][32]byte, root, leaf [32]byte) (common.Hash, error)
	ApproveAid(ctx context.Context, requestID uint64, provider common.Address, costUSD uint64) (common.Hash, error)
	ConfirmDelivery(ctx context.Context, requestID uint64, path [][32]byte, root, leaf [32]byte) (common.Hash, error)
	ReadRequest(ctx context.Context, requestID uint64) (chain.RequestView, error)
}

// DeliveryRecorder is an optional callback for recording delivery outcomes.
type DeliveryRecorder func(success bool)

// Service is the request lifecycle orchestrator. It owns no ledger state,
// only sequencing; the activity log is the sole shared mutable state between
// request tasks and is safe for concurrent append.
type Service struct {
	ledger       Ledger
	proofs       attest.Generator
	log          *activity.Log
	transitDelay time.Duration
	onDelivery   DeliveryRecorder
	logger       *zap.Logger

	deliveries sync.WaitGroup
	stopOnce   sync.Once
	stop       chan struct{}
}

// NewService creates the orchestrator.
func NewService(ledger Ledger, proofs attest.Generator, log *activity.Log, logger *zap.Logger) *Service {
	return &Service{
		ledger:       ledger,
		proofs:       proofs,
		log:          log,
		transitDelay: DefaultTransitDelay,
		logger:       logger,
		stop:         make(chan struct{}),
	}
}

// SetTransitDelay overrides the simulated transit time.
func (s *Service) SetTransitDelay(d time.Duration) {
	s.transitDelay = d
}

// SetDeliveryRecorder configures the delivery metrics callback.
func (s *Service) SetDeliveryRecorder(fn DeliveryRecorder) {
	s.onDelivery = fn
}

// Configured reports whether the ledger can accept mutating calls.
func (s *Service) Configured() bool {
	return s.ledger.Configured()
}

// VerifyEvent obtains a disaster_verified attestation proof for the claimed
// event and submits the verify transition. Returns the transaction hash, or
// ok=false on any failure; the external decision pipeline may call again
// later. The submitter has already retried internally — this stage adds no
// retry of its own.
func (s *Service) VerifyEvent(ctx context.Context, requestID uint64, lat, lng float64, claim string) (string, bool) {
	if !s.ledger.Configured() {
		s.logger.Warn("chain not configured, skipping verifyEvent", zap.Uint64("request_id", requestID))
		return "", false
	}

	proof, err := s.proofs.Generate(ctx, requestID, attest.PurposeDisasterVerified, attest.Location{Lat: lat, Lng: lng})
	if err != nil {
		s.logger.Error("attestation proof failed",
			zap.Uint64("request_id", requestID), zap.String("claim", claim), zap.Error(err))
		return "", false
	}

	txHash, err := s.ledger.VerifyEvent(ctx, requestID, proof.Path, proof.Root, proof.Leaf)
	if err != nil {
		s.logger.Error("verifyEvent failed",
			zap.Uint64("request_id", requestID), zap.String("claim", claim), zap.Error(err))
		return "", false
	}

	s.log.Append(activity.Event{
		Type:      activity.TypeEventVerified,
		RequestID: requestID,
		TxHash:    txHash.Hex(),
	})
	s.logger.Info("event verified",
		zap.Uint64("request_id", requestID),
		zap.String("claim", claim),
		zap.String("tx", txHash.Hex()),
	)
	return txHash.Hex(), true
}

// ApproveAid submits the approve transition with the supplied provider and
// cost (no proof required), then schedules the delivery stage in the
// background without blocking the caller. Duplicate scheduling for one id is
// the caller's responsibility to avoid.
func (s *Service) ApproveAid(ctx context.Context, requestID uint64, provider common.Address, costUSD uint64) (string, bool) {
	if !s.ledger.Configured() {
		s.logger.Warn("chain not configured, skipping approveAid", zap.Uint64("request_id", requestID))
		return "", false
	}

	txHash, err := s.ledger.ApproveAid(ctx, requestID, provider, costUSD)
	if err != nil {
		s.logger.Error("approveAid failed", zap.Uint64("request_id", requestID), zap.Error(err))
		return "", false
	}

	s.log.Append(activity.Event{
		Type:      activity.TypeAidApproved,
		RequestID: requestID,
		TxHash:    txHash.Hex(),
	})
	s.logger.Info("aid approved",
		zap.Uint64("request_id", requestID),
		zap.String("provider", provider.Hex()),
		zap.Uint64("cost_usd", costUSD),
		zap.String("tx", txHash.Hex()),
	)

	s.ScheduleDelivery(requestID)
	return txHash.Hex(), true
}

// ScheduleDelivery launches the delivery stage as a tracked background task
// for one request id. Tasks for different ids run independently; Shutdown
// joins all in-flight deliveries. Scheduling after Shutdown is a no-op.
func (s *Service) ScheduleDelivery(requestID uint64) {
	if !s.ledger.Configured() {
		s.logger.Warn("chain not configured, skipping delivery", zap.Uint64("request_id", requestID))
		return
	}

	// Never Add on the WaitGroup once Shutdown may be waiting on it.
	select {
	case <-s.stop:
		s.logger.Warn("delivery not scheduled, service shut down", zap.Uint64("request_id", requestID))
		return
	default:
	}

	s.deliveries.Add(1)
	go func() {
		defer s.deliveries.Done()
		s.runDelivery(requestID)
	}()
}

// runDelivery waits out the simulated transit, then confirms delivery with a
// delivery_confirmed proof. Payout happens atomically on the ledger inside
// the confirmation transaction — a separate payout call here would be
// rejected as a double payout. On failure it logs and terminates; the
// underlying submission already retried internally.
func (s *Service) runDelivery(requestID uint64) {
	s.logger.Info("delivery scheduled",
		zap.Uint64("request_id", requestID),
		zap.Duration("transit", s.transitDelay),
	)

	timer := time.NewTimer(s.transitDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.stop:
		// Process shutdown before transit completed: the request is simply
		// never confirmed. There is no persisted resumption.
		s.logger.Warn("delivery abandoned on shutdown", zap.Uint64("request_id", requestID))
		return
	}

	ctx := context.Background()
	proof, err := s.proofs.Generate(ctx, requestID, attest.PurposeDeliveryConfirmed, attest.Location{})
	if err != nil {
		s.logger.Error("delivery proof failed", zap.Uint64("request_id", requestID), zap.Error(err))
		s.recordDelivery(false)
		return
	}

	txHash, err := s.ledger.ConfirmDelivery(ctx, requestID, proof.Path, proof.Root, proof.Leaf)
	if err != nil {
		s.logger.Error("confirmDelivery failed", zap.Uint64("request_id", requestID), zap.Error(err))
		s.recordDelivery(false)
		return
	}

	s.log.Append(activity.Event{
		Type:      activity.TypeMissionComplete,
		RequestID: requestID,
		TxHash:    txHash.Hex(),
	})
	s.logger.Info("mission complete",
		zap.Uint64("request_id", requestID),
		zap.String("tx", txHash.Hex()),
	)
	s.recordDelivery(true)
}

func (s *Service) recordDelivery(success bool) {
	if s.onDelivery != nil {
		s.onDelivery(success)
	}
}

// Status reads the request's current on-ledger view.
func (s *Service) Status(ctx context.Context, requestID uint64) (chain.RequestView, error) {
	return s.ledger.ReadRequest(ctx, requestID)
}

// Activity returns the process-wide activity feed, oldest first.
func (s *Service) Activity() []activity.Event {
	return s.log.Snapshot()
}

// Shutdown stops waiting deliveries and joins all in-flight delivery tasks,
// or returns early with the context's error.
func (s *Service) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })

	done := make(chan struct{})
	go func() {
		s.deliveries.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
