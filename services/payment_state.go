package services

import (
	"context"
	"errors"
	"time"

	"plan-delivery-service/lock"
	"plan-delivery-service/models"
	"plan-delivery-service/repository"

	"go.uber.org/zap"
)

var (
	// ErrLockLost means the caller's token no longer owns the lock; any
	// further writes would race a newer owner.
	ErrLockLost = errors.New("lock token no longer valid")

	ErrInvalidTransition = errors.New("invalid payment status transition")
)

// Decision is the outcome of BeginProcessing for one webhook delivery.
type Decision int

const (
	// DecisionProceed: this delivery won the lock and owns the pipeline run.
	DecisionProceed Decision = iota
	// DecisionAlreadyProcessed: the transaction reached a terminal status
	// earlier; acknowledge and do nothing.
	DecisionAlreadyProcessed
	// DecisionAlreadyInFlight: another run holds the lock and owns the
	// outcome; acknowledge and exit.
	DecisionAlreadyInFlight
)

type BeginResult struct {
	Decision  Decision
	LockToken string
}

// In-flight statuses allow a return to "locked" so a run resumed after a
// crashed worker's lock expired can start over from a clean state.
var validTransitions = map[string][]string{
	models.StatusReceived:   {models.StatusLocked, models.StatusFailed},
	models.StatusLocked:     {models.StatusGenerating, models.StatusFailed},
	models.StatusGenerating: {models.StatusRendering, models.StatusLocked, models.StatusFailed},
	models.StatusRendering:  {models.StatusStored, models.StatusGenerating, models.StatusLocked, models.StatusFailed},
	models.StatusStored:     {models.StatusDelivered, models.StatusLocked, models.StatusFailed},
	models.StatusDelivered:  {models.StatusRefunded, models.StatusChargedBack},
	models.StatusFailed:     {models.StatusRefunded, models.StatusChargedBack},
}

func transitionAllowed(from, to string) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PaymentStateMachine is the single authority for "has this payment already
// been processed". Every status write is gated on holding a valid lock
// token; callers are not trusted to serialize themselves.
type PaymentStateMachine struct {
	locks   lock.Store
	repo    repository.PaymentRepository
	lockTTL time.Duration
	logger  *zap.Logger
}

func NewPaymentStateMachine(locks lock.Store, repo repository.PaymentRepository, lockTTL time.Duration, logger *zap.Logger) *PaymentStateMachine {
	return &PaymentStateMachine{locks: locks, repo: repo, lockTTL: lockTTL, logger: logger}
}

// BeginProcessing decides whether this delivery should run the pipeline.
// Lock acquisition comes first; the terminal-status check runs under the
// lock so a racing replay cannot observe a half-finished run.
func (m *PaymentStateMachine) BeginProcessing(ctx context.Context, txnID string) (BeginResult, error) {
	processed, err := m.locks.WasProcessed(ctx, txnID)
	if err != nil {
		return BeginResult{}, err
	}
	if processed {
		return BeginResult{Decision: DecisionAlreadyProcessed}, nil
	}

	token, ok, err := m.locks.Acquire(ctx, txnID, m.lockTTL)
	if err != nil {
		return BeginResult{}, err
	}
	if !ok {
		return BeginResult{Decision: DecisionAlreadyInFlight}, nil
	}

	payment, err := m.repo.GetByTransactionID(ctx, txnID)
	if err != nil {
		m.releaseQuietly(txnID, token)
		return BeginResult{}, err
	}

	if models.TerminalStatuses[payment.Status] {
		if err := m.locks.MarkProcessed(ctx, txnID); err != nil {
			m.logger.Warn("Failed to set processed marker", zap.String("transaction_id", txnID), zap.Error(err))
		}
		m.releaseQuietly(txnID, token)
		return BeginResult{Decision: DecisionAlreadyProcessed}, nil
	}

	if err := m.Transition(ctx, txnID, token, models.StatusLocked, nil); err != nil {
		m.releaseQuietly(txnID, token)
		return BeginResult{}, err
	}

	return BeginResult{Decision: DecisionProceed, LockToken: token}, nil
}

// Transition moves the payment to newStatus after checking that token still
// owns the lock and that the step is legal from the current status.
func (m *PaymentStateMachine) Transition(ctx context.Context, txnID, token, newStatus string, extra map[string]interface{}) error {
	ok, err := m.locks.Validate(ctx, txnID, token)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockLost
	}

	payment, err := m.repo.GetByTransactionID(ctx, txnID)
	if err != nil {
		return err
	}
	if !transitionAllowed(payment.Status, newStatus) {
		return ErrInvalidTransition
	}

	return m.repo.UpdateStatus(ctx, txnID, newStatus, extra)
}

// Release gives up the lock; safe to call on every exit path, including
// after the lock already expired.
func (m *PaymentStateMachine) Release(ctx context.Context, txnID, token string) error {
	return m.locks.Release(ctx, txnID, token)
}

// MarkHandled records the terminal outcome in the fast-path duplicate
// filter. Called once the payment reached delivered or failed.
func (m *PaymentStateMachine) MarkHandled(ctx context.Context, txnID string) {
	if err := m.locks.MarkProcessed(ctx, txnID); err != nil {
		m.logger.Warn("Failed to set processed marker", zap.String("transaction_id", txnID), zap.Error(err))
	}
}

// Refund records an external refund event. Valid only from a terminal
// delivered/failed status; no lock is involved because no pipeline run can
// be in flight for a terminally-handled payment.
func (m *PaymentStateMachine) Refund(ctx context.Context, txnID string) error {
	return m.externalTransition(ctx, txnID, models.StatusRefunded)
}

// Chargeback records an external chargeback event.
func (m *PaymentStateMachine) Chargeback(ctx context.Context, txnID string) error {
	return m.externalTransition(ctx, txnID, models.StatusChargedBack)
}

func (m *PaymentStateMachine) externalTransition(ctx context.Context, txnID, newStatus string) error {
	payment, err := m.repo.GetByTransactionID(ctx, txnID)
	if err != nil {
		return err
	}
	// Providers redeliver these events; an already-recorded outcome is fine.
	if payment.Status == newStatus {
		return nil
	}
	if !transitionAllowed(payment.Status, newStatus) {
		return ErrInvalidTransition
	}
	return m.repo.UpdateStatus(ctx, txnID, newStatus, nil)
}

func (m *PaymentStateMachine) releaseQuietly(txnID, token string) {
	// Release uses its own context so an aborted request still frees the lock.
	releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.locks.Release(releaseCtx, txnID, token); err != nil {
		m.logger.Warn("Failed to release lock", zap.String("transaction_id", txnID), zap.Error(err))
	}
}
