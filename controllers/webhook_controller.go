package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"plan-delivery-service/models"
	"plan-delivery-service/repository"
	"plan-delivery-service/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StateMachine and PipelineRunner are the slices of the payment state
// machine and orchestrator this controller needs.
type StateMachine interface {
	BeginProcessing(ctx context.Context, txnID string) (services.BeginResult, error)
	Release(ctx context.Context, txnID, token string) error
	Refund(ctx context.Context, txnID string) error
	Chargeback(ctx context.Context, txnID string) error
}

type PipelineRunner interface {
	Run(ctx context.Context, txnID, token string) (services.Outcome, error)
}

type WebhookController struct {
	Verifier *services.WebhookVerifier
	State    StateMachine
	Pipeline PipelineRunner
	Repo     repository.PaymentRepository
	Logger   *zap.Logger

	// RunTimeout bounds one orchestration; keep it at or under the lock TTL
	// so a run cannot outlive its own authority.
	RunTimeout time.Duration
}

// HandlePaymentWebhook receives payment confirmations. Every idempotent
// outcome (processed, already processed, in flight) answers 200 so the
// provider stops retrying; only verification failures and unexpected
// internal errors are non-2xx.
func (wc *WebhookController) HandlePaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	verified, err := wc.Verifier.Verify(body, c.GetHeader("Signature"), c.GetHeader("Timestamp"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidSignature):
			wc.Logger.Warn("Webhook signature verification failed", zap.String("ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		case errors.Is(err, services.ErrStaleEvent):
			c.JSON(http.StatusBadRequest, gin.H{"error": "stale event"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		}
		return
	}

	event := verified.Event
	txnID := event.TransactionID
	wc.Logger.Info("Processing payment webhook",
		zap.String("event_type", event.Type),
		zap.String("transaction_id", txnID),
	)

	switch event.Type {
	case models.PaymentEventRefunded:
		wc.handleExternalStatus(c, txnID, "refunded", wc.State.Refund)
		return
	case models.PaymentEventChargedBack:
		wc.handleExternalStatus(c, txnID, "charged_back", wc.State.Chargeback)
		return
	case "", models.PaymentEventSucceeded:
		// Confirmed payment, handled below.
	default:
		wc.Logger.Info("Unhandled webhook event type", zap.String("event_type", event.Type))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	prefsJSON, _ := json.Marshal(event.Preferences)
	payment := &models.Payment{
		ID:            uuid.New(),
		TransactionID: txnID,
		CustomerEmail: normalizeEmail(event.CustomerEmail),
		Amount:        event.Amount,
		Currency:      strings.ToLower(event.Currency),
		Method:        event.Method,
		Status:        models.StatusReceived,
		Preferences:   string(prefsJSON),
	}

	// Unique transaction_id plus the lock below: either alone stops most
	// duplicates, together they stop the race between a replay and a
	// concurrent in-flight run.
	created, err := wc.Repo.CreateIfAbsent(c.Request.Context(), payment)
	if err != nil {
		wc.Logger.Error("Failed to persist payment record", zap.String("transaction_id", txnID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !created {
		wc.Logger.Info("Duplicate webhook for known transaction", zap.String("transaction_id", txnID))
	}

	result, err := wc.State.BeginProcessing(c.Request.Context(), txnID)
	if err != nil {
		wc.Logger.Error("Failed to begin processing", zap.String("transaction_id", txnID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	switch result.Decision {
	case services.DecisionAlreadyProcessed:
		c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
	case services.DecisionAlreadyInFlight:
		c.JSON(http.StatusOK, gin.H{"status": "in_flight"})
	case services.DecisionProceed:
		wc.process(txnID, result.LockToken)
		c.JSON(http.StatusOK, gin.H{"status": "processed"})
	}
}

// handleExternalStatus records a provider-driven outcome (refund or
// chargeback). Valid only once processing finished; an out-of-order event
// gets a 409 so the provider redelivers it later.
func (wc *WebhookController) handleExternalStatus(c *gin.Context, txnID, status string, apply func(context.Context, string) error) {
	err := apply(c.Request.Context(), txnID)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": status})
	case errors.Is(err, services.ErrInvalidTransition):
		wc.Logger.Warn("Out-of-order external status event",
			zap.String("transaction_id", txnID),
			zap.String("target_status", status),
		)
		c.JSON(http.StatusConflict, gin.H{"error": "payment still in flight"})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown transaction"})
	default:
		wc.Logger.Error("Failed to record external status",
			zap.String("transaction_id", txnID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// process runs the pipeline under the acquired lock. The lock is released
// on every exit path, panics included, and the run uses its own context so
// a dropped webhook connection cannot cancel it mid-stage.
func (wc *WebhookController) process(txnID, token string) {
	timeout := wc.RunTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	defer func() {
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer releaseCancel()
		if err := wc.State.Release(releaseCtx, txnID, token); err != nil {
			wc.Logger.Warn("Failed to release lock", zap.String("transaction_id", txnID), zap.Error(err))
		}
		if r := recover(); r != nil {
			wc.Logger.Error("Pipeline panicked", zap.String("transaction_id", txnID), zap.Any("panic", r))
		}
	}()

	outcome, err := wc.Pipeline.Run(ctx, txnID, token)
	if err != nil {
		wc.Logger.Error("Pipeline run errored", zap.String("transaction_id", txnID), zap.Error(err))
		return
	}
	if outcome == services.OutcomeManualResolution {
		wc.Logger.Warn("Pipeline ended in manual resolution", zap.String("transaction_id", txnID))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
