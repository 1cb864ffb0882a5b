package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"plan-delivery-service/models"
	"plan-delivery-service/repository"
	"plan-delivery-service/sender"

	"go.uber.org/zap"
)

// Pipeline stages, in execution order. Each stage's output is the next
// stage's input; stages are never parallelized.
const (
	StageGenerate = "generate"
	StageRender   = "render"
	StageStore    = "store"
	StageDeliver  = "deliver"
)

type Outcome int

const (
	OutcomeDelivered Outcome = iota
	OutcomeManualResolution
)

// EventPublisher pushes delivery lifecycle events downstream.
type EventPublisher interface {
	SendDeliveryEvent(event models.DeliveryEvent) error
}

// Pipeline drives generation → rendering → storage → delivery for one
// payment. Every terminal path either marks the payment delivered or files
// a manual-resolution item; a payment is never silently dropped.
type Pipeline struct {
	state       *PaymentStateMachine
	repo        repository.PaymentRepository
	generator   PlanGenerator
	renderer    PlanRenderer
	storage     PlanStorage
	email       sender.EmailSender
	resolutions *ResolutionService
	events      EventPublisher
	logger      *zap.Logger

	GeneratePolicy RetryPolicy
	RenderPolicy   RetryPolicy
	StorePolicy    RetryPolicy
	DeliverPolicy  RetryPolicy
	// GenerateRenderBudget caps combined generate attempts plus render
	// structural rejections, bounding worst-case latency when the generator
	// keeps producing invalid plans.
	GenerateRenderBudget int
	StageTimeout         time.Duration
	DownloadTTL          time.Duration

	Sleep SleepFunc
	now   func() time.Time
}

func NewPipeline(
	state *PaymentStateMachine,
	repo repository.PaymentRepository,
	generator PlanGenerator,
	renderer PlanRenderer,
	storage PlanStorage,
	email sender.EmailSender,
	resolutions *ResolutionService,
	events EventPublisher,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		state:       state,
		repo:        repo,
		generator:   generator,
		renderer:    renderer,
		storage:     storage,
		email:       email,
		resolutions: resolutions,
		events:      events,
		logger:      logger,

		GeneratePolicy:       RetryPolicy{MaxAttempts: 3, Base: 2 * time.Second, Factor: 2, Cap: 30 * time.Second},
		RenderPolicy:         RetryPolicy{MaxAttempts: 2, Base: 2 * time.Second, Factor: 2, Cap: 30 * time.Second},
		StorePolicy:          RetryPolicy{MaxAttempts: 3, Base: 2 * time.Second, Factor: 2, Cap: 30 * time.Second},
		DeliverPolicy:        RetryPolicy{MaxAttempts: 3, Base: 2 * time.Second, Factor: 2, Cap: 30 * time.Second},
		GenerateRenderBudget: 5,
		StageTimeout:         60 * time.Second,
		DownloadTTL:          24 * time.Hour,

		Sleep: SleepContext,
		now:   time.Now,
	}
}

// Run executes the pipeline for one transaction. The caller must hold the
// lock token from BeginProcessing and release it afterwards.
func (pl *Pipeline) Run(ctx context.Context, txnID, token string) (Outcome, error) {
	payment, err := pl.repo.GetByTransactionID(ctx, txnID)
	if err != nil {
		return OutcomeManualResolution, err
	}

	var prefs models.PlanPreferences
	if err := json.Unmarshal([]byte(payment.Preferences), &prefs); err != nil {
		return pl.fail(ctx, txnID, token, StageGenerate, fmt.Errorf("unreadable quiz preferences: %w", err))
	}

	doc, outcome, err := pl.generateAndRender(ctx, txnID, token, prefs)
	if err != nil || outcome == OutcomeManualResolution {
		return outcome, err
	}

	planKey, outcome, err := pl.store(ctx, txnID, token, doc)
	if err != nil || outcome == OutcomeManualResolution {
		return outcome, err
	}

	return pl.deliver(ctx, txnID, token, payment.CustomerEmail, planKey)
}

// generateAndRender loops generate → render until a document renders, a
// retry budget runs out, or the combined budget is spent. A structural
// render rejection burns one combined attempt and regenerates rather than
// retrying the render.
func (pl *Pipeline) generateAndRender(ctx context.Context, txnID, token string, prefs models.PlanPreferences) ([]byte, Outcome, error) {
	used := 0
	for {
		if err := pl.state.Transition(ctx, txnID, token, models.StatusGenerating, nil); err != nil {
			outcome, rerr := pl.onTransitionError(ctx, txnID, StageGenerate, err)
			return nil, outcome, rerr
		}

		genPolicy := pl.GeneratePolicy
		if remaining := pl.GenerateRenderBudget - used; genPolicy.MaxAttempts > remaining {
			genPolicy.MaxAttempts = remaining
		}

		var plan *models.GeneratedPlan
		attempts, err := genPolicy.Do(ctx, pl.Sleep, func(ctx context.Context) error {
			stageCtx, cancel := context.WithTimeout(ctx, pl.StageTimeout)
			defer cancel()
			var gerr error
			plan, gerr = pl.generator.Generate(stageCtx, prefs)
			return gerr
		})
		used += attempts
		if err != nil {
			outcome, ferr := pl.fail(ctx, txnID, token, StageGenerate, err)
			return nil, outcome, ferr
		}

		if err := pl.state.Transition(ctx, txnID, token, models.StatusRendering, nil); err != nil {
			outcome, rerr := pl.onTransitionError(ctx, txnID, StageRender, err)
			return nil, outcome, rerr
		}

		var doc []byte
		_, err = pl.RenderPolicy.Do(ctx, pl.Sleep, func(ctx context.Context) error {
			stageCtx, cancel := context.WithTimeout(ctx, pl.StageTimeout)
			defer cancel()
			var rerr error
			doc, rerr = pl.renderer.Render(stageCtx, plan)
			return rerr
		})
		if err == nil {
			return doc, OutcomeDelivered, nil
		}
		if IsRetryable(err) {
			// Transient render budget exhausted.
			outcome, ferr := pl.fail(ctx, txnID, token, StageRender, err)
			return nil, outcome, ferr
		}

		// Structural rejection: the generated content is bad, regenerate.
		used++
		if used >= pl.GenerateRenderBudget {
			outcome, ferr := pl.fail(ctx, txnID, token, StageRender, err)
			return nil, outcome, ferr
		}
		pl.logger.Warn("Rendering rejected generated plan, regenerating",
			zap.String("transaction_id", txnID),
			zap.Int("combined_attempts", used),
			zap.Error(err),
		)
	}
}

func (pl *Pipeline) store(ctx context.Context, txnID, token string, doc []byte) (string, Outcome, error) {
	var planKey string
	_, err := pl.StorePolicy.Do(ctx, pl.Sleep, func(ctx context.Context) error {
		stageCtx, cancel := context.WithTimeout(ctx, pl.StageTimeout)
		defer cancel()
		var serr error
		planKey, serr = pl.storage.Put(stageCtx, txnID+".pdf", doc)
		return serr
	})
	if err != nil {
		outcome, ferr := pl.fail(ctx, txnID, token, StageStore, err)
		return "", outcome, ferr
	}

	if err := pl.state.Transition(ctx, txnID, token, models.StatusStored, map[string]interface{}{"plan_key": planKey}); err != nil {
		outcome, rerr := pl.onTransitionError(ctx, txnID, StageStore, err)
		return "", outcome, rerr
	}
	return planKey, OutcomeDelivered, nil
}

func (pl *Pipeline) deliver(ctx context.Context, txnID, token, customerEmail, planKey string) (Outcome, error) {
	payment, err := pl.repo.GetByTransactionID(ctx, txnID)
	if err != nil {
		return OutcomeManualResolution, err
	}

	if payment.DeliveredAt == nil {
		_, err := pl.DeliverPolicy.Do(ctx, pl.Sleep, func(ctx context.Context) error {
			stageCtx, cancel := context.WithTimeout(ctx, pl.StageTimeout)
			defer cancel()

			// Sign on demand, per attempt; signed URLs are never persisted.
			url, serr := pl.storage.SignURL(stageCtx, planKey, pl.DownloadTTL)
			if serr != nil {
				return NewRetryable(StageDeliver, serr)
			}
			subject, body := deliveryEmail(url, pl.DownloadTTL)
			if _, serr := pl.email.SendEmail(stageCtx, customerEmail, subject, body); serr != nil {
				return NewRetryable(StageDeliver, serr)
			}
			return nil
		})
		if err != nil {
			return pl.fail(ctx, txnID, token, StageDeliver, err)
		}
	}

	deliveredAt := pl.now()
	if err := pl.state.Transition(ctx, txnID, token, models.StatusDelivered, map[string]interface{}{"delivered_at": deliveredAt}); err != nil {
		return pl.onTransitionError(ctx, txnID, StageDeliver, err)
	}
	pl.state.MarkHandled(ctx, txnID)

	pl.publishEvent(models.DeliveryEvent{
		Type:          models.EventPlanDelivered,
		TransactionID: txnID,
		CustomerEmail: customerEmail,
		PlanKey:       planKey,
		Timestamp:     deliveredAt.UTC(),
	})
	pl.logger.Info("Plan delivered", zap.String("transaction_id", txnID), zap.String("plan_key", planKey))
	return OutcomeDelivered, nil
}

// fail files a manual-resolution item and marks the payment failed. This is
// the terminal path for exhausted retries and non-retryable stage errors.
func (pl *Pipeline) fail(ctx context.Context, txnID, token, stage string, cause error) (Outcome, error) {
	if errors.Is(cause, ErrLockLost) {
		return pl.abortLockLost(ctx, txnID, stage, cause)
	}

	reason := cause.Error()
	if _, err := pl.resolutions.Enqueue(ctx, txnID, stage, reason); err != nil {
		pl.logger.Error("Failed to enqueue manual resolution",
			zap.String("transaction_id", txnID),
			zap.String("stage", stage),
			zap.Error(err),
		)
		// Leave the payment in-flight; the lock TTL and webhook retries
		// will route it back here.
		return OutcomeManualResolution, err
	}

	if err := pl.state.Transition(ctx, txnID, token, models.StatusFailed, map[string]interface{}{
		"failed_at":     pl.now(),
		"failure_stage": stage,
	}); err != nil {
		pl.logger.Error("Failed to mark payment failed",
			zap.String("transaction_id", txnID),
			zap.Error(err),
		)
	} else {
		pl.state.MarkHandled(ctx, txnID)
	}

	pl.publishEvent(models.DeliveryEvent{
		Type:          models.EventPlanDeliveryFailed,
		TransactionID: txnID,
		FailureStage:  stage,
		FailureReason: reason,
		Timestamp:     pl.now().UTC(),
	})
	pl.logger.Warn("Pipeline failed, routed to manual resolution",
		zap.String("transaction_id", txnID),
		zap.String("stage", stage),
		zap.String("reason", reason),
	)
	return OutcomeManualResolution, nil
}

func (pl *Pipeline) onTransitionError(ctx context.Context, txnID, stage string, err error) (Outcome, error) {
	if errors.Is(err, ErrLockLost) {
		return pl.abortLockLost(ctx, txnID, stage, err)
	}
	return OutcomeManualResolution, err
}

// abortLockLost handles a token that stopped being valid mid-run: another
// owner may be processing, so this run writes nothing more to the payment
// and only files the case for human review.
func (pl *Pipeline) abortLockLost(ctx context.Context, txnID, stage string, cause error) (Outcome, error) {
	if _, err := pl.resolutions.Enqueue(ctx, txnID, stage, fmt.Sprintf("lock lost during %s: %v", stage, cause)); err != nil {
		pl.logger.Error("Failed to enqueue manual resolution after lock loss",
			zap.String("transaction_id", txnID),
			zap.Error(err),
		)
	}
	pl.logger.Error("Aborting run, lock lost",
		zap.String("transaction_id", txnID),
		zap.String("stage", stage),
	)
	return OutcomeManualResolution, nil
}

func (pl *Pipeline) publishEvent(event models.DeliveryEvent) {
	if err := pl.events.SendDeliveryEvent(event); err != nil {
		pl.logger.Warn("Failed to publish delivery event",
			zap.String("event_type", event.Type),
			zap.String("transaction_id", event.TransactionID),
			zap.Error(err),
		)
	}
}

func deliveryEmail(downloadURL string, ttl time.Duration) (subject, body string) {
	subject = "Your personalized keto meal plan is ready"
	body = fmt.Sprintf(
		"<h2>Your meal plan is ready!</h2>"+
			"<p>Thanks for your purchase. Your personalized keto meal plan is attached below.</p>"+
			"<p><a href=%q>Download your plan</a></p>"+
			"<p>The link stays valid for %d hours. You can request a fresh one from your account page at any time.</p>",
		downloadURL, int(ttl.Hours()),
	)
	return subject, body
}
