package services

import (
	"context"
	"encoding/json"
	"time"

	"plan-delivery-service/repository"

	"go.uber.org/zap"
)

// SLAMonitor periodically sweeps the manual-resolution queue, escalates
// items past their deadline and emits one alert per breach. Escalation and
// alert delivery are decoupled: a failed alert is retried on the next sweep
// and never reverts the escalation.
type SLAMonitor struct {
	repo        repository.ResolutionRepository
	resolutions *ResolutionService
	alerts      AlertPublisher
	topicARN    string
	interval    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func NewSLAMonitor(
	repo repository.ResolutionRepository,
	resolutions *ResolutionService,
	alerts AlertPublisher,
	topicARN string,
	interval time.Duration,
	logger *zap.Logger,
) *SLAMonitor {
	return &SLAMonitor{
		repo:        repo,
		resolutions: resolutions,
		alerts:      alerts,
		topicARN:    topicARN,
		interval:    interval,
		logger:      logger,
		now:         time.Now,
	}
}

func (m *SLAMonitor) Start(ctx context.Context) {
	m.logger.Info("SLA monitor started", zap.Duration("interval", m.interval))
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("SLA monitor shutting down")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

type slaBreachAlert struct {
	ItemID        string    `json:"item_id"`
	TransactionID string    `json:"transaction_id"`
	FailureStage  string    `json:"failure_stage"`
	FailureReason string    `json:"failure_reason"`
	SLADeadline   time.Time `json:"sla_deadline"`
	EscalatedAt   time.Time `json:"escalated_at"`
}

// Sweep runs one pass: escalate breached pending items, then deliver alerts
// for escalated items that have none yet. The alerted_at column dedupes, so
// an item is alerted exactly once no matter how many sweeps see it.
func (m *SLAMonitor) Sweep(ctx context.Context) {
	now := m.now()

	breached, err := m.repo.ListBreached(ctx, now)
	if err != nil {
		m.logger.Error("SLA sweep query failed", zap.Error(err))
		return
	}
	for _, item := range breached {
		escalated, err := m.resolutions.Escalate(ctx, item.ID)
		if err != nil {
			m.logger.Error("Failed to escalate item", zap.String("item_id", item.ID.String()), zap.Error(err))
			continue
		}
		if escalated {
			m.logger.Warn("SLA breached, item escalated",
				zap.String("item_id", item.ID.String()),
				zap.String("transaction_id", item.PaymentTransactionID),
				zap.Time("sla_deadline", item.SLADeadline),
			)
		}
		// Not escalated: resolved between the query and this call, skip.
	}

	unalerted, err := m.repo.ListUnalerted(ctx)
	if err != nil {
		m.logger.Error("SLA alert query failed", zap.Error(err))
		return
	}
	for _, item := range unalerted {
		alert := slaBreachAlert{
			ItemID:        item.ID.String(),
			TransactionID: item.PaymentTransactionID,
			FailureStage:  item.FailureStage,
			FailureReason: item.FailureReason,
			SLADeadline:   item.SLADeadline,
			EscalatedAt:   now,
		}
		payload, _ := json.Marshal(alert)
		if err := m.alerts.Publish(ctx, m.topicARN, payload); err != nil {
			// Retried next sweep; the escalation already happened.
			m.logger.Error("Failed to publish SLA breach alert",
				zap.String("item_id", item.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if err := m.repo.MarkAlerted(ctx, item.ID, now); err != nil {
			m.logger.Error("Failed to record alert delivery", zap.String("item_id", item.ID.String()), zap.Error(err))
		}
	}
}
