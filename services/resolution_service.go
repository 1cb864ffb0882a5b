package services

import (
	"context"
	"errors"
	"time"

	"plan-delivery-service/models"
	"plan-delivery-service/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrAlreadyResolved = errors.New("resolution item already in a terminal status")

// ResolutionService owns the manual-resolution queue: durable records of
// pipeline failures awaiting operator action, each with a deadline fixed at
// creation time.
type ResolutionService struct {
	repo      repository.ResolutionRepository
	slaWindow time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewResolutionService(repo repository.ResolutionRepository, slaWindow time.Duration, logger *zap.Logger) *ResolutionService {
	return &ResolutionService{
		repo:      repo,
		slaWindow: slaWindow,
		logger:    logger,
		now:       time.Now,
	}
}

// Enqueue files one failure for human action. The SLA deadline is computed
// here, once; nothing later may extend it.
func (s *ResolutionService) Enqueue(ctx context.Context, txnID, stage, reason string) (uuid.UUID, error) {
	createdAt := s.now()
	item := &models.ManualResolutionItem{
		ID:                   uuid.New(),
		PaymentTransactionID: txnID,
		FailureStage:         stage,
		FailureReason:        reason,
		Status:               models.ResolutionPending,
		SLADeadline:          createdAt.Add(s.slaWindow),
		CreatedAt:            createdAt,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return uuid.Nil, err
	}
	s.logger.Info("Manual resolution item created",
		zap.String("item_id", item.ID.String()),
		zap.String("transaction_id", txnID),
		zap.String("stage", stage),
		zap.Time("sla_deadline", item.SLADeadline),
	)
	return item.ID, nil
}

func (s *ResolutionService) List(ctx context.Context, status, orderBy string) ([]models.ManualResolutionItem, error) {
	return s.repo.List(ctx, models.ResolutionFilter{Status: status, OrderBy: orderBy})
}

func (s *ResolutionService) Get(ctx context.Context, id uuid.UUID) (*models.ManualResolutionItem, error) {
	return s.repo.GetByID(ctx, id)
}

// Assign claims an item for an operator.
func (s *ResolutionService) Assign(ctx context.Context, id uuid.UUID, operator string) error {
	updated, err := s.repo.MarkInProgress(ctx, id, operator)
	if err != nil {
		return err
	}
	if !updated {
		return s.terminalOrNotFound(ctx, id)
	}
	return nil
}

// Resolve closes an item. Resolving twice fails with ErrAlreadyResolved and
// never overwrites the original resolved_at.
func (s *ResolutionService) Resolve(ctx context.Context, id uuid.UUID, operator, notes string) error {
	updated, err := s.repo.MarkResolved(ctx, id, operator, notes, s.now())
	if err != nil {
		return err
	}
	if !updated {
		return s.terminalOrNotFound(ctx, id)
	}
	s.logger.Info("Manual resolution item resolved",
		zap.String("item_id", id.String()),
		zap.String("operator", operator),
	)
	return nil
}

// Escalate moves a pending item past its deadline into escalated. A lost
// race with a concurrent resolve is a no-op, not an error: escalation is
// advisory, the resolve wins.
func (s *ResolutionService) Escalate(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.repo.MarkEscalated(ctx, id)
}

func (s *ResolutionService) terminalOrNotFound(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrAlreadyResolved
}
