package repository

import (
	"context"
	"time"

	"plan-delivery-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ResolutionRepository interface {
	Create(ctx context.Context, item *models.ManualResolutionItem) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ManualResolutionItem, error)
	List(ctx context.Context, filter models.ResolutionFilter) ([]models.ManualResolutionItem, error)

	// The Mark* methods are conditional updates; updated is false when the
	// item was not in an eligible status (e.g. already resolved).
	MarkInProgress(ctx context.Context, id uuid.UUID, operator string) (updated bool, err error)
	MarkResolved(ctx context.Context, id uuid.UUID, operator, notes string, at time.Time) (updated bool, err error)
	MarkEscalated(ctx context.Context, id uuid.UUID) (updated bool, err error)

	// ListBreached returns pending items whose deadline has passed.
	ListBreached(ctx context.Context, now time.Time) ([]models.ManualResolutionItem, error)
	// ListUnalerted returns escalated items whose breach alert has not gone out.
	ListUnalerted(ctx context.Context) ([]models.ManualResolutionItem, error)
	MarkAlerted(ctx context.Context, id uuid.UUID, at time.Time) error
}

type gormResolutionRepo struct {
	db *gorm.DB
}

func NewGormResolutionRepo(db *gorm.DB) ResolutionRepository {
	return &gormResolutionRepo{db: db}
}

func (r *gormResolutionRepo) Create(ctx context.Context, item *models.ManualResolutionItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *gormResolutionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ManualResolutionItem, error) {
	var item models.ManualResolutionItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *gormResolutionRepo) List(ctx context.Context, filter models.ResolutionFilter) ([]models.ManualResolutionItem, error) {
	query := r.db.WithContext(ctx).Model(&models.ManualResolutionItem{})

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	orderBy := "sla_deadline ASC"
	if filter.OrderBy == "created_at" {
		orderBy = "created_at ASC"
	}

	var items []models.ManualResolutionItem
	err := query.Order(orderBy).Find(&items).Error
	return items, err
}

func (r *gormResolutionRepo) MarkInProgress(ctx context.Context, id uuid.UUID, operator string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ManualResolutionItem{}).
		Where("id = ? AND status IN ?", id, []string{models.ResolutionPending, models.ResolutionInProgress}).
		Updates(map[string]interface{}{
			"status":            models.ResolutionInProgress,
			"assigned_operator": operator,
			"updated_at":        time.Now(),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *gormResolutionRepo) MarkResolved(ctx context.Context, id uuid.UUID, operator, notes string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ManualResolutionItem{}).
		Where("id = ? AND status IN ?", id, []string{models.ResolutionPending, models.ResolutionInProgress, models.ResolutionEscalated}).
		Updates(map[string]interface{}{
			"status":            models.ResolutionResolved,
			"assigned_operator": operator,
			"resolution_notes":  notes,
			"resolved_at":       at,
			"updated_at":        time.Now(),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *gormResolutionRepo) MarkEscalated(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ManualResolutionItem{}).
		Where("id = ? AND status = ?", id, models.ResolutionPending).
		Updates(map[string]interface{}{
			"status":     models.ResolutionEscalated,
			"updated_at": time.Now(),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *gormResolutionRepo) ListBreached(ctx context.Context, now time.Time) ([]models.ManualResolutionItem, error) {
	var items []models.ManualResolutionItem
	err := r.db.WithContext(ctx).
		Where("status = ? AND sla_deadline < ?", models.ResolutionPending, now).
		Order("sla_deadline ASC").
		Find(&items).Error
	return items, err
}

func (r *gormResolutionRepo) ListUnalerted(ctx context.Context) ([]models.ManualResolutionItem, error) {
	var items []models.ManualResolutionItem
	err := r.db.WithContext(ctx).
		Where("status = ? AND alerted_at IS NULL", models.ResolutionEscalated).
		Order("sla_deadline ASC").
		Find(&items).Error
	return items, err
}

func (r *gormResolutionRepo) MarkAlerted(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ManualResolutionItem{}).
		Where("id = ?", id).
		Update("alerted_at", at).Error
}
