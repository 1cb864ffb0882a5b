package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"plan-delivery-service/models"
	"plan-delivery-service/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMarkResolved_UpdatesEligibleItem(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormResolutionRepo(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "manual_resolution_items"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := repo.MarkResolved(context.Background(), uuid.New(), "ops@example.com", "resent", time.Now())
	assert.NoError(t, err)
	assert.True(t, updated)
}

func TestMarkResolved_AlreadyResolvedMatchesNoRow(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormResolutionRepo(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "manual_resolution_items"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	updated, err := repo.MarkResolved(context.Background(), uuid.New(), "ops@example.com", "resent", time.Now())
	assert.NoError(t, err)
	assert.False(t, updated)
}

func TestMarkEscalated_OnlyTouchesPendingRows(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormResolutionRepo(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "manual_resolution_items"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	updated, err := repo.MarkEscalated(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.False(t, updated)
}

func TestListBreached_ReturnsPendingPastDeadline(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormResolutionRepo(gormDB)

	id := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "payment_transaction_id", "failure_stage", "failure_reason", "status", "sla_deadline", "created_at", "updated_at"}).
		AddRow(id, "txn_001", "generate", "quota exceeded", models.ResolutionPending, now.Add(-time.Hour), now.Add(-5*time.Hour), now)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "manual_resolution_items"`)).
		WithArgs(models.ResolutionPending, sqlmock.AnyArg()).
		WillReturnRows(rows)

	items, err := repo.ListBreached(context.Background(), now)
	assert.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, "txn_001", items[0].PaymentTransactionID)
}

func TestListUnalerted_ReturnsEscalatedWithoutAlert(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormResolutionRepo(gormDB)

	id := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "payment_transaction_id", "failure_stage", "failure_reason", "status", "sla_deadline", "created_at", "updated_at"}).
		AddRow(id, "txn_001", "deliver", "smtp down", models.ResolutionEscalated, now.Add(-time.Hour), now.Add(-5*time.Hour), now)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "manual_resolution_items"`)).
		WithArgs(models.ResolutionEscalated).
		WillReturnRows(rows)

	items, err := repo.ListUnalerted(context.Background())
	assert.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Nil(t, items[0].AlertedAt)
}
