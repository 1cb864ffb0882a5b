package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"plan-delivery-service/controllers"
	"plan-delivery-service/models"
	"plan-delivery-service/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ---- in-memory resolution repository ----

type memResolutionRepo struct {
	items map[uuid.UUID]*models.ManualResolutionItem
}

func newMemResolutionRepo() *memResolutionRepo {
	return &memResolutionRepo{items: make(map[uuid.UUID]*models.ManualResolutionItem)}
}

func (r *memResolutionRepo) Create(_ context.Context, item *models.ManualResolutionItem) error {
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *memResolutionRepo) GetByID(_ context.Context, id uuid.UUID) (*models.ManualResolutionItem, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *memResolutionRepo) List(_ context.Context, filter models.ResolutionFilter) ([]models.ManualResolutionItem, error) {
	var out []models.ManualResolutionItem
	for _, item := range r.items {
		if filter.Status == "" || item.Status == filter.Status {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (r *memResolutionRepo) MarkInProgress(_ context.Context, id uuid.UUID, operator string) (bool, error) {
	item, ok := r.items[id]
	if !ok || (item.Status != models.ResolutionPending && item.Status != models.ResolutionInProgress) {
		return false, nil
	}
	item.Status = models.ResolutionInProgress
	item.AssignedOperator = &operator
	return true, nil
}

func (r *memResolutionRepo) MarkResolved(_ context.Context, id uuid.UUID, operator, notes string, at time.Time) (bool, error) {
	item, ok := r.items[id]
	if !ok || item.Status == models.ResolutionResolved {
		return false, nil
	}
	item.Status = models.ResolutionResolved
	item.AssignedOperator = &operator
	item.ResolutionNotes = &notes
	item.ResolvedAt = &at
	return true, nil
}

func (r *memResolutionRepo) MarkEscalated(_ context.Context, id uuid.UUID) (bool, error) {
	item, ok := r.items[id]
	if !ok || item.Status != models.ResolutionPending {
		return false, nil
	}
	item.Status = models.ResolutionEscalated
	return true, nil
}

func (r *memResolutionRepo) ListBreached(_ context.Context, now time.Time) ([]models.ManualResolutionItem, error) {
	return nil, nil
}

func (r *memResolutionRepo) ListUnalerted(_ context.Context) ([]models.ManualResolutionItem, error) {
	return nil, nil
}

func (r *memResolutionRepo) MarkAlerted(_ context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

// ---- helpers ----

func setupResolutionRouter(repo *memResolutionRepo) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()
	svc := services.NewResolutionService(repo, 4*time.Hour, logger)
	rc := &controllers.ResolutionController{Service: svc, Logger: logger}

	r := gin.New()
	r.GET("/admin/resolutions", rc.List)
	r.POST("/admin/resolutions/:id/assign", rc.Assign)
	r.POST("/admin/resolutions/:id/resolve", rc.Resolve)
	return r
}

func pendingItem(txnID string) *models.ManualResolutionItem {
	now := time.Now()
	return &models.ManualResolutionItem{
		ID:                   uuid.New(),
		PaymentTransactionID: txnID,
		FailureStage:         "deliver",
		FailureReason:        "smtp down",
		Status:               models.ResolutionPending,
		SLADeadline:          now.Add(4 * time.Hour),
		CreatedAt:            now,
	}
}

// ---- tests ----

func TestListResolutions_FilterByStatus(t *testing.T) {
	repo := newMemResolutionRepo()
	a := pendingItem("txn_001")
	b := pendingItem("txn_002")
	b.Status = models.ResolutionResolved
	_ = repo.Create(context.Background(), a)
	_ = repo.Create(context.Background(), b)

	r := setupResolutionRouter(repo)
	req := httptest.NewRequest(http.MethodGet, "/admin/resolutions?status=pending", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Items []models.ManualResolutionItem `json:"items"`
		Count int                           `json:"count"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "txn_001", resp.Items[0].PaymentTransactionID)
}

func TestResolveEndpoint_Success(t *testing.T) {
	repo := newMemResolutionRepo()
	item := pendingItem("txn_001")
	_ = repo.Create(context.Background(), item)

	r := setupResolutionRouter(repo)
	body := []byte(`{"operator":"ops@example.com","notes":"resent manually"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/resolutions/"+item.ID.String()+"/resolve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	got, _ := repo.GetByID(context.Background(), item.ID)
	assert.Equal(t, models.ResolutionResolved, got.Status)
}

func TestResolveEndpoint_AlreadyResolvedConflicts(t *testing.T) {
	repo := newMemResolutionRepo()
	item := pendingItem("txn_001")
	item.Status = models.ResolutionResolved
	now := time.Now()
	item.ResolvedAt = &now
	_ = repo.Create(context.Background(), item)

	r := setupResolutionRouter(repo)
	body := []byte(`{"operator":"ops@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/resolutions/"+item.ID.String()+"/resolve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestResolveEndpoint_UnknownItem(t *testing.T) {
	r := setupResolutionRouter(newMemResolutionRepo())
	body := []byte(`{"operator":"ops@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/resolutions/"+uuid.NewString()+"/resolve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResolveEndpoint_BadID(t *testing.T) {
	r := setupResolutionRouter(newMemResolutionRepo())
	body := []byte(`{"operator":"ops@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/resolutions/not-a-uuid/resolve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssignEndpoint_Success(t *testing.T) {
	repo := newMemResolutionRepo()
	item := pendingItem("txn_001")
	_ = repo.Create(context.Background(), item)

	r := setupResolutionRouter(repo)
	body := []byte(`{"operator":"ops@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/admin/resolutions/"+item.ID.String()+"/assign", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	got, _ := repo.GetByID(context.Background(), item.ID)
	assert.Equal(t, models.ResolutionInProgress, got.Status)
	assert.Equal(t, "ops@example.com", *got.AssignedOperator)
}
