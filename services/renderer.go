package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"plan-delivery-service/models"

	"go.uber.org/zap"
)

// PlanRenderer turns a generated plan into the deliverable PDF.
type PlanRenderer interface {
	Render(ctx context.Context, plan *models.GeneratedPlan) ([]byte, error)
}

type HTTPPlanRenderer struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPPlanRenderer(baseURL string, logger *zap.Logger) *HTTPPlanRenderer {
	return &HTTPPlanRenderer{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

// Render validates the plan structure before calling the render service.
// Structural failures are non-retryable: re-rendering bad content cannot
// succeed, the caller has to regenerate instead.
func (r *HTTPPlanRenderer) Render(ctx context.Context, plan *models.GeneratedPlan) ([]byte, error) {
	if err := validatePlan(plan); err != nil {
		return nil, NewNonRetryable(StageRender, err)
	}

	payload, err := json.Marshal(plan)
	if err != nil {
		return nil, NewNonRetryable(StageRender, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/render/pdf", bytes.NewReader(payload))
	if err != nil {
		return nil, NewNonRetryable(StageRender, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, NewRetryable(StageRender, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		doc, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, NewRetryable(StageRender, err)
		}
		if len(doc) == 0 {
			return nil, NewRetryable(StageRender, fmt.Errorf("renderer returned empty document"))
		}
		return doc, nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, NewNonRetryable(StageRender, fmt.Errorf("renderer rejected plan structure: %s", body))
	case resp.StatusCode >= 500:
		return nil, NewRetryable(StageRender, fmt.Errorf("renderer returned %d", resp.StatusCode))
	default:
		return nil, NewNonRetryable(StageRender, fmt.Errorf("renderer returned %d", resp.StatusCode))
	}
}

func validatePlan(plan *models.GeneratedPlan) error {
	if plan == nil || plan.Title == "" {
		return fmt.Errorf("generated plan missing title")
	}
	if len(plan.Days) == 0 {
		return fmt.Errorf("generated plan has no days")
	}
	for _, day := range plan.Days {
		if len(day.Meals) == 0 {
			return fmt.Errorf("day %d has no meals", day.Day)
		}
		for _, meal := range day.Meals {
			if meal.Name == "" || meal.Calories <= 0 {
				return fmt.Errorf("day %d has an incomplete meal", day.Day)
			}
		}
	}
	return nil
}
