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

// PlanGenerator produces a structured meal plan from quiz preferences.
type PlanGenerator interface {
	Generate(ctx context.Context, prefs models.PlanPreferences) (*models.GeneratedPlan, error)
}

// HTTPPlanGenerator calls the external content-generation service. Errors
// are classified for the retry policy: timeouts, rate limits and 5xx are
// retryable; auth and quota rejections are not.
type HTTPPlanGenerator struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

func NewHTTPPlanGenerator(baseURL, apiKey string, logger *zap.Logger) *HTTPPlanGenerator {
	return &HTTPPlanGenerator{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 90 * time.Second},
		logger:  logger,
	}
}

func (g *HTTPPlanGenerator) Generate(ctx context.Context, prefs models.PlanPreferences) (*models.GeneratedPlan, error) {
	payload, err := json.Marshal(prefs)
	if err != nil {
		return nil, NewNonRetryable(StageGenerate, fmt.Errorf("marshal preferences: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/plans/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, NewNonRetryable(StageGenerate, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		// Transport failures and deadline hits are transient.
		return nil, NewRetryable(StageGenerate, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var plan models.GeneratedPlan
		if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
			return nil, NewRetryable(StageGenerate, fmt.Errorf("decode generated plan: %w", err))
		}
		return &plan, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewRetryable(StageGenerate, fmt.Errorf("generator rate limited"))
	case resp.StatusCode >= 500:
		return nil, NewRetryable(StageGenerate, fmt.Errorf("generator returned %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, NewNonRetryable(StageGenerate, fmt.Errorf("generator rejected credentials: %d", resp.StatusCode))
	case resp.StatusCode == http.StatusPaymentRequired:
		return nil, NewNonRetryable(StageGenerate, fmt.Errorf("generator quota exceeded"))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		g.logger.Warn("Unexpected generator response",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return nil, NewNonRetryable(StageGenerate, fmt.Errorf("generator returned %d", resp.StatusCode))
	}
}
