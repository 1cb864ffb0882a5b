package models

import "time"

// Provider webhook event types. An empty type means a confirmed payment,
// which older provider versions send without the field.
const (
	PaymentEventSucceeded   = "payment.succeeded"
	PaymentEventRefunded    = "payment.refunded"
	PaymentEventChargedBack = "payment.charged_back"
)

// PaymentEvent is the provider webhook payload.
type PaymentEvent struct {
	Type          string          `json:"type,omitempty"`
	TransactionID string          `json:"transaction_id"`
	CustomerEmail string          `json:"customer_email"`
	Amount        int             `json:"amount"`
	Currency      string          `json:"currency"`
	Method        string          `json:"method"`
	Preferences   PlanPreferences `json:"preferences"`
}

// PlanPreferences is the quiz result the customer paid for: the input to
// plan generation.
type PlanPreferences struct {
	Goal           string   `json:"goal"` // e.g. "weight_loss", "maintenance"
	CaloriesPerDay int      `json:"calories_per_day"`
	MealsPerDay    int      `json:"meals_per_day"`
	DurationDays   int      `json:"duration_days"`
	Allergies      []string `json:"allergies,omitempty"`
	DislikedFoods  []string `json:"disliked_foods,omitempty"`
}

// GeneratedPlan is the structured output of the content-generation service.
type GeneratedPlan struct {
	Title   string    `json:"title"`
	Summary string    `json:"summary"`
	Days    []PlanDay `json:"days"`
}

type PlanDay struct {
	Day           int        `json:"day"`
	TotalCalories int        `json:"total_calories"`
	Meals         []PlanMeal `json:"meals"`
}

type PlanMeal struct {
	Name         string   `json:"name"`
	Calories     int      `json:"calories"`
	Ingredients  []string `json:"ingredients"`
	Instructions string   `json:"instructions"`
}

// Delivery lifecycle event types published to Kafka.
const (
	EventPlanDelivered      = "plan_delivered"
	EventPlanDeliveryFailed = "plan_delivery_failed"
)

type DeliveryEvent struct {
	Type          string    `json:"type"`
	TransactionID string    `json:"transaction_id"`
	CustomerEmail string    `json:"customer_email"`
	PlanKey       string    `json:"plan_key,omitempty"`
	FailureStage  string    `json:"failure_stage,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
