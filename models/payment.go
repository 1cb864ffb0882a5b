package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment lifecycle statuses. The happy path walks the list in order;
// "failed" is reachable from any in-flight status, "refunded" and
// "charged_back" only from "delivered" or "failed".
const (
	StatusReceived    = "received"
	StatusLocked      = "locked"
	StatusGenerating  = "generating"
	StatusRendering   = "rendering"
	StatusStored      = "stored"
	StatusDelivered   = "delivered"
	StatusFailed      = "failed"
	StatusRefunded    = "refunded"
	StatusChargedBack = "charged_back"
)

// TerminalStatuses marks statuses that end processing for a transaction.
// A webhook replay against any of these is acknowledged without side effects.
var TerminalStatuses = map[string]bool{
	StatusDelivered:   true,
	StatusFailed:      true,
	StatusRefunded:    true,
	StatusChargedBack: true,
}

type Payment struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID string     `gorm:"type:varchar(128);uniqueIndex;not null" json:"transaction_id"`
	CustomerEmail string     `gorm:"type:varchar(320);index;not null" json:"customer_email"`
	Amount        int        `gorm:"not null" json:"amount"` // smallest currency unit
	Currency      string     `gorm:"type:varchar(10);not null" json:"currency"`
	Method        string     `gorm:"type:varchar(32)" json:"method"`
	Status        string     `gorm:"type:varchar(20);not null;index" json:"status"`
	OrderID       *uuid.UUID `gorm:"type:uuid;index" json:"order_id,omitempty"`
	Preferences   string     `gorm:"type:jsonb" json:"-"` // quiz answers captured from the webhook payload
	PlanKey       *string    `gorm:"type:varchar(512)" json:"plan_key,omitempty"`
	FailureStage  *string    `gorm:"type:varchar(20)" json:"failure_stage,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
