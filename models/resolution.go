package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ResolutionPending    = "pending"
	ResolutionInProgress = "in_progress"
	ResolutionResolved   = "resolved"
	ResolutionEscalated  = "escalated"
)

// ManualResolutionItem is one pipeline failure awaiting operator action.
// SLADeadline is computed once at creation and never extended; escalation
// is a status transition, not a deadline change.
type ManualResolutionItem struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	PaymentTransactionID string     `gorm:"type:varchar(128);index;not null" json:"payment_transaction_id"`
	FailureStage         string     `gorm:"type:varchar(20);not null" json:"failure_stage"`
	FailureReason        string     `gorm:"type:text" json:"failure_reason"`
	Status               string     `gorm:"type:varchar(20);not null;index" json:"status"`
	SLADeadline          time.Time  `gorm:"index;not null" json:"sla_deadline"`
	AssignedOperator     *string    `gorm:"type:varchar(128)" json:"assigned_operator,omitempty"`
	ResolutionNotes      *string    `gorm:"type:text" json:"resolution_notes,omitempty"`
	ResolvedAt           *time.Time `json:"resolved_at,omitempty"`
	AlertedAt            *time.Time `json:"alerted_at,omitempty"` // set once the breach alert went out
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type ResolutionFilter struct {
	Status  string
	OrderBy string // "sla_deadline" or "created_at"
}
