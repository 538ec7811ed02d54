package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Change request lifecycle. PENDING is the only non-terminal state.
const (
	ChangeStatusPending  = "PENDING"
	ChangeStatusApproved = "APPROVED"
	ChangeStatusRejected = "REJECTED"
)

// Change request kinds.
const (
	RequestRelationUpsert = "RELATION_UPSERT"
	RequestRelationDelete = "RELATION_DELETE"
	RequestObjectPatch    = "OBJECT_PATCH"
)

// ChangeRequest is a proposed mutation awaiting review. The payload stays
// untyped jsonb until the payload contract parses it; it is re-parsed at
// approval time rather than trusting create-time validation.
type ChangeRequest struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	WorkspaceID uuid.UUID      `gorm:"type:uuid;not null;index" json:"workspace_id"`
	Workspace   *Workspace     `gorm:"constraint:OnDelete:CASCADE;foreignKey:WorkspaceID;references:ID" json:"workspace,omitempty"`
	RequestType string         `gorm:"column:request_type;not null;index" json:"request_type"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	Status      string         `gorm:"column:status;not null;default:'PENDING';index" json:"status"`
	RequestedBy string         `gorm:"column:requested_by;not null" json:"requested_by"`
	ReviewedBy  *string        `gorm:"column:reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time     `gorm:"column:reviewed_at" json:"reviewed_at,omitempty"`
	Reason      string         `gorm:"column:reason" json:"reason"`
	CreatedAt   time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (ChangeRequest) TableName() string { return "change_request" }
