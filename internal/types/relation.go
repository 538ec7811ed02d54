package types

import (
	"time"

	"github.com/google/uuid"
)

// Canonical relation types.
const (
	RelationCall     = "call"
	RelationExpose   = "expose"
	RelationRead     = "read"
	RelationWrite    = "write"
	RelationProduce  = "produce"
	RelationConsume  = "consume"
	RelationDependOn = "depend_on"
)

// Relation sources. SourceRollup never appears on a canonical row; it is
// reserved for roll-up edge provenance.
const (
	SourceManual    = "manual"
	SourceScan      = "scan"
	SourceInference = "inference"
	SourceRollup    = "rollup"
)

// Relation is an approved directed edge between two objects. At most one
// canonical row exists per (workspace, relation_type, subject, target,
// is_derived); later upserts overwrite in place.
type Relation struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	WorkspaceID  uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:uq_relation_tuple" json:"workspace_id"`
	Workspace    *Workspace `gorm:"constraint:OnDelete:CASCADE;foreignKey:WorkspaceID;references:ID" json:"workspace,omitempty"`
	RelationType string     `gorm:"column:relation_type;not null;uniqueIndex:uq_relation_tuple" json:"relation_type"`
	SubjectID    uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:uq_relation_tuple" json:"subject_id"`
	Subject      *Object    `gorm:"constraint:OnDelete:CASCADE;foreignKey:SubjectID;references:ID" json:"subject,omitempty"`
	TargetID     uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:uq_relation_tuple" json:"target_id"`
	Target       *Object    `gorm:"constraint:OnDelete:CASCADE;foreignKey:TargetID;references:ID" json:"target,omitempty"`
	Source       string     `gorm:"column:source;not null;default:'manual'" json:"source"`
	Confidence   *float64   `gorm:"column:confidence" json:"confidence,omitempty"`
	Evidence     string     `gorm:"column:evidence" json:"evidence"`
	IsDerived    bool       `gorm:"column:is_derived;not null;default:false;uniqueIndex:uq_relation_tuple" json:"is_derived"`
	Approved     bool       `gorm:"column:approved;not null;default:false" json:"approved"`
	CreatedAt    time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (Relation) TableName() string { return "relation" }
