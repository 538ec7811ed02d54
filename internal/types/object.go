package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Object granularity. A COMPOUND object owns ATOMIC children, e.g. a service
// owns its endpoints and a database owns its tables.
const (
	GranularityCompound = "COMPOUND"
	GranularityAtomic   = "ATOMIC"
)

// Known object types. The column is free-form so new kinds can arrive
// without a migration; these are the ones the roll-up builder cares about.
const (
	ObjectTypeService  = "service"
	ObjectTypeEndpoint = "endpoint"
	ObjectTypeDatabase = "database"
	ObjectTypeTable    = "table"
	ObjectTypeBroker   = "broker"
	ObjectTypeTopic    = "topic"
	ObjectTypeDomain   = "domain"
)

type Object struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	WorkspaceID uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:uq_object_ws_urn" json:"workspace_id"`
	Workspace   *Workspace     `gorm:"constraint:OnDelete:CASCADE;foreignKey:WorkspaceID;references:ID" json:"workspace,omitempty"`
	URN         string         `gorm:"column:urn;not null;uniqueIndex:uq_object_ws_urn" json:"urn"`
	Name        string         `gorm:"column:name;not null" json:"name"`
	ObjectType  string         `gorm:"column:object_type;not null;index" json:"object_type"`
	Granularity string         `gorm:"column:granularity;not null;default:'COMPOUND'" json:"granularity"`
	ParentID    *uuid.UUID     `gorm:"type:uuid;index" json:"parent_id,omitempty"`
	Parent      *Object        `gorm:"constraint:OnDelete:SET NULL;foreignKey:ParentID;references:ID" json:"parent,omitempty"`
	Visible     bool           `gorm:"column:visible;not null;default:true" json:"visible"`
	Metadata    datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (Object) TableName() string { return "object" }

type DomainAffinity struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	WorkspaceID uuid.UUID `gorm:"type:uuid;not null;index" json:"workspace_id"`
	ObjectID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_affinity_obj_domain" json:"object_id"`
	Object      *Object   `gorm:"constraint:OnDelete:CASCADE;foreignKey:ObjectID;references:ID" json:"object,omitempty"`
	DomainID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_affinity_obj_domain" json:"domain_id"`
	Domain      *Object   `gorm:"constraint:OnDelete:CASCADE;foreignKey:DomainID;references:ID" json:"domain,omitempty"`
	Affinity    float64   `gorm:"column:affinity;not null" json:"affinity"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (DomainAffinity) TableName() string { return "domain_affinity" }
