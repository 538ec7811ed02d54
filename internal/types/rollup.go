package types

import (
	"time"

	"github.com/google/uuid"
)

// Generation lifecycle. BUILDING generations are invisible to queries;
// at most one ACTIVE generation exists per workspace.
const (
	GenerationBuilding = "BUILDING"
	GenerationActive   = "ACTIVE"
	GenerationArchived = "ARCHIVED"
)

// Roll-up levels.
const (
	LevelServiceToService  = "SERVICE_TO_SERVICE"
	LevelServiceToDatabase = "SERVICE_TO_DATABASE"
	LevelServiceToBroker   = "SERVICE_TO_BROKER"
	LevelDomainToDomain    = "DOMAIN_TO_DOMAIN"
)

type Generation struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	WorkspaceID uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:uq_generation_ws_version" json:"workspace_id"`
	Workspace   *Workspace `gorm:"constraint:OnDelete:CASCADE;foreignKey:WorkspaceID;references:ID" json:"workspace,omitempty"`
	Version     int        `gorm:"column:version;not null;uniqueIndex:uq_generation_ws_version" json:"version"`
	Status      string     `gorm:"column:status;not null;default:'BUILDING';index" json:"status"`
	BuiltAt     *time.Time `gorm:"column:built_at" json:"built_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (Generation) TableName() string { return "generation" }

// RollupEdge is a derived, weighted edge at one aggregation level. Edges are
// written once under a BUILDING generation and never mutated afterwards.
type RollupEdge struct {
	ID                uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	WorkspaceID       uuid.UUID `gorm:"type:uuid;not null;index" json:"workspace_id"`
	GenerationVersion int       `gorm:"column:generation_version;not null;index:idx_rollup_ws_gen_level" json:"generation_version"`
	Level             string    `gorm:"column:level;not null;index:idx_rollup_ws_gen_level" json:"level"`
	RelationType      string    `gorm:"column:relation_type;not null" json:"relation_type"`
	SubjectID         uuid.UUID `gorm:"type:uuid;not null;index" json:"subject_id"`
	TargetID          uuid.UUID `gorm:"type:uuid;not null;index" json:"target_id"`
	EdgeWeight        int       `gorm:"column:edge_weight;not null" json:"edge_weight"`
	Confidence        *float64  `gorm:"column:confidence" json:"confidence,omitempty"`
	CreatedAt         time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (RollupEdge) TableName() string { return "rollup_edge" }

// GraphStat holds per-node degree counts for one roll-up level of one
// generation, for hub detection by downstream consumers.
type GraphStat struct {
	ID                uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	WorkspaceID       uuid.UUID `gorm:"type:uuid;not null;index" json:"workspace_id"`
	GenerationVersion int       `gorm:"column:generation_version;not null;index" json:"generation_version"`
	Level             string    `gorm:"column:level;not null" json:"level"`
	ObjectID          uuid.UUID `gorm:"type:uuid;not null;index" json:"object_id"`
	InDegree          int       `gorm:"column:in_degree;not null;default:0" json:"in_degree"`
	OutDegree         int       `gorm:"column:out_degree;not null;default:0" json:"out_degree"`
	CreatedAt         time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (GraphStat) TableName() string { return "graph_stat" }
