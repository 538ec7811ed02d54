package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/types"
)

type RollupEdgeRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, edges []*types.RollupEdge) error
	ListByGenerationLevel(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, generationVersion int, level string) ([]*types.RollupEdge, error)
	ListInbound(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, generationVersion int, targetID uuid.UUID) ([]*types.RollupEdge, error)
}

type rollupEdgeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRollupEdgeRepo(db *gorm.DB, baseLog *logger.Logger) RollupEdgeRepo {
	return &rollupEdgeRepo{db: db, log: baseLog.With("repo", "RollupEdgeRepo")}
}

func (r *rollupEdgeRepo) CreateBatch(ctx context.Context, tx *gorm.DB, edges []*types.RollupEdge) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(edges) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, e := range edges {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
	}
	return transaction.WithContext(ctx).CreateInBatches(edges, 200).Error
}

func (r *rollupEdgeRepo) ListByGenerationLevel(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, generationVersion int, level string) ([]*types.RollupEdge, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.RollupEdge
	err := transaction.WithContext(ctx).
		Where("workspace_id = ? AND generation_version = ? AND level = ?", workspaceID, generationVersion, level).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *rollupEdgeRepo) ListInbound(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, generationVersion int, targetID uuid.UUID) ([]*types.RollupEdge, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.RollupEdge
	err := transaction.WithContext(ctx).
		Where("workspace_id = ? AND generation_version = ? AND target_id = ?", workspaceID, generationVersion, targetID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
