package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/types"
)

type GraphStatRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, stats []*types.GraphStat) error
	ListByGenerationLevel(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, generationVersion int, level string) ([]*types.GraphStat, error)
}

type graphStatRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGraphStatRepo(db *gorm.DB, baseLog *logger.Logger) GraphStatRepo {
	return &graphStatRepo{db: db, log: baseLog.With("repo", "GraphStatRepo")}
}

func (r *graphStatRepo) CreateBatch(ctx context.Context, tx *gorm.DB, stats []*types.GraphStat) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(stats) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, s := range stats {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
	}
	return transaction.WithContext(ctx).CreateInBatches(stats, 200).Error
}

func (r *graphStatRepo) ListByGenerationLevel(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, generationVersion int, level string) ([]*types.GraphStat, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.GraphStat
	err := transaction.WithContext(ctx).
		Where("workspace_id = ? AND generation_version = ? AND level = ?", workspaceID, generationVersion, level).
		Order("out_degree DESC, in_degree DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
