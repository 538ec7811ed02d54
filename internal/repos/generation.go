package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/types"
)

type GenerationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, gen *types.Generation) error
	GetActive(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) (*types.Generation, error)
	GetByVersion(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, version int) (*types.Generation, error)
	MaxVersion(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) (int, error)
	// ArchiveActive demotes every ACTIVE generation of the workspace.
	ArchiveActive(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) error
	// Promote flips one BUILDING generation to ACTIVE with a build timestamp.
	Promote(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, version int) (bool, error)
}

type generationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGenerationRepo(db *gorm.DB, baseLog *logger.Logger) GenerationRepo {
	return &generationRepo{db: db, log: baseLog.With("repo", "GenerationRepo")}
}

func (r *generationRepo) Create(ctx context.Context, tx *gorm.DB, gen *types.Generation) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if gen.ID == uuid.Nil {
		gen.ID = uuid.New()
	}
	now := time.Now().UTC()
	if gen.CreatedAt.IsZero() {
		gen.CreatedAt = now
	}
	gen.UpdatedAt = now
	if gen.Status == "" {
		gen.Status = types.GenerationBuilding
	}
	return transaction.WithContext(ctx).Create(gen).Error
}

func (r *generationRepo) GetActive(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) (*types.Generation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Generation
	err := transaction.WithContext(ctx).
		Where("workspace_id = ? AND status = ?", workspaceID, types.GenerationActive).
		Order("version DESC").
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *generationRepo) GetByVersion(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, version int) (*types.Generation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Generation
	err := transaction.WithContext(ctx).
		Where("workspace_id = ? AND version = ?", workspaceID, version).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *generationRepo) MaxVersion(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) (int, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var max *int
	err := transaction.WithContext(ctx).
		Model(&types.Generation{}).
		Where("workspace_id = ?", workspaceID).
		Select("MAX(version)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (r *generationRepo) ArchiveActive(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Generation{}).
		Where("workspace_id = ? AND status = ?", workspaceID, types.GenerationActive).
		Updates(map[string]interface{}{
			"status":     types.GenerationArchived,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *generationRepo) Promote(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, version int) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	res := transaction.WithContext(ctx).
		Model(&types.Generation{}).
		Where("workspace_id = ? AND version = ? AND status = ?", workspaceID, version, types.GenerationBuilding).
		Updates(map[string]interface{}{
			"status":     types.GenerationActive,
			"built_at":   now,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
