package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/types"
)

type WorkspaceRepo interface {
	Create(ctx context.Context, tx *gorm.DB, ws *types.Workspace) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Workspace, error)
	GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.Workspace, error)
}

type workspaceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkspaceRepo(db *gorm.DB, baseLog *logger.Logger) WorkspaceRepo {
	return &workspaceRepo{db: db, log: baseLog.With("repo", "WorkspaceRepo")}
}

func (r *workspaceRepo) Create(ctx context.Context, tx *gorm.DB, ws *types.Workspace) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if ws.ID == uuid.Nil {
		ws.ID = uuid.New()
	}
	return transaction.WithContext(ctx).Create(ws).Error
}

func (r *workspaceRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Workspace, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Workspace
	err := transaction.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *workspaceRepo) GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*types.Workspace, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Workspace
	err := transaction.WithContext(ctx).Where("slug = ?", slug).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}
