package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/types"
)

type ObjectRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, obj *types.Object) error
	GetByID(ctx context.Context, tx *gorm.DB, workspaceID, id uuid.UUID) (*types.Object, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, ids []uuid.UUID) ([]*types.Object, error)
	GetByURN(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, urn string) (*types.Object, error)
	ListByWorkspace(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) ([]*types.Object, error)
	ListByType(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, objectType string) ([]*types.Object, error)
	Update(ctx context.Context, tx *gorm.DB, obj *types.Object) error
	SetParent(ctx context.Context, tx *gorm.DB, workspaceID, id uuid.UUID, parentID *uuid.UUID) error
}

type objectRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewObjectRepo(db *gorm.DB, baseLog *logger.Logger) ObjectRepo {
	return &objectRepo{db: db, log: baseLog.With("repo", "ObjectRepo")}
}

func (r *objectRepo) Upsert(ctx context.Context, tx *gorm.DB, obj *types.Object) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if obj.ID == uuid.Nil {
		obj.ID = uuid.New()
	}
	now := time.Now().UTC()
	if obj.CreatedAt.IsZero() {
		obj.CreatedAt = now
	}
	obj.UpdatedAt = now
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "workspace_id"}, {Name: "urn"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "object_type", "granularity", "parent_id", "visible", "metadata", "updated_at",
			}),
		}).
		Create(obj).Error
}

func (r *objectRepo) GetByID(ctx context.Context, tx *gorm.DB, workspaceID, id uuid.UUID) (*types.Object, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Object
	err := transaction.WithContext(ctx).
		Where("workspace_id = ? AND id = ?", workspaceID, id).
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

func (r *objectRepo) GetByIDs(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, ids []uuid.UUID) ([]*types.Object, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []*types.Object
	err := transaction.WithContext(ctx).
		Where("workspace_id = ? AND id IN ?", workspaceID, ids).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *objectRepo) GetByURN(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, urn string) (*types.Object, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.Object
	err := transaction.WithContext(ctx).
		Where("workspace_id = ? AND urn = ?", workspaceID, urn).
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

func (r *objectRepo) ListByWorkspace(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) ([]*types.Object, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Object
	err := transaction.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *objectRepo) ListByType(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, objectType string) ([]*types.Object, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Object
	err := transaction.WithContext(ctx).
		Where("workspace_id = ? AND object_type = ?", workspaceID, objectType).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *objectRepo) Update(ctx context.Context, tx *gorm.DB, obj *types.Object) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	obj.UpdatedAt = time.Now().UTC()
	return transaction.WithContext(ctx).Save(obj).Error
}

func (r *objectRepo) SetParent(ctx context.Context, tx *gorm.DB, workspaceID, id uuid.UUID, parentID *uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Object{}).
		Where("workspace_id = ? AND id = ?", workspaceID, id).
		Updates(map[string]interface{}{
			"parent_id":  parentID,
			"updated_at": time.Now().UTC(),
		}).Error
}
