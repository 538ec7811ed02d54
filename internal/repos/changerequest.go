package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/types"
)

type ChangeRequestRepo interface {
	Create(ctx context.Context, tx *gorm.DB, req *types.ChangeRequest) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ChangeRequest, error)
	List(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, status string, limit int) ([]*types.ChangeRequest, error)
	ListPendingIDs(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, excludeIDs []uuid.UUID) ([]uuid.UUID, error)
	// MarkProcessed flips a PENDING row to a terminal status. Rows already
	// processed are left untouched; the bool reports whether the flip landed.
	MarkProcessed(ctx context.Context, tx *gorm.DB, id uuid.UUID, status, reviewedBy, reason string) (bool, error)
}

type changeRequestRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChangeRequestRepo(db *gorm.DB, baseLog *logger.Logger) ChangeRequestRepo {
	return &changeRequestRepo{db: db, log: baseLog.With("repo", "ChangeRequestRepo")}
}

func (r *changeRequestRepo) Create(ctx context.Context, tx *gorm.DB, req *types.ChangeRequest) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = types.ChangeStatusPending
	}
	return transaction.WithContext(ctx).Create(req).Error
}

func (r *changeRequestRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ChangeRequest, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.ChangeRequest
	err := transaction.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *changeRequestRepo) List(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, status string, limit int) ([]*types.ChangeRequest, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at ASC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []*types.ChangeRequest
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *changeRequestRepo) ListPendingIDs(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, excludeIDs []uuid.UUID) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).
		Model(&types.ChangeRequest{}).
		Where("workspace_id = ? AND status = ?", workspaceID, types.ChangeStatusPending).
		Order("created_at ASC")
	if len(excludeIDs) > 0 {
		q = q.Where("id NOT IN ?", excludeIDs)
	}
	var ids []uuid.UUID
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *changeRequestRepo) MarkProcessed(ctx context.Context, tx *gorm.DB, id uuid.UUID, status, reviewedBy, reason string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	res := transaction.WithContext(ctx).
		Model(&types.ChangeRequest{}).
		Where("id = ? AND status = ?", id, types.ChangeStatusPending).
		Updates(map[string]interface{}{
			"status":      status,
			"reviewed_by": reviewedBy,
			"reviewed_at": now,
			"reason":      reason,
			"updated_at":  now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
