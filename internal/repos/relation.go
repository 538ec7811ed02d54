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

type RelationRepo interface {
	// Upsert honors the canonical uniqueness invariant: a second write for
	// the same (workspace, type, subject, target, is_derived) tuple
	// overwrites source, confidence, evidence and the approval flag.
	Upsert(ctx context.Context, tx *gorm.DB, rel *types.Relation) error
	DeleteCanonical(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, relationType string, subjectID, targetID uuid.UUID) (bool, error)
	ListCanonical(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) ([]*types.Relation, error)
	ListCanonicalByTypes(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, relationTypes []string) ([]*types.Relation, error)
	ListTargeting(ctx context.Context, tx *gorm.DB, workspaceID, targetID uuid.UUID) ([]*types.Relation, error)
	CountByWorkspace(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) (int64, error)
}

type relationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRelationRepo(db *gorm.DB, baseLog *logger.Logger) RelationRepo {
	return &relationRepo{db: db, log: baseLog.With("repo", "RelationRepo")}
}

func (r *relationRepo) Upsert(ctx context.Context, tx *gorm.DB, rel *types.Relation) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if rel.ID == uuid.Nil {
		rel.ID = uuid.New()
	}
	now := time.Now().UTC()
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = now
	}
	rel.UpdatedAt = now
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "workspace_id"}, {Name: "relation_type"},
				{Name: "subject_id"}, {Name: "target_id"}, {Name: "is_derived"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"source", "confidence", "evidence", "approved", "updated_at",
			}),
		}).
		Create(rel).Error
}

func (r *relationRepo) DeleteCanonical(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, relationType string, subjectID, targetID uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Where("workspace_id = ? AND relation_type = ? AND subject_id = ? AND target_id = ? AND is_derived = ?",
			workspaceID, relationType, subjectID, targetID, false).
		Delete(&types.Relation{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *relationRepo) ListCanonical(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) ([]*types.Relation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Relation
	err := transaction.WithContext(ctx).
		Where("workspace_id = ? AND is_derived = ?", workspaceID, false).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *relationRepo) ListCanonicalByTypes(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, relationTypes []string) ([]*types.Relation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(relationTypes) == 0 {
		return nil, nil
	}
	var rows []*types.Relation
	err := transaction.WithContext(ctx).
		Where("workspace_id = ? AND is_derived = ? AND relation_type IN ?", workspaceID, false, relationTypes).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *relationRepo) ListTargeting(ctx context.Context, tx *gorm.DB, workspaceID, targetID uuid.UUID) ([]*types.Relation, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.Relation
	err := transaction.WithContext(ctx).
		Where("workspace_id = ? AND target_id = ? AND is_derived = ?", workspaceID, targetID, false).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *relationRepo) CountByWorkspace(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Relation{}).
		Where("workspace_id = ? AND is_derived = ?", workspaceID, false).
		Count(&count).Error
	return count, err
}
