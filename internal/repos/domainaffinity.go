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

type DomainAffinityRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, aff *types.DomainAffinity) error
	ListByWorkspace(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) ([]*types.DomainAffinity, error)
	ListByObject(ctx context.Context, tx *gorm.DB, workspaceID, objectID uuid.UUID) ([]*types.DomainAffinity, error)
}

type domainAffinityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDomainAffinityRepo(db *gorm.DB, baseLog *logger.Logger) DomainAffinityRepo {
	return &domainAffinityRepo{db: db, log: baseLog.With("repo", "DomainAffinityRepo")}
}

func (r *domainAffinityRepo) Upsert(ctx context.Context, tx *gorm.DB, aff *types.DomainAffinity) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if aff.ID == uuid.Nil {
		aff.ID = uuid.New()
	}
	now := time.Now().UTC()
	if aff.CreatedAt.IsZero() {
		aff.CreatedAt = now
	}
	aff.UpdatedAt = now
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "object_id"}, {Name: "domain_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"affinity", "updated_at"}),
		}).
		Create(aff).Error
}

func (r *domainAffinityRepo) ListByWorkspace(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) ([]*types.DomainAffinity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.DomainAffinity
	err := transaction.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *domainAffinityRepo) ListByObject(ctx context.Context, tx *gorm.DB, workspaceID, objectID uuid.UUID) ([]*types.DomainAffinity, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.DomainAffinity
	err := transaction.WithContext(ctx).
		Where("workspace_id = ? AND object_id = ?", workspaceID, objectID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
