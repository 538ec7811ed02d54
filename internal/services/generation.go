package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/archmap/archmap-backend/internal/apperr"
	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/repos"
	"github.com/archmap/archmap-backend/internal/types"
)

// GenerationService owns the roll-up generation lifecycle
// (BUILDING → ACTIVE → ARCHIVED). At most one generation is ACTIVE per
// workspace; activation archives the predecessor in the same transaction.
type GenerationService interface {
	GetActive(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) (*types.Generation, error)
	CreateNew(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) (*types.Generation, error)
	Activate(ctx context.Context, workspaceID uuid.UUID, version int) error
}

type generationService struct {
	db      *gorm.DB
	log     *logger.Logger
	genRepo repos.GenerationRepo
}

func NewGenerationService(db *gorm.DB, baseLog *logger.Logger, genRepo repos.GenerationRepo) GenerationService {
	return &generationService{
		db:      db,
		log:     baseLog.With("service", "GenerationService"),
		genRepo: genRepo,
	}
}

func (s *generationService) GetActive(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) (*types.Generation, error) {
	return s.genRepo.GetActive(ctx, tx, workspaceID)
}

func (s *generationService) CreateNew(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) (*types.Generation, error) {
	transaction := tx
	if transaction == nil {
		transaction = s.db
	}

	active, err := s.genRepo.GetActive(ctx, transaction, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("load active generation: %w", err)
	}
	next := 1
	if active != nil {
		next = active.Version + 1
	}
	// Abandoned BUILDING generations may sit above the active version;
	// never reuse their numbers.
	maxVersion, err := s.genRepo.MaxVersion(ctx, transaction, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("load max generation version: %w", err)
	}
	if maxVersion >= next {
		next = maxVersion + 1
	}

	gen := &types.Generation{
		WorkspaceID: workspaceID,
		Version:     next,
		Status:      types.GenerationBuilding,
	}
	if err := s.genRepo.Create(ctx, transaction, gen); err != nil {
		return nil, fmt.Errorf("create generation: %w", err)
	}
	s.log.Debug("Generation created", "workspace_id", workspaceID, "version", next)
	return gen, nil
}

// Activate archives the prior ACTIVE generation and promotes the target in
// one transaction, so readers never observe zero or two ACTIVE generations.
func (s *generationService) Activate(ctx context.Context, workspaceID uuid.UUID, version int) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.genRepo.ArchiveActive(ctx, tx, workspaceID); err != nil {
			return fmt.Errorf("archive active generation: %w", err)
		}
		promoted, err := s.genRepo.Promote(ctx, tx, workspaceID, version)
		if err != nil {
			return fmt.Errorf("promote generation: %w", err)
		}
		if !promoted {
			return fmt.Errorf("generation v%d not in BUILDING: %w", version, apperr.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("Generation activated", "workspace_id", workspaceID, "version", version)
	return nil
}
