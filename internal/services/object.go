package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/archmap/archmap-backend/internal/apperr"
	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/repos"
	"github.com/archmap/archmap-backend/internal/types"
)

// ObjectService is the object registry: URN resolution plus registration of
// architectural entities and their domain affinities.
type ObjectService interface {
	Register(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, input RegisterObjectInput) (*types.Object, error)
	ResolveURN(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, urn string) (*types.Object, error)
	Get(ctx context.Context, tx *gorm.DB, workspaceID, id uuid.UUID) (*types.Object, error)
	ListByWorkspace(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) ([]*types.Object, error)
	SetParent(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, urn, parentURN string) error
	SetAffinity(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, objectURN, domainURN string, affinity float64) error
}

type RegisterObjectInput struct {
	URN         string
	Name        string
	ObjectType  string
	Granularity string
	ParentURN   string
	Metadata    map[string]interface{}
}

type objectService struct {
	db           *gorm.DB
	log          *logger.Logger
	objectRepo   repos.ObjectRepo
	affinityRepo repos.DomainAffinityRepo
}

func NewObjectService(
	db *gorm.DB,
	baseLog *logger.Logger,
	objectRepo repos.ObjectRepo,
	affinityRepo repos.DomainAffinityRepo,
) ObjectService {
	return &objectService{
		db:           db,
		log:          baseLog.With("service", "ObjectService"),
		objectRepo:   objectRepo,
		affinityRepo: affinityRepo,
	}
}

func (s *objectService) Register(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, input RegisterObjectInput) (*types.Object, error) {
	transaction := tx
	if transaction == nil {
		transaction = s.db
	}
	if input.URN == "" {
		return nil, fmt.Errorf("register object: %w: urn", apperr.ErrInvalidArgument)
	}

	granularity := input.Granularity
	if granularity == "" {
		granularity = types.GranularityCompound
	}
	name := input.Name
	if name == "" {
		name = input.URN
	}

	obj := &types.Object{
		WorkspaceID: workspaceID,
		URN:         input.URN,
		Name:        name,
		ObjectType:  input.ObjectType,
		Granularity: granularity,
		Visible:     true,
	}

	if input.ParentURN != "" {
		parent, err := s.objectRepo.GetByURN(ctx, transaction, workspaceID, input.ParentURN)
		if err != nil {
			return nil, fmt.Errorf("resolve parent urn: %w", err)
		}
		if parent == nil {
			return nil, fmt.Errorf("parent %q: %w", input.ParentURN, apperr.ErrObjectNotFound)
		}
		obj.ParentID = &parent.ID
	}

	if len(input.Metadata) > 0 {
		raw, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		obj.Metadata = datatypes.JSON(raw)
	}

	if err := s.objectRepo.Upsert(ctx, transaction, obj); err != nil {
		s.log.Error("Register object failed", "error", err, "urn", input.URN)
		return nil, fmt.Errorf("upsert object: %w", err)
	}

	// The upsert may have kept an existing row's id; read it back by URN.
	stored, err := s.objectRepo.GetByURN(ctx, transaction, workspaceID, input.URN)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *objectService) ResolveURN(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, urn string) (*types.Object, error) {
	obj, err := s.objectRepo.GetByURN(ctx, tx, workspaceID, urn)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("urn %q: %w", urn, apperr.ErrObjectNotFound)
	}
	return obj, nil
}

func (s *objectService) Get(ctx context.Context, tx *gorm.DB, workspaceID, id uuid.UUID) (*types.Object, error) {
	return s.objectRepo.GetByID(ctx, tx, workspaceID, id)
}

func (s *objectService) ListByWorkspace(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID) ([]*types.Object, error) {
	return s.objectRepo.ListByWorkspace(ctx, tx, workspaceID)
}

func (s *objectService) SetParent(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, urn, parentURN string) error {
	transaction := tx
	if transaction == nil {
		transaction = s.db
	}
	obj, err := s.ResolveURN(ctx, transaction, workspaceID, urn)
	if err != nil {
		return err
	}
	var parentID *uuid.UUID
	if parentURN != "" {
		parent, err := s.ResolveURN(ctx, transaction, workspaceID, parentURN)
		if err != nil {
			return err
		}
		parentID = &parent.ID
	}
	return s.objectRepo.SetParent(ctx, transaction, workspaceID, obj.ID, parentID)
}

func (s *objectService) SetAffinity(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, objectURN, domainURN string, affinity float64) error {
	transaction := tx
	if transaction == nil {
		transaction = s.db
	}
	if affinity < 0 || affinity > 1 {
		return fmt.Errorf("affinity %v out of range: %w", affinity, apperr.ErrInvalidArgument)
	}
	obj, err := s.ResolveURN(ctx, transaction, workspaceID, objectURN)
	if err != nil {
		return err
	}
	domain, err := s.ResolveURN(ctx, transaction, workspaceID, domainURN)
	if err != nil {
		return err
	}
	return s.affinityRepo.Upsert(ctx, transaction, &types.DomainAffinity{
		WorkspaceID: workspaceID,
		ObjectID:    obj.ID,
		DomainID:    domain.ID,
		Affinity:    affinity,
	})
}
