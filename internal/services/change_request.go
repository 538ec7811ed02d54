package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/payload"
	"github.com/archmap/archmap-backend/internal/repos"
	"github.com/archmap/archmap-backend/internal/types"
)

// ChangeRequestService is the durable queue of proposed mutations: the only
// entry point for writes that touch the canonical relation set.
type ChangeRequestService interface {
	Create(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, requestType string, rawPayload []byte, requestedBy string) (*types.ChangeRequest, error)
	CreateWithDefaultSource(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, requestType string, rawPayload []byte, requestedBy, defaultSource string) (*types.ChangeRequest, error)
	List(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, status string, limit int) ([]*types.ChangeRequest, error)
	ListPendingIDs(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, excludeIDs []uuid.UUID) ([]uuid.UUID, error)
}

type changeRequestService struct {
	db          *gorm.DB
	log         *logger.Logger
	requestRepo repos.ChangeRequestRepo
}

func NewChangeRequestService(
	db *gorm.DB,
	baseLog *logger.Logger,
	requestRepo repos.ChangeRequestRepo,
) ChangeRequestService {
	return &changeRequestService{
		db:          db,
		log:         baseLog.With("service", "ChangeRequestService"),
		requestRepo: requestRepo,
	}
}

func (s *changeRequestService) Create(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, requestType string, rawPayload []byte, requestedBy string) (*types.ChangeRequest, error) {
	return s.CreateWithDefaultSource(ctx, tx, workspaceID, requestType, rawPayload, requestedBy, types.SourceManual)
}

func (s *changeRequestService) CreateWithDefaultSource(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, requestType string, rawPayload []byte, requestedBy, defaultSource string) (*types.ChangeRequest, error) {
	transaction := tx
	if transaction == nil {
		transaction = s.db
	}

	// Validate up front so a malformed payload never reaches the queue.
	// The approval gate re-parses anyway; this is the producer-facing gate.
	parsed, err := payload.Parse(requestType, rawPayload, defaultSource)
	if err != nil {
		return nil, err
	}
	normalized, err := payload.Marshal(parsed)
	if err != nil {
		return nil, fmt.Errorf("normalize payload: %w", err)
	}

	req := &types.ChangeRequest{
		WorkspaceID: workspaceID,
		RequestType: requestType,
		Payload:     datatypes.JSON(normalized),
		Status:      types.ChangeStatusPending,
		RequestedBy: requestedBy,
	}
	if err := s.requestRepo.Create(ctx, transaction, req); err != nil {
		s.log.Error("Create change request failed", "error", err, "request_type", requestType)
		return nil, fmt.Errorf("create change request: %w", err)
	}
	s.log.Debug("Change request created", "id", req.ID, "request_type", requestType, "requested_by", requestedBy)
	return req, nil
}

func (s *changeRequestService) List(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, status string, limit int) ([]*types.ChangeRequest, error) {
	return s.requestRepo.List(ctx, tx, workspaceID, status, limit)
}

func (s *changeRequestService) ListPendingIDs(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, excludeIDs []uuid.UUID) ([]uuid.UUID, error) {
	return s.requestRepo.ListPendingIDs(ctx, tx, workspaceID, excludeIDs)
}
