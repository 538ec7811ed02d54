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
	"github.com/archmap/archmap-backend/internal/payload"
	"github.com/archmap/archmap-backend/internal/repos"
	"github.com/archmap/archmap-backend/internal/types"
)

// ApprovalService is the validated gate between pending change requests and
// the canonical relation table. Every apply is one transaction: a failure
// anywhere rolls back both the relation write and the status flip.
type ApprovalService interface {
	Apply(ctx context.Context, requestID uuid.UUID, nextStatus, reviewedBy string) (*types.ChangeRequest, error)
	ApplyBulk(ctx context.Context, requestIDs []uuid.UUID, nextStatus, reviewedBy string) (*BulkApplyResult, error)
}

type BulkApplyResult struct {
	Processed int               `json:"processed"`
	Succeeded int               `json:"succeeded"`
	Failed    []BulkApplyError `json:"failed"`
}

type BulkApplyError struct {
	ID     uuid.UUID `json:"id"`
	Reason string    `json:"reason"`
}

type approvalService struct {
	db           *gorm.DB
	log          *logger.Logger
	requestRepo  repos.ChangeRequestRepo
	objectRepo   repos.ObjectRepo
	relationRepo repos.RelationRepo
}

func NewApprovalService(
	db *gorm.DB,
	baseLog *logger.Logger,
	requestRepo repos.ChangeRequestRepo,
	objectRepo repos.ObjectRepo,
	relationRepo repos.RelationRepo,
) ApprovalService {
	return &approvalService{
		db:           db,
		log:          baseLog.With("service", "ApprovalService"),
		requestRepo:  requestRepo,
		objectRepo:   objectRepo,
		relationRepo: relationRepo,
	}
}

func (s *approvalService) Apply(ctx context.Context, requestID uuid.UUID, nextStatus, reviewedBy string) (*types.ChangeRequest, error) {
	if nextStatus != types.ChangeStatusApproved && nextStatus != types.ChangeStatusRejected {
		return nil, fmt.Errorf("next status %q: %w", nextStatus, apperr.ErrInvalidArgument)
	}

	req, err := s.requestRepo.GetByID(ctx, nil, requestID)
	if err != nil {
		return nil, fmt.Errorf("load change request: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("change request %s: %w", requestID, apperr.ErrNotFound)
	}
	if req.Status != types.ChangeStatusPending {
		return nil, fmt.Errorf("change request %s is %s: %w", requestID, req.Status, apperr.ErrAlreadyProcessed)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if nextStatus == types.ChangeStatusApproved {
			if err := s.applyApproved(ctx, tx, req); err != nil {
				return err
			}
		}
		flipped, err := s.requestRepo.MarkProcessed(ctx, tx, req.ID, nextStatus, reviewedBy, "")
		if err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		if !flipped {
			// Lost a race with another reviewer.
			return fmt.Errorf("change request %s: %w", req.ID, apperr.ErrAlreadyProcessed)
		}
		return nil
	})
	if err != nil {
		s.log.Warn("Apply failed", "request_id", requestID, "next_status", nextStatus, "error", err)
		return nil, err
	}

	s.log.Info("Change request processed", "request_id", requestID, "status", nextStatus, "reviewed_by", reviewedBy)
	return s.requestRepo.GetByID(ctx, nil, requestID)
}

// applyApproved re-validates the stored payload and writes the mutation.
// The payload is treated as untrusted data: create-time validation is never
// assumed to still hold.
func (s *approvalService) applyApproved(ctx context.Context, tx *gorm.DB, req *types.ChangeRequest) error {
	parsed, err := payload.Parse(req.RequestType, req.Payload, types.SourceManual)
	if err != nil {
		return err
	}

	switch p := parsed.(type) {
	case payload.RelationUpsertPayload:
		return s.upsertRelation(ctx, tx, req.WorkspaceID, p.RelationFields)
	case payload.RelationDeletePayload:
		return s.deleteRelation(ctx, tx, req.WorkspaceID, p.RelationFields)
	case payload.ObjectPatchPayload:
		return s.patchObject(ctx, tx, req.WorkspaceID, p)
	default:
		return fmt.Errorf("unsupported payload variant %T", parsed)
	}
}

func (s *approvalService) upsertRelation(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, fields payload.RelationFields) error {
	// Roll-up provenance never lands on a canonical row.
	if fields.Source == types.SourceRollup {
		return &payload.ValidationError{Code: payload.CodeSourceInvalid, Field: "source"}
	}
	subject, target, err := s.resolveEndpoints(ctx, tx, workspaceID, fields)
	if err != nil {
		return err
	}
	rel := &types.Relation{
		WorkspaceID:  workspaceID,
		RelationType: fields.RelationType,
		SubjectID:    subject.ID,
		TargetID:     target.ID,
		Source:       fields.Source,
		Confidence:   fields.Confidence,
		Evidence:     fields.Evidence,
		IsDerived:    false,
		Approved:     true,
	}
	if err := s.relationRepo.Upsert(ctx, tx, rel); err != nil {
		return fmt.Errorf("upsert relation: %w", err)
	}
	return nil
}

func (s *approvalService) deleteRelation(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, fields payload.RelationFields) error {
	subject, target, err := s.resolveEndpoints(ctx, tx, workspaceID, fields)
	if err != nil {
		return err
	}
	// Absence is not an error: deleting something already gone is a no-op.
	_, err = s.relationRepo.DeleteCanonical(ctx, tx, workspaceID, fields.RelationType, subject.ID, target.ID)
	if err != nil {
		return fmt.Errorf("delete relation: %w", err)
	}
	return nil
}

func (s *approvalService) patchObject(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, p payload.ObjectPatchPayload) error {
	obj, err := s.objectRepo.GetByURN(ctx, tx, workspaceID, p.URN)
	if err != nil {
		return fmt.Errorf("resolve urn: %w", err)
	}
	if obj == nil {
		return fmt.Errorf("urn %q: %w", p.URN, apperr.ErrObjectNotFound)
	}
	if p.Name != nil {
		obj.Name = *p.Name
	}
	if p.Visible != nil {
		obj.Visible = *p.Visible
	}
	if p.ParentURN != nil {
		if *p.ParentURN == "" {
			obj.ParentID = nil
		} else {
			parent, err := s.objectRepo.GetByURN(ctx, tx, workspaceID, *p.ParentURN)
			if err != nil {
				return fmt.Errorf("resolve parent urn: %w", err)
			}
			if parent == nil {
				return fmt.Errorf("parent %q: %w", *p.ParentURN, apperr.ErrObjectNotFound)
			}
			obj.ParentID = &parent.ID
		}
	}
	if p.Metadata != nil {
		raw, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		obj.Metadata = datatypes.JSON(raw)
	}
	if err := s.objectRepo.Update(ctx, tx, obj); err != nil {
		return fmt.Errorf("patch object: %w", err)
	}
	return nil
}

func (s *approvalService) resolveEndpoints(ctx context.Context, tx *gorm.DB, workspaceID uuid.UUID, fields payload.RelationFields) (*types.Object, *types.Object, error) {
	subject, err := s.objectRepo.GetByURN(ctx, tx, workspaceID, fields.FromURN)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve fromId: %w", err)
	}
	if subject == nil {
		return nil, nil, fmt.Errorf("fromId %q: %w", fields.FromURN, apperr.ErrObjectNotFound)
	}
	target, err := s.objectRepo.GetByURN(ctx, tx, workspaceID, fields.ToURN)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve toId: %w", err)
	}
	if target == nil {
		return nil, nil, fmt.Errorf("toId %q: %w", fields.ToURN, apperr.ErrObjectNotFound)
	}
	return subject, target, nil
}

// ApplyBulk processes ids sequentially, one independent transaction each.
// A failing id is recorded and skipped; it never aborts the batch or rolls
// back earlier successes.
func (s *approvalService) ApplyBulk(ctx context.Context, requestIDs []uuid.UUID, nextStatus, reviewedBy string) (*BulkApplyResult, error) {
	result := &BulkApplyResult{}
	for _, id := range requestIDs {
		result.Processed++
		if _, err := s.Apply(ctx, id, nextStatus, reviewedBy); err != nil {
			result.Failed = append(result.Failed, BulkApplyError{ID: id, Reason: err.Error()})
			continue
		}
		result.Succeeded++
	}
	return result, nil
}
