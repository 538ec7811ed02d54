package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/archmap/archmap-backend/internal/apperr"
	"github.com/archmap/archmap-backend/internal/payload"
	"github.com/archmap/archmap-backend/internal/repos"
	"github.com/archmap/archmap-backend/internal/repos/testutil"
	"github.com/archmap/archmap-backend/internal/types"
)

type approvalFixture struct {
	db        *gorm.DB
	ws        *types.Workspace
	objects   ObjectService
	requests  ChangeRequestService
	approvals ApprovalService
	relations repos.RelationRepo
	reqRepo   repos.ChangeRequestRepo
}

// setupApproval commits real rows: the approval path opens its own
// transactions, so the rollback-only Tx helper cannot host it. Cleanup
// deletes everything the workspace owns.
func setupApproval(t *testing.T) *approvalFixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)

	objectRepo := repos.NewObjectRepo(db, log)
	affinityRepo := repos.NewDomainAffinityRepo(db, log)
	relationRepo := repos.NewRelationRepo(db, log)
	requestRepo := repos.NewChangeRequestRepo(db, log)

	ws := &types.Workspace{ID: uuid.New(), Slug: "approval-" + uuid.NewString(), Name: "Approval Test"}
	if err := db.Create(ws).Error; err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	t.Cleanup(func() {
		db.Where("workspace_id = ?", ws.ID).Delete(&types.Relation{})
		db.Where("workspace_id = ?", ws.ID).Delete(&types.ChangeRequest{})
		db.Where("workspace_id = ?", ws.ID).Delete(&types.DomainAffinity{})
		db.Where("workspace_id = ?", ws.ID).Delete(&types.Object{})
		db.Where("id = ?", ws.ID).Delete(&types.Workspace{})
	})

	return &approvalFixture{
		db:        db,
		ws:        ws,
		objects:   NewObjectService(db, log, objectRepo, affinityRepo),
		requests:  NewChangeRequestService(db, log, requestRepo),
		approvals: NewApprovalService(db, log, requestRepo, objectRepo, relationRepo),
		relations: relationRepo,
		reqRepo:   requestRepo,
	}
}

func (f *approvalFixture) registerService(t *testing.T, urn string) *types.Object {
	t.Helper()
	obj, err := f.objects.Register(context.Background(), nil, f.ws.ID, RegisterObjectInput{
		URN:        urn,
		Name:       urn,
		ObjectType: types.ObjectTypeService,
	})
	if err != nil {
		t.Fatalf("register %s: %v", urn, err)
	}
	return obj
}

func (f *approvalFixture) fileUpsert(t *testing.T, body string) *types.ChangeRequest {
	t.Helper()
	req, err := f.requests.Create(context.Background(), nil, f.ws.ID, types.RequestRelationUpsert, []byte(body), "tester")
	if err != nil {
		t.Fatalf("file change request: %v", err)
	}
	return req
}

func TestApprovalApplyUpsertsRelation(t *testing.T) {
	f := setupApproval(t)
	ctx := context.Background()

	a := f.registerService(t, "urn:svc:a")
	b := f.registerService(t, "urn:svc:b")
	req := f.fileUpsert(t, `{"fromId":"urn:svc:a","toId":"urn:svc:b","type":"http","source":"manual"}`)

	processed, err := f.approvals.Apply(ctx, req.ID, types.ChangeStatusApproved, "reviewer")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if processed.Status != types.ChangeStatusApproved || processed.ReviewedBy == nil || *processed.ReviewedBy != "reviewer" {
		t.Fatalf("unexpected processed request: %+v", processed)
	}

	rows, err := f.relations.ListCanonical(ctx, nil, f.ws.ID)
	if err != nil {
		t.Fatalf("ListCanonical: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 relation, got %d", len(rows))
	}
	rel := rows[0]
	if rel.SubjectID != a.ID || rel.TargetID != b.ID {
		t.Fatalf("wrong endpoints: %+v", rel)
	}
	if rel.RelationType != types.RelationCall {
		t.Fatalf("legacy http should land as call, got %s", rel.RelationType)
	}
	if !rel.Approved || rel.IsDerived {
		t.Fatalf("expected approved non-derived row: %+v", rel)
	}
}

func TestApprovalReApplyRejected(t *testing.T) {
	f := setupApproval(t)
	ctx := context.Background()

	f.registerService(t, "urn:svc:a")
	f.registerService(t, "urn:svc:b")
	req := f.fileUpsert(t, `{"fromId":"urn:svc:a","toId":"urn:svc:b","type":"call"}`)

	if _, err := f.approvals.Apply(ctx, req.ID, types.ChangeStatusApproved, "reviewer"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	_, err := f.approvals.Apply(ctx, req.ID, types.ChangeStatusRejected, "reviewer2")
	if !errors.Is(err, apperr.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestApprovalRejectWritesNothing(t *testing.T) {
	f := setupApproval(t)
	ctx := context.Background()

	f.registerService(t, "urn:svc:a")
	f.registerService(t, "urn:svc:b")
	req := f.fileUpsert(t, `{"fromId":"urn:svc:a","toId":"urn:svc:b","type":"call"}`)

	processed, err := f.approvals.Apply(ctx, req.ID, types.ChangeStatusRejected, "reviewer")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if processed.Status != types.ChangeStatusRejected {
		t.Fatalf("expected REJECTED, got %s", processed.Status)
	}

	count, err := f.relations.CountByWorkspace(ctx, nil, f.ws.ID)
	if err != nil {
		t.Fatalf("CountByWorkspace: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejection must not touch the canonical set, got %d rows", count)
	}
}

func TestApprovalUnknownEndpointLeavesPending(t *testing.T) {
	f := setupApproval(t)
	ctx := context.Background()

	f.registerService(t, "urn:svc:a")
	req := f.fileUpsert(t, `{"fromId":"urn:svc:a","toId":"urn:svc:ghost","type":"call"}`)

	_, err := f.approvals.Apply(ctx, req.ID, types.ChangeStatusApproved, "reviewer")
	if !errors.Is(err, apperr.ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}

	// The failed transaction rolled back the status flip too.
	got, err := f.reqRepo.GetByID(ctx, nil, req.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.ChangeStatusPending {
		t.Fatalf("failed apply must leave the request PENDING, got %s", got.Status)
	}
}

func TestApprovalRollupSourceRejected(t *testing.T) {
	f := setupApproval(t)
	ctx := context.Background()

	f.registerService(t, "urn:svc:a")
	f.registerService(t, "urn:svc:b")
	req := f.fileUpsert(t, `{"fromId":"urn:svc:a","toId":"urn:svc:b","type":"call","source":"rollup"}`)

	_, err := f.approvals.Apply(ctx, req.ID, types.ChangeStatusApproved, "reviewer")
	var verr *payload.ValidationError
	if !errors.As(err, &verr) || verr.Code != payload.CodeSourceInvalid {
		t.Fatalf("expected SOURCE_INVALID for rollup provenance, got %v", err)
	}
}

func TestApprovalDeleteAbsentRelationIsNoop(t *testing.T) {
	f := setupApproval(t)
	ctx := context.Background()

	f.registerService(t, "urn:svc:a")
	f.registerService(t, "urn:svc:b")
	req, err := f.requests.Create(ctx, nil, f.ws.ID, types.RequestRelationDelete,
		[]byte(`{"fromId":"urn:svc:a","toId":"urn:svc:b","type":"call"}`), "tester")
	if err != nil {
		t.Fatalf("file delete request: %v", err)
	}

	processed, err := f.approvals.Apply(ctx, req.ID, types.ChangeStatusApproved, "reviewer")
	if err != nil {
		t.Fatalf("deleting an absent relation must approve cleanly: %v", err)
	}
	if processed.Status != types.ChangeStatusApproved {
		t.Fatalf("expected APPROVED, got %s", processed.Status)
	}
}

func TestApprovalObjectPatch(t *testing.T) {
	f := setupApproval(t)
	ctx := context.Background()

	obj := f.registerService(t, "urn:svc:a")
	req, err := f.requests.Create(ctx, nil, f.ws.ID, types.RequestObjectPatch,
		[]byte(`{"urn":"urn:svc:a","name":"Renamed","visible":false}`), "tester")
	if err != nil {
		t.Fatalf("file patch request: %v", err)
	}

	if _, err := f.approvals.Apply(ctx, req.ID, types.ChangeStatusApproved, "reviewer"); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got, err := f.objects.Get(ctx, nil, f.ws.ID, obj.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Renamed" || got.Visible {
		t.Fatalf("patch did not land: %+v", got)
	}
}

func TestApprovalApplyBulkIndependent(t *testing.T) {
	f := setupApproval(t)
	ctx := context.Background()

	f.registerService(t, "urn:svc:a")
	f.registerService(t, "urn:svc:b")

	good := f.fileUpsert(t, `{"fromId":"urn:svc:a","toId":"urn:svc:b","type":"call"}`)
	bad := f.fileUpsert(t, `{"fromId":"urn:svc:a","toId":"urn:svc:ghost","type":"call"}`)
	alsoGood := f.fileUpsert(t, `{"fromId":"urn:svc:b","toId":"urn:svc:a","type":"call"}`)

	result, err := f.approvals.ApplyBulk(ctx, []uuid.UUID{good.ID, bad.ID, alsoGood.ID}, types.ChangeStatusApproved, "reviewer")
	if err != nil {
		t.Fatalf("ApplyBulk: %v", err)
	}
	if result.Processed != 3 || result.Succeeded != 2 || len(result.Failed) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Failed[0].ID != bad.ID || result.Failed[0].Reason == "" {
		t.Fatalf("expected the ghost-endpoint request to fail with a reason: %+v", result.Failed[0])
	}

	count, err := f.relations.CountByWorkspace(ctx, nil, f.ws.ID)
	if err != nil {
		t.Fatalf("CountByWorkspace: %v", err)
	}
	if count != 2 {
		t.Fatalf("the failing id must not block its neighbors, got %d relations", count)
	}
}

func TestApprovalUnknownRequest(t *testing.T) {
	f := setupApproval(t)
	_, err := f.approvals.Apply(context.Background(), uuid.New(), types.ChangeStatusApproved, "reviewer")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApprovalInvalidNextStatus(t *testing.T) {
	f := setupApproval(t)
	_, err := f.approvals.Apply(context.Background(), uuid.New(), "PENDING", "reviewer")
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
