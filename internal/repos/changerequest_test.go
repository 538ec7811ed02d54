package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/archmap/archmap-backend/internal/repos/testutil"
	"github.com/archmap/archmap-backend/internal/types"
)

func seedChangeRequest(t *testing.T, tx *gorm.DB, repo ChangeRequestRepo, workspaceID uuid.UUID) *types.ChangeRequest {
	t.Helper()
	req := &types.ChangeRequest{
		WorkspaceID: workspaceID,
		RequestType: types.RequestRelationUpsert,
		Payload:     datatypes.JSON(`{"fromId":"urn:svc:a","toId":"urn:svc:b","type":"call","source":"manual"}`),
		Status:      types.ChangeStatusPending,
		RequestedBy: "tester",
	}
	if err := repo.Create(context.Background(), tx, req); err != nil {
		t.Fatalf("seed change request: %v", err)
	}
	return req
}

func TestChangeRequestRepoMarkProcessedOneWay(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewChangeRequestRepo(db, testutil.Logger(t))
	ctx := context.Background()

	ws := seedWorkspace(t, tx)
	req := seedChangeRequest(t, tx, repo, ws.ID)

	flipped, err := repo.MarkProcessed(ctx, tx, req.ID, types.ChangeStatusApproved, "reviewer", "")
	if err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if !flipped {
		t.Fatalf("expected pending row to flip")
	}

	// Terminal status is terminal: no second flip, in either direction.
	flipped, err = repo.MarkProcessed(ctx, tx, req.ID, types.ChangeStatusRejected, "reviewer2", "changed my mind")
	if err != nil {
		t.Fatalf("second MarkProcessed: %v", err)
	}
	if flipped {
		t.Fatalf("processed row must not flip again")
	}

	got, err := repo.GetByID(ctx, tx, req.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != types.ChangeStatusApproved {
		t.Fatalf("expected APPROVED to stick, got %s", got.Status)
	}
	if got.ReviewedBy == nil || *got.ReviewedBy != "reviewer" || got.ReviewedAt == nil {
		t.Fatalf("review metadata missing: %+v", got)
	}
}

func TestChangeRequestRepoListByStatus(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewChangeRequestRepo(db, testutil.Logger(t))
	ctx := context.Background()

	ws := seedWorkspace(t, tx)
	first := seedChangeRequest(t, tx, repo, ws.ID)
	seedChangeRequest(t, tx, repo, ws.ID)

	if _, err := repo.MarkProcessed(ctx, tx, first.ID, types.ChangeStatusRejected, "reviewer", "duplicate"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}

	pending, err := repo.List(ctx, tx, ws.ID, types.ChangeStatusPending, 10)
	if err != nil {
		t.Fatalf("List pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(pending))
	}

	all, err := repo.List(ctx, tx, ws.ID, "", 10)
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 total, got %d", len(all))
	}
}

func TestChangeRequestRepoListPendingIDsExcludes(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewChangeRequestRepo(db, testutil.Logger(t))
	ctx := context.Background()

	ws := seedWorkspace(t, tx)
	first := seedChangeRequest(t, tx, repo, ws.ID)
	second := seedChangeRequest(t, tx, repo, ws.ID)

	ids, err := repo.ListPendingIDs(ctx, tx, ws.ID, []uuid.UUID{first.ID})
	if err != nil {
		t.Fatalf("ListPendingIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != second.ID {
		t.Fatalf("expected only the non-excluded id, got %v", ids)
	}
}
