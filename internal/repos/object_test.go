package repos

import (
	"context"
	"testing"

	"github.com/archmap/archmap-backend/internal/repos/testutil"
	"github.com/archmap/archmap-backend/internal/types"
)

func TestObjectRepoUpsertByURN(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewObjectRepo(db, testutil.Logger(t))
	ctx := context.Background()

	ws := seedWorkspace(t, tx)

	first := &types.Object{
		WorkspaceID: ws.ID,
		URN:         "urn:svc:billing",
		Name:        "Billing",
		ObjectType:  types.ObjectTypeService,
		Granularity: types.GranularityCompound,
		Visible:     true,
	}
	if err := repo.Upsert(ctx, tx, first); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	second := &types.Object{
		WorkspaceID: ws.ID,
		URN:         "urn:svc:billing",
		Name:        "Billing Service",
		ObjectType:  types.ObjectTypeService,
		Granularity: types.GranularityCompound,
		Visible:     true,
	}
	if err := repo.Upsert(ctx, tx, second); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	got, err := repo.GetByURN(ctx, tx, ws.ID, "urn:svc:billing")
	if err != nil {
		t.Fatalf("GetByURN: %v", err)
	}
	if got == nil {
		t.Fatalf("expected object back")
	}
	if got.ID != first.ID {
		t.Fatalf("re-registering a URN must keep the original id")
	}
	if got.Name != "Billing Service" {
		t.Fatalf("expected name overwrite, got %q", got.Name)
	}
}

func TestObjectRepoURNScopedPerWorkspace(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewObjectRepo(db, testutil.Logger(t))
	ctx := context.Background()

	wsA := seedWorkspace(t, tx)
	wsB := seedWorkspace(t, tx)

	for _, ws := range []*types.Workspace{wsA, wsB} {
		obj := &types.Object{
			WorkspaceID: ws.ID,
			URN:         "urn:svc:shared-name",
			Name:        "Shared",
			ObjectType:  types.ObjectTypeService,
			Granularity: types.GranularityCompound,
			Visible:     true,
		}
		if err := repo.Upsert(ctx, tx, obj); err != nil {
			t.Fatalf("Upsert in %s: %v", ws.Slug, err)
		}
	}

	inA, err := repo.GetByURN(ctx, tx, wsA.ID, "urn:svc:shared-name")
	if err != nil {
		t.Fatalf("GetByURN: %v", err)
	}
	inB, err := repo.GetByURN(ctx, tx, wsB.ID, "urn:svc:shared-name")
	if err != nil {
		t.Fatalf("GetByURN: %v", err)
	}
	if inA == nil || inB == nil || inA.ID == inB.ID {
		t.Fatalf("same URN in different workspaces must be distinct objects")
	}
}

func TestObjectRepoSetParent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewObjectRepo(db, testutil.Logger(t))
	ctx := context.Background()

	ws := seedWorkspace(t, tx)
	svc := seedObject(t, tx, ws.ID, "urn:svc:a", types.ObjectTypeService)
	ep := seedObject(t, tx, ws.ID, "urn:ep:a1", types.ObjectTypeEndpoint)

	if err := repo.SetParent(ctx, tx, ws.ID, ep.ID, &svc.ID); err != nil {
		t.Fatalf("SetParent: %v", err)
	}
	got, err := repo.GetByID(ctx, tx, ws.ID, ep.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ParentID == nil || *got.ParentID != svc.ID {
		t.Fatalf("expected parent set, got %v", got.ParentID)
	}

	if err := repo.SetParent(ctx, tx, ws.ID, ep.ID, nil); err != nil {
		t.Fatalf("clear parent: %v", err)
	}
	got, err = repo.GetByID(ctx, tx, ws.ID, ep.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ParentID != nil {
		t.Fatalf("expected parent cleared, got %v", got.ParentID)
	}
}
