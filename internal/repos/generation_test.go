package repos

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/archmap/archmap-backend/internal/repos/testutil"
	"github.com/archmap/archmap-backend/internal/types"
)

func seedGeneration(t *testing.T, tx *gorm.DB, repo GenerationRepo, ws *types.Workspace, version int, status string) *types.Generation {
	t.Helper()
	gen := &types.Generation{WorkspaceID: ws.ID, Version: version, Status: status}
	if err := repo.Create(context.Background(), tx, gen); err != nil {
		t.Fatalf("seed generation v%d: %v", version, err)
	}
	return gen
}

func TestGenerationRepoActivationFlow(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewGenerationRepo(db, testutil.Logger(t))
	ctx := context.Background()

	ws := seedWorkspace(t, tx)
	seedGeneration(t, tx, repo, ws, 1, types.GenerationActive)
	seedGeneration(t, tx, repo, ws, 2, types.GenerationBuilding)

	active, err := repo.GetActive(ctx, tx, ws.ID)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active == nil || active.Version != 1 {
		t.Fatalf("expected v1 active, got %+v", active)
	}

	if err := repo.ArchiveActive(ctx, tx, ws.ID); err != nil {
		t.Fatalf("ArchiveActive: %v", err)
	}
	promoted, err := repo.Promote(ctx, tx, ws.ID, 2)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if !promoted {
		t.Fatalf("expected BUILDING v2 to promote")
	}

	active, err = repo.GetActive(ctx, tx, ws.ID)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active == nil || active.Version != 2 {
		t.Fatalf("expected v2 active, got %+v", active)
	}
	if active.BuiltAt == nil {
		t.Fatalf("promotion must record built_at")
	}

	old, err := repo.GetByVersion(ctx, tx, ws.ID, 1)
	if err != nil {
		t.Fatalf("GetByVersion: %v", err)
	}
	if old == nil || old.Status != types.GenerationArchived {
		t.Fatalf("expected v1 archived, got %+v", old)
	}
}

func TestGenerationRepoPromoteRequiresBuilding(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewGenerationRepo(db, testutil.Logger(t))
	ctx := context.Background()

	ws := seedWorkspace(t, tx)
	seedGeneration(t, tx, repo, ws, 1, types.GenerationArchived)

	promoted, err := repo.Promote(ctx, tx, ws.ID, 1)
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if promoted {
		t.Fatalf("archived generation must not promote")
	}

	promoted, err = repo.Promote(ctx, tx, ws.ID, 99)
	if err != nil {
		t.Fatalf("Promote missing version: %v", err)
	}
	if promoted {
		t.Fatalf("missing version must not promote")
	}
}

func TestGenerationRepoMaxVersion(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewGenerationRepo(db, testutil.Logger(t))
	ctx := context.Background()

	ws := seedWorkspace(t, tx)

	max, err := repo.MaxVersion(ctx, tx, ws.ID)
	if err != nil {
		t.Fatalf("MaxVersion: %v", err)
	}
	if max != 0 {
		t.Fatalf("empty workspace should report 0, got %d", max)
	}

	seedGeneration(t, tx, repo, ws, 3, types.GenerationArchived)
	seedGeneration(t, tx, repo, ws, 7, types.GenerationBuilding)

	max, err = repo.MaxVersion(ctx, tx, ws.ID)
	if err != nil {
		t.Fatalf("MaxVersion: %v", err)
	}
	// BUILDING versions count: a failed build's version is never reused.
	if max != 7 {
		t.Fatalf("expected 7, got %d", max)
	}
}
