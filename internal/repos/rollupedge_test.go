package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/archmap/archmap-backend/internal/repos/testutil"
	"github.com/archmap/archmap-backend/internal/types"
)

func TestRollupEdgeRepoListOrderStableAcrossLoads(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewRollupEdgeRepo(db, testutil.Logger(t))
	ctx := context.Background()

	ws := seedWorkspace(t, tx)

	// One batch shares a single created_at, so ordering must not depend on
	// insertion or heap order.
	var edges []*types.RollupEdge
	for i := 0; i < 8; i++ {
		edges = append(edges, &types.RollupEdge{
			WorkspaceID:       ws.ID,
			GenerationVersion: 1,
			Level:             types.LevelServiceToService,
			RelationType:      types.RelationCall,
			SubjectID:         uuid.New(),
			TargetID:          uuid.New(),
			EdgeWeight:        i + 1,
		})
	}
	if err := repo.CreateBatch(ctx, tx, edges); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	first, err := repo.ListByGenerationLevel(ctx, tx, ws.ID, 1, types.LevelServiceToService)
	if err != nil {
		t.Fatalf("ListByGenerationLevel: %v", err)
	}
	if len(first) != len(edges) {
		t.Fatalf("expected %d edges, got %d", len(edges), len(first))
	}
	for i := 1; i < len(first); i++ {
		if first[i-1].CreatedAt.Equal(first[i].CreatedAt) && first[i-1].ID.String() > first[i].ID.String() {
			t.Fatalf("timestamp ties must order by id, got %s before %s", first[i-1].ID, first[i].ID)
		}
	}

	second, err := repo.ListByGenerationLevel(ctx, tx, ws.ID, 1, types.LevelServiceToService)
	if err != nil {
		t.Fatalf("ListByGenerationLevel: %v", err)
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("load order changed between reads at %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}
