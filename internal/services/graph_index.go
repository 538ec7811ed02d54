package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/archmap/archmap-backend/internal/graph"
	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/repos"
)

// GraphIndexService caches one immutable in-memory directed graph per
// (workspace, generation, level). Graphs are never mutated after caching;
// invalidation drops a workspace's entries wholesale when a new generation
// activates.
type GraphIndexService interface {
	GetOrBuild(ctx context.Context, workspaceID uuid.UUID, generationVersion int, level string) (*graph.Directed, error)
	Invalidate(workspaceID uuid.UUID)
	CachedKeys() int
}

type graphCacheKey struct {
	workspaceID       uuid.UUID
	generationVersion int
	level             string
}

type graphIndexService struct {
	db       *gorm.DB
	log      *logger.Logger
	edgeRepo repos.RollupEdgeRepo

	mu    sync.RWMutex
	cache map[graphCacheKey]*graph.Directed
	group singleflight.Group
}

func NewGraphIndexService(db *gorm.DB, baseLog *logger.Logger, edgeRepo repos.RollupEdgeRepo) GraphIndexService {
	return &graphIndexService{
		db:       db,
		log:      baseLog.With("service", "GraphIndexService"),
		edgeRepo: edgeRepo,
		cache:    make(map[graphCacheKey]*graph.Directed),
	}
}

func (s *graphIndexService) GetOrBuild(ctx context.Context, workspaceID uuid.UUID, generationVersion int, level string) (*graph.Directed, error) {
	key := graphCacheKey{workspaceID: workspaceID, generationVersion: generationVersion, level: level}

	s.mu.RLock()
	cached := s.cache[key]
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	// Singleflight collapses racing builders of the same key. A build that
	// lands after an invalidation is harmless: its generation is immutable,
	// so a duplicate build can never produce a stale graph for its key.
	flightKey := fmt.Sprintf("%s/%d/%s", workspaceID, generationVersion, level)
	built, err, _ := s.group.Do(flightKey, func() (interface{}, error) {
		s.mu.RLock()
		existing := s.cache[key]
		s.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}
		g, err := s.build(ctx, workspaceID, generationVersion, level)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[key] = g
		s.mu.Unlock()
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return built.(*graph.Directed), nil
}

func (s *graphIndexService) build(ctx context.Context, workspaceID uuid.UUID, generationVersion int, level string) (*graph.Directed, error) {
	rows, err := s.edgeRepo.ListByGenerationLevel(ctx, nil, workspaceID, generationVersion, level)
	if err != nil {
		return nil, fmt.Errorf("load rollup edges: %w", err)
	}
	g := graph.NewDirected()
	for _, row := range rows {
		g.AddEdge(
			graph.EdgeKey{Subject: row.SubjectID, Target: row.TargetID, RelationType: row.RelationType},
			graph.EdgeAttrs{Weight: row.EdgeWeight, Confidence: row.Confidence, RollupID: row.ID},
		)
	}
	s.log.Debug("Graph built",
		"workspace_id", workspaceID,
		"version", generationVersion,
		"level", level,
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
	)
	return g, nil
}

// Invalidate drops every cached graph of the workspace. Called once per
// successful rebuild (locally and via the redis bus), never by queries.
func (s *graphIndexService) Invalidate(workspaceID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.cache {
		if key.workspaceID == workspaceID {
			delete(s.cache, key)
		}
	}
	s.log.Debug("Graph cache invalidated", "workspace_id", workspaceID)
}

func (s *graphIndexService) CachedKeys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}
