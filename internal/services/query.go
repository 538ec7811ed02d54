package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/archmap/archmap-backend/internal/apperr"
	"github.com/archmap/archmap-backend/internal/graph"
	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/repos"
	"github.com/archmap/archmap-backend/internal/types"
)

// Query types.
const (
	QueryPathDiscovery  = "PATH_DISCOVERY"
	QueryImpactAnalysis = "IMPACT_ANALYSIS"
	QueryUsageDiscovery = "USAGE_DISCOVERY"
)

// Impact directions.
const (
	DirectionUpstream   = "UPSTREAM"
	DirectionDownstream = "DOWNSTREAM"
	DirectionBoth       = "BOTH"
)

// Edge provenance in query results.
const (
	edgeSourceRollup    = "rollup"
	edgeSourceCanonical = "canonical"
)

const (
	defaultMaxHops  = 4
	defaultTopK     = 5
	defaultMaxDepth = 3
	// explorationFactor bounds path enumeration on dense graphs: discovery
	// stops after topK × explorationFactor simple paths.
	explorationFactor = 10
)

type QueryRequest struct {
	Type              string    `json:"type"`
	WorkspaceID       uuid.UUID `json:"workspace_id"`
	GenerationVersion int       `json:"generation_version"` // 0 resolves the ACTIVE generation once at entry
	Level             string    `json:"level"`

	FromURN   string `json:"from,omitempty"`
	ToURN     string `json:"to,omitempty"`
	TargetURN string `json:"target,omitempty"`
	ObjectURN string `json:"object,omitempty"`

	MaxHops   int    `json:"max_hops,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
	Direction string `json:"direction,omitempty"`
	MaxDepth  int    `json:"max_depth,omitempty"`
}

type QueryNode struct {
	ID         uuid.UUID `json:"id"`
	URN        string    `json:"urn,omitempty"`
	Name       string    `json:"name,omitempty"`
	ObjectType string    `json:"object_type,omitempty"`
}

type QueryEdge struct {
	SubjectID    uuid.UUID `json:"subject_id"`
	TargetID     uuid.UUID `json:"target_id"`
	RelationType string    `json:"relation_type"`
	Weight       int       `json:"weight"`
	Confidence   *float64  `json:"confidence,omitempty"`
	Source       string    `json:"source"`
}

type PathResult struct {
	Nodes []uuid.UUID `json:"nodes"`
	Score float64     `json:"score"`
	Hops  int         `json:"hops"`
}

type QueryMeta struct {
	GenerationVersion int       `json:"generation_version"`
	ComputedAt        time.Time `json:"computed_at"`
	ExecutionMs       int64     `json:"execution_ms"`
	Truncated         bool      `json:"truncated"`
}

type QueryResult struct {
	Nodes []QueryNode  `json:"nodes"`
	Edges []QueryEdge  `json:"edges"`
	Paths []PathResult `json:"paths,omitempty"`
	Meta  QueryMeta    `json:"meta"`
}

// QueryService runs deterministic structural queries against one pinned
// generation. Same graph snapshot, same parameters: same result set and
// ordering, every time.
type QueryService interface {
	Execute(ctx context.Context, req QueryRequest) (*QueryResult, error)
}

type queryService struct {
	db           *gorm.DB
	log          *logger.Logger
	objectRepo   repos.ObjectRepo
	relationRepo repos.RelationRepo
	edgeRepo     repos.RollupEdgeRepo
	generations  GenerationService
	graphIndex   GraphIndexService
}

func NewQueryService(
	db *gorm.DB,
	baseLog *logger.Logger,
	objectRepo repos.ObjectRepo,
	relationRepo repos.RelationRepo,
	edgeRepo repos.RollupEdgeRepo,
	generations GenerationService,
	graphIndex GraphIndexService,
) QueryService {
	return &queryService{
		db:           db,
		log:          baseLog.With("service", "QueryService"),
		objectRepo:   objectRepo,
		relationRepo: relationRepo,
		edgeRepo:     edgeRepo,
		generations:  generations,
		graphIndex:   graphIndex,
	}
}

func (s *queryService) Execute(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	start := time.Now()

	// Pin the generation once; everything below reads that version only, so
	// a rebuild activating mid-query is invisible.
	version := req.GenerationVersion
	if version == 0 {
		active, err := s.generations.GetActive(ctx, nil, req.WorkspaceID)
		if err != nil {
			return nil, fmt.Errorf("resolve active generation: %w", err)
		}
		if active == nil {
			return nil, fmt.Errorf("workspace %s: %w", req.WorkspaceID, apperr.ErrNoActiveGeneration)
		}
		version = active.Version
	}

	level := req.Level
	if level == "" {
		level = types.LevelServiceToService
	}

	var (
		result *QueryResult
		err    error
	)
	switch req.Type {
	case QueryPathDiscovery:
		result, err = s.pathDiscovery(ctx, req, version, level)
	case QueryImpactAnalysis:
		result, err = s.impactAnalysis(ctx, req, version, level)
	case QueryUsageDiscovery:
		result, err = s.usageDiscovery(ctx, req, version)
	default:
		return nil, fmt.Errorf("query type %q: %w", req.Type, apperr.ErrInvalidArgument)
	}
	if err != nil {
		return nil, err
	}

	result.Meta.GenerationVersion = version
	result.Meta.ComputedAt = time.Now().UTC()
	result.Meta.ExecutionMs = time.Since(start).Milliseconds()
	return result, nil
}

func (s *queryService) pathDiscovery(ctx context.Context, req QueryRequest, version int, level string) (*QueryResult, error) {
	from, err := s.resolve(ctx, req.WorkspaceID, req.FromURN, "from")
	if err != nil {
		return nil, err
	}
	to, err := s.resolve(ctx, req.WorkspaceID, req.ToURN, "to")
	if err != nil {
		return nil, err
	}

	g, err := s.graphIndex.GetOrBuild(ctx, req.WorkspaceID, version, level)
	if err != nil {
		return nil, err
	}

	maxHops := req.MaxHops
	if maxHops <= 0 {
		maxHops = defaultMaxHops
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	paths, truncated := enumerateSimplePaths(g, from.ID, to.ID, maxHops, topK*explorationFactor)

	scored := make([]scoredPath, len(paths))
	for i, p := range paths {
		scored[i] = scoredPath{edges: p, score: scorePath(p)}
	}
	// Stable sort keeps discovery order for equal scores: first-found wins.
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if len(scored) > topK {
		scored = scored[:topK]
	}

	res := &QueryResult{Meta: QueryMeta{Truncated: truncated}}
	seenEdges := make(map[graph.EdgeKey]bool)
	nodeSet := make(map[uuid.UUID]bool)
	for _, sp := range scored {
		nodes := []uuid.UUID{from.ID}
		for _, e := range sp.edges {
			nodes = append(nodes, e.Key.Target)
			nodeSet[e.Key.Subject] = true
			nodeSet[e.Key.Target] = true
			if !seenEdges[e.Key] {
				seenEdges[e.Key] = true
				res.Edges = append(res.Edges, rollupQueryEdge(e))
			}
		}
		res.Paths = append(res.Paths, PathResult{Nodes: nodes, Score: sp.score, Hops: len(sp.edges)})
	}

	res.Nodes, err = s.nodeDetails(ctx, req.WorkspaceID, nodeSet)
	if err != nil {
		return nil, err
	}
	return res, nil
}

type scoredPath struct {
	edges []graph.Edge
	score float64
}

// enumerateSimplePaths runs breadth-first over simple paths (no repeated
// node) from `from`, bounded by maxHops edges and by discovering at most
// maxDiscovered complete paths. Expansion follows edge insertion order, so
// enumeration order is deterministic for a given graph snapshot.
func enumerateSimplePaths(g *graph.Directed, from, to uuid.UUID, maxHops, maxDiscovered int) ([][]graph.Edge, bool) {
	type frame struct {
		node    uuid.UUID
		path    []graph.Edge
		visited map[uuid.UUID]bool
	}

	var discovered [][]graph.Edge
	truncated := false

	queue := []frame{{node: from, visited: map[uuid.UUID]bool{from: true}}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if len(cur.path) >= maxHops {
			continue
		}
		for _, e := range g.OutEdges(cur.node) {
			next := e.Key.Target
			if cur.visited[next] {
				continue
			}
			path := make([]graph.Edge, len(cur.path)+1)
			copy(path, cur.path)
			path[len(cur.path)] = e

			if next == to {
				discovered = append(discovered, path)
				if len(discovered) >= maxDiscovered {
					return discovered, true
				}
				continue
			}

			visited := make(map[uuid.UUID]bool, len(cur.visited)+1)
			for k := range cur.visited {
				visited[k] = true
			}
			visited[next] = true
			queue = append(queue, frame{node: next, path: path, visited: visited})
		}
	}
	return discovered, truncated
}

// scorePath is monotone: it rises with average confidence and with the
// weakest edge's weight, and falls with hop count, so a longer weaker path
// never outranks a shorter stronger one at equal confidence.
func scorePath(path []graph.Edge) float64 {
	if len(path) == 0 {
		return 0
	}
	confSum := 0.0
	confCount := 0
	minWeight := path[0].Attrs.Weight
	for _, e := range path {
		if e.Attrs.Confidence != nil {
			confSum += *e.Attrs.Confidence
			confCount++
		}
		if e.Attrs.Weight < minWeight {
			minWeight = e.Attrs.Weight
		}
	}
	avgConf := 0.0
	if confCount > 0 {
		avgConf = confSum / float64(confCount)
	}
	weightTerm := float64(minWeight) / float64(minWeight+1)
	return (0.7*avgConf + 0.3*weightTerm) / float64(len(path))
}

func (s *queryService) impactAnalysis(ctx context.Context, req QueryRequest, version int, level string) (*QueryResult, error) {
	target, err := s.resolve(ctx, req.WorkspaceID, req.TargetURN, "target")
	if err != nil {
		return nil, err
	}

	g, err := s.graphIndex.GetOrBuild(ctx, req.WorkspaceID, version, level)
	if err != nil {
		return nil, err
	}

	direction := req.Direction
	if direction == "" {
		direction = DirectionBoth
	}
	switch direction {
	case DirectionUpstream, DirectionDownstream, DirectionBoth:
	default:
		return nil, fmt.Errorf("direction %q: %w", req.Direction, apperr.ErrInvalidArgument)
	}
	maxDepth := req.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}

	res := &QueryResult{}
	nodeSet := map[uuid.UUID]bool{target.ID: true}
	seenEdges := make(map[graph.EdgeKey]bool)

	type frame struct {
		node  uuid.UUID
		depth int
	}
	queue := []frame{{node: target.ID}}
	visited := map[uuid.UUID]bool{target.ID: true}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}

		var edges []graph.Edge
		if direction == DirectionUpstream || direction == DirectionBoth {
			edges = append(edges, g.InEdges(cur.node)...)
		}
		if direction == DirectionDownstream || direction == DirectionBoth {
			edges = append(edges, g.OutEdges(cur.node)...)
		}

		for _, e := range edges {
			if !seenEdges[e.Key] {
				seenEdges[e.Key] = true
				res.Edges = append(res.Edges, rollupQueryEdge(e))
			}
			nodeSet[e.Key.Subject] = true
			nodeSet[e.Key.Target] = true

			next := e.Key.Target
			if next == cur.node {
				next = e.Key.Subject
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, frame{node: next, depth: cur.depth + 1})
			}
		}
	}

	var err2 error
	res.Nodes, err2 = s.nodeDetails(ctx, req.WorkspaceID, nodeSet)
	if err2 != nil {
		return nil, err2
	}
	return res, nil
}

// usageDiscovery unions inbound roll-up edges with a direct scan of
// canonical relations targeting the object, so atomic objects absent from
// the coarser roll-up levels still report their referrers. A canonical
// relation whose key already arrived from the roll-up side is not
// double-counted.
func (s *queryService) usageDiscovery(ctx context.Context, req QueryRequest, version int) (*QueryResult, error) {
	obj, err := s.resolve(ctx, req.WorkspaceID, req.ObjectURN, "object")
	if err != nil {
		return nil, err
	}

	res := &QueryResult{}
	nodeSet := map[uuid.UUID]bool{obj.ID: true}
	seenEdges := make(map[graph.EdgeKey]bool)

	rollupRows, err := s.edgeRepo.ListInbound(ctx, nil, req.WorkspaceID, version, obj.ID)
	if err != nil {
		return nil, fmt.Errorf("load inbound rollup edges: %w", err)
	}
	for _, row := range rollupRows {
		key := graph.EdgeKey{Subject: row.SubjectID, Target: row.TargetID, RelationType: row.RelationType}
		if seenEdges[key] {
			continue
		}
		seenEdges[key] = true
		nodeSet[row.SubjectID] = true
		res.Edges = append(res.Edges, QueryEdge{
			SubjectID:    row.SubjectID,
			TargetID:     row.TargetID,
			RelationType: row.RelationType,
			Weight:       row.EdgeWeight,
			Confidence:   row.Confidence,
			Source:       edgeSourceRollup,
		})
	}

	canonical, err := s.relationRepo.ListTargeting(ctx, nil, req.WorkspaceID, obj.ID)
	if err != nil {
		return nil, fmt.Errorf("load canonical referrers: %w", err)
	}
	for _, rel := range canonical {
		key := graph.EdgeKey{Subject: rel.SubjectID, Target: rel.TargetID, RelationType: rel.RelationType}
		if seenEdges[key] {
			continue
		}
		seenEdges[key] = true
		nodeSet[rel.SubjectID] = true
		res.Edges = append(res.Edges, QueryEdge{
			SubjectID:    rel.SubjectID,
			TargetID:     rel.TargetID,
			RelationType: rel.RelationType,
			Weight:       1,
			Confidence:   rel.Confidence,
			Source:       edgeSourceCanonical,
		})
	}

	res.Nodes, err = s.nodeDetails(ctx, req.WorkspaceID, nodeSet)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *queryService) resolve(ctx context.Context, workspaceID uuid.UUID, urn, field string) (*types.Object, error) {
	if urn == "" {
		return nil, fmt.Errorf("%s required: %w", field, apperr.ErrInvalidArgument)
	}
	obj, err := s.objectRepo.GetByURN(ctx, nil, workspaceID, urn)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", field, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%s %q: %w", field, urn, apperr.ErrObjectNotFound)
	}
	return obj, nil
}

// nodeDetails hydrates node ids with registry details, in a deterministic
// order (sorted by id) so equal queries render equal responses byte for byte.
func (s *queryService) nodeDetails(ctx context.Context, workspaceID uuid.UUID, nodeSet map[uuid.UUID]bool) ([]QueryNode, error) {
	ids := make([]uuid.UUID, 0, len(nodeSet))
	for id := range nodeSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	objects, err := s.objectRepo.GetByIDs(ctx, nil, workspaceID, ids)
	if err != nil {
		return nil, fmt.Errorf("load node details: %w", err)
	}
	byID := make(map[uuid.UUID]*types.Object, len(objects))
	for _, o := range objects {
		byID[o.ID] = o
	}

	out := make([]QueryNode, 0, len(ids))
	for _, id := range ids {
		node := QueryNode{ID: id}
		if o := byID[id]; o != nil {
			node.URN = o.URN
			node.Name = o.Name
			node.ObjectType = o.ObjectType
		}
		out = append(out, node)
	}
	return out, nil
}

func rollupQueryEdge(e graph.Edge) QueryEdge {
	return QueryEdge{
		SubjectID:    e.Key.Subject,
		TargetID:     e.Key.Target,
		RelationType: e.Key.RelationType,
		Weight:       e.Attrs.Weight,
		Confidence:   e.Attrs.Confidence,
		Source:       edgeSourceRollup,
	}
}
