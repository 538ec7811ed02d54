package services

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/repos"
	"github.com/archmap/archmap-backend/internal/types"
)

// affinityFloor is the minimum domain membership weight an object needs for
// its edges to contribute to DOMAIN_TO_DOMAIN aggregation.
const affinityFloor = 0.2

// Invalidator drops cached graphs for a workspace; the graph index cache
// satisfies it.
type Invalidator interface {
	Invalidate(workspaceID uuid.UUID)
}

// RebuildPublisher broadcasts a completed rebuild to other replicas. The
// redis invalidation bus satisfies it; a nil publisher is fine for
// single-instance deployments.
type RebuildPublisher interface {
	PublishRebuilt(ctx context.Context, workspaceID uuid.UUID, version int) error
}

// RollupService recomputes every derived aggregate level from the canonical
// relations and writes them under a new generation. Queries keep reading the
// previously ACTIVE generation until Activate flips visibility.
type RollupService interface {
	Rebuild(ctx context.Context, workspaceID uuid.UUID) (int, error)
}

type rollupService struct {
	db           *gorm.DB
	log          *logger.Logger
	objectRepo   repos.ObjectRepo
	relationRepo repos.RelationRepo
	affinityRepo repos.DomainAffinityRepo
	edgeRepo     repos.RollupEdgeRepo
	statRepo     repos.GraphStatRepo
	generations  GenerationService
	invalidator  Invalidator
	publisher    RebuildPublisher
}

func NewRollupService(
	db *gorm.DB,
	baseLog *logger.Logger,
	objectRepo repos.ObjectRepo,
	relationRepo repos.RelationRepo,
	affinityRepo repos.DomainAffinityRepo,
	edgeRepo repos.RollupEdgeRepo,
	statRepo repos.GraphStatRepo,
	generations GenerationService,
	invalidator Invalidator,
	publisher RebuildPublisher,
) RollupService {
	return &rollupService{
		db:           db,
		log:          baseLog.With("service", "RollupService"),
		objectRepo:   objectRepo,
		relationRepo: relationRepo,
		affinityRepo: affinityRepo,
		edgeRepo:     edgeRepo,
		statRepo:     statRepo,
		generations:  generations,
		invalidator:  invalidator,
		publisher:    publisher,
	}
}

// aggKey identifies one aggregate edge while it accumulates.
type aggKey struct {
	subject      uuid.UUID
	target       uuid.UUID
	relationType string
}

// aggValue accumulates weight and the confidence terms for one edge.
type aggValue struct {
	weight    int
	confSum   float64
	confCount int
}

func (v *aggValue) addConfidence(c *float64) {
	if c != nil {
		v.confSum += *c
		v.confCount++
	}
}

func (v *aggValue) meanConfidence() *float64 {
	if v.confCount == 0 {
		return nil
	}
	mean := v.confSum / float64(v.confCount)
	return &mean
}

func (s *rollupService) Rebuild(ctx context.Context, workspaceID uuid.UUID) (int, error) {
	gen, err := s.generations.CreateNew(ctx, nil, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("create generation: %w", err)
	}
	log := s.log.With("workspace_id", workspaceID, "version", gen.Version)

	// A failure below leaves gen in BUILDING and the prior ACTIVE untouched;
	// the caller retries with a fresh version.
	if err := s.build(ctx, workspaceID, gen.Version); err != nil {
		log.Error("Rollup build failed, generation left in BUILDING", "error", err)
		return 0, err
	}

	if err := s.generations.Activate(ctx, workspaceID, gen.Version); err != nil {
		log.Error("Generation activation failed", "error", err)
		return 0, err
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(workspaceID)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishRebuilt(ctx, workspaceID, gen.Version); err != nil {
			// Local state is already correct; a lost broadcast only delays
			// other replicas until their next build.
			log.Warn("Rebuild broadcast failed", "error", err)
		}
	}

	log.Info("Rollup rebuild complete")
	return gen.Version, nil
}

func (s *rollupService) build(ctx context.Context, workspaceID uuid.UUID, version int) error {
	objects, err := s.objectRepo.ListByWorkspace(ctx, nil, workspaceID)
	if err != nil {
		return fmt.Errorf("load objects: %w", err)
	}
	objByID := make(map[uuid.UUID]*types.Object, len(objects))
	for _, o := range objects {
		objByID[o.ID] = o
	}

	relations, err := s.relationRepo.ListCanonicalByTypes(ctx, nil, workspaceID, []string{
		types.RelationCall, types.RelationExpose,
		types.RelationRead, types.RelationWrite,
		types.RelationProduce, types.RelationConsume,
	})
	if err != nil {
		return fmt.Errorf("load relations: %w", err)
	}

	s2s := s.aggregateServiceToService(relations)
	s2d := s.aggregateContainerLevel(relations, objByID, []string{types.RelationRead, types.RelationWrite})
	s2b := s.aggregateContainerLevel(relations, objByID, []string{types.RelationProduce, types.RelationConsume})

	affinities, err := s.affinityRepo.ListByWorkspace(ctx, nil, workspaceID)
	if err != nil {
		return fmt.Errorf("load affinities: %w", err)
	}
	d2d := s.aggregateDomainToDomain(s2s, affinities)

	var edges []*types.RollupEdge
	edges = append(edges, edgeRows(workspaceID, version, types.LevelServiceToService, s2s)...)
	edges = append(edges, edgeRows(workspaceID, version, types.LevelServiceToDatabase, s2d)...)
	edges = append(edges, edgeRows(workspaceID, version, types.LevelServiceToBroker, s2b)...)
	for _, e := range d2d {
		e.WorkspaceID = workspaceID
		e.GenerationVersion = version
	}
	edges = append(edges, d2d...)

	stats := degreeStats(workspaceID, version, edges)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.edgeRepo.CreateBatch(ctx, tx, edges); err != nil {
			return fmt.Errorf("write rollup edges: %w", err)
		}
		if err := s.statRepo.CreateBatch(ctx, tx, stats); err != nil {
			return fmt.Errorf("write graph stats: %w", err)
		}
		return nil
	})
}

// aggregateServiceToService joins call relations (caller service → endpoint)
// with expose relations (exposing service → endpoint) on the shared
// endpoint. Confidence is the mean of the call side only; the expose side's
// confidence reflects the endpoint owner's certainty about ownership, not
// the traffic, and is deliberately left out.
func (s *rollupService) aggregateServiceToService(relations []*types.Relation) map[aggKey]*aggValue {
	exposers := make(map[uuid.UUID][]uuid.UUID)
	for _, rel := range relations {
		if rel.RelationType == types.RelationExpose {
			exposers[rel.TargetID] = append(exposers[rel.TargetID], rel.SubjectID)
		}
	}

	out := make(map[aggKey]*aggValue)
	for _, rel := range relations {
		if rel.RelationType != types.RelationCall {
			continue
		}
		for _, exposer := range exposers[rel.TargetID] {
			if exposer == rel.SubjectID {
				continue
			}
			key := aggKey{subject: rel.SubjectID, target: exposer, relationType: types.RelationCall}
			val := out[key]
			if val == nil {
				val = &aggValue{}
				out[key] = val
			}
			val.weight++
			val.addConfidence(rel.Confidence)
		}
	}
	return out
}

// aggregateContainerLevel lifts atomic-target relations (table reads, topic
// produces, ...) to the target's parent container, and atomic subjects to
// their owning service.
func (s *rollupService) aggregateContainerLevel(relations []*types.Relation, objByID map[uuid.UUID]*types.Object, relationTypes []string) map[aggKey]*aggValue {
	wanted := make(map[string]bool, len(relationTypes))
	for _, t := range relationTypes {
		wanted[t] = true
	}

	out := make(map[aggKey]*aggValue)
	for _, rel := range relations {
		if !wanted[rel.RelationType] {
			continue
		}
		target := objByID[rel.TargetID]
		if target == nil || target.Granularity != types.GranularityAtomic || target.ParentID == nil {
			continue
		}
		container := *target.ParentID

		subject := rel.SubjectID
		if subj := objByID[rel.SubjectID]; subj != nil && subj.Granularity == types.GranularityAtomic && subj.ParentID != nil {
			subject = *subj.ParentID
		}
		if subject == container {
			continue
		}

		key := aggKey{subject: subject, target: container, relationType: rel.RelationType}
		val := out[key]
		if val == nil {
			val = &aggValue{}
			out[key] = val
		}
		val.weight++
		val.addConfidence(rel.Confidence)
	}
	return out
}

// aggregateDomainToDomain spreads every SERVICE_TO_SERVICE edge across the
// domain memberships of its endpoints. The result is a confidence-weighted,
// affinity-weighted sum, so high-affinity high-volume service pairs dominate
// the domain-level signal.
func (s *rollupService) aggregateDomainToDomain(s2s map[aggKey]*aggValue, affinities []*types.DomainAffinity) []*types.RollupEdge {
	memberships := make(map[uuid.UUID][]*types.DomainAffinity)
	for _, aff := range affinities {
		if aff.Affinity >= affinityFloor {
			memberships[aff.ObjectID] = append(memberships[aff.ObjectID], aff)
		}
	}

	type domainAcc struct {
		contribution float64
		confWeighted float64
		confContrib  float64
	}
	acc := make(map[aggKey]*domainAcc)

	for key, val := range s2s {
		conf := val.meanConfidence()
		for _, fromAff := range memberships[key.subject] {
			for _, toAff := range memberships[key.target] {
				if fromAff.DomainID == toAff.DomainID {
					continue
				}
				contribution := float64(val.weight) * fromAff.Affinity * toAff.Affinity
				dKey := aggKey{subject: fromAff.DomainID, target: toAff.DomainID, relationType: types.RelationDependOn}
				a := acc[dKey]
				if a == nil {
					a = &domainAcc{}
					acc[dKey] = a
				}
				a.contribution += contribution
				if conf != nil {
					a.confWeighted += *conf * contribution
					a.confContrib += contribution
				}
			}
		}
	}

	var out []*types.RollupEdge
	for key, a := range acc {
		edge := &types.RollupEdge{
			Level:        types.LevelDomainToDomain,
			RelationType: key.relationType,
			SubjectID:    key.subject,
			TargetID:     key.target,
			EdgeWeight:   int(math.Round(a.contribution)),
		}
		if a.confContrib > 0 {
			conf := a.confWeighted / a.confContrib
			edge.Confidence = &conf
		}
		out = append(out, edge)
	}
	return out
}

func edgeRows(workspaceID uuid.UUID, version int, level string, agg map[aggKey]*aggValue) []*types.RollupEdge {
	var out []*types.RollupEdge
	for key, val := range agg {
		out = append(out, &types.RollupEdge{
			WorkspaceID:       workspaceID,
			GenerationVersion: version,
			Level:             level,
			RelationType:      key.relationType,
			SubjectID:         key.subject,
			TargetID:          key.target,
			EdgeWeight:        val.weight,
			Confidence:        val.meanConfidence(),
		})
	}
	return out
}

func degreeStats(workspaceID uuid.UUID, version int, edges []*types.RollupEdge) []*types.GraphStat {
	type statKey struct {
		level string
		obj   uuid.UUID
	}
	counts := make(map[statKey]*types.GraphStat)
	get := func(level string, obj uuid.UUID) *types.GraphStat {
		k := statKey{level: level, obj: obj}
		st := counts[k]
		if st == nil {
			st = &types.GraphStat{
				WorkspaceID:       workspaceID,
				GenerationVersion: version,
				Level:             level,
				ObjectID:          obj,
			}
			counts[k] = st
		}
		return st
	}
	for _, e := range edges {
		get(e.Level, e.SubjectID).OutDegree++
		get(e.Level, e.TargetID).InDegree++
	}
	out := make([]*types.GraphStat, 0, len(counts))
	for _, st := range counts {
		out = append(out, st)
	}
	return out
}
