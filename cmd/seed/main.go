package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/archmap/archmap-backend/internal/db"
	"github.com/archmap/archmap-backend/internal/logger"
	"github.com/archmap/archmap-backend/internal/repos"
	"github.com/archmap/archmap-backend/internal/services"
	"github.com/archmap/archmap-backend/internal/types"
)

// seedFile is the on-disk shape of a workspace bootstrap. Relations are not
// written directly; they go through the change request queue like any other
// proposed mutation, and get approved here when --approve is set.
type seedFile struct {
	Workspace struct {
		Slug string `yaml:"slug"`
		Name string `yaml:"name"`
	} `yaml:"workspace"`
	Objects []struct {
		URN         string                 `yaml:"urn"`
		Name        string                 `yaml:"name"`
		Type        string                 `yaml:"type"`
		Granularity string                 `yaml:"granularity"`
		Parent      string                 `yaml:"parent"`
		Metadata    map[string]interface{} `yaml:"metadata"`
		Affinities  []struct {
			Domain string  `yaml:"domain"`
			Value  float64 `yaml:"value"`
		} `yaml:"affinities"`
	} `yaml:"objects"`
	Relations []struct {
		From       string   `yaml:"from"`
		To         string   `yaml:"to"`
		Type       string   `yaml:"type"`
		Source     string   `yaml:"source"`
		Confidence *float64 `yaml:"confidence"`
		Evidence   string   `yaml:"evidence"`
	} `yaml:"relations"`
}

type relationPayload struct {
	FromURN    string   `json:"fromId"`
	ToURN      string   `json:"toId"`
	Type       string   `json:"type"`
	Source     string   `json:"source,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Evidence   string   `json:"evidence,omitempty"`
}

func main() {
	filePath := flag.String("file", "", "path to the seed yaml file")
	actor := flag.String("actor", "seed", "actor recorded on change requests")
	approve := flag.Bool("approve", true, "approve seeded relation requests after filing them")
	flag.Parse()
	if *filePath == "" {
		fmt.Println("usage: seed --file <seed.yaml> [--actor name] [--approve=false]")
		os.Exit(1)
	}

	log, err := logger.New("development")
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	raw, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal("Could not read seed file", "path", *filePath, "error", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		log.Fatal("Could not parse seed file", "path", *filePath, "error", err)
	}
	if seed.Workspace.Slug == "" {
		log.Fatal("Seed file missing workspace.slug", "path", *filePath)
	}

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	workspaceRepo := repos.NewWorkspaceRepo(thePG, log)
	objectRepo := repos.NewObjectRepo(thePG, log)
	affinityRepo := repos.NewDomainAffinityRepo(thePG, log)
	relationRepo := repos.NewRelationRepo(thePG, log)
	changeRequestRepo := repos.NewChangeRequestRepo(thePG, log)

	objectService := services.NewObjectService(thePG, log, objectRepo, affinityRepo)
	changeRequestService := services.NewChangeRequestService(thePG, log, changeRequestRepo)
	approvalService := services.NewApprovalService(thePG, log, changeRequestRepo, objectRepo, relationRepo)

	ctx := context.Background()

	ws, err := workspaceRepo.GetBySlug(ctx, nil, seed.Workspace.Slug)
	if err != nil {
		log.Fatal("Workspace lookup failed", "slug", seed.Workspace.Slug, "error", err)
	}
	if ws == nil {
		name := seed.Workspace.Name
		if name == "" {
			name = seed.Workspace.Slug
		}
		ws = &types.Workspace{Slug: seed.Workspace.Slug, Name: name}
		if err := workspaceRepo.Create(ctx, nil, ws); err != nil {
			log.Fatal("Workspace create failed", "slug", seed.Workspace.Slug, "error", err)
		}
		log.Info("Workspace created", "slug", ws.Slug, "id", ws.ID)
	} else {
		log.Info("Workspace already exists, reusing", "slug", ws.Slug, "id", ws.ID)
	}

	// Objects first so relation endpoints and parents resolve. Parents are
	// applied in a second pass since the seed file has no ordering rules.
	for _, o := range seed.Objects {
		granularity := o.Granularity
		if granularity == "" {
			granularity = types.GranularityCompound
		}
		_, err := objectService.Register(ctx, nil, ws.ID, services.RegisterObjectInput{
			URN:         o.URN,
			Name:        o.Name,
			ObjectType:  o.Type,
			Granularity: granularity,
			Metadata:    o.Metadata,
		})
		if err != nil {
			log.Fatal("Object register failed", "urn", o.URN, "error", err)
		}
	}
	for _, o := range seed.Objects {
		if o.Parent != "" {
			if err := objectService.SetParent(ctx, nil, ws.ID, o.URN, o.Parent); err != nil {
				log.Fatal("Set parent failed", "urn", o.URN, "parent", o.Parent, "error", err)
			}
		}
		for _, a := range o.Affinities {
			if err := objectService.SetAffinity(ctx, nil, ws.ID, o.URN, a.Domain, a.Value); err != nil {
				log.Fatal("Set affinity failed", "urn", o.URN, "domain", a.Domain, "error", err)
			}
		}
	}
	log.Info("Objects registered", "count", len(seed.Objects))

	var requestIDs []uuid.UUID
	for _, rel := range seed.Relations {
		body, err := json.Marshal(relationPayload{
			FromURN:    rel.From,
			ToURN:      rel.To,
			Type:       rel.Type,
			Source:     rel.Source,
			Confidence: rel.Confidence,
			Evidence:   rel.Evidence,
		})
		if err != nil {
			log.Fatal("Marshal relation payload failed", "from", rel.From, "to", rel.To, "error", err)
		}
		req, err := changeRequestService.CreateWithDefaultSource(ctx, nil, ws.ID, types.RequestRelationUpsert, body, *actor, types.SourceInference)
		if err != nil {
			log.Fatal("File change request failed", "from", rel.From, "to", rel.To, "error", err)
		}
		requestIDs = append(requestIDs, req.ID)
	}
	log.Info("Relation change requests filed", "count", len(requestIDs))

	if *approve && len(requestIDs) > 0 {
		result, err := approvalService.ApplyBulk(ctx, requestIDs, types.ChangeStatusApproved, *actor)
		if err != nil {
			log.Fatal("Bulk approval failed", "error", err)
		}
		log.Info("Seed approvals done", "processed", result.Processed, "succeeded", result.Succeeded, "failed", len(result.Failed))
		for _, f := range result.Failed {
			log.Warn("Seed approval rejected", "request_id", f.ID, "reason", f.Reason)
		}
	}
}
