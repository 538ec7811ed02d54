package graph

import (
	"testing"

	"github.com/google/uuid"
)

func conf(v float64) *float64 { return &v }

func TestAddEdgeCreatesEndpoints(t *testing.T) {
	g := NewDirected()
	a, b := uuid.New(), uuid.New()

	g.AddEdge(EdgeKey{Subject: a, Target: b, RelationType: "call"}, EdgeAttrs{Weight: 3})

	if !g.HasNode(a) || !g.HasNode(b) {
		t.Fatalf("expected both endpoints to exist")
	}
	if g.NodeCount() != 2 || g.EdgeCount() != 1 {
		t.Fatalf("expected 2 nodes and 1 edge, got %d and %d", g.NodeCount(), g.EdgeCount())
	}
}

func TestAddEdgeDuplicateKeyOverwrites(t *testing.T) {
	g := NewDirected()
	a, b := uuid.New(), uuid.New()
	key := EdgeKey{Subject: a, Target: b, RelationType: "call"}

	g.AddEdge(key, EdgeAttrs{Weight: 1, Confidence: conf(0.2)})
	g.AddEdge(key, EdgeAttrs{Weight: 7, Confidence: conf(0.9)})

	if g.EdgeCount() != 1 {
		t.Fatalf("duplicate key should overwrite, got %d edges", g.EdgeCount())
	}
	attrs, ok := g.EdgeAttrs(key)
	if !ok || attrs.Weight != 7 {
		t.Fatalf("expected overwritten weight 7, got %+v", attrs)
	}
	out := g.OutEdges(a)
	if len(out) != 1 || out[0].Attrs.Weight != 7 {
		t.Fatalf("out adjacency kept stale attrs: %+v", out)
	}
	in := g.InEdges(b)
	if len(in) != 1 || in[0].Attrs.Weight != 7 {
		t.Fatalf("in adjacency kept stale attrs: %+v", in)
	}
}

func TestParallelEdgesByRelationType(t *testing.T) {
	g := NewDirected()
	a, b := uuid.New(), uuid.New()

	g.AddEdge(EdgeKey{Subject: a, Target: b, RelationType: "call"}, EdgeAttrs{Weight: 1})
	g.AddEdge(EdgeKey{Subject: a, Target: b, RelationType: "read"}, EdgeAttrs{Weight: 2})

	if g.EdgeCount() != 2 {
		t.Fatalf("expected 2 parallel edges, got %d", g.EdgeCount())
	}
	if len(g.OutEdges(a)) != 2 {
		t.Fatalf("expected 2 out edges for a, got %d", len(g.OutEdges(a)))
	}
}

func TestAdjacencyInsertionOrder(t *testing.T) {
	g := NewDirected()
	a := uuid.New()
	targets := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for i, target := range targets {
		g.AddEdge(EdgeKey{Subject: a, Target: target, RelationType: "call"}, EdgeAttrs{Weight: i + 1})
	}

	out := g.OutEdges(a)
	if len(out) != len(targets) {
		t.Fatalf("expected %d edges, got %d", len(targets), len(out))
	}
	for i, e := range out {
		if e.Key.Target != targets[i] {
			t.Fatalf("edge %d: expected target %s, got %s", i, targets[i], e.Key.Target)
		}
	}
}

func TestUnknownNodeQueries(t *testing.T) {
	g := NewDirected()
	stranger := uuid.New()
	if g.HasNode(stranger) {
		t.Fatalf("empty graph should not contain nodes")
	}
	if len(g.OutEdges(stranger)) != 0 || len(g.InEdges(stranger)) != 0 {
		t.Fatalf("unknown node should have no adjacency")
	}
	if _, ok := g.EdgeAttrs(EdgeKey{Subject: stranger, Target: stranger, RelationType: "call"}); ok {
		t.Fatalf("unknown edge should not resolve attrs")
	}
}
