package graph

import "github.com/google/uuid"

// EdgeKey identifies an edge by its endpoints and relation type. A struct
// key avoids the collisions string-concatenated keys invite when ids share
// delimiter characters.
type EdgeKey struct {
	Subject      uuid.UUID
	Target       uuid.UUID
	RelationType string
}

// EdgeAttrs carries the roll-up attributes queries score against.
type EdgeAttrs struct {
	Weight     int
	Confidence *float64
	RollupID   uuid.UUID
}

type Edge struct {
	Key   EdgeKey
	Attrs EdgeAttrs
}

// Directed is an in-memory directed multigraph: parallel edges between the
// same endpoints are allowed as long as their relation types differ. It is
// built once and read concurrently; no mutation happens after the owning
// cache publishes it.
type Directed struct {
	nodes map[uuid.UUID]struct{}
	out   map[uuid.UUID][]Edge
	in    map[uuid.UUID][]Edge
	edges map[EdgeKey]EdgeAttrs
}

func NewDirected() *Directed {
	return &Directed{
		nodes: make(map[uuid.UUID]struct{}),
		out:   make(map[uuid.UUID][]Edge),
		in:    make(map[uuid.UUID][]Edge),
		edges: make(map[EdgeKey]EdgeAttrs),
	}
}

// AddEdge inserts the edge, creating endpoints lazily. A duplicate key
// overwrites the stored attributes in place.
func (g *Directed) AddEdge(key EdgeKey, attrs EdgeAttrs) {
	g.nodes[key.Subject] = struct{}{}
	g.nodes[key.Target] = struct{}{}
	if _, exists := g.edges[key]; exists {
		g.edges[key] = attrs
		g.replace(g.out[key.Subject], key, attrs)
		g.replace(g.in[key.Target], key, attrs)
		return
	}
	g.edges[key] = attrs
	e := Edge{Key: key, Attrs: attrs}
	g.out[key.Subject] = append(g.out[key.Subject], e)
	g.in[key.Target] = append(g.in[key.Target], e)
}

func (g *Directed) replace(list []Edge, key EdgeKey, attrs EdgeAttrs) {
	for i := range list {
		if list[i].Key == key {
			list[i].Attrs = attrs
			return
		}
	}
}

func (g *Directed) HasNode(id uuid.UUID) bool {
	_, ok := g.nodes[id]
	return ok
}

func (g *Directed) HasEdge(key EdgeKey) bool {
	_, ok := g.edges[key]
	return ok
}

func (g *Directed) EdgeAttrs(key EdgeKey) (EdgeAttrs, bool) {
	attrs, ok := g.edges[key]
	return attrs, ok
}

// OutEdges returns edges leaving id in insertion order.
func (g *Directed) OutEdges(id uuid.UUID) []Edge {
	return g.out[id]
}

// InEdges returns edges arriving at id in insertion order.
func (g *Directed) InEdges(id uuid.UUID) []Edge {
	return g.in[id]
}

func (g *Directed) Nodes() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	return out
}

func (g *Directed) NodeCount() int { return len(g.nodes) }

func (g *Directed) EdgeCount() int { return len(g.edges) }
