// Package graph builds the directed, edge-aggregated account graph that all
// topology and layering detectors run on.
package graph

import (
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Edge aggregates every transaction from one account to another.
type Edge struct {
	From       string      `json:"source"`
	To         string      `json:"target"`
	Weight     float64     `json:"weight"`
	Count      int         `json:"count"`
	Timestamps []time.Time `json:"-"`
}

// FirstTimestamp returns the earliest transaction time on the edge.
func (e *Edge) FirstTimestamp() time.Time {
	var first time.Time
	for _, ts := range e.Timestamps {
		if first.IsZero() || ts.Before(first) {
			first = ts
		}
	}
	return first
}

// Graph is an immutable snapshot. Nodes are held in sorted id order so every
// traversal over it is deterministic.
type Graph struct {
	nodes []string
	index map[string]int
	succ  [][]int
	pred  [][]int
	edges map[[2]int]*Edge
}

// Build aggregates transactions into a graph. Nodes, weights and counts do
// not depend on the order of the input; edge timestamps keep input order.
func Build(txs []*domain.Transaction) *Graph {
	input := make([]*domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx != nil {
			input = append(input, tx)
		}
	}
	// Weights are summed in a fixed order so float totals are identical
	// across permutations.
	ordered := append([]*domain.Transaction(nil), input...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Timestamp.Before(ordered[j].Timestamp)
		}
		return ordered[i].ID < ordered[j].ID
	})

	seen := make(map[string]struct{})
	for _, tx := range ordered {
		seen[tx.FromAccount] = struct{}{}
		seen[tx.ToAccount] = struct{}{}
	}
	nodes := make([]string, 0, len(seen))
	for id := range seen {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)

	g := newGraph(nodes)
	for _, tx := range ordered {
		key := [2]int{g.index[tx.FromAccount], g.index[tx.ToAccount]}
		e, ok := g.edges[key]
		if !ok {
			e = &Edge{From: tx.FromAccount, To: tx.ToAccount}
			g.edges[key] = e
		}
		e.Weight += tx.Amount
		e.Count++
	}
	for _, tx := range input {
		e := g.edges[[2]int{g.index[tx.FromAccount], g.index[tx.ToAccount]}]
		e.Timestamps = append(e.Timestamps, tx.Timestamp)
	}
	g.link()
	return g
}

func newGraph(nodes []string) *Graph {
	g := &Graph{
		nodes: nodes,
		index: make(map[string]int, len(nodes)),
		succ:  make([][]int, len(nodes)),
		pred:  make([][]int, len(nodes)),
		edges: make(map[[2]int]*Edge),
	}
	for i, id := range nodes {
		g.index[id] = i
	}
	return g
}

// link fills the adjacency lists from the edge map.
func (g *Graph) link() {
	for key := range g.edges {
		g.succ[key[0]] = append(g.succ[key[0]], key[1])
		g.pred[key[1]] = append(g.pred[key[1]], key[0])
	}
	for i := range g.nodes {
		sort.Ints(g.succ[i])
		sort.Ints(g.pred[i])
	}
}

// NodeCount returns the number of accounts in the graph.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of distinct ordered account pairs.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Nodes returns the account ids in sorted order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// HasNode reports whether the account appears in any transaction.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Edge returns the aggregated edge from one account to another.
func (g *Graph) Edge(from, to string) (*Edge, bool) {
	i, ok := g.index[from]
	if !ok {
		return nil, false
	}
	j, ok := g.index[to]
	if !ok {
		return nil, false
	}
	e, ok := g.edges[[2]int{i, j}]
	return e, ok
}

// Edges returns every edge ordered by (from, to).
func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.edges))
	for i := range g.nodes {
		for _, j := range g.succ[i] {
			out = append(out, g.edges[[2]int{i, j}])
		}
	}
	return out
}

// Successors returns the accounts the given account sent money to.
func (g *Graph) Successors(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.names(g.succ[i])
}

// Predecessors returns the accounts that sent money to the given account.
func (g *Graph) Predecessors(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.names(g.pred[i])
}

// OutDegree counts distinct recipients. A self-loop counts once.
func (g *Graph) OutDegree(id string) int {
	if i, ok := g.index[id]; ok {
		return len(g.succ[i])
	}
	return 0
}

// InDegree counts distinct senders. A self-loop counts once.
func (g *Graph) InDegree(id string) int {
	if i, ok := g.index[id]; ok {
		return len(g.pred[i])
	}
	return 0
}

// Degree is InDegree + OutDegree.
func (g *Graph) Degree(id string) int {
	return g.InDegree(id) + g.OutDegree(id)
}

// Ego returns the 1-hop neighborhood of an account in both directions,
// with every edge among the neighborhood. Nil if the account is absent.
func (g *Graph) Ego(id string) *Graph {
	center, ok := g.index[id]
	if !ok {
		return nil
	}

	members := map[int]struct{}{center: {}}
	for _, j := range g.succ[center] {
		members[j] = struct{}{}
	}
	for _, j := range g.pred[center] {
		members[j] = struct{}{}
	}

	nodes := make([]string, 0, len(members))
	for i := range members {
		nodes = append(nodes, g.nodes[i])
	}
	sort.Strings(nodes)

	ego := newGraph(nodes)
	for key, e := range g.edges {
		if _, ok := members[key[0]]; !ok {
			continue
		}
		if _, ok := members[key[1]]; !ok {
			continue
		}
		ego.edges[[2]int{ego.index[e.From], ego.index[e.To]}] = e
	}
	ego.link()
	return ego
}

// PathAmount sums edge weights along consecutive accounts of a path.
func (g *Graph) PathAmount(path []string) float64 {
	total := 0.0
	for i := 0; i+1 < len(path); i++ {
		if e, ok := g.Edge(path[i], path[i+1]); ok {
			total += e.Weight
		}
	}
	return total
}

func (g *Graph) names(idx []int) []string {
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = g.nodes[i]
	}
	return out
}
