package topology

import (
	"sort"

	"github.com/opensource-finance/harrier/internal/graph"
)

// HubPattern is a hub-and-spoke distributor found in the graph.
type HubPattern struct {
	Account     string   `json:"account"`
	Spokes      []string `json:"spokes"`
	SpokeCount  int      `json:"spokeCount"`
	TotalAmount float64  `json:"totalAmount"`
}

// FunnelPattern is a many-in, few-out collector found in the graph.
type FunnelPattern struct {
	Account     string  `json:"account"`
	InDegree    int     `json:"inDegree"`
	OutDegree   int     `json:"outDegree"`
	Ratio       float64 `json:"ratio"`
	TotalInflow float64 `json:"totalInflow"`
}

// Hubs lists every hub in the graph, most spokes first.
func (a *Analyzer) Hubs(g *graph.Graph) []HubPattern {
	var hubs []HubPattern
	for _, id := range g.Nodes() {
		if !a.IsHub(g, id) {
			continue
		}
		spokes := g.Successors(id)
		total := 0.0
		for _, s := range spokes {
			if e, ok := g.Edge(id, s); ok {
				total += e.Weight
			}
		}
		hubs = append(hubs, HubPattern{Account: id, Spokes: spokes, SpokeCount: len(spokes), TotalAmount: total})
	}
	sort.SliceStable(hubs, func(i, j int) bool { return hubs[i].SpokeCount > hubs[j].SpokeCount })
	return hubs
}

// Funnels lists every funnel account in the graph, highest ratio first.
func (a *Analyzer) Funnels(g *graph.Graph) []FunnelPattern {
	var funnels []FunnelPattern
	for _, id := range g.Nodes() {
		ok, ratio := a.IsFunnel(g, id)
		if !ok {
			continue
		}
		inflow := 0.0
		for _, p := range g.Predecessors(id) {
			if e, ok := g.Edge(p, id); ok {
				inflow += e.Weight
			}
		}
		funnels = append(funnels, FunnelPattern{
			Account:     id,
			InDegree:    g.InDegree(id),
			OutDegree:   g.OutDegree(id),
			Ratio:       ratio,
			TotalInflow: inflow,
		})
	}
	sort.SliceStable(funnels, func(i, j int) bool { return funnels[i].Ratio > funnels[j].Ratio })
	return funnels
}

// NodeSummary is one account in the network visualization payload.
type NodeSummary struct {
	ID          string  `json:"id"`
	Degree      int     `json:"degree"`
	Betweenness float64 `json:"betweenness"`
	PageRank    float64 `json:"pagerank"`
	IsHub       bool    `json:"isHub"`
	IsFunnel    bool    `json:"isFunnel"`
}

// Overview is the whole-graph visualization payload.
type Overview struct {
	Nodes []NodeSummary `json:"nodes"`
	Links []*graph.Edge `json:"links"`
}

// Overview summarizes every node and edge of the graph for rendering.
func (a *Analyzer) Overview(g *graph.Graph) Overview {
	c := a.Centrality(g)
	nodes := make([]NodeSummary, 0, g.NodeCount())
	for _, id := range g.Nodes() {
		funnel, _ := a.IsFunnel(g, id)
		nodes = append(nodes, NodeSummary{
			ID:          id,
			Degree:      g.Degree(id),
			Betweenness: c.Betweenness[id],
			PageRank:    c.PageRank[id],
			IsHub:       a.IsHub(g, id),
			IsFunnel:    funnel,
		})
	}
	return Overview{Nodes: nodes, Links: g.Edges()}
}
