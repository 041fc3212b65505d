// Package topology scores accounts by their position in the transaction graph.
package topology

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

// Analyzer computes centrality, hub/funnel flags and the network score.
type Analyzer struct {
	cfg     domain.DetectionConfig
	sampler graph.Sampler
}

// NewAnalyzer creates an analyzer. A nil sampler uses a seeded sampler built
// from cfg.SampleSeed.
func NewAnalyzer(cfg domain.DetectionConfig, sampler graph.Sampler) *Analyzer {
	if sampler == nil {
		sampler = graph.NewSeededSampler(cfg.SampleSeed)
	}
	return &Analyzer{cfg: cfg, sampler: sampler}
}

// Centrality holds the per-node metrics of one graph snapshot.
type Centrality struct {
	Degree      map[string]float64
	Betweenness map[string]float64
	PageRank    map[string]float64
	Sampled     bool
	Converged   bool
}

// Centrality computes every centrality metric for the graph. Betweenness is
// exact below the configured node limit and pivot-sampled at or above it.
func (a *Analyzer) Centrality(g *graph.Graph) *Centrality {
	c := &Centrality{Degree: g.DegreeCentrality()}

	n := g.NodeCount()
	if n < a.cfg.BetweennessExactLimit {
		c.Betweenness = g.Betweenness(nil)
	} else {
		k := min(a.cfg.BetweennessPivots, n)
		c.Betweenness = g.Betweenness(a.sampler.Sample(g.Nodes(), k))
		c.Sampled = true
	}

	c.PageRank, c.Converged = g.PageRank(a.cfg.PageRankDamping, a.cfg.PageRankMaxIterations)
	return c
}

// IsHub reports a hub-and-spoke distributor: many recipients, most of which
// forward to at most a couple of accounts.
func (a *Analyzer) IsHub(g *graph.Graph, id string) bool {
	succ := g.Successors(id)
	if len(succ) < a.cfg.HubThreshold || len(succ) == 0 {
		return false
	}
	leaves := 0
	for _, s := range succ {
		if g.OutDegree(s) <= a.cfg.HubLeafMaxOutDegree {
			leaves++
		}
	}
	return float64(leaves)/float64(len(succ)) >= a.cfg.HubLeafShare
}

// IsFunnel reports an account with many senders and few recipients, and the
// in/out ratio that backs it.
func (a *Analyzer) IsFunnel(g *graph.Graph, id string) (bool, float64) {
	in := g.InDegree(id)
	out := g.OutDegree(id)
	if in >= a.cfg.FunnelThreshold && out <= a.cfg.FunnelMaxOutDegree {
		return true, float64(in) / float64(max(out, 1))
	}
	return false, 0
}

// LayeringChains finds simple paths of at least MinHops nodes between sampled
// accounts, longest and largest first. No time window applies here.
func (a *Analyzer) LayeringChains(ctx context.Context, g *graph.Graph) []domain.MultiHopPath {
	sample := a.sampler.Sample(g.Nodes(), a.cfg.ChainSampleCap)

	ctx, cancel := context.WithTimeout(ctx, a.cfg.PathDeadline)
	defer cancel()

	var chains []domain.MultiHopPath
	g.SimplePaths(ctx, sample, a.cfg.MaxPathCutoff, a.cfg.MinHops, func(path []string) {
		chains = append(chains, domain.MultiHopPath{
			Path:        path,
			HopCount:    len(path) - 1,
			TotalAmount: g.PathAmount(path),
		})
	})

	SortPaths(chains)
	if len(chains) > a.cfg.MaxChains {
		chains = chains[:a.cfg.MaxChains]
	}
	return chains
}

// Analyze builds the network profile of one account.
func (a *Analyzer) Analyze(ctx context.Context, g *graph.Graph, id string) (domain.NetworkProfile, error) {
	if !g.HasNode(id) {
		return domain.NetworkProfile{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
	}
	return a.profile(g, a.Centrality(g), a.LayeringChains(ctx, g), id), nil
}

// Prepared holds the whole-graph results shared by every account profiled
// against one snapshot.
type Prepared struct {
	Graph      *graph.Graph
	Centrality *Centrality
	Chains     []domain.MultiHopPath
}

// Prepare computes centrality and layering chains once for a snapshot.
func (a *Analyzer) Prepare(ctx context.Context, g *graph.Graph) *Prepared {
	return &Prepared{
		Graph:      g,
		Centrality: a.Centrality(g),
		Chains:     a.LayeringChains(ctx, g),
	}
}

// Profile builds the network profile of one account from prepared results.
func (a *Analyzer) Profile(p *Prepared, id string) (domain.NetworkProfile, error) {
	if !p.Graph.HasNode(id) {
		return domain.NetworkProfile{}, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
	}
	return a.profile(p.Graph, p.Centrality, p.Chains, id), nil
}

func (a *Analyzer) profile(g *graph.Graph, c *Centrality, chains []domain.MultiHopPath, id string) domain.NetworkProfile {
	funnel, ratio := a.IsFunnel(g, id)
	p := domain.NetworkProfile{
		DegreeCentrality:      c.Degree[id],
		InDegree:              g.InDegree(id),
		OutDegree:             g.OutDegree(id),
		BetweennessCentrality: c.Betweenness[id],
		PageRank:              c.PageRank[id],
		IsHub:                 a.IsHub(g, id),
		IsFunnel:              funnel,
		FunnelRatio:           ratio,
		LayeringChains:        countInvolving(chains, id),
	}
	p.Score = a.Score(p)
	return p
}

// Score combines the topology signals into [0,1].
func (a *Analyzer) Score(p domain.NetworkProfile) float64 {
	score := 0.0
	if p.BetweennessCentrality > a.cfg.BetweennessThreshold {
		score += 0.3
	}
	if p.IsHub {
		score += 0.25
	}
	if p.IsFunnel {
		score += 0.25
	}
	if p.LayeringChains > 0 {
		score += min(0.2, float64(p.LayeringChains)*0.05)
	}
	return min(score, 1.0)
}

// SortPaths orders paths by hop count then amount, both descending, with the
// joined path as the final tie-break.
func SortPaths(paths []domain.MultiHopPath) {
	sort.SliceStable(paths, func(i, j int) bool {
		if paths[i].HopCount != paths[j].HopCount {
			return paths[i].HopCount > paths[j].HopCount
		}
		if paths[i].TotalAmount != paths[j].TotalAmount {
			return paths[i].TotalAmount > paths[j].TotalAmount
		}
		return lessPath(paths[i].Path, paths[j].Path)
	})
}

func lessPath(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func countInvolving(paths []domain.MultiHopPath, id string) int {
	n := 0
	for _, p := range paths {
		for _, node := range p.Path {
			if node == id {
				n++
				break
			}
		}
	}
	return n
}
