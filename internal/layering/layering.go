// Package layering detects fund-layering patterns: time-bounded multi-hop
// chains, circular flows and structuring bursts.
package layering

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
	"github.com/opensource-finance/harrier/internal/topology"
)

// Detector runs the layering detectors against one graph snapshot.
type Detector struct {
	cfg     domain.DetectionConfig
	sampler graph.Sampler
}

// NewDetector creates a detector. A nil sampler uses a seeded sampler built
// from cfg.SampleSeed.
func NewDetector(cfg domain.DetectionConfig, sampler graph.Sampler) *Detector {
	if sampler == nil {
		sampler = graph.NewSeededSampler(cfg.SampleSeed)
	}
	return &Detector{cfg: cfg, sampler: sampler}
}

// MultiHopPaths finds simple paths of at least MinHops nodes between sampled
// accounts whose edges all first fired within PathWindow of each other.
// When the enumeration deadline passes, the paths found so far are returned.
func (d *Detector) MultiHopPaths(ctx context.Context, g *graph.Graph) []domain.MultiHopPath {
	sample := d.sampler.Sample(g.Nodes(), d.cfg.PathSampleCap)
	cutoff := min(d.cfg.MinHops+2, d.cfg.MaxPathCutoff)

	ctx, cancel := context.WithTimeout(ctx, d.cfg.PathDeadline)
	defer cancel()

	window := d.cfg.PathWindow.Hours()
	var paths []domain.MultiHopPath
	complete := g.SimplePaths(ctx, sample, cutoff, d.cfg.MinHops, func(path []string) {
		span, ok := timeSpanHours(g, path)
		if !ok || span > window {
			return
		}
		paths = append(paths, domain.MultiHopPath{
			Path:          path,
			HopCount:      len(path) - 1,
			TotalAmount:   g.PathAmount(path),
			TimeSpanHours: span,
		})
	})
	if !complete {
		slog.Warn("multi-hop enumeration hit deadline",
			"deadline", d.cfg.PathDeadline,
			"paths_found", len(paths),
		)
	}

	topology.SortPaths(paths)
	return paths
}

// timeSpanHours is the spread of the earliest timestamps of the path's edges.
func timeSpanHours(g *graph.Graph, path []string) (float64, bool) {
	var first, last time.Time
	for i := 0; i+1 < len(path); i++ {
		e, ok := g.Edge(path[i], path[i+1])
		if !ok || len(e.Timestamps) == 0 {
			continue
		}
		ts := e.FirstTimestamp()
		if first.IsZero() || ts.Before(first) {
			first = ts
		}
		if last.IsZero() || ts.After(last) {
			last = ts
		}
	}
	if first.IsZero() {
		return 0, false
	}
	return last.Sub(first).Hours(), true
}

// CircularFlows finds simple cycles of length three or more, longest and
// largest first, capped at MaxCycles.
func (d *Detector) CircularFlows(ctx context.Context, g *graph.Graph) []domain.CircularFlow {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.PathDeadline)
	defer cancel()

	var flows []domain.CircularFlow
	complete := g.SimpleCycles(ctx, d.cfg.CycleBudget, func(cycle []string) {
		if len(cycle) < 3 {
			return
		}
		closed := append(append([]string{}, cycle...), cycle[0])
		flows = append(flows, domain.CircularFlow{
			Cycle:       cycle,
			Length:      len(cycle),
			TotalAmount: g.PathAmount(closed),
		})
	})
	if !complete {
		slog.Warn("cycle enumeration stopped early",
			"budget", d.cfg.CycleBudget,
			"cycles_found", len(flows),
		)
	}

	sort.SliceStable(flows, func(i, j int) bool {
		if flows[i].Length != flows[j].Length {
			return flows[i].Length > flows[j].Length
		}
		return flows[i].TotalAmount > flows[j].TotalAmount
	})
	if len(flows) > d.cfg.MaxCycles {
		flows = flows[:d.cfg.MaxCycles]
	}
	return flows
}

// Findings are the graph-wide layering results of one snapshot.
type Findings struct {
	MultiHopPaths []domain.MultiHopPath
	CircularFlows []domain.CircularFlow
}

// Find runs the graph-wide detectors once for a snapshot.
func (d *Detector) Find(ctx context.Context, g *graph.Graph) Findings {
	return Findings{
		MultiHopPaths: d.MultiHopPaths(ctx, g),
		CircularFlows: d.CircularFlows(ctx, g),
	}
}

// Analyze gathers the layering findings that involve one account and scores them.
func (d *Detector) Analyze(ctx context.Context, g *graph.Graph, txs []*domain.Transaction, accountID string) domain.LayeringReport {
	return d.Report(d.Find(ctx, g), txs, accountID)
}

// Report filters snapshot findings down to one account and scores them.
func (d *Detector) Report(f Findings, txs []*domain.Transaction, accountID string) domain.LayeringReport {
	report := domain.LayeringReport{
		MultiHopPaths: []domain.MultiHopPath{},
		CircularFlows: []domain.CircularFlow{},
		Structuring:   d.Structuring(txs, accountID),
	}

	for _, p := range f.MultiHopPaths {
		if contains(p.Path, accountID) {
			report.MultiHopPaths = append(report.MultiHopPaths, p)
		}
	}
	for _, c := range f.CircularFlows {
		if contains(c.Cycle, accountID) {
			report.CircularFlows = append(report.CircularFlows, c)
		}
	}

	report.Score = Score(len(report.MultiHopPaths), len(report.CircularFlows), len(report.Structuring))
	return report
}

// Score combines finding counts into [0,1].
func Score(paths, cycles, clusters int) float64 {
	score := 0.0
	if paths > 0 {
		score += min(0.4, float64(paths)*0.1)
	}
	if cycles > 0 {
		score += min(0.35, float64(cycles)*0.15)
	}
	if clusters > 0 {
		score += min(0.25, float64(clusters)*0.1)
	}
	return min(score, 1.0)
}

func contains(nodes []string, id string) bool {
	for _, n := range nodes {
		if n == id {
			return true
		}
	}
	return false
}
