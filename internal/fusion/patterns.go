package fusion

import (
	"context"
	"errors"
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
	"github.com/opensource-finance/harrier/internal/topology"
)

// Pattern kinds accepted by Patterns.
const (
	PatternAll         = "all"
	PatternHubSpoke    = "hub-spoke"
	PatternFunnel      = "funnel"
	PatternLayering    = "layering"
	PatternCircular    = "circular"
	PatternStructuring = "structuring"
)

// ErrUnknownPattern is returned for an unsupported pattern kind.
var ErrUnknownPattern = errors.New("unknown pattern type")

// PatternReport lists graph-wide suspicious patterns.
type PatternReport struct {
	HubSpoke    []topology.HubPattern       `json:"hubSpoke,omitempty"`
	Funnels     []topology.FunnelPattern    `json:"funnels,omitempty"`
	Layering    []domain.MultiHopPath       `json:"layering,omitempty"`
	Circular    []domain.CircularFlow       `json:"circular,omitempty"`
	Structuring []domain.StructuringCluster `json:"structuring,omitempty"`
}

// Patterns detects patterns of the given kind across the whole graph.
func (e *Engine) Patterns(ctx context.Context, kind string) (*PatternReport, error) {
	if kind == "" {
		kind = PatternAll
	}
	switch kind {
	case PatternAll, PatternHubSpoke, PatternFunnel, PatternLayering, PatternCircular, PatternStructuring:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownPattern, kind)
	}

	ctx, span := tracer.Start(ctx, "fusion.Patterns")
	defer span.End()

	txs, g := e.load(ctx)
	return e.patterns(ctx, kind, txs, g), nil
}

func (e *Engine) patterns(ctx context.Context, kind string, txs []*domain.Transaction, g *graph.Graph) *PatternReport {
	want := func(k string) bool { return kind == PatternAll || kind == k }

	report := &PatternReport{}
	if want(PatternHubSpoke) {
		report.HubSpoke = e.topology.Hubs(g)
	}
	if want(PatternFunnel) {
		report.Funnels = e.topology.Funnels(g)
	}
	if want(PatternLayering) {
		report.Layering = e.layering.MultiHopPaths(ctx, g)
	}
	if want(PatternCircular) {
		report.Circular = e.layering.CircularFlows(ctx, g)
	}
	if want(PatternStructuring) {
		report.Structuring = e.layering.Structuring(txs, "")
	}
	return report
}

// Overview returns the whole-graph visualization payload.
func (e *Engine) Overview(ctx context.Context) topology.Overview {
	_, g := e.load(ctx)
	return e.topology.Overview(g)
}

// Statistics summarizes the store and the current graph.
type Statistics struct {
	TotalTransactions int            `json:"totalTransactions"`
	TotalAccounts     int            `json:"totalAccounts"`
	CriticalAccounts  int            `json:"criticalAccounts"`
	HighRiskAccounts  int            `json:"highRiskAccounts"`
	Nodes             int            `json:"nodes"`
	Edges             int            `json:"edges"`
	Patterns          map[string]int `json:"patterns"`
}

// statisticsScanLimit bounds the score rows read when counting bands.
const statisticsScanLimit = 1_000_000

// Statistics gathers counts for the dashboard.
func (e *Engine) Statistics(ctx context.Context) (*Statistics, error) {
	ctx, span := tracer.Start(ctx, "fusion.Statistics")
	defer span.End()

	count, err := e.store.CountTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}
	accounts, err := e.store.DistinctAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	high, err := e.store.FetchAccountsAboveThreshold(ctx, domain.HighThreshold, statisticsScanLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch high-risk accounts: %w", err)
	}

	stats := &Statistics{
		TotalTransactions: count,
		TotalAccounts:     len(accounts),
	}
	for _, r := range high {
		if r.RiskScore >= domain.CriticalThreshold {
			stats.CriticalAccounts++
		} else {
			stats.HighRiskAccounts++
		}
	}

	txs, g := e.load(ctx)
	report := e.patterns(ctx, PatternAll, txs, g)
	stats.Nodes = g.NodeCount()
	stats.Edges = g.EdgeCount()
	stats.Patterns = map[string]int{
		PatternHubSpoke:    len(report.HubSpoke),
		PatternFunnel:      len(report.Funnels),
		PatternLayering:    len(report.Layering),
		PatternCircular:    len(report.Circular),
		PatternStructuring: len(report.Structuring),
	}
	return stats, nil
}
