// Package sar assembles Suspicious Activity Report payloads from a scored
// assessment, its explanation and the account's ego network.
package sar

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
	"github.com/opensource-finance/harrier/internal/rules"
)

// maxEvidence bounds each evidence list.
const maxEvidence = 5

// Report is a SAR payload ready for a case-management system.
type Report struct {
	SarID                string               `json:"sarId"`
	GeneratedAt          time.Time            `json:"generatedAt"`
	AccountInformation   AccountInformation   `json:"accountInformation"`
	RiskAssessment       RiskSummary          `json:"riskAssessment"`
	SuspiciousIndicators SuspiciousIndicators `json:"suspiciousIndicators"`
	FATFRedFlags         []RedFlag            `json:"fatfRedFlags"`
	NetworkAnalysis      NetworkSnapshot      `json:"networkAnalysis"`
	Evidence             Evidence             `json:"evidence"`
	Recommendations      []string             `json:"recommendations"`
	ComplianceActions    []string             `json:"complianceActions"`
}

// AccountInformation identifies the subject account.
type AccountInformation struct {
	AccountID        string     `json:"accountId"`
	AccountType      string     `json:"accountType,omitempty"`
	Country          string     `json:"country,omitempty"`
	RiskTier         string     `json:"riskTier,omitempty"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
	TransactionCount int        `json:"transactionCount"`
	TotalVolume      float64    `json:"totalVolume"`
	AccountAgeDays   float64    `json:"accountAgeDays"`
}

// RiskSummary is the rounded score breakdown.
type RiskSummary struct {
	RiskScore       float64                `json:"riskScore"`
	RiskLevel       domain.RiskLevel       `json:"riskLevel"`
	Components      domain.ComponentScores `json:"components"`
	Method          string                 `json:"explanationMethod,omitempty"`
	AssessedAt      time.Time              `json:"assessedAt"`
	MuleProbability float64                `json:"muleProbability"`
}

// SuspiciousIndicators groups the narrative flags.
type SuspiciousIndicators struct {
	PrimaryReasons  []string `json:"primaryReasons"`
	BehavioralFlags []string `json:"behavioralFlags"`
	NetworkFlags    []string `json:"networkFlags"`
	LayeringFlags   []string `json:"layeringFlags"`
}

// RedFlag is a FATF typology indicator.
type RedFlag struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// SnapshotNode is one account of the ego network.
type SnapshotNode struct {
	ID        string `json:"id"`
	IsSubject bool   `json:"isSubject"`
	Degree    int    `json:"degree"`
}

// SnapshotLink is one aggregated edge of the ego network.
type SnapshotLink struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
	Count  int     `json:"count"`
}

// NetworkSnapshot is the subject's one-hop neighborhood.
type NetworkSnapshot struct {
	Nodes      []SnapshotNode `json:"nodes"`
	Links      []SnapshotLink `json:"links"`
	TotalNodes int            `json:"totalNodes"`
	TotalEdges int            `json:"totalEdges"`
}

// Evidence holds the strongest layering findings.
type Evidence struct {
	MultiHopPaths       []domain.MultiHopPath       `json:"multiHopPaths"`
	CircularFlows       []domain.CircularFlow       `json:"circularFlows"`
	StructuringPatterns []domain.StructuringCluster `json:"structuringPatterns"`
}

// Builder renders reports. It is safe for concurrent use.
type Builder struct {
	engine *rules.Engine
	now    func() time.Time
}

// NewBuilder compiles the indicator catalog. A nil catalog uses
// IndicatorRules; a nil clock uses time.Now.
func NewBuilder(catalog []rules.Rule, now func() time.Time) (*Builder, error) {
	if catalog == nil {
		catalog = IndicatorRules
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	engine, err := rules.NewEngine(factDecls())
	if err != nil {
		return nil, err
	}
	if err := engine.Load(catalog); err != nil {
		return nil, fmt.Errorf("failed to load indicator catalog: %w", err)
	}
	return &Builder{engine: engine, now: now}, nil
}

// Build assembles the report. The explanation, ego network and account
// enrichment are optional.
func (b *Builder) Build(ctx context.Context, a *domain.RiskAssessment, exp *domain.Explanation, ego *graph.Graph, account *domain.Account) (*Report, error) {
	if a == nil {
		return nil, fmt.Errorf("assessment is required")
	}

	matches, err := b.engine.Evaluate(ctx, factsOf(a))
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		slog.Warn("some SAR indicators failed to evaluate", "account_id", a.AccountID, "error", err)
	}

	report := &Report{
		SarID:              uuid.New().String(),
		GeneratedAt:        b.now(),
		AccountInformation: accountInformation(a, account),
		RiskAssessment: RiskSummary{
			RiskScore: round(a.RiskScore),
			RiskLevel: a.RiskLevel,
			Components: domain.ComponentScores{
				Behavioral: round(a.Components.Behavioral),
				Network:    round(a.Components.Network),
				Layering:   round(a.Components.Layering),
				Velocity:   round(a.Components.Velocity),
			},
			AssessedAt:      a.AssessedAt,
			MuleProbability: round(a.RiskScore / 100),
		},
		SuspiciousIndicators: SuspiciousIndicators{
			PrimaryReasons:  []string{},
			BehavioralFlags: []string{},
			NetworkFlags:    []string{},
			LayeringFlags:   []string{},
		},
		FATFRedFlags:      []RedFlag{},
		NetworkAnalysis:   Snapshot(ego, a.AccountID),
		Evidence:          evidence(a.Layering),
		Recommendations:   recommendations(a),
		ComplianceActions: complianceActions(a.RiskScore),
	}
	if exp != nil {
		report.RiskAssessment.Method = exp.Method
		report.SuspiciousIndicators.PrimaryReasons = append(report.SuspiciousIndicators.PrimaryReasons, exp.TopReasons...)
	}

	ind := &report.SuspiciousIndicators
	for _, m := range matches {
		switch m.Group {
		case GroupBehavioral:
			ind.BehavioralFlags = append(ind.BehavioralFlags, m.Message)
		case GroupNetwork:
			ind.NetworkFlags = append(ind.NetworkFlags, m.Message)
		case GroupLayering:
			ind.LayeringFlags = append(ind.LayeringFlags, m.Message)
		case GroupFATF:
			report.FATFRedFlags = append(report.FATFRedFlags, RedFlag{
				Category:    m.Feature,
				Description: m.Message,
				Severity:    m.Severity,
			})
		}
	}

	return report, nil
}

func accountInformation(a *domain.RiskAssessment, account *domain.Account) AccountInformation {
	f := a.Behavioral.Features
	info := AccountInformation{
		AccountID:        a.AccountID,
		TransactionCount: f.TransactionCount,
		TotalVolume:      round(f.TotalVolume),
		AccountAgeDays:   round(f.AccountAgeDays),
	}
	if account != nil {
		info.AccountType = account.AccountType
		info.Country = account.Country
		info.RiskTier = account.RiskTier
		if !account.CreatedAt.IsZero() {
			created := account.CreatedAt
			info.CreatedAt = &created
		}
	}
	return info
}

// Snapshot renders the one-hop network around subject.
func Snapshot(ego *graph.Graph, subject string) NetworkSnapshot {
	s := NetworkSnapshot{Nodes: []SnapshotNode{}, Links: []SnapshotLink{}}
	if ego == nil {
		return s
	}
	for _, id := range ego.Nodes() {
		s.Nodes = append(s.Nodes, SnapshotNode{ID: id, IsSubject: id == subject, Degree: ego.Degree(id)})
	}
	for _, e := range ego.Edges() {
		s.Links = append(s.Links, SnapshotLink{Source: e.From, Target: e.To, Weight: round(e.Weight), Count: e.Count})
	}
	s.TotalNodes = ego.NodeCount()
	s.TotalEdges = ego.EdgeCount()
	return s
}

func evidence(l domain.LayeringReport) Evidence {
	return Evidence{
		MultiHopPaths:       firstN(l.MultiHopPaths, maxEvidence),
		CircularFlows:       firstN(l.CircularFlows, maxEvidence),
		StructuringPatterns: firstN(l.Structuring, maxEvidence),
	}
}

func firstN[T any](items []T, n int) []T {
	out := make([]T, 0, min(len(items), n))
	return append(out, items[:min(len(items), n)]...)
}

func recommendations(a *domain.RiskAssessment) []string {
	var recs []string
	switch {
	case a.RiskScore >= domain.CriticalThreshold:
		recs = []string{
			"IMMEDIATE: Freeze account and initiate investigation",
			"File SAR with financial intelligence unit",
			"Review all connected accounts in network",
		}
	case a.RiskScore >= domain.HighThreshold:
		recs = []string{
			"Enhanced monitoring for 30 days",
			"Request additional KYC documentation",
			"Manual review of recent transactions",
		}
	default:
		recs = []string{
			"Continued automated monitoring",
			"Periodic review of activity patterns",
		}
	}

	if a.Network.IsHub {
		recs = append(recs, "Investigate all downstream accounts in hub-spoke network")
	}
	if len(a.Layering.Structuring) > 0 {
		recs = append(recs, "Review all transactions near reporting thresholds")
	}
	return recs
}

func complianceActions(score float64) []string {
	switch {
	case score >= domain.CriticalThreshold:
		return []string{
			"File Suspicious Activity Report (SAR)",
			"Alert compliance officer",
			"Consider account restriction",
			"Notify law enforcement if criminal activity suspected",
		}
	case score >= domain.HighThreshold:
		return []string{
			"Enhanced Due Diligence (EDD)",
			"Transaction monitoring increase",
			"Request source of funds documentation",
		}
	default:
		return []string{
			"Standard monitoring",
			"Periodic review",
		}
	}
}

// round keeps two decimals; non-finite values pass through as zero.
func round(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
