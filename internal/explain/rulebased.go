package explain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/rules"
)

// MethodRuleBased identifies explanations produced by the reason table.
const MethodRuleBased = "rule_based"

// LowRiskReason is returned when no reason fires.
const LowRiskReason = "Low overall risk indicators"

// ReasonTable is the default reason catalog, in tie-break order.
var ReasonTable = []rules.Rule{
	{ID: "rapid_in_out", Feature: "rapid_in_out", Weight: 0.30,
		Condition: "rapid_in_out == 1.0",
		Message:   `"Rapid in-out transaction pattern detected"`},
	{ID: "high_betweenness", Feature: "betweenness_centrality", Weight: 0.25,
		Condition: "betweenness_centrality > 0.1",
		Message:   `"High betweenness centrality in network (key intermediary)"`},
	{ID: "hub", Feature: "is_hub", Weight: 0.20,
		Condition: "is_hub == 1.0",
		Message:   `"Hub-and-spoke distribution pattern"`},
	{ID: "funnel", Feature: "is_funnel", Weight: 0.20,
		Condition: "is_funnel == 1.0",
		Message:   `"Funnel account behavior (many inbound, few outbound)"`},
	{ID: "structuring", Feature: "structuring_count", Weight: 0.20,
		Condition: "structuring_count > 0.0",
		Message:   `"Structuring pattern detected (" + string(int(structuring_count)) + " instances)"`},
	{ID: "multi_hop", Feature: "multi_hop_count", Weight: 0.15,
		Condition: "multi_hop_count > 0.0",
		Message:   `"Involved in multi-hop layering chains (" + string(int(multi_hop_count)) + " paths)"`},
	{ID: "circular", Feature: "circular_flow_count", Weight: 0.15,
		Condition: "circular_flow_count > 0.0",
		Message:   `"Circular money flow detected (" + string(int(circular_flow_count)) + " cycles)"`},
	{ID: "dormant", Feature: "dormant_activation", Weight: 0.15,
		Condition: "dormant_activation == 1.0",
		Message:   `"Dormant account suddenly activated"`},
	{ID: "new_high_throughput", Feature: "account_age_days", Weight: 0.10,
		Condition: "account_age_days < 30.0 && high_throughput == 1.0",
		Message:   `"New account with high transaction volume"`},
	{ID: "high_velocity", Feature: "transaction_velocity", Weight: 0.10,
		Condition: "transaction_velocity > 5.0",
		Message:   `"High transaction velocity (%.2f tx/hour)".format([transaction_velocity])`},
}

// RuleBased explains an assessment with a weighted reason table.
type RuleBased struct {
	engine *rules.Engine
	top    int
}

// NewRuleBased compiles the reason table. A nil table uses ReasonTable.
func NewRuleBased(table []rules.Rule, top int) (*RuleBased, error) {
	if table == nil {
		table = ReasonTable
	}
	if top <= 0 {
		top = 5
	}

	engine, err := rules.NewEngine(featureDecls())
	if err != nil {
		return nil, err
	}
	if err := engine.Load(table); err != nil {
		return nil, fmt.Errorf("failed to load reason table: %w", err)
	}

	return &RuleBased{engine: engine, top: top}, nil
}

// Method implements Explainer.
func (r *RuleBased) Method() string {
	return MethodRuleBased
}

// Explain implements Explainer.
func (r *RuleBased) Explain(ctx context.Context, a *domain.RiskAssessment) (*domain.Explanation, error) {
	features := Features(a)

	matches, err := r.engine.Evaluate(ctx, factsOf(features))
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		slog.Warn("reason table evaluation incomplete", "account_id", a.AccountID, "error", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Weight > matches[j].Weight
	})

	reasons := make([]string, 0, r.top)
	contributions := make([]domain.FeatureContribution, 0, len(matches))
	for i, m := range matches {
		if i < r.top {
			reasons = append(reasons, m.Message)
		}
		contributions = append(contributions, domain.FeatureContribution{
			Feature:      m.Feature,
			Description:  Describe(m.Feature),
			Value:        features[m.Feature],
			Contribution: m.Weight,
		})
	}
	if len(reasons) == 0 {
		reasons = append(reasons, LowRiskReason)
	}

	return newExplanation(a, MethodRuleBased, reasons, contributions), nil
}
