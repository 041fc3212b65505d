package sar

import (
	"github.com/google/cel-go/cel"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/rules"
)

// Indicator groups.
const (
	GroupBehavioral = "behavioral"
	GroupNetwork    = "network"
	GroupLayering   = "layering"
	GroupFATF       = "fatf"
)

// Severities used by FATF red flags.
const (
	SeverityHigh   = "HIGH"
	SeverityMedium = "MEDIUM"
)

// IndicatorRules is the default indicator catalog. FATF rules carry their
// category in Feature.
var IndicatorRules = []rules.Rule{
	{ID: "rapid_in_out", Group: GroupBehavioral,
		Condition: "rapid_in_out",
		Message:   `"Rapid in-out transaction pattern"`},
	{ID: "dormant_activation", Group: GroupBehavioral,
		Condition: "dormant_activation",
		Message:   `"Dormant account suddenly activated"`},
	{ID: "small_to_large", Group: GroupBehavioral,
		Condition: "small_to_large",
		Message:   `"Multiple small inbound followed by large outbound"`},
	{ID: "high_throughput", Group: GroupBehavioral,
		Condition: "high_throughput",
		Message:   `"Unusually high transaction throughput"`},
	{ID: "new_account", Group: GroupBehavioral,
		Condition: "transaction_count > 0 && account_age_days < 30.0",
		Message:   `"Newly created account with suspicious activity"`},

	{ID: "hub", Group: GroupNetwork,
		Condition: "is_hub",
		Message:   `"Hub-and-spoke distribution pattern detected"`},
	{ID: "funnel", Group: GroupNetwork,
		Condition: "is_funnel",
		Message:   `"Funnel account behavior (aggregation point)"`},
	{ID: "betweenness", Group: GroupNetwork,
		Condition: "betweenness_centrality > 0.1",
		Message:   `"High betweenness centrality (key intermediary in network)"`},
	{ID: "chains", Group: GroupNetwork,
		Condition: "layering_chains > 0",
		Message:   `"Involved in " + string(layering_chains) + " layering chains"`},

	{ID: "multi_hop", Group: GroupLayering,
		Condition: "multi_hop_count > 0",
		Message:   `"Involved in " + string(multi_hop_count) + " multi-hop transaction paths"`},
	{ID: "circular", Group: GroupLayering,
		Condition: "circular_flow_count > 0",
		Message:   `"Involved in " + string(circular_flow_count) + " circular money flows"`},
	{ID: "structuring", Group: GroupLayering,
		Condition: "structuring_count > 0",
		Message:   `string(structuring_count) + " structuring patterns detected"`},

	{ID: "fatf_structuring", Group: GroupFATF, Feature: "Structuring", Severity: SeverityHigh,
		Condition: "structuring_count > 0",
		Message:   `"Multiple transactions structured to avoid reporting thresholds"`},
	{ID: "fatf_pass_through", Group: GroupFATF, Feature: "Rapid Pass-Through", Severity: SeverityHigh,
		Condition: "rapid_in_out",
		Message:   `"Funds received and immediately transferred out"`},
	{ID: "fatf_funnel", Group: GroupFATF, Feature: "Funnel Account", Severity: SeverityMedium,
		Condition: "is_funnel",
		Message:   `"Account used to aggregate funds from multiple sources"`},
	{ID: "fatf_layering", Group: GroupFATF, Feature: "Layering", Severity: SeverityHigh,
		Condition: "multi_hop_count > 0",
		Message:   `"Complex multi-hop transaction chains to obscure fund origin"`},
	{ID: "fatf_circular", Group: GroupFATF, Feature: "Circular Transactions", Severity: SeverityMedium,
		Condition: "circular_flow_count > 0",
		Message:   `"Circular money flows detected"`},
	{ID: "fatf_dormant", Group: GroupFATF, Feature: "Account Anomaly", Severity: SeverityMedium,
		Condition: "dormant_activation",
		Message:   `"Dormant account suddenly reactivated with high activity"`},
}

func factDecls() map[string]*cel.Type {
	return map[string]*cel.Type{
		"risk_score":             cel.DoubleType,
		"transaction_count":      cel.IntType,
		"account_age_days":       cel.DoubleType,
		"rapid_in_out":           cel.BoolType,
		"dormant_activation":     cel.BoolType,
		"small_to_large":         cel.BoolType,
		"high_throughput":        cel.BoolType,
		"is_hub":                 cel.BoolType,
		"is_funnel":              cel.BoolType,
		"betweenness_centrality": cel.DoubleType,
		"layering_chains":        cel.IntType,
		"multi_hop_count":        cel.IntType,
		"circular_flow_count":    cel.IntType,
		"structuring_count":      cel.IntType,
	}
}

func factsOf(a *domain.RiskAssessment) map[string]any {
	b := a.Behavioral.Features
	return map[string]any{
		"risk_score":             a.RiskScore,
		"transaction_count":      int64(b.TransactionCount),
		"account_age_days":       b.AccountAgeDays,
		"rapid_in_out":           b.RapidInOut,
		"dormant_activation":     b.DormantActivation,
		"small_to_large":         b.SmallToLarge,
		"high_throughput":        b.HighThroughput,
		"is_hub":                 a.Network.IsHub,
		"is_funnel":              a.Network.IsFunnel,
		"betweenness_centrality": a.Network.BetweennessCentrality,
		"layering_chains":        int64(a.Network.LayeringChains),
		"multi_hop_count":        int64(len(a.Layering.MultiHopPaths)),
		"circular_flow_count":    int64(len(a.Layering.CircularFlows)),
		"structuring_count":      int64(len(a.Layering.Structuring)),
	}
}
