package explain

import (
	"math"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/opensource-finance/harrier/internal/domain"
)

// FeatureNames is the fixed order of the explanation feature vector.
var FeatureNames = []string{
	"transaction_velocity",
	"in_out_ratio",
	"account_age_days",
	"rapid_in_out",
	"dormant_activation",
	"high_throughput",
	"degree_centrality",
	"betweenness_centrality",
	"pagerank",
	"is_hub",
	"is_funnel",
	"multi_hop_count",
	"circular_flow_count",
	"structuring_count",
}

// maxInOutRatio caps the ratio so inbound-only accounts stay finite.
const maxInOutRatio = 10.0

var descriptions = map[string]string{
	"transaction_velocity":   "High transaction velocity",
	"in_out_ratio":           "Unusual in/out transaction ratio",
	"account_age_days":       "New account",
	"rapid_in_out":           "Rapid in-out pattern",
	"dormant_activation":     "Dormant account activation",
	"high_throughput":        "High transaction volume",
	"degree_centrality":      "High network connectivity",
	"betweenness_centrality": "Key network intermediary",
	"pagerank":               "High network importance",
	"is_hub":                 "Hub-and-spoke pattern",
	"is_funnel":              "Funnel account pattern",
	"multi_hop_count":        "Multi-hop layering involvement",
	"circular_flow_count":    "Circular flow involvement",
	"structuring_count":      "Structuring pattern detected",
}

// Describe returns the human-readable label for a feature.
func Describe(feature string) string {
	if d, ok := descriptions[feature]; ok {
		return d
	}
	words := strings.Split(feature, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// Features extracts the explanation vector from an assessment.
func Features(a *domain.RiskAssessment) map[string]float64 {
	b := a.Behavioral.Features
	n := a.Network
	l := a.Layering

	return map[string]float64{
		"transaction_velocity":   b.TransactionVelocity,
		"in_out_ratio":           math.Min(b.InOutRatio, maxInOutRatio),
		"account_age_days":       b.AccountAgeDays,
		"rapid_in_out":           flag(b.RapidInOut),
		"dormant_activation":     flag(b.DormantActivation),
		"high_throughput":        flag(b.HighThroughput),
		"degree_centrality":      n.DegreeCentrality,
		"betweenness_centrality": n.BetweennessCentrality,
		"pagerank":               n.PageRank,
		"is_hub":                 flag(n.IsHub),
		"is_funnel":              flag(n.IsFunnel),
		"multi_hop_count":        float64(len(l.MultiHopPaths)),
		"circular_flow_count":    float64(len(l.CircularFlows)),
		"structuring_count":      float64(len(l.Structuring)),
	}
}

// Vector orders Features by FeatureNames.
func Vector(a *domain.RiskAssessment) []float64 {
	f := Features(a)
	x := make([]float64, len(FeatureNames))
	for i, name := range FeatureNames {
		x[i] = f[name]
	}
	return x
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// featureDecls declares every feature as a CEL double.
func featureDecls() map[string]*cel.Type {
	decls := make(map[string]*cel.Type, len(FeatureNames))
	for _, name := range FeatureNames {
		decls[name] = cel.DoubleType
	}
	return decls
}

func factsOf(f map[string]float64) map[string]any {
	facts := make(map[string]any, len(f))
	for k, v := range f {
		facts[k] = v
	}
	return facts
}
