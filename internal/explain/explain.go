// Package explain turns a risk assessment into ranked, human-readable reasons.
package explain

import (
	"context"
	"log/slog"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Explainer produces an explanation for an assessment.
type Explainer interface {
	Explain(ctx context.Context, a *domain.RiskAssessment) (*domain.Explanation, error)
	Method() string
}

// Select probes for a usable model file and falls back to the rule-based
// explainer when none can be loaded.
func Select(cfg domain.ExplainConfig) (Explainer, error) {
	if cfg.ModelPath != "" {
		m, err := LoadModel(cfg.ModelPath)
		if err == nil {
			slog.Info("explainer selected", "method", MethodModel, "path", cfg.ModelPath, "samples", m.Samples)
			return NewModelExplainer(m, cfg.TopReasons), nil
		}
		slog.Debug("model unavailable, using rule-based explainer", "path", cfg.ModelPath, "error", err)
	}
	return NewRuleBased(nil, cfg.TopReasons)
}

func newExplanation(a *domain.RiskAssessment, method string, reasons []string, contributions []domain.FeatureContribution) *domain.Explanation {
	return &domain.Explanation{
		AccountID:            a.AccountID,
		RiskScore:            a.RiskScore,
		RiskLevel:            a.RiskLevel,
		Method:               method,
		TopReasons:           reasons,
		FeatureContributions: contributions,
	}
}
