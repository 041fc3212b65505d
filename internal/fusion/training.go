package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/opensource-finance/harrier/internal/explain"
)

// benignLabel marks labeled transactions that are not part of a scheme.
const benignLabel = "normal"

// TrainingSet builds explanation vectors for every account that appears in
// labeled transactions. An account is positive when any of its labeled
// transactions carries a pattern other than "normal". Nothing is persisted.
func (e *Engine) TrainingSet(ctx context.Context) ([][]float64, []bool, error) {
	ctx, span := tracer.Start(ctx, "fusion.TrainingSet")
	defer span.End()

	txs, g := e.load(ctx)

	labels := make(map[string]bool)
	for _, tx := range txs {
		label := strings.ToLower(strings.TrimSpace(tx.PatternLabel))
		if label == "" {
			continue
		}
		mule := label != benignLabel
		for _, acct := range []string{tx.FromAccount, tx.ToAccount} {
			labels[acct] = labels[acct] || mule
		}
	}
	if len(labels) == 0 {
		return nil, nil, fmt.Errorf("no labeled transactions")
	}

	accounts := make([]string, 0, len(labels))
	for a := range labels {
		accounts = append(accounts, a)
	}
	sort.Strings(accounts)

	snap := e.prepare(ctx, txs, g)
	samples := make([][]float64, 0, len(accounts))
	y := make([]bool, 0, len(accounts))
	for _, acct := range accounts {
		a, err := e.score(ctx, snap, acct)
		if err != nil {
			slog.Warn("training sample skipped", "account_id", acct, "error", err)
			continue
		}
		samples = append(samples, explain.Vector(a))
		y = append(y, labels[acct])
	}
	return samples, y, nil
}

// TrainModel fits a logistic model from the labeled store contents and
// switches the engine to it. The model is written to path when set.
func (e *Engine) TrainModel(ctx context.Context, path string, top int) (*explain.Model, error) {
	samples, y, err := e.TrainingSet(ctx)
	if err != nil {
		return nil, err
	}

	m, err := explain.Train(samples, y, explain.DefaultTrainOptions())
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := m.Save(path); err != nil {
			return nil, fmt.Errorf("failed to save model: %w", err)
		}
	}

	e.SetExplainer(explain.NewModelExplainer(m, top))
	slog.Info("explanation model trained", "samples", m.Samples, "path", path)
	return m, nil
}
