package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/harrier/internal/domain"
)

// BatchRescore assesses the given accounts, or every account in the store
// when ids is empty, against one shared snapshot. Failures are logged and
// skipped; the number of accounts whose score was persisted is returned.
func (e *Engine) BatchRescore(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		accounts, err := e.store.DistinctAccounts(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to list accounts: %w", err)
		}
		ids = accounts
	}
	assessed, err := e.Rescore(ctx, ids)
	return len(assessed), err
}

// Rescore assesses the given accounts against one shared snapshot and
// returns the persisted assessments ordered by account id. Accounts that
// fail are logged and left out.
func (e *Engine) Rescore(ctx context.Context, ids []string) ([]*domain.RiskAssessment, error) {
	ctx, span := tracer.Start(ctx, "fusion.Rescore")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}
	start := time.Now()

	txs, g := e.load(ctx)
	snap := e.prepare(ctx, txs, g)

	workers := e.cfg.BatchWorkers
	if workers <= 0 {
		workers = 8
	}

	var (
		group    errgroup.Group
		mu       sync.Mutex
		assessed []*domain.RiskAssessment
	)
	group.SetLimit(workers)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			a, err := e.assess(ctx, snap, id)
			if err != nil {
				slog.Warn("rescore skipped account", "account_id", id, "error", err)
				return nil
			}
			mu.Lock()
			assessed = append(assessed, a)
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	sort.Slice(assessed, func(i, j int) bool { return assessed[i].AccountID < assessed[j].AccountID })

	span.SetAttributes(
		attribute.Int("batch.requested", len(ids)),
		attribute.Int("batch.updated", len(assessed)),
	)
	slog.Info("rescore complete",
		"requested", len(ids),
		"updated", len(assessed),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return assessed, ctx.Err()
}
