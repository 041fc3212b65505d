// Package worker rescores accounts as transactions arrive on the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Rescorer assesses a set of accounts against one snapshot.
type Rescorer interface {
	Rescore(ctx context.Context, ids []string) ([]*domain.RiskAssessment, error)
}

// Worker consumes ingest events, rescores both parties of every new
// transaction and publishes the results.
type Worker struct {
	bus      domain.EventBus
	rescorer Rescorer

	mu            sync.Mutex
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	rescored  atomic.Int64
	alerts    atomic.Int64
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, rescorer Rescorer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		rescorer: rescorer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the ingest topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("rescoring worker started", "topic", domain.TopicTransactionIngested)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	w.wg.Add(1)
	defer w.wg.Done()
	return w.process(ctx, msg)
}

// process rescores the accounts named by one ingest event.
func (w *Worker) process(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var event domain.IngestEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("failed to parse ingest event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	accounts := dedupe(event.Accounts)
	if len(accounts) == 0 {
		return fmt.Errorf("ingest event %s names no accounts", msg.ID)
	}

	assessed, err := w.rescorer.Rescore(ctx, accounts)
	if err != nil {
		slog.Error("rescore failed",
			"message_id", msg.ID,
			"accounts", len(accounts),
			"error", err,
		)
		return err
	}
	w.processed.Add(1)

	for _, a := range assessed {
		w.rescored.Add(1)

		payload, err := json.Marshal(domain.RiskScoredEvent{
			AccountID: a.AccountID,
			RiskScore: a.RiskScore,
			RiskLevel: a.RiskLevel,
		})
		if err != nil {
			return fmt.Errorf("failed to encode risk event: %w", err)
		}

		if err := w.bus.Publish(ctx, domain.TopicRiskScored, payload); err != nil {
			slog.Error("failed to publish risk score",
				"account_id", a.AccountID,
				"error", err,
			)
		}

		if a.RiskLevel == domain.RiskCritical {
			w.alerts.Add(1)
			if err := w.bus.Publish(ctx, domain.TopicAlert, payload); err != nil {
				slog.Error("failed to publish alert",
					"account_id", a.AccountID,
					"error", err,
				)
			}
		}
	}

	slog.Info("ingest event processed",
		"message_id", msg.ID,
		"transactions", len(event.TransactionIDs),
		"accounts", len(accounts),
		"rescored", len(assessed),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Stop gracefully stops the worker and waits for in-flight events.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()

	slog.Info("rescoring worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	EventsProcessed   int64    `json:"eventsProcessed"`
	AccountsRescored  int64    `json:"accountsRescored"`
	AlertsPublished   int64    `json:"alertsPublished"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		EventsProcessed:   w.processed.Load(),
		AccountsRescored:  w.rescored.Load(),
		AlertsPublished:   w.alerts.Load(),
	}
}
