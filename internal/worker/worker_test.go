package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/fusion"
	"github.com/opensource-finance/harrier/internal/repository"
)

// stubRescorer returns a fixed score per account.
type stubRescorer struct {
	mu     sync.Mutex
	scores map[string]float64
	calls  [][]string
	err    error
}

func (s *stubRescorer) Rescore(ctx context.Context, ids []string) ([]*domain.RiskAssessment, error) {
	s.mu.Lock()
	s.calls = append(s.calls, ids)
	s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	var out []*domain.RiskAssessment
	for _, id := range ids {
		score, ok := s.scores[id]
		if !ok {
			continue
		}
		out = append(out, &domain.RiskAssessment{AccountID: id, RiskScore: score, RiskLevel: domain.LevelForScore(score)})
	}
	return out, nil
}

func (s *stubRescorer) lastCall() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return nil
	}
	return s.calls[len(s.calls)-1]
}

func publishIngest(t *testing.T, b domain.EventBus, event domain.IngestEvent) {
	t.Helper()
	payload, _ := json.Marshal(event)
	if err := b.Publish(context.Background(), domain.TopicTransactionIngested, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
}

func collect(t *testing.T, b domain.EventBus, topic string) func() []domain.RiskScoredEvent {
	t.Helper()
	var (
		mu     sync.Mutex
		events []domain.RiskScoredEvent
	)
	_, err := b.Subscribe(context.Background(), topic, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.RiskScoredEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	return func() []domain.RiskScoredEvent {
		mu.Lock()
		defer mu.Unlock()
		return append([]domain.RiskScoredEvent(nil), events...)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timeout waiting for condition")
}

func TestWorker(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	t.Run("StartAndStop", func(t *testing.T) {
		w := NewWorker(eventBus, &stubRescorer{})
		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 1 || stats.Topics[0] != domain.TopicTransactionIngested {
			t.Errorf("expected 1 ingest subscription, got %+v", stats)
		}

		if err := w.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
		if stats := w.GetStats(); stats.SubscriptionCount != 0 {
			t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
		}
	})

	t.Run("PublishesScoresAndAlerts", func(t *testing.T) {
		b := bus.NewChannelBus(100)
		defer b.Close()

		rescorer := &stubRescorer{scores: map[string]float64{"A": 85, "B": 12}}
		w := NewWorker(b, rescorer)
		if err := w.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		defer w.Stop()

		scored := collect(t, b, domain.TopicRiskScored)
		alerts := collect(t, b, domain.TopicAlert)

		publishIngest(t, b, domain.IngestEvent{
			TransactionIDs: []string{"tx-1", "tx-2"},
			Accounts:       []string{"A", "B", "A", ""},
		})

		waitFor(t, func() bool { return len(scored()) == 2 && len(alerts()) == 1 })

		if got := rescorer.lastCall(); len(got) != 2 || got[0] != "A" || got[1] != "B" {
			t.Errorf("expected deduplicated accounts [A B], got %v", got)
		}
		if a := alerts()[0]; a.AccountID != "A" || a.RiskLevel != domain.RiskCritical {
			t.Errorf("expected critical alert for A, got %+v", a)
		}

		stats := w.GetStats()
		if stats.EventsProcessed != 1 || stats.AccountsRescored != 2 || stats.AlertsPublished != 1 {
			t.Errorf("unexpected stats %+v", stats)
		}
	})

	t.Run("BadPayloadIgnored", func(t *testing.T) {
		b := bus.NewChannelBus(100)
		defer b.Close()

		rescorer := &stubRescorer{}
		w := NewWorker(b, rescorer)
		w.Start()
		defer w.Stop()

		b.Publish(context.Background(), domain.TopicTransactionIngested, []byte("not json"))
		publishIngest(t, b, domain.IngestEvent{})
		time.Sleep(50 * time.Millisecond)

		if rescorer.lastCall() != nil {
			t.Error("expected no rescore for malformed or empty events")
		}
		if w.GetStats().EventsProcessed != 0 {
			t.Error("expected no processed events")
		}
	})

	t.Run("RescoreFailure", func(t *testing.T) {
		b := bus.NewChannelBus(100)
		defer b.Close()

		w := NewWorker(b, &stubRescorer{err: errors.New("store down")})
		msg := &domain.Message{ID: "m-1", Payload: []byte(`{"accounts":["A"]}`)}
		if err := w.process(context.Background(), msg); err == nil {
			t.Error("expected rescore failure to be returned")
		}
	})
}

func TestDedupe(t *testing.T) {
	got := dedupe([]string{"B", "A", "B", "", "C", "A"})
	expected := []string{"B", "A", "C"}
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Errorf("expected %v, got %v", expected, got)
		}
	}
}

func TestWorkerWithFusionEngine(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "harrier-worker-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var txs []*domain.Transaction
	for i := 0; i < 3; i++ {
		txs = append(txs, &domain.Transaction{
			ID: fmt.Sprintf("tx-%d", i), FromAccount: fmt.Sprintf("P%d", i), ToAccount: "C",
			Amount: 100, Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
	}
	if _, err := repo.SaveTransactions(ctx, txs); err != nil {
		t.Fatalf("SaveTransactions failed: %v", err)
	}

	engine, err := fusion.NewEngine(repo, domain.DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	b := bus.NewChannelBus(100)
	defer b.Close()

	w := NewWorker(b, engine)
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	scored := collect(t, b, domain.TopicRiskScored)
	publishIngest(t, b, domain.IngestEvent{TransactionIDs: []string{"tx-2"}, Accounts: []string{"P2", "C"}})

	waitFor(t, func() bool { return len(scored()) == 2 })

	for _, id := range []string{"P2", "C"} {
		if _, err := repo.GetRiskScore(ctx, id); err != nil {
			t.Errorf("expected persisted score for %s, got %v", id, err)
		}
	}

	if n := w.GetStats().EventsProcessed; n != 1 {
		t.Errorf("expected 1 processed event, got %d", n)
	}
}
