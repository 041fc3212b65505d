package velocity

import (
	"context"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/repository"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func burst(n int, spacing time.Duration) []*domain.Transaction {
	txs := make([]*domain.Transaction, n)
	for i := range txs {
		txs[i] = &domain.Transaction{
			ID: fmt.Sprintf("tx-%d", i), FromAccount: "A", ToAccount: "B",
			Amount: 100, Timestamp: t0.Add(time.Duration(i) * spacing),
		}
	}
	return txs
}

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		txs      []*domain.Transaction
		expected float64
	}{
		{"NoTransactions", nil, 0},
		{"SingleTransaction", burst(1, 0), 1.0},
		{"SameInstant", burst(4, 0), 1.0},
		{"SubHourSpanFloored", burst(3, 10*time.Minute), 0.3},
		{"SlowAccount", burst(5, 6*time.Hour), 5.0 / 24.0 / 10.0},
		{"Saturated", burst(100, time.Minute), 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.txs); math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected %.4f, got %.4f", tt.expected, got)
			}
		})
	}
}

func TestServiceScore(t *testing.T) {
	svc := NewService(3)

	t.Run("EmptyHistory", func(t *testing.T) {
		if score := svc.Score(nil); score != 0 {
			t.Errorf("expected score 0 for empty history, got %.2f", score)
		}
	})

	t.Run("UsesNewestWindow", func(t *testing.T) {
		// Two old transactions a day apart, then three within one instant.
		history := burst(2, 24*time.Hour)
		for i := 0; i < 3; i++ {
			history = append(history, &domain.Transaction{
				ID: fmt.Sprintf("recent-%d", i), FromAccount: "A", ToAccount: "C",
				Amount: 10, Timestamp: t0.Add(72 * time.Hour),
			})
		}
		if score := svc.Score(history); score != 1.0 {
			t.Errorf("expected 1.0 for a same-instant window, got %.4f", score)
		}
	})
}

// Newest must pick the same rows as the store's recent-transactions query.
func TestNewestMatchesStore(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "velocity-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	history := append(burst(4, time.Hour), burst(3, 0)...)
	for i, tx := range history[4:] {
		tx.ID = fmt.Sprintf("tie-%d", i)
		tx.Timestamp = t0.Add(3 * time.Hour)
	}
	if _, err := repo.SaveTransactions(ctx, history); err != nil {
		t.Fatalf("SaveTransactions failed: %v", err)
	}

	want, err := repo.FetchRecentAccountTransactions(ctx, "A", 4)
	if err != nil {
		t.Fatalf("FetchRecentAccountTransactions failed: %v", err)
	}
	got := Newest(history, 4)
	if len(got) != len(want) {
		t.Fatalf("expected %d transactions, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("position %d: expected %s, got %s", i, want[i].ID, got[i].ID)
		}
	}
}
