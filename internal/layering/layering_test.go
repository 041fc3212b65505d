package layering

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/graph"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newDetector() *Detector {
	return NewDetector(domain.DefaultDetectionConfig(), nil)
}

func outbound(id, from string, amount float64, offset time.Duration) *domain.Transaction {
	return &domain.Transaction{
		ID: id, FromAccount: from, ToAccount: "R-" + id,
		Amount: amount, Timestamp: t0.Add(offset),
	}
}

func TestStructuring(t *testing.T) {
	d := newDetector()

	t.Run("TwoNearThresholdIsNotEnough", func(t *testing.T) {
		txs := []*domain.Transaction{
			outbound("1", "S", 48500, 0),
			outbound("2", "S", 48500, 10*time.Hour),
		}
		if got := d.Structuring(txs, "S"); len(got) != 0 {
			t.Errorf("expected no clusters, got %d", len(got))
		}
		if got := Score(0, 0, len(d.Structuring(txs, "S"))); got != 0 {
			t.Errorf("expected layering score 0, got %.2f", got)
		}
	})

	t.Run("ThirdNearThresholdTriggers", func(t *testing.T) {
		txs := []*domain.Transaction{
			outbound("1", "S", 48500, 0),
			outbound("2", "S", 48500, 10*time.Hour),
			outbound("3", "S", 48500, 20*time.Hour),
		}
		clusters := d.Structuring(txs, "S")
		if len(clusters) != 1 {
			t.Fatalf("expected 1 cluster, got %d", len(clusters))
		}
		c := clusters[0]
		if c.TotalAmount != 145500 {
			t.Errorf("expected total 145500, got %.2f", c.TotalAmount)
		}
		if c.AverageAmount != 48500 {
			t.Errorf("expected average 48500, got %.2f", c.AverageAmount)
		}
		if c.WindowHours != 20 {
			t.Errorf("expected window 20h, got %.2f", c.WindowHours)
		}
		if got := Score(0, 0, len(clusters)); got < 0.1 {
			t.Errorf("expected layering score >= 0.1, got %.2f", got)
		}
	})

	t.Run("OutsideWindow", func(t *testing.T) {
		txs := []*domain.Transaction{
			outbound("1", "S", 48000, 0),
			outbound("2", "S", 48000, 40*time.Hour),
			outbound("3", "S", 48000, 80*time.Hour),
		}
		if got := d.Structuring(txs, "S"); len(got) != 0 {
			t.Errorf("expected no clusters, got %d", len(got))
		}
	})

	t.Run("OutOfBandAmountsIgnored", func(t *testing.T) {
		txs := []*domain.Transaction{
			outbound("1", "S", 46999, 0),
			outbound("2", "S", 51001, time.Hour),
			outbound("3", "S", 47000, 2*time.Hour),
			outbound("4", "S", 51000, 3*time.Hour),
		}
		if got := d.Structuring(txs, "S"); len(got) != 0 {
			t.Errorf("expected no clusters, got %d", len(got))
		}
	})

	// Only the first qualifying window per account is reported, even when a
	// second, disjoint burst exists later.
	t.Run("FirstWindowOnly", func(t *testing.T) {
		var txs []*domain.Transaction
		for i := 0; i < 3; i++ {
			txs = append(txs, outbound(fmt.Sprintf("a%d", i), "S", 49000, time.Duration(i)*time.Hour))
			txs = append(txs, outbound(fmt.Sprintf("b%d", i), "S", 49000, 240*time.Hour+time.Duration(i)*time.Hour))
		}
		clusters := d.Structuring(txs, "S")
		if len(clusters) != 1 {
			t.Fatalf("expected 1 cluster, got %d", len(clusters))
		}
		if clusters[0].Transactions[0].ID != "a0" {
			t.Errorf("expected first burst, got %s", clusters[0].Transactions[0].ID)
		}
	})

	t.Run("AllAccounts", func(t *testing.T) {
		var txs []*domain.Transaction
		for _, acct := range []string{"S1", "S2"} {
			for i := 0; i < 3; i++ {
				txs = append(txs, outbound(fmt.Sprintf("%s-%d", acct, i), acct, 49500, time.Duration(i)*time.Hour))
			}
		}
		clusters := d.Structuring(txs, "")
		if len(clusters) != 2 {
			t.Fatalf("expected 2 clusters, got %d", len(clusters))
		}
		if clusters[0].Account != "S1" || clusters[1].Account != "S2" {
			t.Errorf("expected S1, S2 order, got %s, %s", clusters[0].Account, clusters[1].Account)
		}
	})
}

func TestCircularFlows(t *testing.T) {
	d := newDetector()
	ctx := context.Background()
	txs := []*domain.Transaction{
		{ID: "1", FromAccount: "A", ToAccount: "B", Amount: 100, Timestamp: t0},
		{ID: "2", FromAccount: "B", ToAccount: "C", Amount: 100, Timestamp: t0.Add(time.Hour)},
		{ID: "3", FromAccount: "C", ToAccount: "A", Amount: 100, Timestamp: t0.Add(2 * time.Hour)},
		{ID: "4", FromAccount: "X", ToAccount: "Y", Amount: 10, Timestamp: t0},
		{ID: "5", FromAccount: "Y", ToAccount: "X", Amount: 10, Timestamp: t0},
	}
	g := graph.Build(txs)

	flows := d.CircularFlows(ctx, g)
	if len(flows) != 1 {
		t.Fatalf("expected 1 circular flow, got %d", len(flows))
	}
	if flows[0].Length != 3 {
		t.Errorf("expected length 3, got %d", flows[0].Length)
	}
	if flows[0].TotalAmount != 300 {
		t.Errorf("expected total 300, got %.2f", flows[0].TotalAmount)
	}

	for _, acct := range []string{"A", "B", "C"} {
		report := d.Analyze(ctx, g, txs, acct)
		if len(report.CircularFlows) != 1 {
			t.Errorf("expected %s in 1 cycle, got %d", acct, len(report.CircularFlows))
		}
	}
	if report := d.Analyze(ctx, g, txs, "X"); len(report.CircularFlows) != 0 {
		t.Errorf("expected 2-cycle to be ignored, got %d", len(report.CircularFlows))
	}
}

func TestMultiHopPaths(t *testing.T) {
	d := newDetector()
	ctx := context.Background()

	chain := func(gap time.Duration) *graph.Graph {
		return graph.Build([]*domain.Transaction{
			{ID: "1", FromAccount: "A", ToAccount: "B", Amount: 1000, Timestamp: t0},
			{ID: "2", FromAccount: "B", ToAccount: "C", Amount: 950, Timestamp: t0.Add(gap)},
			{ID: "3", FromAccount: "C", ToAccount: "D", Amount: 900, Timestamp: t0.Add(2 * gap)},
		})
	}

	t.Run("WithinWindow", func(t *testing.T) {
		paths := d.MultiHopPaths(ctx, chain(2*time.Hour))
		if len(paths) != 3 {
			t.Fatalf("expected 3 paths, got %d", len(paths))
		}
		if paths[0].HopCount != 3 || paths[0].TimeSpanHours != 4 {
			t.Errorf("expected 3-hop path spanning 4h first, got %d hops %.1fh", paths[0].HopCount, paths[0].TimeSpanHours)
		}
		if paths[0].TotalAmount != 2850 {
			t.Errorf("expected total 2850, got %.2f", paths[0].TotalAmount)
		}
	})

	t.Run("OutsideWindow", func(t *testing.T) {
		paths := d.MultiHopPaths(ctx, chain(13*time.Hour))
		// A>B>C and B>C>D span 13h; A>B>C>D spans 26h.
		if len(paths) != 2 {
			t.Fatalf("expected 2 paths, got %d", len(paths))
		}
		for _, p := range paths {
			if p.HopCount != 2 {
				t.Errorf("expected only 2-hop paths, got %d", p.HopCount)
			}
		}
	})

	t.Run("EmptyGraph", func(t *testing.T) {
		if paths := d.MultiHopPaths(ctx, graph.Build(nil)); len(paths) != 0 {
			t.Errorf("expected no paths, got %d", len(paths))
		}
	})
}

func TestAnalyzeUnknownAccount(t *testing.T) {
	d := newDetector()
	report := d.Analyze(context.Background(), graph.Build(nil), nil, "ghost")
	if report.Score != 0 {
		t.Errorf("expected score 0, got %.2f", report.Score)
	}
	if len(report.MultiHopPaths) != 0 || len(report.CircularFlows) != 0 || len(report.Structuring) != 0 {
		t.Error("expected empty findings")
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name                    string
		paths, cycles, clusters int
		expected                float64
	}{
		{"None", 0, 0, 0, 0},
		{"OnePath", 1, 0, 0, 0.1},
		{"PathsCapped", 9, 0, 0, 0.4},
		{"OneCycle", 0, 1, 0, 0.15},
		{"CyclesCapped", 0, 5, 0, 0.35},
		{"ClustersCapped", 0, 0, 4, 0.25},
		{"Everything", 10, 10, 10, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.paths, tt.cycles, tt.clusters); math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected %.2f, got %.4f", tt.expected, got)
			}
		})
	}
}
