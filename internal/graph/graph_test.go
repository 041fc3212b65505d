package graph

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func tx(id, from, to string, amount float64, offset time.Duration) *domain.Transaction {
	return &domain.Transaction{ID: id, FromAccount: from, ToAccount: to, Amount: amount, Timestamp: t0.Add(offset)}
}

func TestBuild(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		g := Build(nil)
		if g.NodeCount() != 0 || g.EdgeCount() != 0 {
			t.Errorf("expected empty graph, got %d nodes %d edges", g.NodeCount(), g.EdgeCount())
		}
		if g.HasNode("A") {
			t.Error("expected no node A")
		}
	})

	t.Run("AggregatesEdges", func(t *testing.T) {
		g := Build([]*domain.Transaction{
			tx("2", "A", "B", 50, 2*time.Hour),
			tx("1", "A", "B", 100, time.Hour),
			tx("3", "B", "C", 25, 3*time.Hour),
		})

		if g.NodeCount() != 3 {
			t.Errorf("expected 3 nodes, got %d", g.NodeCount())
		}
		if g.EdgeCount() != 2 {
			t.Errorf("expected 2 edges, got %d", g.EdgeCount())
		}

		e, ok := g.Edge("A", "B")
		if !ok {
			t.Fatal("expected edge A->B")
		}
		if e.Weight != 150 {
			t.Errorf("expected weight 150, got %.2f", e.Weight)
		}
		if e.Count != 2 {
			t.Errorf("expected count 2, got %d", e.Count)
		}
		if !e.FirstTimestamp().Equal(t0.Add(time.Hour)) {
			t.Errorf("expected first timestamp %v, got %v", t0.Add(time.Hour), e.FirstTimestamp())
		}
		if _, ok := g.Edge("B", "A"); ok {
			t.Error("expected no reverse edge")
		}
	})

	t.Run("TimestampsKeepInputOrder", func(t *testing.T) {
		g := Build([]*domain.Transaction{
			tx("a", "A", "B", 10, 5*time.Hour),
			tx("b", "A", "B", 10, 0),
		})

		e, _ := g.Edge("A", "B")
		if len(e.Timestamps) != 2 {
			t.Fatalf("expected 2 timestamps, got %d", len(e.Timestamps))
		}
		if !e.Timestamps[0].Equal(t0.Add(5*time.Hour)) || !e.Timestamps[1].Equal(t0) {
			t.Errorf("expected input order [+5h, +0h], got %v", e.Timestamps)
		}
		if !e.FirstTimestamp().Equal(t0) {
			t.Errorf("expected first timestamp %v, got %v", t0, e.FirstTimestamp())
		}
	})

	t.Run("SelfLoop", func(t *testing.T) {
		g := Build([]*domain.Transaction{tx("1", "A", "A", 10, 0)})
		if g.NodeCount() != 1 || g.EdgeCount() != 1 {
			t.Errorf("expected 1 node 1 edge, got %d nodes %d edges", g.NodeCount(), g.EdgeCount())
		}
		if g.InDegree("A") != 1 || g.OutDegree("A") != 1 {
			t.Errorf("expected self-loop degrees 1/1, got %d/%d", g.InDegree("A"), g.OutDegree("A"))
		}
	})
}

func TestBuildPermutationInvariant(t *testing.T) {
	var txs []*domain.Transaction
	accounts := []string{"A", "B", "C", "D", "E"}
	r := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 60; i++ {
		from := accounts[r.IntN(len(accounts))]
		to := accounts[r.IntN(len(accounts))]
		txs = append(txs, tx(string(rune('a'+i%26))+strings.Repeat("x", i/26), from, to, float64(r.IntN(10000))/7, time.Duration(r.IntN(1000))*time.Minute))
	}

	ref := Build(txs)
	for trial := 0; trial < 5; trial++ {
		shuffled := make([]*domain.Transaction, len(txs))
		copy(shuffled, txs)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		g := Build(shuffled)
		if strings.Join(g.Nodes(), ",") != strings.Join(ref.Nodes(), ",") {
			t.Fatalf("node set differs: %v vs %v", g.Nodes(), ref.Nodes())
		}
		if g.EdgeCount() != ref.EdgeCount() {
			t.Fatalf("edge count differs: %d vs %d", g.EdgeCount(), ref.EdgeCount())
		}
		for _, e := range ref.Edges() {
			other, ok := g.Edge(e.From, e.To)
			if !ok {
				t.Fatalf("missing edge %s->%s", e.From, e.To)
			}
			if other.Weight != e.Weight || other.Count != e.Count {
				t.Errorf("edge %s->%s differs: %.4f/%d vs %.4f/%d", e.From, e.To, other.Weight, other.Count, e.Weight, e.Count)
			}
		}
	}
}

func TestEgo(t *testing.T) {
	g := Build([]*domain.Transaction{
		tx("1", "A", "B", 10, 0),
		tx("2", "C", "A", 10, time.Minute),
		tx("3", "B", "C", 10, 2*time.Minute),
		tx("4", "C", "D", 10, 3*time.Minute),
	})

	ego := g.Ego("A")
	if ego == nil {
		t.Fatal("expected ego graph")
	}
	if got := strings.Join(ego.Nodes(), ","); got != "A,B,C" {
		t.Errorf("expected nodes A,B,C, got %s", got)
	}
	if ego.EdgeCount() != 3 {
		t.Errorf("expected 3 edges among neighborhood, got %d", ego.EdgeCount())
	}
	if g.Ego("Z") != nil {
		t.Error("expected nil ego for unknown account")
	}
}

func TestDegreeCentrality(t *testing.T) {
	g := Build([]*domain.Transaction{
		tx("1", "A", "B", 10, 0),
		tx("2", "A", "C", 10, 0),
		tx("3", "B", "C", 10, 0),
	})
	dc := g.DegreeCentrality()
	if dc["A"] != 1.0 {
		t.Errorf("expected A=1.0, got %.3f", dc["A"])
	}
	if dc["C"] != 1.0 {
		t.Errorf("expected C=1.0, got %.3f", dc["C"])
	}
}

func TestBetweenness(t *testing.T) {
	g := Build([]*domain.Transaction{
		tx("1", "A", "B", 10, 0),
		tx("2", "B", "C", 10, 0),
	})

	t.Run("Exact", func(t *testing.T) {
		bc := g.Betweenness(nil)
		if math.Abs(bc["B"]-0.5) > 1e-9 {
			t.Errorf("expected B=0.5, got %.4f", bc["B"])
		}
		if bc["A"] != 0 || bc["C"] != 0 {
			t.Errorf("expected endpoints 0, got A=%.4f C=%.4f", bc["A"], bc["C"])
		}
	})

	t.Run("AllPivotsMatchExact", func(t *testing.T) {
		bc := g.Betweenness(g.Nodes())
		if math.Abs(bc["B"]-0.5) > 1e-9 {
			t.Errorf("expected B=0.5, got %.4f", bc["B"])
		}
	})

	t.Run("TooSmall", func(t *testing.T) {
		small := Build([]*domain.Transaction{tx("1", "A", "B", 10, 0)})
		for id, v := range small.Betweenness(nil) {
			if v != 0 {
				t.Errorf("expected 0 for %s, got %.4f", id, v)
			}
		}
	})
}

func TestPageRank(t *testing.T) {
	g := Build([]*domain.Transaction{
		tx("1", "A", "B", 10, 0),
		tx("2", "B", "C", 10, 0),
		tx("3", "C", "A", 10, 0),
		tx("4", "D", "A", 10, 0),
	})

	t.Run("Converges", func(t *testing.T) {
		pr, ok := g.PageRank(0.85, 100)
		if !ok {
			t.Fatal("expected convergence")
		}
		sum := 0.0
		for _, v := range pr {
			sum += v
		}
		if math.Abs(sum-1) > 1e-4 {
			t.Errorf("expected ranks to sum to 1, got %.6f", sum)
		}
		if pr["A"] <= pr["D"] {
			t.Errorf("expected A to outrank D, got %.4f <= %.4f", pr["A"], pr["D"])
		}
	})

	t.Run("NonConvergenceYieldsZeros", func(t *testing.T) {
		pr, ok := Build([]*domain.Transaction{tx("1", "A", "B", 10, 0)}).PageRank(0.85, 1)
		if ok {
			t.Fatal("expected non-convergence with one iteration")
		}
		for id, v := range pr {
			if v != 0 {
				t.Errorf("expected 0 for %s, got %.4f", id, v)
			}
		}
	})
}

func TestSimplePaths(t *testing.T) {
	g := Build([]*domain.Transaction{
		tx("1", "A", "B", 10, 0),
		tx("2", "B", "C", 10, 0),
		tx("3", "C", "D", 10, 0),
	})

	t.Run("Enumerates", func(t *testing.T) {
		var got []string
		complete := g.SimplePaths(context.Background(), g.Nodes(), 5, 3, func(p []string) {
			got = append(got, strings.Join(p, ">"))
		})
		if !complete {
			t.Error("expected complete enumeration")
		}
		sort.Strings(got)
		want := "A>B>C,A>B>C>D,B>C>D"
		if strings.Join(got, ",") != want {
			t.Errorf("expected %s, got %s", want, strings.Join(got, ","))
		}
	})

	t.Run("Cutoff", func(t *testing.T) {
		count := 0
		g.SimplePaths(context.Background(), g.Nodes(), 2, 3, func(p []string) { count++ })
		if count != 2 {
			t.Errorf("expected 2 paths with cutoff 2, got %d", count)
		}
	})

	t.Run("DeadlineExpired", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		count := 0
		complete := g.SimplePaths(ctx, g.Nodes(), 5, 3, func(p []string) { count++ })
		if complete {
			t.Error("expected incomplete enumeration")
		}
		if count != 0 {
			t.Errorf("expected no paths, got %d", count)
		}
	})

	t.Run("SelfLoopTerminates", func(t *testing.T) {
		loop := Build([]*domain.Transaction{tx("1", "A", "A", 10, 0), tx("2", "A", "B", 10, 0)})
		count := 0
		if !loop.SimplePaths(context.Background(), loop.Nodes(), 6, 2, func(p []string) { count++ }) {
			t.Error("expected complete enumeration")
		}
		if count != 1 {
			t.Errorf("expected 1 path, got %d", count)
		}
	})
}

func TestSimpleCycles(t *testing.T) {
	g := Build([]*domain.Transaction{
		tx("1", "A", "B", 100, 0),
		tx("2", "B", "C", 100, 0),
		tx("3", "C", "A", 100, 0),
		tx("4", "D", "E", 5, 0),
		tx("5", "E", "D", 5, 0),
		tx("6", "F", "F", 5, 0),
	})

	var cycles []string
	complete := g.SimpleCycles(context.Background(), 0, func(c []string) {
		cycles = append(cycles, strings.Join(c, ">"))
	})
	if !complete {
		t.Error("expected complete enumeration")
	}
	sort.Strings(cycles)
	if strings.Join(cycles, ",") != "A>B>C,D>E" {
		t.Errorf("expected A>B>C,D>E, got %v", cycles)
	}

	t.Run("Budget", func(t *testing.T) {
		count := 0
		complete := g.SimpleCycles(context.Background(), 1, func(c []string) { count++ })
		if complete || count != 1 {
			t.Errorf("expected budget stop after 1 cycle, got complete=%v count=%d", complete, count)
		}
	})
}

func TestSeededSampler(t *testing.T) {
	nodes := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	s := NewSeededSampler(42)

	first := s.Sample(nodes, 3)
	second := s.Sample(nodes, 3)
	if len(first) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(first))
	}
	if strings.Join(first, ",") != strings.Join(second, ",") {
		t.Errorf("expected reproducible sample, got %v and %v", first, second)
	}
	if !sort.StringsAreSorted(first) {
		t.Errorf("expected sorted sample, got %v", first)
	}
	if all := s.Sample(nodes, 20); len(all) != len(nodes) {
		t.Errorf("expected all %d nodes, got %d", len(nodes), len(all))
	}
}
