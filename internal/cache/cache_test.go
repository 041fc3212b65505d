package cache

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		clocked := NewLRUCache(10)
		clocked.now = func() time.Time { return now }

		_ = clocked.Set(ctx, "expiring", []byte("temp"), 10*time.Second)

		if val, _ := clocked.Get(ctx, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}

		now = now.Add(11 * time.Second)
		if val, _ := clocked.Get(ctx, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
		if st := clocked.Stats(); st.Size != 0 {
			t.Errorf("expected expired entry to be dropped, got size %d", st.Size)
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, "a")

		// Add 'd' - should evict 'b' (oldest accessed)
		_ = smallCache.Set(ctx, "d", []byte("4"), time.Minute)

		if val, _ := smallCache.Get(ctx, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := smallCache.Get(ctx, "a"); val == nil {
			t.Error("expected 'a' to still exist")
		}
		if ev := smallCache.Stats().Evictions; ev != 1 {
			t.Errorf("expected 1 eviction, got %d", ev)
		}
	})

	t.Run("NonPositiveTTL", func(t *testing.T) {
		_ = cache.Set(ctx, "short", []byte("v"), time.Minute)
		_ = cache.Set(ctx, "short", []byte("v"), 0)
		if val, _ := cache.Get(ctx, "short"); val != nil {
			t.Error("expected zero TTL to drop the entry")
		}
	})

	t.Run("RequiresKey", func(t *testing.T) {
		if err := cache.Set(ctx, "", []byte("value"), time.Minute); err == nil {
			t.Error("expected error for empty key")
		}
		if _, err := cache.Get(ctx, ""); err == nil {
			t.Error("expected error for empty key")
		}
	})

	t.Run("Assessment", func(t *testing.T) {
		a := &domain.RiskAssessment{
			AccountID:  "M1",
			RiskScore:  72.5,
			RiskLevel:  domain.RiskCritical,
			Components: domain.ComponentScores{Behavioral: 0.7, Network: 0.75, Layering: 0.4, Velocity: 1},
			Behavioral: domain.BehavioralProfile{Features: domain.BehavioralFeatures{InOutRatio: math.Inf(1), RapidInOut: true}},
			Layering:   domain.LayeringReport{CircularFlows: []domain.CircularFlow{{Cycle: []string{"M1", "B", "C"}, Length: 3, TotalAmount: 300}}},
			AssessedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		}

		if err := cache.SetAssessment(ctx, a, time.Minute); err != nil {
			t.Fatalf("SetAssessment failed: %v", err)
		}

		got, err := cache.GetAssessment(ctx, "M1")
		if err != nil {
			t.Fatalf("GetAssessment failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected cached assessment")
		}
		if got.RiskScore != 72.5 || got.RiskLevel != domain.RiskCritical {
			t.Errorf("expected 72.5 CRITICAL, got %.1f %s", got.RiskScore, got.RiskLevel)
		}
		if !math.IsInf(got.Behavioral.Features.InOutRatio, 1) {
			t.Errorf("expected infinite in/out ratio to survive, got %v", got.Behavioral.Features.InOutRatio)
		}
		if len(got.Layering.CircularFlows) != 1 || got.Layering.CircularFlows[0].TotalAmount != 300 {
			t.Errorf("expected circular flow evidence, got %+v", got.Layering.CircularFlows)
		}
		if !got.AssessedAt.Equal(a.AssessedAt) {
			t.Errorf("expected assessed at %v, got %v", a.AssessedAt, got.AssessedAt)
		}

		miss, err := cache.GetAssessment(ctx, "unknown")
		if err != nil || miss != nil {
			t.Errorf("expected nil, nil on miss, got %v, %v", miss, err)
		}
	})

	t.Run("InvalidateAssessments", func(t *testing.T) {
		for _, id := range []string{"I1", "I2", "I3"} {
			_ = cache.SetAssessment(ctx, &domain.RiskAssessment{AccountID: id, RiskScore: 10}, time.Minute)
		}

		if err := cache.InvalidateAssessments(ctx, []string{"I1", "I3", "never-cached"}); err != nil {
			t.Fatalf("InvalidateAssessments failed: %v", err)
		}

		for id, cached := range map[string]bool{"I1": false, "I2": true, "I3": false} {
			got, _ := cache.GetAssessment(ctx, id)
			if (got != nil) != cached {
				t.Errorf("expected %s cached=%v, got %v", id, cached, got != nil)
			}
		}
	})

	t.Run("AssessmentNeedsAccount", func(t *testing.T) {
		if err := cache.SetAssessment(ctx, &domain.RiskAssessment{}, time.Minute); err == nil {
			t.Error("expected error for assessment without account id")
		}
	})

	t.Run("CorruptAssessment", func(t *testing.T) {
		_ = cache.Set(ctx, assessmentKey("bad"), []byte("{"), time.Minute)
		if _, err := cache.GetAssessment(ctx, "bad"); err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, "k2", []byte("v2"), time.Minute)

		_, _ = statsCache.Get(ctx, "k1")
		_, _ = statsCache.Get(ctx, "missing")

		st := statsCache.Stats()
		if st.Size != 2 {
			t.Errorf("expected size 2, got %d", st.Size)
		}
		if st.Capacity != 50 {
			t.Errorf("expected capacity 50, got %d", st.Capacity)
		}
		if st.Hits != 1 || st.Misses != 1 {
			t.Errorf("expected 1 hit and 1 miss, got %d and %d", st.Hits, st.Misses)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, "k", []byte("v"), time.Minute)

		if err := testCache.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}

		if val, _ := testCache.Get(ctx, "k"); val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cache, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
