//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/opensource-finance/harrier/internal/domain"
)

func startRedisContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}
	return container, endpoint
}

func TestTwoPhaseCache(t *testing.T) {
	ctx := context.Background()

	container, addr := startRedisContainer(t, ctx)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	}()

	c, err := New(domain.CacheConfig{Type: "redis", RedisAddr: addr, EnableTwoPhase: true, LocalMaxSize: 10})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close()

	tp, ok := c.(*TwoPhaseCache)
	if !ok {
		t.Fatalf("expected TwoPhaseCache, got %T", c)
	}

	a := &domain.RiskAssessment{AccountID: "R1", RiskScore: 55, RiskLevel: domain.RiskHigh}
	if err := tp.SetAssessment(ctx, a, time.Minute); err != nil {
		t.Fatalf("SetAssessment failed: %v", err)
	}

	t.Run("L2Hit", func(t *testing.T) {
		_ = tp.local.Delete(ctx, assessmentKey("R1"))

		got, err := tp.GetAssessment(ctx, "R1")
		if err != nil {
			t.Fatalf("GetAssessment failed: %v", err)
		}
		if got == nil || got.RiskScore != 55 {
			t.Fatalf("expected score 55 from redis, got %+v", got)
		}
		if val, _ := tp.local.Get(ctx, assessmentKey("R1")); val == nil {
			t.Error("expected L1 to be repopulated")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := tp.Delete(ctx, assessmentKey("R1")); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if got, _ := tp.GetAssessment(ctx, "R1"); got != nil {
			t.Error("expected miss after delete")
		}
	})

	t.Run("InvalidateAssessments", func(t *testing.T) {
		for _, id := range []string{"R2", "R3"} {
			if err := tp.SetAssessment(ctx, &domain.RiskAssessment{AccountID: id, RiskScore: 20}, time.Minute); err != nil {
				t.Fatalf("SetAssessment failed: %v", err)
			}
		}
		if err := tp.InvalidateAssessments(ctx, []string{"R2", "R3"}); err != nil {
			t.Fatalf("InvalidateAssessments failed: %v", err)
		}
		for _, id := range []string{"R2", "R3"} {
			if val, _ := tp.remote.Get(ctx, assessmentKey(id)); val != nil {
				t.Errorf("expected %s gone from redis", id)
			}
			if val, _ := tp.local.Get(ctx, assessmentKey(id)); val != nil {
				t.Errorf("expected %s gone from L1", id)
			}
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := tp.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}
