//go:build integration

package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/opensource-finance/harrier/internal/domain"
)

func startNATSContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start nats container: %v", err)
	}

	endpoint, err := container.PortEndpoint(ctx, "4222/tcp", "nats")
	if err != nil {
		t.Fatalf("failed to get nats endpoint: %v", err)
	}
	return container, endpoint
}

func TestNATSBus(t *testing.T) {
	ctx := context.Background()

	container, url := startNATSContainer(t, ctx)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate nats container: %v", err)
		}
	}()

	b, err := New(domain.EventBusConfig{Type: "nats", NATSUrl: url, NATSMaxReconnects: 1, NATSReconnectWait: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer b.Close()

	if err := b.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	received := make(chan *domain.Message, 1)
	sub, err := b.Subscribe(ctx, domain.TopicRiskScored, func(ctx context.Context, msg *domain.Message) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	if err := b.Publish(ctx, domain.TopicRiskScored, []byte(`{"accountId":"ACC-1"}`)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case msg := <-received:
		if string(msg.Payload) != `{"accountId":"ACC-1"}` {
			t.Errorf("unexpected payload %s", msg.Payload)
		}
		if msg.Topic != domain.TopicRiskScored {
			t.Errorf("expected topic %s, got %s", domain.TopicRiskScored, msg.Topic)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for NATS message")
	}
}

func TestNATSQueueGroup(t *testing.T) {
	ctx := context.Background()

	container, url := startNATSContainer(t, ctx)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate nats container: %v", err)
		}
	}()

	cfg := domain.EventBusConfig{NATSUrl: url, NATSMaxReconnects: 1, NATSReconnectWait: 1, NATSQueue: "rescorers"}

	var total atomic.Int32
	var replicas []*NATSBus
	for i := 0; i < 2; i++ {
		b, err := NewNATSBus(cfg)
		if err != nil {
			t.Fatalf("NewNATSBus failed: %v", err)
		}
		defer b.Close()
		if _, err := b.Subscribe(ctx, domain.TopicTransactionIngested, func(ctx context.Context, msg *domain.Message) error {
			total.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		if err := b.Ping(ctx); err != nil {
			t.Fatalf("ping failed: %v", err)
		}
		replicas = append(replicas, b)
	}

	const events = 10
	for i := 0; i < events; i++ {
		if err := replicas[0].Publish(ctx, domain.TopicTransactionIngested, []byte(`{}`)); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for total.Load() < events && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	if got := total.Load(); got != events {
		t.Errorf("expected each event handled once (%d), got %d", events, got)
	}
}
