package domain

import (
	"context"
)

// EventBus carries ingest and scoring events. Implemented over Go
// channels (single binary) or NATS (replicated deployments).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds

	// NATSQueue, when set, makes replicas share each ingest event.
	NATSQueue string
}

// Topic names for the rescoring pipeline.
const (
	TopicTransactionIngested = "harrier.transaction.ingested"
	TopicRiskScored          = "harrier.risk.scored"
	TopicAlert               = "harrier.alert"
)

// IngestEvent is published after transactions are stored.
type IngestEvent struct {
	TransactionIDs []string `json:"transactionIds"`
	Accounts       []string `json:"accounts"`
}

// RiskScoredEvent is published after an account is rescored.
type RiskScoredEvent struct {
	AccountID string    `json:"accountId"`
	RiskScore float64   `json:"riskScore"`
	RiskLevel RiskLevel `json:"riskLevel"`
}
