// Package bus carries ingest and scoring events between the API and the
// rescoring worker.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	// ErrClosed is returned by operations on a closed bus.
	ErrClosed = errors.New("bus is closed")

	// ErrInvalidTopic is returned for names NATS cannot publish to.
	ErrInvalidTopic = errors.New("invalid topic")
)

// MetaTraceID is the metadata key carrying the publisher's trace ID.
const MetaTraceID = "trace_id"

// New creates the event bus named by cfg.Type: "channel" (default) or "nats".
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch strings.ToLower(cfg.Type) {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// validateTopic rejects names that NATS would treat as wildcards or split.
func validateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty topic", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "*> \t\r\n") {
		return fmt.Errorf("%w: topic %q contains wildcard or whitespace", ErrInvalidTopic, topic)
	}
	if strings.HasPrefix(topic, ".") || strings.HasSuffix(topic, ".") || strings.Contains(topic, "..") {
		return fmt.Errorf("%w: topic %q has an empty token", ErrInvalidTopic, topic)
	}
	return nil
}

// newMessage wraps a payload in an envelope stamped with the caller's trace.
func newMessage(ctx context.Context, topic string, payload []byte) *domain.Message {
	msg := &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.Metadata[MetaTraceID] = sc.TraceID().String()
	}
	return msg
}
