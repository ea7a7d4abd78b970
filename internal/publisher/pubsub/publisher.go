// Package pubsub publishes summary completion events to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
)

// EventAttribute is the message attribute carrying the event kind.
const EventAttribute = "event"

// Publisher sends JSON payloads to a single topic.
type Publisher struct {
	topic *pubsub.Topic
	event string
}

// New creates a Publisher bound to topic. Every message is tagged with event.
func New(topic *pubsub.Topic, event string) *Publisher {
	return &Publisher{topic: topic, event: event}
}

// Publish marshals payload to JSON and waits for the server-assigned ID.
func (p *Publisher) Publish(ctx context.Context, payload any) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	attrs := map[string]string{}
	if p.event != "" {
		attrs[EventAttribute] = p.event
	}
	otel.GetTextMapPropagator().Inject(ctx, attributeCarrier(attrs))

	id, err := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", p.topic.ID(), err)
	}
	return id, nil
}

// Close flushes buffered messages and stops the topic's goroutines.
func (p *Publisher) Close() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

// attributeCarrier adapts message attributes to propagation.TextMapCarrier.
type attributeCarrier map[string]string

func (c attributeCarrier) Get(key string) string { return c[key] }

func (c attributeCarrier) Set(key, value string) { c[key] = value }

func (c attributeCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
