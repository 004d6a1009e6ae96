package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubChannel publishes alerts as JSON to a Pub/Sub topic.
type PubSubChannel struct {
	topic *pubsub.Topic
}

// NewPubSubChannel wraps an existing topic handle.
func NewPubSubChannel(topic *pubsub.Topic) *PubSubChannel {
	return &PubSubChannel{topic: topic}
}

// Name implements Channel.
func (*PubSubChannel) Name() string { return "pubsub" }

// Send marshals the alert and waits for the server to acknowledge it.
func (c *PubSubChannel) Send(ctx context.Context, alert Alert) error {
	if c.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	result := c.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"target_id": alert.Target.ID,
			"type":      string(alert.Verdict.Type),
			"priority":  string(alert.Verdict.Priority),
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Stop flushes pending publishes and releases the topic's goroutines.
func (c *PubSubChannel) Stop() {
	if c.topic != nil {
		c.topic.Stop()
	}
}
