package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
)

// PubSubNotifier publishes pipeline outcome notifications to a single
// Pub/Sub topic. The subject travels as a message attribute since Pub/Sub
// has no native subject field.
type PubSubNotifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubNotifier creates a notifier bound to one topic.
func NewPubSubNotifier(ctx context.Context, projectID, topicID string) (*PubSubNotifier, error) {
	if projectID == "" || topicID == "" {
		return nil, fmt.Errorf("NewPubSubNotifier: projectID and topicID cannot be empty")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}
	return &PubSubNotifier{
		client: client,
		topic:  client.Topic(topicID),
	}, nil
}

// Publish sends one message and blocks until the server acknowledges it,
// returning the server-assigned message ID.
func (n *PubSubNotifier) Publish(ctx context.Context, subject, body string, attributes map[string]string) (string, error) {
	attrs := make(map[string]string, len(attributes)+1)
	for k, v := range attributes {
		attrs[k] = v
	}
	attrs["subject"] = subject

	result := n.topic.Publish(ctx, &pubsub.Message{
		Data:       []byte(body),
		Attributes: attrs,
	})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to publish notification: %w", err)
	}
	return id, nil
}

func (n *PubSubNotifier) Close() error {
	n.topic.Stop()
	return n.client.Close()
}
