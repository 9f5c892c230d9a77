package events

import (
	"context"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/pubsub"
)

// PubSubBus wraps the in-memory Bus and additionally publishes every event
// to a Google Cloud Pub/Sub topic for durable, cross-service delivery.
//
// Fan-out strategy:
//   - Pub/Sub: durable, at-least-once delivery to downstream consumers
//     (reconciliation, reporting, the notification service)
//   - In-memory: immediate push to the ops feed subscribers
type PubSubBus struct {
	*Bus // in-memory subscribers keep working through the embedded bus

	client *pubsub.Client
	topic  *pubsub.Topic
	logger *log.Logger
}

// NewPubSubBus connects to (or creates) the topic and returns the bus.
func NewPubSubBus(projectID, topicID string) (*PubSubBus, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("topic.Exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("CreateTopic: %w", err)
		}
	}

	// Tenant-scoped ordering: every event for one tenant is delivered in
	// publish order.
	topic.EnableMessageOrdering = true

	bus := &PubSubBus{
		Bus:    NewBus(),
		client: client,
		topic:  topic,
		logger: log.New(log.Writer(), "[PUBSUB] ", log.LstdFlags),
	}
	bus.logger.Printf("connected to Pub/Sub topic projects/%s/topics/%s", projectID, topicID)
	return bus, nil
}

// Emit publishes durably and fans out in-memory.
func (pb *PubSubBus) Emit(eventType, subject, tenantID string, data map[string]interface{}) {
	event := NewEvent(eventType, subject, tenantID, data)
	pb.publish(event)
	pb.Bus.Publish(event)
}

func (pb *PubSubBus) publish(event *Event) {
	payload, err := event.JSON()
	if err != nil {
		pb.logger.Printf("failed to marshal event %s: %v", event.ID, err)
		return
	}

	msg := &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"ce-specversion": event.SpecVersion,
			"ce-type":        event.Type,
			"ce-source":      event.Source,
			"ce-id":          event.ID,
			"ce-time":        event.Time.Format(time.RFC3339Nano),
			"ce-tenantid":    event.TenantID,
		},
		OrderingKey: event.TenantID,
	}

	result := pb.topic.Publish(context.Background(), msg)

	// Check the publish result off the hot path.
	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			pb.logger.Printf("pub/sub publish failed: %s -> %v", event.ID, err)
		}
	}()
}

// Close stops the topic publisher and closes the client. Called during the
// shutdown drain, after admission is disabled.
func (pb *PubSubBus) Close() error {
	pb.topic.Stop()
	if err := pb.client.Close(); err != nil {
		return fmt.Errorf("pubsub client close: %w", err)
	}
	return nil
}

var _ Emitter = (*PubSubBus)(nil)
var _ Emitter = (*Bus)(nil)
