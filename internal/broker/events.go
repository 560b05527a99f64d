package broker

import (
	"context"
	"fmt"

	"shopify-feed-service/internal/models"
)

// EventPublisher handles publishing catalog lifecycle events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishSyncStarted publishes SyncStarted event
func (ep *EventPublisher) PublishSyncStarted(ctx context.Context, event *models.SyncStartedEvent) error {
	key := fmt.Sprintf("sync-%s", event.SyncType)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishSyncCompleted publishes SyncCompleted event
func (ep *EventPublisher) PublishSyncCompleted(ctx context.Context, event *models.SyncCompletedEvent) error {
	key := fmt.Sprintf("sync-%s", event.SyncType)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishSyncFailed publishes SyncFailed event
func (ep *EventPublisher) PublishSyncFailed(ctx context.Context, event *models.SyncFailedEvent) error {
	key := fmt.Sprintf("sync-%s", event.SyncType)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishSyncCanceled publishes SyncCanceled event
func (ep *EventPublisher) PublishSyncCanceled(ctx context.Context, event *models.SyncCanceledEvent) error {
	key := fmt.Sprintf("sync-%s", event.SyncType)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishFeedGenerated publishes FeedGenerated event
func (ep *EventPublisher) PublishFeedGenerated(ctx context.Context, event *models.FeedGeneratedEvent) error {
	key := fmt.Sprintf("feed-%s", event.Filename)
	return ep.producer.PublishEvent(ctx, key, event)
}
