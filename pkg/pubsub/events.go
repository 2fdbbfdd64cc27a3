package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
)

const (
	defaultPublishTimeout = 15 * time.Second

	// EventImportCompleted fires once per run on a terminal import state.
	EventImportCompleted = "catalog.import.completed"
)

// Event is the JSON envelope carried by every message this service publishes.
type Event struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	TenantID   string    `json:"tenant_id"`
	SubjectID  string    `json:"subject_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// EventPublisher serializes events onto a single topic.
type EventPublisher struct {
	pub     publisher
	timeout time.Duration
	now     func() time.Time
}

// NewEventPublisher wraps a Pub/Sub publisher handle.
func NewEventPublisher(p *gcppubsub.Publisher) (*EventPublisher, error) {
	if p == nil {
		return nil, errors.New("pubsub publisher is required")
	}
	return newEventPublisher(&gcpPublisher{Publisher: p}), nil
}

func newEventPublisher(p publisher) *EventPublisher {
	return &EventPublisher{pub: p, timeout: defaultPublishTimeout, now: time.Now}
}

// Publish sends one event and blocks until the server acknowledges it.
func (e *EventPublisher) Publish(ctx context.Context, eventType, tenantID, subjectID string, data any) (string, error) {
	if e == nil || e.pub == nil {
		return "", errors.New("event publisher not initialized")
	}
	event := Event{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		TenantID:   tenantID,
		SubjectID:  subjectID,
		OccurredAt: e.now().UTC(),
		Data:       data,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event %s: %w", eventType, err)
	}

	msg := &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_id":    event.EventID,
			"event_type":  eventType,
			"tenant_id":   tenantID,
			"subject_id":  subjectID,
			"occurred_at": event.OccurredAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	result := e.pub.Publish(publishCtx, msg)
	if result == nil {
		return "", fmt.Errorf("publisher returned nil for %s", eventType)
	}
	if _, err := result.Get(publishCtx); err != nil {
		return "", fmt.Errorf("publish %s: %w", eventType, err)
	}
	return event.EventID, nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
