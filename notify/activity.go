package notify

import (
	"context"
	"encoding/json"

	goerrors "github.com/goliatone/go-errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/goliatone/go-iam"
	"github.com/goliatone/go-iam/activitymap"
)

// QueueActivity carries normalized audit records
const QueueActivity = "iam-activity"

// ActivityPublisher is an iam.ActivitySink that publishes normalized events
type ActivityPublisher struct {
	publisher Publisher
	queue     string
	opts      []activitymap.Option
}

// NewActivityPublisher returns a sink publishing to queue
func NewActivityPublisher(publisher Publisher, queue string, opts ...activitymap.Option) *ActivityPublisher {
	if queue == "" {
		queue = QueueActivity
	}
	return &ActivityPublisher{publisher: publisher, queue: queue, opts: opts}
}

var _ iam.ActivitySink = (*ActivityPublisher)(nil)

func (p *ActivityPublisher) Record(ctx context.Context, event iam.ActivityEvent) error {
	record := activitymap.Normalize(event, p.opts...)

	body, err := json.Marshal(record)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to marshal activity")
	}

	err = p.publisher.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Type:         record.Verb,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    record.OccurredAt,
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to publish activity").
			WithMetadata(map[string]any{"queue": p.queue, "verb": record.Verb})
	}
	return nil
}

// FanoutSink records to every sink and returns the first error
type FanoutSink []iam.ActivitySink

func (f FanoutSink) Record(ctx context.Context, event iam.ActivityEvent) error {
	var first error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
