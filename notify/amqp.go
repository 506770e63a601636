package notify

import (
	"context"
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// QueuePasswordChange carries reset links for authenticated password changes
	QueuePasswordChange = "password-change"
	// QueuePasswordForgot carries reset links for forgotten passwords
	QueuePasswordForgot = "password-forgot"
	// QueuePasswordActivation carries first time password links
	QueuePasswordActivation = "password-activation"
)

// PasswordLinkMessage is the body consumed by the notification service
type PasswordLinkMessage struct {
	Email   string `json:"email"`
	URLLink string `json:"urlLink"`
}

// Publisher is the subset of *amqp.Channel used to publish
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPNotifier publishes reset links to a durable queue on the default exchange
type AMQPNotifier struct {
	publisher Publisher
	queue     string
	now       func() time.Time
}

// NewAMQPNotifier returns a notifier publishing to queue
func NewAMQPNotifier(publisher Publisher, queue string) *AMQPNotifier {
	if queue == "" {
		queue = QueuePasswordChange
	}
	return &AMQPNotifier{publisher: publisher, queue: queue, now: time.Now}
}

// DeclareQueues declares the durable queues the notification service consumes
func DeclareQueues(ch *amqp.Channel, queues ...string) error {
	if len(queues) == 0 {
		queues = []string{QueuePasswordChange, QueuePasswordForgot, QueuePasswordActivation}
	}
	for _, q := range queues {
		_, err := ch.QueueDeclare(
			q,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to declare queue").
				WithMetadata(map[string]any{"queue": q})
		}
	}
	return nil
}

func (n *AMQPNotifier) Send(ctx context.Context, destination, payload string) error {
	body, err := json.Marshal(PasswordLinkMessage{Email: destination, URLLink: payload})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to marshal notification")
	}

	err = n.publisher.PublishWithContext(ctx,
		"",      // default exchange
		n.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    n.now().UTC(),
		},
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to publish notification").
			WithMetadata(map[string]any{"queue": n.queue})
	}
	return nil
}
