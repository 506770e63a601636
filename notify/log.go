package notify

import (
	"context"

	"github.com/goliatone/go-iam"
)

// LogNotifier writes reset links to the logger. Meant for local development.
type LogNotifier struct {
	logger iam.Logger
}

func NewLogNotifier(logger iam.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, destination, payload string) error {
	n.logger.Info("password link for %s: %s", destination, payload)
	return nil
}

// Fanout sends to every notifier and returns the first error
type Fanout []iam.Notifier

func (f Fanout) Send(ctx context.Context, destination, payload string) error {
	var first error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, destination, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}
