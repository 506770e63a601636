package notify

import (
	"context"
	"time"

	"github.com/goliatone/go-iam"
	"github.com/sony/gobreaker"
)

// BreakerNotifier stops calling next after repeated failures so a dead broker
// or mail API does not pile up dispatch goroutines.
type BreakerNotifier struct {
	next iam.Notifier
	cb   *gobreaker.CircuitBreaker
}

// BreakerConfig tunes the circuit breaker
type BreakerConfig struct {
	Name         string
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
	Logger       iam.Logger
}

// NewBreakerNotifier wraps next with a circuit breaker
func NewBreakerNotifier(next iam.Notifier, cfg BreakerConfig) *BreakerNotifier {
	if cfg.Name == "" {
		cfg.Name = "notify"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 3
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.6
	}

	settings := gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureRatio
		},
	}

	if cfg.Logger != nil {
		logger := cfg.Logger
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn("notifier breaker %s: %s -> %s", name, from, to)
		}
	}

	return &BreakerNotifier{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (n *BreakerNotifier) Send(ctx context.Context, destination, payload string) error {
	_, err := n.cb.Execute(func() (any, error) {
		return nil, n.next.Send(ctx, destination, payload)
	})
	return err
}

// State reports the breaker state
func (n *BreakerNotifier) State() gobreaker.State {
	return n.cb.State()
}
