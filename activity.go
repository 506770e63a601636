package iam

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventTokenIssued             ActivityEventType = "iam.token.issued"
	ActivityEventPasswordResetRequested  ActivityEventType = "iam.password_reset.requested"
	ActivityEventPasswordResetLimited    ActivityEventType = "iam.password_reset.rate_limited"
	ActivityEventPasswordResetCompleted  ActivityEventType = "iam.password_reset.completed"
	ActivityEventPasswordResetRejected   ActivityEventType = "iam.password_reset.rejected"
	ActivityEventEmployeeStatusChanged   ActivityEventType = "iam.employee.status_changed"
	ActivityEventAuthorizationDenied     ActivityEventType = "iam.authorization.denied"
	ActivityEventNotificationDispatchErr ActivityEventType = "iam.notification.failed"
	ActivityEventUserCreated             ActivityEventType = "iam.user.created"
	ActivityEventClientActivated         ActivityEventType = "iam.client.activated"
)

// ActorRef identifies who/what triggered an action.
type ActorRef struct {
	ID    string
	Email string
	Role  RoleType
}

// ActorFromClaims builds an ActorRef from decoded claims
func ActorFromClaims(c *Claims) ActorRef {
	if c == nil {
		return ActorRef{}
	}
	return ActorRef{ID: c.SubjectID, Email: c.Email, Role: c.Role}
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	Email      string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// recordActivity is best-effort: sink failures are logged and swallowed.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("activity sink failed for %s: %v", event.EventType, err)
	}
}
