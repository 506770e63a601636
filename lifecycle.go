package iam

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EmployeeStatus is the activation state of an employee account
type EmployeeStatus string

const (
	EmployeeStatusActive   EmployeeStatus = "active"
	EmployeeStatusInactive EmployeeStatus = "inactive"
)

func statusOf(rec *UserRecord) EmployeeStatus {
	if rec.Active {
		return EmployeeStatusActive
	}
	return EmployeeStatusInactive
}

// LifecycleOption customizes an AccountLifecycleGuard
type LifecycleOption func(*AccountLifecycleGuard)

// WithLifecycleClock injects a custom clock (useful for tests).
func WithLifecycleClock(clock func() time.Time) LifecycleOption {
	return func(g *AccountLifecycleGuard) {
		if clock != nil {
			g.now = clock
		}
	}
}

// WithLifecycleActivitySink sets the ActivitySink used to publish status changes.
func WithLifecycleActivitySink(sink ActivitySink) LifecycleOption {
	return func(g *AccountLifecycleGuard) {
		g.activitySink = normalizeActivitySink(sink)
	}
}

// WithLifecycleLogger overrides the logger used for failures.
func WithLifecycleLogger(logger Logger) LifecycleOption {
	return func(g *AccountLifecycleGuard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// AccountLifecycleGuard toggles employee activation. Only admins may do so.
type AccountLifecycleGuard struct {
	store        EmployeeStore
	transitions  map[EmployeeStatus]map[EmployeeStatus]struct{}
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

// NewAccountLifecycleGuard returns a guard backed by store
func NewAccountLifecycleGuard(store EmployeeStore, opts ...LifecycleOption) *AccountLifecycleGuard {
	g := &AccountLifecycleGuard{
		store: store,
		transitions: map[EmployeeStatus]map[EmployeeStatus]struct{}{
			EmployeeStatusActive:   {EmployeeStatusInactive: {}},
			EmployeeStatusInactive: {EmployeeStatusActive: {}},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// ActivateEmployee marks the employee active
func (g *AccountLifecycleGuard) ActivateEmployee(ctx context.Context, claims *Claims, id uuid.UUID) error {
	return g.transition(ctx, claims, id, EmployeeStatusActive)
}

// DeactivateEmployee marks the employee inactive
func (g *AccountLifecycleGuard) DeactivateEmployee(ctx context.Context, claims *Claims, id uuid.UUID) error {
	return g.transition(ctx, claims, id, EmployeeStatusInactive)
}

func (g *AccountLifecycleGuard) transition(ctx context.Context, claims *Claims, id uuid.UUID, target EmployeeStatus) error {
	if claims == nil {
		return ErrUnauthorized
	}

	if !claims.HasRole(RoleAdmin) {
		return withMeta(ErrForbidden, nil, map[string]any{
			"role":   string(claims.Role),
			"action": "employee_" + string(target),
		})
	}

	select {
	case <-ctx.Done():
		g.logger.Error("employee %s transition cancelled: %v", id, ctx.Err())
		return ErrOperationFailed
	default:
	}

	rec, err := g.store.FindByID(ctx, id)
	if err != nil {
		if IsUserNotFound(err) {
			return withMeta(ErrUserNotFound, nil, map[string]any{"id": id.String()})
		}
		g.logger.Error("employee %s lookup failed: %v", id, err)
		return ErrOperationFailed
	}

	if rec == nil || rec.Kind != KindEmployee {
		return withMeta(ErrUserNotFound, nil, map[string]any{"id": id.String(), "kind": "employee"})
	}

	from := statusOf(rec)
	if from == target {
		return nil
	}

	if _, ok := g.transitions[from][target]; !ok {
		g.logger.Error("employee %s has no transition %s -> %s", id, from, target)
		return ErrOperationFailed
	}

	if err := g.store.SetActive(ctx, id, target == EmployeeStatusActive); err != nil {
		g.logger.Error("employee %s status update failed: %v", id, err)
		return ErrOperationFailed
	}

	recordActivity(ctx, g.activitySink, g.logger, ActivityEvent{
		EventType: ActivityEventEmployeeStatusChanged,
		Actor:     ActorFromClaims(claims),
		UserID:    id.String(),
		Email:     rec.Email,
		Metadata: map[string]any{
			"from": string(from),
			"to":   string(target),
		},
		OccurredAt: g.now().UTC(),
	})

	return nil
}
