package activitymap_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-iam"
	"github.com/goliatone/go-iam/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := iam.ActivityEvent{
		EventType: iam.ActivityEventEmployeeStatusChanged,
		Actor:     iam.ActorRef{ID: "admin-42", Email: "boss@bank.rs", Role: iam.RoleAdmin},
		UserID:    "user-100",
		Email:     "teller@bank.rs",
		Metadata: map[string]any{
			"from": "active",
			"to":   "inactive",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "admin-42" {
		t.Fatalf("expected actor_id admin-42, got %q", out.ActorID)
	}
	if out.Verb != string(iam.ActivityEventEmployeeStatusChanged) {
		t.Fatalf("expected verb %q, got %q", iam.ActivityEventEmployeeStatusChanged, out.Verb)
	}
	if out.ObjectType != "user" {
		t.Fatalf("expected object_type user, got %q", out.ObjectType)
	}
	if out.ObjectID != "user-100" {
		t.Fatalf("expected object_id user-100, got %q", out.ObjectID)
	}
	if out.Channel != "iam" {
		t.Fatalf("expected channel iam, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}

	if out.Metadata["to"] != "inactive" {
		t.Fatalf("expected metadata to inactive, got %#v", out.Metadata["to"])
	}
	if out.Metadata[activitymap.MetadataKeyActorRole] != "ADMIN" {
		t.Fatalf("expected metadata actor_role ADMIN, got %#v", out.Metadata[activitymap.MetadataKeyActorRole])
	}
	if out.Metadata[activitymap.MetadataKeyActorEmail] != "boss@bank.rs" {
		t.Fatalf("expected metadata actor_email, got %#v", out.Metadata[activitymap.MetadataKeyActorEmail])
	}
	if out.Metadata[activitymap.MetadataKeyEmail] != "teller@bank.rs" {
		t.Fatalf("expected metadata email, got %#v", out.Metadata[activitymap.MetadataKeyEmail])
	}

	if len(event.Metadata) != 2 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeAnonymousReset(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)
	event := iam.ActivityEvent{
		EventType: iam.ActivityEventPasswordResetLimited,
		Email:     "marko@bank.rs",
	}

	out := activitymap.Normalize(event, activitymap.WithClock(func() time.Time { return now }))

	if out.ActorID != "system" {
		t.Fatalf("expected actor_id system, got %q", out.ActorID)
	}
	if out.ObjectID != "marko@bank.rs" {
		t.Fatalf("expected object_id to fall back to the email, got %q", out.ObjectID)
	}
	if !out.OccurredAt.Equal(now) {
		t.Fatalf("expected occurred_at from clock, got %v", out.OccurredAt)
	}
	if _, ok := out.Metadata[activitymap.MetadataKeyActorRole]; ok {
		t.Fatalf("expected no actor_role for anonymous events, got %+v", out.Metadata)
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	event := iam.ActivityEvent{
		EventType: iam.ActivityEventPasswordResetCompleted,
		Actor:     iam.ActorRef{Role: iam.RoleUser, Email: "marko@bank.rs"},
		UserID:    "user-200",
		Email:     "marko@bank.rs",
		Metadata: map[string]any{
			"reset_id":                       "reset-1",
			activitymap.MetadataKeyActorRole: "existing",
		},
	}

	out := activitymap.Normalize(
		event,
		activitymap.WithDefaultChannel("security"),
		activitymap.WithDefaultObjectType("account"),
		activitymap.WithObjectIDResolver(func(e iam.ActivityEvent) string {
			if v, ok := e.Metadata["reset_id"].(string); ok {
				return v
			}
			return ""
		}),
	)

	if out.Channel != "security" {
		t.Fatalf("expected channel security, got %q", out.Channel)
	}
	if out.ObjectType != "account" {
		t.Fatalf("expected object_type account, got %q", out.ObjectType)
	}
	if out.ObjectID != "reset-1" {
		t.Fatalf("expected object_id reset-1, got %q", out.ObjectID)
	}
	if out.Metadata[activitymap.MetadataKeyActorRole] != "existing" {
		t.Fatalf("expected existing actor_role preserved, got %#v", out.Metadata[activitymap.MetadataKeyActorRole])
	}
	if _, ok := out.Metadata[activitymap.MetadataKeyActorEmail]; ok {
		t.Fatalf("expected no actor_email when actor is the subject, got %+v", out.Metadata)
	}
	if out.OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be set when input is zero")
	}
}

func TestNormalizeActorFallbackChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  iam.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "uses actor id when present",
			event:  iam.ActivityEvent{Actor: iam.ActorRef{ID: "actor-1"}, UserID: "user-1"},
			expect: "actor-1",
		},
		{
			name:   "uses user id when actor id missing",
			event:  iam.ActivityEvent{Actor: iam.ActorRef{ID: ""}, UserID: "user-2"},
			expect: "user-2",
		},
		{
			name:   "uses default fallback when actor and user missing",
			event:  iam.ActivityEvent{},
			expect: "system",
		},
		{
			name:   "uses configured fallback when actor and user missing",
			event:  iam.ActivityEvent{},
			opts:   []activitymap.Option{activitymap.WithActorFallback("pruner")},
			expect: "pruner",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := activitymap.Normalize(tc.event, tc.opts...)
			if out.ActorID != tc.expect {
				t.Fatalf("expected actor_id %q, got %q", tc.expect, out.ActorID)
			}
		})
	}
}
