package iam

import (
	"context"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ProvisionerOption customizes an AccountProvisioner
type ProvisionerOption func(*AccountProvisioner)

// WithProvisionerLogger overrides the logger used for failures.
func WithProvisionerLogger(logger Logger) ProvisionerOption {
	return func(p *AccountProvisioner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProvisionerActivitySink sets the sink for creation and activation events.
func WithProvisionerActivitySink(sink ActivitySink) ProvisionerOption {
	return func(p *AccountProvisioner) {
		p.activitySink = normalizeActivitySink(sink)
	}
}

// WithProvisionerClock injects a custom clock (useful for tests).
func WithProvisionerClock(clock func() time.Time) ProvisionerOption {
	return func(p *AccountProvisioner) {
		if clock != nil {
			p.now = clock
		}
	}
}

// AccountProvisioner creates accounts. Employees are created by admins and
// start active without a password; they set one through the reset flow.
// Clients register themselves inactive and become active once they choose
// their first password.
type AccountProvisioner struct {
	store        AccountStore
	encoder      PasswordEncoder
	policy       PasswordPolicy
	activitySink ActivitySink
	logger       Logger
	now          func() time.Time
}

// NewAccountProvisioner returns a provisioner backed by store. A nil encoder
// or policy falls back to BcryptEncoder and StrengthPolicy.
func NewAccountProvisioner(store AccountStore, encoder PasswordEncoder, policy PasswordPolicy, opts ...ProvisionerOption) *AccountProvisioner {
	p := &AccountProvisioner{
		store:        store,
		encoder:      encoder,
		policy:       policy,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		now:          time.Now,
	}

	if p.encoder == nil {
		p.encoder = NewBcryptEncoder(DefaultBcryptCost)
	}

	if p.policy == nil {
		p.policy = NewStrengthPolicy()
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p
}

// CreateEmployee stores rec as an active employee. Only admins may call it
// and the employee role must be ADMIN or EMPLOYEE, EMPLOYEE when empty.
func (p *AccountProvisioner) CreateEmployee(ctx context.Context, claims *Claims, rec UserRecord) (*UserRecord, error) {
	if claims == nil {
		return nil, ErrUnauthorized
	}

	if !claims.HasRole(RoleAdmin) {
		return nil, withMeta(ErrForbidden, nil, map[string]any{
			"role":   string(claims.Role),
			"action": "employee_create",
		})
	}

	if rec.Role == "" {
		rec.Role = RoleEmployee
	}

	if rec.Role != RoleAdmin && rec.Role != RoleEmployee {
		return nil, goerrors.New("employees hold the ADMIN or EMPLOYEE role", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"role": string(rec.Role)})
	}

	rec.Kind = KindEmployee
	rec.Active = true
	rec.PrivateClient, rec.CorporateClient = nil, nil
	if rec.Employee == nil {
		rec.Employee = &EmployeeDetails{}
	}

	return p.create(ctx, ActorFromClaims(claims), rec)
}

// RegisterClient stores rec as an inactive client of kind. Role is always
// USER and permissions start empty.
func (p *AccountProvisioner) RegisterClient(ctx context.Context, kind UserKind, rec UserRecord) (*UserRecord, error) {
	switch kind {
	case KindPrivateClient:
		rec.CorporateClient = nil
		if rec.PrivateClient == nil {
			rec.PrivateClient = &PrivateClientDetails{}
		}
	case KindCorporateClient:
		rec.PrivateClient = nil
		if rec.CorporateClient == nil {
			rec.CorporateClient = &CorporateClientDetails{}
		}
	default:
		return nil, goerrors.New("unsupported client kind", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"kind": string(kind)})
	}

	rec.Kind = kind
	rec.Role = RoleUser
	rec.Permissions = nil
	rec.Active = false
	rec.Employee = nil

	return p.create(ctx, ActorRef{}, rec)
}

// ActivateClient sets the first password of a pending client and marks it
// active. Activating twice yields ErrAccountNotPending.
func (p *AccountProvisioner) ActivateClient(ctx context.Context, id uuid.UUID, password string) (*UserRecord, error) {
	meta := map[string]any{"id": id.String()}

	rec, err := p.store.FindByID(ctx, id)
	if err != nil {
		if IsUserNotFound(err) {
			return nil, withMeta(ErrUserNotFound, nil, meta)
		}
		p.logger.Error("client %s lookup failed: %v", id, err)
		return nil, ErrOperationFailed
	}

	if rec == nil || (rec.Kind != KindPrivateClient && rec.Kind != KindCorporateClient) {
		return nil, withMeta(ErrUserNotFound, nil, meta)
	}

	if rec.Active {
		return nil, withMeta(ErrAccountNotPending, nil, meta)
	}

	if !p.policy.IsValid(password) {
		return nil, ErrWeakPassword
	}

	hash, err := p.encoder.Encode(password)
	if err != nil {
		p.logger.Error("client %s password encode failed: %v", id, err)
		return nil, ErrOperationFailed
	}

	activated, err := p.store.ActivateClient(ctx, id, hash)
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountNotPending):
			return nil, withMeta(ErrAccountNotPending, nil, meta)
		case IsUserNotFound(err):
			return nil, withMeta(ErrUserNotFound, nil, meta)
		}
		p.logger.Error("client %s activation failed: %v", id, err)
		return nil, ErrOperationFailed
	}

	recordActivity(ctx, p.activitySink, p.logger, ActivityEvent{
		EventType:  ActivityEventClientActivated,
		UserID:     id.String(),
		Email:      activated.Email,
		OccurredAt: p.now().UTC(),
	})

	return activated, nil
}

func (p *AccountProvisioner) create(ctx context.Context, actor ActorRef, rec UserRecord) (*UserRecord, error) {
	rec.Email = normalizeEmail(rec.Email)
	rec.Username = usernameFor(rec.Username, rec.Email)
	meta := map[string]any{"email": rec.Email}

	existing, err := p.store.FindByEmail(ctx, rec.Email)
	switch {
	case err == nil && existing != nil:
		return nil, withMeta(ErrUserExists, nil, meta)
	case err != nil && !IsUserNotFound(err):
		p.logger.Error("account lookup failed for %s: %v", rec.Email, err)
		return nil, ErrOperationFailed
	}

	created, err := p.store.Create(ctx, &rec, "")
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, withMeta(ErrUserExists, nil, meta)
		}
		p.logger.Error("account create failed for %s: %v", rec.Email, err)
		return nil, ErrOperationFailed
	}

	recordActivity(ctx, p.activitySink, p.logger, ActivityEvent{
		EventType: ActivityEventUserCreated,
		Actor:     actor,
		UserID:    created.ID.String(),
		Email:     created.Email,
		Metadata: map[string]any{
			"kind": string(created.Kind),
			"role": string(created.Role),
		},
		OccurredAt: p.now().UTC(),
	})

	return created, nil
}

func usernameFor(username, email string) string {
	if username = strings.TrimSpace(username); username != "" {
		return username
	}
	if local, _, ok := strings.Cut(email, "@"); ok {
		return local
	}
	return email
}
