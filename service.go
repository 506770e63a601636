package iam

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ServiceDeps are the collaborators behind a Service. Limiter and Tokens
// default to the in-memory stores sized from Config. Accounts enables
// employee creation and client registration.
type ServiceDeps struct {
	Users     UserFinder
	Passwords PasswordStore
	Employees EmployeeStore
	Accounts  AccountStore
	Limiter   RateLimiter
	Tokens    ResetTokenStore
	Encoder   PasswordEncoder
	Policy    PasswordPolicy
	Notifier  Notifier
	// Decoder overrides token verification, e.g. a MultiTokenDecoder
	// accepting a previous signing key.
	Decoder TokenDecoder
}

// ServiceOption customizes a Service
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger       Logger
	activitySink ActivitySink
	clock        func() time.Time
}

// WithLogger sets the logger shared by every component
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithActivitySink sets the sink shared by every component
func WithActivitySink(sink ActivitySink) ServiceOption {
	return func(o *serviceOptions) {
		o.activitySink = normalizeActivitySink(sink)
	}
}

// WithClock injects a clock into the token service and the in-memory stores
func WithClock(clock func() time.Time) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// Service is the boundary exposed to transports: token issue/decode,
// password reset, authorization and employee lifecycle.
type Service struct {
	tokens       *TokenService
	decoder      TokenDecoder
	authz        *AuthorizationEngine
	resets       *PasswordResetService
	lifecycle    *AccountLifecycleGuard
	provisioner  *AccountProvisioner
	users        UserFinder
	resetTTL     time.Duration
	activitySink ActivitySink
	logger       Logger
}

// NewService wires the engine from cfg and deps
func NewService(cfg Config, deps ServiceDeps, opts ...ServiceOption) *Service {
	o := &serviceOptions{
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		clock:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	tokens := NewTokenService(cfg, WithTokenClock(o.clock), WithTokenLogger(o.logger))

	decoder := deps.Decoder
	if decoder == nil {
		decoder = tokens
	}

	limiter := deps.Limiter
	if limiter == nil {
		limiter = NewMemoryRateLimiter(cfg.GetResetCooldown(), WithRateLimiterClock(o.clock))
	}

	store := deps.Tokens
	if store == nil {
		store = NewMemoryResetTokenStore(cfg.GetResetTokenTTL(), WithResetTokenClock(o.clock))
	}

	resets := NewPasswordResetService(PasswordResetDeps{
		Limiter:   limiter,
		Tokens:    store,
		Users:     deps.Users,
		Passwords: deps.Passwords,
		Encoder:   deps.Encoder,
		Policy:    deps.Policy,
		Notifier:  deps.Notifier,
	}, WithResetLogger(o.logger), WithResetActivitySink(o.activitySink))

	var lifecycle *AccountLifecycleGuard
	if deps.Employees != nil {
		lifecycle = NewAccountLifecycleGuard(deps.Employees,
			WithLifecycleClock(o.clock),
			WithLifecycleLogger(o.logger),
			WithLifecycleActivitySink(o.activitySink),
		)
	}

	var provisioner *AccountProvisioner
	if deps.Accounts != nil {
		provisioner = NewAccountProvisioner(deps.Accounts, deps.Encoder, deps.Policy,
			WithProvisionerClock(o.clock),
			WithProvisionerLogger(o.logger),
			WithProvisionerActivitySink(o.activitySink),
		)
	}

	return &Service{
		tokens:       tokens,
		decoder:      decoder,
		authz:        NewAuthorizationEngine(o.logger),
		resets:       resets,
		lifecycle:    lifecycle,
		provisioner:  provisioner,
		users:        deps.Users,
		resetTTL:     cfg.GetResetTokenTTL(),
		activitySink: o.activitySink,
		logger:       o.logger,
	}
}

// IssueToken signs claims into a bearer token
func (s *Service) IssueToken(ctx context.Context, claims Claims) (string, error) {
	token, err := s.tokens.Issue(claims)
	if err != nil {
		return "", err
	}

	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType: ActivityEventTokenIssued,
		Actor:     ActorFromClaims(&claims),
		UserID:    claims.SubjectID,
		Email:     claims.Email,
	})

	return token, nil
}

// DecodeToken verifies token and returns its claims
func (s *Service) DecodeToken(token string) (*Claims, error) {
	return s.decoder.Decode(token)
}

// Decoder exposes the configured token decoder to transports
func (s *Service) Decoder() TokenDecoder {
	return s.decoder
}

func (s *Service) InitiatePasswordReset(ctx context.Context, email, baseURL string) (*PasswordResetToken, error) {
	return s.resets.InitiatePasswordReset(ctx, email, baseURL)
}

// ResetTokenTTL is how long an issued reset token stays valid
func (s *Service) ResetTokenTTL() time.Duration {
	return s.resetTTL
}

func (s *Service) SubmitPasswordReset(ctx context.Context, tokenID, email, newPassword string) error {
	return s.resets.SubmitPasswordReset(ctx, tokenID, email, newPassword)
}

// Authorize evaluates the role table. It never fails; denials are decisions.
func (s *Service) Authorize(claims *Claims, target *UserRecord, op Operation, submitted *UserRecord) Decision {
	return s.authz.Authorize(claims, target, op, submitted)
}

// AuthorizeEmail looks up the target by email and authorizes op on it. The
// stored record is returned when the decision allows the operation.
func (s *Service) AuthorizeEmail(ctx context.Context, claims *Claims, email string, op Operation, submitted *UserRecord) (*UserRecord, error) {
	if claims == nil {
		return nil, ErrUnauthorized
	}

	target, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil || target == nil {
		if target == nil && (err == nil || IsUserNotFound(err)) {
			if HidesMissingUsers(claims) && !claims.IsSelf(email) {
				return nil, ErrForbidden
			}
			return nil, withMeta(ErrUserNotFound, nil, map[string]any{"email": normalizeEmail(email)})
		}
		s.logger.Error("authorize lookup failed for %s: %v", email, err)
		return nil, ErrOperationFailed
	}

	decision := s.authz.Authorize(claims, target, op, submitted)
	if !decision.Allowed() {
		recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
			EventType: ActivityEventAuthorizationDenied,
			Actor:     ActorFromClaims(claims),
			UserID:    target.ID.String(),
			Email:     target.Email,
			Metadata: map[string]any{
				"operation": string(op),
				"decision":  decision.String(),
			},
		})
		return nil, decision.Err()
	}

	return target, nil
}

func (s *Service) ActivateEmployee(ctx context.Context, claims *Claims, id uuid.UUID) error {
	if s.lifecycle == nil {
		s.logger.Error("employee lifecycle requested without an employee store")
		return ErrOperationFailed
	}
	return s.lifecycle.ActivateEmployee(ctx, claims, id)
}

func (s *Service) DeactivateEmployee(ctx context.Context, claims *Claims, id uuid.UUID) error {
	if s.lifecycle == nil {
		s.logger.Error("employee lifecycle requested without an employee store")
		return ErrOperationFailed
	}
	return s.lifecycle.DeactivateEmployee(ctx, claims, id)
}

func (s *Service) CreateEmployee(ctx context.Context, claims *Claims, rec UserRecord) (*UserRecord, error) {
	if s.provisioner == nil {
		s.logger.Error("employee creation requested without an account store")
		return nil, ErrOperationFailed
	}
	return s.provisioner.CreateEmployee(ctx, claims, rec)
}

func (s *Service) RegisterClient(ctx context.Context, kind UserKind, rec UserRecord) (*UserRecord, error) {
	if s.provisioner == nil {
		s.logger.Error("client registration requested without an account store")
		return nil, ErrOperationFailed
	}
	return s.provisioner.RegisterClient(ctx, kind, rec)
}

func (s *Service) ActivateClient(ctx context.Context, id uuid.UUID, password string) (*UserRecord, error) {
	if s.provisioner == nil {
		s.logger.Error("client activation requested without an account store")
		return nil, ErrOperationFailed
	}
	return s.provisioner.ActivateClient(ctx, id, password)
}

// HidesMissingUsers reports whether lookups by claims must answer a missing
// user like a forbidden one. Only staff may tell the two apart.
func HidesMissingUsers(claims *Claims) bool {
	return !claims.HasRole(RoleAdmin) && !claims.HasRole(RoleEmployee)
}
