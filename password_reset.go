package iam

import (
	"context"
	"strings"
	"time"
)

const defaultDispatchTimeout = 10 * time.Second

// PasswordResetService drives the rate limited reset workflow: initiation
// issues a token and hands its link to the Notifier, submission redeems the
// token and stores the new password hash.
type PasswordResetService struct {
	limiter         RateLimiter
	tokens          ResetTokenStore
	users           UserFinder
	passwords       PasswordStore
	encoder         PasswordEncoder
	policy          PasswordPolicy
	notifier        Notifier
	dispatchTimeout time.Duration
	activitySink    ActivitySink
	logger          Logger
}

// PasswordResetDeps groups the collaborators of a PasswordResetService
type PasswordResetDeps struct {
	Limiter   RateLimiter
	Tokens    ResetTokenStore
	Users     UserFinder
	Passwords PasswordStore
	Encoder   PasswordEncoder
	Policy    PasswordPolicy
	Notifier  Notifier
}

// PasswordResetOption customizes a PasswordResetService
type PasswordResetOption func(*PasswordResetService)

// WithResetActivitySink sets the sink for reset events
func WithResetActivitySink(sink ActivitySink) PasswordResetOption {
	return func(s *PasswordResetService) {
		s.activitySink = normalizeActivitySink(sink)
	}
}

// WithResetLogger overrides the logger
func WithResetLogger(logger Logger) PasswordResetOption {
	return func(s *PasswordResetService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDispatchTimeout bounds each notification attempt
func WithDispatchTimeout(d time.Duration) PasswordResetOption {
	return func(s *PasswordResetService) {
		if d > 0 {
			s.dispatchTimeout = d
		}
	}
}

// NewPasswordResetService wires deps. Encoder and Policy default to
// BcryptEncoder and StrengthPolicy; a nil Notifier drops links after logging.
func NewPasswordResetService(deps PasswordResetDeps, opts ...PasswordResetOption) *PasswordResetService {
	s := &PasswordResetService{
		limiter:         deps.Limiter,
		tokens:          deps.Tokens,
		users:           deps.Users,
		passwords:       deps.Passwords,
		encoder:         deps.Encoder,
		policy:          deps.Policy,
		notifier:        deps.Notifier,
		dispatchTimeout: defaultDispatchTimeout,
		activitySink:    noopActivitySink{},
		logger:          defLogger{},
	}

	if s.encoder == nil {
		s.encoder = NewBcryptEncoder(DefaultBcryptCost)
	}

	if s.policy == nil {
		s.policy = NewStrengthPolicy()
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.notifier == nil {
		logger := s.logger
		s.notifier = NotifierFunc(func(_ context.Context, destination, _ string) error {
			logger.Warn("no notifier configured, reset link for %s dropped", destination)
			return nil
		})
	}

	return s
}

// InitiatePasswordReset issues a reset token for email unless one was
// requested inside the cooldown window. The link is dispatched
// asynchronously; dispatch failures never fail the call.
func (s *PasswordResetService) InitiatePasswordReset(ctx context.Context, email, baseURL string) (*PasswordResetToken, error) {
	email = normalizeEmail(email)

	// the cooldown is taken before the lookup so unknown emails are
	// throttled exactly like registered ones
	allowed, err := s.limiter.AllowRequest(ctx, email)
	if err != nil {
		s.logger.Error("password reset limiter failed for %s: %v", email, err)
		return nil, ErrOperationFailed
	}

	if !allowed {
		recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
			EventType: ActivityEventPasswordResetLimited,
			Email:     email,
		})
		return nil, withMeta(ErrRateLimited, nil, map[string]any{"email": email})
	}

	account, err := s.users.FindByEmail(ctx, email)
	if err != nil || account == nil {
		if account == nil && (err == nil || IsUserNotFound(err)) {
			return nil, withMeta(ErrUserNotFound, nil, map[string]any{"email": email})
		}
		s.logger.Error("password reset lookup failed for %s: %v", email, err)
		return nil, ErrOperationFailed
	}

	token, err := s.tokens.Generate(*account, baseURL)
	if err != nil {
		s.logger.Error("password reset token generation failed for %s: %v", email, err)
		return nil, ErrOperationFailed
	}

	s.dispatch(ctx, token)

	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetRequested,
		UserID:    account.ID.String(),
		Email:     token.BoundEmail,
		Metadata: map[string]any{
			"expires_at": token.ExpiresAt.UTC(),
		},
	})

	return &token, nil
}

// dispatch runs after the store call returned, so no store lock is held
// while the notifier talks to the network.
func (s *PasswordResetService) dispatch(ctx context.Context, token PasswordResetToken) {
	base := context.WithoutCancel(ctx)
	go func() {
		dctx, cancel := context.WithTimeout(base, s.dispatchTimeout)
		defer cancel()

		if err := s.notifier.Send(dctx, token.BoundEmail, token.URLLink); err != nil {
			s.logger.Error("password reset notification to %s failed: %v", token.BoundEmail, err)
			recordActivity(dctx, s.activitySink, s.logger, ActivityEvent{
				EventType: ActivityEventNotificationDispatchErr,
				Email:     token.BoundEmail,
				Metadata:  map[string]any{"error": err.Error()},
			})
		}
	}()
}

// SubmitPasswordReset redeems tokenID for email and stores newPassword.
// Token problems of any kind yield ErrResetTokenInvalid; password checks run
// only once the token is known to be valid.
func (s *PasswordResetService) SubmitPasswordReset(ctx context.Context, tokenID, email, newPassword string) error {
	presented := PasswordResetToken{
		TokenID:    strings.TrimSpace(tokenID),
		BoundEmail: normalizeEmail(email),
	}

	if presented.TokenID == "" || !s.tokens.IsValid(presented) {
		return s.reject(ctx, presented, ErrResetTokenInvalid)
	}

	account, err := s.users.FindByEmail(ctx, presented.BoundEmail)
	if err != nil || account == nil {
		if account == nil && (err == nil || IsUserNotFound(err)) {
			return s.reject(ctx, presented, ErrResetTokenInvalid)
		}
		s.logger.Error("password reset lookup failed for %s: %v", presented.BoundEmail, err)
		return ErrOperationFailed
	}

	currentHash, err := s.passwords.PasswordHash(ctx, account.ID)
	if err != nil {
		s.logger.Error("password reset hash lookup failed for %s: %v", presented.BoundEmail, err)
		return ErrOperationFailed
	}

	if currentHash != "" && s.encoder.Matches(newPassword, currentHash) {
		return s.reject(ctx, presented, ErrPasswordReuse)
	}

	if !s.policy.IsValid(newPassword) {
		return s.reject(ctx, presented, ErrWeakPassword)
	}

	hash, err := s.encoder.Encode(newPassword)
	if err != nil {
		s.logger.Error("password reset encode failed for %s: %v", presented.BoundEmail, err)
		return ErrOperationFailed
	}

	// a concurrent submission may have consumed the token since IsValid
	if !s.tokens.Redeem(presented) {
		return s.reject(ctx, presented, ErrResetTokenInvalid)
	}

	if err := s.passwords.UpdatePassword(ctx, account.ID, hash); err != nil {
		s.logger.Error("password reset update failed for %s: %v", presented.BoundEmail, err)
		return ErrOperationFailed
	}

	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetCompleted,
		UserID:    account.ID.String(),
		Email:     presented.BoundEmail,
	})

	return nil
}

func (s *PasswordResetService) reject(ctx context.Context, presented PasswordResetToken, err error) error {
	recordActivity(ctx, s.activitySink, s.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetRejected,
		Email:     presented.BoundEmail,
		Metadata:  map[string]any{"reason": err.Error()},
	})
	return err
}
