package iam

import (
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

const maxTokenIDAttempts = 5

// ResetTokenStore issues and redeems single use password reset tokens
type ResetTokenStore interface {
	Generate(account UserRecord, baseURL string) (PasswordResetToken, error)
	IsValid(presented PasswordResetToken) bool
	Consume(tokenID string)
	// Redeem validates and consumes the token as one step
	Redeem(presented PasswordResetToken) bool
}

// MemoryResetTokenStore keeps tokens in a concurrent map keyed by token id.
// Validation and consumption of one token run under that key's lock only.
type MemoryResetTokenStore struct {
	tokens *xsync.MapOf[string, PasswordResetToken]
	ttl    time.Duration
	now    func() time.Time
	newID  func() string
}

// ResetTokenStoreOption customizes a MemoryResetTokenStore
type ResetTokenStoreOption func(*MemoryResetTokenStore)

// WithResetTokenClock injects a custom clock (useful for tests).
func WithResetTokenClock(clock func() time.Time) ResetTokenStoreOption {
	return func(s *MemoryResetTokenStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithResetTokenIDGenerator overrides how token ids are minted
func WithResetTokenIDGenerator(gen func() string) ResetTokenStoreOption {
	return func(s *MemoryResetTokenStore) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewMemoryResetTokenStore returns a store whose tokens live for ttl
func NewMemoryResetTokenStore(ttl time.Duration, opts ...ResetTokenStoreOption) *MemoryResetTokenStore {
	s := &MemoryResetTokenStore{
		tokens: xsync.NewMapOf[string, PasswordResetToken](),
		ttl:    ttl,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

var _ ResetTokenStore = (*MemoryResetTokenStore)(nil)

func (s *MemoryResetTokenStore) Generate(account UserRecord, baseURL string) (PasswordResetToken, error) {
	email := normalizeEmail(account.Email)
	if email == "" {
		return PasswordResetToken{}, goerrors.New("account email is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	now := s.now()
	for attempt := 0; attempt < maxTokenIDAttempts; attempt++ {
		token := PasswordResetToken{
			TokenID:    s.newID(),
			BoundEmail: email,
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.ttl),
		}
		token.URLLink = baseURL + token.TokenID

		if token.TokenID == "" {
			continue
		}

		if _, loaded := s.tokens.LoadOrStore(token.TokenID, token); !loaded {
			return token, nil
		}
	}

	return PasswordResetToken{}, goerrors.New("could not mint a unique reset token id", goerrors.CategoryInternal).
		WithMetadata(map[string]any{"attempts": maxTokenIDAttempts})
}

func (s *MemoryResetTokenStore) IsValid(presented PasswordResetToken) bool {
	stored, ok := s.tokens.Load(presented.TokenID)
	if !ok {
		return false
	}
	return s.valid(stored, presented)
}

// Consume marks the token consumed. Unknown ids are ignored.
func (s *MemoryResetTokenStore) Consume(tokenID string) {
	s.tokens.Compute(tokenID, func(old PasswordResetToken, loaded bool) (PasswordResetToken, bool) {
		if !loaded {
			return old, true
		}
		old.Consumed = true
		return old, false
	})
}

func (s *MemoryResetTokenStore) Redeem(presented PasswordResetToken) bool {
	redeemed := false

	s.tokens.Compute(presented.TokenID, func(old PasswordResetToken, loaded bool) (PasswordResetToken, bool) {
		if !loaded {
			return old, true
		}
		if !s.valid(old, presented) {
			return old, false
		}
		old.Consumed = true
		redeemed = true
		return old, false
	})

	return redeemed
}

// Prune drops consumed and expired tokens and returns how many were removed
func (s *MemoryResetTokenStore) Prune() int {
	now := s.now()
	removed := 0

	s.tokens.Range(func(id string, _ PasswordResetToken) bool {
		s.tokens.Compute(id, func(old PasswordResetToken, loaded bool) (PasswordResetToken, bool) {
			if !loaded {
				return old, true
			}
			if old.Consumed || now.After(old.ExpiresAt) {
				removed++
				return old, true
			}
			return old, false
		})
		return true
	})

	return removed
}

// Len returns the number of stored tokens
func (s *MemoryResetTokenStore) Len() int {
	return s.tokens.Size()
}

func (s *MemoryResetTokenStore) valid(stored, presented PasswordResetToken) bool {
	if stored.Consumed {
		return false
	}
	if s.now().After(stored.ExpiresAt) {
		return false
	}
	return strings.EqualFold(stored.BoundEmail, strings.TrimSpace(presented.BoundEmail))
}
