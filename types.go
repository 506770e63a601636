package iam

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds iam options
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() int
	GetIssuer() string
	GetResetTokenTTL() time.Duration
	GetResetCooldown() time.Duration
}

// UserFinder resolves user records by email
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)
}

// PasswordStore reads and replaces a user's password hash
type PasswordStore interface {
	PasswordHash(ctx context.Context, id uuid.UUID) (string, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error
}

// EmployeeStore is the persistence surface used by AccountLifecycleGuard
type EmployeeStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*UserRecord, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// AccountStore is the persistence surface used by AccountProvisioner
type AccountStore interface {
	UserFinder
	FindByID(ctx context.Context, id uuid.UUID) (*UserRecord, error)
	Create(ctx context.Context, rec *UserRecord, passwordHash string) (*UserRecord, error)
	ActivateClient(ctx context.Context, id uuid.UUID, passwordHash string) (*UserRecord, error)
}

// PasswordEncoder hashes and verifies passwords
type PasswordEncoder interface {
	Encode(plain string) (string, error)
	Matches(plain, hash string) bool
}

// PasswordPolicy is the password strength predicate
type PasswordPolicy interface {
	IsValid(plain string) bool
}

// Notifier delivers a payload to a destination. Callers do not wait on
// delivery and never roll back on failure.
type Notifier interface {
	Send(ctx context.Context, destination, payload string) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, destination, payload string) error

// Send implements Notifier.
func (f NotifierFunc) Send(ctx context.Context, destination, payload string) error {
	if f == nil {
		return nil
	}
	return f(ctx, destination, payload)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IAM "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IAM "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IAM "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IAM "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
