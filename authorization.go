package iam

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Operation is the action an actor attempts on a user record
type Operation string

const (
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Decision is the outcome of an authorization check
type Decision int

const (
	DecisionAllow Decision = iota
	DecisionDeny401
	DecisionDeny403
)

func (d Decision) String() string {
	switch d {
	case DecisionAllow:
		return "allow"
	case DecisionDeny401:
		return "deny_401"
	case DecisionDeny403:
		return "deny_403"
	}
	return "unknown"
}

// Allowed reports whether the decision permits the operation
func (d Decision) Allowed() bool {
	return d == DecisionAllow
}

// Err returns the error matching a denial, nil when allowed
func (d Decision) Err() error {
	switch d {
	case DecisionAllow:
		return nil
	case DecisionDeny401:
		return ErrUnauthorized
	default:
		return ErrForbidden
	}
}

// AuthorizationEngine decides whether an actor may read, update or delete a
// user record. It holds no state.
type AuthorizationEngine struct {
	logger Logger
}

// NewAuthorizationEngine returns an engine logging denials at debug level
func NewAuthorizationEngine(logger Logger) *AuthorizationEngine {
	return &AuthorizationEngine{logger: normalizeLogger(logger)}
}

// Authorize evaluates the role table for claims against target. submitted is
// only consulted for OpUpdate; a nil submitted record fails the field check.
func (e *AuthorizationEngine) Authorize(claims *Claims, target *UserRecord, op Operation, submitted *UserRecord) Decision {
	d, reason := e.decide(claims, target, op, submitted)
	if d != DecisionAllow {
		e.logger.Debug("authorize %s denied (%s): %s", op, d, reason)
	}
	return d
}

func (e *AuthorizationEngine) decide(claims *Claims, target *UserRecord, op Operation, submitted *UserRecord) (Decision, string) {
	if claims == nil {
		return DecisionDeny401, "missing claims"
	}

	if !claims.Role.IsValid() {
		return DecisionDeny401, "unknown role"
	}

	switch op {
	case OpRead, OpUpdate, OpDelete:
	default:
		return DecisionDeny403, "unknown operation"
	}

	if target == nil {
		return DecisionDeny403, "missing target"
	}

	self := claims.IsSelf(target.Email)

	switch claims.Role {
	case RoleUser:
		if !self {
			return DecisionDeny403, "user acting on another account"
		}
		if op == OpUpdate && !fieldsMatch(submitted, target) {
			return DecisionDeny401, "self update changes identity fields"
		}
		return DecisionAllow, ""

	case RoleEmployee:
		if target.Role != RoleUser && !self {
			return DecisionDeny403, "employee acting on privileged account"
		}
		if op == OpUpdate && !fieldsMatch(submitted, target) {
			return DecisionDeny403, "update changes identity fields"
		}
		return DecisionAllow, ""

	case RoleAdmin:
		if op == OpUpdate && !fieldsMatch(submitted, target) {
			return DecisionDeny403, "update changes identity fields"
		}
		return DecisionAllow, ""
	}

	return DecisionDeny401, "unhandled role"
}

func fieldsMatch(submitted, stored *UserRecord) bool {
	if submitted == nil || stored == nil {
		return false
	}
	return CheckFieldInvariants(*submitted, *stored) == nil
}

// CheckFieldInvariants verifies that submitted only differs from stored in
// non identity fields. The returned error names the first offending field.
func CheckFieldInvariants(submitted, stored UserRecord) error {
	if !strings.EqualFold(strings.TrimSpace(submitted.Email), strings.TrimSpace(stored.Email)) {
		return fieldMismatch("email")
	}
	if submitted.Role != stored.Role {
		return fieldMismatch("role")
	}
	if !samePermissions(submitted.Permissions, stored.Permissions) {
		return fieldMismatch("permissions")
	}
	if submitted.ID != stored.ID {
		return fieldMismatch("id")
	}
	if submitted.Username != stored.Username {
		return fieldMismatch("username")
	}
	if submitted.Kind != stored.Kind {
		return fieldMismatch("kind")
	}

	switch stored.Kind {
	case KindPrivateClient, KindCorporateClient:
		if submitted.PrimaryAccountNumber() != stored.PrimaryAccountNumber() {
			return fieldMismatch("primaryAccountNumber")
		}
	case KindEmployee, KindPlainUser, "":
	default:
		return fieldMismatch("kind")
	}

	return nil
}

func fieldMismatch(field string) *goerrors.Error {
	return withMeta(ErrFieldMismatch, nil, map[string]any{"field": field})
}

func samePermissions(a, b []PermissionType) bool {
	set := make(map[PermissionType]struct{}, len(a))
	for _, p := range a {
		set[p] = struct{}{}
	}
	other := make(map[PermissionType]struct{}, len(b))
	for _, p := range b {
		if _, ok := set[p]; !ok {
			return false
		}
		other[p] = struct{}{}
	}
	return len(set) == len(other)
}
