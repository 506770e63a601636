package iam

import (
	stderrors "errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeTokenMalformed    = "TOKEN_MALFORMED"
	TextCodeTokenExpired      = "TOKEN_EXPIRED"
	TextCodeRateLimited       = "PASSWORD_RESET_RATE_LIMITED"
	TextCodeResetTokenInvalid = "PASSWORD_RESET_TOKEN_INVALID"
	TextCodePasswordReuse     = "PASSWORD_REUSE"
	TextCodeWeakPassword      = "PASSWORD_TOO_WEAK"
	TextCodeUnauthorized      = "UNAUTHORIZED"
	TextCodeForbidden         = "FORBIDDEN"
	TextCodeUserNotFound      = "USER_NOT_FOUND"
	TextCodeFieldMismatch     = "IMMUTABLE_FIELD_MISMATCH"
	TextCodeOperationFailed   = "OPERATION_FAILED"
	TextCodeUserExists        = "USER_ALREADY_EXISTS"
	TextCodeAccountNotPending = "ACCOUNT_NOT_PENDING"
)

// ErrTokenMalformed is returned when a bearer token cannot be verified or decoded.
var ErrTokenMalformed = goerrors.New("invalid token", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when a bearer token is past its expiry instant.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrRateLimited is returned when a reset is requested inside the cooldown window.
var ErrRateLimited = goerrors.New("password reset requested too soon", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeRateLimited).
	WithCode(goerrors.CodeTooManyRequests)

// ErrResetTokenInvalid covers unknown, expired, consumed and mismatched reset tokens alike.
var ErrResetTokenInvalid = goerrors.New("password reset token is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeResetTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrPasswordReuse is returned when the new password matches the current one.
var ErrPasswordReuse = goerrors.New("new password must differ from the current password", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordReuse).
	WithCode(goerrors.CodeBadRequest)

// ErrWeakPassword is returned when the new password fails the strength policy.
var ErrWeakPassword = goerrors.New("password does not meet strength requirements", goerrors.CategoryValidation).
	WithTextCode(TextCodeWeakPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrUnauthorized is returned when no valid claims back the request.
var ErrUnauthorized = goerrors.New("unauthorized", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthorized).
	WithCode(goerrors.CodeUnauthorized)

// ErrForbidden is returned when the actor's role does not permit the operation.
var ErrForbidden = goerrors.New("forbidden", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrFieldMismatch is returned when a submitted record changes an identity field.
var ErrFieldMismatch = goerrors.New("submitted record changes an immutable field", goerrors.CategoryValidation).
	WithTextCode(TextCodeFieldMismatch).
	WithCode(goerrors.CodeBadRequest)

// ErrUserExists is returned when the email or username is already registered.
var ErrUserExists = goerrors.New("user already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeUserExists).
	WithCode(goerrors.CodeConflict)

// ErrAccountNotPending is returned when activating a client that is already
// active or already has a password.
var ErrAccountNotPending = goerrors.New("account is not awaiting activation", goerrors.CategoryConflict).
	WithTextCode(TextCodeAccountNotPending).
	WithCode(goerrors.CodeConflict)

// ErrOperationFailed hides collaborator failures from callers. Details are logged.
var ErrOperationFailed = goerrors.New("operation failed", goerrors.CategoryInternal).
	WithTextCode(TextCodeOperationFailed).
	WithCode(goerrors.CodeInternal)

// IsInvalidTokenError reports whether err is any bearer token failure
func IsInvalidTokenError(err error) bool {
	return IsTokenExpiredError(err) || IsMalformedError(err)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	return hasTextCode(err, TextCodeTokenExpired)
}

// IsMalformedError will check for tokens that failed verification
func IsMalformedError(err error) bool {
	return hasTextCode(err, TextCodeTokenMalformed)
}

// IsUserNotFound reports whether err denotes a missing user
func IsUserNotFound(err error) bool {
	if err == nil {
		return false
	}
	return hasTextCode(err, TextCodeUserNotFound) || goerrors.IsNotFound(err)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// withMeta clones base so sentinels stay untouched and errors.Is still matches
func withMeta(base *goerrors.Error, source error, meta map[string]any) *goerrors.Error {
	clone := base.Clone()
	clone.Source = base
	if source != nil {
		clone.Source = stderrors.Join(base, source)
	}
	if len(meta) > 0 {
		clone = clone.WithMetadata(meta)
	}
	return clone
}
