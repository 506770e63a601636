package iam

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenService issues and verifies bearer tokens
type TokenService struct {
	signingKey      []byte
	tokenExpiration time.Duration
	issuer          string
	now             func() time.Time
	logger          Logger
}

// TokenServiceOption customizes a TokenService
type TokenServiceOption func(*TokenService)

// WithTokenClock injects a custom clock (useful for tests).
func WithTokenClock(clock func() time.Time) TokenServiceOption {
	return func(ts *TokenService) {
		if clock != nil {
			ts.now = clock
		}
	}
}

// WithTokenLogger overrides the logger
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenService) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a new TokenService from cfg. Token expiration is
// expressed in hours.
func NewTokenService(cfg Config, opts ...TokenServiceOption) *TokenService {
	ts := &TokenService{
		signingKey:      []byte(cfg.GetSigningKey()),
		tokenExpiration: time.Duration(cfg.GetTokenExpiration()) * time.Hour,
		issuer:          cfg.GetIssuer(),
		now:             time.Now,
		logger:          defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts
}

// Issue signs claims into a token. A zero IssuedAt defaults to now and a zero
// ExpiresAt to IssuedAt plus the configured expiration, both truncated to the
// second. Explicit timestamps with a fractional second are rejected.
func (ts *TokenService) Issue(claims Claims) (string, error) {
	if len(ts.signingKey) == 0 {
		return "", goerrors.New("signing key is required", goerrors.CategoryInternal)
	}

	if claims.SubjectID == "" || claims.Email == "" {
		return "", goerrors.New("claims require subject and email", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	if !claims.Role.IsValid() {
		return "", goerrors.New("claims carry an unknown role", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"role": string(claims.Role)})
	}

	issuedAt := claims.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = ts.now().Truncate(time.Second)
	}

	expiresAt := claims.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = issuedAt.Add(ts.tokenExpiration).Truncate(time.Second)
	}

	// numeric dates carry whole seconds only
	if !wholeSecond(issuedAt) || !wholeSecond(expiresAt) {
		return "", goerrors.New("claims timestamps must be whole seconds", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{
				"issued_at":  issuedAt.UTC(),
				"expires_at": expiresAt.UTC(),
			})
	}

	jc := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   claims.SubjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:    claims.Email,
		UserRole: string(claims.Role),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jc).SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signed, nil
}

// Decode verifies the token signature and expiry and returns its claims.
// A token is still valid at its exact expiry instant.
func (ts *TokenService) Decode(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, ErrTokenMalformed
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		// expiry is checked below against the injected clock
		jwt.WithoutClaimsValidation(),
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService decode encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		return nil, malformed(err, "")
	}

	jc, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, malformed(nil, "unable to map claims")
	}

	if jc.ExpiresAt == nil {
		return nil, malformed(nil, "missing exp claim")
	}

	if ts.now().After(jc.ExpiresAt.Time) {
		return nil, withMeta(ErrTokenExpired, jwt.ErrTokenExpired, map[string]any{
			"expired_at": jc.ExpiresAt.Time.UTC(),
		})
	}

	if ts.issuer != "" && jc.Issuer != ts.issuer {
		return nil, malformed(jwt.ErrTokenInvalidIssuer, "issuer mismatch")
	}

	claims := jc.toClaims()
	if claims.SubjectID == "" || claims.Email == "" {
		return nil, malformed(nil, "missing required claim")
	}

	if !claims.Role.IsValid() {
		return nil, malformed(nil, "unknown role")
	}

	return claims, nil
}

// ExtractClaims decodes a raw header value, tolerating a leading Bearer scheme
func (ts *TokenService) ExtractClaims(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	const scheme = "Bearer "
	if len(raw) > len(scheme) && strings.EqualFold(raw[:len(scheme)], scheme) {
		raw = strings.TrimSpace(raw[len(scheme):])
	}
	return ts.Decode(raw)
}

func wholeSecond(t time.Time) bool {
	return t.Nanosecond() == 0
}

func malformed(cause error, reason string) error {
	meta := map[string]any{}
	if reason != "" {
		meta["reason"] = reason
	}
	if cause != nil {
		meta["cause"] = cause.Error()
		if stderrors.Is(cause, jwt.ErrTokenSignatureInvalid) {
			meta["reason"] = "signature invalid"
		}
	}
	return withMeta(ErrTokenMalformed, cause, meta)
}
