package iam

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the decoded view of a bearer token. It is rebuilt on every
// decode and never persisted.
type Claims struct {
	SubjectID string    `json:"sub"`
	Email     string    `json:"email"`
	Role      RoleType  `json:"role"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// HasRole checks the claim role
func (c *Claims) HasRole(role RoleType) bool {
	return c != nil && c.Role == role
}

// IsSelf reports whether the claims belong to the account with email
func (c *Claims) IsSelf(email string) bool {
	return c != nil && strings.EqualFold(c.Email, email)
}

// JWTClaims is the wire shape signed into tokens
type JWTClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	UserRole string `json:"role"`
}

func (c *JWTClaims) toClaims() *Claims {
	out := &Claims{
		SubjectID: c.RegisteredClaims.Subject,
		Email:     c.Email,
		Role:      RoleType(c.UserRole),
	}
	if c.IssuedAt != nil {
		out.IssuedAt = c.IssuedAt.Time.UTC()
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time.UTC()
	}
	return out
}
