package iam

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

const DefaultBcryptCost = 12

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest)

// BcryptEncoder is the default PasswordEncoder
type BcryptEncoder struct {
	Cost int
}

// NewBcryptEncoder returns an encoder using cost, or DefaultBcryptCost when
// cost is outside bcrypt's accepted range.
func NewBcryptEncoder(cost int) BcryptEncoder {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return BcryptEncoder{Cost: cost}
}

var _ PasswordEncoder = BcryptEncoder{}

// Encode will generate a password hash
func (e BcryptEncoder) Encode(plain string) (string, error) {
	if plain == "" {
		return "", ErrNoEmptyString
	}

	cost := e.Cost
	if cost == 0 {
		cost = DefaultBcryptCost
	}

	h, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	return string(h), nil
}

// Matches will validate the given cleartext password matches the hash
func (e BcryptEncoder) Matches(plain, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

var (
	upperRE = regexp.MustCompile(`[A-Z]`)
	lowerRE = regexp.MustCompile(`[a-z]`)
	digitRE = regexp.MustCompile(`[0-9]`)
)

// StrengthPolicy is the default PasswordPolicy: bounded length with at least
// one upper case letter, one lower case letter and one digit.
type StrengthPolicy struct {
	MinLength int
	MaxLength int
}

// NewStrengthPolicy returns the policy used by the user service
func NewStrengthPolicy() StrengthPolicy {
	return StrengthPolicy{MinLength: 8, MaxLength: 32}
}

var _ PasswordPolicy = StrengthPolicy{}

func (p StrengthPolicy) IsValid(plain string) bool {
	return p.Validate(plain) == nil
}

// Validate returns the first failed rule
func (p StrengthPolicy) Validate(plain string) error {
	return validation.Validate(plain,
		validation.Required,
		validation.Length(p.MinLength, p.MaxLength),
		validation.Match(upperRE).Error("must contain an upper case letter"),
		validation.Match(lowerRE).Error("must contain a lower case letter"),
		validation.Match(digitRE).Error("must contain a digit"),
	)
}

// PasswordPolicyFunc adapts a predicate to PasswordPolicy
type PasswordPolicyFunc func(plain string) bool

func (f PasswordPolicyFunc) IsValid(plain string) bool {
	return f != nil && f(plain)
}
