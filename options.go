package iam

import "time"

const (
	DefaultTokenExpiration = 24
	DefaultResetTokenTTL   = 15 * time.Minute
	DefaultResetCooldown   = time.Minute
)

// Options is the plain struct implementation of Config
type Options struct {
	SigningKey      string        `mapstructure:"signing_key" json:"signing_key"`
	TokenExpiration int           `mapstructure:"token_expiration" json:"token_expiration"`
	Issuer          string        `mapstructure:"issuer" json:"issuer"`
	ResetTokenTTL   time.Duration `mapstructure:"reset_token_ttl" json:"reset_token_ttl"`
	ResetCooldown   time.Duration `mapstructure:"reset_cooldown" json:"reset_cooldown"`
}

var _ Config = Options{}

func (o Options) GetSigningKey() string {
	return o.SigningKey
}

// GetTokenExpiration returns the token lifetime in hours
func (o Options) GetTokenExpiration() int {
	if o.TokenExpiration <= 0 {
		return DefaultTokenExpiration
	}
	return o.TokenExpiration
}

func (o Options) GetIssuer() string {
	return o.Issuer
}

func (o Options) GetResetTokenTTL() time.Duration {
	if o.ResetTokenTTL <= 0 {
		return DefaultResetTokenTTL
	}
	return o.ResetTokenTTL
}

func (o Options) GetResetCooldown() time.Duration {
	if o.ResetCooldown <= 0 {
		return DefaultResetCooldown
	}
	return o.ResetCooldown
}
