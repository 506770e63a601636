package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/goliatone/go-iam"
)

// Config aggregates runtime configuration for the daemon.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     iam.Options    `mapstructure:"auth"`
	Rotation RotationConfig `mapstructure:"rotation"`
	Database DBConfig       `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	AMQP     AMQPConfig     `mapstructure:"amqp"`
	Mailgun  MailgunConfig  `mapstructure:"mailgun"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ThrottleRate    string        `mapstructure:"throttle_rate"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	PruneInterval   time.Duration `mapstructure:"prune_interval"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RotationConfig keeps tokens signed with a retired key valid until they expire
type RotationConfig struct {
	PreviousSigningKey string `mapstructure:"previous_signing_key"`
}

type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig enables the shared cooldown store when Addr is set
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AMQPConfig enables queue delivery of reset links when URL is set
type AMQPConfig struct {
	URL           string `mapstructure:"url"`
	Queue         string `mapstructure:"queue"`
	ActivityQueue string `mapstructure:"activity_queue"`
}

// MailgunConfig enables direct email delivery when Key is set
type MailgunConfig struct {
	Key     string `mapstructure:"key"`
	Domain  string `mapstructure:"domain"`
	From    string `mapstructure:"from"`
	Subject string `mapstructure:"subject"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.throttle_rate", "10-M")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.prune_interval", time.Minute)

	v.SetDefault("auth.token_expiration", iam.DefaultTokenExpiration)
	v.SetDefault("auth.issuer", "go-iam")
	v.SetDefault("auth.reset_token_ttl", iam.DefaultResetTokenTTL)
	v.SetDefault("auth.reset_cooldown", iam.DefaultResetCooldown)

	v.SetDefault("database.dsn", "file:iam.db?cache=shared")
	v.SetDefault("amqp.queue", "password-change")
	v.SetDefault("amqp.activity_queue", "iam-activity")
	v.SetDefault("mailgun.subject", "Password reset")
	v.SetDefault("logger.level", "info")
}

// LoadConfig reads .env, the optional config file and IAM_ prefixed
// environment variables, in increasing order of precedence.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("IAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// AutomaticEnv only applies to keys viper knows about
	for _, key := range []string{
		"auth.signing_key",
		"rotation.previous_signing_key",
		"redis.addr", "redis.password", "redis.db",
		"amqp.url",
		"mailgun.key", "mailgun.domain", "mailgun.from",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Auth.SigningKey == "" {
		return nil, fmt.Errorf("auth.signing_key is required (IAM_AUTH_SIGNING_KEY)")
	}

	return cfg, nil
}
