package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"

	"github.com/goliatone/go-iam"
	"github.com/goliatone/go-iam/activitymap"
	"github.com/goliatone/go-iam/httpapi"
	"github.com/goliatone/go-iam/notify"
)

func newServeCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*configFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *Config) error {
	if parent == nil {
		parent = context.Background()
	}

	zl, err := NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer zl.Sync() //nolint:errcheck

	logger := iam.NewZapLogger(zl)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()

	users := iam.NewUserRepository(db)
	if err := users.CreateSchema(ctx); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	resetTokens := iam.NewMemoryResetTokenStore(cfg.Auth.GetResetTokenTTL())

	var limiter iam.RateLimiter
	memLimiter := iam.NewMemoryRateLimiter(cfg.Auth.GetResetCooldown())
	limiter = memLimiter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		limiter = iam.NewRedisRateLimiter(rdb, cfg.Auth.GetResetCooldown(), "")
		zl.Info("reset cooldown shared through redis", zap.String("addr", cfg.Redis.Addr))
	}

	notifier, activity, closeNotifier, err := buildNotifier(cfg, logger, zl)
	if err != nil {
		return err
	}
	defer closeNotifier()

	var decoder iam.TokenDecoder
	if cfg.Rotation.PreviousSigningKey != "" {
		previous := cfg.Auth
		previous.SigningKey = cfg.Rotation.PreviousSigningKey
		decoder = iam.NewMultiTokenDecoder(
			iam.NewTokenService(cfg.Auth),
			iam.NewTokenService(previous),
		)
	}

	svc := iam.NewService(cfg.Auth, iam.ServiceDeps{
		Users:     users,
		Passwords: users,
		Employees: users,
		Accounts:  users,
		Limiter:   limiter,
		Tokens:    resetTokens,
		Notifier:  notifier,
		Decoder:   decoder,
	},
		iam.WithLogger(logger),
		iam.WithActivitySink(activity),
	)

	app := httpapi.NewApp(logger)
	controller := httpapi.NewUserController(svc, users,
		httpapi.WithControllerLogger(logger),
		httpapi.WithThrottleRate(cfg.Server.ThrottleRate),
	)
	if err := httpapi.RegisterUserRoutes(app, controller); err != nil {
		return fmt.Errorf("failed to register routes: %w", err)
	}

	go pruneLoop(ctx, cfg.Server.PruneInterval, zl, resetTokens, memLimiter)

	errCh := make(chan error, 1)
	go func() {
		zl.Info("listening", zap.String("addr", cfg.Server.Addr()))
		errCh <- app.Listen(cfg.Server.Addr())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		zl.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("fiber listen: %w", err)
		}
	case <-ctx.Done():
	}

	return app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout)
}

// buildNotifier fans reset links out to every configured channel. Remote
// channels sit behind a circuit breaker; with none configured links are logged.
// Activity is always logged and also published when a broker is configured.
func buildNotifier(cfg *Config, logger iam.Logger, zl *zap.Logger) (iam.Notifier, iam.ActivitySink, func(), error) {
	var (
		fanout  notify.Fanout
		closers []func()
	)
	sinks := notify.FanoutSink{activityLogSink(zl)}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.AMQP.URL != "" {
		conn, err := amqp.Dial(cfg.AMQP.URL)
		if err != nil {
			return nil, nil, closeAll, fmt.Errorf("failed to connect to broker: %w", err)
		}
		closers = append(closers, func() { _ = conn.Close() })

		ch, err := conn.Channel()
		if err != nil {
			closeAll()
			return nil, nil, func() {}, fmt.Errorf("failed to open channel: %w", err)
		}
		closers = append(closers, func() { _ = ch.Close() })

		if err := notify.DeclareQueues(ch); err != nil {
			closeAll()
			return nil, nil, func() {}, err
		}
		if err := notify.DeclareQueues(ch, cfg.AMQP.ActivityQueue); err != nil {
			closeAll()
			return nil, nil, func() {}, err
		}

		fanout = append(fanout, notify.NewBreakerNotifier(
			notify.NewAMQPNotifier(ch, cfg.AMQP.Queue),
			notify.BreakerConfig{Name: "amqp", Logger: logger},
		))
		sinks = append(sinks, notify.NewActivityPublisher(ch, cfg.AMQP.ActivityQueue))
	}

	if cfg.Mailgun.Key != "" {
		mg, err := notify.NewMailgunNotifier(notify.MailgunConfig{
			Key:     cfg.Mailgun.Key,
			Domain:  cfg.Mailgun.Domain,
			From:    cfg.Mailgun.From,
			Subject: cfg.Mailgun.Subject,
		})
		if err != nil {
			closeAll()
			return nil, nil, func() {}, err
		}
		fanout = append(fanout, notify.NewBreakerNotifier(mg, notify.BreakerConfig{Name: "mailgun", Logger: logger}))
	}

	if len(fanout) == 0 {
		return notify.NewLogNotifier(logger), sinks, closeAll, nil
	}

	return fanout, sinks, closeAll, nil
}

func activityLogSink(zl *zap.Logger) iam.ActivitySink {
	return iam.ActivitySinkFunc(func(_ context.Context, e iam.ActivityEvent) error {
		record := activitymap.Normalize(e)
		zl.Info("activity",
			zap.String("verb", record.Verb),
			zap.String("actor_id", record.ActorID),
			zap.String("object_type", record.ObjectType),
			zap.String("object_id", record.ObjectID),
			zap.String("channel", record.Channel),
			zap.Any("metadata", record.Metadata),
			zap.Time("occurred_at", record.OccurredAt),
		)
		return nil
	})
}

type pruner interface {
	Prune() int
}

// pruneLoop drops expired reset tokens and stale cooldown entries
func pruneLoop(ctx context.Context, every time.Duration, zl *zap.Logger, stores ...pruner) {
	if every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := 0
			for _, s := range stores {
				removed += s.Prune()
			}
			if removed > 0 {
				zl.Debug("pruned expired entries", zap.Int("removed", removed))
			}
		}
	}
}
