package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"newsletter-relay/config"
	"newsletter-relay/internal/backoff"
	"newsletter-relay/internal/email"
	"newsletter-relay/internal/handler"
	"newsletter-relay/internal/outbox"
	"newsletter-relay/internal/redis"
	"newsletter-relay/internal/repository"
	"newsletter-relay/internal/server"
	"newsletter-relay/internal/services"
	"newsletter-relay/internal/telemetry"
	"newsletter-relay/pkg/database"
	"newsletter-relay/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()
	l := logger.New(cfg.LogMode)
	defer l.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "newsletter-relay", cfg.OTelEndpoint)
	if err != nil {
		l.Logger.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	if err := repository.InitSchema(db); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}
	if err := database.ApplyRawMigrations(db, "migrations", l.Logger); err != nil {
		log.Fatalf("Failed to apply raw migrations: %v", err)
	}

	redisClient := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	redisUp := redis.Ping(ctx, redisClient) == nil
	if !redisUp {
		l.Logger.Warn("redis unavailable, running without wake-ups and rate limits")
	}

	ledger := repository.NewIdempotencyRepository(db)
	queue := repository.NewOutboxRepository(db)
	issues := repository.NewIssueRepository(db)
	subscribers := repository.NewSubscriberRepository(db)

	executorOpts := []services.ExecutorOption{services.WithExecutorLogger(l.Logger.Named("executor"))}
	if redisUp && cfg.Worker.WakeupsEnabled {
		executorOpts = append(executorOpts, services.WithWakeups(redis.NewPublisher(redisClient)))
	}
	executor := services.NewCommandExecutor(db, ledger, queue, issues, subscribers,
		services.ExecutorConfig{Timeout: cfg.Command.Timeout, RedirectPath: cfg.Command.RedirectPath},
		executorOpts...,
	)

	runner, err := newDeliveryRunner(ctx, cfg, l, db, queue, issues, redisClient, redisUp)
	if err != nil {
		log.Fatalf("Failed to build delivery worker: %v", err)
	}
	runner.Start(ctx, cfg.Worker.Replicas)

	deps := server.Dependencies{
		DB:   db,
		Auth: services.NewAuthService(cfg.JWTSecret, time.Hour),
	}
	if redisUp && cfg.RateLimit.PublishLimit > 0 {
		deps.RateLimiter = redis.NewRateLimiter(redisClient, redis.RateLimitConfig{
			PublishLimit:  cfg.RateLimit.PublishLimit,
			PublishWindow: cfg.RateLimit.PublishWindow,
		})
	}

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Newsletter: handler.NewNewsletterHandler(executor),
		Outbox:     handler.NewOutboxHandler(services.NewOutboxService(queue, issues)),
	}, deps)

	runErr := srv.Run(ctx)
	if runErr != nil {
		l.Logger.Error("server stopped with error", zap.Error(runErr))
	}
	// Workers stop on the same signal; a server failure stops them too.
	stop()
	runner.Wait()
	l.Infof("delivery workers stopped")
	if runErr != nil {
		os.Exit(1)
	}
}

func newDeliveryRunner(
	ctx context.Context,
	cfg *config.Config,
	l *logger.Logger,
	db *gorm.DB,
	queue repository.OutboxRepository,
	issues repository.IssueRepository,
	redisClient *goredis.Client,
	redisUp bool,
) (*outbox.Runner, error) {
	client, err := email.NewClient(email.ClientConfig{
		BaseURL:   cfg.Email.BaseURL,
		Sender:    cfg.Email.Sender,
		AuthToken: cfg.Email.AuthToken,
		Timeout:   cfg.Email.Timeout,
	})
	if err != nil {
		return nil, err
	}
	var gateway email.Gateway = email.NewBreakerGateway(client, email.BreakerConfig{
		ConsecutiveFailures: cfg.Email.BreakerTrips,
		OpenTimeout:         30 * time.Second,
	}, l.Logger.Named("email"))
	gateway = email.NewRateLimitedGateway(gateway, cfg.Email.SendRate)

	opts := []outbox.Option{
		outbox.WithLogger(l.Logger.Named("delivery")),
		outbox.WithRetryStrategy(backoff.Jittered{
			Strategy: backoff.NewExponential(cfg.Worker.RetryInitial, cfg.Worker.RetryMax),
		}),
	}
	if redisUp && cfg.Worker.WakeupsEnabled {
		listener := redis.NewWakeupListener(redisClient, l.Logger.Named("wakeup"))
		go listener.Listen(ctx)
		opts = append(opts, outbox.WithWakeups(listener.Signals()))
	}

	processor := outbox.NewProcessor(db, queue, issues, gateway, outbox.Config{
		PollInterval: cfg.Worker.PollInterval,
		ErrorBackoff: cfg.Worker.ErrorBackoff,
		SendTimeout:  cfg.Email.Timeout,
	}, opts...)
	return outbox.NewRunner(processor), nil
}
