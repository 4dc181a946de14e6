package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/redis/go-redis/v9"

	"festival-bot/handler"
	"festival-bot/internal/config"
	"festival-bot/internal/integrations/connector"
	"festival-bot/internal/integrations/paramstore"
	"festival-bot/internal/lock"
	"festival-bot/internal/repository"
	"festival-bot/internal/state"
	"festival-bot/internal/telemetry"
	"festival-bot/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{Enabled: cfg.TracingEnabled, ServiceName: cfg.ServiceName})
	if err != nil {
		fatal("failed to set up tracing", err)
	}

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		fatal("failed to load AWS config", err)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		fatal("failed to create SSM client", err)
	}

	var redisClient redis.UniversalClient
	if cfg.RedisURL != "" {
		redisClient, err = repository.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			fatal("failed to connect to redis", err)
		}
	}

	var store repository.Store
	switch cfg.StateBackend {
	case config.BackendDynamoDB:
		store, err = repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable, cfg.StateTTL)
	case config.BackendRedis:
		store, err = repository.NewRedisStore(redisClient, cfg.ServiceName, cfg.StateTTL)
	default:
		logger.Warn("using in-memory state; conversation state is lost when the process exits")
		store = repository.NewMemoryStore()
	}
	if err != nil {
		fatal("failed to create state store", err)
	}

	var locker lock.Locker = lock.NewLocal()
	if redisClient != nil {
		locker, err = lock.NewRedis(redisClient, cfg.LockTTL, logger)
		if err != nil {
			fatal("failed to create redis locker", err)
		}
	}

	connectorClient, err := connector.NewClient(ssmClient, cfg.ParamPrefix)
	if err != nil {
		fatal("failed to create connector client", err)
	}

	// ---- Handler ----
	states, err := state.NewManager(store, cfg.StateNamespace, logger)
	if err != nil {
		fatal("failed to create state manager", err)
	}
	content, err := usecase.NewContentSource(ssmClient, cfg.ParamPrefix)
	if err != nil {
		fatal("failed to create content source", err)
	}
	turnService, err := usecase.NewTurnService(states, locker, content, cfg.MaxSaveAttempts, logger)
	if err != nil {
		fatal("failed to create turn service", err)
	}

	h, err := handler.NewHandler(turnService, connectorClient, logger)
	if err != nil {
		fatal("failed to create handler", err)
	}

	logger.Info("starting", "state_backend", cfg.StateBackend, "distributed_lock", redisClient != nil)
	lambda.StartWithOptions(h.Handle, lambda.WithEnableSIGTERM(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Error("tracing shutdown failed", "err", err)
		}
	}))
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
