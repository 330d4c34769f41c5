// Package app wires fern's components together for the CLI commands.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/db"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/oauth"
	"github.com/Ramsey-B/fern/pkg/orchestrator"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/providers/builtin"
	"github.com/Ramsey-B/fern/pkg/queue"
	"github.com/Ramsey-B/fern/pkg/ratelimit"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/scheduler"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
)

// NewLogger builds the zap-backed logger for cfg.
func NewLogger(cfg *config.Config) (ectologger.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zapConfig.Level = level

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), nil
}

// App holds the running dependencies and the services built on them.
type App struct {
	Config *config.Config
	Logger ectologger.Logger

	DB       database.DB
	Redis    *redis.Client
	Producer *kafka.Producer

	Integrations *repositories.IntegrationRepository
	Runs         *repositories.SyncRunRepository
	Orchestrator *orchestrator.Orchestrator
	Streams      *redis.Streams
	DLQ          *redis.DeadLetterQueue
	Publisher    *queue.Publisher
	Processor    *queue.Processor
	Scheduler    *scheduler.Scheduler
	Health       *health.Checker

	startup     *startup.Startup
	stopTracing func(context.Context) error
}

// New connects to postgres, redis and kafka, retrying until they answer, and builds the services.
func New(ctx context.Context, cfg *config.Config, logger ectologger.Logger) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
		Health:  health.NewChecker(cfg.Version),
	}

	stopTracing, err := tracing.Init(ctx, cfg.AppName, cfg.OTLPEnabled, exporters.OTLPConfig{
		Endpoint: cfg.OTLPEndpoint,
		Protocol: cfg.OTLPProtocol,
		Insecure: cfg.OTLPInsecure,
		Headers:  exporters.ParseHeaders(cfg.OTLPHeaders),
		Timeout:  10 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	a.stopTracing = stopTracing

	a.startup.AddDependency(a.postgresDependency())
	a.startup.AddDependency(a.redisDependency())
	if cfg.DatabaseMigrateOnStart {
		a.startup.AddDependency(startup.Func{
			Name:     "migrations",
			Requires: []string{"postgres"},
			StartFn: func(ctx context.Context) error {
				return runMigrations(a.DB, cfg, logger)
			},
		})
	}
	if cfg.KafkaEnabled {
		a.startup.AddDependency(a.kafkaDependency())
	}

	if err := a.startup.Start(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	if err := a.build(); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) postgresDependency() startup.Func {
	return startup.Func{
		Name: "postgres",
		StartFn: func(ctx context.Context) error {
			conn, err := database.Connect(ctx, databaseConfig(a.Config), a.Logger)
			if err != nil {
				return err
			}
			a.DB = conn
			return nil
		},
		StopFn: func(context.Context) error {
			return a.DB.Close()
		},
	}
}

func (a *App) redisDependency() startup.Func {
	return startup.Func{
		Name: "redis",
		StartFn: func(ctx context.Context) error {
			client, err := redis.NewClient(ctx, redis.Config{
				Host:     a.Config.RedisHost,
				Port:     a.Config.RedisPort,
				Password: a.Config.RedisPassword,
				DB:       a.Config.RedisDB,
				PoolSize: a.Config.RedisPoolSize,
			}, a.Logger)
			if err != nil {
				return err
			}
			a.Redis = client
			return nil
		},
		StopFn: func(context.Context) error {
			return a.Redis.Close()
		},
	}
}

func (a *App) kafkaDependency() startup.Func {
	kafkaConfig := kafka.ParseConfig(a.Config.KafkaBrokers, a.Config.KafkaSyncEventsTopic)
	return startup.Func{
		Name: "kafka",
		StartFn: func(ctx context.Context) error {
			if err := kafkaConfig.Ping(ctx); err != nil {
				return err
			}
			a.Producer = kafka.NewProducer(kafkaConfig, a.Logger)
			a.Health.AddCheck("kafka", kafkaConfig.Ping, false)
			return nil
		},
		StopFn: func(context.Context) error {
			return a.Producer.Close()
		},
	}
}

// build creates the repositories, the orchestrator and the background services.
func (a *App) build() error {
	cfg := a.Config

	catalog, err := oauth.LoadCatalog(cfg.SyncEndpointsFile)
	if err != nil {
		return err
	}

	client := httpclient.NewClient(httpclient.Config{
		Timeout:         cfg.SyncRequestTimeout,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}, a.Logger)
	client.SetThrottle(ratelimit.NewManager(a.Redis, ratelimit.LimitsFromCatalog(catalog), a.Logger))

	registry := builtin.Registry(providers.Deps{
		Client:      client,
		Refresher:   oauth.NewRefresher(client.HTTPClient(), a.Logger),
		Catalog:     catalog,
		Credentials: cfg.ProviderCredentials(),
		Evaluator:   expressions.NewEvaluator(),
		Logger:      a.Logger,
		PageSize:    cfg.SyncPageSize,
	})

	a.Integrations = repositories.NewIntegrationRepository(a.DB, a.Logger)
	a.Runs = repositories.NewSyncRunRepository(a.DB, a.Logger)
	records := repositories.NewRecordRepository(a.DB, a.Logger)
	locker := redis.NewLocker(a.Redis, "")

	var events orchestrator.EventPublisher
	if a.Producer != nil {
		events = a.Producer
	}

	a.Orchestrator = orchestrator.NewOrchestrator(
		a.Integrations,
		records,
		a.Runs,
		registry,
		a.DB,
		locker,
		events,
		nil,
		orchestrator.Config{
			BatchSize: cfg.SyncBatchSize,
			MaxPages:  cfg.SyncMaxPages,
			LockTTL:   cfg.SyncLockTTL,
		},
		a.Logger,
	)

	a.Streams = redis.NewStreams(a.Redis)
	a.Streams.SetMaxLen(cfg.RedisStreamsMaxLen)
	a.DLQ = redis.NewDeadLetterQueue(a.Redis, cfg.RedisStreamsDLQ)
	a.Publisher = queue.NewPublisher(a.Streams, cfg.RedisStreamsJobQueue)
	a.Processor = queue.NewProcessor(a.Streams, a.DLQ, a.Orchestrator, queue.ProcessorConfig{
		Stream:        cfg.RedisStreamsJobQueue,
		ConsumerGroup: cfg.RedisStreamsConsumerGroup,
		ConsumerName:  cfg.RedisStreamsConsumerName,
		MaxRetries:    cfg.WorkerMaxRetries,
		WorkerCount:   cfg.WorkerCount,
		JobTimeout:    cfg.WorkerJobTimeout,
	}, a.Logger)

	a.Scheduler = scheduler.NewScheduler(a.Integrations, a.Publisher, locker, scheduler.Config{
		PollInterval: cfg.SchedulerPollInterval,
		SyncInterval: cfg.SchedulerSyncInterval,
		ErrorBackoff: cfg.SchedulerErrorBackoff,
		BatchSize:    cfg.SchedulerBatchSize,
	}, a.Logger)

	a.Health.AddCheck("postgres", a.DB.PingContext, true)
	a.Health.AddCheck("redis", a.Redis.Ping, true)

	a.Logger.Infof("Registered %d providers", len(registry.Providers()))
	return nil
}

// Close stops every started dependency and flushes traces.
func (a *App) Close(ctx context.Context) error {
	err := a.startup.Stop(ctx)
	if a.stopTracing != nil {
		if tracingErr := a.stopTracing(ctx); tracingErr != nil && err == nil {
			err = tracingErr
		}
	}
	return err
}

func databaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		User:            cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}
}

// Migrate connects to postgres and applies the embedded migrations.
func Migrate(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	conn, err := database.Connect(ctx, databaseConfig(cfg), logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	return runMigrations(conn, cfg, logger)
}

func runMigrations(conn database.DB, cfg *config.Config, logger ectologger.Logger) error {
	sqlDB, ok := database.SQLDB(conn)
	if !ok {
		return fmt.Errorf("migrations need a postgres connection")
	}

	service := database.NewMigrationService(logger, db.Migrations, &database.MigrationConfig{
		Dir:     "migrations",
		Version: cfg.DatabaseMigrationVersion,
		Force:   cfg.DatabaseMigrationForce,
	})
	return service.Migrate(sqlDB, cfg.DatabaseName)
}
