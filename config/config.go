package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/oauth"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"fern"`
	Version                       string   `env:"APP_VERSION" env-default:"dev"`
	Port                          int      `env:"PORT" env-default:"3000"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	ReadHeaderTimeoutSeconds      int      `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int      `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,DELETE"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Graceful shutdown budget for the server, scheduler and worker
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"30s"`

	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:"localhost"`
	// Database port
	DatabasePort int `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"fern"`
	// Database SSL mode
	DatabaseSSLMode string `env:"DB_SSL_MODE" env-default:"disable"`
	// Max Open Conns
	DatabaseMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	// Max Idle Conns
	DatabaseMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	// Conn Max Lifetime
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	// Database Migration Version, 0 migrates to the latest
	DatabaseMigrationVersion uint `env:"DB_MIGRATION_VERSION" env-default:"0"`
	// Database Migration Force
	DatabaseMigrationForce int `env:"DB_MIGRATION_FORCE" env-default:"0"`
	// Run migrations when the server starts
	DatabaseMigrateOnStart bool `env:"DB_MIGRATE_ON_START" env-default:"false"`

	// Auth Enabled - when false, the X-Workspace-ID and X-User-ID headers are trusted
	AuthEnabled bool `env:"AUTH_ENABLED" env-default:"false"`
	// Auth Issuer URL
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" env-default:""`
	// Auth Client ID
	AuthClientID string `env:"AUTH_CLIENT_ID" env-default:""`

	// Redis host
	RedisHost string `env:"REDIS_HOST" env-default:"localhost"`
	// Redis port
	RedisPort int `env:"REDIS_PORT" env-default:"6379"`
	// Redis password
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	// Redis database number
	RedisDB int `env:"REDIS_DB" env-default:"0"`
	// Redis connection pool size (0 uses the client default)
	RedisPoolSize int `env:"REDIS_POOL_SIZE" env-default:"0"`

	// Kafka brokers (comma-separated)
	KafkaBrokers string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	// Kafka topic for sync lifecycle events
	KafkaSyncEventsTopic string `env:"KAFKA_SYNC_EVENTS_TOPIC" env-default:"fern.sync-events"`
	// Enable/disable event publishing
	KafkaEnabled bool `env:"KAFKA_ENABLED" env-default:"true"`

	// Sync settings
	// Number of upserts that run concurrently inside a batch
	SyncBatchSize int `env:"SYNC_BATCH_SIZE" env-default:"50"`
	// Page ceiling for one pass
	SyncMaxPages int `env:"SYNC_MAX_PAGES" env-default:"1000"`
	// Page size requested from providers that accept one
	SyncPageSize int `env:"SYNC_PAGE_SIZE" env-default:"100"`
	// Per-integration lock lifetime without a keepalive
	SyncLockTTL time.Duration `env:"SYNC_LOCK_TTL" env-default:"1h"`
	// Timeout for one provider HTTP request
	SyncRequestTimeout time.Duration `env:"SYNC_REQUEST_TIMEOUT" env-default:"30s"`
	// Optional YAML file overriding the built-in token endpoints
	SyncEndpointsFile string `env:"SYNC_ENDPOINTS_FILE" env-default:""`

	// Scheduler settings
	// Enable/disable the scheduler
	SchedulerEnabled bool `env:"SCHEDULER_ENABLED" env-default:"true"`
	// Scheduler poll interval
	SchedulerPollInterval time.Duration `env:"SCHEDULER_POLL_INTERVAL" env-default:"30s"`
	// Minimum time between passes of an active integration
	SchedulerSyncInterval time.Duration `env:"SCHEDULER_SYNC_INTERVAL" env-default:"15m"`
	// Minimum time before an errored integration is tried again
	SchedulerErrorBackoff time.Duration `env:"SCHEDULER_ERROR_BACKOFF" env-default:"1h"`
	// Integrations enqueued per poll
	SchedulerBatchSize int `env:"SCHEDULER_BATCH_SIZE" env-default:"100"`

	// Worker settings
	// Enable/disable the queue worker
	WorkerEnabled bool `env:"WORKER_ENABLED" env-default:"true"`
	// Concurrent sync jobs per process
	WorkerCount int `env:"WORKER_COUNT" env-default:"4"`
	// Timeout for one sync job
	WorkerJobTimeout time.Duration `env:"WORKER_JOB_TIMEOUT" env-default:"10m"`
	// Attempts before a job moves to the dead letter queue
	WorkerMaxRetries int `env:"WORKER_MAX_RETRIES" env-default:"3"`

	// Redis Streams settings
	// Job queue stream name
	RedisStreamsJobQueue string `env:"REDIS_STREAMS_JOB_QUEUE" env-default:"fern:sync:jobs"`
	// Consumer group name
	RedisStreamsConsumerGroup string `env:"REDIS_STREAMS_CONSUMER_GROUP" env-default:"fern-workers"`
	// Consumer name (defaults to hostname if empty)
	RedisStreamsConsumerName string `env:"REDIS_STREAMS_CONSUMER_NAME" env-default:""`
	// Stream holding jobs that exhausted their retries
	RedisStreamsDLQ string `env:"REDIS_STREAMS_DLQ" env-default:"fern:sync:dlq"`
	// Approximate cap on entries kept in the job stream (0 keeps everything)
	RedisStreamsMaxLen int64 `env:"REDIS_STREAMS_MAX_LEN" env-default:"100000"`

	// Tracing settings
	// Enable OTLP tracing export (set to true to send traces to collector)
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
	// Extra exporter headers, k1=v1,k2=v2
	OTLPHeaders string `env:"OTLP_HEADERS" env-default:""`

	// OAuth app registrations for providers whose tokens expire
	AsanaClientID         string `env:"ASANA_CLIENT_ID"`
	AsanaClientSecret     string `env:"ASANA_CLIENT_SECRET"`
	JiraClientID          string `env:"JIRA_CLIENT_ID"`
	JiraClientSecret      string `env:"JIRA_CLIENT_SECRET"`
	TickTickClientID      string `env:"TICKTICK_CLIENT_ID"`
	TickTickClientSecret  string `env:"TICKTICK_CLIENT_SECRET"`
	GoogleClientID        string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret    string `env:"GOOGLE_CLIENT_SECRET"`
	MicrosoftClientID     string `env:"MICROSOFT_CLIENT_ID"`
	MicrosoftClientSecret string `env:"MICROSOFT_CLIENT_SECRET"`
	NiftyClientID         string `env:"NIFTY_CLIENT_ID"`
	NiftyClientSecret     string `env:"NIFTY_CLIENT_SECRET"`
	AworkClientID         string `env:"AWORK_CLIENT_ID"`
	AworkClientSecret     string `env:"AWORK_CLIENT_SECRET"`
	CalendlyClientID      string `env:"CALENDLY_CLIENT_ID"`
	CalendlyClientSecret  string `env:"CALENDLY_CLIENT_SECRET"`
	CalComClientID        string `env:"CALCOM_CLIENT_ID"`
	CalComClientSecret    string `env:"CALCOM_CLIENT_SECRET"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if cfg.AuthEnabled && (cfg.AuthIssuerURL == "" || cfg.AuthClientID == "") {
		return nil, fmt.Errorf("AUTH_ISSUER_URL and AUTH_CLIENT_ID are required when AUTH_ENABLED is true")
	}
	return &cfg, nil
}

// ProviderCredentials returns the configured OAuth app per provider. Providers without a
// client id are left out, their refreshes fail with missing credentials.
func (c *Config) ProviderCredentials() map[models.Provider]oauth.ClientCredentials {
	all := map[models.Provider]oauth.ClientCredentials{
		models.ProviderAsana:             {ClientID: c.AsanaClientID, ClientSecret: c.AsanaClientSecret},
		models.ProviderJira:              {ClientID: c.JiraClientID, ClientSecret: c.JiraClientSecret},
		models.ProviderTickTick:          {ClientID: c.TickTickClientID, ClientSecret: c.TickTickClientSecret},
		models.ProviderGoogleTasks:       {ClientID: c.GoogleClientID, ClientSecret: c.GoogleClientSecret},
		models.ProviderMicrosoftToDo:     {ClientID: c.MicrosoftClientID, ClientSecret: c.MicrosoftClientSecret},
		models.ProviderMicrosoftCalendar: {ClientID: c.MicrosoftClientID, ClientSecret: c.MicrosoftClientSecret},
		models.ProviderNifty:             {ClientID: c.NiftyClientID, ClientSecret: c.NiftyClientSecret},
		models.ProviderAwork:             {ClientID: c.AworkClientID, ClientSecret: c.AworkClientSecret},
		models.ProviderCalendly:          {ClientID: c.CalendlyClientID, ClientSecret: c.CalendlyClientSecret},
		models.ProviderCalCom:            {ClientID: c.CalComClientID, ClientSecret: c.CalComClientSecret},
	}

	creds := make(map[models.Provider]oauth.ClientCredentials, len(all))
	for provider, cred := range all {
		if cred.ClientID != "" {
			creds[provider] = cred
		}
	}
	return creds
}
