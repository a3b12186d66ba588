package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string `env:"APP_NAME" env-default:"oak"`
	Version                       string `env:"APP_VERSION" env-default:"dev"`
	Port                          int    `env:"PORT" env-default:"3000"`
	LogLevel                      string `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool   `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int    `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int    `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int    `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	ReadHeaderTimeoutSeconds      int    `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	StartupMaxAttempts            int    `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:"localhost"`
	// Database port
	DatabasePort string `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:"postgres"`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName string `env:"DB_NAME" env-default:"oak"`
	// Database SSL Mode
	DatabaseSSLMode         string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	// Database Migration Version, 0 migrates to the latest
	DatabaseMigrationVersion int `env:"DB_MIGRATION_VERSION" env-default:"0"`
	// Database Migration Force, 0 disables forcing
	DatabaseMigrationForce        int  `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis host, empty keeps the cache, locks and rate limit in process
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" env-default:"oak:"`

	// Kafka brokers (comma-separated), empty disables domain events
	KafkaBrokers     string `env:"KAFKA_BROKERS" env-default:""`
	KafkaEventsTopic string `env:"KAFKA_EVENTS_TOPIC" env-default:"oak.events"`
	EventsBufferSize int    `env:"EVENTS_BUFFER_SIZE" env-default:"1024"`

	// Graph host, empty disables graph projection
	GraphHost     string `env:"GRAPH_HOST" env-default:""`
	GraphPort     int    `env:"GRAPH_PORT" env-default:"7687"`
	GraphUsername string `env:"GRAPH_USERNAME" env-default:""`
	GraphPassword string `env:"GRAPH_PASSWORD" env-default:""`

	// Enable OTLP tracing export
	OTLPEnabled  bool   `env:"OTLP_ENABLED" env-default:"false"`
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure bool   `env:"OTLP_INSECURE" env-default:"true"`

	// Registry lookup service
	LookupBaseURL           string        `env:"LOOKUP_BASE_URL" env-default:"http://localhost:8080"`
	LookupToken             string        `env:"LOOKUP_TOKEN" env-default:""`
	LookupTokenHeader       string        `env:"LOOKUP_TOKEN_HEADER" env-default:"Authorization"`
	LookupTimeout           time.Duration `env:"LOOKUP_TIMEOUT" env-default:"30s"`
	LookupMaxRetries        int           `env:"LOOKUP_MAX_RETRIES" env-default:"3"`
	LookupRetryDelay        time.Duration `env:"LOOKUP_RETRY_DELAY" env-default:"2s"`
	LookupRequestsPerMinute int           `env:"LOOKUP_REQUESTS_PER_MINUTE" env-default:"60"`

	// Lookup cache
	CacheIdentifierTTL time.Duration `env:"CACHE_IDENTIFIER_TTL" env-default:"168h"`
	CacheSearchTTL     time.Duration `env:"CACHE_SEARCH_TTL" env-default:"24h"`
	CacheLockTTL       time.Duration `env:"CACHE_LOCK_TTL" env-default:"30s"`
	CacheWarmInterval  time.Duration `env:"CACHE_WARM_INTERVAL" env-default:"1m"`

	// Import budgets
	ImportMaxDepth        int           `env:"IMPORT_MAX_DEPTH" env-default:"3"`
	ImportMaxPeople       int           `env:"IMPORT_MAX_PEOPLE" env-default:"500"`
	ImportBatchSize       int           `env:"IMPORT_BATCH_SIZE" env-default:"10"`
	ImportConcurrency     int           `env:"IMPORT_CONCURRENCY" env-default:"4"`
	ImportCheckpointEvery int           `env:"IMPORT_CHECKPOINT_EVERY" env-default:"10"`
	ImportMaxDuration     time.Duration `env:"IMPORT_MAX_DURATION" env-default:"30m"`
	DiscoveryWindow       time.Duration `env:"DISCOVERY_WINDOW" env-default:"24h"`
	MinConfidence         int           `env:"MIN_CONFIDENCE" env-default:"70"`
	MaxExpansion          int           `env:"MAX_EXPANSION" env-default:"3"`
	// Resolve unknown relation codes to cousin instead of skipping them
	LegacyCousinFallback bool `env:"LEGACY_COUSIN_FALLBACK" env-default:"false"`

	// Redis Streams job queue
	RedisStreamsJobQueue      string `env:"REDIS_STREAMS_JOB_QUEUE" env-default:"oak:jobs"`
	RedisStreamsConsumerGroup string `env:"REDIS_STREAMS_CONSUMER_GROUP" env-default:"oak-workers"`
	// Consumer name (defaults to hostname if empty)
	RedisStreamsConsumerName string        `env:"REDIS_STREAMS_CONSUMER_NAME" env-default:""`
	JobWorkerCount           int           `env:"JOB_WORKER_COUNT" env-default:"2"`
	JobMaxAttempts           int           `env:"JOB_MAX_ATTEMPTS" env-default:"3"`
	JobBaseDelay             time.Duration `env:"JOB_BASE_DELAY" env-default:"1s"`
	JobMaxDelay              time.Duration `env:"JOB_MAX_DELAY" env-default:"4s"`
}

// Load reads an optional .env file and then the environment. Variables that
// are already set win over the file.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return cfg, nil
}
