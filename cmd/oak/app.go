package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"

	"github.com/Ramsey-B/oak/config"
	"github.com/Ramsey-B/oak/internal/repositories/importrun"
	"github.com/Ramsey-B/oak/internal/repositories/person"
	"github.com/Ramsey-B/oak/internal/repositories/relationship"
	"github.com/Ramsey-B/oak/pkg/aggregator"
	"github.com/Ramsey-B/oak/pkg/cache"
	"github.com/Ramsey-B/oak/pkg/database"
	"github.com/Ramsey-B/oak/pkg/events"
	"github.com/Ramsey-B/oak/pkg/graph"
	"github.com/Ramsey-B/oak/pkg/importer"
	"github.com/Ramsey-B/oak/pkg/jobs"
	"github.com/Ramsey-B/oak/pkg/kafka"
	"github.com/Ramsey-B/oak/pkg/lookup"
	"github.com/Ramsey-B/oak/pkg/mapper"
	"github.com/Ramsey-B/oak/pkg/redis"
	"github.com/Ramsey-B/oak/pkg/relationships"
	"github.com/Ramsey-B/oak/pkg/startup"
)

// app holds every long-lived collaborator. Optional ones stay nil when their
// host is not configured.
type app struct {
	cfg    config.Config
	logger ectologger.Logger

	db       database.DB
	redis    *redis.Client
	producer *kafka.Producer
	graph    *graph.Client

	store    cache.Store
	cached   *cache.CachedLookup
	emitter  *events.Emitter
	runs     *importrun.Repository
	importer *importer.Service
}

func newLogger(cfg config.Config) (ectologger.Logger, func(), error) {
	var (
		zapLogger *zap.Logger
		err       error
	)
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zcfg := zap.NewProductionConfig()
		if lvl, perr := zap.ParseAtomicLevel(cfg.LogLevel); perr == nil {
			zcfg.Level = lvl
		}
		zapLogger, err = zcfg.Build()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil), func() { _ = zapLogger.Sync() }, nil
}

// dependencies registers the infrastructure with the startup graph. Kafka and
// the graph database are optional; Redis falls back to in-process state.
func (a *app) dependencies(s *startup.Startup) {
	s.AddDependency(startup.Func{
		Name: "database",
		StartFunc: func(ctx context.Context) error {
			db, err := database.Connect(ctx, database.Config{
				Host:            a.cfg.DatabaseHost,
				Port:            a.cfg.DatabasePort,
				User:            a.cfg.DatabaseUserName,
				Password:        a.cfg.DatabasePassword,
				Name:            a.cfg.DatabaseName,
				SSLMode:         a.cfg.DatabaseSSLMode,
				MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
				MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
				ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
			}, a.logger)
			if err != nil {
				return err
			}
			a.db = db
			return nil
		},
		StopFunc: func(context.Context) error {
			if a.db == nil {
				return nil
			}
			return a.db.Close()
		},
	})

	s.AddDependency(startup.Func{
		Name:     "migrations",
		Requires: []string{"database"},
		StartFunc: func(context.Context) error {
			instance, ok := a.db.(*database.DatabaseInstance)
			if !ok {
				return fmt.Errorf("unexpected database type %T", a.db)
			}
			ms := database.NewMigrationService(a.logger, &database.MigrationConfig{
				MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
				Version:             uint(a.cfg.DatabaseMigrationVersion),
				Force:               a.cfg.DatabaseMigrationForce,
				AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
			})
			return ms.MigratePostgres(instance.DB.DB, a.cfg.DatabaseName)
		},
	})

	if a.cfg.RedisHost != "" {
		s.AddDependency(startup.Func{
			Name: "redis",
			StartFunc: func(ctx context.Context) error {
				client, err := redis.NewClient(ctx, redis.Config{
					Host:     a.cfg.RedisHost,
					Port:     a.cfg.RedisPort,
					Password: a.cfg.RedisPassword,
					DB:       a.cfg.RedisDB,
				}, a.logger)
				if err != nil {
					return err
				}
				a.redis = client
				return nil
			},
			StopFunc: func(context.Context) error {
				if a.redis == nil {
					return nil
				}
				return a.redis.Close()
			},
		})
	}

	if a.cfg.KafkaBrokers != "" {
		s.AddDependency(startup.Func{
			Name: "kafka",
			StartFunc: func(context.Context) error {
				a.producer = kafka.NewProducer(kafka.ParseConfig(a.cfg.KafkaBrokers, a.cfg.KafkaEventsTopic), a.logger)
				return nil
			},
			StopFunc: func(ctx context.Context) error {
				if a.emitter != nil {
					if err := a.emitter.Close(ctx); err != nil {
						a.logger.WithError(err).Warn("Events were still buffered at shutdown")
					}
				}
				if a.producer == nil {
					return nil
				}
				return a.producer.Close()
			},
		})
	}

	if a.cfg.GraphHost != "" {
		s.AddDependency(startup.Func{
			Name: "graph",
			StartFunc: func(ctx context.Context) error {
				client, err := graph.NewClient(graph.Config{
					Host:     a.cfg.GraphHost,
					Port:     a.cfg.GraphPort,
					Username: a.cfg.GraphUsername,
					Password: a.cfg.GraphPassword,
				}, a.logger)
				if err != nil {
					return err
				}
				if err := client.VerifyConnectivity(ctx); err != nil {
					_ = client.Close(ctx)
					return err
				}
				a.graph = client
				return nil
			},
			StopFunc: func(ctx context.Context) error {
				if a.graph == nil {
					return nil
				}
				return a.graph.Close(ctx)
			},
		})
	}
}

// build wires the domain services once the infrastructure is up.
func (a *app) build() {
	var limiter lookup.RateLimiter = lookup.NewWindowLimiter(a.cfg.LookupRequestsPerMinute, time.Minute)
	if a.redis != nil {
		limiter = lookup.NewRedisLimiter(redis.NewRateLimiter(a.redis, a.cfg.RedisPrefix+"ratelimit:"), "lookup", a.cfg.LookupRequestsPerMinute, time.Minute)
		a.store = cache.NewRedisStore(a.redis, a.cfg.RedisPrefix+"cache:")
	} else {
		a.store = cache.NewMemoryStore()
	}

	client := lookup.NewClient(lookup.Config{
		BaseURL:     a.cfg.LookupBaseURL,
		Token:       a.cfg.LookupToken,
		TokenHeader: a.cfg.LookupTokenHeader,
		Timeout:     a.cfg.LookupTimeout,
		MaxRetries:  a.cfg.LookupMaxRetries,
		RetryDelay:  a.cfg.LookupRetryDelay,
	}, limiter, a.logger)

	a.cached = cache.NewCachedLookup(client, a.store, cache.TTLs{
		Identifier: a.cfg.CacheIdentifierTTL,
		Search:     a.cfg.CacheSearchTTL,
		Lock:       a.cfg.CacheLockTTL,
	}, a.logger)

	inferrer := relationships.NewInferrer(relationships.Options{LegacyCousinFallback: a.cfg.LegacyCousinFallback})
	agg := aggregator.New(a.cached, mapper.NewDefault(), inferrer, aggregator.Options{
		MaxExpansion:           a.cfg.MaxExpansion,
		MinDiscoveryConfidence: a.cfg.MinConfidence,
	}, a.logger)

	a.runs = importrun.NewRepository(a.db, a.logger)
	deps := importer.Dependencies{
		People:        person.NewRepository(a.db, a.logger),
		Relationships: relationship.NewRepository(a.db, a.logger),
		Runs:          a.runs,
		Lookup:        a.cached,
		Aggregator:    agg,
		Inferrer:      inferrer,
		Warmup:        a.store,
	}
	if a.producer != nil {
		a.emitter = events.NewEmitter(a.producer, a.cfg.EventsBufferSize, a.logger)
		deps.Events = a.emitter
	}
	if a.graph != nil {
		deps.Graph = graph.NewProjector(a.graph, a.logger)
	}

	a.importer = importer.NewService(deps, importer.Config{
		BatchSize:       a.cfg.ImportBatchSize,
		Concurrency:     a.cfg.ImportConcurrency,
		CheckpointEvery: a.cfg.ImportCheckpointEvery,
		MaxDuration:     a.cfg.ImportMaxDuration,
		DiscoveryWindow: a.cfg.DiscoveryWindow,
	}, a.logger)
}

func (a *app) retryPolicy() jobs.RetryPolicy {
	return jobs.RetryPolicy{
		MaxAttempts: a.cfg.JobMaxAttempts,
		BaseDelay:   a.cfg.JobBaseDelay,
		MaxDelay:    a.cfg.JobMaxDelay,
	}
}

func consumerName(cfg config.Config) string {
	if cfg.RedisStreamsConsumerName != "" {
		return cfg.RedisStreamsConsumerName
	}
	hostname, _ := os.Hostname()
	return hostname
}
