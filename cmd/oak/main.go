// Command oak runs the genealogy enrichment service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/oak/config"
	"github.com/Ramsey-B/oak/pkg/cache"
	appctx "github.com/Ramsey-B/oak/pkg/context"
	"github.com/Ramsey-B/oak/pkg/importer"
	"github.com/Ramsey-B/oak/pkg/jobs"
	"github.com/Ramsey-B/oak/pkg/middleware"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/redis"
	"github.com/Ramsey-B/oak/pkg/routes/health"
	"github.com/Ramsey-B/oak/pkg/routes/runs"
	"github.com/Ramsey-B/oak/pkg/startup"
	"github.com/Ramsey-B/oak/pkg/tracing"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "oak",
		Short:        "Genealogy enrichment service",
		Long:         "Discovers persons in the external registry and persists them and their relatives as a family tree.",
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API, the job processor and the cache warmer",
			RunE:  runServe,
		},
		newImportCmd(),
		newDiscoverCmd(),
	)
	return root
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, shutdown, err := boot(cmd.Context())
	if err != nil {
		return err
	}
	defer shutdown()
	return a.serve(cmd.Context())
}

func newImportCmd() *cobra.Command {
	var (
		req              importer.ImportRequest
		depth, maxPeople int
		merge            bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import the family tree around a seed identifier",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, shutdown, err := boot(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdown()

			if !cmd.Flags().Changed("depth") {
				depth = a.cfg.ImportMaxDepth
			}
			if !cmd.Flags().Changed("max") {
				maxPeople = a.cfg.ImportMaxPeople
			}
			req.MaxDepth = &depth
			req.MaxPeople = &maxPeople
			req.MergeDuplicates = &merge

			ctx := appctx.SetActorID(appctx.SetFamilyTreeID(cmd.Context(), req.FamilyTreeID), req.ActorID)
			result, err := a.importer.Import(ctx, req)
			return printResult(cmd, result, err)
		},
	}
	cmd.Flags().StringVar(&req.SeedIdentifier, "cpf", "", "seed identifier")
	cmd.Flags().StringVar(&req.FamilyTreeID, "tree", "", "family tree id")
	cmd.Flags().StringVar(&req.ActorID, "actor", "", "actor recorded on the run")
	cmd.Flags().IntVar(&depth, "depth", 0, "maximum generations to expand (default IMPORT_MAX_DEPTH)")
	cmd.Flags().IntVar(&maxPeople, "max", 0, "maximum persons to process (default IMPORT_MAX_PEOPLE)")
	cmd.Flags().BoolVar(&merge, "merge", true, "merge near-identical persons")
	_ = cmd.MarkFlagRequired("cpf")
	_ = cmd.MarkFlagRequired("tree")
	return cmd
}

func newDiscoverCmd() *cobra.Command {
	var req importer.DiscoveryRequest
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover a single person and their direct relatives",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, shutdown, err := boot(cmd.Context())
			if err != nil {
				return err
			}
			defer shutdown()

			ctx := appctx.SetActorID(appctx.SetFamilyTreeID(cmd.Context(), req.FamilyTreeID), req.ActorID)
			result, err := a.importer.Discover(ctx, req)
			return printResult(cmd, result, err)
		},
	}
	cmd.Flags().StringVar(&req.Identifier, "cpf", "", "identifier to discover")
	cmd.Flags().StringVar(&req.FamilyTreeID, "tree", "", "family tree id")
	cmd.Flags().StringVar(&req.ActorID, "actor", "", "actor recorded on the run")
	cmd.Flags().BoolVar(&req.Options.MergeDuplicates, "merge", false, "merge near-identical persons")
	cmd.Flags().BoolVar(&req.Options.Force, "force", false, "run even if an identical discovery recently succeeded")
	_ = cmd.MarkFlagRequired("cpf")
	_ = cmd.MarkFlagRequired("tree")
	return cmd
}

func printResult(cmd *cobra.Command, result models.Result, err error) error {
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if result.Status == models.RunStatusFailed {
		return errors.New("run failed")
	}
	return nil
}

// boot loads the configuration, starts the infrastructure and wires the
// services. The returned function stops everything in reverse order.
func boot(ctx context.Context) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger, syncLogs, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName: cfg.AppName,
		Version:     cfg.Version,
		Enabled:     cfg.OTLPEnabled,
		Endpoint:    cfg.OTLPEndpoint,
		Protocol:    cfg.OTLPProtocol,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		syncLogs()
		return nil, nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	s := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	a.dependencies(s)

	shutdown := func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Stop(sctx); err != nil {
			logger.WithError(err).Error("Shutdown finished with errors")
		}
		if err := shutdownTracing(sctx); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
		syncLogs()
	}

	if err := s.Start(ctx); err != nil {
		shutdown()
		return nil, nil, err
	}
	a.build()
	return a, shutdown, nil
}

// serve runs the HTTP server, the job consumer and the cache warmer until ctx
// is cancelled. Without Redis jobs are queued in process.
func (a *app) serve(ctx context.Context) error {
	executor := jobs.NewExecutor(a.importer, a.logger)

	var (
		dispatcher jobs.Dispatcher
		processor  *jobs.Processor
		memory     *jobs.MemoryDispatcher
	)
	if a.redis != nil {
		streams := redis.NewStreams(a.redis)
		dlq := redis.NewDeadLetterQueue(a.redis, a.cfg.RedisStreamsJobQueue+":dlq", a.logger)
		processor = jobs.NewProcessor(streams, dlq, executor, jobs.ProcessorConfig{
			Stream:        a.cfg.RedisStreamsJobQueue,
			ConsumerGroup: a.cfg.RedisStreamsConsumerGroup,
			ConsumerName:  consumerName(a.cfg),
			WorkerCount:   a.cfg.JobWorkerCount,
			Retry:         a.retryPolicy(),
		}, a.logger)
		dispatcher = jobs.NewStreamDispatcher(streams, a.cfg.RedisStreamsJobQueue)
	} else {
		a.logger.Warn("Redis is not configured, jobs are queued in process")
		memory = jobs.NewMemoryDispatcher(executor, a.retryPolicy(), a.logger)
		dispatcher = memory
	}

	checker := health.NewChecker(a.cfg.Version)
	checker.Register("database", true, a.db.PingContext)
	if a.redis != nil {
		checker.Register("redis", true, a.redis.Ping)
	}
	if a.graph != nil {
		checker.Register("graph", false, a.graph.VerifyConnectivity)
	}
	if processor != nil {
		checker.Register("jobs", false, func(context.Context) error {
			if !processor.IsRunning() {
				return errors.New("job processor is not running")
			}
			return nil
		})
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(a.logger)
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))
	checker.RegisterRoutes(e)
	runs.NewHandler(dispatcher, a.runs, a.logger).Register(e.Group("/api/v1"))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(a.cfg.ReadHeaderTimeoutSeconds) * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	if processor != nil {
		if err := processor.Start(ctx); err != nil {
			return err
		}
	}
	if memory != nil {
		g.Go(func() error { return drainLoop(ctx, memory) })
	}

	warmer := cache.NewWarmer(a.store, a.cached, a.cfg.CacheWarmInterval, a.logger)
	g.Go(func() error { return warmer.Run(ctx) })

	g.Go(func() error {
		a.logger.Infof("Listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if processor != nil {
			if err := processor.Stop(sctx); err != nil {
				a.logger.WithError(err).Error("Job processor did not stop cleanly")
			}
		}
		return server.Shutdown(sctx)
	})

	checker.SetReady(true)
	return g.Wait()
}

func drainLoop(ctx context.Context, d *jobs.MemoryDispatcher) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.Drain(ctx); err != nil && ctx.Err() == nil {
				return err
			}
		}
	}
}
