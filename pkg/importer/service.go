// Package importer persists what the aggregator finds: single-person discovery
// and the breadth-first full-tree import share one resolver and one edge writer.
package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/oak/pkg/aggregator"
	appctx "github.com/Ramsey-B/oak/pkg/context"
	"github.com/Ramsey-B/oak/pkg/errors"
	"github.com/Ramsey-B/oak/pkg/lookup"
	"github.com/Ramsey-B/oak/pkg/metrics"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/relationships"
)

const (
	DefaultMaxDepth        = 3
	MaxDepthLimit          = 5
	DefaultMaxPeople       = 500
	MaxPeopleLimit         = 1000
	DefaultBatchSize       = 10
	DefaultConcurrency     = 4
	DefaultCheckpointEvery = 10
	DefaultMaxDuration     = 30 * time.Minute
	DefaultDiscoveryWindow = 24 * time.Hour
)

type Config struct {
	BatchSize       int
	Concurrency     int
	CheckpointEvery int
	// MaxDuration bounds a full-tree crawl. Zero disables the bound.
	MaxDuration     time.Duration
	DiscoveryWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:       DefaultBatchSize,
		Concurrency:     DefaultConcurrency,
		CheckpointEvery: DefaultCheckpointEvery,
		MaxDuration:     DefaultMaxDuration,
		DiscoveryWindow: DefaultDiscoveryWindow,
	}
}

// Dependencies are the collaborators of the Service. Events, Graph and Warmup
// are optional.
type Dependencies struct {
	People        PersonStore
	Relationships RelationshipStore
	Runs          RunStore
	Lookup        lookup.Lookup
	Aggregator    *aggregator.Aggregator
	Inferrer      *relationships.Inferrer
	Events        EventSink
	Graph         GraphProjector
	Warmup        WarmupQueue
}

type Service struct {
	deps     Dependencies
	cfg      Config
	validate *validator.Validate
	logger   ectologger.Logger
}

func NewService(deps Dependencies, cfg Config, logger ectologger.Logger) *Service {
	defaults := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = defaults.CheckpointEvery
	}
	if cfg.DiscoveryWindow <= 0 {
		cfg.DiscoveryWindow = defaults.DiscoveryWindow
	}
	if deps.Inferrer == nil {
		deps.Inferrer = relationships.NewInferrer(relationships.Options{})
	}
	if deps.Events == nil {
		deps.Events = noopEvents{}
	}

	return &Service{
		deps:     deps,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

type DiscoveryOptions struct {
	MergeDuplicates bool `json:"merge_duplicates"`
	// Force runs the discovery even when an identical one recently succeeded.
	Force bool `json:"force"`
}

type DiscoveryRequest struct {
	Identifier   string           `json:"identifier" validate:"required"`
	FamilyTreeID string           `json:"family_tree_id" validate:"required"`
	ActorID      string           `json:"actor_id"`
	Options      DiscoveryOptions `json:"options"`
}

type ImportRequest struct {
	SeedIdentifier string `json:"seed_identifier" validate:"required"`
	FamilyTreeID   string `json:"family_tree_id" validate:"required"`
	ActorID        string `json:"actor_id"`
	// MaxDepth and MaxPeople fall back to the defaults when nil. A MaxDepth
	// of 0 imports the seed alone.
	MaxDepth  *int `json:"max_depth,omitempty" validate:"omitempty,gte=0,lte=5"`
	MaxPeople *int `json:"max_people,omitempty" validate:"omitempty,gte=1,lte=1000"`
	// MergeDuplicates defaults to true when unset.
	MergeDuplicates *bool `json:"merge_duplicates,omitempty"`
}

func (r ImportRequest) depth() int {
	if r.MaxDepth == nil {
		return DefaultMaxDepth
	}
	return *r.MaxDepth
}

func (r ImportRequest) people() int {
	if r.MaxPeople == nil {
		return DefaultMaxPeople
	}
	return *r.MaxPeople
}

func (r ImportRequest) merge() bool {
	return r.MergeDuplicates == nil || *r.MergeDuplicates
}

// validateRequest converts validator failures into an InvalidInput error.
func (s *Service) validateRequest(req any) error {
	if err := s.validate.Struct(req); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return errors.NewInvalidInput(fe.Field(), fmt.Sprint(fe.Value()), "failed %s validation", fe.Tag())
		}
		return errors.NewInvalidInput("", "", "%s", err.Error())
	}
	return nil
}

// start creates the run record and marks it processing.
func (s *Service) start(ctx context.Context, run *models.ImportRun) (*models.ImportRun, error) {
	created, err := s.deps.Runs.CreateRun(ctx, run)
	if err != nil {
		return nil, errors.NewPersistence("create run", err)
	}
	if err := s.deps.Runs.MarkProcessing(ctx, created.ID); err != nil {
		return nil, errors.NewPersistence("mark run processing", err)
	}
	created.Status = models.RunStatusProcessing
	return created, nil
}

// execute runs body against a started run and finalizes it exactly once. A
// panic or an error returned by body marks the run failed.
func (s *Service) execute(ctx context.Context, st *runState, body func(ctx context.Context) error) (result models.Result) {
	ctx = appctx.SetRunID(ctx, st.run.ID)
	ctx = appctx.SetFamilyTreeID(ctx, st.run.FamilyTreeID)
	if st.run.ActorID != "" {
		ctx = appctx.SetActorID(ctx, st.run.ActorID)
	}
	log := s.logger.WithContext(ctx).WithFields(appctx.LogFields(ctx))
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Run panicked: %v", r)
			result = s.finalize(ctx, st, started, fmt.Sprintf("panic: %v", r))
		}
	}()

	log.WithField("seed", st.run.SeedIdentifier).Infof("Starting %s run", st.run.Kind)
	if err := body(ctx); err != nil {
		log.WithError(err).Errorf("%s run aborted", st.run.Kind)
		return s.finalize(ctx, st, started, errors.Message(err))
	}
	return s.finalize(ctx, st, started, "")
}

// finalize writes the terminal status. failure forces the failed status.
func (s *Service) finalize(ctx context.Context, st *runState, started time.Time, failure string) models.Result {
	summary := st.summary()
	if !st.markFinalized() {
		return st.result(summary)
	}

	// the run's own context may already be cancelled
	dbCtx := context.WithoutCancel(ctx)
	log := s.logger.WithContext(ctx).WithFields(appctx.LogFields(ctx))

	var err error
	if failure != "" {
		summary.Status = models.RunStatusFailed
		err = s.deps.Runs.MarkFailed(dbCtx, st.run.ID, failure, summary)
	} else {
		err = s.deps.Runs.MarkCompleted(dbCtx, st.run.ID, summary)
	}
	if err != nil {
		log.WithError(err).Error("Failed to finalize run")
	}

	st.run.Status = summary.Status
	st.run.Counters = summary.Counters
	st.run.Errors = summary.Errors
	st.run.PersonID = summary.PersonID
	st.run.FailureMessage = failure

	metrics.RecordRun(string(st.run.Kind), string(summary.Status), time.Since(started).Seconds())
	s.deps.Events.RunCompleted(dbCtx, st.run)

	log.WithFields(map[string]any{
		"status":                summary.Status,
		"persons_created":       summary.Counters.PersonsCreated,
		"persons_updated":       summary.Counters.PersonsUpdated,
		"relationships_created": summary.Counters.RelationshipsCreated,
		"duplicates_found":      summary.Counters.DuplicatesFound,
		"errors":                len(summary.Errors),
	}).Infof("Finished %s run", st.run.Kind)

	return st.result(summary)
}

// checkpoint writes the current counters. A failed checkpoint is only logged.
func (s *Service) checkpoint(ctx context.Context, st *runState) {
	counters, errs := st.snapshot()
	if err := s.deps.Runs.UpdateProgress(context.WithoutCancel(ctx), st.run.ID, counters, errs); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to checkpoint run progress")
	}
}

type noopEvents struct{}

func (noopEvents) PersonWritten(context.Context, *models.Person, bool) {}

func (noopEvents) RelationshipCreated(context.Context, models.RelationshipEdge) {}

func (noopEvents) RunCompleted(context.Context, *models.ImportRun) {}
