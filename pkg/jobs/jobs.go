// Package jobs runs discovery and full-tree imports asynchronously. Jobs are
// dispatched onto a queue, executed with a bounded retry policy, and moved to
// the dead letter queue once the policy is exhausted.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/oak/pkg/importer"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/redis"
	"github.com/Ramsey-B/oak/pkg/tracing"
)

const (
	JobTypeFullTree  = "full_tree_import"
	JobTypeDiscovery = "discovery"
)

// ErrInvalidJob marks a job that can never succeed. It skips the retry policy.
var ErrInvalidJob = errors.New("invalid job")

// ImportJob is the payload of a full-tree import job.
type ImportJob struct {
	SeedIdentifier  string `json:"seed_identifier" validate:"required,numeric,len=11"`
	FamilyTreeID    string `json:"family_tree_id" validate:"required"`
	ActorID         string `json:"actor_id,omitempty"`
	MaxDepth        *int   `json:"max_depth,omitempty" validate:"omitempty,gte=0,lte=5"`
	MaxPeople       *int   `json:"max_people,omitempty" validate:"omitempty,gte=1,lte=1000"`
	MergeDuplicates *bool  `json:"merge_duplicates,omitempty"`
}

// DiscoveryJob is the payload of a single-person discovery job.
type DiscoveryJob struct {
	Identifier      string `json:"identifier" validate:"required,numeric,len=11"`
	FamilyTreeID    string `json:"family_tree_id" validate:"required"`
	ActorID         string `json:"actor_id,omitempty"`
	MergeDuplicates bool   `json:"merge_duplicates,omitempty"`
	Force           bool   `json:"force,omitempty"`
}

// Dispatcher enqueues jobs for asynchronous execution.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobType string, payload any) (string, error)
}

// Runner executes the two run variants. importer.Service implements it.
type Runner interface {
	Import(ctx context.Context, req importer.ImportRequest) (models.Result, error)
	Discover(ctx context.Context, req importer.DiscoveryRequest) (models.Result, error)
}

// RetryPolicy bounds how often a failing job is attempted and how long to
// wait between attempts. The delay doubles on every attempt.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    4 * time.Second,
	}
}

// Delay returns the wait after the given failed attempt, starting at 1.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	return d
}

// Exhausted reports whether a job that has failed attempts times may not run again.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

// NewJobMessage validates payload and wraps it into a queue message.
func NewJobMessage(v *validator.Validate, jobType string, payload any) (*redis.JobMessage, error) {
	switch jobType {
	case JobTypeFullTree, JobTypeDiscovery:
	default:
		return nil, fmt.Errorf("%w: unknown job type %q", ErrInvalidJob, jobType)
	}
	if err := v.Struct(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", jobType, err)
	}
	return &redis.JobMessage{Type: jobType, Payload: data}, nil
}

// Executor decodes a job and hands it to the runner.
type Executor struct {
	runner   Runner
	validate *validator.Validate
	logger   ectologger.Logger
}

func NewExecutor(runner Runner, logger ectologger.Logger) *Executor {
	return &Executor{
		runner:   runner,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Execute runs one job. A run that finalizes as failed is still a completed
// job: the failure is recorded on the run, not retried.
func (e *Executor) Execute(ctx context.Context, job *redis.JobMessage) (models.Result, error) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Executor.Execute")
	defer span.End()

	var (
		result models.Result
		err    error
	)
	switch job.Type {
	case JobTypeFullTree:
		var payload ImportJob
		if err = e.decode(job, &payload); err != nil {
			return models.Result{}, err
		}
		result, err = e.runner.Import(ctx, importer.ImportRequest{
			SeedIdentifier:  payload.SeedIdentifier,
			FamilyTreeID:    payload.FamilyTreeID,
			ActorID:         payload.ActorID,
			MaxDepth:        payload.MaxDepth,
			MaxPeople:       payload.MaxPeople,
			MergeDuplicates: payload.MergeDuplicates,
		})
	case JobTypeDiscovery:
		var payload DiscoveryJob
		if err = e.decode(job, &payload); err != nil {
			return models.Result{}, err
		}
		result, err = e.runner.Discover(ctx, importer.DiscoveryRequest{
			Identifier:   payload.Identifier,
			FamilyTreeID: payload.FamilyTreeID,
			ActorID:      payload.ActorID,
			Options: importer.DiscoveryOptions{
				MergeDuplicates: payload.MergeDuplicates,
				Force:           payload.Force,
			},
		})
	default:
		return models.Result{}, fmt.Errorf("%w: unknown job type %q", ErrInvalidJob, job.Type)
	}

	if err != nil {
		tracing.RecordError(ctx, err)
		return models.Result{}, err
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"job_id": job.ID,
		"run_id": result.RunID,
		"status": result.Status,
	}).Infof("Job %s finished", job.Type)
	return result, nil
}

func (e *Executor) decode(job *redis.JobMessage, dst any) error {
	if err := json.Unmarshal(job.Payload, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	if err := e.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	return nil
}
