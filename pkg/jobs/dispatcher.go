package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	apperrors "github.com/Ramsey-B/oak/pkg/errors"
	"github.com/Ramsey-B/oak/pkg/metrics"
	"github.com/Ramsey-B/oak/pkg/redis"
	"github.com/Ramsey-B/oak/pkg/tracing"
)

// Permanent reports whether err can never be fixed by retrying the job.
func Permanent(err error) bool {
	return errors.Is(err, ErrInvalidJob) || errors.Is(err, apperrors.ErrInvalidInput)
}

// StreamDispatcher publishes jobs onto a Redis Stream consumed by a Processor.
type StreamDispatcher struct {
	streams  *redis.Streams
	stream   string
	validate *validator.Validate
}

func NewStreamDispatcher(streams *redis.Streams, stream string) *StreamDispatcher {
	return &StreamDispatcher{
		streams:  streams,
		stream:   stream,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (d *StreamDispatcher) Dispatch(ctx context.Context, jobType string, payload any) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "jobs.StreamDispatcher.Dispatch")
	defer span.End()

	msg, err := NewJobMessage(d.validate, jobType, payload)
	if err != nil {
		return "", err
	}
	if _, err := d.streams.Publish(ctx, d.stream, msg); err != nil {
		tracing.RecordError(ctx, err)
		return "", err
	}
	return msg.ID, nil
}

// MemoryDispatcher queues jobs in process and runs them on Drain with the same
// retry policy as the stream processor. Exhausted jobs land in Dead.
type MemoryDispatcher struct {
	executor *Executor
	policy   RetryPolicy
	validate *validator.Validate
	logger   ectologger.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	queue []*redis.JobMessage
	dead  []redis.DLQEntry
}

func NewMemoryDispatcher(executor *Executor, policy RetryPolicy, logger ectologger.Logger) *MemoryDispatcher {
	return &MemoryDispatcher{
		executor: executor,
		policy:   policy,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		sleep:    sleepContext,
	}
}

func (d *MemoryDispatcher) Dispatch(ctx context.Context, jobType string, payload any) (string, error) {
	msg, err := NewJobMessage(d.validate, jobType, payload)
	if err != nil {
		return "", err
	}
	msg.ID = uuid.New().String()
	msg.CreatedAt = time.Now().UTC()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, msg)
	return msg.ID, nil
}

// Drain runs every queued job to completion or to the dead letter list.
func (d *MemoryDispatcher) Drain(ctx context.Context) error {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.mu.Unlock()
			return nil
		}
		job := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		if err := d.run(ctx, job); err != nil {
			return err
		}
	}
}

func (d *MemoryDispatcher) run(ctx context.Context, job *redis.JobMessage) error {
	for {
		_, err := d.executor.Execute(ctx, job)
		if err == nil {
			metrics.RecordQueueJob("success")
			return nil
		}

		job.Attempts++
		job.LastError = err.Error()
		if Permanent(err) || d.policy.Exhausted(job.Attempts) {
			d.logger.WithContext(ctx).WithError(err).Warnf("Job %s moved to the dead letter queue after %d attempts", job.ID, job.Attempts)
			d.mu.Lock()
			d.dead = append(d.dead, redis.DLQEntry{
				ID:           uuid.New().String(),
				SourceStream: "memory",
				OriginalJob:  job,
				ErrorMessage: err.Error(),
				RetryCount:   job.Attempts,
				CreatedAt:    time.Now().UTC(),
			})
			d.mu.Unlock()
			metrics.RecordQueueJob("dead_lettered")
			metrics.RecordDLQJob(job.Type)
			return nil
		}

		metrics.RecordQueueJob("retry")
		if err := d.sleep(ctx, d.policy.Delay(job.Attempts)); err != nil {
			return err
		}
	}
}

// Dead returns the jobs that exhausted the retry policy.
func (d *MemoryDispatcher) Dead() []redis.DLQEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]redis.DLQEntry(nil), d.dead...)
}

// Pending returns the number of queued jobs.
func (d *MemoryDispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
