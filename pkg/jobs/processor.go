package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	appctx "github.com/Ramsey-B/oak/pkg/context"
	"github.com/Ramsey-B/oak/pkg/metrics"
	"github.com/Ramsey-B/oak/pkg/redis"
	"github.com/Ramsey-B/oak/pkg/tracing"
)

const (
	// DefaultBatchSize is the default number of messages to consume at once
	DefaultBatchSize = 10

	// DefaultBlockTimeout is how long to block waiting for messages
	DefaultBlockTimeout = 5 * time.Second

	// DefaultClaimInterval is how often to claim stale pending messages
	DefaultClaimInterval = 30 * time.Second

	// DefaultClaimMinIdle is the minimum idle time before claiming a message
	DefaultClaimMinIdle = 60 * time.Second
)

// ProcessorConfig holds configuration for the job processor. ConsumerName
// must be unique per instance.
type ProcessorConfig struct {
	Stream        string
	ConsumerGroup string
	ConsumerName  string
	BatchSize     int64
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	ClaimMinIdle  time.Duration
	WorkerCount   int
	Retry         RetryPolicy
}

// DefaultProcessorConfig returns the default processor configuration
func DefaultProcessorConfig() ProcessorConfig {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = uuid.New().String()[:8]
	}

	return ProcessorConfig{
		Stream:        "oak:jobs",
		ConsumerGroup: "oak-workers",
		ConsumerName:  hostname,
		BatchSize:     DefaultBatchSize,
		BlockTimeout:  DefaultBlockTimeout,
		ClaimInterval: DefaultClaimInterval,
		ClaimMinIdle:  DefaultClaimMinIdle,
		WorkerCount:   1,
		Retry:         DefaultRetryPolicy(),
	}
}

// Processor consumes jobs from a Redis Stream. A failed job is published again
// with its attempt count raised after the policy delay; an exhausted or
// invalid job goes to the dead letter queue. Messages left pending by a
// crashed consumer are claimed after ClaimMinIdle.
type Processor struct {
	streams  *redis.Streams
	dlq      *redis.DeadLetterQueue
	executor *Executor
	config   ProcessorConfig
	logger   ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	jobsCh   chan redis.StreamMessage

	running bool
	mu      sync.RWMutex
}

func NewProcessor(streams *redis.Streams, dlq *redis.DeadLetterQueue, executor *Executor, config ProcessorConfig, logger ectologger.Logger) *Processor {
	defaults := DefaultProcessorConfig()
	if config.Stream == "" {
		config.Stream = defaults.Stream
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = defaults.ConsumerGroup
	}
	if config.ConsumerName == "" {
		config.ConsumerName = defaults.ConsumerName
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.BlockTimeout <= 0 {
		config.BlockTimeout = DefaultBlockTimeout
	}
	if config.ClaimInterval <= 0 {
		config.ClaimInterval = DefaultClaimInterval
	}
	if config.ClaimMinIdle <= 0 {
		config.ClaimMinIdle = DefaultClaimMinIdle
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = defaults.Retry
	}

	return &Processor{
		streams:  streams,
		dlq:      dlq,
		executor: executor,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
		jobsCh:   make(chan redis.StreamMessage, config.BatchSize*2),
	}
}

func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("processor already running")
	}
	p.running = true
	p.mu.Unlock()

	ctx, span := tracing.StartSpan(ctx, "jobs.Processor.Start")
	defer span.End()

	p.logger.WithContext(ctx).Infof("Starting job processor: stream=%s group=%s consumer=%s workers=%d",
		p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, p.config.WorkerCount)

	if err := p.streams.CreateConsumerGroup(ctx, p.config.Stream, p.config.ConsumerGroup); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to create consumer group")
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	var workers sync.WaitGroup
	for i := 0; i < p.config.WorkerCount; i++ {
		workers.Add(1)
		go p.worker(ctx, &workers, i)
	}

	// The producers must be done before jobsCh is closed.
	var producers sync.WaitGroup
	producers.Add(2)
	go p.consumeLoop(ctx, &producers)
	go p.claimLoop(ctx, &producers)

	go func() {
		<-p.stopCh
		producers.Wait()
		close(p.jobsCh)
		workers.Wait()
		close(p.stoppedC)
	}()

	p.logger.WithContext(ctx).Info("Job processor started")
	return nil
}

// Stop stops the processor gracefully
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.WithContext(ctx).Info("Stopping job processor...")
	close(p.stopCh)

	select {
	case <-p.stoppedC:
		p.logger.WithContext(ctx).Info("Job processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WithContext(ctx).Warn("Job processor shutdown timed out")
		return ctx.Err()
	}
	return nil
}

func (p *Processor) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *Processor) stopped() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

func (p *Processor) consumeLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for !p.stopped() {
		messages, err := p.streams.Consume(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, p.config.BatchSize, p.config.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.WithContext(ctx).WithError(err).Warn("Failed to consume messages")
			if sleepContext(ctx, time.Second) != nil {
				return
			}
			continue
		}

		for _, msg := range messages {
			select {
			case p.jobsCh <- msg:
			case <-p.stopCh:
				return
			}
		}
	}
}

func (p *Processor) claimLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(p.config.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.claimPendingMessages(ctx)
		}
	}
}

// claimPendingMessages takes over messages that another consumer read but
// never acknowledged. Messages delivered more often than the policy allows go
// to the dead letter queue instead.
func (p *Processor) claimPendingMessages(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Processor.claimPendingMessages")
	defer span.End()

	pending, err := p.streams.Pending(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.BatchSize)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to get pending messages")
		return
	}

	var staleIDs []string
	for _, msg := range pending {
		if msg.Idle < p.config.ClaimMinIdle {
			continue
		}
		if msg.RetryCount > int64(p.config.Retry.MaxAttempts) {
			p.logger.WithContext(ctx).Warnf("Message %s was delivered %d times, moving to DLQ", msg.ID, msg.RetryCount)
			p.deadLetterByID(ctx, msg.ID, int(msg.RetryCount), "exceeded maximum delivery count")
			continue
		}
		staleIDs = append(staleIDs, msg.ID)
	}
	if len(staleIDs) == 0 {
		return
	}

	claimed, err := p.streams.Claim(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, p.config.ClaimMinIdle, staleIDs...)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to claim pending messages")
		return
	}
	p.logger.WithContext(ctx).Infof("Claimed %d stale pending messages", len(claimed))

	for _, msg := range claimed {
		select {
		case p.jobsCh <- msg:
		case <-p.stopCh:
			return
		default:
			// Channel full; the message stays pending for the next pass.
		}
	}
}

func (p *Processor) worker(ctx context.Context, wg *sync.WaitGroup, id int) {
	defer wg.Done()

	p.logger.WithContext(ctx).Debugf("Worker %d started", id)
	for msg := range p.jobsCh {
		p.handle(ctx, msg)
	}
	p.logger.WithContext(ctx).Debugf("Worker %d stopped", id)
}

// handle runs one message and settles it: ack on success, republish for a
// retry, or dead-letter. A message whose retry wait is cut short by Stop is
// left pending.
func (p *Processor) handle(ctx context.Context, msg redis.StreamMessage) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Processor.handle")
	defer span.End()

	job := msg.Job
	ctx = appctx.SetRequestID(ctx, job.ID)

	metrics.QueueJobsInFlight.Inc()
	start := time.Now()
	err := p.runSafely(ctx, &job)
	metrics.QueueJobsInFlight.Dec()

	if err == nil {
		metrics.RecordQueueJob("success")
		p.logger.WithContext(ctx).Infof("Job %s completed in %s", job.ID, time.Since(start))
		p.ack(ctx, msg.ID)
		return
	}

	job.Attempts++
	job.LastError = err.Error()
	tracing.RecordError(ctx, err)

	if Permanent(err) || p.config.Retry.Exhausted(job.Attempts) {
		p.logger.WithContext(ctx).WithError(err).Warnf("Job %s failed after %d attempts, moving to DLQ", job.ID, job.Attempts)
		p.deadLetter(ctx, &job, err.Error())
		p.ack(ctx, msg.ID)
		return
	}

	delay := p.config.Retry.Delay(job.Attempts)
	p.logger.WithContext(ctx).WithError(err).Warnf("Job %s failed, retrying in %s", job.ID, delay)
	metrics.RecordQueueJob("retry")

	select {
	case <-p.stopCh:
		return
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	if _, err := p.streams.Publish(ctx, p.config.Stream, &job); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warnf("Failed to requeue job %s, leaving it pending", job.ID)
		return
	}
	p.ack(ctx, msg.ID)
}

func (p *Processor) runSafely(ctx context.Context, job *redis.JobMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic running job %s: %v", job.ID, r)
		}
	}()
	_, err = p.executor.Execute(ctx, job)
	return err
}

func (p *Processor) ack(ctx context.Context, messageID string) {
	if err := p.streams.Ack(ctx, p.config.Stream, p.config.ConsumerGroup, messageID); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warnf("Failed to ack message %s", messageID)
	}
}

func (p *Processor) deadLetter(ctx context.Context, job *redis.JobMessage, reason string) {
	metrics.RecordQueueJob("dead_lettered")
	if p.dlq == nil {
		return
	}
	entry := &redis.DLQEntry{
		SourceStream: p.config.Stream,
		OriginalJob:  job,
		ErrorMessage: reason,
		RetryCount:   job.Attempts,
	}
	if _, err := p.dlq.Add(ctx, entry); err != nil {
		p.logger.WithContext(ctx).WithError(err).Errorf("Failed to add job %s to DLQ", job.ID)
		return
	}
	metrics.RecordDLQJob(job.Type)
}

// deadLetterByID moves a pending message to the DLQ without running it.
func (p *Processor) deadLetterByID(ctx context.Context, messageID string, deliveries int, reason string) {
	ctx, span := tracing.StartSpan(ctx, "jobs.Processor.deadLetterByID")
	defer span.End()

	messages, err := p.streams.Range(ctx, p.config.Stream, messageID, messageID)
	if err != nil || len(messages) == 0 {
		p.logger.WithContext(ctx).WithError(err).Warnf("Failed to get message %s for DLQ", messageID)
		p.ack(ctx, messageID)
		return
	}

	job := messages[0].Job
	job.Attempts = deliveries
	p.deadLetter(ctx, &job, reason)
	p.ack(ctx, messageID)
}
