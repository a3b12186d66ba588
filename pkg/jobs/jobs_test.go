package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Ramsey-B/oak/pkg/errors"
	"github.com/Ramsey-B/oak/pkg/importer"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/redis"
)

const seed = "52998224725"

var testLogger = ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

// fakeRunner fails the first failures calls with err, then succeeds.
type fakeRunner struct {
	mu       sync.Mutex
	failures int
	err      error
	imports  []importer.ImportRequest
	discover []importer.DiscoveryRequest
}

func (f *fakeRunner) outcome() (models.Result, error) {
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return models.Result{}, f.err
	}
	return models.Result{RunID: "run-1", Status: models.RunStatusSuccess}, nil
}

func (f *fakeRunner) Import(_ context.Context, req importer.ImportRequest) (models.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imports = append(f.imports, req)
	return f.outcome()
}

func (f *fakeRunner) Discover(_ context.Context, req importer.DiscoveryRequest) (models.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discover = append(f.discover, req)
	return f.outcome()
}

func (f *fakeRunner) importCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.imports)
}

func TestRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 4, want: 4 * time.Second},
		{attempt: 0, want: time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempt), "attempt %d", tt.attempt)
	}

	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))
}

func TestNewJobMessage(t *testing.T) {
	v := validator.New(validator.WithRequiredStructEnabled())

	tests := []struct {
		name    string
		jobType string
		payload any
		wantErr bool
	}{
		{name: "full tree", jobType: JobTypeFullTree, payload: ImportJob{SeedIdentifier: seed, FamilyTreeID: "t", MaxDepth: intPtr(2)}},
		{name: "discovery", jobType: JobTypeDiscovery, payload: DiscoveryJob{Identifier: seed, FamilyTreeID: "t"}},
		{name: "short identifier", jobType: JobTypeFullTree, payload: ImportJob{SeedIdentifier: "123", FamilyTreeID: "t"}, wantErr: true},
		{name: "missing tree", jobType: JobTypeDiscovery, payload: DiscoveryJob{Identifier: seed}, wantErr: true},
		{name: "seed only", jobType: JobTypeFullTree, payload: ImportJob{SeedIdentifier: seed, FamilyTreeID: "t", MaxDepth: intPtr(0)}},
		{name: "depth over limit", jobType: JobTypeFullTree, payload: ImportJob{SeedIdentifier: seed, FamilyTreeID: "t", MaxDepth: intPtr(6)}, wantErr: true},
		{name: "zero people", jobType: JobTypeFullTree, payload: ImportJob{SeedIdentifier: seed, FamilyTreeID: "t", MaxPeople: intPtr(0)}, wantErr: true},
		{name: "unknown type", jobType: "reindex", payload: ImportJob{SeedIdentifier: seed, FamilyTreeID: "t"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewJobMessage(v, tt.jobType, tt.payload)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidJob)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.jobType, msg.Type)
			assert.NotEmpty(t, msg.Payload)
		})
	}
}

func TestExecutor_Execute(t *testing.T) {
	runner := &fakeRunner{}
	exec := NewExecutor(runner, testLogger)
	merge := false

	payload, err := json.Marshal(ImportJob{SeedIdentifier: seed, FamilyTreeID: "t", MaxDepth: intPtr(2), MaxPeople: intPtr(50), MergeDuplicates: &merge})
	require.NoError(t, err)

	res, err := exec.Execute(context.Background(), &redis.JobMessage{ID: "j1", Type: JobTypeFullTree, Payload: payload})
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	require.Len(t, runner.imports, 1)
	assert.Equal(t, importer.ImportRequest{
		SeedIdentifier:  seed,
		FamilyTreeID:    "t",
		MaxDepth:        intPtr(2),
		MaxPeople:       intPtr(50),
		MergeDuplicates: &merge,
	}, runner.imports[0])

	payload, err = json.Marshal(DiscoveryJob{Identifier: seed, FamilyTreeID: "t", Force: true})
	require.NoError(t, err)
	_, err = exec.Execute(context.Background(), &redis.JobMessage{ID: "j2", Type: JobTypeDiscovery, Payload: payload})
	require.NoError(t, err)
	require.Len(t, runner.discover, 1)
	assert.True(t, runner.discover[0].Options.Force)

	_, err = exec.Execute(context.Background(), &redis.JobMessage{ID: "j3", Type: JobTypeFullTree, Payload: json.RawMessage(`{"seed_identifier":`)})
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func TestMemoryDispatcher(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantDead  int
		wantSleep []time.Duration
	}{
		{name: "succeeds first time", wantCalls: 1},
		{name: "recovers on third attempt", failures: 2, err: errors.New("connection refused"), wantCalls: 3, wantSleep: []time.Duration{time.Second, 2 * time.Second}},
		{name: "exhausts the policy", failures: -1, err: errors.New("connection refused"), wantCalls: 3, wantDead: 1, wantSleep: []time.Duration{time.Second, 2 * time.Second}},
		{name: "invalid input is not retried", failures: -1, err: apperrors.NewInvalidInput("identifier", "1", "bad"), wantCalls: 1, wantDead: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{failures: tt.failures, err: tt.err}
			d := NewMemoryDispatcher(NewExecutor(runner, testLogger), DefaultRetryPolicy(), testLogger)
			var slept []time.Duration
			d.sleep = func(_ context.Context, delay time.Duration) error {
				slept = append(slept, delay)
				return nil
			}

			id, err := d.Dispatch(context.Background(), JobTypeFullTree, ImportJob{SeedIdentifier: seed, FamilyTreeID: "t"})
			require.NoError(t, err)
			assert.NotEmpty(t, id)
			assert.Equal(t, 1, d.Pending())

			require.NoError(t, d.Drain(context.Background()))
			assert.Equal(t, tt.wantCalls, runner.importCalls())
			assert.Equal(t, tt.wantSleep, slept)
			assert.Zero(t, d.Pending())

			dead := d.Dead()
			require.Len(t, dead, tt.wantDead)
			if tt.wantDead > 0 {
				assert.Equal(t, id, dead[0].OriginalJob.ID)
				assert.Equal(t, tt.wantCalls, dead[0].RetryCount)
				assert.Equal(t, tt.err.Error(), dead[0].ErrorMessage)
			}
		})
	}
}

func newStreams(t *testing.T) (*redis.Client, *redis.Streams) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	client := redis.Wrap(rdb, testLogger)
	return client, redis.NewStreams(client)
}

func startProcessor(t *testing.T, runner Runner) (*StreamDispatcher, *redis.Streams, *redis.DeadLetterQueue, ProcessorConfig) {
	t.Helper()
	client, streams := newStreams(t)
	dlq := redis.NewDeadLetterQueue(client, "", testLogger)

	cfg := ProcessorConfig{
		Stream:        "oak:jobs:test",
		ConsumerGroup: "workers",
		ConsumerName:  "worker-1",
		BlockTimeout:  20 * time.Millisecond,
		ClaimInterval: time.Hour,
		WorkerCount:   2,
		Retry:         RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond},
	}
	p := NewProcessor(streams, dlq, NewExecutor(runner, testLogger), cfg, testLogger)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Stop(ctx)
	})
	return NewStreamDispatcher(streams, cfg.Stream), streams, dlq, cfg
}

func TestProcessor_Succeeds(t *testing.T) {
	runner := &fakeRunner{}
	dispatcher, streams, dlq, cfg := startProcessor(t, runner)
	ctx := context.Background()

	_, err := dispatcher.Dispatch(ctx, JobTypeFullTree, ImportJob{SeedIdentifier: seed, FamilyTreeID: "t"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return runner.importCalls() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		pending, err := streams.Pending(ctx, cfg.Stream, cfg.ConsumerGroup, 10)
		return err == nil && len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)

	count, err := dlq.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestProcessor_RetriesThenDeadLetters(t *testing.T) {
	runner := &fakeRunner{failures: -1, err: errors.New("connection refused")}
	dispatcher, streams, dlq, cfg := startProcessor(t, runner)
	ctx := context.Background()

	id, err := dispatcher.Dispatch(ctx, JobTypeFullTree, ImportJob{SeedIdentifier: seed, FamilyTreeID: "t"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		count, err := dlq.Count(ctx)
		return err == nil && count == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, runner.importCalls())

	entries, err := dlq.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].OriginalJob.ID)
	assert.Equal(t, 3, entries[0].OriginalJob.Attempts)
	assert.Equal(t, "connection refused", entries[0].ErrorMessage)
	assert.Equal(t, cfg.Stream, entries[0].SourceStream)

	require.Eventually(t, func() bool {
		pending, err := streams.Pending(ctx, cfg.Stream, cfg.ConsumerGroup, 10)
		return err == nil && len(pending) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStreamDispatcher_RejectsInvalidPayload(t *testing.T) {
	_, streams := newStreams(t)
	d := NewStreamDispatcher(streams, "oak:jobs:test")

	_, err := d.Dispatch(context.Background(), JobTypeDiscovery, DiscoveryJob{Identifier: "abc", FamilyTreeID: "t"})
	assert.ErrorIs(t, err, ErrInvalidJob)

	n, err := streams.Len(context.Background(), "oak:jobs:test")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func intPtr(n int) *int { return &n }
