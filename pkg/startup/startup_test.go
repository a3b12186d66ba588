package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type recorder struct {
	started []string
	stopped []string
}

func (r *recorder) dep(name string, requires ...string) Func {
	return Func{
		Name:     name,
		Requires: requires,
		StartFunc: func(context.Context) error {
			r.started = append(r.started, name)
			return nil
		},
		StopFunc: func(context.Context) error {
			r.stopped = append(r.stopped, name)
			return nil
		},
	}
}

func TestStart_DependencyOrder(t *testing.T) {
	r := &recorder{}
	s := NewStartup(testLogger(), 1)
	s.AddDependency(r.dep("migrations", "database"))
	s.AddDependency(r.dep("api", "migrations", "redis"))
	s.AddDependency(r.dep("database"))
	s.AddDependency(r.dep("redis"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"database", "migrations", "redis", "api"}, r.started)
	for _, name := range r.started {
		assert.Equal(t, StartupStatusStarted, s.Status(name))
	}
}

func TestStop_ReverseDependencyOrder(t *testing.T) {
	r := &recorder{}
	s := NewStartup(testLogger(), 1)
	s.AddDependency(r.dep("database"))
	s.AddDependency(r.dep("migrations", "database"))
	s.AddDependency(r.dep("api", "migrations"))

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"api", "migrations", "database"}, r.stopped)
	assert.Equal(t, StartupStatusStopped, s.Status("database"))
}

func TestStart_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	s := NewStartup(testLogger(), 3).WithBackoffUnit(time.Millisecond)
	s.AddDependency(Func{
		Name: "flaky",
		StartFunc: func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		},
	})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
	assert.Equal(t, StartupStatusStarted, s.Status("flaky"))
}

func TestStart_Failures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		deps    []Func
		wantErr string
		wantIs  error
	}{
		{
			name:    "gives up after max attempts",
			deps:    []Func{{Name: "db", StartFunc: func(context.Context) error { return boom }}},
			wantErr: "startup failed after 2 attempts",
			wantIs:  boom,
		},
		{
			name:    "unknown dependency",
			deps:    []Func{{Name: "api", Requires: []string{"missing"}}},
			wantErr: "unknown startup dependency 'missing'",
		},
		{
			name: "cycle",
			deps: []Func{
				{Name: "a", Requires: []string{"b"}},
				{Name: "b", Requires: []string{"a"}},
			},
			wantErr: "startup dependency cycle",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStartup(testLogger(), 2).WithBackoffUnit(time.Millisecond)
			for _, d := range tt.deps {
				s.AddDependency(d)
			}
			err := s.Start(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}

func TestStart_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStartup(testLogger(), 5).WithBackoffUnit(time.Hour)
	s.AddDependency(Func{
		Name: "db",
		StartFunc: func(context.Context) error {
			cancel()
			return errors.New("down")
		},
	})

	assert.ErrorIs(t, s.Start(ctx), context.Canceled)
}

func TestStop_SkipsUnstartedAndReportsFirstError(t *testing.T) {
	stopErr := errors.New("close failed")
	s := NewStartup(testLogger(), 1)
	s.AddDependency(Func{Name: "db", StopFunc: func(context.Context) error { return stopErr }})
	s.AddDependency(Func{
		Name:      "graph",
		StartFunc: func(context.Context) error { return errors.New("unreachable") },
		StopFunc: func(context.Context) error {
			t.Fatal("graph was never started")
			return nil
		},
	})

	require.Error(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Stop(context.Background()), stopErr)
	assert.Equal(t, StartupStatusFailed, s.Status("graph"))
}
