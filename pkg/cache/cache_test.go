package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/oak/pkg/errors"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/redis"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeLookup struct {
	mu            sync.Mutex
	identifierHit map[string]int
	searchHit     map[string]int
	records       map[string]map[string]any
	err           error
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		identifierHit: map[string]int{},
		searchHit:     map[string]int{},
		records:       map[string]map[string]any{},
	}
}

func (f *fakeLookup) LookupByIdentifier(_ context.Context, id string) (models.PersonRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identifierHit[id]++
	if f.err != nil {
		return models.PersonRecord{}, f.err
	}
	return models.NewPersonRecord(f.records[id]), nil
}

func (f *fakeLookup) LookupByParentName(_ context.Context, role models.ParentRole, name string) ([]models.PersonRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchHit[string(role)+":"+name]++
	if f.err != nil {
		return nil, f.err
	}
	return []models.PersonRecord{
		models.NewPersonRecord(map[string]any{"nome": "FILHO UM"}),
		models.NewPersonRecord(map[string]any{"nome": "FILHO DOIS"}),
	}, nil
}

func (f *fakeLookup) calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identifierHit[id]
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(redis.Wrap(rdb, testLogger()), ""), mr
}

func stores(t *testing.T) map[string]Store {
	redisStore, _ := newRedisStore(t)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  redisStore,
	}
}

func TestStore_Contract(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := store.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
			v, ok, err := store.Get(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, []byte("v"), v)

			held, err := store.TryLock(ctx, "52998224725", time.Minute)
			require.NoError(t, err)
			assert.True(t, held)
			held, err = store.TryLock(ctx, "52998224725", time.Minute)
			require.NoError(t, err)
			assert.False(t, held)
			require.NoError(t, store.Unlock(ctx, "52998224725"))
			held, err = store.TryLock(ctx, "52998224725", time.Minute)
			require.NoError(t, err)
			assert.True(t, held)

			require.NoError(t, store.EnqueuePriority(ctx, "c", 2))
			require.NoError(t, store.EnqueuePriority(ctx, "a", 0))
			require.NoError(t, store.EnqueuePriority(ctx, "b", 1))
			for _, want := range []string{"a", "b", "c"} {
				got, ok, err := store.DequeuePriority(ctx)
				require.NoError(t, err)
				require.True(t, ok)
				assert.Equal(t, want, got)
			}
			_, ok, err = store.DequeuePriority(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.RecordHit(ctx))
			require.NoError(t, store.RecordHit(ctx))
			require.NoError(t, store.RecordHit(ctx))
			require.NoError(t, store.RecordMiss(ctx))
			stats, err := store.HitRate(ctx)
			require.NoError(t, err)
			assert.Equal(t, Stats{Hits: 3, Misses: 1, Rate: 0.75}, stats)
		})
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Hour))
	held, _ := store.TryLock(ctx, "id", time.Minute)
	require.True(t, held)

	now = now.Add(2 * time.Minute)
	held, _ = store.TryLock(ctx, "id", time.Minute)
	assert.True(t, held, "expired lock can be retaken")

	_, ok, _ := store.Get(ctx, "k")
	assert.True(t, ok)
	now = now.Add(time.Hour)
	_, ok, _ = store.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisStore_ValueExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisStore(t)

	require.NoError(t, store.Set(ctx, IdentifierKey("52998224725"), []byte(`{}`), time.Hour))
	assert.True(t, mr.Exists("oak:cache:lookup:cpf:52998224725"))

	mr.FastForward(2 * time.Hour)
	_, ok, err := store.Get(ctx, IdentifierKey("52998224725"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCachedLookup_HitSkipsUpstream(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			upstream := newFakeLookup()
			upstream.records["52998224725"] = map[string]any{"nome": "JOAO DA SILVA"}
			cached := NewCachedLookup(upstream, store, DefaultTTLs(), testLogger())

			rec, err := cached.LookupByIdentifier(ctx, "529.982.247-25")
			require.NoError(t, err)
			assert.Equal(t, "JOAO DA SILVA", rec.Data["nome"])

			rec, err = cached.LookupByIdentifier(ctx, "52998224725")
			require.NoError(t, err)
			assert.Equal(t, "JOAO DA SILVA", rec.Data["nome"])

			assert.Equal(t, 1, upstream.calls("52998224725"))
			stats, err := cached.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), stats.Hits)
			assert.Equal(t, int64(1), stats.Misses)

			held, err := store.TryLock(ctx, IdentifierKey("52998224725"), time.Minute)
			require.NoError(t, err)
			assert.True(t, held, "lock released after the upstream call")
		})
	}
}

func TestCachedLookup_SearchCachedByNormalizedName(t *testing.T) {
	ctx := context.Background()
	upstream := newFakeLookup()
	cached := NewCachedLookup(upstream, NewMemoryStore(), DefaultTTLs(), testLogger())

	first, err := cached.LookupByParentName(ctx, models.ParentRoleMother, "Maria José")
	require.NoError(t, err)
	second, err := cached.LookupByParentName(ctx, models.ParentRoleMother, "MARIA JOSE")
	require.NoError(t, err)

	assert.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.Len(t, upstream.searchHit, 1)

	_, err = cached.LookupByParentName(ctx, models.ParentRoleFather, "MARIA JOSE")
	require.NoError(t, err)
	assert.Len(t, upstream.searchHit, 2, "role is part of the key")
}

func TestCachedLookup_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	upstream := newFakeLookup()
	upstream.err = errors.NewUpstream(503, "down")
	store := NewMemoryStore()
	cached := NewCachedLookup(upstream, store, DefaultTTLs(), testLogger())

	_, err := cached.LookupByIdentifier(ctx, "52998224725")
	assert.ErrorIs(t, err, errors.ErrUpstream)

	upstream.err = nil
	_, err = cached.LookupByIdentifier(ctx, "52998224725")
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls("52998224725"))

	_, err = cached.LookupByIdentifier(ctx, "12345")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	_, err = cached.LookupByParentName(ctx, models.ParentRoleMother, "AB")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestWarmer_WarmOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	upstream := newFakeLookup()
	cached := NewCachedLookup(upstream, store, DefaultTTLs(), testLogger())
	warmer := NewWarmer(store, cached, time.Millisecond, testLogger())

	require.NoError(t, warmer.Enqueue(ctx, map[string]int{
		"52998224725": 2,
		"11144477735": 1,
		"00000000000": 0,
	}))
	assert.Equal(t, 2, store.QueueLen())

	n, err := warmer.WarmOnce(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, store.QueueLen())

	_, err = cached.LookupByIdentifier(ctx, "52998224725")
	require.NoError(t, err)
	assert.Equal(t, 1, upstream.calls("52998224725"), "warmed entry served from cache")
}

func TestWarmer_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := NewMemoryStore()
	warmer := NewWarmer(store, NewCachedLookup(newFakeLookup(), store, DefaultTTLs(), testLogger()), time.Millisecond, testLogger())

	done := make(chan error, 1)
	go func() { done <- warmer.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("warmer did not stop")
	}
}
