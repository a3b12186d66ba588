package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/oak/pkg/identifier"
	"github.com/Ramsey-B/oak/pkg/lookup"
	"github.com/Ramsey-B/oak/pkg/metrics"
	"github.com/Ramsey-B/oak/pkg/models"
	"github.com/Ramsey-B/oak/pkg/normalizers"
	"github.com/Ramsey-B/oak/pkg/tracing"
)

const (
	kindIdentifier = "identifier"
	kindSearch     = "search"
)

// IdentifierKey is the cache key of a direct identifier lookup.
func IdentifierKey(id string) string {
	return "lookup:cpf:" + identifier.Normalize(id)
}

// SearchKey is the cache key of a parent-name search.
func SearchKey(role models.ParentRole, name string) string {
	return fmt.Sprintf("lookup:parent:%s:%s", role, normalizers.NormalizeName(name))
}

type TTLs struct {
	Identifier time.Duration
	Search     time.Duration
	Lock       time.Duration
}

func DefaultTTLs() TTLs {
	return TTLs{
		Identifier: DefaultIdentifierTTL,
		Search:     DefaultSearchTTL,
		Lock:       DefaultLockTTL,
	}
}

// CachedLookup is a read-through cache in front of a lookup.Lookup.
type CachedLookup struct {
	next   lookup.Lookup
	store  Store
	ttls   TTLs
	logger ectologger.Logger
}

var _ lookup.Lookup = (*CachedLookup)(nil)

func NewCachedLookup(next lookup.Lookup, store Store, ttls TTLs, logger ectologger.Logger) *CachedLookup {
	defaults := DefaultTTLs()
	if ttls.Identifier <= 0 {
		ttls.Identifier = defaults.Identifier
	}
	if ttls.Search <= 0 {
		ttls.Search = defaults.Search
	}
	if ttls.Lock <= 0 {
		ttls.Lock = defaults.Lock
	}
	return &CachedLookup{next: next, store: store, ttls: ttls, logger: logger}
}

func (c *CachedLookup) LookupByIdentifier(ctx context.Context, id string) (models.PersonRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "cache.CachedLookup.LookupByIdentifier")
	defer span.End()

	normalized, err := identifier.Validate(id)
	if err != nil {
		return models.PersonRecord{}, err
	}

	key := IdentifierKey(normalized)
	var cached map[string]any
	if c.read(ctx, kindIdentifier, key, &cached) {
		return models.NewPersonRecord(cached), nil
	}

	unlock := c.lock(ctx, key)
	defer unlock()

	rec, err := c.next.LookupByIdentifier(ctx, normalized)
	if err != nil {
		return models.PersonRecord{}, err
	}
	c.write(ctx, key, rec.Data, c.ttls.Identifier)
	return rec, nil
}

func (c *CachedLookup) LookupByParentName(ctx context.Context, role models.ParentRole, name string) ([]models.PersonRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "cache.CachedLookup.LookupByParentName")
	defer span.End()

	if _, err := lookup.SearchName(name); err != nil {
		return nil, err
	}

	key := SearchKey(role, name)
	var cached []map[string]any
	if c.read(ctx, kindSearch, key, &cached) {
		records := make([]models.PersonRecord, 0, len(cached))
		for _, data := range cached {
			records = append(records, models.NewPersonRecord(data))
		}
		return records, nil
	}

	unlock := c.lock(ctx, key)
	defer unlock()

	records, err := c.next.LookupByParentName(ctx, role, name)
	if err != nil {
		return nil, err
	}

	data := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		data = append(data, rec.Data)
	}
	c.write(ctx, key, data, c.ttls.Search)
	return records, nil
}

// Stats returns the store's hit statistics.
func (c *CachedLookup) Stats(ctx context.Context) (Stats, error) {
	return c.store.HitRate(ctx)
}

// read decodes a cached value into out. Store failures degrade to a miss.
func (c *CachedLookup) read(ctx context.Context, kind, key string, out any) bool {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Cache read failed for %s", key)
	}
	if ok && err == nil {
		if err := json.Unmarshal(raw, out); err == nil {
			metrics.RecordCache(kind, true)
			if err := c.store.RecordHit(ctx); err != nil {
				c.logger.WithContext(ctx).WithError(err).Warn("Failed to record cache hit")
			}
			return true
		}
		c.logger.WithContext(ctx).Warnf("Discarding undecodable cache entry %s", key)
	}

	metrics.RecordCache(kind, false)
	if err := c.store.RecordMiss(ctx); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Failed to record cache miss")
	}
	return false
}

func (c *CachedLookup) write(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Failed to encode cache entry %s", key)
		return
	}
	if err := c.store.Set(ctx, key, raw, ttl); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Cache write failed for %s", key)
	}
}

// lock takes the advisory lock on key and returns its release func. Losing the
// race does not block the caller.
func (c *CachedLookup) lock(ctx context.Context, key string) func() {
	held, err := c.store.TryLock(ctx, key, c.ttls.Lock)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Debugf("Cache lock failed for %s", key)
		return func() {}
	}
	if !held {
		return func() {}
	}
	return func() {
		if err := c.store.Unlock(context.WithoutCancel(ctx), key); err != nil {
			c.logger.WithContext(ctx).WithError(err).Debugf("Cache unlock failed for %s", key)
		}
	}
}
