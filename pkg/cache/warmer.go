package cache

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/oak/pkg/identifier"
	"github.com/Ramsey-B/oak/pkg/lookup"
)

const DefaultWarmInterval = 5 * time.Second

// Warmer drains the warm-up queue and pre-fetches each identifier through the
// cached lookup, so a later run finds it in the cache.
type Warmer struct {
	store    Store
	lookup   lookup.Lookup
	interval time.Duration
	logger   ectologger.Logger
}

func NewWarmer(store Store, cached lookup.Lookup, interval time.Duration, logger ectologger.Logger) *Warmer {
	if interval <= 0 {
		interval = DefaultWarmInterval
	}
	return &Warmer{store: store, lookup: cached, interval: interval, logger: logger}
}

// Enqueue schedules identifiers for warm-up. Invalid identifiers are skipped.
func (w *Warmer) Enqueue(ctx context.Context, ids map[string]int) error {
	for id, level := range ids {
		if !identifier.IsValid(id) {
			continue
		}
		if err := w.store.EnqueuePriority(ctx, identifier.Normalize(id), float64(level)); err != nil {
			return err
		}
	}
	return nil
}

// WarmOnce fetches up to max queued identifiers and returns how many were fetched.
func (w *Warmer) WarmOnce(ctx context.Context, max int) (int, error) {
	warmed := 0
	for warmed < max {
		id, ok, err := w.store.DequeuePriority(ctx)
		if err != nil {
			return warmed, err
		}
		if !ok {
			return warmed, nil
		}

		if _, err := w.lookup.LookupByIdentifier(ctx, id); err != nil {
			if ctx.Err() != nil {
				return warmed, ctx.Err()
			}
			w.logger.WithContext(ctx).WithError(err).WithField("identifier", id).Warn("Warm-up lookup failed")
			continue
		}
		warmed++
	}
	return warmed, nil
}

// Run warms the cache until ctx is cancelled, idling for the interval whenever
// the queue is empty.
func (w *Warmer) Run(ctx context.Context) error {
	w.logger.Infof("Cache warmer started (interval %s)", w.interval)
	for {
		n, err := w.WarmOnce(ctx, 10)
		if err != nil && ctx.Err() == nil {
			w.logger.WithError(err).Error("Cache warm-up pass failed")
		}
		if ctx.Err() != nil {
			w.logger.Info("Cache warmer stopped")
			return nil
		}
		if n > 0 {
			continue
		}

		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("Cache warmer stopped")
			return nil
		case <-timer.C:
		}
	}
}
