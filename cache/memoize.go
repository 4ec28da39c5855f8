package cache

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"commodity-prices/models"
	"commodity-prices/telemetry"
	"commodity-prices/utils"
)

// LoadFunc produces a canonical table on a cache miss.
type LoadFunc func(ctx context.Context) (*models.Table, error)

// Memoizer caches canonical tables by key. Concurrent misses for the same key
// share one load. Store failures are logged and fall through to a fresh
// load; they never fail the caller.
type Memoizer struct {
	store  Store
	ttl    time.Duration
	logger *utils.Logger
	group  singleflight.Group
}

// NewMemoizer wraps store. A nil store disables caching but keeps load
// deduplication.
func NewMemoizer(store Store, ttl time.Duration, logger *utils.Logger) *Memoizer {
	return &Memoizer{store: store, ttl: ttl, logger: logger}
}

// Table returns the table cached under key, calling load on a miss.
func (m *Memoizer) Table(ctx context.Context, key string, load LoadFunc) (*models.Table, error) {
	if t, ok := m.lookup(ctx, key); ok {
		return t, nil
	}

	v, err, shared := m.group.Do(key, func() (any, error) {
		t, err := load(ctx)
		if err != nil {
			return nil, err
		}
		m.save(ctx, key, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.logger.Debug("[cache] Shared load for %s", key)
	}
	return v.(*models.Table), nil
}

// Invalidate drops key from the store.
func (m *Memoizer) Invalidate(ctx context.Context, key string) {
	if m.store == nil {
		return
	}
	if err := m.store.Delete(ctx, key); err != nil {
		m.logger.Warn("[cache] Delete %s: %v", key, err)
	}
}

func (m *Memoizer) lookup(ctx context.Context, key string) (*models.Table, bool) {
	if m.store == nil {
		return nil, false
	}
	data, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.logger.Warn("[cache] Get %s: %v", key, err)
		telemetry.RecordCache(false)
		return nil, false
	}
	if !ok {
		telemetry.RecordCache(false)
		return nil, false
	}

	var t models.Table
	if err := json.Unmarshal(data, &t); err != nil {
		m.logger.Warn("[cache] Corrupt entry %s: %v", key, err)
		telemetry.RecordCache(false)
		return nil, false
	}
	telemetry.RecordCache(true)
	return &t, true
}

func (m *Memoizer) save(ctx context.Context, key string, t *models.Table) {
	if m.store == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		m.logger.Warn("[cache] Encode %s: %v", key, err)
		return
	}
	if err := m.store.Set(ctx, key, data, m.ttl); err != nil {
		m.logger.Warn("[cache] Set %s: %v", key, err)
	}
}
