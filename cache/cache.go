// Package cache memoizes per-pair interaction records. Reads are lock-free,
// computation is single-flight per pair, predicted records expire after a
// TTL and are bounded by an LRU, and every record is tied to the curated
// data version it was computed under.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/interfaces"
	"github.com/giygas/ddi-engine/logging"
	"github.com/giygas/ddi-engine/metrics"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"
)

// Compile-time check to ensure Cache implements InteractionCache
var _ interfaces.InteractionCache = (*Cache)(nil)

// ErrClosed is returned by lookups after Close
var ErrClosed = errors.New("interaction cache closed")

// Defaults applied to zero Config fields
const (
	DefaultTTL            = 24 * time.Hour
	DefaultComputeTimeout = 30 * time.Second
)

// Config sets the cache lifecycle parameters
type Config struct {
	// TTL of predicted records
	TTL time.Duration
	// Capacity bounds predicted records, <= 0 means unbounded. Curated
	// records are never evicted for capacity.
	Capacity int
	// ComputeTimeout bounds one shared computation, independent of callers
	ComputeTimeout time.Duration
	// BackendTimeout bounds each call to the remote tier
	BackendTimeout time.Duration
}

type entry struct {
	record entities.InteractionRecord
	// curated data version the record was computed under
	version uint64
}

// Cache is the interaction cache service. Construct it with New and release
// it with Close.
type Cache struct {
	curated   interfaces.CuratedStore
	predictor interfaces.Predictor
	remote    interfaces.RemoteCache
	cfg       Config
	now       func() time.Time

	entries sync.Map // entities.InteractionKey -> *entry
	group   singleflight.Group

	lruMu sync.Mutex
	lru   *simplelru.LRU[entities.InteractionKey, struct{}]

	hits         atomic.Int64
	misses       atomic.Int64
	shared       atomic.Int64
	computations atomic.Int64
	evictions    atomic.Int64
	curatedN     atomic.Int64
	predictedN   atomic.Int64

	backendHealthy atomic.Bool
	closed         atomic.Bool
}

// New builds a cache over the curated store and the predictor. remote may
// be nil.
func New(curated interfaces.CuratedStore, predictor interfaces.Predictor, remote interfaces.RemoteCache, cfg Config) (*Cache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.ComputeTimeout <= 0 {
		cfg.ComputeTimeout = DefaultComputeTimeout
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = time.Second
	}

	c := &Cache{
		curated:   curated,
		predictor: predictor,
		remote:    remote,
		cfg:       cfg,
		now:       time.Now,
	}
	c.backendHealthy.Store(true)

	if cfg.Capacity > 0 {
		lru, err := simplelru.NewLRU[entities.InteractionKey, struct{}](cfg.Capacity, c.onEvict)
		if err != nil {
			return nil, fmt.Errorf("create lru: %w", err)
		}
		c.lru = lru
	}
	return c, nil
}

// GetOrCompute returns the record of the pair, computing it at most once
// across concurrent callers. A caller that gives up does not cancel the
// shared computation, whose result is still cached.
func (c *Cache) GetOrCompute(ctx context.Context, pair entities.DrugPair) (entities.InteractionRecord, error) {
	if c.closed.Load() {
		return entities.InteractionRecord{}, ErrClosed
	}

	key := pair.Key()
	if rec, ok := c.lookup(key); ok {
		c.hits.Add(1)
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return rec, nil
	}
	c.misses.Add(1)
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	ch := c.group.DoChan(key.String(), func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ComputeTimeout)
		defer cancel()

		// A flight that finished just before this one started already stored it
		if rec, ok := c.lookup(key); ok {
			return rec, nil
		}
		return c.compute(cctx, pair, key)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.shared.Add(1)
			metrics.CacheLookups.WithLabelValues("shared").Inc()
		}
		if res.Err != nil {
			return entities.InteractionRecord{}, res.Err
		}
		return res.Val.(entities.InteractionRecord), nil
	case <-ctx.Done():
		return entities.InteractionRecord{}, ctx.Err()
	}
}

// lookup returns a live entry. Predicted hits refresh their LRU position
// when the LRU is not contended.
func (c *Cache) lookup(key entities.InteractionKey) (entities.InteractionRecord, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return entities.InteractionRecord{}, false
	}
	e := v.(*entry)
	if !c.live(e, c.now()) {
		return entities.InteractionRecord{}, false
	}
	if e.record.Source == entities.SourcePredicted && c.lru != nil && c.lruMu.TryLock() {
		c.lru.Get(key)
		c.lruMu.Unlock()
	}
	return e.record, true
}

func (c *Cache) live(e *entry, now time.Time) bool {
	return e.version == c.curated.Version() && !e.record.Expired(now)
}

// compute walks curated store, shared tier, then classifier
func (c *Cache) compute(ctx context.Context, pair entities.DrugPair, key entities.InteractionKey) (entities.InteractionRecord, error) {
	c.computations.Add(1)
	// Read before the lookup so a reload during it leaves the entry stale
	version := c.curated.Version()

	cur, err := c.curated.Lookup(ctx, pair.First.ID, pair.Second.ID)
	if err != nil {
		return entities.InteractionRecord{}, fmt.Errorf("curated lookup via %s: %w", c.curated.Name(), err)
	}
	if cur != nil {
		rec := entities.NewCuratedRecord(pair, *cur, c.now())
		c.store(key, rec, version)
		return rec, nil
	}

	if rec, ok := c.fromRemote(ctx, key); ok {
		c.store(key, rec, version)
		return rec, nil
	}

	pred, err := c.predictor.Predict(ctx, entities.PairInput{
		A: operand(pair.First),
		B: operand(pair.Second),
	})
	if err != nil {
		return entities.InteractionRecord{}, err
	}

	rec := entities.NewPredictedRecord(pair, pred, c.now(), c.cfg.TTL)
	c.store(key, rec, version)
	c.toRemote(ctx, rec)
	return rec, nil
}

func operand(d entities.Drug) entities.Operand {
	return entities.Operand{Key: d.ID, Structure: d.Structure, Fingerprint: d.Fingerprint}
}

func (c *Cache) fromRemote(ctx context.Context, key entities.InteractionKey) (entities.InteractionRecord, bool) {
	if c.remote == nil {
		return entities.InteractionRecord{}, false
	}
	rctx, cancel := context.WithTimeout(ctx, c.cfg.BackendTimeout)
	defer cancel()

	rec, err := c.remote.Get(rctx, key)
	if err != nil {
		c.backendFailed("get", err)
		return entities.InteractionRecord{}, false
	}
	c.backendHealthy.Store(true)
	if rec == nil || rec.Expired(c.now()) {
		return entities.InteractionRecord{}, false
	}
	metrics.CacheLookups.WithLabelValues("remote_hit").Inc()
	return *rec, true
}

func (c *Cache) toRemote(ctx context.Context, rec entities.InteractionRecord) {
	if c.remote == nil {
		return
	}
	exp, ok := rec.ExpiresAt()
	if !ok {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, c.cfg.BackendTimeout)
	defer cancel()

	if err := c.remote.Put(rctx, rec, exp.Sub(c.now())); err != nil {
		c.backendFailed("put", err)
		return
	}
	c.backendHealthy.Store(true)
}

func (c *Cache) backendFailed(op string, err error) {
	c.backendHealthy.Store(false)
	metrics.CacheBackendErrors.WithLabelValues(op).Inc()
	logging.Warn("Cache backend unavailable, computing directly", "backend", c.remote.Name(), "op", op, "error", err)
}

func (c *Cache) store(key entities.InteractionKey, rec entities.InteractionRecord, version uint64) {
	if c.closed.Load() {
		return
	}
	e := &entry{record: rec, version: version}
	if prev, loaded := c.entries.Swap(key, e); loaded {
		c.count(prev.(*entry).record.Source, -1)
	}
	c.count(rec.Source, 1)

	if c.lru != nil {
		c.lruMu.Lock()
		if rec.Source == entities.SourcePredicted {
			c.lru.Add(key, struct{}{})
		} else {
			c.lru.Remove(key)
		}
		c.lruMu.Unlock()
	}
	c.updateGauge()
}

// onEvict runs under lruMu. Explicit removals find the entry already gone
// or replaced, so only capacity evictions delete here.
func (c *Cache) onEvict(key entities.InteractionKey, _ struct{}) {
	v, ok := c.entries.Load(key)
	if !ok || v.(*entry).record.Source != entities.SourcePredicted {
		return
	}
	if c.entries.CompareAndDelete(key, v) {
		c.count(entities.SourcePredicted, -1)
		c.evictions.Add(1)
		metrics.CacheEvictions.WithLabelValues("capacity").Inc()
	}
}

func (c *Cache) count(source entities.Source, delta int64) {
	if source == entities.SourceCurated {
		c.curatedN.Add(delta)
		return
	}
	c.predictedN.Add(delta)
}

func (c *Cache) updateGauge() {
	metrics.CacheEntries.Set(float64(c.curatedN.Load() + c.predictedN.Load()))
}

// Sweep drops expired predicted records and records computed under an older
// curated version. It returns the number removed.
func (c *Cache) Sweep(now time.Time) int {
	version := c.curated.Version()
	removed := 0

	c.entries.Range(func(k, v any) bool {
		key := k.(entities.InteractionKey)
		e := v.(*entry)

		reason := ""
		switch {
		case e.version != version:
			reason = "stale"
		case e.record.Expired(now):
			reason = "expired"
		default:
			return true
		}

		if !c.entries.CompareAndDelete(key, v) {
			return true
		}
		c.count(e.record.Source, -1)
		if c.lru != nil && e.record.Source == entities.SourcePredicted {
			c.lruMu.Lock()
			c.lru.Remove(key)
			c.lruMu.Unlock()
		}
		c.evictions.Add(1)
		metrics.CacheEvictions.WithLabelValues(reason).Inc()
		removed++
		return true
	})

	c.updateGauge()
	return removed
}

// Purge drops every record
func (c *Cache) Purge() {
	c.entries.Range(func(k, v any) bool {
		if c.entries.CompareAndDelete(k, v) {
			c.count(v.(*entry).record.Source, -1)
		}
		return true
	})
	if c.lru != nil {
		c.lruMu.Lock()
		c.lru.Purge()
		c.lruMu.Unlock()
	}
	c.updateGauge()
}

// Stats returns the current counters
func (c *Cache) Stats() interfaces.CacheStats {
	hits, misses := c.hits.Load(), c.misses.Load()
	stats := interfaces.CacheStats{
		Curated:        int(c.curatedN.Load()),
		Predicted:      int(c.predictedN.Load()),
		Hits:           hits,
		Misses:         misses,
		Shared:         c.shared.Load(),
		Computations:   c.computations.Load(),
		Evictions:      c.evictions.Load(),
		Capacity:       c.cfg.Capacity,
		Backend:        "none",
		BackendHealthy: c.backendHealthy.Load(),
	}
	stats.Entries = stats.Curated + stats.Predicted
	if hits+misses > 0 {
		stats.HitRatio = float64(hits) / float64(hits+misses)
	}
	if c.remote != nil {
		stats.Backend = c.remote.Name()
	}
	return stats
}

// Close stops serving lookups and drops every record
func (c *Cache) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.Purge()
	logging.Info("Interaction cache closed")
	return nil
}
