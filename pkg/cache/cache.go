package cache

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"capcache/pkg/caps"
	"capcache/pkg/metrics"
	"capcache/pkg/store"
)

// ErrNotFound is returned by Resolve when a key misses every store tier and
// no resolution is in flight. The caller is expected to start one via Begin.
var ErrNotFound = store.ErrNotFound

// Key identifies one cache entry and one in-flight resolution: a wire-level
// hash label plus the scoped node (base node URI + "#" + fingerprint).
type Key struct {
	Algo string
	Node string
}

// Dedup layers in-flight resolution deduplication over the tiered store. At
// most one Resolution exists per Key at any instant; every concurrent caller
// for the same key shares that resolution's outcome.
type Dedup struct {
	mu       sync.Mutex
	inflight map[Key]*Resolution

	store   *store.Tiered
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a dedup cache over the given store.
func New(st *store.Tiered, m *metrics.Metrics, logger *zap.Logger) *Dedup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dedup{
		inflight: make(map[Key]*Resolution),
		store:    st,
		metrics:  m,
		logger:   logger,
	}
}

// Store exposes the underlying tiered store.
func (d *Dedup) Store() *store.Tiered {
	return d.store
}

// Resolve returns the capability set for the key, either from the store or
// by waiting on an in-flight resolution. When a resolution completes with a
// validation failure, Resolve re-checks for a fresh attempt started by
// another caller; once no resolution remains, it returns ErrNotFound rather
// than waiting forever.
func (d *Dedup) Resolve(ctx context.Context, algo, node string) (*caps.Set, error) {
	set, err := d.store.Lookup(algo, node)
	if err == nil {
		return set, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	d.metrics.ObserveMiss()

	key := Key{Algo: algo, Node: node}
	for {
		d.mu.Lock()
		res := d.inflight[key]
		d.mu.Unlock()
		if res == nil {
			return nil, ErrNotFound
		}

		set, err := res.Wait(ctx)
		if err == nil {
			return set, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if !caps.IsValidationError(err) {
			return nil, err
		}
		d.logger.Debug("resolution failed validation, re-checking",
			zap.String("algo", algo),
			zap.String("node", node),
			zap.Error(err))
	}
}

// Begin registers a resolution for the key, or returns the one already in
// flight. The boolean reports whether the caller created the resolution and
// is therefore responsible for completing it. The handle deregisters itself
// the instant it completes, making the key immediately eligible for a fresh
// attempt.
func (d *Dedup) Begin(algo, node string) (*Resolution, bool) {
	key := Key{Algo: algo, Node: node}

	d.mu.Lock()
	defer d.mu.Unlock()
	if res, ok := d.inflight[key]; ok {
		return res, false
	}

	res := newResolution(func(r *Resolution) {
		d.remove(key, r)
		d.metrics.ResolutionFinished()
	})
	d.inflight[key] = res
	d.metrics.ResolutionStarted()
	return res, true
}

// remove deregisters the resolution, unless a later registration has already
// replaced it for the same key.
func (d *Dedup) remove(key Key, res *Resolution) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inflight[key] == res {
		delete(d.inflight, key)
	}
}
