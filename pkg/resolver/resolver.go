package resolver

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"capcache/pkg/cache"
	"capcache/pkg/caps"
	"capcache/pkg/disco"
	"capcache/pkg/metrics"
)

// Resolver turns a received fingerprint advertisement into a verified
// capability set: cache first, then an authenticated network round trip
// shared among all concurrent callers for the same key.
type Resolver struct {
	cache   *cache.Dedup
	source  disco.InfoSource
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a resolver over the given dedup cache and info source.
func New(c *cache.Dedup, source disco.InfoSource, m *metrics.Metrics, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cache: c, source: source, metrics: m, logger: logger}
}

// LookupCapabilities resolves the advertised (node, ver, algo) triple for
// the peer at peerAddr. On a cache miss the caller either becomes the one
// resolver performing the network fetch or shares the outcome of the
// resolution already in flight. A HashMismatchError is reported to every
// waiter, after which the key is immediately eligible for a fresh attempt.
//
// The network fetch runs on the initiating caller's context: waiters
// abandoning their wait never cancel it, but cancelling the initiator fails
// the shared resolution with the context error.
func (r *Resolver) LookupCapabilities(ctx context.Context, peerAddr, node, ver, algo string) (*caps.Set, error) {
	scoped := node + "#" + ver

	set, err := r.cache.Resolve(ctx, algo, scoped)
	if err == nil {
		r.logger.Debug("resolved from cache", zap.String("ver", ver))
		return set, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}

	res, created := r.cache.Begin(algo, scoped)
	if !created {
		// Lost the begin race; share the winner's outcome.
		return res.Wait(ctx)
	}

	r.logger.Debug("querying peer for capabilities",
		zap.String("peer", peerAddr),
		zap.String("node", scoped))
	return r.fetchAndVerify(ctx, peerAddr, scoped, ver, algo, res)
}

// fetchAndVerify performs the authoritative fetch, verifies the fingerprint
// and completes the shared resolution either way.
func (r *Resolver) fetchAndVerify(ctx context.Context, peerAddr, scoped, ver, algo string, res *cache.Resolution) (*caps.Set, error) {
	r.metrics.ObserveFetch()
	set, err := r.source.FetchInfo(ctx, peerAddr, scoped, true)
	if err != nil {
		r.metrics.ObserveFetchFailure()
		res.Complete(nil, err)
		return nil, err
	}

	expected, err := caps.HashQuery(set, caps.NormalizeAlgorithm(algo))
	if err != nil {
		res.Complete(nil, err)
		return nil, err
	}
	if expected != ver {
		r.metrics.ObserveHashMismatch()
		mismatch := &caps.HashMismatchError{Node: scoped, Expected: ver, Actual: expected}
		r.logger.Warn("capability fingerprint did not verify",
			zap.String("peer", peerAddr),
			zap.String("node", scoped),
			zap.String("computed", expected))
		res.Complete(nil, mismatch)
		return nil, mismatch
	}

	r.cache.Store().Commit(algo, scoped, set)
	res.Complete(set, nil)
	return set, nil
}
