package resolver

import (
	"sync"

	"go.uber.org/zap"

	"capcache/pkg/caps"
	"capcache/pkg/disco"
)

// VersionTracker recomputes the local fingerprint whenever the registry's
// capability set changes, keeps the current ver mounted under its scoped
// node and notifies subscribers so they can re-publish presence.
type VersionTracker struct {
	registry *disco.Registry
	nodeURI  string
	logger   *zap.Logger

	mu   sync.Mutex
	ver  string
	subs []func()
}

// NewVersionTracker creates a tracker for the given base node URI and hooks
// it into the registry's change notifications. Call Update once to compute
// the initial fingerprint.
func NewVersionTracker(registry *disco.Registry, nodeURI string, logger *zap.Logger) *VersionTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &VersionTracker{
		registry: registry,
		nodeURI:  nodeURI,
		logger:   logger,
	}
	registry.OnChange(t.Update)
	return t
}

// Ver returns the current fingerprint, or "" before the first Update.
func (t *VersionTracker) Ver() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ver
}

// Node returns the base node URI advertised with the fingerprint.
func (t *VersionTracker) Node() string {
	return t.nodeURI
}

// Subscribe registers a zero-argument callback fired whenever the
// fingerprint changes.
func (t *VersionTracker) Subscribe(fn func()) {
	t.mu.Lock()
	t.subs = append(t.subs, fn)
	t.mu.Unlock()
}

// Update recomputes the fingerprint from the registry. When it differs from
// the previous one, the old scoped node is unmounted, the new one mounted
// and subscribers are notified. An unchanged set is a no-op.
func (t *VersionTracker) Update() {
	set := t.registry.LocalInfo()
	ver, err := caps.HashQuery(set, "sha1")
	if err != nil {
		t.logger.Error("failed to compute local fingerprint", zap.Error(err))
		return
	}

	t.mu.Lock()
	if ver == t.ver {
		t.mu.Unlock()
		return
	}
	old := t.ver
	t.ver = ver
	subs := make([]func(), len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	if old != "" {
		t.registry.Unmount(t.nodeURI + "#" + old)
	}
	t.registry.Mount(t.nodeURI + "#" + ver)
	t.logger.Info("local fingerprint changed", zap.String("ver", ver))

	for _, fn := range subs {
		fn()
	}
}
