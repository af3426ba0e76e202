package disco

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"capcache/pkg/caps"
)

// CapsFeature is the feature URI advertising fingerprint support. Every
// registry announces it.
const CapsFeature = "http://jabber.org/protocol/caps"

// Registry holds the local identity/feature/form set served to peers, plus
// the scoped nodes the current fingerprint is mounted under. Mutations to
// the capability set fire change callbacks; mounting and unmounting nodes
// does not.
type Registry struct {
	mu         sync.RWMutex
	identities []caps.Identity
	features   map[string]struct{}
	forms      []caps.DataForm
	mounts     map[string]struct{}

	onChange []func()
	logger   *zap.Logger
}

// NewRegistry creates a registry advertising the caps feature.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		features: map[string]struct{}{CapsFeature: {}},
		mounts:   make(map[string]struct{}),
		logger:   logger,
	}
}

// OnChange registers a callback fired after every mutation of the local
// capability set. Callbacks run synchronously on the mutating goroutine.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	r.onChange = append(r.onChange, fn)
	r.mu.Unlock()
}

// RegisterFeature adds a feature URI to the local set.
func (r *Registry) RegisterFeature(feature string) {
	r.mu.Lock()
	if _, ok := r.features[feature]; ok {
		r.mu.Unlock()
		return
	}
	r.features[feature] = struct{}{}
	r.mu.Unlock()
	r.notify()
}

// UnregisterFeature removes a feature URI from the local set.
func (r *Registry) UnregisterFeature(feature string) {
	r.mu.Lock()
	if _, ok := r.features[feature]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.features, feature)
	r.mu.Unlock()
	r.notify()
}

// SetIdentities replaces the local identity list.
func (r *Registry) SetIdentities(identities []caps.Identity) {
	r.mu.Lock()
	r.identities = make([]caps.Identity, len(identities))
	copy(r.identities, identities)
	r.mu.Unlock()
	r.notify()
}

// SetForms replaces the local extension form list.
func (r *Registry) SetForms(forms []caps.DataForm) {
	r.mu.Lock()
	r.forms = make([]caps.DataForm, len(forms))
	copy(r.forms, forms)
	r.mu.Unlock()
	r.notify()
}

// Mount makes the registry answer info queries for the given scoped node.
func (r *Registry) Mount(node string) {
	r.mu.Lock()
	r.mounts[node] = struct{}{}
	r.mu.Unlock()
	r.logger.Debug("mounted node", zap.String("node", node))
}

// Unmount stops answering info queries for the given scoped node.
func (r *Registry) Unmount(node string) {
	r.mu.Lock()
	delete(r.mounts, node)
	r.mu.Unlock()
	r.logger.Debug("unmounted node", zap.String("node", node))
}

// LocalInfo returns a snapshot of the local capability set.
func (r *Registry) LocalInfo() *caps.Set {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked("")
}

// Info answers an info query for the given node. The empty node and every
// mounted scoped node are served from the live local set; anything else is
// an error.
func (r *Registry) Info(node string) (*caps.Set, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if node != "" {
		if _, ok := r.mounts[node]; !ok {
			return nil, fmt.Errorf("node %q is not mounted", node)
		}
	}
	return r.snapshotLocked(node), nil
}

func (r *Registry) snapshotLocked(node string) *caps.Set {
	set := &caps.Set{Node: node}
	set.Identities = make([]caps.Identity, len(r.identities))
	copy(set.Identities, r.identities)
	set.Features = make([]string, 0, len(r.features))
	for feature := range r.features {
		set.Features = append(set.Features, feature)
	}
	if len(r.forms) > 0 {
		forms := &caps.Set{Forms: r.forms}
		set.Forms = forms.Clone().Forms
	}
	return set
}

func (r *Registry) notify() {
	r.mu.RLock()
	callbacks := make([]func(), len(r.onChange))
	copy(callbacks, r.onChange)
	r.mu.RUnlock()
	for _, fn := range callbacks {
		fn()
	}
}
