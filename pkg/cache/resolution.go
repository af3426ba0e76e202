package cache

import (
	"context"
	"sync"

	"capcache/pkg/caps"
)

// Resolution is a single-assignment completion cell for one in-flight
// lookup. Any number of waiters observe the same terminal outcome; a waiter
// abandoning its wait never affects the resolution itself.
type Resolution struct {
	done   chan struct{}
	once   sync.Once
	set    *caps.Set
	err    error
	onDone func(*Resolution)
}

func newResolution(onDone func(*Resolution)) *Resolution {
	return &Resolution{
		done:   make(chan struct{}),
		onDone: onDone,
	}
}

// Complete assigns the resolution's outcome. Only the first call has any
// effect; the deregistration callback runs before waiters are released, so a
// waiter re-checking the registry after Wait returns sees either nothing or
// a genuinely fresh attempt.
func (r *Resolution) Complete(set *caps.Set, err error) {
	r.once.Do(func() {
		r.set = set
		r.err = err
		if r.onDone != nil {
			r.onDone(r)
		}
		close(r.done)
	})
}

// Wait blocks until the resolution completes or the waiter's context is
// done, and returns the shared outcome.
func (r *Resolution) Wait(ctx context.Context) (*caps.Set, error) {
	select {
	case <-r.done:
		return r.set, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done returns a channel closed when the resolution completes.
func (r *Resolution) Done() <-chan struct{} {
	return r.done
}
