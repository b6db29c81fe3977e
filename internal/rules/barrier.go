package rules

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// ErrNotLoaded is the programming error of evaluating before the rule store
// has finished loading.
var ErrNotLoaded = eris.New("rules: rule store not loaded")

// Barrier is the one-time initialization point for the rule store. The
// first Load runs the loader; later calls observe its result. After Ready is
// closed the RuleSet never changes for the life of the process.
type Barrier struct {
	once sync.Once
	done chan struct{}
	rs   *RuleSet
	err  error
}

// NewBarrier creates an unloaded barrier.
func NewBarrier() *Barrier {
	return &Barrier{done: make(chan struct{})}
}

// Load runs fn exactly once. Concurrent and later callers block until the
// first load finishes and receive its error.
func (b *Barrier) Load(ctx context.Context, fn func(ctx context.Context) (*RuleSet, error)) error {
	b.once.Do(func() {
		defer close(b.done)
		b.rs, b.err = fn(ctx)
		if b.err == nil && b.rs == nil {
			b.err = eris.New("rules: loader returned no rule set")
		}
	})
	<-b.done
	return b.err
}

// Ready is closed once loading has finished, successfully or not.
func (b *Barrier) Ready() <-chan struct{} {
	return b.done
}

// Wait blocks until loading finishes or ctx is done.
func (b *Barrier) Wait(ctx context.Context) (*RuleSet, error) {
	select {
	case <-b.done:
		return b.rs, b.err
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "rules: wait for rule store")
	}
}

// RuleSet returns the loaded rule set without blocking.
func (b *Barrier) RuleSet() (*RuleSet, error) {
	select {
	case <-b.done:
		return b.rs, b.err
	default:
		return nil, ErrNotLoaded
	}
}

// MustRuleSet returns the loaded rule set and panics if loading has not
// completed successfully.
func (b *Barrier) MustRuleSet() *RuleSet {
	rs, err := b.RuleSet()
	if err != nil {
		panic(err)
	}
	return rs
}
