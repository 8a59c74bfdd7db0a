package alder

import "reflect"

// Lifetime is the strategy that decides how many instances a producer ever
// creates. The two built-in strategies are [Singleton] and [Transient];
// the set is closed because producers rely on the strategy's locking
// discipline.
type Lifetime interface {
	// String returns the human-readable name of the lifetime.
	String() string

	// instance materializes a value for the producer, applying the
	// strategy's caching policy.
	instance(p *Producer) (reflect.Value, error)
}

var (
	// Singleton is the default lifetime. The build recipe runs at most once
	// for the life of the container, no matter how many goroutines resolve
	// the service concurrently, and every resolution returns the same
	// instance.
	Singleton Lifetime = singletonLifetime{}

	// Transient runs the build recipe on every resolution. Nothing is
	// cached; recipes must be safe to invoke concurrently.
	Transient Lifetime = transientLifetime{}
)

// ---------------------------------------------------------------------------
// Singleton
// ---------------------------------------------------------------------------

type singletonLifetime struct{}

func (singletonLifetime) String() string { return "singleton" }

// instance returns the producer's cached value, constructing it on first
// use. The fast path is a single atomic load; the slow path re-checks the
// cache under the producer's own mutex (double-checked) so racing goroutines
// construct at most one instance between them. The mutex is per producer:
// unrelated singletons never contend.
func (singletonLifetime) instance(p *Producer) (reflect.Value, error) {
	if v := p.cached.Load(); v != nil {
		return *v, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if v := p.cached.Load(); v != nil {
		return *v, nil
	}

	v, err := p.construct()
	if err != nil {
		// Not stored: a later call re-attempts construction and fails the
		// same way for deterministic recipes.
		return reflect.Value{}, err
	}

	p.cached.Store(&v)
	if p.inner == nil {
		// Delegates only relay a value the inner producer already built and
		// recorded.
		p.owner.recordCloser(v)
	}
	return v, nil
}

// ---------------------------------------------------------------------------
// Transient
// ---------------------------------------------------------------------------

type transientLifetime struct{}

func (transientLifetime) String() string { return "transient" }

func (transientLifetime) instance(p *Producer) (reflect.Value, error) {
	return p.construct()
}
