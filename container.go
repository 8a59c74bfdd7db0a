package alder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Container defines the interface for the dependency injection container.
// Use [New] to create an instance.
//
// A container has two phases. While open, services are registered with the
// Register methods and collections are assembled with
// [Container.RegisterCollection] or [Container.Collection]. The first
// resolution of any kind locks the container: from then on the
// configuration is immutable and every structural change fails with
// [ErrLocked]. There is no unlock.
type Container interface {
	// Register adds a constructor for its return type. The constructor must
	// be a non-variadic function with the signature func(deps...) T or
	// func(deps...) (T, error); dependencies are expressed as parameters and
	// resolved by type. Use [WithServiceType] to register under an interface
	// the return type implements, and [WithLifetime] to override the
	// container's default lifetime.
	Register(constructor interface{}, opts ...Option) error

	// RegisterInstance adds a pre-built value. The value must not be nil,
	// typed or untyped. Instance registrations are always singletons; the
	// container returns the same value on every resolution and never closes
	// it on shutdown, since it did not build it.
	RegisterInstance(instance interface{}, opts ...Option) error

	// RegisterNamed adds a named constructor. Named producers live in a
	// separate namespace and are resolved via [Container.ResolveNamed] or
	// the generic [ResolveNamed] helper; they are invisible to dependency
	// resolution by type.
	RegisterNamed(name string, constructor interface{}, opts ...Option) error

	// RegisterCollection appends candidate types to the collection of elem,
	// creating the collection if needed. Candidates resolve lazily on first
	// access; see [Collection] for the fallback rules.
	RegisterCollection(elem reflect.Type, candidates ...reflect.Type) error

	// NewRegistration builds a validated registration without adding it to
	// the container. The result can be appended to a collection of the same
	// container with [Collection.Append].
	NewRegistration(constructor interface{}, opts ...Option) (*Registration, error)

	// Collection returns the collection of elem, creating an empty one when
	// none exists yet. Creation fails once the container is locked; an
	// existing collection is returned in any phase.
	Collection(elem reflect.Type) (*Collection, error)

	// GetRegistration returns the producer serving t, fabricating an
	// implicit one for unregistered concrete types when concrete resolution
	// is enabled. The lookup counts as the start of resolution and locks the
	// container.
	GetRegistration(t reflect.Type) (*Producer, bool)

	// Resolve returns the value for the given type. For [Singleton]
	// producers the cached instance is returned; for [Transient] producers
	// a new instance is constructed on each call. Prefer the generic
	// [Resolve] helper over calling this method directly.
	Resolve(t reflect.Type) (reflect.Value, error)

	// ResolveNamed returns the value for the named producer. The requested
	// type t must be assignable from the producer's service type. Prefer
	// the generic [ResolveNamed] helper over calling this method directly.
	ResolveNamed(name string, t reflect.Type) (reflect.Value, error)

	// ResolveAll builds the collection registered for elem and returns a
	// fresh []elem slice in append order. Prefer the generic [ResolveAll]
	// helper over calling this method directly.
	ResolveAll(elem reflect.Type) (reflect.Value, error)

	// Verify locks the container, resolves every registered producer and
	// collection slot, and builds every instance once, reporting the first
	// failure. Singletons built during verification stay cached.
	Verify() error

	// Locked reports whether the container has started resolving. Locked is
	// advisory for callers; registrations racing the first resolution are
	// not serialized against it.
	Locked() bool

	// ID returns the container's unique identity, used to reject
	// registrations that belong to a different container.
	ID() string

	// Shutdown closes all singleton instances the container built that
	// implement [io.Closer], in reverse construction order (dependents are
	// closed before their dependencies). The context controls the overall
	// deadline; if it expires, remaining closers are skipped and the
	// context error is included in the result.
	//
	// Shutdown is safe to call multiple times; subsequent calls return
	// [ErrAlreadyShutdown]. It is the caller's responsibility to stop
	// resolving before or during shutdown.
	Shutdown(ctx context.Context) error
}

type container struct {
	id string

	mu          sync.RWMutex
	producers   map[reflect.Type]*Producer
	named       map[string]*Producer
	collections map[reflect.Type]*Collection

	// locked flips once, at the first resolution of any kind, never back.
	locked atomic.Bool

	// planMu serializes build-plan assembly across the whole container;
	// planning is the DFS path set used for cycle detection. Recipes never
	// run while planMu is held.
	planMu   sync.Mutex
	planning map[*Producer]bool

	// closers holds container-built singletons that implement io.Closer, in
	// construction order. Shutdown iterates them in reverse.
	closerMu  sync.Mutex
	closers   []io.Closer
	closerSet map[io.Closer]struct{}

	shutdown atomic.Bool

	defaultLifetime    Lifetime
	logger             logrus.FieldLogger
	concreteResolution bool
}

// New creates an empty [Container] ready for registration.
func New(opts ...ContainerOption) Container {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &container{
		id:                 uuid.NewString(),
		producers:          make(map[reflect.Type]*Producer),
		named:              make(map[string]*Producer),
		collections:        make(map[reflect.Type]*Collection),
		planning:           make(map[*Producer]bool),
		closerSet:          make(map[io.Closer]struct{}),
		defaultLifetime:    cfg.defaultLifetime,
		logger:             cfg.logger,
		concreteResolution: cfg.concreteResolution,
	}
}

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

func (c *container) Register(constructor interface{}, opts ...Option) error {
	reg, err := newConstructorRegistration(c, constructor, applyOptions(opts))
	if err != nil {
		return &ConfigurationError{Op: "Register", Err: err}
	}
	return c.addProducer("Register", reg)
}

func (c *container) RegisterInstance(instance interface{}, opts ...Option) error {
	reg, err := newInstanceRegistration(c, instance, applyOptions(opts))
	if err != nil {
		return &ConfigurationError{Op: "RegisterInstance", Err: err}
	}
	return c.addProducer("RegisterInstance", reg)
}

func (c *container) RegisterNamed(name string, constructor interface{}, opts ...Option) error {
	if name == "" {
		return &ConfigurationError{Op: "RegisterNamed", Err: errors.New("name cannot be empty")}
	}
	reg, err := newConstructorRegistration(c, constructor, applyOptions(opts))
	if err != nil {
		return &ConfigurationError{Op: "RegisterNamed", Err: err}
	}
	if err := c.guardMutation("RegisterNamed", reg.serviceType); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.named[name]; exists {
		return &ConfigurationError{
			Op:          "RegisterNamed",
			ServiceType: reg.serviceType,
			Err:         fmt.Errorf("%w: named %q", ErrDuplicateRegistration, name),
		}
	}
	c.named[name] = reg.producer(OriginExplicit)

	c.logger.WithFields(logrus.Fields{
		"name":     name,
		"service":  reg.serviceType.String(),
		"lifetime": reg.lifetime.String(),
	}).Debug("named service registered")
	return nil
}

func (c *container) NewRegistration(constructor interface{}, opts ...Option) (*Registration, error) {
	reg, err := newConstructorRegistration(c, constructor, applyOptions(opts))
	if err != nil {
		return nil, &ConfigurationError{Op: "NewRegistration", Err: err}
	}
	return reg, nil
}

func (c *container) addProducer(op string, reg *Registration) error {
	if err := c.guardMutation(op, reg.serviceType); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.producers[reg.serviceType]; exists {
		return &ConfigurationError{Op: op, ServiceType: reg.serviceType, Err: ErrDuplicateRegistration}
	}
	c.producers[reg.serviceType] = reg.producer(OriginExplicit)

	c.logger.WithFields(logrus.Fields{
		"service":  reg.serviceType.String(),
		"lifetime": reg.lifetime.String(),
	}).Debug("service registered")
	return nil
}

// ---------------------------------------------------------------------------
// Collections
// ---------------------------------------------------------------------------

func (c *container) RegisterCollection(elem reflect.Type, candidates ...reflect.Type) error {
	col, err := c.Collection(elem)
	if err != nil {
		return err
	}
	for _, t := range candidates {
		if err := col.AppendType(t); err != nil {
			return err
		}
	}
	return nil
}

func (c *container) Collection(elem reflect.Type) (*Collection, error) {
	if elem == nil {
		return nil, &ConfigurationError{Op: "Collection", Err: errors.New("nil element type")}
	}

	c.mu.RLock()
	col := c.collections[elem]
	c.mu.RUnlock()
	if col != nil {
		return col, nil
	}

	if err := c.guardMutation("Collection", elem); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if col := c.collections[elem]; col != nil {
		return col, nil
	}
	col = newCollection(c, elem)
	c.collections[elem] = col

	c.logger.WithFields(logrus.Fields{"collection": elem.String()}).Debug("collection registered")
	return col, nil
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

func (c *container) GetRegistration(t reflect.Type) (*Producer, bool) {
	if t == nil {
		return nil, false
	}
	c.ensureLocked()

	p, err := c.resolveProducer(t, c.concreteResolution)
	if err != nil {
		return nil, false
	}
	return p, true
}

func (c *container) Resolve(t reflect.Type) (reflect.Value, error) {
	if t == nil {
		return reflect.Value{}, fmt.Errorf("%w: <nil>", ErrNotRegistered)
	}
	c.ensureLocked()

	p, err := c.resolveProducer(t, c.concreteResolution)
	if err != nil {
		return reflect.Value{}, err
	}
	return p.value()
}

func (c *container) ResolveNamed(name string, t reflect.Type) (reflect.Value, error) {
	c.ensureLocked()

	c.mu.RLock()
	p := c.named[name]
	c.mu.RUnlock()
	if p == nil {
		return reflect.Value{}, fmt.Errorf("%w: named %q", ErrNotRegistered, name)
	}
	if t != nil && !p.serviceType.AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("named %q provides %s, not assignable to %s", name, p.serviceType, t)
	}
	return p.value()
}

func (c *container) ResolveAll(elem reflect.Type) (reflect.Value, error) {
	if elem == nil {
		return reflect.Value{}, fmt.Errorf("%w: collection of <nil>", ErrNotRegistered)
	}
	c.ensureLocked()

	c.mu.RLock()
	col := c.collections[elem]
	c.mu.RUnlock()
	if col == nil {
		return reflect.Value{}, fmt.Errorf("%w: collection of %s", ErrNotRegistered, elem)
	}
	return col.sliceProducer().value()
}

// lookupProducer returns the typed producer for t, if any.
func (c *container) lookupProducer(t reflect.Type) *Producer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.producers[t]
}

// resolveProducer finds or fabricates the producer serving t: the typed
// registry first, then the []T view of a registered collection, and last,
// when allowed, an implicit producer for an unregistered concrete type.
func (c *container) resolveProducer(t reflect.Type, allowConcrete bool) (*Producer, error) {
	if p := c.lookupProducer(t); p != nil {
		return p, nil
	}

	if t.Kind() == reflect.Slice {
		c.mu.RLock()
		col := c.collections[t.Elem()]
		c.mu.RUnlock()
		if col != nil {
			return col.sliceProducer(), nil
		}
	}

	if allowConcrete && isConcrete(t) {
		return c.implicitProducer(t)
	}

	return nil, fmt.Errorf("%w: %s", ErrNotRegistered, t)
}

// implicitProducer fabricates and publishes a producer for an unregistered
// concrete type. Publication makes the fabrication observable: the same
// producer serves every later request for t, standalone or in a collection
// slot.
func (c *container) implicitProducer(t reflect.Type) (*Producer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p := c.producers[t]; p != nil {
		return p, nil
	}

	reg := newConcreteRegistration(c, t, c.defaultLifetime)
	p := newProducer(reg, OriginImplicit)
	c.producers[t] = p

	c.logger.WithFields(logrus.Fields{
		"service":  t.String(),
		"lifetime": c.defaultLifetime.String(),
	}).Debug("implicit registration created")
	return p, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// ensureLocked flips the container to locked on the first resolution of any
// kind. The transition is one-way.
func (c *container) ensureLocked() {
	if c.locked.CompareAndSwap(false, true) {
		c.logger.WithFields(logrus.Fields{"container": c.id}).Debug("container locked")
	}
}

func (c *container) Locked() bool { return c.locked.Load() }

func (c *container) ID() string { return c.id }

func (c *container) Verify() error {
	c.ensureLocked()

	c.mu.RLock()
	producers := make([]*Producer, 0, len(c.producers)+len(c.named))
	for _, p := range c.producers {
		producers = append(producers, p)
	}
	for _, p := range c.named {
		producers = append(producers, p)
	}
	collections := make([]*Collection, 0, len(c.collections))
	for _, col := range c.collections {
		collections = append(collections, col)
	}
	c.mu.RUnlock()

	for _, p := range producers {
		if _, err := p.Instance(); err != nil {
			return &ConfigurationError{Op: "Verify", ServiceType: p.serviceType, Err: err}
		}
	}
	for _, col := range collections {
		if err := col.Verify(); err != nil {
			return err
		}
	}

	c.logger.WithFields(logrus.Fields{
		"container":   c.id,
		"services":    len(producers),
		"collections": len(collections),
	}).Debug("container verified")
	return nil
}

func (c *container) Shutdown(ctx context.Context) error {
	if !c.shutdown.CompareAndSwap(false, true) {
		return ErrAlreadyShutdown
	}
	c.ensureLocked()

	c.closerMu.Lock()
	closers := c.closers
	c.closers = nil
	c.closerMu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"container": c.id,
		"closers":   len(closers),
	}).Debug("container shutting down")

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// guardMutation rejects structural changes on locked or shut-down
// containers. The check is advisory against racing resolutions; callers must
// not register concurrently with resolving.
func (c *container) guardMutation(op string, t reflect.Type) error {
	if c.shutdown.Load() {
		return &ConfigurationError{Op: op, ServiceType: t, Err: ErrAlreadyShutdown}
	}
	if c.locked.Load() {
		return &ConfigurationError{Op: op, ServiceType: t, Err: ErrLocked}
	}
	return nil
}

func (c *container) checkOwnership(reg *Registration) error {
	if reg.owner != c {
		return fmt.Errorf("%w: created by container %s, offered to %s", ErrForeignRegistration, reg.owner.id, c.id)
	}
	return nil
}

// recordCloser remembers singletons the container built that implement
// [io.Closer], in construction order, deduplicated by identity so an
// instance shared between recipes is closed once.
func (c *container) recordCloser(v reflect.Value) {
	closer, ok := v.Interface().(io.Closer)
	if !ok {
		return
	}

	c.closerMu.Lock()
	defer c.closerMu.Unlock()
	if reflect.TypeOf(closer).Comparable() {
		if _, dup := c.closerSet[closer]; dup {
			return
		}
		c.closerSet[closer] = struct{}{}
	}
	c.closers = append(c.closers, closer)
}
