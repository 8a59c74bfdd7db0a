package alder

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
)

// Origin records how a producer came to exist in the container, so that
// diagnostics can tell configured services from fabricated ones.
type Origin int

const (
	// OriginExplicit marks producers created by a direct Register call.
	OriginExplicit Origin = iota

	// OriginImplicit marks producers the container fabricated to resolve an
	// unregistered concrete type requested standalone.
	OriginImplicit

	// OriginCollection marks producers that exist only to serve a
	// collection slot: tier-3 fallbacks and element-type wrappers.
	OriginCollection
)

// String returns the human-readable name of the origin.
func (o Origin) String() string {
	switch o {
	case OriginExplicit:
		return "explicit"
	case OriginImplicit:
		return "implicit"
	case OriginCollection:
		return "collection"
	default:
		return "unknown"
	}
}

// Relationship is one dependency edge known to a producer: the consumer
// service type and the producer that satisfies the dependency.
type Relationship struct {
	Consumer   reflect.Type
	Dependency *Producer
}

type planFunc func() (reflect.Value, error)

// Producer binds one service type to a lifetime-wrapped build recipe and
// caches the outcome of applying it. Producers are handed out by
// [Container.GetRegistration] and by collections; they are never constructed
// directly.
type Producer struct {
	serviceType reflect.Type
	reg         *Registration // nil for delegate and slice producers
	col         *Collection   // non-nil only for collection slice producers
	inner       *Producer     // non-nil only for delegate producers
	lifetime    Lifetime
	origin      Origin
	owner       *container

	// mu guards first construction for the singleton slow path. It is owned
	// by this producer alone; unrelated producers never share a lock.
	mu     sync.Mutex
	cached atomic.Pointer[reflect.Value]

	// plan is the dependency-resolved build closure, assembled at most once
	// under the owner's plan mutex. deps is written together with it.
	plan atomic.Pointer[planFunc]
	deps []Relationship
}

func newProducer(reg *Registration, origin Origin) *Producer {
	p := &Producer{
		serviceType: reg.serviceType,
		reg:         reg,
		lifetime:    reg.lifetime,
		origin:      origin,
		owner:       reg.owner,
	}
	if reg.kind == recipeInstance {
		// Pre-built values skip construction entirely: the cache starts
		// populated and the plan is a constant.
		v := reg.value
		p.cached.Store(&v)
		fn := planFunc(func() (reflect.Value, error) { return v, nil })
		p.plan.Store(&fn)
	}
	return p
}

// newDelegateProducer exposes an already-registered producer under a
// collection's element type. Delegation preserves the inner producer's
// lifetime and caching; the wrapper never constructs anything itself.
func newDelegateProducer(serviceType reflect.Type, inner *Producer) *Producer {
	return &Producer{
		serviceType: serviceType,
		inner:       inner,
		lifetime:    inner.lifetime,
		origin:      OriginCollection,
		owner:       inner.owner,
	}
}

// ServiceType returns the abstract type this producer satisfies.
func (p *Producer) ServiceType() reflect.Type { return p.serviceType }

// Lifetime returns the lifetime strategy applied to the build recipe.
func (p *Producer) Lifetime() Lifetime { return p.lifetime }

// Origin reports how the producer came to exist.
func (p *Producer) Origin() Origin { return p.origin }

// Instance returns the service instance, constructing it according to the
// producer's lifetime. For [Singleton] producers the underlying recipe runs
// at most once ever; every call returns the same instance.
func (p *Producer) Instance() (interface{}, error) {
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	return v.Interface(), nil
}

// Relationships returns the dependency edges this producer's recipe is known
// to consume, as recorded while assembling its build plan.
func (p *Producer) Relationships() ([]Relationship, error) {
	p.owner.ensureLocked()
	if err := p.owner.ensurePlan(p); err != nil {
		return nil, err
	}
	return append([]Relationship(nil), p.deps...), nil
}

// value builds the plan if needed and applies the lifetime strategy.
func (p *Producer) value() (reflect.Value, error) {
	p.owner.ensureLocked()
	if p.plan.Load() == nil {
		if err := p.owner.ensurePlan(p); err != nil {
			return reflect.Value{}, err
		}
	}
	return p.lifetime.instance(p)
}

// construct runs the build plan once and validates its output. Called by
// lifetime strategies only; callers must have ensured the plan exists.
func (p *Producer) construct() (reflect.Value, error) {
	fn := p.plan.Load()
	if fn == nil {
		if err := p.owner.ensurePlan(p); err != nil {
			return reflect.Value{}, err
		}
		fn = p.plan.Load()
	}

	v, err := (*fn)()
	if err != nil {
		return reflect.Value{}, &ActivationError{ServiceType: p.serviceType, Err: err}
	}
	if isNilValue(v) {
		return reflect.Value{}, &ActivationError{ServiceType: p.serviceType, Err: ErrNilInstance}
	}
	return v, nil
}

// isNilValue reports whether a recipe output counts as "no instance".
func isNilValue(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return v.IsNil()
	}
	return false
}

// ---------------------------------------------------------------------------
// Build plans
// ---------------------------------------------------------------------------

// BuildPlan is the consumable description of how to obtain a producer's
// value: either a constant that is already built, or an invocation that
// routes through the producer (so lifetime caching still applies). It is the
// hand-off point for factory-compilation layers on top of the container.
type BuildPlan struct {
	producer *Producer
	constant *reflect.Value
}

// Plan returns the current build plan for the producer. Once a singleton
// instance exists, the plan is a constant holding it; running the plan can
// never re-trigger construction of a built singleton.
func (p *Producer) Plan() (*BuildPlan, error) {
	p.owner.ensureLocked()
	if err := p.owner.ensurePlan(p); err != nil {
		return nil, err
	}
	return &BuildPlan{producer: p, constant: p.cached.Load()}, nil
}

// ServiceType returns the service type the plan produces.
func (b *BuildPlan) ServiceType() reflect.Type { return b.producer.serviceType }

// Cached returns the already-built instance the plan emits, if it has one.
func (b *BuildPlan) Cached() (interface{}, bool) {
	if b.constant == nil {
		return nil, false
	}
	return b.constant.Interface(), true
}

// Run obtains the planned value. Constants are returned as-is; otherwise the
// producer is invoked with its usual lifetime semantics.
func (b *BuildPlan) Run() (interface{}, error) {
	if b.constant != nil {
		return b.constant.Interface(), nil
	}
	return b.producer.Instance()
}

// ---------------------------------------------------------------------------
// Plan assembly
// ---------------------------------------------------------------------------

// ensurePlan assembles the producer's build plan, resolving and assembling
// every dependency plan it needs. All plan assembly for a container is
// serialized by planMu; recipes themselves never run while it is held, so
// the mutex cannot participate in construction lock cycles.
func (c *container) ensurePlan(p *Producer) error {
	if p.plan.Load() != nil {
		return nil
	}
	c.planMu.Lock()
	defer c.planMu.Unlock()
	return c.assemblePlan(p, nil)
}

// assemblePlan walks the dependency graph depth-first. The planning set and
// stack detect cycles the same way a full eager build would; a failed
// assembly leaves no partial state, so the next attempt starts clean.
func (c *container) assemblePlan(p *Producer, stack []reflect.Type) error {
	if p.plan.Load() != nil {
		return nil
	}
	if c.planning[p] {
		return c.circularError(p.serviceType, stack)
	}

	c.planning[p] = true
	defer delete(c.planning, p)
	stack = append(stack, p.serviceType)

	if p.inner != nil {
		return c.assembleDelegatePlan(p, stack)
	}
	if p.col != nil {
		return c.assembleCollectionPlan(p, stack)
	}

	switch p.reg.kind {
	case recipeInstance:
		// Plan pre-installed at creation.
		return nil

	case recipeConcrete:
		t := p.reg.concrete
		var fn planFunc
		if t.Kind() == reflect.Ptr {
			elem := t.Elem()
			fn = func() (reflect.Value, error) { return reflect.New(elem), nil }
		} else {
			fn = func() (reflect.Value, error) { return reflect.New(t).Elem(), nil }
		}
		p.plan.Store(&fn)
		return nil

	case recipeConstructor:
		return c.assembleConstructorPlan(p, stack)

	default:
		return fmt.Errorf("registration for %s has no recipe", p.serviceType)
	}
}

func (c *container) assembleConstructorPlan(p *Producer, stack []reflect.Type) error {
	fnType := p.reg.constructor.Type()
	deps := make([]*Producer, fnType.NumIn())
	rels := make([]Relationship, 0, fnType.NumIn())

	for i := 0; i < fnType.NumIn(); i++ {
		depType := fnType.In(i)

		dep, err := c.resolveProducer(depType, c.concreteResolution)
		if err != nil {
			return fmt.Errorf("dependency of %s: %w", p.serviceType, err)
		}
		if err := c.assemblePlan(dep, stack); err != nil {
			return err
		}

		deps[i] = dep
		rels = append(rels, Relationship{Consumer: p.serviceType, Dependency: dep})
	}
	p.deps = rels

	ctor := p.reg.constructor
	fn := planFunc(func() (reflect.Value, error) {
		args := make([]reflect.Value, len(deps))
		for i, dep := range deps {
			v, err := dep.value()
			if err != nil {
				return reflect.Value{}, fmt.Errorf("resolving %s: %w", dep.serviceType, err)
			}
			args[i] = v
		}
		results := ctor.Call(args)
		if len(results) == 2 && !results[1].IsNil() {
			return reflect.Value{}, results[1].Interface().(error)
		}
		return results[0], nil
	})
	p.plan.Store(&fn)
	return nil
}

// assembleDelegatePlan routes a wrapper through the producer it stands in
// for, keeping the inner producer on the cycle-detection path.
func (c *container) assembleDelegatePlan(p *Producer, stack []reflect.Type) error {
	inner := p.inner
	if err := c.assemblePlan(inner, stack); err != nil {
		return err
	}
	p.deps = []Relationship{{Consumer: p.serviceType, Dependency: inner}}

	fn := planFunc(func() (reflect.Value, error) {
		return inner.value()
	})
	p.plan.Store(&fn)
	return nil
}

// assembleCollectionPlan builds the []T view of a collection. Every slot is
// resolved here so that cycles running through collection elements are
// caught by the same depth-first walk.
func (c *container) assembleCollectionPlan(p *Producer, stack []reflect.Type) error {
	col := p.col
	producers, err := col.resolveAllSlots()
	if err != nil {
		return err
	}
	rels := make([]Relationship, 0, len(producers))
	for _, sp := range producers {
		if err := c.assemblePlan(sp, stack); err != nil {
			return err
		}
		rels = append(rels, Relationship{Consumer: p.serviceType, Dependency: sp})
	}
	p.deps = rels

	sliceType := p.serviceType
	fn := planFunc(func() (reflect.Value, error) {
		out := reflect.MakeSlice(sliceType, 0, len(producers))
		for _, sp := range producers {
			v, err := sp.value()
			if err != nil {
				return reflect.Value{}, err
			}
			out = reflect.Append(out, v)
		}
		return out, nil
	})
	p.plan.Store(&fn)
	return nil
}

// circularError formats the full dependency chain, ending at the type that
// closed the cycle.
func (c *container) circularError(t reflect.Type, stack []reflect.Type) error {
	chain := make([]string, len(stack)+1)
	for i, s := range stack {
		chain[i] = s.String()
	}
	chain[len(stack)] = t.String()

	return fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(chain, " -> "))
}
