package alder

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

// slotState tracks a collection slot through its lazy resolution.
type slotState int

const (
	slotUnresolved slotState = iota
	slotResolving
	slotResolved
)

// slot is one appended position in a collection: either a candidate type to
// resolve through the fallback chain, or an explicit registration to bind
// directly. Slots resolve to a producer on first access and keep it; a
// failed resolution resets the slot so the next access retries instead of
// replaying a cached error.
type slot struct {
	target reflect.Type  // candidate type, nil when reg is set
	reg    *Registration // explicit recipe, nil when target is set

	mu    sync.Mutex
	state slotState
	prod  *Producer
}

// describe names the slot for error messages.
func (s *slot) describe() reflect.Type {
	if s.reg != nil {
		return s.reg.serviceType
	}
	return s.target
}

// slotResolver is one tier of the candidate fallback chain. It reports
// whether it could bind the candidate; a tier that cannot lets the next one
// try.
type slotResolver func(target reflect.Type) (*Producer, bool, error)

// Collection is an ordered, container-controlled group of producers sharing
// one element type. Candidates are appended while the container is open and
// resolve to producers lazily, slot by slot, on first access. Resolving the
// slice type []T yields a fresh slice of all element instances in append
// order; element instances still honor their own lifetimes.
type Collection struct {
	elemType reflect.Type
	owner    *container

	// mu guards slots and slice. It is held for field access only, never
	// across slot resolution or construction.
	mu    sync.Mutex
	slots []*slot
	slice *Producer

	resolvers []slotResolver
}

func newCollection(c *container, elem reflect.Type) *Collection {
	col := &Collection{elemType: elem, owner: c}
	col.resolvers = []slotResolver{
		col.explicitMatch,
		col.containerResolution,
		col.concreteFallback,
	}
	return col
}

// ServiceType returns the collection's element type.
func (col *Collection) ServiceType() reflect.Type { return col.elemType }

// Len returns the number of appended candidates.
func (col *Collection) Len() int {
	col.mu.Lock()
	defer col.mu.Unlock()
	return len(col.slots)
}

// Append adds an explicit registration to the end of the collection. The
// registration must belong to the same container and its service type must
// be assignable to the element type. Appending fails once the container is
// locked.
func (col *Collection) Append(reg *Registration) error {
	c := col.owner
	if err := c.guardMutation("Append", col.elemType); err != nil {
		return err
	}
	if reg == nil {
		return &ConfigurationError{Op: "Append", ServiceType: col.elemType, Err: errors.New("nil registration")}
	}
	if err := c.checkOwnership(reg); err != nil {
		return &ConfigurationError{Op: "Append", ServiceType: col.elemType, Err: err}
	}
	if !reg.serviceType.AssignableTo(col.elemType) {
		return &ConfigurationError{
			Op:          "Append",
			ServiceType: col.elemType,
			Err:         fmt.Errorf("%s is not assignable to %s", reg.serviceType, col.elemType),
		}
	}

	col.mu.Lock()
	col.slots = append(col.slots, &slot{reg: reg})
	col.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"collection": col.elemType.String(),
		"candidate":  reg.serviceType.String(),
	}).Debug("collection candidate appended")
	return nil
}

// AppendType adds a candidate type to the end of the collection. The
// candidate is not resolved here; the fallback chain runs on first access to
// the slot. The type must be assignable to the element type.
func (col *Collection) AppendType(t reflect.Type) error {
	c := col.owner
	if err := c.guardMutation("AppendType", col.elemType); err != nil {
		return err
	}
	if t == nil {
		return &ConfigurationError{Op: "AppendType", ServiceType: col.elemType, Err: errors.New("nil candidate type")}
	}
	if !t.AssignableTo(col.elemType) {
		return &ConfigurationError{
			Op:          "AppendType",
			ServiceType: col.elemType,
			Err:         fmt.Errorf("%s is not assignable to %s", t, col.elemType),
		}
	}

	col.mu.Lock()
	col.slots = append(col.slots, &slot{target: t})
	col.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"collection": col.elemType.String(),
		"candidate":  t.String(),
	}).Debug("collection candidate appended")
	return nil
}

// Producer resolves the producer occupying slot i. The first access runs the
// fallback chain; every later access returns the same producer.
func (col *Collection) Producer(i int) (*Producer, error) {
	col.owner.ensureLocked()
	s, err := col.slotAt(i)
	if err != nil {
		return nil, err
	}
	return col.resolveCell(s)
}

// Instance resolves slot i and builds its value, honoring the producer's
// lifetime.
func (col *Collection) Instance(i int) (interface{}, error) {
	p, err := col.Producer(i)
	if err != nil {
		return nil, err
	}
	return p.Instance()
}

// Instances resolves every slot in append order and builds every value.
func (col *Collection) Instances() ([]interface{}, error) {
	col.owner.ensureLocked()
	producers, err := col.resolveAllSlots()
	if err != nil {
		return nil, err
	}

	out := make([]interface{}, len(producers))
	for i, p := range producers {
		v, err := p.Instance()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Verify eagerly resolves every slot and builds every element instance,
// surfacing mistakes that lazy resolution would defer to first use.
// Singletons built during verification stay cached.
func (col *Collection) Verify() error {
	col.owner.ensureLocked()
	producers, err := col.resolveAllSlots()
	if err != nil {
		return &ConfigurationError{Op: "Verify", ServiceType: col.elemType, Err: err}
	}
	for _, p := range producers {
		if _, err := p.Instance(); err != nil {
			return &ConfigurationError{Op: "Verify", ServiceType: col.elemType, Err: err}
		}
	}
	return nil
}

// Relationships returns the distinct dependency edges of all element
// producers, in first-seen order.
func (col *Collection) Relationships() ([]Relationship, error) {
	col.owner.ensureLocked()
	producers, err := col.resolveAllSlots()
	if err != nil {
		return nil, err
	}

	seen := make(map[Relationship]struct{})
	var out []Relationship
	for _, p := range producers {
		rels, err := p.Relationships()
		if err != nil {
			return nil, err
		}
		for _, r := range rels {
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out, nil
}

func (col *Collection) slotAt(i int) (*slot, error) {
	col.mu.Lock()
	defer col.mu.Unlock()
	if i < 0 || i >= len(col.slots) {
		return nil, fmt.Errorf("collection %s: index %d out of range with length %d", col.elemType, i, len(col.slots))
	}
	return col.slots[i], nil
}

func (col *Collection) resolveAllSlots() ([]*Producer, error) {
	col.mu.Lock()
	slots := append([]*slot(nil), col.slots...)
	col.mu.Unlock()

	out := make([]*Producer, len(slots))
	for i, s := range slots {
		p, err := col.resolveCell(s)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// resolveCell moves a slot from unresolved to resolved, holding the slot's
// own mutex for the duration of the fallback chain. The chain performs
// registry lookups and producer creation only, never construction, so
// holding the mutex cannot block against running recipes. A failure returns
// the slot to unresolved.
func (col *Collection) resolveCell(s *slot) (*Producer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case slotResolved:
		return s.prod, nil
	case slotResolving:
		return nil, fmt.Errorf("%w: collection slot for %s re-entered during its own resolution", ErrCircularDependency, s.describe())
	}

	s.state = slotResolving
	p, err := col.resolveSlot(s)
	if err != nil {
		s.state = slotUnresolved
		return nil, err
	}

	s.prod = p
	s.state = slotResolved
	return p, nil
}

// resolveSlot binds a slot to its producer. Explicit registrations bind
// directly; candidate types run the fallback chain in order until a tier
// claims the type.
func (col *Collection) resolveSlot(s *slot) (*Producer, error) {
	if s.reg != nil {
		// The registration's producer is shared across every view, so a
		// singleton built through this slot is the same instance the
		// registration yields anywhere else it is appended.
		return col.elemView(s.reg.producer(OriginCollection)), nil
	}

	for _, resolve := range col.resolvers {
		p, ok, err := resolve(s.target)
		if err != nil {
			return nil, err
		}
		if ok {
			return p, nil
		}
	}
	return nil, &UnresolvableTypeError{Type: s.target}
}

// elemView exposes p under the collection's element type. A producer already
// declared with the element type binds as it is; any other match is wrapped
// in a delegate so the slot reports the element type while the inner
// producer keeps its lifetime and cache.
func (col *Collection) elemView(p *Producer) *Producer {
	if p.serviceType == col.elemType {
		return p
	}
	return newDelegateProducer(col.elemType, p)
}

// explicitMatch binds candidates that already have a producer in the
// registry, explicit or implicit.
func (col *Collection) explicitMatch(target reflect.Type) (*Producer, bool, error) {
	p := col.owner.lookupProducer(target)
	if p == nil {
		return nil, false, nil
	}
	return col.elemView(p), true, nil
}

// containerResolution asks the registry to resolve the candidate as if it
// were requested standalone, with concrete fabrication switched off so that
// the decision whether to fabricate stays with the final tier.
func (col *Collection) containerResolution(target reflect.Type) (*Producer, bool, error) {
	p, err := col.owner.resolveProducer(target, false)
	if errors.Is(err, ErrNotRegistered) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return col.elemView(p), true, nil
}

// concreteFallback fabricates a producer for concrete candidates with the
// container's default lifetime. Every slot gets its own producer and the
// fabricated registration is never published to the registry, so two slots
// naming the same concrete type build two separate instances even as
// singletons.
func (col *Collection) concreteFallback(target reflect.Type) (*Producer, bool, error) {
	if !isConcrete(target) {
		return nil, false, nil
	}

	c := col.owner
	reg := newConcreteRegistration(c, target, c.defaultLifetime)
	p := newProducer(reg, OriginCollection)
	p.serviceType = col.elemType

	c.logger.WithFields(logrus.Fields{
		"collection": col.elemType.String(),
		"candidate":  target.String(),
		"lifetime":   c.defaultLifetime.String(),
	}).Debug("collection candidate fabricated")
	return p, true, nil
}

// sliceProducer returns the producer for the []T view of the collection,
// creating it on first use.
func (col *Collection) sliceProducer() *Producer {
	col.mu.Lock()
	defer col.mu.Unlock()
	if col.slice == nil {
		col.slice = &Producer{
			serviceType: reflect.SliceOf(col.elemType),
			col:         col,
			lifetime:    Transient,
			origin:      OriginCollection,
			owner:       col.owner,
		}
	}
	return col.slice
}
