package alder

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// recipeKind selects how a registration builds its value.
type recipeKind int

const (
	// recipeConstructor invokes a user constructor function, resolving its
	// parameters from the container.
	recipeConstructor recipeKind = iota

	// recipeInstance returns a pre-built value.
	recipeInstance

	// recipeConcrete fabricates the zero value of a struct or
	// pointer-to-struct type.
	recipeConcrete
)

// Registration describes how to build a value of one service type: a
// constructor to invoke, a pre-built instance to return, or a concrete type
// to fabricate. A registration belongs to exactly one container and cannot
// be attached to another. All views of a registration, standalone or inside
// collections, share a single producer and with it a single lifetime cache.
type Registration struct {
	serviceType reflect.Type
	lifetime    Lifetime
	kind        recipeKind

	constructor reflect.Value // recipeConstructor
	value       reflect.Value // recipeInstance
	concrete    reflect.Type  // recipeConcrete

	owner *container

	prodMu sync.Mutex
	prod   *Producer
}

// ServiceType returns the type this registration can satisfy.
func (r *Registration) ServiceType() reflect.Type { return r.serviceType }

// Lifetime returns the lifetime strategy the registration was created with.
func (r *Registration) Lifetime() Lifetime { return r.lifetime }

// producer returns the one producer built from this registration, creating
// it on first use. The origin of the creating view sticks.
func (r *Registration) producer(origin Origin) *Producer {
	r.prodMu.Lock()
	defer r.prodMu.Unlock()
	if r.prod == nil {
		r.prod = newProducer(r, origin)
	}
	return r.prod
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

// newConstructorRegistration validates the constructor shape the same way
// for Register, RegisterNamed, NewRegistration and collection bulk entries:
// a non-variadic function returning (T) or (T, error).
func newConstructorRegistration(c *container, constructor interface{}, settings registrationSettings) (*Registration, error) {
	if constructor == nil {
		return nil, errors.New("constructor cannot be nil")
	}

	val := reflect.ValueOf(constructor)
	typ := val.Type()

	if typ.Kind() != reflect.Func {
		return nil, errors.New("constructor must be a function")
	}
	if typ.IsVariadic() {
		return nil, errors.New("constructor must not be variadic")
	}
	if typ.NumOut() == 0 || typ.NumOut() > 2 {
		return nil, errors.New("constructor must return (T) or (T, error)")
	}
	if typ.NumOut() == 2 && !typ.Out(1).Implements(errType) {
		return nil, errors.New("second return value must implement error")
	}

	serviceType := typ.Out(0)
	if settings.serviceType != nil {
		if !typ.Out(0).AssignableTo(settings.serviceType) {
			return nil, fmt.Errorf("constructor returns %s, not assignable to %s", typ.Out(0), settings.serviceType)
		}
		serviceType = settings.serviceType
	}

	return &Registration{
		serviceType: serviceType,
		lifetime:    settings.lifetimeOr(c.defaultLifetime),
		kind:        recipeConstructor,
		constructor: val,
		owner:       c,
	}, nil
}

// newInstanceRegistration wraps a pre-built value. Instance registrations
// are always singletons: there is nothing left to construct, so combining
// them with an explicit lifetime is a configuration error. Nil values are
// rejected whether untyped or typed, since a nil pointer boxed in an
// interface would otherwise pre-populate the singleton cache with nothing.
func newInstanceRegistration(c *container, value interface{}, settings registrationSettings) (*Registration, error) {
	if value == nil {
		return nil, errors.New("instance cannot be nil")
	}
	if settings.lifetime != nil {
		return nil, errors.New("instance registrations are always singletons")
	}

	val := reflect.ValueOf(value)
	if isNilValue(val) {
		return nil, fmt.Errorf("instance cannot be a nil %s", val.Type())
	}
	serviceType := val.Type()
	if settings.serviceType != nil {
		if !serviceType.AssignableTo(settings.serviceType) {
			return nil, fmt.Errorf("instance of %s is not assignable to %s", serviceType, settings.serviceType)
		}
		serviceType = settings.serviceType
	}

	return &Registration{
		serviceType: serviceType,
		lifetime:    Singleton,
		kind:        recipeInstance,
		value:       val,
		owner:       c,
	}, nil
}

// newConcreteRegistration fabricates instances of t by zero construction:
// reflect.New for pointer-to-struct candidates, the zero value for struct
// candidates. Callers must have checked isConcrete(t) first.
func newConcreteRegistration(c *container, t reflect.Type, lifetime Lifetime) *Registration {
	return &Registration{
		serviceType: t,
		lifetime:    lifetime,
		kind:        recipeConcrete,
		concrete:    t,
		owner:       c,
	}
}

// isConcrete reports whether the container can fabricate t without a
// registration. Only structs and pointers to structs qualify; interfaces,
// functions, channels, maps, slices and scalars need an explicit recipe.
func isConcrete(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Struct {
		return true
	}
	return t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct
}

// registrationSettings collects the effect of registration [Option]s.
type registrationSettings struct {
	lifetime    Lifetime
	serviceType reflect.Type
}

func (s registrationSettings) lifetimeOr(fallback Lifetime) Lifetime {
	if s.lifetime != nil {
		return s.lifetime
	}
	return fallback
}
