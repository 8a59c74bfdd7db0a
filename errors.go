package alder

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrLocked is returned when a registration or append is attempted after
	// the container has started resolving. The first resolution of any kind
	// locks the container for structural changes.
	ErrLocked = errors.New("container is locked")

	// ErrForeignRegistration is returned when a registration created by one
	// container is attached to another. The error message names both
	// container IDs.
	ErrForeignRegistration = errors.New("registration belongs to a different container")

	// ErrNotRegistered is returned when no producer is registered for the
	// requested type or name and none can be derived.
	ErrNotRegistered = errors.New("no registration found")

	// ErrCircularDependency is returned when the dependency graph contains a
	// cycle. The error message includes the full chain.
	ErrCircularDependency = errors.New("circular dependency detected")

	// ErrDuplicateRegistration is returned when a typed or named producer is
	// registered more than once.
	ErrDuplicateRegistration = errors.New("duplicate registration")

	// ErrNilInstance is returned, wrapped in an [ActivationError], when a
	// build recipe produces a nil or invalid instance.
	ErrNilInstance = errors.New("recipe produced no instance")

	// ErrUnresolvableType is returned, wrapped in an
	// [UnresolvableTypeError], when a collection candidate type is neither
	// explicitly registered nor concrete.
	ErrUnresolvableType = errors.New("type cannot be resolved")

	// ErrAlreadyShutdown is returned when Shutdown is called more than once.
	ErrAlreadyShutdown = errors.New("container already shut down")
)

// ConfigurationError reports structural misuse detectable at registration
// time: registering or appending on a locked container, attaching a foreign
// registration, nil arguments, malformed constructors. It is always returned
// synchronously from the offending call, never deferred to resolution.
type ConfigurationError struct {
	// Op is the operation that was misused, e.g. "Register" or "Append".
	Op string

	// ServiceType is the service the operation concerned, if known.
	ServiceType reflect.Type

	// Err is the underlying cause, typically one of the sentinel errors.
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.ServiceType != nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ServiceType, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ActivationError reports a failure during lazy construction: a recipe that
// returned an error or produced no instance. It surfaces at the first
// resolution or enumeration that needs the instance, and again at every
// subsequent one; construction failures are re-attempted, never cached.
type ActivationError struct {
	// ServiceType is the service whose construction failed.
	ServiceType reflect.Type

	// Err is the original cause, preserved for errors.Is and errors.As.
	Err error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("activating %s: %v", e.ServiceType, e.Err)
}

func (e *ActivationError) Unwrap() error { return e.Err }

// UnresolvableTypeError reports a collection candidate type that is neither
// explicitly registered nor concrete, so no resolution fallback can supply a
// producer for it.
type UnresolvableTypeError struct {
	// Type is the candidate that could not be resolved.
	Type reflect.Type
}

func (e *UnresolvableTypeError) Error() string {
	return fmt.Sprintf("%s: %v: not registered and not a concrete type", e.Type, ErrUnresolvableType)
}

func (e *UnresolvableTypeError) Unwrap() error { return ErrUnresolvableType }
