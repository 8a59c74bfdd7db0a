package alder

import (
	"io"
	"reflect"

	"github.com/sirupsen/logrus"
)

// Option configures a single registration.
type Option func(*registrationSettings)

// WithLifetime sets the [Lifetime] of the registration. The default is the
// container's default lifetime ([Singleton] unless changed with
// [WithDefaultLifetime]).
func WithLifetime(l Lifetime) Option {
	return func(s *registrationSettings) {
		s.lifetime = l
	}
}

// WithServiceType registers the value under t instead of the constructor's
// return type (or the instance's dynamic type). The built value must be
// assignable to t. This is how an instance or a concretely-typed constructor
// is registered under an interface:
//
//	c.RegisterInstance(&consoleLogger{}, alder.WithServiceType(reflect.TypeOf((*Logger)(nil)).Elem()))
func WithServiceType(t reflect.Type) Option {
	return func(s *registrationSettings) {
		s.serviceType = t
	}
}

func applyOptions(opts []Option) registrationSettings {
	var s registrationSettings
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// ---------------------------------------------------------------------------
// Container options
// ---------------------------------------------------------------------------

// ContainerOption configures a container at creation time.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	defaultLifetime    Lifetime
	logger             logrus.FieldLogger
	concreteResolution bool
}

func defaultConfig() containerConfig {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return containerConfig{
		defaultLifetime:    Singleton,
		logger:             discard,
		concreteResolution: true,
	}
}

// WithDefaultLifetime sets the lifetime used when a registration carries no
// explicit [WithLifetime] option, and for producers the container creates on
// its own for unregistered concrete types.
func WithDefaultLifetime(l Lifetime) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.defaultLifetime = l
	}
}

// WithLogger routes the container's diagnostic events (lock transition,
// implicit registrations, verification, shutdown) to the given logger. By
// default they are discarded.
func WithLogger(l logrus.FieldLogger) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.logger = l
	}
}

// WithConcreteResolution controls whether resolving an unregistered struct
// or pointer-to-struct type fabricates an implicit producer for it (enabled
// by default). Disable it to make every resolution require an explicit
// registration. Collection slot fallback is not affected.
func WithConcreteResolution(enabled bool) ContainerOption {
	return func(cfg *containerConfig) {
		cfg.concreteResolution = enabled
	}
}
