// Package alder provides a reflection-based dependency injection container
// for Go, built around lazily resolved producers.
//
// Alder wires dependencies through constructor functions. Register
// constructors with the container, then retrieve fully-assembled objects
// with [Resolve] or [ResolveNamed]. There is no build step: the first
// resolution of any kind locks the container against further registration,
// and each service is constructed the first time it is needed.
//
// # Quick Start
//
//	c := alder.New()
//	c.Register(NewLogger)
//	c.Register(NewDatabase)
//
//	db, err := alder.Resolve[*Database](c)
//
// # Lifetimes
//
// [Singleton] (default): the build recipe runs at most once for the life of
// the container, no matter how many goroutines resolve concurrently, and
// every resolution returns the same instance.
//
// [Transient]: a fresh instance on every resolution.
//
//	c.Register(NewRequestTracer, alder.WithLifetime(alder.Transient))
//
// # Collections
//
// A collection is an ordered set of implementations of one element type.
// Candidates are appended while the container is open and resolve lazily,
// slot by slot; resolving []T builds every element in append order:
//
//	handlerType := reflect.TypeOf((*Handler)(nil)).Elem()
//	c.RegisterCollection(handlerType,
//		reflect.TypeOf(&AuditHandler{}),
//		reflect.TypeOf(&MetricsHandler{}),
//	)
//
//	handlers, err := alder.ResolveAll[Handler](c)
//
// # Named Services
//
// When you need several implementations of the same return type, use named
// registration:
//
//	c.RegisterNamed("mysql", NewMySQLDB)
//	c.RegisterNamed("postgres", NewPostgresDB)
//
//	db, _ := alder.ResolveNamed[Database](c, "postgres")
package alder
