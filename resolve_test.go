package alder

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Resolve
// ---------------------------------------------------------------------------

func TestResolve(t *testing.T) {
	t.Run("singleton returns same instance", func(t *testing.T) {
		c := New()
		mustRegister(t, c, newTestLogger)

		v1, err := c.Resolve(typeOf[*testLogger]())
		require.NoError(t, err)
		v2, err := c.Resolve(typeOf[*testLogger]())
		require.NoError(t, err)
		require.Equal(t, v1.Pointer(), v2.Pointer())
	})

	t.Run("transient returns different instances", func(t *testing.T) {
		c := New()
		mustRegister(t, c, newTestLogger, WithLifetime(Transient))

		v1, err := c.Resolve(typeOf[*testLogger]())
		require.NoError(t, err)
		v2, err := c.Resolve(typeOf[*testLogger]())
		require.NoError(t, err)
		require.NotEqual(t, v1.Pointer(), v2.Pointer())
	})

	t.Run("transient constructor called each time", func(t *testing.T) {
		callCount := 0
		c := New()
		mustRegister(t, c, func() *testLogger {
			callCount++
			return &testLogger{}
		}, WithLifetime(Transient))

		for i := 0; i < 3; i++ {
			_, err := Resolve[*testLogger](c)
			require.NoError(t, err)
		}
		require.Equal(t, 3, callCount)
	})

	t.Run("deep dependency chain fully resolved", func(t *testing.T) {
		c := New()
		mustRegister(t, c, newTestLogger)
		mustRegister(t, c, newTestConfig)
		mustRegister(t, c, newTestDatabase)
		mustRegister(t, c, newTestUserRepo)
		mustRegister(t, c, newTestUserService)

		svc, err := Resolve[*testUserService](c)
		require.NoError(t, err)
		require.NotNil(t, svc.Repo)
		require.NotNil(t, svc.Repo.DB)
		require.NotNil(t, svc.Repo.DB.Config)
		require.Equal(t, "postgres://localhost", svc.Repo.DB.Config.DSN)
		require.NotNil(t, svc.Logger)
	})

	t.Run("singletons share instances across dependents", func(t *testing.T) {
		c := New()
		mustRegister(t, c, newTestLogger)
		mustRegister(t, c, newTestConfig)
		mustRegister(t, c, newTestDatabase)
		mustRegister(t, c, newTestUserRepo)
		mustRegister(t, c, newTestUserService)

		svc, err := Resolve[*testUserService](c)
		require.NoError(t, err)
		repo, err := Resolve[*testUserRepo](c)
		require.NoError(t, err)
		logger, err := Resolve[*testLogger](c)
		require.NoError(t, err)

		require.Same(t, logger, svc.Logger)
		require.Same(t, logger, repo.Logger)
		require.Same(t, logger, repo.DB.Logger)
	})

	t.Run("transient with singleton dependency shares singleton", func(t *testing.T) {
		c := New()
		mustRegister(t, c, newTestLogger)
		mustRegister(t, c, newTestOrderService, WithLifetime(Transient))

		s1, err := Resolve[*testOrderService](c)
		require.NoError(t, err)
		s2, err := Resolve[*testOrderService](c)
		require.NoError(t, err)

		require.NotSame(t, s1, s2)
		require.Same(t, s1.Logger, s2.Logger)
	})

	t.Run("singleton depending on transient captures one instance", func(t *testing.T) {
		callCount := 0
		c := New()
		mustRegister(t, c, func() *testLogger {
			callCount++
			return &testLogger{Prefix: fmt.Sprintf("v%d", callCount)}
		}, WithLifetime(Transient))
		mustRegister(t, c, newTestOrderService)

		s1, err := Resolve[*testOrderService](c)
		require.NoError(t, err)
		s2, err := Resolve[*testOrderService](c)
		require.NoError(t, err)

		require.Same(t, s1, s2)
		require.Equal(t, "v1", s1.Logger.Prefix)
	})

	t.Run("unregistered interface returns ErrNotRegistered", func(t *testing.T) {
		c := New()
		mustRegister(t, c, newTestLogger)

		_, err := c.Resolve(typeOf[testService]())
		require.ErrorIs(t, err, ErrNotRegistered)
	})

	t.Run("nil type returns ErrNotRegistered", func(t *testing.T) {
		c := New()
		_, err := c.Resolve(nil)
		require.ErrorIs(t, err, ErrNotRegistered)
	})
}

// ---------------------------------------------------------------------------
// Generic Resolve helper
// ---------------------------------------------------------------------------

func TestResolveGeneric(t *testing.T) {
	c := New()
	mustRegister(t, c, newTestLogger)

	logger, err := Resolve[*testLogger](c)
	require.NoError(t, err)
	require.Equal(t, "app", logger.Prefix)
}

// ---------------------------------------------------------------------------
// Resolve with interface types
// ---------------------------------------------------------------------------

func TestResolve_Interface(t *testing.T) {
	c := New()
	mustRegister(t, c, func() testService {
		return &testUserService{Logger: &testLogger{Prefix: "iface"}}
	})

	svc, err := Resolve[testService](c)
	require.NoError(t, err)
	require.Equal(t, "user", svc.Name())
}

// ---------------------------------------------------------------------------
// ResolveNamed
// ---------------------------------------------------------------------------

func TestResolveNamed(t *testing.T) {
	t.Run("resolves no-dep named service", func(t *testing.T) {
		c := New()
		mustRegisterNamed(t, c, "log", newTestLogger)

		val, err := c.ResolveNamed("log", typeOf[*testLogger]())
		require.NoError(t, err)

		logger := val.Interface().(*testLogger)
		require.Equal(t, "app", logger.Prefix)
	})

	t.Run("unknown name returns ErrNotRegistered", func(t *testing.T) {
		c := New()
		_, err := c.ResolveNamed("missing", typeOf[*testLogger]())
		require.ErrorIs(t, err, ErrNotRegistered)
	})

	t.Run("named service with dependencies", func(t *testing.T) {
		c := New()
		mustRegister(t, c, newTestLogger)
		mustRegisterNamed(t, c, "order", newTestOrderService)

		svc, err := ResolveNamed[*testOrderService](c, "order")
		require.NoError(t, err)
		require.NotNil(t, svc.Logger)
	})

	t.Run("named constructor error is propagated", func(t *testing.T) {
		c := New()
		mustRegisterNamed(t, c, "bad", func() (*testConfig, error) {
			return nil, errors.New("init failed")
		})

		_, err := ResolveNamed[*testConfig](c, "bad")
		require.Error(t, err)
		require.Contains(t, err.Error(), "init failed")
	})

	t.Run("type mismatch returns error", func(t *testing.T) {
		c := New()
		mustRegisterNamed(t, c, "log", newTestLogger)

		_, err := c.ResolveNamed("log", typeOf[*testConfig]())
		require.Error(t, err)
	})

	t.Run("multiple implementations via named services", func(t *testing.T) {
		c := New()
		mustRegister(t, c, newTestLogger)
		mustRegisterNamed(t, c, "user-svc", func(l *testLogger) testService {
			return &testUserService{Logger: l}
		})
		mustRegisterNamed(t, c, "order-svc", func(l *testLogger) testService {
			return &testOrderService{Logger: l}
		})

		userSvc, err := ResolveNamed[testService](c, "user-svc")
		require.NoError(t, err)
		require.Equal(t, "user", userSvc.Name())

		orderSvc, err := ResolveNamed[testService](c, "order-svc")
		require.NoError(t, err)
		require.Equal(t, "order", orderSvc.Name())
	})

	t.Run("named singleton returns the same instance each call", func(t *testing.T) {
		c := New()
		mustRegisterNamed(t, c, "log", newTestLogger)

		v1, err := c.ResolveNamed("log", typeOf[*testLogger]())
		require.NoError(t, err)
		v2, err := c.ResolveNamed("log", typeOf[*testLogger]())
		require.NoError(t, err)
		require.Equal(t, v1.Pointer(), v2.Pointer())
	})

	t.Run("named transient creates a new instance each call", func(t *testing.T) {
		c := New()
		mustRegisterNamed(t, c, "log", newTestLogger, WithLifetime(Transient))

		v1, err := c.ResolveNamed("log", typeOf[*testLogger]())
		require.NoError(t, err)
		v2, err := c.ResolveNamed("log", typeOf[*testLogger]())
		require.NoError(t, err)
		require.NotEqual(t, v1.Pointer(), v2.Pointer())
	})

	t.Run("named services share singleton deps", func(t *testing.T) {
		c := New()
		mustRegister(t, c, newTestLogger)
		mustRegisterNamed(t, c, "o1", newTestOrderService)
		mustRegisterNamed(t, c, "o2", newTestOrderService)

		o1, err := ResolveNamed[*testOrderService](c, "o1")
		require.NoError(t, err)
		o2, err := ResolveNamed[*testOrderService](c, "o2")
		require.NoError(t, err)
		require.Same(t, o1.Logger, o2.Logger)
	})

	t.Run("named services do not satisfy typed dependencies", func(t *testing.T) {
		c := New(WithConcreteResolution(false))
		mustRegisterNamed(t, c, "log", newTestLogger)
		mustRegister(t, c, newTestOrderService)

		_, err := Resolve[*testOrderService](c)
		require.ErrorIs(t, err, ErrNotRegistered)
	})
}

func TestResolveNamedGeneric(t *testing.T) {
	c := New()
	mustRegisterNamed(t, c, "log", func() *testLogger { return &testLogger{Prefix: "named"} })

	logger, err := ResolveNamed[*testLogger](c, "log")
	require.NoError(t, err)
	require.Equal(t, "named", logger.Prefix)
}

// ---------------------------------------------------------------------------
// Generic ResolveAll helper
// ---------------------------------------------------------------------------

func TestResolveAllGeneric(t *testing.T) {
	c := New()
	require.NoError(t, c.RegisterCollection(typeOf[testService](),
		typeOf[*testOrderService]()))

	services, err := ResolveAll[testService](c)
	require.NoError(t, err)
	require.Len(t, services, 1)
	require.Equal(t, "order", services[0].Name())
}

func TestCollectionOfGeneric(t *testing.T) {
	c := New()
	col, err := CollectionOf[testService](c)
	require.NoError(t, err)
	require.NoError(t, col.AppendType(typeOf[*testOrderService]()))
	require.Equal(t, typeOf[testService](), col.ServiceType())
	require.Equal(t, 1, col.Len())
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestResolve_Concurrent(t *testing.T) {
	c := New()
	mustRegister(t, c, newTestLogger)
	mustRegister(t, c, newTestConfig)
	mustRegister(t, c, newTestDatabase)
	mustRegister(t, c, newTestOrderService, WithLifetime(Transient))

	const goroutines = 100
	var wg sync.WaitGroup
	errs := make(chan error, goroutines*2)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			logger, err := Resolve[*testLogger](c)
			if err != nil {
				errs <- fmt.Errorf("Logger: %w", err)
				return
			}
			if logger.Prefix != "app" {
				errs <- fmt.Errorf("Logger.Prefix = %q", logger.Prefix)
				return
			}

			svc, err := Resolve[*testOrderService](c)
			if err != nil {
				errs <- fmt.Errorf("OrderService: %w", err)
				return
			}
			if svc.Logger == nil {
				errs <- fmt.Errorf("OrderService.Logger is nil")
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent error: %v", err)
	}
}

func TestResolveNamed_Concurrent(t *testing.T) {
	c := New()
	mustRegister(t, c, newTestLogger)
	mustRegisterNamed(t, c, "order", newTestOrderService)

	const goroutines = 100
	var wg sync.WaitGroup
	errs := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			svc, err := ResolveNamed[*testOrderService](c, "order")
			if err != nil {
				errs <- err
				return
			}
			if svc.Logger == nil {
				errs <- fmt.Errorf("Logger is nil")
			}
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Edge cases
// ---------------------------------------------------------------------------

func TestResolve_TransientDependsOnTransient(t *testing.T) {
	c := New()
	mustRegister(t, c, newTestLogger, WithLifetime(Transient))
	mustRegister(t, c, newTestOrderService, WithLifetime(Transient))

	s1, err := Resolve[*testOrderService](c)
	require.NoError(t, err)
	s2, err := Resolve[*testOrderService](c)
	require.NoError(t, err)

	require.NotSame(t, s1, s2)
	require.NotSame(t, s1.Logger, s2.Logger)
}

func TestResolve_TransientConstructorReturningError(t *testing.T) {
	c := New()
	mustRegister(t, c, func() *testLogger { return &testLogger{} }, WithLifetime(Transient))
	mustRegister(t, c, func(l *testLogger) (*testOrderService, error) {
		return nil, errors.New("service init failed")
	}, WithLifetime(Transient))

	_, err := Resolve[*testOrderService](c)
	require.Error(t, err)
	require.Contains(t, err.Error(), "service init failed")
}

func TestResolve_ZeroArgConstructor(t *testing.T) {
	c := New()
	mustRegister(t, c, func() int { return 42 })

	val, err := Resolve[int](c)
	require.NoError(t, err)
	require.Equal(t, 42, val)
}

func TestResolve_ValueType(t *testing.T) {
	type settings struct {
		Debug bool
		Port  int
	}

	c := New()
	mustRegister(t, c, func() settings {
		return settings{Debug: true, Port: 8080}
	})

	s, err := Resolve[settings](c)
	require.NoError(t, err)
	require.True(t, s.Debug)
	require.Equal(t, 8080, s.Port)
}
