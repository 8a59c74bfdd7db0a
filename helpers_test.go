package alder

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

// Shared test types and constructors used across test files.

// typeOf shortens reflect.TypeOf((*T)(nil)).Elem() in tests.
func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// mustRegister calls t.Fatal if registration fails.
func mustRegister(t *testing.T, c Container, constructor interface{}, opts ...Option) {
	t.Helper()
	require.NoError(t, c.Register(constructor, opts...))
}

// mustRegisterNamed calls t.Fatal if named registration fails.
func mustRegisterNamed(t *testing.T, c Container, name string, constructor interface{}, opts ...Option) {
	t.Helper()
	require.NoError(t, c.RegisterNamed(name, constructor, opts...))
}

// mustRegisterInstance calls t.Fatal if instance registration fails.
func mustRegisterInstance(t *testing.T, c Container, instance interface{}, opts ...Option) {
	t.Helper()
	require.NoError(t, c.RegisterInstance(instance, opts...))
}

// mustCollection calls t.Fatal if the collection cannot be obtained.
func mustCollection(t *testing.T, c Container, elem reflect.Type) *Collection {
	t.Helper()
	col, err := c.Collection(elem)
	require.NoError(t, err)
	return col
}

type testLogger struct{ Prefix string }
type testConfig struct{ DSN string }

type testDatabase struct {
	Config *testConfig
	Logger *testLogger
}

type testUserRepo struct {
	DB     *testDatabase
	Logger *testLogger
}

type testService interface {
	Name() string
}

type testUserService struct {
	Repo   *testUserRepo
	Logger *testLogger
}

func (s *testUserService) Name() string { return "user" }

type testOrderService struct{ Logger *testLogger }

func (s *testOrderService) Name() string { return "order" }

type testCircA struct{ B *testCircB }
type testCircB struct{ C *testCircC }
type testCircC struct{ A *testCircA }

func newTestLogger() *testLogger           { return &testLogger{Prefix: "app"} }
func newTestConfig() *testConfig           { return &testConfig{DSN: "postgres://localhost"} }
func newTestCircA(b *testCircB) *testCircA { return &testCircA{B: b} }
func newTestCircB(c *testCircC) *testCircB { return &testCircB{C: c} }
func newTestCircC(a *testCircA) *testCircC { return &testCircC{A: a} }

func newTestDatabase(cfg *testConfig, log *testLogger) *testDatabase {
	return &testDatabase{Config: cfg, Logger: log}
}

func newTestUserRepo(db *testDatabase, log *testLogger) *testUserRepo {
	return &testUserRepo{DB: db, Logger: log}
}

func newTestUserService(repo *testUserRepo, log *testLogger) *testUserService {
	return &testUserService{Repo: repo, Logger: log}
}

func newTestOrderService(log *testLogger) *testOrderService {
	return &testOrderService{Logger: log}
}

// Handler fixtures for collection tests. The concrete types are
// zero-constructible, so they work as fallback candidates as well as through
// explicit constructors, and each carries a field so separately built
// instances are distinguishable by address.

type testHandler interface {
	Handle() string
}

type auditHandler struct{ Log *testLogger }

func (h *auditHandler) Handle() string { return "audit" }

type metricsHandler struct{ hits int }

func (h *metricsHandler) Handle() string { return "metrics" }

type traceHandler struct{ spans int }

func (h *traceHandler) Handle() string { return "trace" }

type batchHandler struct{ queued int }

func (h *batchHandler) Handle() string { return "batch" }

// Closer fixtures for shutdown tests. Three distinct types so a dependency
// chain of closers can be registered by type.

type closerLeaf struct {
	name  string
	order *[]string
}

func (c *closerLeaf) Close() error {
	*c.order = append(*c.order, c.name)
	return nil
}

type closerMid struct {
	name  string
	order *[]string
	Leaf  *closerLeaf
}

func (c *closerMid) Close() error {
	*c.order = append(*c.order, c.name)
	return nil
}

type closerTop struct {
	name  string
	order *[]string
	Mid   *closerMid
}

func (c *closerTop) Close() error {
	*c.order = append(*c.order, c.name)
	return nil
}

// countingCloser counts Close calls for dedup tests.
type countingCloser struct{ closes int }

func (c *countingCloser) Close() error {
	c.closes++
	return nil
}

// testClosable is a singleton that implements io.Closer for shutdown tests.
type testClosable struct {
	Closed bool
}

func (c *testClosable) Close() error {
	c.Closed = true
	return nil
}

// testFailCloser implements io.Closer but returns an error.
type testFailCloser struct{}

func (f *testFailCloser) Close() error {
	return errors.New("close failed")
}
