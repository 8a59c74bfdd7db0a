package alder

import (
	"fmt"
	"reflect"
)

// Resolve is a generic helper that resolves a typed service from the
// container. It is the recommended way to retrieve values:
//
//	db, err := alder.Resolve[*Database](c)
func Resolve[T any](c Container) (T, error) {
	var zero T
	t := reflect.TypeOf((*T)(nil)).Elem()

	val, err := c.Resolve(t)
	if err != nil {
		return zero, err
	}

	out, ok := val.Interface().(T)
	if !ok {
		return zero, fmt.Errorf("cannot convert %s to %s", val.Type(), t)
	}

	return out, nil
}

// ResolveNamed is a generic helper that resolves a named service from the
// container:
//
//	db, err := alder.ResolveNamed[*Database](c, "primary")
func ResolveNamed[T any](c Container, name string) (T, error) {
	var zero T
	t := reflect.TypeOf((*T)(nil)).Elem()

	val, err := c.ResolveNamed(name, t)
	if err != nil {
		return zero, err
	}

	out, ok := val.Interface().(T)
	if !ok {
		return zero, fmt.Errorf("named %q: cannot convert %s to %s", name, val.Type(), t)
	}

	return out, nil
}

// ResolveAll is a generic helper that builds the collection of T and
// returns its instances as a typed slice in append order:
//
//	handlers, err := alder.ResolveAll[Handler](c)
func ResolveAll[T any](c Container) ([]T, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()

	val, err := c.ResolveAll(t)
	if err != nil {
		return nil, err
	}

	out, ok := val.Interface().([]T)
	if !ok {
		return nil, fmt.Errorf("cannot convert %s to []%s", val.Type(), t)
	}

	return out, nil
}

// CollectionOf is a generic helper that returns the collection of T,
// creating an empty one while the container is still open:
//
//	col, err := alder.CollectionOf[Handler](c)
func CollectionOf[T any](c Container) (*Collection, error) {
	return c.Collection(reflect.TypeOf((*T)(nil)).Elem())
}
