// Package lazy holds the value-or-loader variant used for plugin components,
// composables and route views.
package lazy

import (
	"context"
	"errors"
)

// ErrEmpty is returned when resolving the zero Value.
var ErrEmpty = errors.New("lazy: empty value")

// Func produces a value on first use.
type Func[T any] func(ctx context.Context) (T, error)

type kind uint8

const (
	kindEmpty kind = iota
	kindLazy
	kindResolved
)

// Value is either Lazy(fn) or Resolved(v). The zero Value is empty.
type Value[T any] struct {
	kind  kind
	fn    Func[T]
	value T
}

// Lazy wraps a loader invoked on resolution. A nil fn yields the empty Value.
func Lazy[T any](fn Func[T]) Value[T] {
	if fn == nil {
		return Value[T]{}
	}
	return Value[T]{kind: kindLazy, fn: fn}
}

// Resolved wraps an already available value.
func Resolved[T any](v T) Value[T] {
	return Value[T]{kind: kindResolved, value: v}
}

// IsLazy reports whether resolving v invokes a loader.
func (v Value[T]) IsLazy() bool { return v.kind == kindLazy }

// IsResolved reports whether v already carries its value.
func (v Value[T]) IsResolved() bool { return v.kind == kindResolved }

// IsEmpty reports whether v is the zero Value.
func (v Value[T]) IsEmpty() bool { return v.kind == kindEmpty }

// Resolve returns the carried value or invokes the loader. It never caches;
// callers that need memoization keep the result themselves.
func (v Value[T]) Resolve(ctx context.Context) (T, error) {
	switch v.kind {
	case kindResolved:
		return v.value, nil
	case kindLazy:
		return v.fn(ctx)
	default:
		var zero T
		return zero, ErrEmpty
	}
}
