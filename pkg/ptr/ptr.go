// Package ptr provides utility functions for working with pointers.
package ptr

// Deref returns the value pointed to by the given pointer, or the zero value.
func Deref[T any](ptr *T) T {
	var zero T

	return DerefOr(ptr, zero)
}

// DerefOr returns the value pointed to by ptr, or def when ptr is nil.
func DerefOr[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}

	return *ptr
}

// Of returns a pointer to the given value.
func Of[T any](s T) *T { return &s }
