package event

import "fmt"

// Opt holds a value that may or may not have been assigned.
// The zero value is unset.
type Opt[T any] struct {
	v   T
	set bool
}

// Some returns an Opt holding v.
func Some[T any](v T) Opt[T] { return Opt[T]{v: v, set: true} }

// Get returns the stored value and whether it was set.
func (o Opt[T]) Get() (T, bool) { return o.v, o.set }

// IsSet reports whether a value was assigned.
func (o Opt[T]) IsSet() bool { return o.set }

// Or returns the stored value, or def when unset.
func (o Opt[T]) Or(def T) T {
	if !o.set {
		return def
	}
	return o.v
}

func (o Opt[T]) String() string {
	if !o.set {
		return "<unset>"
	}
	return fmt.Sprint(o.v)
}
