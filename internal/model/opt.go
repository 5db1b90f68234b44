package model

import "encoding/json"

// Unavailable is the text rendered for a value that does not apply, such as
// the memory of a stopped container.
const Unavailable = "—"

// Opt holds either a value or nothing. The zero value is unavailable.
type Opt[T any] struct {
	value T
	ok    bool
}

func Some[T any](v T) Opt[T] {
	return Opt[T]{value: v, ok: true}
}

func None[T any]() Opt[T] {
	return Opt[T]{}
}

func (o Opt[T]) Get() (T, bool) {
	return o.value, o.ok
}

func (o Opt[T]) Valid() bool {
	return o.ok
}

func (o Opt[T]) OrElse(fallback T) T {
	if !o.ok {
		return fallback
	}
	return o.value
}

func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.ok {
		return json.Marshal(Unavailable)
	}
	return json.Marshal(o.value)
}
