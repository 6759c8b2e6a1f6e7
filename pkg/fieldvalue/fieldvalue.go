// Package fieldvalue provides the tri-state optional used for every
// projectable party attribute. A value is either unset (never requested or
// never computed), null (requested and explicitly absent) or present.
//
// The distinction between unset and null is load-bearing: the projection
// builder only populates fields the caller asked for, and a reader must be
// able to tell "not asked" apart from "asked, and the row holds NULL".
package fieldvalue

import (
	"encoding/json"
	"fmt"
)

type state uint8

const (
	stateUnset state = iota
	stateNull
	statePresent
)

// Value is a tri-state wrapper around T. The zero value is unset.
type Value[T any] struct {
	val T
	st  state
}

// Unset returns the unset value. Equivalent to the zero value.
func Unset[T any]() Value[T] { return Value[T]{} }

// Null returns a value that was requested but is explicitly absent.
func Null[T any]() Value[T] { return Value[T]{st: stateNull} }

// Of wraps a present value.
func Of[T any](v T) Value[T] { return Value[T]{val: v, st: statePresent} }

// OfPtr maps a nil pointer to Null and a non-nil pointer to Of(*p).
func OfPtr[T any](p *T) Value[T] {
	if p == nil {
		return Null[T]()
	}
	return Of(*p)
}

// IsSet reports whether the field was populated at all (null or present).
func (v Value[T]) IsSet() bool { return v.st != stateUnset }

// IsNull reports whether the field was requested and explicitly absent.
func (v Value[T]) IsNull() bool { return v.st == stateNull }

// HasValue reports whether a concrete value is present.
func (v Value[T]) HasValue() bool { return v.st == statePresent }

// Get returns the value and whether it is present.
func (v Value[T]) Get() (T, bool) {
	return v.val, v.st == statePresent
}

// MustGet returns the value, panicking if the field is unset. Reading an
// unset field is a contract violation by the caller, not a recoverable
// condition. A null field returns the zero value.
func (v Value[T]) MustGet() T {
	if v.st == stateUnset {
		panic(fmt.Sprintf("fieldvalue: read of unset %T field", v.val))
	}
	return v.val
}

// OrZero returns the value if present, the zero value otherwise.
func (v Value[T]) OrZero() T {
	if v.st == statePresent {
		return v.val
	}
	var zero T
	return zero
}

// Ptr returns a pointer to the value when present, nil for null or unset.
// Used when binding a record field as a nullable query parameter.
func (v Value[T]) Ptr() *T {
	if v.st != statePresent {
		return nil
	}
	val := v.val
	return &val
}

func (v Value[T]) String() string {
	switch v.st {
	case stateNull:
		return "null"
	case statePresent:
		return fmt.Sprintf("%v", v.val)
	default:
		return "unset"
	}
}

// MarshalJSON encodes present values directly and null as JSON null.
// Unset fields marshal as null too; callers that need to omit them must
// guard with IsSet before encoding.
func (v Value[T]) MarshalJSON() ([]byte, error) {
	if v.st != statePresent {
		return []byte("null"), nil
	}
	return json.Marshal(v.val)
}

// UnmarshalJSON decodes JSON null as Null and anything else as present.
func (v *Value[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Null[T]()
		return nil
	}
	var val T
	if err := json.Unmarshal(data, &val); err != nil {
		return err
	}
	*v = Of(val)
	return nil
}
