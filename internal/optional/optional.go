// Package optional implements the "missing vs null" sentinel used by
// partial-update request bodies: a field that is absent from the JSON
// payload must leave the stored value unchanged, while a field present
// with a null value must clear it. encoding/json alone cannot tell
// these apart since both unmarshal to the zero value.
package optional

import "encoding/json"

// Value wraps a field that may be missing, present-and-null, or
// present-and-set. The zero Value is Missing.
type Value[T any] struct {
	present bool
	null    bool
	value   T
}

// Present reports whether the field appeared in the payload at all.
func (v Value[T]) Present() bool { return v.present }

// Null reports whether the field was present and explicitly null.
func (v Value[T]) Null() bool { return v.present && v.null }

// Get returns the decoded value and whether it should be applied
// (present and non-null).
func (v Value[T]) Get() (T, bool) {
	if !v.present || v.null {
		var zero T
		return zero, false
	}
	return v.value, true
}

// UnmarshalJSON marks the field present, then records whether the raw
// payload was the JSON literal null.
func (v *Value[T]) UnmarshalJSON(data []byte) error {
	v.present = true
	if string(data) == "null" {
		v.null = true
		return nil
	}
	return json.Unmarshal(data, &v.value)
}

// MarshalJSON round-trips a Value for tests and internal re-encoding.
func (v Value[T]) MarshalJSON() ([]byte, error) {
	if !v.present || v.null {
		return []byte("null"), nil
	}
	return json.Marshal(v.value)
}
