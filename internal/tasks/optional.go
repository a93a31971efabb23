package tasks

import "encoding/json"

// Optional is a partial-update field that distinguishes three states:
// absent from the JSON document (Set=false, leave unchanged), present as
// null (Set=true, Valid=false, clear the field), and present with a value
// (Set=true, Valid=true).
type Optional[T any] struct {
	Set   bool
	Valid bool
	Value T
}

// NewOptional builds a present, non-null optional. Used by callers that
// construct updates programmatically.
func NewOptional[T any](value T) Optional[T] {
	return Optional[T]{Set: true, Valid: true, Value: value}
}

// NullOptional builds a present-but-null optional (an explicit clear)
func NullOptional[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

// Pointer returns nil for a null optional and a pointer to a copy of the
// value otherwise
func (o Optional[T]) Pointer() *T {
	if !o.Valid {
		return nil
	}
	v := o.Value
	return &v
}

// UnmarshalJSON is only invoked for keys present in the document, which is
// what makes absent-vs-null distinguishable.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		var zero T
		o.Value = zero
		o.Valid = false
		return nil
	}
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.Valid = true
	return nil
}
