// Package tuple defines the backend-native row representation shared by
// datasets, relations and mappers: an unordered mapping from attribute
// name to value. Attribute ordering is owned by the schema, never by the
// tuple itself.
package tuple

import (
	"fmt"
	"time"

	"github.com/ccoveille/go-safecast/v2"
	"github.com/rs/zerolog"
)

// Tuple is a single row as produced by a dataset.
type Tuple map[string]any

// Clone returns a shallow copy of the tuple. Nested values (combined or
// wrapped sub-tuples) are shared.
func (t Tuple) Clone() Tuple {
	out := make(Tuple, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Merge returns a new tuple with the entries of other layered on top of t.
// Neither input is modified.
func (t Tuple) Merge(other Tuple) Tuple {
	out := t.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Project returns a new tuple restricted to the named attributes. Names
// absent from the tuple are skipped rather than materialized as nils.
func (t Tuple) Project(names ...string) Tuple {
	out := make(Tuple, len(names))
	for _, name := range names {
		if v, ok := t[name]; ok {
			out[name] = v
		}
	}
	return out
}

// MarshalZerologObject implements zerolog object marshalling for trace
// output of individual rows.
func (t Tuple) MarshalZerologObject(e *zerolog.Event) {
	for k, v := range t {
		e.Interface(k, v)
	}
}

// NormalizeKey collapses value representations that should join against
// each other: every integer width becomes int64, float32 becomes float64
// and byte slices become strings. Unsigned values above the int64 range
// keep their own type so they never collide with a sign-flipped key.
// The result is usable as a map key.
func NormalizeKey(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		if out, err := safecast.Convert[int64](n); err == nil {
			return out
		}
		return n
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		if out, err := safecast.Convert[int64](n); err == nil {
			return out
		}
		return n
	case float32:
		return float64(n)
	case []byte:
		return string(n)
	default:
		return v
	}
}

// ValuesEqual reports whether two scalar values are equal after key
// normalization, so int(1) joins against int64(1).
func ValuesEqual(a, b any) bool {
	return NormalizeKey(a) == NormalizeKey(b)
}

// Compare orders two scalar values: nil sorts last, then booleans
// (false before true), numbers, strings, times and byte slices. Values of
// incomparable dynamic types fall back to their string forms so ordering
// stays total and deterministic.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return 1
		default:
			return -1
		}
	}

	a, b = NormalizeKey(a), NormalizeKey(b)

	switch av := a.(type) {
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			default:
				return 1
			}
		}
	case int64:
		switch bv := b.(type) {
		case int64:
			return compareOrdered(av, bv)
		case float64:
			return compareOrdered(float64(av), bv)
		}
	case float64:
		switch bv := b.(type) {
		case float64:
			return compareOrdered(av, bv)
		case int64:
			return compareOrdered(av, float64(bv))
		}
	case string:
		if bv, ok := b.(string); ok {
			return compareOrdered(av, bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	}

	return compareOrdered(fmt.Sprint(a), fmt.Sprint(b))
}

func compareOrdered[T int64 | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Pluck extracts the value of one attribute across a collection, in
// collection order. Tuples missing the attribute contribute nothing.
func Pluck(tuples []Tuple, name string) []any {
	out := make([]any, 0, len(tuples))
	for _, t := range tuples {
		if v, ok := t[name]; ok {
			out = append(out, v)
		}
	}
	return out
}

// PluckUnique is Pluck with duplicates removed, first occurrence wins.
func PluckUnique(tuples []Tuple, name string) []any {
	seen := make(map[any]struct{}, len(tuples))
	out := make([]any, 0, len(tuples))
	for _, t := range tuples {
		v, ok := t[name]
		if !ok {
			continue
		}
		key := NormalizeKey(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// GroupBy buckets a collection by the normalized value of one attribute,
// preserving collection order within each bucket.
func GroupBy(tuples []Tuple, name string) map[any][]Tuple {
	out := make(map[any][]Tuple)
	for _, t := range tuples {
		v, ok := t[name]
		if !ok {
			continue
		}
		key := NormalizeKey(v)
		out[key] = append(out[key], t)
	}
	return out
}

// IndexBy maps the normalized value of one attribute to the first tuple
// carrying it.
func IndexBy(tuples []Tuple, name string) map[any]Tuple {
	out := make(map[any]Tuple, len(tuples))
	for _, t := range tuples {
		v, ok := t[name]
		if !ok {
			continue
		}
		key := NormalizeKey(v)
		if _, dup := out[key]; !dup {
			out[key] = t
		}
	}
	return out
}
