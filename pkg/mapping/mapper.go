// Package mapping turns raw tuples into application values. Mappers are
// looked up by name or resolved from a relation's AST: structurally
// identical relations share one cached StructMapper, keyed by the AST
// digest. When no model type is supplied, a struct type is synthesized
// from the AST itself.
package mapping

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/relmap/relmap/pkg/tuple"
)

// Mapper transforms a batch of values. Mappers compose into pipelines:
// the output of one stage is the input of the next. The first stage
// receives tuples.
type Mapper interface {
	Call(values []any) ([]any, error)
}

// Func adapts a plain function to the Mapper interface.
type Func func(values []any) ([]any, error)

// Call implements Mapper.
func (f Func) Call(values []any) ([]any, error) { return f(values) }

// StructMapper maps tuples into instances of one Go struct type. Fields
// bind to tuple keys via the `rel` struct tag, falling back to the
// snake_case form of the field name; `rel:"-"` skips a field. Struct,
// pointer-to-struct and slice-of-struct fields bind nested tuples
// produced by wrap and combine.
type StructMapper struct {
	typ    reflect.Type
	ptr    bool
	fields []fieldBinding
}

type fieldBinding struct {
	index    int
	key      string
	nested   *StructMapper
	slice    bool
	elemPtr  bool
	fieldPtr bool
}

var timeType = reflect.TypeOf(time.Time{})

// NewStructMapper builds a mapper for the given model: a struct value,
// or a pointer to one to produce pointers.
func NewStructMapper(model any) (*StructMapper, error) {
	if model == nil {
		return nil, fmt.Errorf("mapping target must not be nil")
	}
	return buildForType(reflect.TypeOf(model))
}

func buildForType(t reflect.Type) (*StructMapper, error) {
	ptr := false
	if t.Kind() == reflect.Pointer {
		ptr = true
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("mapping target must be a struct, got %s", t)
	}

	m := &StructMapper{typ: t, ptr: ptr}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		key := toSnake(f.Name)
		if tag, ok := f.Tag.Lookup("rel"); ok {
			if tag == "-" {
				continue
			}
			key = tag
		}

		fb := fieldBinding{index: i, key: key}
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			fb.fieldPtr = true
			ft = ft.Elem()
		}

		switch {
		case ft.Kind() == reflect.Slice && isStructElem(ft.Elem()):
			elem := ft.Elem()
			fb.slice = true
			if elem.Kind() == reflect.Pointer {
				fb.elemPtr = true
				elem = elem.Elem()
			}
			nested, err := buildForType(elem)
			if err != nil {
				return nil, err
			}
			fb.nested = nested
		case ft.Kind() == reflect.Struct && ft != timeType:
			nested, err := buildForType(ft)
			if err != nil {
				return nil, err
			}
			fb.nested = nested
		}
		m.fields = append(m.fields, fb)
	}
	return m, nil
}

func isStructElem(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct && t != timeType
}

// Type returns the target struct type.
func (m *StructMapper) Type() reflect.Type { return m.typ }

// Call implements Mapper: every input value must be a tuple; the output
// holds one model instance per tuple, pointers when the mapper was
// built from a pointer type.
func (m *StructMapper) Call(values []any) ([]any, error) {
	out := make([]any, 0, len(values))
	for _, v := range values {
		t, ok := asTuple(v)
		if !ok {
			return nil, fmt.Errorf("struct mapper expects tuples, got %T", v)
		}
		mapped, err := m.mapTuple(t)
		if err != nil {
			return nil, err
		}
		if m.ptr {
			out = append(out, mapped.Addr().Interface())
		} else {
			out = append(out, mapped.Interface())
		}
	}
	return out, nil
}

func (m *StructMapper) mapTuple(t tuple.Tuple) (reflect.Value, error) {
	out := reflect.New(m.typ).Elem()
	for _, fb := range m.fields {
		raw, ok := t[fb.key]
		if !ok || raw == nil {
			continue
		}
		field := out.Field(fb.index)

		if fb.nested != nil {
			if err := m.setNested(field, fb, raw); err != nil {
				return reflect.Value{}, fmt.Errorf("field %s: %w", m.typ.Field(fb.index).Name, err)
			}
			continue
		}
		if err := setScalar(field, raw); err != nil {
			return reflect.Value{}, fmt.Errorf("field %s: %w", m.typ.Field(fb.index).Name, err)
		}
	}
	return out, nil
}

func (m *StructMapper) setNested(field reflect.Value, fb fieldBinding, raw any) error {
	if fb.slice {
		rows, err := asTuples(raw)
		if err != nil {
			return err
		}
		sliceType := field.Type()
		if fb.fieldPtr {
			sliceType = sliceType.Elem()
		}
		out := reflect.MakeSlice(sliceType, 0, len(rows))
		for _, row := range rows {
			mapped, err := fb.nested.mapTuple(row)
			if err != nil {
				return err
			}
			if fb.elemPtr {
				out = reflect.Append(out, mapped.Addr())
			} else {
				out = reflect.Append(out, mapped)
			}
		}
		if fb.fieldPtr {
			ptr := reflect.New(sliceType)
			ptr.Elem().Set(out)
			field.Set(ptr)
		} else {
			field.Set(out)
		}
		return nil
	}

	row, ok := asTuple(raw)
	if !ok {
		return fmt.Errorf("expected a nested tuple, got %T", raw)
	}
	mapped, err := fb.nested.mapTuple(row)
	if err != nil {
		return err
	}
	if fb.fieldPtr {
		field.Set(mapped.Addr())
	} else {
		field.Set(mapped)
	}
	return nil
}

func setScalar(field reflect.Value, raw any) error {
	if field.Kind() == reflect.Pointer {
		elem := reflect.New(field.Type().Elem())
		if err := setScalar(elem.Elem(), raw); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	v := reflect.ValueOf(raw)
	if v.Type().AssignableTo(field.Type()) {
		field.Set(v)
		return nil
	}
	// Numeric string conversions produce garbage, never convert across
	// that boundary.
	if field.Kind() == reflect.String != (v.Kind() == reflect.String) {
		return fmt.Errorf("cannot assign %T to %s", raw, field.Type())
	}
	if !v.Type().ConvertibleTo(field.Type()) {
		return fmt.Errorf("cannot assign %T to %s", raw, field.Type())
	}
	field.Set(v.Convert(field.Type()))
	return nil
}

func asTuple(v any) (tuple.Tuple, bool) {
	switch t := v.(type) {
	case tuple.Tuple:
		return t, true
	case map[string]any:
		return tuple.Tuple(t), true
	default:
		return nil, false
	}
}

func asTuples(raw any) ([]tuple.Tuple, error) {
	switch rows := raw.(type) {
	case []tuple.Tuple:
		return rows, nil
	case []any:
		out := make([]tuple.Tuple, 0, len(rows))
		for _, item := range rows {
			t, ok := asTuple(item)
			if !ok {
				return nil, fmt.Errorf("expected nested tuples, got %T", item)
			}
			out = append(out, t)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected nested tuples, got %T", raw)
	}
}

func toSnake(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var commonInitialisms = map[string]string{
	"id":   "ID",
	"uid":  "UID",
	"url":  "URL",
	"api":  "API",
	"json": "JSON",
}

func exportedName(key string) string {
	var b strings.Builder
	for part := range strings.SplitSeq(key, "_") {
		if part == "" {
			continue
		}
		if upper, ok := commonInitialisms[part]; ok {
			b.WriteString(upper)
			continue
		}
		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}
